package quality

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Structural similarity between two rendered pages. A windowed
// luminance/contrast/structure comparison is used instead of raw pixel
// difference because the two rendering backends (MuPDF and LibreOffice)
// anti-alias differently, and raw differencing flags nearly every glyph
// edge.

const (
	ssimWindow = 8
	// Standard SSIM stabilization constants for 8-bit channels.
	ssimC1 = (0.01 * 255) * (0.01 * 255)
	ssimC2 = (0.03 * 255) * (0.03 * 255)

	// Windows scoring below this mark a region on the diff overlay.
	overlayThreshold = 0.9
	// Overlay highlights snap to this grid, matching the render DPI scale.
	overlayGrid = 20
)

// SimilarityScore holds the scalar score and the diff overlay for one page
// pair.
type SimilarityScore struct {
	Score   float64
	Overlay *image.NRGBA
	// Resized is true when the two inputs had different pixel dimensions
	// and were resized to the smaller common dimensions before scoring.
	Resized bool
}

// CompareImages computes the structural similarity of two page images in
// [0,1] and builds a diff overlay highlighting low-similarity regions on a
// copy of the first image. Identical images score 1.0 and the score is
// symmetric in its inputs.
func CompareImages(a, b image.Image) SimilarityScore {
	result := SimilarityScore{}

	aw, ah := a.Bounds().Dx(), a.Bounds().Dy()
	bw, bh := b.Bounds().Dx(), b.Bounds().Dy()
	if aw != bw || ah != bh {
		w := min(aw, bw)
		h := min(ah, bh)
		a = imaging.Resize(a, w, h, imaging.Lanczos)
		b = imaging.Resize(b, w, h, imaging.Lanczos)
		result.Resized = true
	}

	grayA := imaging.Grayscale(a)
	grayB := imaging.Grayscale(b)
	width := grayA.Bounds().Dx()
	height := grayA.Bounds().Dy()
	if width == 0 || height == 0 {
		result.Overlay = imaging.Clone(a)
		return result
	}

	overlay := imaging.Clone(a)
	lowGrid := make(map[image.Point]bool)

	var total float64
	var windows int
	for y := 0; y < height; y += ssimWindow {
		for x := 0; x < width; x += ssimWindow {
			w := min(ssimWindow, width-x)
			h := min(ssimWindow, height-y)
			s := windowSSIM(grayA, grayB, x, y, w, h)
			total += s
			windows++
			if s < overlayThreshold {
				lowGrid[image.Pt(x/overlayGrid, y/overlayGrid)] = true
			}
		}
	}

	score := total / float64(windows)
	result.Score = clamp01(score)

	highlight := color.NRGBA{R: 255, A: 80}
	for pt := range lowGrid {
		rect := image.Rect(pt.X*overlayGrid, pt.Y*overlayGrid, (pt.X+1)*overlayGrid, (pt.Y+1)*overlayGrid)
		blendRect(overlay, rect.Intersect(overlay.Bounds()), highlight)
	}
	result.Overlay = overlay
	return result
}

// windowSSIM computes the SSIM index of one aligned window over the
// grayscale luminance channel.
func windowSSIM(a, b *image.NRGBA, x0, y0, w, h int) float64 {
	n := float64(w * h)
	var sumA, sumB float64
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			sumA += luminance(a, x, y)
			sumB += luminance(b, x, y)
		}
	}
	meanA := sumA / n
	meanB := sumB / n

	var varA, varB, cov float64
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			da := luminance(a, x, y) - meanA
			db := luminance(b, x, y) - meanB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}
	varA /= n
	varB /= n
	cov /= n

	num := (2*meanA*meanB + ssimC1) * (2*cov + ssimC2)
	den := (meanA*meanA + meanB*meanB + ssimC1) * (varA + varB + ssimC2)
	return num / den
}

// luminance reads the red channel of an imaging.Grayscale result, where
// R = G = B = luminance.
func luminance(img *image.NRGBA, x, y int) float64 {
	i := img.PixOffset(x, y)
	return float64(img.Pix[i])
}

// blendRect alpha-blends a highlight color over a rectangle in place.
func blendRect(img *image.NRGBA, rect image.Rectangle, c color.NRGBA) {
	alpha := float64(c.A) / 255
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i] = blendChannel(img.Pix[i], c.R, alpha)
			img.Pix[i+1] = blendChannel(img.Pix[i+1], c.G, alpha)
			img.Pix[i+2] = blendChannel(img.Pix[i+2], c.B, alpha)
		}
	}
}

func blendChannel(base, over uint8, alpha float64) uint8 {
	return uint8(float64(base)*(1-alpha) + float64(over)*alpha)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
