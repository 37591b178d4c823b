package quality

import (
	"image"
	"image/color"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	os.Exit(m.Run())
}

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// checkerImage alternates two colors in blocks, giving the comparison some
// structure to latch onto.
func checkerImage(w, h, block int, a, b color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/block+y/block)%2 == 0 {
				img.SetNRGBA(x, y, a)
			} else {
				img.SetNRGBA(x, y, b)
			}
		}
	}
	return img
}

func TestCompareImagesIdentical(t *testing.T) {
	img := checkerImage(64, 64, 8, color.NRGBA{A: 255}, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	result := CompareImages(img, img)
	assert.InDelta(t, 1.0, result.Score, 0.001)
	assert.False(t, result.Resized)
	require.NotNil(t, result.Overlay)
}

func TestCompareImagesSymmetric(t *testing.T) {
	a := checkerImage(64, 64, 8, color.NRGBA{A: 255}, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	b := checkerImage(64, 64, 16, color.NRGBA{A: 255}, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	ab := CompareImages(a, b)
	ba := CompareImages(b, a)
	assert.InDelta(t, ab.Score, ba.Score, 0.001)
}

func TestCompareImagesRange(t *testing.T) {
	black := solidImage(64, 64, color.NRGBA{A: 255})
	white := solidImage(64, 64, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	result := CompareImages(black, white)
	assert.GreaterOrEqual(t, result.Score, 0.0)
	assert.LessOrEqual(t, result.Score, 1.0)
	assert.Less(t, result.Score, 0.5, "opposite images should score low")
}

func TestCompareImagesResizesMismatchedDimensions(t *testing.T) {
	a := solidImage(64, 64, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	b := solidImage(80, 100, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	result := CompareImages(a, b)
	assert.True(t, result.Resized)
	assert.Greater(t, result.Score, 0.9, "same solid color should still score high after resize")
	assert.Equal(t, 64, result.Overlay.Bounds().Dx())
	assert.Equal(t, 64, result.Overlay.Bounds().Dy())
}

func TestLevelForScoreBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  QualityLevel
	}{
		{1.0, QualityGreen},
		{0.95, QualityGreen},
		{0.9499, QualityYellow},
		{0.85, QualityYellow},
		{0.8499, QualityRed},
		{0.0, QualityRed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForScore(tt.score), "score %v", tt.score)
	}
}
