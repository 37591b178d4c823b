package extract

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sort"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// ImageBlock is an embedded raster image on a page, with its bounding box in
// page coordinates.
type ImageBlock struct {
	Data     []byte // encoded image bytes, ready to embed as-is
	Format   string // "png" or "jpeg"
	WidthPt  float64
	HeightPt float64
	X        float64
	Y        float64 // top edge, PDF coordinates (origin bottom-left)
}

func (*ImageBlock) blockMarker() {}

// appendImages runs a second pass over the PDF with go-fitz and inserts the
// embedded raster images of each page into its block list, keeping blocks in
// top-to-bottom order. Image extraction is best effort: any failure leaves
// the affected page text-only, and the quality loop reports the missing
// region as an image difference.
func appendImages(path string, pages []Page) {
	doc, err := fitz.New(path)
	if err != nil {
		if Logger != nil {
			Logger.Warn("Unable to open PDF for image extraction", "path", path, "error", err)
		}
		return
	}
	defer doc.Close()

	numPages := doc.NumPage()
	if numPages > len(pages) {
		numPages = len(pages)
	}

	total := 0
	for pageNum := 0; pageNum < numPages; pageNum++ {
		// The structured-text HTML rendition carries every embedded image
		// as a base64 data URI with its bounding box in the style attribute.
		html, err := doc.HTML(pageNum, false)
		if err != nil {
			if Logger != nil {
				Logger.Warn("Unable to read page images", "page", pageNum, "error", err)
			}
			continue
		}
		images := parsePageImages(html, pages[pageNum].HeightPt)
		if len(images) == 0 {
			continue
		}
		pages[pageNum].Blocks = insertByPosition(pages[pageNum].Blocks, images)
		total += len(images)
	}

	if total > 0 && Logger != nil {
		Logger.Info("Extracted embedded images", "path", path, "images", total)
	}
}

// parsePageImages pulls every inline data-URI image out of a page's HTML
// rendition. pageHeight flips the top-origin CSS offsets into the
// bottom-origin coordinates the text blocks use.
func parsePageImages(html string, pageHeight float64) []*ImageBlock {
	var images []*ImageBlock

	pos := 0
	for {
		start := strings.Index(html[pos:], "<img")
		if start < 0 {
			break
		}
		start += pos
		end := strings.Index(html[start:], ">")
		if end < 0 {
			break
		}
		tag := html[start : start+end+1]
		pos = start + end + 1

		img := parseImageTag(tag, pageHeight)
		if img != nil {
			images = append(images, img)
		}
	}
	return images
}

func parseImageTag(tag string, pageHeight float64) *ImageBlock {
	src := attrValue(tag, "src")
	if !strings.HasPrefix(src, "data:image/") {
		return nil
	}
	format, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:image/"), ";base64,")
	if !ok {
		return nil
	}
	switch format {
	case "jpg":
		format = "jpeg"
	case "png", "jpeg":
	default:
		if Logger != nil {
			Logger.Warn("Skipping embedded image with unsupported format", "format", format)
		}
		return nil
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if Logger != nil {
			Logger.Warn("Skipping embedded image with undecodable payload", "error", err)
		}
		return nil
	}

	style := attrValue(tag, "style")
	top := styleValuePt(style, "top")
	left := styleValuePt(style, "left")
	width := styleValuePt(style, "width")
	height := styleValuePt(style, "height")
	if width <= 0 || height <= 0 {
		// No box in the markup; fall back to the pixel dimensions read as
		// points, the same 72 dpi assumption the display sizing uses.
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			if Logger != nil {
				Logger.Warn("Skipping embedded image with unreadable dimensions", "error", err)
			}
			return nil
		}
		width = float64(cfg.Width)
		height = float64(cfg.Height)
	}

	return &ImageBlock{
		Data:     data,
		Format:   format,
		WidthPt:  width,
		HeightPt: height,
		X:        left,
		Y:        pageHeight - top,
	}
}

// attrValue returns the double-quoted value of an attribute inside a tag, or
// "" when absent.
func attrValue(tag, name string) string {
	marker := name + `="`
	start := strings.Index(tag, marker)
	if start < 0 {
		return ""
	}
	start += len(marker)
	end := strings.Index(tag[start:], `"`)
	if end < 0 {
		return ""
	}
	return tag[start : start+end]
}

// styleValuePt reads a "name:<float>pt" declaration out of a CSS style
// string, returning 0 when missing or malformed.
func styleValuePt(style, name string) float64 {
	for _, decl := range strings.Split(style, ";") {
		key, value, ok := strings.Cut(decl, ":")
		if !ok || strings.TrimSpace(key) != name {
			continue
		}
		value = strings.TrimSuffix(strings.TrimSpace(value), "pt")
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// insertByPosition merges image blocks into an ordered block list, keeping
// everything sorted top of page first.
func insertByPosition(blocks []Block, images []*ImageBlock) []Block {
	for _, img := range images {
		blocks = append(blocks, img)
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		return blockY(blocks[i]) > blockY(blocks[j])
	})
	return blocks
}

func blockY(b Block) float64 {
	switch el := b.(type) {
	case *TextBlock:
		return el.Y
	case *TableBlock:
		return el.Y
	case *ImageBlock:
		return el.Y
	}
	return 0
}

// Info is document-level metadata read from the source PDF.
type Info struct {
	Title  string
	Author string
}

// ReadInfo returns the source document's title and author, when the PDF
// carries them.
func ReadInfo(path string) (Info, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return Info{}, err
	}
	defer doc.Close()

	meta := doc.Metadata()
	return Info{
		Title:  strings.TrimSpace(meta["title"]),
		Author: strings.TrimSpace(meta["author"]),
	}, nil
}
