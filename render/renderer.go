package render

import (
	"context"
	"errors"
	"image"
	"log/slog"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ErrUnavailable is returned when the external rendering tool needed for a
// document format is not installed or not configured. Callers should treat
// this as "skip visual validation", not as a fatal conversion error.
var ErrUnavailable = errors.New("render: rendering tool unavailable")

// PageImage is one rendered page of a document.
type PageImage struct {
	PageIndex int
	Image     image.Image
}

// Width returns the pixel width of the rendered page.
func (p PageImage) Width() int {
	return p.Image.Bounds().Dx()
}

// Height returns the pixel height of the rendered page.
func (p PageImage) Height() int {
	return p.Image.Bounds().Dy()
}

// Renderer converts both document formats to raster page images.
type Renderer interface {
	// RenderPDF converts all pages of a PDF file to images at the given DPI,
	// in page order.
	RenderPDF(path string, dpi int) ([]PageImage, error)

	// RenderDOCX converts all pages of a DOCX file to images at the given
	// DPI. Returns ErrUnavailable when LibreOffice is not present.
	RenderDOCX(ctx context.Context, path string, dpi int) ([]PageImage, error)

	// Close cleans up any resources used by the renderer
	Close() error
}

// NewRenderer creates the default renderer: go-fitz for PDF pages and
// LibreOffice (via an intermediate PDF) for DOCX pages. sofficePath may be
// "auto" to trigger auto-detection.
func NewRenderer(sofficePath string) (Renderer, error) {
	return NewService(sofficePath), nil
}
