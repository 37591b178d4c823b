package render

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// renderPDFPages converts all pages of a PDF file to images using go-fitz.
func renderPDFPages(path string, dpi int) ([]PageImage, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()

	var pages []PageImage
	for pageNum := 0; pageNum < numPages; pageNum++ {
		img, err := doc.ImageDPI(pageNum, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("unable to render page %d: %w", pageNum, err)
		}
		pages = append(pages, PageImage{PageIndex: pageNum, Image: img})
	}

	return pages, nil
}
