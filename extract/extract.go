// Package extract pulls structured content out of a source PDF: positioned
// text lines with font information, simple column tables, embedded raster
// images, and page geometry. The output feeds the document builder.
//
// Text and table extraction are heuristic. Images come from a second pass
// over the file with go-fitz and are best effort: a page whose images cannot
// be read stays text-only, and the visual quality loop reports the missing
// region as a difference.
package extract

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// Block is one content element on a page: a *TextBlock, a *TableBlock or an
// *ImageBlock.
type Block interface {
	blockMarker()
}

// TextBlock is a paragraph-like group of text lines sharing formatting.
type TextBlock struct {
	Text       string
	FontName   string
	FontSizePt float64
	Bold       bool
	Italic     bool
	Alignment  string // "left", "center", "right"
	X          float64
	Y          float64 // top edge, PDF coordinates (origin bottom-left)
}

func (*TextBlock) blockMarker() {}

// TableBlock is a detected table as rows of cell strings.
type TableBlock struct {
	Rows [][]string
	Y    float64
}

func (*TableBlock) blockMarker() {}

// Page is the structured content of one source page.
type Page struct {
	Number   int // 0-based
	WidthPt  float64
	HeightPt float64
	Blocks   []Block
}

// word is one positioned text fragment from the PDF content stream.
type word struct {
	text     string
	font     string
	fontSize float64
	x, y, w  float64
}

// line is a row of words sharing a baseline.
type line struct {
	words    []word
	y        float64
	fontSize float64
}

const (
	baselineTolerance = 2.0 // points; words within this are one line
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// Extract reads every page of the PDF at path into structured content.
func Extract(path string) ([]Page, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF for extraction: %w", err)
	}
	defer file.Close()

	numPages := reader.NumPage()
	pages := make([]Page, 0, numPages)

	for pageNum := 1; pageNum <= numPages; pageNum++ {
		p := reader.Page(pageNum)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: pageNum - 1, WidthPt: defaultPageWidth, HeightPt: defaultPageHeight})
			continue
		}

		width, height := pageSize(p)
		words := collectWords(p)
		lines := groupLines(words)
		blocks := assembleBlocks(lines, width)

		pages = append(pages, Page{
			Number:   pageNum - 1,
			WidthPt:  width,
			HeightPt: height,
			Blocks:   blocks,
		})
	}

	appendImages(path, pages)

	if Logger != nil {
		Logger.Info("PDF extraction complete", "path", path, "pages", len(pages))
	}
	return pages, nil
}

// pageSize reads the MediaBox, falling back to US Letter.
func pageSize(p pdf.Page) (float64, float64) {
	box := p.V.Key("MediaBox")
	if box.Kind() != pdf.Array || box.Len() < 4 {
		return defaultPageWidth, defaultPageHeight
	}
	x0 := box.Index(0).Float64()
	y0 := box.Index(1).Float64()
	x1 := box.Index(2).Float64()
	y1 := box.Index(3).Float64()
	w := math.Abs(x1 - x0)
	h := math.Abs(y1 - y0)
	if w <= 0 || h <= 0 {
		return defaultPageWidth, defaultPageHeight
	}
	return w, h
}

func collectWords(p pdf.Page) []word {
	content := p.Content()
	words := make([]word, 0, len(content.Text))
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		words = append(words, word{
			text:     t.S,
			font:     t.Font,
			fontSize: t.FontSize,
			x:        t.X,
			y:        t.Y,
			w:        t.W,
		})
	}
	return words
}

// groupLines buckets words into baselines, top of page first.
func groupLines(words []word) []line {
	sort.SliceStable(words, func(i, j int) bool {
		if math.Abs(words[i].y-words[j].y) > baselineTolerance {
			return words[i].y > words[j].y // PDF y grows upward
		}
		return words[i].x < words[j].x
	})

	var lines []line
	for _, w := range words {
		if n := len(lines); n > 0 && math.Abs(lines[n-1].y-w.y) <= baselineTolerance {
			lines[n-1].words = append(lines[n-1].words, w)
			if w.fontSize > lines[n-1].fontSize {
				lines[n-1].fontSize = w.fontSize
			}
			continue
		}
		lines = append(lines, line{words: []word{w}, y: w.y, fontSize: w.fontSize})
	}
	return lines
}

// cells splits a line into column cells on horizontal gaps wider than
// gapThreshold times the font size.
func (l line) cells() []string {
	const gapThreshold = 2.0

	var cells []string
	var current strings.Builder
	for i, w := range l.words {
		if i > 0 {
			prev := l.words[i-1]
			gap := w.x - (prev.x + prev.w)
			size := l.fontSize
			if size <= 0 {
				size = 10
			}
			switch {
			case gap > gapThreshold*size:
				cells = append(cells, strings.TrimSpace(current.String()))
				current.Reset()
			case gap > 0.15*size:
				current.WriteString(" ")
			}
		}
		current.WriteString(w.text)
	}
	if current.Len() > 0 {
		cells = append(cells, strings.TrimSpace(current.String()))
	}
	return cells
}

func (l line) text() string {
	return strings.Join(l.cells(), " ")
}

func (l line) startX() float64 {
	if len(l.words) == 0 {
		return 0
	}
	return l.words[0].x
}

func (l line) endX() float64 {
	if len(l.words) == 0 {
		return 0
	}
	last := l.words[len(l.words)-1]
	return last.x + last.w
}

func (l line) dominantFont() string {
	counts := make(map[string]int)
	for _, w := range l.words {
		counts[w.font]++
	}
	best, bestCount := "", 0
	for font, count := range counts {
		if count > bestCount {
			best, bestCount = font, count
		}
	}
	return best
}

// IsBoldFont reports whether a PDF font name implies bold.
func IsBoldFont(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "bold") || strings.Contains(lower, "black") || strings.Contains(lower, "heavy")
}

// IsItalicFont reports whether a PDF font name implies italic.
func IsItalicFont(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "italic") || strings.Contains(lower, "oblique")
}

// CleanFontName strips the subset prefix (ABCDEF+) and style suffix from a
// PDF font name.
func CleanFontName(name string) string {
	if idx := strings.Index(name, "+"); idx >= 0 && idx == 6 {
		name = name[idx+1:]
	}
	if idx := strings.IndexAny(name, "-,"); idx > 0 {
		name = name[:idx]
	}
	return name
}

// assembleBlocks turns baseline lines into ordered text and table blocks.
func assembleBlocks(lines []line, pageWidth float64) []Block {
	var blocks []Block

	i := 0
	for i < len(lines) {
		// A run of 2+ consecutive multi-cell lines with a stable column
		// count reads as a table.
		if tableEnd := tableRunEnd(lines, i); tableEnd > i+1 {
			table := &TableBlock{Y: lines[i].y}
			for _, l := range lines[i:tableEnd] {
				table.Rows = append(table.Rows, l.cells())
			}
			blocks = append(blocks, table)
			i = tableEnd
			continue
		}

		blocks = append(blocks, lineToTextBlock(lines[i], pageWidth))
		i++
	}
	return blocks
}

// tableRunEnd returns the index one past a run of table-like lines starting
// at i, or i when there is no run.
func tableRunEnd(lines []line, i int) int {
	first := lines[i].cells()
	if len(first) < 2 {
		return i
	}
	end := i + 1
	for end < len(lines) {
		cells := lines[end].cells()
		if len(cells) < 2 || abs(len(cells)-len(first)) > 1 {
			break
		}
		end++
	}
	return end
}

func lineToTextBlock(l line, pageWidth float64) *TextBlock {
	font := l.dominantFont()
	return &TextBlock{
		Text:       l.text(),
		FontName:   CleanFontName(font),
		FontSizePt: l.fontSize,
		Bold:       IsBoldFont(font),
		Italic:     IsItalicFont(font),
		Alignment:  guessAlignment(l, pageWidth),
		X:          l.startX(),
		Y:          l.y,
	}
}

// guessAlignment classifies a line by where it sits on the page.
func guessAlignment(l line, pageWidth float64) string {
	if pageWidth <= 0 {
		return "left"
	}
	start := l.startX()
	end := l.endX()
	center := (start + end) / 2
	pageCenter := pageWidth / 2

	leftMargin := start
	rightMargin := pageWidth - end

	if leftMargin > 0.12*pageWidth && math.Abs(center-pageCenter) < 0.06*pageWidth {
		return "center"
	}
	if leftMargin > rightMargin*2 && rightMargin < 0.1*pageWidth {
		return "right"
	}
	return "left"
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
