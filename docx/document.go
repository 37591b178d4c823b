// Package docx holds an in-memory model of a Word document and writes it
// out as OOXML.
//
// DOCX files are ZIP archives containing OOXML; the main document lives at
// word/document.xml. The model keeps paragraphs, runs, tables and images as plain
// mutable structs so the correction engine can adjust formatting in place
// between quality-loop rounds, then Save serializes the whole document
// again.
package docx

import (
	"log/slog"
	"strings"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// Alignment is a paragraph or cell alignment value.
type Alignment string

const (
	AlignNone    Alignment = ""
	AlignLeft    Alignment = "left"
	AlignCenter  Alignment = "center"
	AlignRight   Alignment = "right"
	AlignJustify Alignment = "both"
)

// ParseAlignment maps loose alignment words onto an Alignment value.
func ParseAlignment(s string) Alignment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left":
		return AlignLeft
	case "center", "centre", "centered":
		return AlignCenter
	case "right":
		return AlignRight
	case "justify", "justified", "both":
		return AlignJustify
	}
	return AlignNone
}

// Block is one body-level element: a *Paragraph, a *Table or an *Image.
type Block interface {
	block()
}

// Run is a span of text with uniform formatting.
type Run struct {
	Text      string
	Font      string
	SizePt    float64 // 0 means inherit from the style
	Color     string  // hex without '#', e.g. "FF0000"; empty means default
	Bold      bool
	Italic    bool
	Underline bool
}

// Paragraph is a sequence of runs with paragraph-level formatting.
type Paragraph struct {
	Runs          []*Run
	Alignment     Alignment
	SpaceBeforePt float64
	SpaceAfterPt  float64
	Style         string // named style, e.g. "Heading1"
}

func (p *Paragraph) block() {}

// Text returns the concatenated text of all runs.
func (p *Paragraph) Text() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// AddRun appends a run and returns it.
func (p *Paragraph) AddRun(text string) *Run {
	r := &Run{Text: text}
	p.Runs = append(p.Runs, r)
	return r
}

// Cell is one table cell. Borders are all-or-nothing single lines, which is
// what the correction engine toggles.
type Cell struct {
	Paragraphs []*Paragraph
	Shading    string // hex fill without '#'; empty means no shading
	Borders    bool
}

// Text returns the concatenated text of all paragraphs in the cell.
func (c *Cell) Text() string {
	parts := make([]string, 0, len(c.Paragraphs))
	for _, p := range c.Paragraphs {
		parts = append(parts, p.Text())
	}
	return strings.Join(parts, "\n")
}

// AddParagraph appends a paragraph to the cell and returns it.
func (c *Cell) AddParagraph() *Paragraph {
	p := &Paragraph{}
	c.Paragraphs = append(c.Paragraphs, p)
	return p
}

// Row is one table row.
type Row struct {
	Cells []*Cell
}

// Table is a body-level table.
type Table struct {
	Rows []*Row
}

func (t *Table) block() {}

// AddRow appends a row with the given number of cells.
func (t *Table) AddRow(cells int) *Row {
	row := &Row{}
	for i := 0; i < cells; i++ {
		row.Cells = append(row.Cells, &Cell{Borders: true})
	}
	t.Rows = append(t.Rows, row)
	return row
}

// Image is a body-level picture, rendered centered in its own paragraph.
// Data holds the encoded bytes exactly as they go into the media part.
type Image struct {
	Data     []byte
	Format   string // "png" or "jpeg"
	WidthPt  float64
	HeightPt float64
}

func (im *Image) block() {}

// Document is the root of the model.
type Document struct {
	Blocks []Block

	// DefaultFont and DefaultSizePt feed the Normal style.
	DefaultFont   string
	DefaultSizePt float64

	// Title and Creator go into the core properties, carried over from the
	// source document's metadata. An empty Creator falls back to "godocx".
	Title   string
	Creator string
}

// New creates an empty document with conventional defaults.
func New() *Document {
	return &Document{DefaultFont: "Calibri", DefaultSizePt: 11}
}

// AddParagraph appends a body paragraph and returns it.
func (d *Document) AddParagraph() *Paragraph {
	p := &Paragraph{}
	d.Blocks = append(d.Blocks, p)
	return p
}

// AddTable appends a body table and returns it.
func (d *Document) AddTable() *Table {
	t := &Table{}
	d.Blocks = append(d.Blocks, t)
	return t
}

// AddImage appends a body image and returns it.
func (d *Document) AddImage(data []byte, format string, widthPt, heightPt float64) *Image {
	im := &Image{Data: data, Format: format, WidthPt: widthPt, HeightPt: heightPt}
	d.Blocks = append(d.Blocks, im)
	return im
}

// Images returns every body image in order. The index of an image in this
// slice determines its media part name and relationship ID.
func (d *Document) Images() []*Image {
	var out []*Image
	for _, b := range d.Blocks {
		if im, ok := b.(*Image); ok {
			out = append(out, im)
		}
	}
	return out
}

// Paragraphs returns every paragraph in body order, including paragraphs
// nested inside table cells.
func (d *Document) Paragraphs() []*Paragraph {
	var out []*Paragraph
	for _, b := range d.Blocks {
		switch el := b.(type) {
		case *Paragraph:
			out = append(out, el)
		case *Table:
			for _, row := range el.Rows {
				for _, cell := range row.Cells {
					out = append(out, cell.Paragraphs...)
				}
			}
		}
	}
	return out
}

// Tables returns every body table in order.
func (d *Document) Tables() []*Table {
	var out []*Table
	for _, b := range d.Blocks {
		if t, ok := b.(*Table); ok {
			out = append(out, t)
		}
	}
	return out
}

// Cells returns every table cell in body order.
func (d *Document) Cells() []*Cell {
	var out []*Cell
	for _, t := range d.Tables() {
		for _, row := range t.Rows {
			out = append(out, row.Cells...)
		}
	}
	return out
}
