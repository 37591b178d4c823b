// Package builder assembles a Word document from extracted PDF content,
// optionally shaped by formatting overrides from the pre-build layout
// advisory.
package builder

import (
	"log/slog"
	"math"
	"strings"

	"github.com/drummonds/godocx/docx"
	"github.com/drummonds/godocx/extract"
	"github.com/drummonds/godocx/quality"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// lineMergeFactor controls paragraph grouping: consecutive lines with the
// same formatting merge when their vertical gap is below this multiple of
// the font size.
const lineMergeFactor = 1.8

// headingScale marks a bold line this much larger than the body size as a
// heading.
const headingScale = 1.25

// Build turns extracted pages into a document. Overrides, when non-nil, are
// applied after assembly so advisory formatting wins over heuristics.
func Build(pages []extract.Page, overrides quality.FormattingOverrides) *docx.Document {
	doc := docx.New()

	bodyFont, bodySize := dominantBodyStyle(pages)
	if bodyFont != "" {
		doc.DefaultFont = bodyFont
	}
	if bodySize > 0 {
		doc.DefaultSizePt = bodySize
	}

	for _, page := range pages {
		buildPage(doc, page, bodySize)
	}

	if len(overrides) > 0 {
		applyOverrides(doc, overrides)
	}

	if Logger != nil {
		Logger.Info("Document assembled",
			"pages", len(pages),
			"paragraphs", len(doc.Paragraphs()),
			"tables", len(doc.Tables()),
			"images", len(doc.Images()))
	}
	return doc
}

func buildPage(doc *docx.Document, page extract.Page, bodySize float64) {
	var current *docx.Paragraph
	var currentBlock *extract.TextBlock

	flush := func() {
		current = nil
		currentBlock = nil
	}

	for _, block := range page.Blocks {
		switch el := block.(type) {
		case *extract.TextBlock:
			if current != nil && mergeable(currentBlock, el) {
				run := current.AddRun(" " + el.Text)
				copyRunStyle(run, el)
				currentBlock = el
				continue
			}
			current = doc.AddParagraph()
			current.Alignment = docx.ParseAlignment(el.Alignment)
			if isHeading(el, bodySize) {
				current.Style = "Heading1"
			}
			run := current.AddRun(el.Text)
			copyRunStyle(run, el)
			currentBlock = el

		case *extract.TableBlock:
			flush()
			buildTable(doc, el)

		case *extract.ImageBlock:
			flush()
			buildImage(doc, el)
		}
	}
}

// buildImage places one extracted picture at its position in the body. An
// image that arrived without data gets a placeholder paragraph instead, so
// the reader can see something was there.
func buildImage(doc *docx.Document, block *extract.ImageBlock) {
	if len(block.Data) == 0 {
		p := doc.AddParagraph()
		p.Alignment = docx.AlignCenter
		run := p.AddRun("[Image could not be inserted]")
		run.Italic = true
		if Logger != nil {
			Logger.Warn("Skipping image with no data")
		}
		return
	}
	doc.AddImage(block.Data, block.Format, block.WidthPt, block.HeightPt)
}

// mergeable reports whether two consecutive text blocks belong to the same
// paragraph: same formatting and a line gap consistent with wrapped text.
func mergeable(prev, next *extract.TextBlock) bool {
	if prev == nil {
		return false
	}
	if prev.FontName != next.FontName ||
		prev.Bold != next.Bold ||
		prev.Italic != next.Italic ||
		prev.Alignment != next.Alignment {
		return false
	}
	if math.Abs(prev.FontSizePt-next.FontSizePt) > 0.5 {
		return false
	}
	size := prev.FontSizePt
	if size <= 0 {
		size = 10
	}
	gap := prev.Y - next.Y
	return gap > 0 && gap < lineMergeFactor*size
}

func copyRunStyle(run *docx.Run, block *extract.TextBlock) {
	run.Font = block.FontName
	run.SizePt = block.FontSizePt
	run.Bold = block.Bold
	run.Italic = block.Italic
}

func isHeading(block *extract.TextBlock, bodySize float64) bool {
	return bodySize > 0 && block.Bold && block.FontSizePt >= headingScale*bodySize
}

// buildTable normalizes ragged rows to the widest column count so the
// resulting grid is rectangular.
func buildTable(doc *docx.Document, block *extract.TableBlock) {
	columns := 0
	for _, row := range block.Rows {
		if len(row) > columns {
			columns = len(row)
		}
	}
	if columns == 0 {
		return
	}

	table := doc.AddTable()
	for _, cells := range block.Rows {
		row := table.AddRow(columns)
		for i, text := range cells {
			row.Cells[i].AddParagraph().AddRun(text)
		}
	}
}

// dominantBodyStyle picks the most frequent font and size across all text
// blocks, weighted by text length, to seed the document defaults.
func dominantBodyStyle(pages []extract.Page) (string, float64) {
	fontWeight := make(map[string]int)
	sizeWeight := make(map[float64]int)

	for _, page := range pages {
		for _, block := range page.Blocks {
			text, ok := block.(*extract.TextBlock)
			if !ok {
				continue
			}
			weight := len(text.Text)
			if text.FontName != "" {
				fontWeight[text.FontName] += weight
			}
			if text.FontSizePt > 0 {
				// Quantize to half points so near-identical sizes pool.
				sizeWeight[math.Round(text.FontSizePt*2)/2] += weight
			}
		}
	}

	font, best := "", 0
	for name, weight := range fontWeight {
		if weight > best {
			font, best = name, weight
		}
	}
	size, best := 0.0, 0
	for pt, weight := range sizeWeight {
		if weight > best {
			size, best = pt, weight
		}
	}
	return font, size
}

// applyOverrides matches each advisory snippet against the document and
// applies its formatting to the matched paragraph and runs. Background
// colors only apply inside table cells since body paragraphs carry no
// shading in the model.
func applyOverrides(doc *docx.Document, overrides quality.FormattingOverrides) {
	applied := 0
	for _, para := range doc.Paragraphs() {
		paraText := quality.NormalizeAnchor(para.Text())
		if paraText == "" {
			continue
		}
		for key, override := range overrides {
			if !strings.Contains(paraText, key) {
				continue
			}
			applyOverrideToParagraph(para, override)
			applied++
		}
	}

	for _, cell := range doc.Cells() {
		cellText := quality.NormalizeAnchor(cell.Text())
		if cellText == "" {
			continue
		}
		for key, override := range overrides {
			if override.BackgroundColor == "" || !strings.Contains(cellText, key) {
				continue
			}
			cell.Shading = strings.TrimPrefix(override.BackgroundColor, "#")
		}
	}

	if Logger != nil {
		Logger.Info("Layout advisory applied", "overrides", len(overrides), "matched", applied)
	}
}

func applyOverrideToParagraph(para *docx.Paragraph, override quality.FormattingOverride) {
	if align := docx.ParseAlignment(override.Alignment); align != docx.AlignNone {
		para.Alignment = align
	}
	for _, run := range para.Runs {
		if override.FontSizePt > 0 {
			run.SizePt = override.FontSizePt
		}
		if override.FontColor != "" {
			run.Color = strings.TrimPrefix(override.FontColor, "#")
		}
		if override.Bold {
			run.Bold = true
		}
		if override.Italic {
			run.Italic = true
		}
	}
}
