package extract

import (
	"testing"
)

func makeLine(y, fontSize float64, words ...word) line {
	l := line{y: y, fontSize: fontSize}
	l.words = words
	return l
}

func TestGroupLinesBaselines(t *testing.T) {
	words := []word{
		{text: "World", x: 60, y: 700, w: 30, fontSize: 12},
		{text: "Hello", x: 20, y: 701, w: 30, fontSize: 12},
		{text: "Below", x: 20, y: 650, w: 30, fontSize: 12},
	}

	lines := groupLines(words)
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if got := lines[0].text(); got != "Hello World" {
		t.Errorf("First line text = %q", got)
	}
	if got := lines[1].text(); got != "Below" {
		t.Errorf("Second line text = %q", got)
	}
}

func TestLineCellsSplitOnWideGaps(t *testing.T) {
	l := makeLine(500, 10,
		word{text: "Region", x: 50, y: 500, w: 40, fontSize: 10},
		// 60pt gap at 10pt font size is a column boundary
		word{text: "Revenue", x: 150, y: 500, w: 50, fontSize: 10},
		word{text: "(USD)", x: 203, y: 500, w: 30, fontSize: 10},
	)

	cells := l.cells()
	if len(cells) != 2 {
		t.Fatalf("Expected 2 cells, got %d: %v", len(cells), cells)
	}
	if cells[0] != "Region" || cells[1] != "Revenue (USD)" {
		t.Errorf("Unexpected cells: %v", cells)
	}
}

func TestAssembleBlocksDetectsTable(t *testing.T) {
	lines := []line{
		makeLine(700, 12, word{text: "Sales Summary", x: 50, y: 700, w: 100, fontSize: 12}),
		makeLine(650, 10,
			word{text: "Region", x: 50, y: 650, w: 40, fontSize: 10},
			word{text: "Revenue", x: 200, y: 650, w: 50, fontSize: 10}),
		makeLine(630, 10,
			word{text: "North", x: 50, y: 630, w: 35, fontSize: 10},
			word{text: "1200", x: 200, y: 630, w: 30, fontSize: 10}),
		makeLine(610, 10,
			word{text: "South", x: 50, y: 610, w: 35, fontSize: 10},
			word{text: "900", x: 200, y: 610, w: 25, fontSize: 10}),
	}

	blocks := assembleBlocks(lines, defaultPageWidth)
	if len(blocks) != 2 {
		t.Fatalf("Expected 2 blocks (heading + table), got %d", len(blocks))
	}

	if _, ok := blocks[0].(*TextBlock); !ok {
		t.Errorf("First block should be text, got %T", blocks[0])
	}
	table, ok := blocks[1].(*TableBlock)
	if !ok {
		t.Fatalf("Second block should be a table, got %T", blocks[1])
	}
	if len(table.Rows) != 3 {
		t.Errorf("Expected 3 table rows, got %d", len(table.Rows))
	}
	if table.Rows[1][0] != "North" {
		t.Errorf("Unexpected cell content: %v", table.Rows[1])
	}
}

func TestGuessAlignmentCenter(t *testing.T) {
	// Line centered on a 612pt page.
	l := makeLine(700, 12, word{text: "Title", x: 256, y: 700, w: 100, fontSize: 12})
	if got := guessAlignment(l, defaultPageWidth); got != "center" {
		t.Errorf("Expected center alignment, got %q", got)
	}
}

func TestGuessAlignmentLeft(t *testing.T) {
	l := makeLine(700, 12, word{text: "Body", x: 50, y: 700, w: 200, fontSize: 12})
	if got := guessAlignment(l, defaultPageWidth); got != "left" {
		t.Errorf("Expected left alignment, got %q", got)
	}
}

func TestFontNameHelpers(t *testing.T) {
	if !IsBoldFont("Helvetica-Bold") {
		t.Error("Helvetica-Bold should read as bold")
	}
	if !IsItalicFont("Times-Oblique") {
		t.Error("Times-Oblique should read as italic")
	}
	if IsBoldFont("Helvetica") || IsItalicFont("Helvetica") {
		t.Error("Plain Helvetica should be neither bold nor italic")
	}

	if got := CleanFontName("ABCDEF+Calibri-Bold"); got != "Calibri" {
		t.Errorf("CleanFontName subset = %q", got)
	}
	if got := CleanFontName("Arial,Bold"); got != "Arial" {
		t.Errorf("CleanFontName comma = %q", got)
	}
}
