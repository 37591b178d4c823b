package builder

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drummonds/godocx/docx"
	"github.com/drummonds/godocx/extract"
	"github.com/drummonds/godocx/quality"
)

func TestMain(m *testing.M) {
	Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	os.Exit(m.Run())
}

func samplePage() extract.Page {
	return extract.Page{
		Number:   0,
		WidthPt:  612,
		HeightPt: 792,
		Blocks: []extract.Block{
			&extract.TextBlock{
				Text: "Quarterly Report", FontName: "Arial", FontSizePt: 16,
				Bold: true, Alignment: "center", Y: 750,
			},
			&extract.TextBlock{
				Text: "Revenue grew steadily across all", FontName: "Arial",
				FontSizePt: 11, Alignment: "left", Y: 700,
			},
			&extract.TextBlock{
				Text: "regions in the second quarter.", FontName: "Arial",
				FontSizePt: 11, Alignment: "left", Y: 686,
			},
			&extract.TableBlock{
				Y: 600,
				Rows: [][]string{
					{"Region", "Revenue"},
					{"North", "1200"},
					{"South", "900", "flagged"},
				},
			},
		},
	}
}

func TestBuildAssemblesBlocks(t *testing.T) {
	doc := Build([]extract.Page{samplePage()}, nil)

	// Heading, one merged body paragraph, one table.
	require.Len(t, doc.Blocks, 3)

	heading := doc.Blocks[0].(*docx.Paragraph)
	assert.Equal(t, "Quarterly Report", heading.Text())
	assert.Equal(t, docx.AlignCenter, heading.Alignment)
	assert.Equal(t, "Heading1", heading.Style)
	assert.True(t, heading.Runs[0].Bold)

	body := doc.Blocks[1].(*docx.Paragraph)
	assert.Equal(t, "Revenue grew steadily across all regions in the second quarter.", body.Text())

	table := doc.Blocks[2].(*docx.Table)
	require.Len(t, table.Rows, 3)
	// Ragged rows are padded to the widest column count.
	for _, row := range table.Rows {
		assert.Len(t, row.Cells, 3)
	}
	assert.Equal(t, "Region", table.Rows[0].Cells[0].Text())
	assert.Equal(t, "flagged", table.Rows[2].Cells[2].Text())
}

func TestBuildPicksDominantBodyStyle(t *testing.T) {
	doc := Build([]extract.Page{samplePage()}, nil)
	assert.Equal(t, "Arial", doc.DefaultFont)
	assert.Equal(t, 11.0, doc.DefaultSizePt)
}

func TestBuildDoesNotMergeAcrossFormattingChange(t *testing.T) {
	page := extract.Page{
		WidthPt: 612, HeightPt: 792,
		Blocks: []extract.Block{
			&extract.TextBlock{Text: "Bold intro", FontName: "Arial", FontSizePt: 11, Bold: true, Alignment: "left", Y: 700},
			&extract.TextBlock{Text: "plain continuation", FontName: "Arial", FontSizePt: 11, Alignment: "left", Y: 686},
		},
	}
	doc := Build([]extract.Page{page}, nil)
	assert.Len(t, doc.Blocks, 2)
}

func TestBuildDoesNotMergeAcrossLargeGap(t *testing.T) {
	page := extract.Page{
		WidthPt: 612, HeightPt: 792,
		Blocks: []extract.Block{
			&extract.TextBlock{Text: "First paragraph.", FontName: "Arial", FontSizePt: 11, Alignment: "left", Y: 700},
			&extract.TextBlock{Text: "Second paragraph.", FontName: "Arial", FontSizePt: 11, Alignment: "left", Y: 620},
		},
	}
	doc := Build([]extract.Page{page}, nil)
	assert.Len(t, doc.Blocks, 2)
}

func TestBuildAppliesOverrides(t *testing.T) {
	overrides := quality.FormattingOverrides{
		"quarterly report": {
			FontSizePt: 18,
			FontColor:  "#1F3864",
			Bold:       true,
			Alignment:  "right",
		},
		"south": {
			BackgroundColor: "#FFF2CC",
		},
	}

	doc := Build([]extract.Page{samplePage()}, overrides)

	heading := doc.Blocks[0].(*docx.Paragraph)
	assert.Equal(t, docx.AlignRight, heading.Alignment)
	assert.Equal(t, 18.0, heading.Runs[0].SizePt)
	assert.Equal(t, "1F3864", heading.Runs[0].Color)

	table := doc.Blocks[2].(*docx.Table)
	assert.Equal(t, "FFF2CC", table.Rows[2].Cells[0].Shading)
}

func TestBuildPlacesImages(t *testing.T) {
	page := extract.Page{
		WidthPt: 612, HeightPt: 792,
		Blocks: []extract.Block{
			&extract.TextBlock{Text: "Figure 1 follows.", FontName: "Arial", FontSizePt: 11, Alignment: "left", Y: 700},
			&extract.ImageBlock{Data: []byte{0x89, 0x50}, Format: "png", WidthPt: 200, HeightPt: 100, Y: 695},
			&extract.TextBlock{Text: "Caption below.", FontName: "Arial", FontSizePt: 11, Alignment: "left", Y: 686},
		},
	}

	doc := Build([]extract.Page{page}, nil)
	require.Len(t, doc.Blocks, 3)

	img, ok := doc.Blocks[1].(*docx.Image)
	require.True(t, ok, "second block should be an image, got %T", doc.Blocks[1])
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 200.0, img.WidthPt)
	assert.Equal(t, []byte{0x89, 0x50}, img.Data)

	// The image interrupts paragraph merging.
	caption := doc.Blocks[2].(*docx.Paragraph)
	assert.Equal(t, "Caption below.", caption.Text())
}

func TestBuildImageWithoutDataBecomesPlaceholder(t *testing.T) {
	page := extract.Page{
		WidthPt: 612, HeightPt: 792,
		Blocks: []extract.Block{
			&extract.ImageBlock{Format: "png", WidthPt: 200, HeightPt: 100, Y: 650},
		},
	}

	doc := Build([]extract.Page{page}, nil)
	require.Len(t, doc.Blocks, 1)

	p, ok := doc.Blocks[0].(*docx.Paragraph)
	require.True(t, ok)
	assert.Equal(t, "[Image could not be inserted]", p.Text())
	assert.Equal(t, docx.AlignCenter, p.Alignment)
	assert.Empty(t, doc.Images())
}

func TestBuildEmptyInput(t *testing.T) {
	doc := Build(nil, nil)
	assert.Empty(t, doc.Blocks)
	assert.Equal(t, "Calibri", doc.DefaultFont)
	assert.Equal(t, 11.0, doc.DefaultSizePt)
}
