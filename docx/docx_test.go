package docx

import (
	"archive/zip"
	"encoding/base64"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

// onePixelPNG is a valid 1x1 PNG, base64 encoded.
const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func pngBytes(t *testing.T) []byte {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(onePixelPNG)
	if err != nil {
		t.Fatalf("Failed to decode PNG fixture: %v", err)
	}
	return data
}

func readZipEntry(t *testing.T, zr *zip.ReadCloser, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Failed to open %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", name, err)
		}
		return string(data)
	}
	t.Fatalf("Missing zip entry %s", name)
	return ""
}

func buildSampleDocument() *Document {
	doc := New()

	title := doc.AddParagraph()
	title.Style = "Heading1"
	title.Alignment = AlignCenter
	run := title.AddRun("Quarterly Report")
	run.Bold = true
	run.SizePt = 16

	body := doc.AddParagraph()
	body.AddRun("Revenue grew in all regions.")

	table := doc.AddTable()
	row := table.AddRow(2)
	row.Cells[0].AddParagraph().AddRun("Region")
	row.Cells[1].AddParagraph().AddRun("Revenue")
	row.Cells[0].Shading = "D9E2F3"

	return doc
}

func TestParagraphText(t *testing.T) {
	p := &Paragraph{}
	p.AddRun("Hello, ")
	p.AddRun("world")
	if got := p.Text(); got != "Hello, world" {
		t.Errorf("Paragraph.Text() = %q", got)
	}
}

func TestDocumentParagraphsIncludesCells(t *testing.T) {
	doc := buildSampleDocument()

	paragraphs := doc.Paragraphs()
	// 2 body paragraphs + 2 cell paragraphs
	if len(paragraphs) != 4 {
		t.Fatalf("Expected 4 paragraphs, got %d", len(paragraphs))
	}

	if len(doc.Cells()) != 2 {
		t.Errorf("Expected 2 cells, got %d", len(doc.Cells()))
	}
}

func TestMarshalDocument(t *testing.T) {
	doc := buildSampleDocument()

	data, err := doc.marshalDocument()
	if err != nil {
		t.Fatalf("marshalDocument failed: %v", err)
	}

	content := string(data)
	for _, want := range []string{
		`<w:jc w:val="center">`,
		`<w:sz w:val="32">`,
		"Quarterly Report",
		"<w:tbl>",
		`w:fill="D9E2F3"`,
		`<w:tcBorders>`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("document.xml missing %q", want)
		}
	}
}

func TestParseAlignment(t *testing.T) {
	cases := map[string]Alignment{
		"Center":    AlignCenter,
		"justified": AlignJustify,
		"left":      AlignLeft,
		"RIGHT":     AlignRight,
		"diagonal":  AlignNone,
	}
	for in, want := range cases {
		if got := ParseAlignment(in); got != want {
			t.Errorf("ParseAlignment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveProducesValidZip(t *testing.T) {
	doc := buildSampleDocument()
	path := filepath.Join(t.TempDir(), "out.docx")

	if err := doc.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("Saved file is not a valid zip: %v", err)
	}
	defer zr.Close()

	wanted := map[string]bool{
		"[Content_Types].xml": false,
		"word/document.xml":   false,
		"word/styles.xml":     false,
	}
	for _, f := range zr.File {
		if _, ok := wanted[f.Name]; ok {
			wanted[f.Name] = true
		}
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("Failed to open document.xml: %v", err)
			}
			data, _ := io.ReadAll(rc)
			rc.Close()
			if !strings.Contains(string(data), "Revenue grew") {
				t.Error("document.xml does not contain body text")
			}
		}
	}
	for name, found := range wanted {
		if !found {
			t.Errorf("Missing zip entry %s", name)
		}
	}
}

func TestSaveEmbedsImages(t *testing.T) {
	doc := buildSampleDocument()
	doc.AddImage(pngBytes(t), "png", 120, 80)
	path := filepath.Join(t.TempDir(), "out.docx")

	if err := doc.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("Saved file is not a valid zip: %v", err)
	}
	defer zr.Close()

	media := readZipEntry(t, zr, "word/media/image1.png")
	if len(media) != len(pngBytes(t)) {
		t.Errorf("Media part is %d bytes, want %d", len(media), len(pngBytes(t)))
	}

	rels := readZipEntry(t, zr, "word/_rels/document.xml.rels")
	if !strings.Contains(rels, `Target="media/image1.png"`) {
		t.Error("Relationships missing image target")
	}
	if !strings.Contains(rels, `Id="rId2"`) {
		t.Error("Relationships missing image ID")
	}

	types := readZipEntry(t, zr, "[Content_Types].xml")
	if !strings.Contains(types, `Extension="png"`) {
		t.Error("Content types missing png default")
	}

	body := readZipEntry(t, zr, "word/document.xml")
	for _, want := range []string{
		"<w:drawing>",
		`r:embed="rId2"`,
		// 120pt x 80pt in EMUs
		`<wp:extent cx="1524000" cy="1016000">`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("document.xml missing %q", want)
		}
	}
}

func TestImageDisplayWidthClamped(t *testing.T) {
	// 864pt is twice the 6 inch cap; both dimensions must halve.
	xml := toXMLImage(&Image{Data: []byte{1}, Format: "png", WidthPt: 864, HeightPt: 200}, 0)
	if !strings.Contains(xml, `<wp:extent cx="5486400" cy="1270000">`) {
		t.Errorf("Oversized image not clamped: %s", xml)
	}
}

func TestImageRelIDsFollowStyles(t *testing.T) {
	if got := imageRelID(0); got != "rId2" {
		t.Errorf("imageRelID(0) = %q, want rId2", got)
	}
	if got := imageRelID(3); got != "rId5" {
		t.Errorf("imageRelID(3) = %q, want rId5", got)
	}
}

func TestCorePropertiesCarrySourceMetadata(t *testing.T) {
	doc := buildSampleDocument()
	doc.Title = "Q3 Results <draft>"
	doc.Creator = "Smith & Jones"
	path := filepath.Join(t.TempDir(), "out.docx")

	if err := doc.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("Saved file is not a valid zip: %v", err)
	}
	defer zr.Close()

	core := readZipEntry(t, zr, "docProps/core.xml")
	if !strings.Contains(core, "<dc:title>Q3 Results &lt;draft&gt;</dc:title>") {
		t.Errorf("core.xml missing escaped title: %s", core)
	}
	if !strings.Contains(core, "<dc:creator>Smith &amp; Jones</dc:creator>") {
		t.Errorf("core.xml missing escaped creator: %s", core)
	}
}

func TestCorePropertiesDefaultCreator(t *testing.T) {
	core := New().coreXML()
	if !strings.Contains(core, "<dc:creator>godocx</dc:creator>") {
		t.Errorf("Expected fallback creator, got: %s", core)
	}
	if strings.Contains(core, "<dc:title>") {
		t.Error("Empty title should not be emitted")
	}
}

func TestMutationRoundTrip(t *testing.T) {
	doc := buildSampleDocument()
	path := filepath.Join(t.TempDir(), "out.docx")
	if err := doc.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Mutate the way the correction engine does and save again.
	doc.Paragraphs()[1].Runs[0].SizePt = 12
	doc.Cells()[1].Shading = "FF0000"
	if err := doc.Save(path); err != nil {
		t.Fatalf("Save after mutation failed: %v", err)
	}

	data, err := doc.marshalDocument()
	if err != nil {
		t.Fatalf("marshalDocument failed: %v", err)
	}
	if !strings.Contains(string(data), `w:fill="FF0000"`) {
		t.Error("Mutated shading not serialized")
	}
	if !strings.Contains(string(data), `<w:sz w:val="24">`) {
		t.Error("Mutated font size not serialized")
	}
}
