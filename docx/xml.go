package docx

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// OOXML serialization. Element names carry the "w:" prefix directly in
// xml.Name.Local; the namespace is declared once on the w:document root.

const documentHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><w:body>`

// sectPr: US Letter with 1 inch margins, in twips.
const documentFooter = `<w:sectPr><w:pgSz w:w="12240" w:h="15840"/>` +
	`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440"/>` +
	`</w:sectPr></w:body></w:document>`

type xmlVal struct {
	XMLName xml.Name
	Val     string `xml:"w:val,attr"`
}

func val(name, v string) *xmlVal {
	return &xmlVal{XMLName: xml.Name{Local: name}, Val: v}
}

type xmlFlag struct {
	XMLName xml.Name
}

func flag(name string) *xmlFlag {
	return &xmlFlag{XMLName: xml.Name{Local: name}}
}

type xmlFonts struct {
	XMLName xml.Name `xml:"w:rFonts"`
	ASCII   string   `xml:"w:ascii,attr"`
	HANSI   string   `xml:"w:hAnsi,attr"`
}

type xmlSpacing struct {
	XMLName xml.Name `xml:"w:spacing"`
	Before  string   `xml:"w:before,attr,omitempty"`
	After   string   `xml:"w:after,attr,omitempty"`
}

type xmlRunProps struct {
	XMLName   xml.Name `xml:"w:rPr"`
	Fonts     *xmlFonts
	Bold      *xmlFlag
	Italic    *xmlFlag
	Underline *xmlVal
	Size      *xmlVal
	Color     *xmlVal
}

type xmlText struct {
	XMLName xml.Name `xml:"w:t"`
	Space   string   `xml:"xml:space,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

type xmlRun struct {
	XMLName xml.Name `xml:"w:r"`
	Props   *xmlRunProps
	Text    *xmlText
}

type xmlParaProps struct {
	XMLName xml.Name `xml:"w:pPr"`
	Style   *xmlVal
	Spacing *xmlSpacing
	Jc      *xmlVal
}

type xmlPara struct {
	XMLName xml.Name `xml:"w:p"`
	Props   *xmlParaProps
	Runs    []xmlRun
}

type xmlShd struct {
	XMLName xml.Name `xml:"w:shd"`
	Val     string   `xml:"w:val,attr"`
	Fill    string   `xml:"w:fill,attr"`
}

type xmlBorder struct {
	XMLName xml.Name
	Val     string `xml:"w:val,attr"`
	Sz      string `xml:"w:sz,attr"`
	Space   string `xml:"w:space,attr"`
	Color   string `xml:"w:color,attr"`
}

func singleBorder(side string) xmlBorder {
	return xmlBorder{
		XMLName: xml.Name{Local: "w:" + side},
		Val:     "single",
		Sz:      "4",
		Space:   "0",
		Color:   "000000",
	}
}

type xmlCellBorders struct {
	XMLName xml.Name `xml:"w:tcBorders"`
	Borders []xmlBorder
}

type xmlCellProps struct {
	XMLName xml.Name `xml:"w:tcPr"`
	Shading *xmlShd
	Borders *xmlCellBorders
}

type xmlCell struct {
	XMLName    xml.Name `xml:"w:tc"`
	Props      *xmlCellProps
	Paragraphs []xmlPara
}

type xmlRow struct {
	XMLName xml.Name `xml:"w:tr"`
	Cells   []xmlCell
}

type xmlTableProps struct {
	XMLName xml.Name `xml:"w:tblPr"`
	Width   *xmlTableWidth
	Layout  *xmlVal
}

type xmlTableWidth struct {
	XMLName xml.Name `xml:"w:tblW"`
	W       string   `xml:"w:w,attr"`
	Type    string   `xml:"w:type,attr"`
}

type xmlTable struct {
	XMLName xml.Name `xml:"w:tbl"`
	Props   xmlTableProps
	Rows    []xmlRow
}

const (
	emuPerPoint = 12700

	// maxImageWidthPt caps picture display width at 6 inches so wide images
	// stay inside the page margins; height scales to keep the aspect ratio.
	maxImageWidthPt = 432.0
)

// drawingXMLTemplate is the inline DrawingML for one picture, wrapped in a
// centered paragraph. Parameters: extent cx, cy (EMUs), docPr id, picture
// name id, cNvPr id, picture name id, relationship ID, ext cx, cy.
const drawingXMLTemplate = `<w:p><w:pPr><w:jc w:val="center"></w:jc></w:pPr><w:r><w:drawing>` +
	`<wp:inline distT="0" distB="0" distL="0" distR="0">` +
	`<wp:extent cx="%d" cy="%d"></wp:extent>` +
	`<wp:docPr id="%d" name="Picture %d"></wp:docPr>` +
	`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">` +
	`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">` +
	`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">` +
	`<pic:nvPicPr><pic:cNvPr id="%d" name="Picture %d"></pic:cNvPr><pic:cNvPicPr></pic:cNvPicPr></pic:nvPicPr>` +
	`<pic:blipFill><a:blip r:embed="%s"></a:blip><a:stretch><a:fillRect></a:fillRect></a:stretch></pic:blipFill>` +
	`<pic:spPr><a:xfrm><a:off x="0" y="0"></a:off><a:ext cx="%d" cy="%d"></a:ext></a:xfrm>` +
	`<a:prstGeom prst="rect"><a:avLst></a:avLst></a:prstGeom></pic:spPr>` +
	`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`

// imageRelID returns the relationship ID for the index-th body image. rId1
// is the styles part, images follow.
func imageRelID(index int) string {
	return "rId" + strconv.Itoa(index+2)
}

// toXMLImage serializes one picture. The display box is clamped to the page
// content width, preserving aspect ratio.
func toXMLImage(im *Image, index int) string {
	width := im.WidthPt
	height := im.HeightPt
	if width <= 0 || height <= 0 {
		width, height = maxImageWidthPt, maxImageWidthPt
	}
	if width > maxImageWidthPt {
		height = height * maxImageWidthPt / width
		width = maxImageWidthPt
	}
	cx := int(width*emuPerPoint + 0.5)
	cy := int(height*emuPerPoint + 0.5)
	id := index + 1
	return fmt.Sprintf(drawingXMLTemplate, cx, cy, id, id, id, id, imageRelID(index), cx, cy)
}

// halfPoints converts a point size to the half-point string OOXML expects.
func halfPoints(pt float64) string {
	return strconv.Itoa(int(pt*2 + 0.5))
}

// twentieths converts a point size to twentieths of a point.
func twentieths(pt float64) string {
	return strconv.Itoa(int(pt*20 + 0.5))
}

func toXMLRun(r *Run) xmlRun {
	out := xmlRun{
		Text: &xmlText{Value: r.Text, Space: "preserve"},
	}
	props := &xmlRunProps{}
	hasProps := false
	if r.Font != "" {
		props.Fonts = &xmlFonts{ASCII: r.Font, HANSI: r.Font}
		hasProps = true
	}
	if r.Bold {
		props.Bold = flag("w:b")
		hasProps = true
	}
	if r.Italic {
		props.Italic = flag("w:i")
		hasProps = true
	}
	if r.Underline {
		props.Underline = val("w:u", "single")
		hasProps = true
	}
	if r.SizePt > 0 {
		props.Size = val("w:sz", halfPoints(r.SizePt))
		hasProps = true
	}
	if r.Color != "" {
		props.Color = val("w:color", strings.TrimPrefix(r.Color, "#"))
		hasProps = true
	}
	if hasProps {
		out.Props = props
	}
	return out
}

func toXMLPara(p *Paragraph) xmlPara {
	out := xmlPara{}
	props := &xmlParaProps{}
	hasProps := false
	if p.Style != "" {
		props.Style = val("w:pStyle", p.Style)
		hasProps = true
	}
	if p.SpaceBeforePt > 0 || p.SpaceAfterPt > 0 {
		spacing := &xmlSpacing{}
		if p.SpaceBeforePt > 0 {
			spacing.Before = twentieths(p.SpaceBeforePt)
		}
		if p.SpaceAfterPt > 0 {
			spacing.After = twentieths(p.SpaceAfterPt)
		}
		props.Spacing = spacing
		hasProps = true
	}
	if p.Alignment != AlignNone {
		props.Jc = val("w:jc", string(p.Alignment))
		hasProps = true
	}
	if hasProps {
		out.Props = props
	}
	for _, r := range p.Runs {
		out.Runs = append(out.Runs, toXMLRun(r))
	}
	// Word requires at least one run-free paragraph to still be a w:p; an
	// empty Runs slice marshals fine.
	return out
}

func toXMLCell(c *Cell) xmlCell {
	out := xmlCell{}
	props := &xmlCellProps{}
	hasProps := false
	if c.Shading != "" {
		props.Shading = &xmlShd{Val: "clear", Fill: strings.TrimPrefix(c.Shading, "#")}
		hasProps = true
	}
	if c.Borders {
		props.Borders = &xmlCellBorders{
			Borders: []xmlBorder{
				singleBorder("top"),
				singleBorder("left"),
				singleBorder("bottom"),
				singleBorder("right"),
			},
		}
		hasProps = true
	}
	if hasProps {
		out.Props = props
	}
	if len(c.Paragraphs) == 0 {
		// Word requires every cell to contain at least one paragraph.
		out.Paragraphs = append(out.Paragraphs, xmlPara{})
	}
	for _, p := range c.Paragraphs {
		out.Paragraphs = append(out.Paragraphs, toXMLPara(p))
	}
	return out
}

func toXMLTable(t *Table) xmlTable {
	out := xmlTable{
		Props: xmlTableProps{
			Width:  &xmlTableWidth{W: "5000", Type: "pct"},
			Layout: val("w:tblLayout", "autofit"),
		},
	}
	for _, row := range t.Rows {
		xr := xmlRow{}
		for _, cell := range row.Cells {
			xr.Cells = append(xr.Cells, toXMLCell(cell))
		}
		out.Rows = append(out.Rows, xr)
	}
	return out
}

// marshalDocument produces the full word/document.xml content.
func (d *Document) marshalDocument() ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(documentHeader)
	imageIndex := 0
	for _, b := range d.Blocks {
		var (
			data []byte
			err  error
		)
		switch el := b.(type) {
		case *Paragraph:
			data, err = xml.Marshal(toXMLPara(el))
		case *Table:
			data, err = xml.Marshal(toXMLTable(el))
		case *Image:
			sb.WriteString(toXMLImage(el, imageIndex))
			imageIndex++
			continue
		default:
			err = fmt.Errorf("unknown block type %T", b)
		}
		if err != nil {
			return nil, fmt.Errorf("marshal document body: %w", err)
		}
		sb.Write(data)
	}
	sb.WriteString(documentFooter)
	return []byte(sb.String()), nil
}
