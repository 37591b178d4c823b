package docx

import (
	"archive/zip"
	"fmt"
	"os"
	"strings"
	"time"
)

const contentTypesTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
%s<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>
</Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>
</Relationships>`

const documentRelsTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
%s</Relationships>`

const coreXMLTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
%s<dc:creator>%s</dc:creator>
<dcterms:created xsi:type="dcterms:W3CDTF">%s</dcterms:created>
</cp:coreProperties>`

const stylesXMLTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:docDefaults><w:rPrDefault><w:rPr>
<w:rFonts w:ascii="%s" w:hAnsi="%s"/><w:sz w:val="%s"/>
</w:rPr></w:rPrDefault></w:docDefaults>
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/>
<w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>
</w:styles>`

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// mediaExtension maps an image format to its media part file extension.
func mediaExtension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

// contentTypesXML lists a content-type default for every image format the
// document embeds.
func (d *Document) contentTypesXML(images []*Image) string {
	seen := make(map[string]bool)
	var defaults strings.Builder
	for _, im := range images {
		if seen[im.Format] {
			continue
		}
		seen[im.Format] = true
		fmt.Fprintf(&defaults, "<Default Extension=%q ContentType=\"image/%s\"/>\n", mediaExtension(im.Format), im.Format)
	}
	return fmt.Sprintf(contentTypesTemplate, defaults.String())
}

// documentRelsXML lists the styles part plus one relationship per embedded
// image, with IDs matching the r:embed references in document.xml.
func (d *Document) documentRelsXML(images []*Image) string {
	var rels strings.Builder
	for i, im := range images {
		fmt.Fprintf(&rels,
			"<Relationship Id=%q Type=\"http://schemas.openxmlformats.org/officeDocument/2006/relationships/image\" Target=\"media/image%d.%s\"/>\n",
			imageRelID(i), i+1, mediaExtension(im.Format))
	}
	return fmt.Sprintf(documentRelsTemplate, rels.String())
}

// coreXML fills the core properties from the document metadata. The creator
// falls back to "godocx" when the source carried no author.
func (d *Document) coreXML() string {
	creator := d.Creator
	if creator == "" {
		creator = "godocx"
	}
	title := ""
	if d.Title != "" {
		title = "<dc:title>" + xmlEscaper.Replace(d.Title) + "</dc:title>\n"
	}
	return fmt.Sprintf(coreXMLTemplate, title, xmlEscaper.Replace(creator), time.Now().UTC().Format(time.RFC3339))
}

// Save writes the document as a .docx file at path, replacing any existing
// file.
func (d *Document) Save(path string) error {
	body, err := d.marshalDocument()
	if err != nil {
		return err
	}

	font := d.DefaultFont
	if font == "" {
		font = "Calibri"
	}
	size := d.DefaultSizePt
	if size <= 0 {
		size = 11
	}
	images := d.Images()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create docx file: %w", err)
	}
	defer file.Close()

	zw := zip.NewWriter(file)

	parts := []struct {
		name    string
		content []byte
	}{
		{"[Content_Types].xml", []byte(d.contentTypesXML(images))},
		{"_rels/.rels", []byte(rootRelsXML)},
		{"word/_rels/document.xml.rels", []byte(d.documentRelsXML(images))},
		{"word/document.xml", body},
		{"word/styles.xml", []byte(fmt.Sprintf(stylesXMLTemplate, font, font, halfPoints(size)))},
		{"docProps/core.xml", []byte(d.coreXML())},
	}
	for i, im := range images {
		parts = append(parts, struct {
			name    string
			content []byte
		}{fmt.Sprintf("word/media/image%d.%s", i+1, mediaExtension(im.Format)), im.Data})
	}

	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			zw.Close()
			return fmt.Errorf("unable to create zip entry %s: %w", part.name, err)
		}
		if _, err := w.Write(part.content); err != nil {
			zw.Close()
			return fmt.Errorf("unable to write zip entry %s: %w", part.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("unable to finalize docx file: %w", err)
	}
	return nil
}
