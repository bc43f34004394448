package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	docxDocumentXMLPath = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}

// mainDocumentPath returns the main document part named by [Content_Types].xml, or the
// conventional word/document.xml when the package does not declare one.
func mainDocumentPath(zr *zip.Reader) string {
	data, err := readZipFile(zr, contentTypesPath)
	if err != nil || data == nil {
		return docxDocumentXMLPath
	}
	var ct contentTypes
	if err := xml.Unmarshal(data, &ct); err != nil {
		return docxDocumentXMLPath
	}
	for _, o := range ct.Overrides {
		if o.ContentType == docxMainContentType && o.PartName != "" {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return docxDocumentXMLPath
}

// extractDOCX returns the text of a .docx package, one line per non-empty paragraph.
// Runs inside a paragraph are concatenated, tabs become spaces and breaks newlines.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	docPath := mainDocumentPath(zr)
	docXML, err := readZipFile(zr, docPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	if docXML == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docPath)
	}

	var (
		paragraphs []string
		para       strings.Builder
		inText     bool
	)
	flush := func() {
		if p := strings.TrimSpace(para.String()); p != "" {
			paragraphs = append(paragraphs, p)
		}
		para.Reset()
	}
	dec := xml.NewDecoder(bytes.NewReader(docXML))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("extract DOCX: parse %s: %w", docPath, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte(' ')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	flush()
	return strings.Join(paragraphs, "\n"), nil
}
