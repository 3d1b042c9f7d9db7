// Package extract pulls plain text out of uploaded documents so it can be
// embedded in an analysis envelope. Failure modes are local and terminal:
// unsupported type or empty extraction block the flow with a user-visible
// error, there is no retry.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MinDocumentLength is the minimum extracted-text length accepted for an
// analysis request.
const MinDocumentLength = 50

var (
	// ErrUnsupportedType means the file extension has no local extractor.
	ErrUnsupportedType = errors.New("tipo de archivo no soportado")
	// ErrEmptyDocument means extraction produced no usable text.
	ErrEmptyDocument = errors.New("no se pudo extraer texto del documento")
	// ErrDocumentTooShort means the text is under the analysis minimum.
	ErrDocumentTooShort = errors.New("el documento es demasiado corto para analizar")
	// ErrNeedsServerExtraction means the format (legacy .doc) must go through
	// the backend's /extract-text fallback.
	ErrNeedsServerExtraction = errors.New("formato requiere extracción en el servidor")
)

// Text extracts plain text from an uploaded file by extension.
func Text(filename string, content []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return fromPDF(content)
	case ".docx":
		return fromDOCX(content)
	case ".txt":
		return normalize(string(content)), nil
	case ".doc":
		return "", ErrNeedsServerExtraction
	default:
		return "", ErrUnsupportedType
	}
}

// Validate enforces the minimum length for analysis payloads.
func Validate(text string) error {
	if len(strings.TrimSpace(text)) < MinDocumentLength {
		return ErrDocumentTooShort
	}
	return nil
}

func fromPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	if _, err := io.Copy(&b, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	text := normalize(b.String())
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

// fromDOCX walks word/document.xml collecting text runs, one line per
// paragraph.
func fromDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("open document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return "", ErrEmptyDocument
	}
	defer docXML.Close()

	var b strings.Builder
	decoder := xml.NewDecoder(docXML)
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	text := normalize(b.String())
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var out []string
	blank := 0
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
