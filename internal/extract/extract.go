// Package extract turns an uploaded CV file into the plain text stored as
// a session's cvData. Plain text, PDF and DOCX are supported.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// Supported MIME types.
const (
	MimeText = "text/plain"
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	// ErrUnsupportedType is returned for files that are not text, PDF or DOCX.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrNoText is returned when a document parses but contains no text,
	// typically a scanned PDF.
	ErrNoText = errors.New("document contains no extractable text")
)

var extensionTypes = map[string]string{
	".txt":  MimeText,
	".pdf":  MimePDF,
	".docx": MimeDOCX,
}

// DetectType decides the MIME type of an upload. The declared Content-Type
// wins when it is one of the supported types; otherwise the file extension
// and finally the content itself are used.
func DetectType(filename, declared string, data []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			switch mt {
			case MimeText, MimePDF, MimeDOCX:
				return mt
			}
		}
	}

	if mt, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}

	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return sniffed
}

// Text extracts the text of a document of the given MIME type.
//
// Example:
//
//	text, err := extract.Text(extract.DetectType(header.Filename, header.Header.Get("Content-Type"), data), data)
//	if errors.Is(err, extract.ErrUnsupportedType) {
//	    // 400
//	}
func Text(mimeType string, data []byte) (string, error) {
	var text string
	var err error

	switch mimeType {
	case MimeText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("text file is not valid UTF-8")
		}
		text = string(data)
	case MimePDF:
		text, err = pdfText(data)
	case MimeDOCX:
		text, err = docxText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	return stripXMLTags(doc.Editable().GetContent()), nil
}

// stripXMLTags reduces WordprocessingML to its text, breaking lines at
// paragraph ends.
func stripXMLTags(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n")

	var b strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	replacer := strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")
	return replacer.Replace(b.String())
}
