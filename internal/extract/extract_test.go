package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDocx assembles a minimal DOCX package with one run per paragraph.
func buildDocx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()

	var body bytes.Buffer
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}

	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body.String() + `</w:body></w:document>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		declared string
		data     []byte
		want     string
	}{
		{"declared pdf", "cv.bin", "application/pdf", nil, MimePDF},
		{"declared text with charset", "cv", "text/plain; charset=utf-8", nil, MimeText},
		{"extension wins over octet stream", "CV.DOCX", "application/octet-stream", nil, MimeDOCX},
		{"extension only", "cv.pdf", "", nil, MimePDF},
		{"sniffed text", "cv", "", []byte("Jan Kowalski\nGo developer"), MimeText},
		{"sniffed pdf", "upload", "", []byte("%PDF-1.4\n"), MimePDF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectType(tt.filename, tt.declared, tt.data))
		})
	}
}

func TestText(t *testing.T) {
	t.Run("plain text is trimmed", func(t *testing.T) {
		text, err := Text(MimeText, []byte("  Jan Kowalski\nDoświadczenie: 10 lat\n\n"))
		require.NoError(t, err)
		assert.Equal(t, "Jan Kowalski\nDoświadczenie: 10 lat", text)
	})

	t.Run("rejects invalid utf8", func(t *testing.T) {
		_, err := Text(MimeText, []byte{0xff, 0xfe, 0xfd})
		assert.Error(t, err)
	})

	t.Run("empty document has no text", func(t *testing.T) {
		_, err := Text(MimeText, []byte("   \n"))
		assert.True(t, errors.Is(err, ErrNoText))
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := Text("image/png", []byte{0x89, 'P', 'N', 'G'})
		assert.True(t, errors.Is(err, ErrUnsupportedType))
	})

	t.Run("docx paragraphs become lines", func(t *testing.T) {
		data := buildDocx(t, "Jan Kowalski", "Senior Go Developer &amp; Architect")

		text, err := Text(MimeDOCX, data)
		require.NoError(t, err)
		assert.Equal(t, "Jan Kowalski\nSenior Go Developer & Architect", text)
	})

	t.Run("corrupted docx", func(t *testing.T) {
		_, err := Text(MimeDOCX, []byte("not a zip"))
		assert.Error(t, err)
	})

	t.Run("corrupted pdf", func(t *testing.T) {
		_, err := Text(MimePDF, []byte("%PDF-1.4 truncated"))
		assert.Error(t, err)
	})
}

func TestStripXMLTags(t *testing.T) {
	in := `<w:p><w:r><w:t xml:space="preserve">A &lt;b&gt; </w:t></w:r></w:p><w:p><w:r><w:t>C</w:t></w:r></w:p>`
	assert.Equal(t, "A <b> \nC\n", stripXMLTags(in))
}
