package extract

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestTextPlain(t *testing.T) {
	text, err := Text("nda.txt", "text/plain; charset=utf-8", []byte("Line one\r\nLine two\r"))
	require.NoError(t, err)
	assert.Equal(t, "Line one\nLine two\n", text)
}

func TestTextByExtension(t *testing.T) {
	text, err := Text("terms.md", "application/octet-stream", []byte("# Terms"))
	require.NoError(t, err)
	assert.Equal(t, "# Terms", text)
}

func TestTextDocx(t *testing.T) {
	doc := buildDocx(t, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>This Agreement is made by </w:t></w:r><w:r><w:t>[Party A]</w:t></w:r></w:p>
<w:p><w:r><w:t>Fee:</w:t><w:tab/><w:t>$____</w:t></w:r></w:p>
</w:body>
</w:document>`)

	text, err := Text("lease.docx", MimeDOCX, doc)
	require.NoError(t, err)
	assert.Equal(t, "This Agreement is made by [Party A]\nFee:\t$____", text)
}

func TestTextDocxWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Text("broken.docx", MimeDOCX, buf.Bytes())
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestTextDocxBodyLimit(t *testing.T) {
	old := maxDocxBody
	maxDocxBody = 256
	t.Cleanup(func() { maxDocxBody = old })

	// highly compressible, so the archive itself stays tiny
	big := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` +
		strings.Repeat("A", 4096) + `</w:t></w:r></w:p></w:body></w:document>`
	doc := buildDocx(t, big)
	require.Less(t, len(doc), 1024)

	_, err := Text("bomb.docx", MimeDOCX, doc)
	assert.ErrorIs(t, err, ErrTooLarge)

	// a header that understates the size is caught while reading
	_, err = io.ReadAll(&cappedReader{r: strings.NewReader(big), left: maxDocxBody})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestTextRejectsUnknownAndEmpty(t *testing.T) {
	_, err := Text("image.png", "image/png", []byte{0x89, 0x50})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Text("blank.txt", MimeText, []byte("  \n "))
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = Text("bad.txt", MimeText, []byte{0xff, 0xfe, 0xfd})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestTextInvalidPDF(t *testing.T) {
	_, err := Text("contract.pdf", MimePDF, []byte("not a pdf"))
	assert.Error(t, err)
}
