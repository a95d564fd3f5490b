package extract_test

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/pkg/extract"
	"github.com/stretchr/testify/assert"
)

func dataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// buildTestPDF assembles a minimal single-font PDF with one text object
// per page, computing the xref table from real byte offsets.
func buildTestPDF(t *testing.T, pageTexts []string) []byte {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int
	addObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")

	n := len(pageTexts)
	kids := make([]string, n)
	for i := range pageTexts {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	fontObj := 3 + 2*n

	addObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	addObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n",
		strings.Join(kids, " "), n))

	for i, text := range pageTexts {
		pageObj := 3 + 2*i
		contentObj := pageObj + 1
		addObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>\nendobj\n",
			pageObj, fontObj, contentObj))

		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		addObj(fmt.Sprintf("%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n",
			contentObj, len(stream), stream))
	}

	addObj(fmt.Sprintf("%d 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n",
		fontObj))

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xref)

	return buf.Bytes()
}

func TestExtractEmpty(t *testing.T) {
	e := extract.New()
	assert.Equal(t, "", e.Extract(nil))
	assert.Equal(t, "", e.Extract([]models.Attachment{}))
}

func TestExtractSkipsUnsupportedTypes(t *testing.T) {
	e := extract.New()
	got := e.Extract([]models.Attachment{{
		Name:        "photo.png",
		ContentType: "image/png",
		URL:         dataURL("image/png", []byte{0x89, 0x50, 0x4e, 0x47}),
	}})
	assert.Equal(t, "", got)
}

func TestExtractPlainText(t *testing.T) {
	e := extract.New()
	got := e.Extract([]models.Attachment{{
		Name:        "notes.txt",
		ContentType: "text/plain",
		URL:         dataURL("text/plain", []byte("remember the milk\n")),
	}})

	assert.Contains(t, got, "--- Attachment: notes.txt ---")
	assert.Contains(t, got, "remember the milk")
	assert.Contains(t, got, "--- End of attachment: notes.txt ---")
}

func TestExtractHTMLMainContent(t *testing.T) {
	page := `<html><body><nav>menu</nav> <main> <h1>Guide</h1> <p>Useful   content here.</p> </main></body></html>`

	e := extract.New()
	got := e.Extract([]models.Attachment{{
		Name:        "guide.html",
		ContentType: "text/html",
		URL:         dataURL("text/html", []byte(page)),
	}})

	assert.Contains(t, got, "Guide")
	assert.Contains(t, got, "Useful content here.")
	assert.NotContains(t, got, "menu")
}

func TestExtractPDF(t *testing.T) {
	pdfBytes := buildTestPDF(t, []string{"Hello", "World"})

	e := extract.New()
	got := e.Extract([]models.Attachment{{
		Name:        "report.pdf",
		ContentType: "application/pdf",
		URL:         dataURL("application/pdf", pdfBytes),
	}})

	assert.Contains(t, got, "--- Attachment: report.pdf ---")
	assert.Contains(t, got, "--- Page 1 ---")
	assert.Contains(t, got, "Hello")
	assert.Contains(t, got, "--- Page 2 ---")
	assert.Contains(t, got, "World")
	assert.Contains(t, got, "--- End of attachment: report.pdf ---")
}

func TestExtractRejectsNonDataURL(t *testing.T) {
	e := extract.New()
	got := e.Extract([]models.Attachment{{
		Name:        "remote.pdf",
		ContentType: "application/pdf",
		URL:         "https://example.com/remote.pdf",
	}})
	assert.Contains(t, got, "Could not extract text from remote.pdf")
}

func TestExtractBadBase64(t *testing.T) {
	e := extract.New()
	got := e.Extract([]models.Attachment{{
		Name:        "broken.pdf",
		ContentType: "application/pdf",
		URL:         "data:application/pdf;base64,!!!not-base64!!!",
	}})
	assert.Contains(t, got, "Could not extract text from broken.pdf")
}

func TestExtractMalformedPDF(t *testing.T) {
	e := extract.New()
	got := e.Extract([]models.Attachment{{
		Name:        "corrupt.pdf",
		ContentType: "application/pdf",
		URL:         dataURL("application/pdf", []byte("definitely not a pdf")),
	}})
	assert.Contains(t, got, "Could not extract text from corrupt.pdf")
}

func TestExtractIsolatesFailures(t *testing.T) {
	e := extract.New()
	got := e.Extract([]models.Attachment{
		{Name: "broken.pdf", ContentType: "application/pdf", URL: "data:application/pdf;base64,%%%"},
		{Name: "notes.txt", ContentType: "text/plain", URL: dataURL("text/plain", []byte("still here"))},
	})

	assert.Contains(t, got, "Could not extract text from broken.pdf")
	assert.Contains(t, got, "still here")
}

func TestExtractSizeCap(t *testing.T) {
	e := extract.NewWithConfig(extract.ExtractorConfig{MaxFileBytes: 8})
	got := e.Extract([]models.Attachment{{
		Name:        "big.txt",
		ContentType: "text/plain",
		URL:         dataURL("text/plain", []byte("this is more than eight bytes")),
	}})
	assert.Contains(t, got, "Could not extract text from big.txt")
}

func TestExtractContentTypeParameters(t *testing.T) {
	e := extract.New()
	got := e.Extract([]models.Attachment{{
		Name:        "notes.txt",
		ContentType: "text/plain; charset=utf-8",
		URL:         dataURL("text/plain", []byte("with parameters")),
	}})
	assert.Contains(t, got, "with parameters")
}
