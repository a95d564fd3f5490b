// Package extract turns chat attachments into plain text that can be
// inlined into a model prompt. Attachments arrive as base64 data URLs;
// nothing here touches the network or the filesystem.
//
// Extract never fails: unsupported content types are skipped, and any
// attachment that cannot be decoded contributes a bracketed diagnostic
// in its place so one bad file never hides the others.
package extract

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"mime"
	"strings"

	"github.com/parleychat/parley/internal/models"
)

const defaultMaxFileBytes = 20 << 20 // 20 MiB

type ExtractorConfig struct {
	MaxFileBytes int64
}

type Extractor struct {
	config ExtractorConfig
}

func NewWithConfig(config ExtractorConfig) *Extractor {
	if config.MaxFileBytes == 0 {
		config.MaxFileBytes = defaultMaxFileBytes
	}
	return &Extractor{config: config}
}

func New() *Extractor {
	return NewWithConfig(ExtractorConfig{})
}

// Extract returns the combined text of all readable attachments, one
// banner-wrapped block per attachment, joined by blank lines. An empty
// or nil slice yields an empty string.
func (e *Extractor) Extract(attachments []models.Attachment) string {
	var blocks []string
	for _, att := range attachments {
		log.Printf("extracting attachment name=%q type=%q", att.Name, att.ContentType)
		if block, ok := e.extractOne(att); ok {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func (e *Extractor) extractOne(att models.Attachment) (string, bool) {
	switch mediaType(att.ContentType) {
	case "application/pdf":
		return e.extractPDF(att), true
	case "text/html":
		return e.extractHTML(att), true
	case "text/plain", "text/markdown":
		return e.extractPlain(att), true
	default:
		// Images and other unsupported types are skipped without a
		// trace. New content types slot in as cases here.
		return "", false
	}
}

func (e *Extractor) extractPDF(att models.Attachment) string {
	data, err := e.decode(att)
	if err != nil {
		return placeholder(att.Name, err)
	}

	pages, err := pdfPages(data)
	if err != nil {
		return placeholder(att.Name, err)
	}

	var b strings.Builder
	for i, page := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Page %d ---\n", i+1)
		b.WriteString(page)
	}
	return banner(att.Name, b.String())
}

func (e *Extractor) extractHTML(att models.Attachment) string {
	data, err := e.decode(att)
	if err != nil {
		return placeholder(att.Name, err)
	}

	text, err := htmlText(data)
	if err != nil {
		return placeholder(att.Name, err)
	}
	return banner(att.Name, text)
}

func (e *Extractor) extractPlain(att models.Attachment) string {
	data, err := e.decode(att)
	if err != nil {
		return placeholder(att.Name, err)
	}
	return banner(att.Name, strings.TrimSpace(string(data)))
}

func (e *Extractor) decode(att models.Attachment) ([]byte, error) {
	data, err := decodeDataURL(att.URL)
	if err != nil {
		return nil, err
	}
	if e.config.MaxFileBytes > 0 && int64(len(data)) > e.config.MaxFileBytes {
		return nil, fmt.Errorf("file exceeds %d byte limit", e.config.MaxFileBytes)
	}
	return data, nil
}

func decodeDataURL(u string) ([]byte, error) {
	if !strings.HasPrefix(u, "data:") {
		return nil, errors.New("not a data URL")
	}
	comma := strings.IndexByte(u, ',')
	if comma < 0 {
		return nil, errors.New("malformed data URL")
	}
	if !strings.HasSuffix(u[:comma], ";base64") {
		return nil, errors.New("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(u[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %v", err)
	}
	return data, nil
}

// mediaType strips parameters like charset and normalizes case.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// collapseSpace joins all whitespace-separated fragments with single
// spaces, in source order.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func banner(name, body string) string {
	return fmt.Sprintf("--- Attachment: %s ---\n%s\n--- End of attachment: %s ---", name, body, name)
}

func placeholder(name string, err error) string {
	return fmt.Sprintf("[Could not extract text from %s: %v]", name, err)
}
