package extract

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

// contentSelectors are tried in order before falling back to body text.
var contentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
}

// htmlText extracts readable text from an HTML attachment, preferring
// the page's main content region when one exists.
func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	var content string
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}

	return collapseSpace(content), nil
}
