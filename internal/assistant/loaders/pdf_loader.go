package loaders

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

// ExtractPDFText extracts the plain text of each page of a PDF document.
// A malformed document, or a page that cannot be extracted, must never block
// ingestion: failures produce zero pages (or skip the page) rather than an
// error, and the policy record stays usable without searchable content.
func ExtractPDFText(content []byte) (pages []string) {
	// The pdf package panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || text == "" {
			continue
		}
		pages = append(pages, text)
	}
	return pages
}
