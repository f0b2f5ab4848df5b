package analysis

import (
	"bytes"
	"fmt"
	"log"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
)

// FormatExtractor routes binaries to a format-specific parser: PDFs go
// through ledongthuc/pdf (page-ordered text plus the Info dictionary),
// everything else through docconv, which flattens the document into a single
// logical page.
type FormatExtractor struct {
	useReadability bool
}

var _ PageExtractor = (*FormatExtractor)(nil)

func NewFormatExtractor(useReadability bool) *FormatExtractor {
	return &FormatExtractor{useReadability: useReadability}
}

func (e *FormatExtractor) ExtractPages(data []byte, contentType string) ([]string, ExtractedMeta, error) {
	if isPDF(data, contentType) {
		return extractPDFPages(data)
	}
	return e.extractDocconv(data, contentType)
}

func isPDF(data []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// extractPDFPages reads one text blob per physical page. Pages whose text
// cannot be decoded are kept as empty pages so page indices stay aligned with
// the physical document.
func extractPDFPages(data []byte) ([]string, ExtractedMeta, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, ExtractedMeta{}, fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("pdf: page %d text extraction failed: %v", i, err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	return pages, pdfInfoMeta(reader), nil
}

// pdfInfoMeta pulls Title and Author out of the PDF Info dictionary when
// present.
func pdfInfoMeta(reader *pdf.Reader) ExtractedMeta {
	var meta ExtractedMeta
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return meta
	}
	if v := info.Key("Title"); v.Kind() == pdf.String {
		meta.Title = strings.TrimSpace(v.RawString())
	}
	if v := info.Key("Author"); v.Kind() == pdf.String {
		meta.Author = strings.TrimSpace(v.RawString())
	}
	return meta
}

// extractDocconv converts non-PDF formats (docx, html, txt, ...) via docconv.
// docconv has no page model, so the whole body becomes a single page.
func (e *FormatExtractor) extractDocconv(data []byte, contentType string) ([]string, ExtractedMeta, error) {
	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return nil, ExtractedMeta{}, fmt.Errorf("docconv %q: %w", contentType, err)
	}
	if strings.TrimSpace(res.Body) == "" {
		return nil, ExtractedMeta{}, fmt.Errorf("docconv %q: empty body", contentType)
	}

	meta := ExtractedMeta{}
	if res.Meta != nil {
		meta.Title = res.Meta["Title"]
		meta.Author = res.Meta["Author"]
	}
	return []string{res.Body}, meta, nil
}
