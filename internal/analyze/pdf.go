package analyze

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ErrBadSource marks a source document that cannot be decoded. It is a
// permanent condition for the object as stored; re-running the job reads
// the same bytes.
var ErrBadSource = errors.New("documento de origem ilegível")

// ExtractPDFText reads PDF bytes and returns plain text, used when a
// template source is imported as a PDF instead of a text export.
func ExtractPDFText(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadSource, err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrBadSource, page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// SourceText decodes an imported template object into analyzable text. PDF
// sources are detected by magic bytes; everything else is treated as UTF-8
// text (Docs exports arrive as text/plain).
func SourceText(data []byte) (string, error) {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return ExtractPDFText(data)
	}
	return string(data), nil
}
