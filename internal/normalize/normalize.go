// Package normalize turns raw source bytes into the canonical text that is hashed,
// chunked and embedded. The same bytes always produce the same text.
package normalize

import (
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/yuin/goldmark"
)

// Input is one raw source document.
type Input struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Result is the normalized form of an Input.
type Result struct {
	SourceType domain.SourceType
	Text       string
	Table      *Table
}

// Normalizer dispatches raw input to a per-format extractor.
type Normalizer struct {
	md goldmark.Markdown
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{md: goldmark.New()}
}

// Normalize detects the source type of in and extracts its canonical text.
// Parse failures are returned as non-retryable INGESTION_ERRORs.
func (n *Normalizer) Normalize(in Input) (*Result, error) {
	if len(in.Data) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	st, err := DetectSourceType(in.Filename, in.ContentType, in.Data)
	if err != nil {
		return nil, err
	}

	res := &Result{SourceType: st}
	switch st {
	case domain.SourceTypeMarkdown:
		res.Text = n.markdownText(in.Data)
	case domain.SourceTypePDF:
		text, err := pdfText(in.Data)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeIngestion, "failed to parse pdf", err)
		}
		res.Text = text
	case domain.SourceTypeTabular:
		table, err := parseTable(in.Data, delimiterFor(in.Filename, in.ContentType))
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeIngestion, "failed to parse tabular source", err)
		}
		res.Table = table
		res.Text = table.Render()
	default:
		if !utf8.Valid(in.Data) {
			return nil, domain.NewValidationError("text source is not valid UTF-8")
		}
		res.Text = string(in.Data)
	}

	res.Text = CleanText(res.Text)
	if res.Text == "" {
		return nil, domain.ErrEmptyDocument
	}
	return res, nil
}

var extensionTypes = map[string]domain.SourceType{
	".md":       domain.SourceTypeMarkdown,
	".markdown": domain.SourceTypeMarkdown,
	".pdf":      domain.SourceTypePDF,
	".csv":      domain.SourceTypeTabular,
	".tsv":      domain.SourceTypeTabular,
	".txt":      domain.SourceTypeText,
	".text":     domain.SourceTypeText,
}

var mimeTypes = map[string]domain.SourceType{
	"text/markdown":             domain.SourceTypeMarkdown,
	"text/x-markdown":           domain.SourceTypeMarkdown,
	"application/pdf":           domain.SourceTypePDF,
	"text/csv":                  domain.SourceTypeTabular,
	"text/tab-separated-values": domain.SourceTypeTabular,
	"text/plain":                domain.SourceTypeText,
}

// DetectSourceType picks the source type from the declared content type, then the filename
// extension, then content sniffing.
func DetectSourceType(filename, contentType string, data []byte) (domain.SourceType, error) {
	if mt := mediaType(contentType); mt != "" {
		if st, ok := mimeTypes[mt]; ok {
			return st, nil
		}
	}
	if st, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return st, nil
	}

	sniffed := mediaType(http.DetectContentType(data))
	switch {
	case sniffed == "application/pdf":
		return domain.SourceTypePDF, nil
	case strings.HasPrefix(sniffed, "text/"):
		return domain.SourceTypeText, nil
	}
	return "", domain.NewValidationError("unsupported content type %q", sniffed)
}

func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

func delimiterFor(filename, contentType string) rune {
	if strings.EqualFold(filepath.Ext(filename), ".tsv") || mediaType(contentType) == "text/tab-separated-values" {
		return '\t'
	}
	return ','
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// CleanText applies the whitespace canonicalization every source type goes through.
func CleanText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
