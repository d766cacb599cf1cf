// Package report renders incident packets as Markdown or PDF documents.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/packet"
	"github.com/secureops/workbench/respond/internal/payload"
)

// Format selects the document type.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatPDF      Format = "pdf"
)

// ParseFormat accepts "md", "markdown" and "pdf".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

// ContentType returns the media type of the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/markdown; charset=utf-8"
}

// Filename is the attachment name for the format.
func (f Format) Filename() string {
	return "incident-report." + string(f)
}

// Document is a rendered report.
type Document struct {
	Format      Format
	Filename    string
	ContentType string
	Body        []byte
}

// Render produces a document. Missing optional data never fails a render.
func Render(p *packet.Packet, evidence []*models.EvidenceFile, format Format) (*Document, error) {
	var body []byte
	switch format {
	case FormatMarkdown:
		body = []byte(Markdown(p, evidence))
	case FormatPDF:
		var err error
		if body, err = PDF(p, evidence); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
	return &Document{
		Format:      format,
		Filename:    format.Filename(),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

// Placeholders for absent values.
const (
	none    = "none"
	unknown = "unknown"
	na      = "n/a"
)

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return none
	}
	return strings.Join(items, ", ")
}

func actionType(a packet.Action) string {
	return orDefault(a.ActionType, models.ActionTypeNote)
}

// indentDetails pretty-prints a details mapping with two-space indentation.
func indentDetails(v payload.Value) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return v.Text()
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func window(s packet.Scope) string {
	return timestamp(s.TimeWindow.Start) + " to " + timestamp(s.TimeWindow.End)
}

// timelineParts returns type, source, host and user with placeholders applied.
func timelineParts(e packet.TimelineEntry) (typ, src, host, user string) {
	return strings.ToUpper(e.Type), orDefault(e.Source, na), orDefault(string(e.Host), na), orDefault(string(e.User), na)
}
