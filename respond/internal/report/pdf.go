package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/packet"
)

// Render caps for the paginated document.
const (
	PDFActionLimit   = 200
	PDFTimelineLimit = 250
	PDFEvidenceLimit = 200
)

const (
	keyColWidth   = 120.0
	valueColWidth = 420.0
	cellPadding   = 6.0
	bodyFontSize  = 9.0
	lineHeight    = 11.0
)

type row struct{ key, value string }

func metadataRows(inc packet.Incident) []row {
	return []row{
		{"Incident ID", inc.ID},
		{"Status", inc.Status},
		{"Severity", inc.Severity},
		{"Created", timestamp(inc.CreatedAt)},
		{"Updated", timestamp(inc.UpdatedAt)},
		{"Description", orDefault(inc.Description, none)},
	}
}

func scopeRows(s packet.Scope) []row {
	return []row{
		{"Window", window(s)},
		{"Hosts", joinOrNone(s.Hosts)},
		{"Users", joinOrNone(s.Users)},
		{"Sources", joinOrNone(s.Sources)},
		{"IPs", joinOrNone(s.IPs)},
	}
}

func actionItems(actions []packet.Action) []string {
	n := min(len(actions), PDFActionLimit)
	out := make([]string, 0, n)
	for _, a := range actions[:n] {
		out = append(out, fmt.Sprintf("%s  [%s]  (%s)  %s",
			timestamp(a.CreatedAt), actionType(a), orDefault(string(a.Actor), unknown), a.Summary))
	}
	return out
}

func timelineItems(timeline []packet.TimelineEntry) []string {
	n := min(len(timeline), PDFTimelineLimit)
	out := make([]string, 0, n)
	for _, e := range timeline[:n] {
		typ, src, host, user := timelineParts(e)
		out = append(out, fmt.Sprintf("%s  %s  src=%s  host=%s  user=%s , %s",
			timestamp(e.Time), typ, src, host, user, e.Summary))
	}
	return out
}

func evidenceItems(evidence []*models.EvidenceFile) []string {
	n := min(len(evidence), PDFEvidenceLimit)
	out := make([]string, 0, n)
	for _, e := range evidence[:n] {
		out = append(out, fmt.Sprintf("%s  sha256=%s  size=%d bytes  created=%s",
			e.Filename, e.SHA256, e.SizeBytes, timestamp(e.CreatedAt)))
	}
	return out
}

// PDF renders the report as a Letter-sized PDF.
func PDF(p *packet.Packet, evidence []*models.EvidenceFile) ([]byte, error) {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetCreationDate(p.Incident.UpdatedAt.UTC())
	doc.SetCatalogSort(true)
	doc.SetTitle("Incident Report - "+p.Incident.Title, true)
	doc.SetMargins(36, 36, 36)
	doc.SetAutoPageBreak(true, 36)
	doc.AddPage()

	w := &pdfWriter{doc: doc, tr: doc.UnicodeTranslatorFromDescriptor("")}

	doc.SetFont("Helvetica", "B", 18)
	doc.MultiCell(0, 22, w.tr("Incident Report: "+p.Incident.Title), "", "C", false)
	doc.Ln(10)

	w.table(metadataRows(p.Incident), true)
	doc.Ln(12)

	w.heading("Scope")
	doc.Ln(4)
	w.table(scopeRows(p.Scope), false)
	doc.Ln(12)

	w.section("Actions (Investigation Log)", actionItems(p.Actions), "No actions recorded.")
	doc.Ln(12)
	w.section("Timeline", timelineItems(p.Timeline), "No timeline entries.")
	doc.Ln(12)
	w.section("Evidence", evidenceItems(evidence), "No evidence files recorded.")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfWriter struct {
	doc *fpdf.Fpdf
	tr  func(string) string
}

func (w *pdfWriter) heading(text string) {
	w.doc.SetFont("Helvetica", "B", 14)
	w.doc.CellFormat(0, 18, w.tr(text), "", 1, "L", false, 0, "")
}

func (w *pdfWriter) section(title string, items []string, empty string) {
	w.heading(title)
	w.doc.Ln(6)
	w.doc.SetFont("Helvetica", "", bodyFontSize)
	if len(items) == 0 {
		items = []string{empty}
	}
	for _, item := range items {
		w.doc.MultiCell(0, lineHeight, w.tr(item), "", "L", false)
		w.doc.Ln(2)
	}
}

// table draws a two column grid; the value column wraps.
func (w *pdfWriter) table(rows []row, shadeFirst bool) {
	doc := w.doc
	doc.SetFont("Helvetica", "", bodyFontSize)
	doc.SetDrawColor(211, 211, 211)
	doc.SetLineWidth(0.25)
	doc.SetFillColor(245, 245, 245)
	left, _, _, bottom := doc.GetMargins()
	_, pageHeight := doc.GetPageSize()

	for i, r := range rows {
		lines := w.split(r.value, valueColWidth-2*cellPadding)
		if len(lines) == 0 {
			lines = []string{""}
		}
		height := float64(len(lines))*lineHeight + 2*cellPadding
		if doc.GetY()+height > pageHeight-bottom {
			doc.AddPage()
		}
		y := doc.GetY()
		style := "D"
		if shadeFirst && i == 0 {
			style = "FD"
		}
		doc.Rect(left, y, keyColWidth, height, style)
		doc.Rect(left+keyColWidth, y, valueColWidth, height, style)

		doc.SetXY(left+cellPadding, y+cellPadding)
		doc.CellFormat(keyColWidth-2*cellPadding, lineHeight, w.tr(r.key), "", 0, "L", false, 0, "")
		for j, line := range lines {
			doc.SetXY(left+keyColWidth+cellPadding, y+cellPadding+float64(j)*lineHeight)
			doc.CellFormat(valueColWidth-2*cellPadding, lineHeight, line, "", 0, "L", false, 0, "")
		}
		doc.SetXY(left, y+height)
	}
}

// split wraps text to width and returns code page encoded lines. SplitText
// looks up glyph widths by rune, so each translated byte is widened to the
// rune of the same value before wrapping and narrowed back afterwards.
func (w *pdfWriter) split(text string, width float64) []string {
	encoded := w.tr(text)
	wide := make([]rune, len(encoded))
	for i := 0; i < len(encoded); i++ {
		wide[i] = rune(encoded[i])
	}
	lines := w.doc.SplitText(string(wide), width)
	for i, line := range lines {
		lines[i] = narrow(line)
	}
	return lines
}

func narrow(s string) string {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		b = append(b, byte(r))
	}
	return string(b)
}
