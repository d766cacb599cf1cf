package report

import (
	"fmt"
	"strings"

	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/packet"
)

// MarkdownTimelineLimit caps timeline entries in Markdown output.
const MarkdownTimelineLimit = 500

// Markdown renders the report as Markdown. Section order is fixed: metadata,
// scope, actions, timeline, evidence.
func Markdown(p *packet.Packet, evidence []*models.EvidenceFile) string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	inc := p.Incident
	add("# Incident Report: %s", inc.Title)
	add("")
	add("- **Incident ID:** %s", inc.ID)
	add("- **Status:** %s", inc.Status)
	add("- **Severity:** %s", inc.Severity)
	add("- **Created:** %s", timestamp(inc.CreatedAt))
	add("- **Updated:** %s", timestamp(inc.UpdatedAt))
	add("- **Description:** %s", orDefault(inc.Description, none))
	add("")

	add("## Scope")
	add("- **Window:** %s", window(p.Scope))
	add("- **Hosts:** %s", joinOrNone(p.Scope.Hosts))
	add("- **Users:** %s", joinOrNone(p.Scope.Users))
	add("- **Sources:** %s", joinOrNone(p.Scope.Sources))
	add("- **IPs:** %s", joinOrNone(p.Scope.IPs))
	add("")

	add("## Actions (Investigation Log)")
	if len(p.Actions) == 0 {
		add("_No actions recorded._")
	}
	for _, a := range p.Actions {
		add("- **%s** [%s] (%s) %s", timestamp(a.CreatedAt), actionType(a), orDefault(string(a.Actor), unknown), a.Summary)
		if a.Details.IsMapping() && a.Details.Len() > 0 {
			add("")
			add("```json")
			add("%s", indentDetails(a.Details))
			add("```")
			add("")
		}
	}
	add("")

	add("## Timeline")
	if len(p.Timeline) == 0 {
		add("_No timeline entries._")
	}
	for i, e := range p.Timeline {
		if i == MarkdownTimelineLimit {
			break
		}
		typ, src, host, user := timelineParts(e)
		add("- **%s** %s src=%s host=%s user=%s , %s", timestamp(e.Time), typ, src, host, user, e.Summary)
	}
	add("")

	add("## Evidence")
	if len(evidence) == 0 {
		add("_No evidence files recorded._")
	}
	for _, e := range evidence {
		add("- %s (sha256=%s, size=%d bytes, created=%s)", e.Filename, e.SHA256, e.SizeBytes, timestamp(e.CreatedAt))
	}
	add("")

	return strings.Join(lines, "\n")
}
