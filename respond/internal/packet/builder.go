package packet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/payload"
	"github.com/secureops/workbench/respond/internal/repository"
)

// maxEventSummary bounds event summaries, counted in characters.
const maxEventSummary = 220

// summaryKeys are tried in order for a human-readable event line.
var summaryKeys = []string{"message", "summary", "event", "msg", "log", "description"}

// ipKeys are the conventional payload keys that carry addresses.
var ipKeys = []string{"src_ip", "source_ip", "client_ip", "remote_ip", "ip", "src", "dst_ip", "dest_ip"}

// Store is the read side of the repository the builder needs.
type Store interface {
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	ListIncidentAlerts(ctx context.Context, incidentID string) ([]*models.Alert, error)
	ListIncidentActions(ctx context.Context, incidentID string, order repository.SortOrder) ([]*models.IncidentAction, error)
	GetEventsByIDs(ctx context.Context, ids []string) (map[string]*models.Event, error)
}

// Builder assembles packets from the store.
type Builder struct {
	store Store
}

func NewBuilder(store Store) *Builder {
	return &Builder{store: store}
}

// Build returns the packet for incidentID, or an error matching
// repository.ErrIncidentNotFound.
func (b *Builder) Build(ctx context.Context, incidentID string) (*Packet, error) {
	inc, err := b.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	alerts, err := b.store.ListIncidentAlerts(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incident alerts: %w", err)
	}
	actions, err := b.store.ListIncidentActions(ctx, incidentID, repository.Ascending)
	if err != nil {
		return nil, fmt.Errorf("failed to list incident actions: %w", err)
	}

	events := map[string]*models.Event{}
	if ids := eventIDs(alerts); len(ids) > 0 {
		events, err = b.store.GetEventsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load alert events: %w", err)
		}
	}

	return Assemble(inc, alerts, actions, events), nil
}

// Assemble is the pure part of Build. alerts and actions must already be in
// chronological order. Times are normalized to UTC so the serialized packet
// does not depend on the store's session time zone.
func Assemble(inc *models.Incident, alerts []*models.Alert, actions []*models.IncidentAction, events map[string]*models.Event) *Packet {
	p := &Packet{
		Incident: Incident{
			ID:          inc.ID,
			Title:       inc.Title,
			Severity:    inc.Severity,
			Status:      inc.Status,
			CreatedAt:   inc.CreatedAt.UTC(),
			UpdatedAt:   inc.UpdatedAt.UTC(),
			Description: inc.Description,
		},
		Alerts:   make([]Alert, 0, len(alerts)),
		Timeline: make([]TimelineEntry, 0, 2*len(alerts)),
		Actions:  make([]Action, 0, len(actions)),
	}

	var hosts, users, sources, ips orderedSet
	window := TimeWindow{Start: inc.CreatedAt.UTC(), End: inc.UpdatedAt.UTC()}
	seenTime := false
	observe := func(t time.Time) {
		t = t.UTC()
		if !seenTime {
			window = TimeWindow{Start: t, End: t}
			seenTime = true
			return
		}
		if t.Before(window.Start) {
			window.Start = t
		}
		if t.After(window.End) {
			window.End = t
		}
	}

	for _, a := range alerts {
		observe(a.CreatedAt)
		hosts.add(a.Host)
		users.add(a.User)
		sources.add(a.Source)

		p.Alerts = append(p.Alerts, Alert{
			ID:        a.ID,
			CreatedAt: a.CreatedAt.UTC(),
			Severity:  a.Severity,
			RuleName:  a.RuleName,
			Summary:   a.Summary,
			EventID:   a.EventID,
			Host:      Optional(a.Host),
			User:      Optional(a.User),
			Source:    a.Source,
		})
		p.Timeline = append(p.Timeline, TimelineEntry{
			Time:    a.CreatedAt.UTC(),
			Type:    EntryAlert,
			Source:  a.Source,
			Host:    Optional(a.Host),
			User:    Optional(a.User),
			Summary: "[" + a.Severity + "] " + a.RuleName + ": " + a.Summary,
		})

		ev, ok := events[a.EventID]
		if !ok {
			continue
		}
		observe(ev.ReceivedAt)
		hosts.add(ev.Host)
		users.add(ev.User)
		sources.add(ev.Source)
		for _, ip := range ExtractIPs(ev.Raw) {
			ips.add(ip)
		}
		p.Timeline = append(p.Timeline, TimelineEntry{
			Time:    ev.ReceivedAt.UTC(),
			Type:    EntryEvent,
			Source:  ev.Source,
			Host:    Optional(ev.Host),
			User:    Optional(ev.User),
			Summary: EventSummary(ev.Raw),
		})
	}

	// Stable: an alert stays ahead of its companion event on equal times.
	sort.SliceStable(p.Timeline, func(i, j int) bool {
		return p.Timeline[i].Time.Before(p.Timeline[j].Time)
	})

	for _, act := range actions {
		p.Actions = append(p.Actions, Action{
			ID:         act.ID,
			IncidentID: act.IncidentID,
			CreatedAt:  act.CreatedAt.UTC(),
			Actor:      Optional(act.Actor),
			ActionType: act.ActionType,
			Summary:    act.Summary,
			Details:    act.Details,
		})
	}

	p.Scope = Scope{
		TimeWindow: window,
		Hosts:      hosts.list(),
		Users:      users.list(),
		Sources:    sources.list(),
		IPs:        ips.list(),
	}
	return p
}

// EventSummary picks the first non-blank string among the conventional
// message keys, falling back to the payload's canonical text. Either way the
// result is cut to 220 characters.
func EventSummary(raw payload.Value) string {
	if raw.IsMapping() {
		for _, k := range summaryKeys {
			v, _ := raw.Get(k)
			if s, ok := v.AsString(); ok {
				if s = strings.TrimSpace(s); s != "" {
					return truncate(s, maxEventSummary)
				}
			}
		}
	}
	return truncate(raw.Text(), maxEventSummary)
}

// ExtractIPs collects addresses from the conventional IP keys of a mapping
// payload, flattening sequences and dropping blanks and repeats.
func ExtractIPs(raw payload.Value) []string {
	if !raw.IsMapping() {
		return []string{}
	}
	var out orderedSet
	for _, k := range ipKeys {
		v, ok := raw.Get(k)
		if !ok {
			continue
		}
		if s, isStr := v.AsString(); isStr {
			out.add(strings.TrimSpace(s))
			continue
		}
		for _, item := range v.Items() {
			if s, isStr := item.AsString(); isStr {
				out.add(strings.TrimSpace(s))
			}
		}
	}
	return out.list()
}

func eventIDs(alerts []*models.Alert) []string {
	var ids orderedSet
	for _, a := range alerts {
		ids.add(a.EventID)
	}
	return ids.items
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// orderedSet keeps the first occurrence of each non-empty string.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) list() []string {
	if s.items == nil {
		return []string{}
	}
	return s.items
}
