package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/secureops/workbench/respond/internal/models"
)

// MemoryRepository is an in-process Repository. A single mutex serializes
// every method, which makes each one atomic. It backs the "memory" database
// driver and the service tests.
type MemoryRepository struct {
	mu        sync.Mutex
	rules     map[string]*models.Rule
	events    map[string]*models.Event
	imports   map[string]*models.ImportJob
	alerts    map[string]*models.Alert
	alertKeys map[models.AlertKey]string
	incidents map[string]*models.Incident
	links     map[string]map[string]time.Time // incident id -> alert id -> added_at
	actions   map[string][]*models.IncidentAction
	evidence  map[string][]*models.EvidenceFile
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rules:     make(map[string]*models.Rule),
		events:    make(map[string]*models.Event),
		imports:   make(map[string]*models.ImportJob),
		alerts:    make(map[string]*models.Alert),
		alertKeys: make(map[models.AlertKey]string),
		incidents: make(map[string]*models.Incident),
		links:     make(map[string]map[string]time.Time),
		actions:   make(map[string][]*models.IncidentAction),
		evidence:  make(map[string][]*models.EvidenceFile),
	}
}

// newestFirst orders by timestamp descending, then id descending.
func newestFirst(ti, tj time.Time, idi, idj string) bool {
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return idi > idj
}

func limitSlice[T any](items []T, limit int) []T {
	if limit >= 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func (m *MemoryRepository) CreateRule(_ context.Context, rule *models.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rule
	cp.Mitre = append([]string{}, rule.Mitre...)
	m.rules[rule.ID] = &cp
	return nil
}

func (m *MemoryRepository) ListRules(_ context.Context) ([]*models.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (m *MemoryRepository) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return ErrRuleNotFound
	}
	for k := range m.alertKeys {
		if k.RuleID == id {
			return ErrRuleInUse
		}
	}
	delete(m.rules, id)
	return nil
}

func (m *MemoryRepository) CreateEvent(_ context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *event
	m.events[event.ID] = &cp
	return nil
}

func (m *MemoryRepository) ListRecentEvents(_ context.Context, limit int) ([]*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Event, 0, len(m.events))
	for _, e := range m.events {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].ReceivedAt, out[j].ReceivedAt, out[i].ID, out[j].ID)
	})
	return limitSlice(out, limit), nil
}

func (m *MemoryRepository) GetEventsByIDs(_ context.Context, ids []string) (map[string]*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*models.Event, len(ids))
	for _, id := range ids {
		if e, ok := m.events[id]; ok {
			cp := *e
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *MemoryRepository) CreateImport(_ context.Context, job *models.ImportJob, events []*models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *job
	m.imports[job.ID] = &cp
	for _, e := range events {
		ev := *e
		m.events[e.ID] = &ev
	}
	return nil
}

func (m *MemoryRepository) ListImports(_ context.Context, limit int) ([]*models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.ImportJob, 0, len(m.imports))
	for _, j := range m.imports {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return limitSlice(out, limit), nil
}

func (m *MemoryRepository) DeleteImport(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.imports[id]; !ok {
		return ErrImportNotFound
	}
	delete(m.imports, id)
	return nil
}

func (m *MemoryRepository) ExistingAlertKeys(_ context.Context, eventIDs []string) (map[models.AlertKey]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = struct{}{}
	}
	out := make(map[models.AlertKey]struct{})
	for k := range m.alertKeys {
		if _, ok := wanted[k.EventID]; ok {
			out[k] = struct{}{}
		}
	}
	return out, nil
}

func (m *MemoryRepository) InsertAlerts(_ context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var inserted []*models.Alert
	for _, a := range alerts {
		if _, dup := m.alertKeys[a.Key()]; dup {
			continue
		}
		cp := *a
		m.alerts[a.ID] = &cp
		m.alertKeys[a.Key()] = a.ID
		inserted = append(inserted, a)
	}
	return inserted, nil
}

func (m *MemoryRepository) GetAlert(_ context.Context, id string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) ListAlerts(_ context.Context, limit int) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return limitSlice(out, limit), nil
}

func (m *MemoryRepository) DeleteAlert(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	for _, linked := range m.links {
		delete(linked, id)
	}
	delete(m.alertKeys, a.Key())
	delete(m.alerts, id)
	return nil
}

func (m *MemoryRepository) CreateIncident(_ context.Context, inc *models.Incident, alertIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *inc
	m.incidents[inc.ID] = &cp
	linked := make(map[string]time.Time)
	m.links[inc.ID] = linked

	var out []string
	for _, id := range alertIDs {
		if _, ok := m.alerts[id]; !ok {
			continue
		}
		if _, dup := linked[id]; dup {
			continue
		}
		linked[id] = inc.CreatedAt
		out = append(out, id)
	}
	return out, nil
}

func (m *MemoryRepository) GetIncident(_ context.Context, id string) (*models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	cp := *inc
	return &cp, nil
}

func (m *MemoryRepository) ListIncidents(_ context.Context, limit int) ([]*models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Incident, 0, len(m.incidents))
	for _, inc := range m.incidents {
		cp := *inc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return limitSlice(out, limit), nil
}

func (m *MemoryRepository) DeleteIncident(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.incidents[id]; !ok {
		return ErrIncidentNotFound
	}
	delete(m.links, id)
	delete(m.actions, id)
	delete(m.evidence, id)
	delete(m.incidents, id)
	return nil
}

func (m *MemoryRepository) LinkAlert(_ context.Context, incidentID, alertID string, at time.Time) (models.LinkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inc, ok := m.incidents[incidentID]
	if !ok {
		return "", ErrIncidentNotFound
	}
	if _, ok := m.alerts[alertID]; !ok {
		return "", ErrAlertNotFound
	}
	linked := m.links[incidentID]
	if linked == nil {
		linked = make(map[string]time.Time)
		m.links[incidentID] = linked
	}
	if _, dup := linked[alertID]; dup {
		return models.LinkResultAlreadyLinked, nil
	}
	linked[alertID] = at
	inc.UpdatedAt = at
	return models.LinkResultLinked, nil
}

func (m *MemoryRepository) ListIncidentAlerts(_ context.Context, incidentID string) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Alert, 0, len(m.links[incidentID]))
	for id := range m.links[incidentID] {
		if a, ok := m.alerts[id]; ok {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[j].CreatedAt, out[i].CreatedAt, out[j].ID, out[i].ID)
	})
	return out, nil
}

func (m *MemoryRepository) CreateAction(_ context.Context, action *models.IncidentAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inc, ok := m.incidents[action.IncidentID]
	if !ok {
		return ErrIncidentNotFound
	}
	cp := *action
	m.actions[action.IncidentID] = append(m.actions[action.IncidentID], &cp)
	inc.UpdatedAt = action.CreatedAt
	return nil
}

func (m *MemoryRepository) ListIncidentActions(_ context.Context, incidentID string, order SortOrder) ([]*models.IncidentAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.IncidentAction, 0, len(m.actions[incidentID]))
	for _, a := range m.actions[incidentID] {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if order == Descending {
			return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
		}
		return newestFirst(out[j].CreatedAt, out[i].CreatedAt, out[j].ID, out[i].ID)
	})
	return out, nil
}

func (m *MemoryRepository) CloseIncident(_ context.Context, id string, at time.Time) (*models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	if !inc.IsClosed() {
		inc.Status = models.IncidentStatusClosed
		inc.UpdatedAt = at
	}
	cp := *inc
	return &cp, nil
}

func (m *MemoryRepository) RecordEvidence(_ context.Context, file *models.EvidenceFile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.incidents[file.IncidentID]; !ok {
		return false, ErrIncidentNotFound
	}
	for _, existing := range m.evidence[file.IncidentID] {
		if existing.Filename == file.Filename && existing.SHA256 == file.SHA256 {
			return false, nil
		}
	}
	cp := *file
	m.evidence[file.IncidentID] = append(m.evidence[file.IncidentID], &cp)
	return true, nil
}

func (m *MemoryRepository) ListEvidence(_ context.Context, incidentID string) ([]*models.EvidenceFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.EvidenceFile, 0, len(m.evidence[incidentID]))
	for _, f := range m.evidence[incidentID] {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (m *MemoryRepository) Ping(_ context.Context) error { return nil }

func (m *MemoryRepository) Close() error { return nil }
