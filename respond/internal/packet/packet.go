// Package packet aggregates an incident, its alerts, their source events and
// the investigation log into a renderer-agnostic Packet.
package packet

import (
	"encoding/json"
	"time"

	"github.com/secureops/workbench/respond/internal/payload"
)

// Timeline entry types.
const (
	EntryAlert = "alert"
	EntryEvent = "event"
)

// Packet is the aggregated view of one incident. Field order is the
// serialization order.
type Packet struct {
	Incident Incident        `json:"incident"`
	Scope    Scope           `json:"scope"`
	Alerts   []Alert         `json:"alerts"`
	Timeline []TimelineEntry `json:"timeline"`
	Actions  []Action        `json:"actions"`
}

// Optional is a string that encodes as JSON null when empty.
type Optional string

func (o Optional) MarshalJSON() ([]byte, error) {
	if o == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(o))
}

func (o *Optional) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = ""
	if s != nil {
		*o = Optional(*s)
	}
	return nil
}

// Incident is the incident record as it appears in the packet.
type Incident struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Description string    `json:"description"`
}

// TimeWindow spans every alert and resolved event timestamp, or the incident
// lifetime when nothing is linked.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Scope lists are deduplicated in order of first appearance.
type Scope struct {
	TimeWindow TimeWindow `json:"time_window"`
	Hosts      []string   `json:"hosts"`
	Users      []string   `json:"users"`
	Sources    []string   `json:"sources"`
	IPs        []string   `json:"ips"`
}

// Alert is a linked alert, ordered by creation time.
type Alert struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Severity  string    `json:"severity"`
	RuleName  string    `json:"rule_name"`
	Summary   string    `json:"summary"`
	EventID   string    `json:"event_id"`
	Host      Optional  `json:"host"`
	User      Optional  `json:"user"`
	Source    string    `json:"source"`
}

// TimelineEntry is one alert or event line; entries are sorted by Time.
type TimelineEntry struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Source  string    `json:"source"`
	Host    Optional  `json:"host"`
	User    Optional  `json:"user"`
	Summary string    `json:"summary"`
}

// Action is an investigation log entry, oldest first.
type Action struct {
	ID         string        `json:"id"`
	IncidentID string        `json:"incident_id"`
	CreatedAt  time.Time     `json:"created_at"`
	Actor      Optional      `json:"actor"`
	ActionType string        `json:"action_type"`
	Summary    string        `json:"summary"`
	Details    payload.Value `json:"details"`
}
