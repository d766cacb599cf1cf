// Package detection evaluates rules against stored events and raises
// deduplicated alerts.
package detection

import (
	"strings"

	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/payload"
)

// Skip explains why a rule did not match an event.
type Skip int

const (
	SkipNone Skip = iota
	// SkipSource means the event came from a source the rule does not cover.
	SkipSource
	// SkipAbsent means match_field resolved to nothing or to null.
	SkipAbsent
	// SkipNoMatch means the value was present but did not contain the needle.
	SkipNoMatch
)

func (s Skip) String() string {
	switch s {
	case SkipNone:
		return "none"
	case SkipSource:
		return "source"
	case SkipAbsent:
		return "absent"
	case SkipNoMatch:
		return "no_match"
	default:
		return "unknown"
	}
}

// Matches reports whether rule matches event. It never fails: malformed or
// partial payloads simply do not match.
func Matches(rule *models.Rule, event *models.Event) bool {
	matched, _ := Evaluate(rule, event)
	return matched
}

// Evaluate is Matches plus the reason for a miss.
//
// An empty match_contains matches every present value.
func Evaluate(rule *models.Rule, event *models.Event) (bool, Skip) {
	if !appliesToSource(rule.MatchSource, event.Source) {
		return false, SkipSource
	}

	val, ok := payload.Resolve(event.Raw, rule.MatchField)
	if !ok || val.IsNull() {
		return false, SkipAbsent
	}

	haystack, isString := val.AsString()
	if !isString {
		haystack = val.Text()
	}
	if !strings.Contains(strings.ToLower(haystack), strings.ToLower(rule.MatchContains)) {
		return false, SkipNoMatch
	}
	return true, SkipNone
}

// appliesToSource treats both "*" and an unset source as a wildcard.
func appliesToSource(ruleSource, eventSource string) bool {
	return ruleSource == "" || ruleSource == models.MatchSourceAny || ruleSource == eventSource
}

// Summary is the human-readable description stored on an alert.
func Summary(rule *models.Rule) string {
	return rule.Name + ": " + rule.MatchField + " matched '" + rule.MatchContains + "'"
}
