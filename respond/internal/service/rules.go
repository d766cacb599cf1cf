package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/respond/internal/models"
)

// CreateRule validates and stores a rule. Severity defaults to medium and an
// empty match source applies the rule to every source.
func (s *Service) CreateRule(ctx context.Context, req *models.CreateRuleRequest) (*models.Rule, error) {
	rule, err := s.newRule(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	if rule.MatchContains == "" {
		s.logger.WarnContext(ctx, "rule has empty match_contains and matches every present value",
			logging.RuleID(rule.ID))
	}
	return rule, nil
}

// LoadRules validates every request before storing any of them.
func (s *Service) LoadRules(ctx context.Context, reqs []models.CreateRuleRequest) ([]*models.Rule, error) {
	rules := make([]*models.Rule, 0, len(reqs))
	for i := range reqs {
		rule, err := s.newRule(&reqs[i])
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, reqs[i].Name, err)
		}
		rules = append(rules, rule)
	}
	for _, rule := range rules {
		if err := s.repo.CreateRule(ctx, rule); err != nil {
			return nil, fmt.Errorf("failed to create rule %q: %w", rule.Name, err)
		}
	}
	s.logger.InfoContext(ctx, "rules loaded", logging.Count(len(rules)))
	return rules, nil
}

func (s *Service) newRule(req *models.CreateRuleRequest) (*models.Rule, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.MatchField = strings.TrimSpace(req.MatchField)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	severity := req.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	source := strings.TrimSpace(req.MatchSource)
	if source == "" {
		source = models.MatchSourceAny
	}
	mitre := req.Mitre
	if mitre == nil {
		mitre = []string{}
	}
	return &models.Rule{
		ID:            s.newID(),
		CreatedAt:     s.now(),
		Name:          req.Name,
		Severity:      severity,
		Mitre:         mitre,
		Description:   req.Description,
		MatchSource:   source,
		MatchField:    req.MatchField,
		MatchContains: req.MatchContains,
	}, nil
}

// ListRules returns every rule, newest first.
func (s *Service) ListRules(ctx context.Context) ([]*models.Rule, error) {
	return s.repo.ListRules(ctx)
}

// DeleteRule removes a rule. Rules referenced by alerts cannot be deleted.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	return s.repo.DeleteRule(ctx, id)
}
