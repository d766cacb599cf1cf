package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/common/messaging"
	"github.com/secureops/workbench/respond/internal/models"
	respondnats "github.com/secureops/workbench/respond/internal/nats"
	"github.com/secureops/workbench/respond/internal/repository"
)

// CreateIncident opens an incident. Alert ids that do not resolve are
// skipped; the rest are linked in the same unit of work. The ids actually
// linked are returned.
func (s *Service) CreateIncident(ctx context.Context, req *models.CreateIncidentRequest) (*models.Incident, []string, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validateStruct(req); err != nil {
		return nil, nil, err
	}
	severity := req.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}

	now := s.now()
	inc := &models.Incident{
		ID:          s.newID(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Title:       req.Title,
		Severity:    severity,
		Status:      models.IncidentStatusOpen,
		Description: req.Description,
	}
	linked, err := s.repo.CreateIncident(ctx, inc, req.AlertIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create incident: %w", err)
	}
	if skipped := len(req.AlertIDs) - len(linked); skipped > 0 {
		s.logger.InfoContext(ctx, "skipped unknown alert ids", logging.IncidentID(inc.ID), logging.Count(skipped))
	}

	s.notify(ctx, messaging.SubjectIncidentsCreated, func(ctx context.Context) error {
		return s.publisher.PublishIncidentCreated(ctx, inc, len(linked))
	})
	return inc, linked, nil
}

// ListIncidents returns incidents, newest first.
func (s *Service) ListIncidents(ctx context.Context, limit int) ([]*models.Incident, error) {
	return s.repo.ListIncidents(ctx, clampLimit(limit, DefaultIncidentLimit))
}

// GetIncident returns one incident.
func (s *Service) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// DeleteIncident removes the incident with its links, actions and evidence
// rows. Stored evidence bytes are kept.
func (s *Service) DeleteIncident(ctx context.Context, id string) error {
	if err := s.repo.DeleteIncident(ctx, id); err != nil {
		return err
	}
	at := s.now()
	s.notify(ctx, messaging.SubjectIncidentsDeleted, func(ctx context.Context) error {
		return s.publisher.PublishIncidentDeleted(ctx, id, at)
	})
	return nil
}

// LinkAlert attaches an alert to an incident. Linking twice is not an error.
func (s *Service) LinkAlert(ctx context.Context, incidentID string, req *models.LinkAlertRequest) (models.LinkResult, error) {
	req.AlertID = strings.TrimSpace(req.AlertID)
	if err := s.validateStruct(req); err != nil {
		return "", err
	}
	result, err := s.repo.LinkAlert(ctx, incidentID, req.AlertID, s.now())
	if err != nil {
		return "", err
	}
	if result == models.LinkResultLinked {
		s.publishUpdate(ctx, incidentID, respondnats.ChangeAlertLinked)
	}
	return result, nil
}

// ListIncidentAlerts returns the alerts linked to an incident.
func (s *Service) ListIncidentAlerts(ctx context.Context, incidentID string) ([]*models.Alert, error) {
	if _, err := s.repo.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.repo.ListIncidentAlerts(ctx, incidentID)
}

// AddAction appends to the investigation log. Action type defaults to note.
func (s *Service) AddAction(ctx context.Context, incidentID string, req *models.CreateActionRequest) (*models.IncidentAction, error) {
	req.Summary = strings.TrimSpace(req.Summary)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if !req.Details.IsNull() && !req.Details.IsMapping() {
		return nil, invalid("details must be an object")
	}
	actionType := req.ActionType
	if actionType == "" {
		actionType = models.ActionTypeNote
	}

	action := &models.IncidentAction{
		ID:         s.newID(),
		IncidentID: incidentID,
		CreatedAt:  s.now(),
		Actor:      req.Actor,
		ActionType: actionType,
		Summary:    req.Summary,
		Details:    req.Details,
	}
	if err := s.repo.CreateAction(ctx, action); err != nil {
		return nil, err
	}
	s.publishUpdate(ctx, incidentID, respondnats.ChangeAction)
	return action, nil
}

// ListActions returns the investigation log, newest first.
func (s *Service) ListActions(ctx context.Context, incidentID string) ([]*models.IncidentAction, error) {
	if _, err := s.repo.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.repo.ListIncidentActions(ctx, incidentID, repository.Descending)
}

// CloseIncident moves an open incident to closed. Closing a closed incident
// returns it unchanged.
func (s *Service) CloseIncident(ctx context.Context, id string) (*models.Incident, error) {
	current, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsClosed() {
		return current, nil
	}
	inc, err := s.repo.CloseIncident(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	s.notify(ctx, messaging.SubjectIncidentsUpdated, func(ctx context.Context) error {
		return s.publisher.PublishIncidentUpdated(ctx, inc, respondnats.ChangeClosed)
	})
	return inc, nil
}

func (s *Service) publishUpdate(ctx context.Context, incidentID, change string) {
	if s.publisher == nil {
		return
	}
	inc, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load incident for update event",
			logging.IncidentID(incidentID), logging.Error(err))
		return
	}
	s.notify(ctx, messaging.SubjectIncidentsUpdated, func(ctx context.Context) error {
		return s.publisher.PublishIncidentUpdated(ctx, inc, change)
	})
}

