package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/respond/internal/connectors/cloudtrail"
	"github.com/secureops/workbench/respond/internal/ingest"
	"github.com/secureops/workbench/respond/internal/metrics"
	"github.com/secureops/workbench/respond/internal/models"
)

// CloudTrailPuller pulls one window of CloudTrail activity.
type CloudTrailPuller interface {
	Pull(ctx context.Context, minutes int) (*ingest.Batch, cloudtrail.Window, error)
	Region() string
}

// CloudTrailFactory returns a puller for region; "" selects the configured
// default region.
type CloudTrailFactory func(ctx context.Context, region string) (CloudTrailPuller, error)

// IngestEvent stores one event pushed by a caller.
func (s *Service) IngestEvent(ctx context.Context, req *models.IngestEventRequest) (*models.Event, error) {
	req.Source = strings.TrimSpace(req.Source)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	ev := &models.Event{
		ID:         s.newID(),
		ReceivedAt: s.now(),
		Source:     req.Source,
		Host:       req.Host,
		User:       req.User,
		Raw:        req.Raw,
	}
	if err := s.repo.CreateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to store event: %w", err)
	}
	metrics.EventsIngested.WithLabelValues(metrics.OriginAPI).Inc()
	return ev, nil
}

// ListEvents returns the most recent events, newest first.
func (s *Service) ListEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	return s.repo.ListRecentEvents(ctx, clampLimit(limit, DefaultEventLimit))
}

// ImportJSONL parses a JSONL upload and stores it as one import.
func (s *Service) ImportJSONL(ctx context.Context, req *models.ImportRequest, data []byte) (*models.ImportJob, error) {
	req.Source = strings.TrimSpace(req.Source)
	if strings.TrimSpace(req.Filename) == "" {
		req.Filename = ingest.DefaultFilename
	}
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	batch := ingest.ParseJSONL(req.Filename, data, ingest.Tags{Source: req.Source, Host: req.Host, User: req.User})
	if batch.Skipped > 0 {
		s.logger.WarnContext(ctx, "skipped unparseable import lines", logging.Count(batch.Skipped))
	}
	return s.importBatch(ctx, batch, metrics.OriginImport)
}

// importBatch keeps the raw bytes in the blob store, then records the job and
// all of its events in one unit of work.
func (s *Service) importBatch(ctx context.Context, batch *ingest.Batch, origin string) (*models.ImportJob, error) {
	now := s.now()
	job := &models.ImportJob{
		ID:             s.newID(),
		CreatedAt:      now,
		Filename:       ingest.SafeFilename(batch.Filename),
		SHA256:         batch.SHA256,
		Source:         batch.Tags.Source,
		Host:           batch.Tags.Host,
		User:           batch.Tags.User,
		EventsIngested: len(batch.Records),
	}

	key := ingest.StorageKey(job.ID, job.Filename)
	if err := s.blobs.Put(ctx, key, batch.Data, "application/x-ndjson"); err != nil {
		return nil, fmt.Errorf("failed to store import: %w", err)
	}

	events := make([]*models.Event, len(batch.Records))
	for i, rec := range batch.Records {
		user := batch.Tags.User
		if rec.User != "" {
			user = rec.User
		}
		events[i] = &models.Event{
			ID:         s.newID(),
			ReceivedAt: now,
			Source:     batch.Tags.Source,
			Host:       batch.Tags.Host,
			User:       user,
			Raw:        rec.Raw,
		}
	}
	if err := s.repo.CreateImport(ctx, job, events); err != nil {
		return nil, fmt.Errorf("failed to record import: %w", err)
	}

	metrics.EventsIngested.WithLabelValues(origin).Add(float64(len(events)))
	s.logger.InfoContext(ctx, "import stored",
		logging.ImportID(job.ID), logging.SHA256(job.SHA256), logging.Count(len(events)))
	return job, nil
}

// ListImports returns import jobs, newest first.
func (s *Service) ListImports(ctx context.Context, limit int) ([]*models.ImportJob, error) {
	return s.repo.ListImports(ctx, clampLimit(limit, DefaultImportLimit))
}

// DeleteImport removes the job record. Its events are kept.
func (s *Service) DeleteImport(ctx context.Context, id string) error {
	return s.repo.DeleteImport(ctx, id)
}

// ImportBlob returns the raw bytes of an import.
func (s *Service) ImportBlob(ctx context.Context, job *models.ImportJob) ([]byte, error) {
	data, err := s.blobs.Get(ctx, ingest.StorageKey(job.ID, job.Filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read import: %w", err)
	}
	return data, nil
}

// SyncCloudTrail pulls recent CloudTrail activity and stores it as an import.
func (s *Service) SyncCloudTrail(ctx context.Context, req *models.CloudTrailSyncRequest) (*models.CloudTrailSyncResponse, error) {
	if s.cloudtrail == nil {
		return nil, ErrConnectorDisabled
	}
	if req.Minutes == 0 {
		req.Minutes = cloudtrail.DefaultMinutes
	}
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	puller, err := s.cloudtrail(ctx, strings.TrimSpace(req.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to configure cloudtrail: %w", err)
	}
	batch, win, err := puller.Pull(ctx, req.Minutes)
	if err != nil {
		return nil, err
	}
	job, err := s.importBatch(ctx, batch, metrics.OriginCloudTrail)
	if err != nil {
		return nil, err
	}
	return &models.CloudTrailSyncResponse{
		EventsIngested: job.EventsIngested,
		Start:          win.Start,
		End:            win.End,
		Region:         puller.Region(),
	}, nil
}
