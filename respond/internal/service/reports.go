package service

import (
	"context"
	"time"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/common/messaging"
	"github.com/secureops/workbench/respond/internal/evidence"
	"github.com/secureops/workbench/respond/internal/metrics"
	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/packet"
	"github.com/secureops/workbench/respond/internal/report"
)

// BuildPacket assembles the incident packet without persisting it.
func (s *Service) BuildPacket(ctx context.Context, incidentID string) (*packet.Packet, error) {
	start := time.Now()
	p, err := s.builder.Build(ctx, incidentID)
	metrics.PacketBuildDuration.Observe(time.Since(start).Seconds())
	return p, err
}

// PersistPacket builds the packet and records it as evidence.
func (s *Service) PersistPacket(ctx context.Context, incidentID string) (*packet.Packet, *evidence.Result, error) {
	p, err := s.BuildPacket(ctx, incidentID)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.writer.Persist(ctx, incidentID, p)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist packet", logging.IncidentID(incidentID), logging.Error(err))
		return nil, nil, err
	}

	if res.Recorded {
		metrics.EvidenceWrites.WithLabelValues(metrics.EvidenceRecorded).Inc()
		s.notify(ctx, messaging.SubjectEvidenceRecorded, func(ctx context.Context) error {
			return s.publisher.PublishEvidenceRecorded(ctx, res.File)
		})
	} else {
		metrics.EvidenceWrites.WithLabelValues(metrics.EvidenceUnchanged).Inc()
	}
	return p, res, nil
}

// ExportReport persists the current packet as evidence and renders it
// together with the full evidence manifest.
func (s *Service) ExportReport(ctx context.Context, incidentID string, format report.Format) (*report.Document, error) {
	p, res, err := s.PersistPacket(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	doc, err := report.Render(p, res.Manifest, format)
	if err != nil {
		return nil, err
	}
	metrics.ReportsRendered.WithLabelValues(string(format)).Inc()
	return doc, nil
}

// ListEvidence returns the evidence manifest of an incident, newest first.
func (s *Service) ListEvidence(ctx context.Context, incidentID string) ([]*models.EvidenceFile, error) {
	if _, err := s.repo.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.repo.ListEvidence(ctx, incidentID)
}

// EvidenceContent returns the stored bytes of one evidence file.
func (s *Service) EvidenceContent(ctx context.Context, incidentID, evidenceID string) (*models.EvidenceFile, []byte, error) {
	files, err := s.ListEvidence(ctx, incidentID)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range files {
		if f.ID == evidenceID {
			data, err := s.blobs.Get(ctx, f.StorageKey)
			if err != nil {
				return nil, nil, err
			}
			return f, data, nil
		}
	}
	return nil, nil, ErrEvidenceNotFound
}
