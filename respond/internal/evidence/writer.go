// Package evidence persists incident packets as content-addressed evidence.
package evidence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/packet"
)

const (
	// PacketFilename is the logical file name every packet is recorded under.
	PacketFilename = "incident-packet.json"

	ContentTypeJSON = "application/json"
)

// Store is the evidence side of the repository.
type Store interface {
	// RecordEvidence inserts file unless a row with the same incident,
	// filename and hash exists, and reports whether it inserted.
	RecordEvidence(ctx context.Context, file *models.EvidenceFile) (bool, error)
	ListEvidence(ctx context.Context, incidentID string) ([]*models.EvidenceFile, error)
}

// Writer serializes packets, stores the bytes and records them.
type Writer struct {
	blobs  BlobStore
	store  Store
	logger *logging.Logger
	now    func() time.Time
	newID  func() string
}

// Result is the outcome of Persist.
type Result struct {
	// File describes the bytes just written. Its ID is only meaningful when
	// Recorded is true.
	File *models.EvidenceFile

	// Recorded is false when identical content was already on record.
	Recorded bool

	// Manifest is every evidence row of the incident, newest first.
	Manifest []*models.EvidenceFile
}

// NewWriter creates a Writer.
func NewWriter(blobs BlobStore, store Store, logger *logging.Logger) *Writer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Writer{
		blobs:  blobs,
		store:  store,
		logger: logger.With(logging.Component("evidence")),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// Serialize renders p as indented UTF-8 JSON with a fixed field order and no
// trailing newline. Identical packets always produce identical bytes.
func Serialize(p *packet.Packet) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to serialize packet: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// LogicalFilename is the filename recorded for an incident's packet.
func LogicalFilename(incidentID string) string {
	return incidentID + "/" + PacketFilename
}

// StorageKey addresses a packet version by content, so earlier versions are
// never overwritten.
func StorageKey(incidentID, sum string) string {
	return "incidents/" + incidentID + "/" + sum + "/" + PacketFilename
}

// Persist writes the packet and records it once per distinct content.
func (w *Writer) Persist(ctx context.Context, incidentID string, p *packet.Packet) (*Result, error) {
	data, err := Serialize(p)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	sum := hex.EncodeToString(digest[:])

	file := &models.EvidenceFile{
		ID:          w.newID(),
		IncidentID:  incidentID,
		CreatedAt:   w.now(),
		Filename:    LogicalFilename(incidentID),
		ContentType: ContentTypeJSON,
		SHA256:      sum,
		SizeBytes:   int64(len(data)),
		StorageKey:  StorageKey(incidentID, sum),
	}

	// Bytes first: a row must never point at a blob that does not exist.
	if err := w.blobs.Put(ctx, file.StorageKey, data, ContentTypeJSON); err != nil {
		return nil, fmt.Errorf("failed to store packet: %w", err)
	}

	recorded, err := w.store.RecordEvidence(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("failed to record evidence: %w", err)
	}
	if recorded {
		w.logger.InfoContext(ctx, "evidence recorded",
			logging.IncidentID(incidentID), logging.SHA256(sum))
	} else {
		w.logger.DebugContext(ctx, "evidence unchanged",
			logging.IncidentID(incidentID), logging.SHA256(sum))
	}

	manifest, err := w.store.ListEvidence(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	return &Result{File: file, Recorded: recorded, Manifest: manifest}, nil
}
