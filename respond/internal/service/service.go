// Package service implements the respond operations on top of the repository
// and the detection, packet, evidence and report components. Each operation
// is one atomic unit of work against the repository; domain events are
// published only after that unit commits.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/respond/internal/detection"
	"github.com/secureops/workbench/respond/internal/evidence"
	"github.com/secureops/workbench/respond/internal/lock"
	"github.com/secureops/workbench/respond/internal/metrics"
	respondnats "github.com/secureops/workbench/respond/internal/nats"
	"github.com/secureops/workbench/respond/internal/packet"
	"github.com/secureops/workbench/respond/internal/repository"
)

var (
	// ErrValidation marks request validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrEvidenceNotFound is returned for an unknown evidence id.
	ErrEvidenceNotFound = fmt.Errorf("evidence %w", repository.ErrNotFound)

	// ErrConnectorDisabled is returned when CloudTrail sync is not configured.
	ErrConnectorDisabled = errors.New("cloudtrail connector is not configured")
)

// List defaults.
const (
	DefaultEventLimit    = 50
	DefaultImportLimit   = 50
	DefaultIncidentLimit = 50
	DefaultAlertLimit    = 100
	MaxListLimit         = 1000
)

// detectionLockName is shared by every replica.
const detectionLockName = "detections"

// Service provides business logic for the respond service.
type Service struct {
	repo       repository.Repository
	blobs      evidence.BlobStore
	engine     *detection.Engine
	builder    *packet.Builder
	writer     *evidence.Writer
	locker     lock.Locker
	publisher  *respondnats.Publisher
	cloudtrail CloudTrailFactory
	validate   *validator.Validate
	logger     *logging.Logger
	now        func() time.Time
	newID      func() string
	window     int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithLocker serializes detection runs. Defaults to an in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithPublisher enables domain event publication.
func WithPublisher(p *respondnats.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithCloudTrail enables CloudTrail sync.
func WithCloudTrail(f CloudTrailFactory) Option {
	return func(s *Service) { s.cloudtrail = f }
}

// WithDetectionWindow sets how many recent events a run scans by default.
func WithDetectionWindow(n int) Option {
	return func(s *Service) { s.window = n }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides entity id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a new Service instance.
func NewService(repo repository.Repository, blobs evidence.BlobStore, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		blobs:    blobs,
		locker:   lock.NewLocalLocker(),
		validate: newValidator(),
		logger:   logging.Default(),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:    func() string { return uuid.Must(uuid.NewV7()).String() },
		window:   detection.DefaultWindowLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("service"))
	s.engine = detection.NewEngine(repo, s.logger, detection.WithClock(s.now), detection.WithIDGenerator(s.newID))
	s.builder = packet.NewBuilder(repo)
	s.writer = evidence.NewWriter(blobs, repo, s.logger)
	return s
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Service) validateStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "min":
		return field + " must be at least " + fe.Param()
	default:
		return field + " is invalid"
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, MaxListLimit)
}

// notify runs a publish after commit. Failures are logged and counted, never
// returned.
func (s *Service) notify(ctx context.Context, subject string, publish func(context.Context) error) {
	if s.publisher == nil {
		return
	}
	if err := publish(ctx); err != nil {
		metrics.PublishErrors.WithLabelValues(subject).Inc()
		s.logger.WarnContext(ctx, "failed to publish domain event", "subject", subject, logging.Error(err))
	}
}
