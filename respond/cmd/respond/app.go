package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/secureops/workbench/common/logging"
	natsclient "github.com/secureops/workbench/common/messaging/nats"
	"github.com/secureops/workbench/respond/internal/awsutil"
	"github.com/secureops/workbench/respond/internal/config"
	"github.com/secureops/workbench/respond/internal/connectors/cloudtrail"
	"github.com/secureops/workbench/respond/internal/evidence"
	"github.com/secureops/workbench/respond/internal/lock"
	respondnats "github.com/secureops/workbench/respond/internal/nats"
	"github.com/secureops/workbench/respond/internal/repository"
	"github.com/secureops/workbench/respond/internal/service"
)

// app holds the dependencies every command shares.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	repo    repository.Repository
	svc     *service.Service
	broker  *natsclient.Client
	closers []func() error
}

// newApp wires the store, blob store, lock, broker and connectors described
// by c. Optional backends that are disabled are simply left out.
func newApp(ctx context.Context, c *config.Config, log *logging.Logger) (*app, error) {
	a := &app{cfg: c, logger: log}

	repo, err := openRepository(ctx, c, log)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)

	blobs, err := openBlobStore(ctx, c, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithDetectionWindow(c.Detection.WindowLimit),
	}

	if c.Redis.Enabled {
		client, err := lock.Connect(ctx, c.Redis.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		opts = append(opts, service.WithLocker(lock.NewRedisLocker(client, c.Detection.LockTTL)))
		log.Info("detection lock backed by redis")
	}

	if c.NATS.Enabled {
		broker, err := natsclient.NewClient(natsclient.Config{
			URL:           c.NATS.URL,
			Name:          "respond",
			MaxReconnects: c.NATS.MaxReconnects,
			ReconnectWait: c.NATS.ReconnectWait,
			Timeout:       5 * time.Second,
			Logger:        log.Logger,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.broker = broker
		a.closers = append(a.closers, broker.Close)
		opts = append(opts, service.WithPublisher(respondnats.NewPublisher(broker)))
	}

	if c.AWS.CloudTrail {
		opts = append(opts, service.WithCloudTrail(cloudTrailFactory(c.AWS, log)))
	}

	a.svc = service.NewService(repo, blobs, opts...)
	return a, nil
}

// Close releases everything newApp opened, last opened first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", logging.Error(err))
		}
	}
	a.closers = nil
}

func openRepository(ctx context.Context, c *config.Config, log *logging.Logger) (repository.Repository, error) {
	if c.Database.Driver == config.DriverMemory {
		log.Warn("using in-memory store; data is lost on exit")
		return repository.NewMemoryRepository(), nil
	}

	dsn := c.Database.Postgres.DSN()
	if c.Database.MigrateOnBoot {
		log.Info("running database migrations")
		if err := repository.Migrate(dsn); err != nil {
			return nil, err
		}
	}
	repo, err := repository.NewPostgresRepository(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return repo, nil
}

func openBlobStore(ctx context.Context, c *config.Config, log *logging.Logger) (evidence.BlobStore, error) {
	switch c.Evidence.Backend {
	case config.BackendS3:
		awsCfg, err := awsutil.Load(ctx, awsConfig(c.AWS, ""))
		if err != nil {
			return nil, err
		}
		s3cfg := c.Evidence.S3
		return evidence.NewS3Store(awsCfg, evidence.S3Config{
			Bucket:               s3cfg.Bucket,
			Prefix:               s3cfg.Prefix,
			Endpoint:             s3cfg.Endpoint,
			UsePathStyle:         s3cfg.UsePathStyle,
			ServerSideEncryption: s3cfg.ServerSideEncryption,
			KMSKeyID:             s3cfg.KMSKeyID,
		}, log.Logger)
	case config.BackendFilesystem:
		return evidence.NewFileStore(c.Evidence.Root)
	default:
		return nil, errors.New("unknown evidence backend " + c.Evidence.Backend)
	}
}

func awsConfig(c config.AWSConfig, region string) awsutil.Config {
	if region == "" {
		region = c.Region
	}
	return awsutil.Config{
		Region:          region,
		Profile:         c.Profile,
		RoleARN:         c.RoleARN,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
	}
}

// cloudTrailFactory resolves credentials per sync so a region override and
// role assumption apply to that request only.
func cloudTrailFactory(c config.AWSConfig, log *logging.Logger) service.CloudTrailFactory {
	return func(ctx context.Context, region string) (service.CloudTrailPuller, error) {
		ac := awsConfig(c, strings.TrimSpace(region))
		ac.SessionName = cloudtrail.RoleSessionName
		awsCfg, err := awsutil.Load(ctx, ac)
		if err != nil {
			return nil, err
		}
		return cloudtrail.NewFromConfig(awsCfg, log), nil
	}
}
