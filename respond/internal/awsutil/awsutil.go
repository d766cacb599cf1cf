// Package awsutil loads AWS SDK configuration for the connectors and the S3
// evidence backend.
package awsutil

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// DefaultRegion is used when neither the caller nor the configuration names one.
const DefaultRegion = "us-east-1"

// RoleSessionName tags sessions created by assuming Config.RoleARN.
const RoleSessionName = "secureops-workbench"

// Config selects credentials. Empty fields fall through to the SDK's default
// chain (environment, shared profile, instance role).
type Config struct {
	Region          string
	Profile         string
	RoleARN         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// SessionName overrides RoleSessionName for assumed-role sessions.
	SessionName string
}

// Load builds an aws.Config. When RoleARN is set the base credentials are
// used to assume that role for one hour.
func Load(ctx context.Context, cfg Config) (aws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.RoleARN != "" {
		sessionName := cfg.SessionName
		if sessionName == "" {
			sessionName = RoleSessionName
		}
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), cfg.RoleARN,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = sessionName
				o.Duration = time.Hour
			})
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}
	return awsCfg, nil
}
