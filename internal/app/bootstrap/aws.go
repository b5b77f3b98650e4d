package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/wolfman30/support-intel/internal/config"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// NeedsAWS reports whether SES or Bedrock is enabled.
func NeedsAWS(cfg *appconfig.Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.EmailProvider == "ses" || cfg.LLMResponderEnabled || cfg.LLMKeywordRefineEnable
}

// LoadAWSConfig returns nil when no AWS-backed feature is configured or the
// SDK config cannot be loaded; callers then fall back to stub collaborators.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *aws.Config {
	if logger == nil {
		logger = logging.Default()
	}
	if !NeedsAWS(cfg) {
		return nil
	}
	awsCfg, err := loadAWS(ctx, cfg)
	if err != nil {
		logger.Warn("failed to load AWS config; SES and Bedrock disabled", "error", err)
		return nil
	}
	return &awsCfg
}

func loadAWS(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	key, secret := strings.TrimSpace(cfg.AWSAccessKeyID), strings.TrimSpace(cfg.AWSSecretAccessKey)
	if key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	// LocalStack serves SES and Bedrock from one endpoint.
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}
