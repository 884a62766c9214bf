// Package mainconfig holds the AWS wiring shared by the HTTP server and the
// Lambda entrypoint: DynamoDB for sessions and SSM for credentials.
package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	appconfig "github.com/wolfman30/chatbot-proxy/internal/config"
	"github.com/wolfman30/chatbot-proxy/internal/secrets"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

// LoadAWSConfig builds the SDK config. Static keys win over the default
// chain, and AWS_ENDPOINT_OVERRIDE points every client at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}

// LoadAWS returns nil when neither the DynamoDB session store nor SSM is
// configured. With an SSM prefix, missing credentials in cfg are filled
// from Parameter Store.
func LoadAWS(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*aws.Config, error) {
	if !cfg.NeedsAWS() {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.SSMParameterPrefix == "" {
		return &awsCfg, nil
	}

	paramStore, err := secrets.NewParamStore(ssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	if err := secrets.Apply(ctx, paramStore, cfg.SSMParameterPrefix, cfg); err != nil {
		return nil, fmt.Errorf("resolve secrets: %w", err)
	}
	logger.Info("credentials resolved from parameter store", "prefix", cfg.SSMParameterPrefix)
	return &awsCfg, nil
}
