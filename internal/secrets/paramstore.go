// Package secrets resolves credentials from AWS SSM Parameter Store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/wolfman30/chatbot-proxy/internal/config"
)

// Parameter names under the configured prefix.
const (
	ParamCCaaSAuthorization = "ccaas-authorization"
	ParamAssistantAPIKey    = "assistant-api-key"
)

// ssmAPI is the minimal AWS SSM interface required by ParamStore.
// *ssm.Client satisfies it.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter reads one decrypted parameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ParamStore wraps SSM parameter retrieval.
type ParamStore struct {
	api ssmAPI
}

// NewParamStore creates a ParamStore over api.
func NewParamStore(api ssmAPI) (*ParamStore, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	return &ParamStore{api: api}, nil
}

func (p *ParamStore) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secrets: name is required")
	}

	withDecryption := true
	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secrets: parameter %q missing value", name)
	}
	return *out.Parameter.Value, nil
}

// Apply fills credentials that are not set in the environment from
// {prefix}/{name}. Values already present in cfg win.
func Apply(ctx context.Context, getter Getter, prefix string, cfg *config.Config) error {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" || cfg == nil {
		return nil
	}
	if getter == nil {
		return errors.New("secrets: getter must not be nil")
	}
	targets := []struct {
		name string
		dst  *string
	}{
		{ParamCCaaSAuthorization, &cfg.CCaaSAuthorization},
		{ParamAssistantAPIKey, &cfg.AssistantAPIKey},
	}
	for _, target := range targets {
		if strings.TrimSpace(*target.dst) != "" {
			continue
		}
		value, err := getter.GetParameter(ctx, prefix+"/"+target.name)
		if err != nil {
			return err
		}
		*target.dst = strings.TrimSpace(value)
	}
	return nil
}
