// Package secret resolves named secrets from SSM Parameter Store or the environment.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMClient is the subset of *ssm.Client used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver returns the value of a secret by name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver reads SecureString parameters under a path prefix.
type SSMResolver struct {
	client SSMClient
	prefix string
}

// NewSSMResolver returns a resolver for parameters named prefix + "/" + name.
func NewSSMResolver(client SSMClient, prefix string) *SSMResolver {
	return &SSMResolver{client: client, prefix: strings.TrimSuffix(prefix, "/")}
}

func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	path := r.prefix + "/" + strings.TrimPrefix(name, "/")
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", path, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %q has no value", path)
	}
	return *out.Parameter.Value, nil
}

// EnvResolver reads secrets from environment variables. "openai-api-key"
// and "/syllabus-sync/openai-api-key" both map to OPENAI_API_KEY.
type EnvResolver struct{}

func NewEnvResolver() *EnvResolver { return &EnvResolver{} }

func (EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	env := envName(name)
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("environment variable %q (secret %q) is not set", env, name)
}

func envName(name string) string {
	parts := strings.Split(name, "/")
	return strings.ToUpper(strings.ReplaceAll(parts[len(parts)-1], "-", "_"))
}

// Chain tries each resolver in order and returns the first value found.
type Chain []Resolver

func (c Chain) GetSecret(ctx context.Context, name string) (string, error) {
	var lastErr error
	for _, r := range c {
		v, err := r.GetSecret(ctx, name)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no resolver configured for %q", name)
	}
	return "", lastErr
}

// Fill resolves name into *dst when *dst is empty. A missing secret leaves
// *dst untouched.
func Fill(ctx context.Context, r Resolver, name string, dst *string) error {
	if *dst != "" {
		return nil
	}
	v, err := r.GetSecret(ctx, name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
