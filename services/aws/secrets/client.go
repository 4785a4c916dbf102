package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

// AWS error code constants
const (
	ResourceNotFoundException = "ResourceNotFoundException"
	AccessDeniedException     = "AccessDeniedException"
)

// Client reads secrets and credential tokens from AWS Secrets Manager.
//
// Thread Safety: Client is safe for concurrent use. The api field is an
// AWS SDK v2 client and the cache must be thread-safe.
type Client struct {
	api      ManagerAPI
	logger   *slog.Logger
	cache    Cache
	cacheTTL time.Duration
	now      func() time.Time
}

// NewClient creates a client around an existing ManagerAPI.
func NewClient(api ManagerAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("secrets manager api cannot be nil")
	}

	options := defaultOptions()
	applyOptions(options, opts)

	logger := options.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		api:      api,
		logger:   logger,
		cache:    options.cache,
		cacheTTL: options.cacheTTL,
		now:      options.now,
	}, nil
}

// NewClientFromConfig creates a client from an AWS configuration.
// SDK-level retries are disabled; callers retry through the retry package.
func NewClientFromConfig(cfg aws.Config, opts ...Option) (*Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("config region cannot be empty")
	}
	api := secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
		o.RetryMaxAttempts = 1
	})
	return NewClient(api, opts...)
}

// handleError wraps SDK errors with the operation name while preserving the
// package's typed errors and the SDK error chain for retry classification.
func (c *Client) handleError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSecretNotFound) ||
		errors.Is(err, ErrSecretEmpty) ||
		errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrMalformedToken) {
		return err
	}
	return fmt.Errorf("%s operation failed: %w", operation, err)
}

// GetSecret retrieves the value of a secret. Binary secrets are returned as
// a string.
func (c *Client) GetSecret(ctx context.Context, secretName string) (string, error) {
	if secretName == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}

	c.logger.DebugContext(ctx, "retrieving secret", "secret_name", secretName)

	output, err := c.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case ResourceNotFoundException:
				return "", fmt.Errorf("GetSecret %s: %w", secretName, ErrSecretNotFound)
			case AccessDeniedException:
				return "", fmt.Errorf("GetSecret %s: %w", secretName, ErrAccessDenied)
			}
		}
		c.logger.ErrorContext(ctx, "failed to retrieve secret",
			"secret_name", secretName,
			"error", err)
		return "", c.handleError(err, "GetSecret")
	}

	switch {
	case output.SecretString != nil && *output.SecretString != "":
		return *output.SecretString, nil
	case len(output.SecretBinary) > 0:
		return string(output.SecretBinary), nil
	default:
		return "", fmt.Errorf("GetSecret %s: %w", secretName, ErrSecretEmpty)
	}
}

// GetToken retrieves and parses a credential token. When a cache is
// configured, tokens are served from it until the cache TTL or the token's
// own expiration, whichever comes first.
func (c *Client) GetToken(ctx context.Context, secretName string) (*Token, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(secretName); ok {
			if tok, ok := v.(*Token); ok {
				c.logger.DebugContext(ctx, "credential token served from cache", "secret_name", secretName)
				return tok, nil
			}
		}
	}

	raw, err := c.GetSecret(ctx, secretName)
	if err != nil {
		return nil, err
	}
	tok, err := ParseToken([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("GetToken %s: %w", secretName, err)
	}

	if c.cache != nil {
		ttl := c.cacheTTL
		if tok.Temporary() {
			if left := tok.Expiration.Sub(c.now()); ttl <= 0 || left < ttl {
				ttl = left
			}
		}
		if ttl > 0 {
			c.cache.Set(secretName, tok, ttl)
		}
	}
	return tok, nil
}

// Invalidate drops a cached token.
func (c *Client) Invalidate(secretName string) {
	if c.cache != nil {
		c.cache.Delete(secretName)
	}
}
