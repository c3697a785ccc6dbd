package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/picklr-io/lambdasync/internal/logging"
	"github.com/picklr-io/lambdasync/pkg/funcapi"
)

// DefaultRetryMax is the default maximum number of retries for transient errors.
const DefaultRetryMax = 3

// RetryPolicy defines retry behavior for transient cloud API errors.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the policy used by the CLI.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: DefaultRetryMax,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// RetryWithBackoff executes fn with exponential backoff and jitter.
// It retries only if shouldRetry returns true for the error.
func RetryWithBackoff(ctx context.Context, policy *RetryPolicy, fn func() error, shouldRetry func(error) bool) error {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}

		if attempt < policy.MaxRetries {
			delay := calculateBackoff(attempt, policy.BaseDelay, policy.MaxDelay)
			logging.Debug("retrying provider call", "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", policy.MaxRetries, lastErr)
}

// calculateBackoff returns exponential backoff with full jitter.
func calculateBackoff(attempt int, base, max time.Duration) time.Duration {
	backoff := float64(base) * math.Pow(2, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	return time.Duration(rand.Float64() * backoff)
}

var transientPatterns = []string{
	"throttl",
	"rate exceed",
	"too many requests",
	"request limit",
	"service unavailable",
	"internal server error",
	"connection reset",
	"connection refused",
	"i/o timeout",
	"tls handshake",
	"temporary failure",
	// IAM roles take a few seconds to become assumable after creation.
	"cannot be assumed",
}

// updateConflictPatterns match Lambda rejecting an update while a previous
// one is still in progress. On create the same error means the function
// already exists, which no retry can fix.
var updateConflictPatterns = []string{
	"resourceconflictexception",
	"update is in progress",
}

// IsTransientError checks if an error is likely transient and retryable.
func IsTransientError(err error) bool {
	if err == nil || errors.Is(err, funcapi.ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return matchesAny(err, transientPatterns)
}

// IsUpdateRetryable reports whether an update call should be retried: a
// transient error or a conflict with an update still in progress.
func IsUpdateRetryable(err error) bool {
	return IsTransientError(err) || matchesAny(err, updateConflictPatterns)
}

func matchesAny(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range patterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryingClient retries transient failures of the wrapped client.
type retryingClient struct {
	next   funcapi.Client
	policy *RetryPolicy
}

// WithRetry decorates client with policy. A nil policy or zero retries
// returns client unchanged.
func WithRetry(client funcapi.Client, policy *RetryPolicy) funcapi.Client {
	if policy == nil || policy.MaxRetries <= 0 {
		return client
	}
	return &retryingClient{next: client, policy: policy}
}

func (c *retryingClient) do(ctx context.Context, fn func() error) error {
	return RetryWithBackoff(ctx, c.policy, fn, IsTransientError)
}

func (c *retryingClient) CreateFunction(ctx context.Context, in *funcapi.CreateFunctionInput) (*funcapi.Function, error) {
	var fn *funcapi.Function
	err := c.do(ctx, func() error {
		var err error
		fn, err = c.next.CreateFunction(ctx, in)
		return err
	})
	return fn, err
}

func (c *retryingClient) doUpdate(ctx context.Context, fn func() error) error {
	return RetryWithBackoff(ctx, c.policy, fn, IsUpdateRetryable)
}

func (c *retryingClient) UpdateFunctionCode(ctx context.Context, in *funcapi.UpdateCodeInput) error {
	return c.doUpdate(ctx, func() error {
		return c.next.UpdateFunctionCode(ctx, in)
	})
}

func (c *retryingClient) UpdateFunctionConfiguration(ctx context.Context, in *funcapi.UpdateConfigInput) (*funcapi.Function, error) {
	var fn *funcapi.Function
	err := c.doUpdate(ctx, func() error {
		var err error
		fn, err = c.next.UpdateFunctionConfiguration(ctx, in)
		return err
	})
	return fn, err
}

func (c *retryingClient) DeleteFunction(ctx context.Context, name string) error {
	return c.do(ctx, func() error {
		return c.next.DeleteFunction(ctx, name)
	})
}

func (c *retryingClient) GetFunction(ctx context.Context, name string) (*funcapi.Function, error) {
	var fn *funcapi.Function
	err := c.do(ctx, func() error {
		var err error
		fn, err = c.next.GetFunction(ctx, name)
		return err
	})
	return fn, err
}
