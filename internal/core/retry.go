package core

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/kilupskalvis/ovc/internal/models"
	"github.com/kilupskalvis/ovc/internal/snapshot"
)

// RetryConfig configures retry behavior for transient snapshot-store
// errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryingStore wraps a snapshot.Store with automatic retry on transient
// errors. Only StoreUnavailableError is retried; structural errors and
// domain results pass straight through.
type RetryingStore struct {
	inner  snapshot.Store
	config *RetryConfig
}

var _ snapshot.Store = (*RetryingStore)(nil)

// NewRetryingStore creates a RetryingStore over the given store.
func NewRetryingStore(inner snapshot.Store, cfg *RetryConfig) *RetryingStore {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryingStore{inner: inner, config: cfg}
}

// backoff computes the delay for the given attempt with jitter.
func (rs *RetryingStore) backoff(attempt int) time.Duration {
	base := float64(rs.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(rs.config.MaxBackoff) {
		base = float64(rs.config.MaxBackoff)
	}
	jitter := base * rs.config.JitterFraction * (rand.Float64()*2 - 1) // +/- jitter
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry executes fn with retry logic. Only retries transient errors.
func (rs *RetryingStore) retry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= rs.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !models.IsTransient(lastErr) {
			return lastErr
		}
		if attempt < rs.config.MaxRetries {
			d := rs.backoff(attempt)
			if err := sleep(ctx, d); err != nil {
				return fmt.Errorf("%s: %w (retry cancelled)", operation, lastErr)
			}
		}
	}
	return fmt.Errorf("%s: %w (after %d retries)", operation, lastErr, rs.config.MaxRetries)
}

func (rs *RetryingStore) GetCommit(ctx context.Context, ref string) (commit *models.Commit, err error) {
	err = rs.retry(ctx, "get commit", func() error {
		commit, err = rs.inner.GetCommit(ctx, ref)
		return err
	})
	return
}

func (rs *RetryingStore) StateAt(ctx context.Context, ref string) (state map[string]*models.Node, err error) {
	err = rs.retry(ctx, "read state", func() error {
		state, err = rs.inner.StateAt(ctx, ref)
		return err
	})
	return
}

func (rs *RetryingStore) StructuralDiff(ctx context.Context, a, b string) (diffs []snapshot.NodeDiff, err error) {
	err = rs.retry(ctx, "structural diff", func() error {
		diffs, err = rs.inner.StructuralDiff(ctx, a, b)
		return err
	})
	return
}

func (rs *RetryingStore) Commit(ctx context.Context, req snapshot.CommitRequest) (string, error) {
	// The commit step is the single mutating call of a merge and is NOT
	// retried: a timeout leaves either a complete commit or nothing, and
	// the caller must not risk duplicating it.
	return rs.inner.Commit(ctx, req)
}

func (rs *RetryingStore) DiscardCommit(ctx context.Context, ref string) error {
	return rs.retry(ctx, "discard commit", func() error {
		return rs.inner.DiscardCommit(ctx, ref)
	})
}

func (rs *RetryingStore) CommonAncestor(ctx context.Context, a, b string) (ref string, err error) {
	err = rs.retry(ctx, "common ancestor", func() error {
		ref, err = rs.inner.CommonAncestor(ctx, a, b)
		return err
	})
	return
}
