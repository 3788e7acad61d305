// Package health reports readiness of the auth core over HTTP and the standard gRPC health protocol.
package health

import (
	"context"
	"fmt"
	"time"
)

// checkTimeout bounds a single readiness probe.
const checkTimeout = 2 * time.Second

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is implemented by the OPA evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// CachePinger is implemented by the redis challenge repository.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// Checker runs readiness checks. Nil dependencies are skipped.
type Checker struct {
	db     Pinger
	policy PolicyChecker
	cache  CachePinger
}

// NewChecker returns a Checker over db and policy; either may be nil.
func NewChecker(db Pinger, policy PolicyChecker) *Checker {
	return &Checker{db: db, policy: policy}
}

// WithChallengeCache adds the external challenge store to the readiness checks.
func (c *Checker) WithChallengeCache(cache CachePinger) *Checker {
	c.cache = cache
	return c
}

// Check returns nil when every configured dependency is ready.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if c.db != nil {
		if err := c.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.cache != nil {
		if err := c.cache.Ping(ctx); err != nil {
			return fmt.Errorf("challenge store: %w", err)
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy engine: %w", err)
		}
	}
	return nil
}
