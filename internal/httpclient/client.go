package httpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/vodhub/vodhub/internal/cache"
	"github.com/vodhub/vodhub/internal/circuitbreaker"
	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/logger"
	"github.com/vodhub/vodhub/internal/models"
	"github.com/vodhub/vodhub/internal/retry"
	"golang.org/x/time/rate"
)

// Policy controls one fetch: response caching, retry shape, the per-request
// timeout, and whether the caller waits for rate quota
type Policy struct {
	CacheTTL time.Duration
	Retry    retry.Config
	Timeout  time.Duration
	NoWait   bool
}

// DefaultPolicy returns the policy used for control-plane calls
func DefaultPolicy() Policy {
	return Policy{
		Retry:   retry.DefaultConfig(),
		Timeout: 30 * time.Second,
	}
}

type providerLimiter struct {
	sem     chan struct{}
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

// Client is a rate-limited HTTP client shared by all provider adapters.
// Each provider gets a concurrency semaphore, a sliding rate window and a
// circuit breaker sized from its api_rate config.
type Client struct {
	http  *http.Client
	cache *cache.Store

	mu        sync.RWMutex
	providers map[string]*providerLimiter
}

// New creates a client. The cache store may be nil to disable caching.
func New(cacheStore *cache.Store) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:     cacheStore,
		providers: make(map[string]*providerLimiter),
	}
}

// Configure installs or resizes the quota of one provider. Calls in flight
// keep the limiter they acquired; new calls see the new quota.
func (c *Client) Configure(providerID string, apiRate models.APIRate) {
	if apiRate.Concurrent <= 0 {
		apiRate.Concurrent = 1
	}
	if apiRate.DurationSeconds <= 0 {
		apiRate.DurationSeconds = 1
	}

	perSecond := float64(apiRate.Concurrent) / float64(apiRate.DurationSeconds)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[providerID] = &providerLimiter{
		sem:     make(chan struct{}, apiRate.Concurrent),
		limiter: rate.NewLimiter(rate.Limit(perSecond), apiRate.Concurrent),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
	}
}

// Remove drops the quota state of one provider
func (c *Client) Remove(providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.providers, providerID)
}

func (c *Client) limiterFor(providerID string) *providerLimiter {
	c.mu.RLock()
	pl, ok := c.providers[providerID]
	c.mu.RUnlock()
	if ok {
		return pl
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pl, ok := c.providers[providerID]; ok {
		return pl
	}
	pl = &providerLimiter{
		sem:     make(chan struct{}, 1),
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
	}
	c.providers[providerID] = pl
	return pl
}

// CacheKey derives the cache key of one request
func CacheKey(providerID, method, url string) string {
	sum := sha256.Sum256([]byte(providerID + "\x00" + method + "\x00" + url))
	return hex.EncodeToString(sum[:])
}

// Fetch performs a GET against one provider under its quota. Responses are
// served from cache when the policy carries a TTL; a cache hit consumes no
// quota at all.
func (c *Client) Fetch(ctx context.Context, providerID, url string, policy Policy) ([]byte, error) {
	key := CacheKey(providerID, http.MethodGet, url)

	if c.cache != nil && policy.CacheTTL > 0 {
		if body, err := c.cache.Get(key); err == nil {
			return body, nil
		}
	}

	pl := c.limiterFor(providerID)

	select {
	case pl.sem <- struct{}{}:
		defer func() { <-pl.sem }()
	case <-ctx.Done():
		return nil, apperrors.Cancelled(ctx.Err())
	}

	if policy.NoWait {
		if !pl.limiter.Allow() {
			return nil, apperrors.RateRejected(providerID)
		}
	} else {
		if err := pl.limiter.Wait(ctx); err != nil {
			return nil, apperrors.Cancelled(err)
		}
	}

	body, err := retry.DoWithResult(ctx, policy.Retry, func() ([]byte, error) {
		var payload []byte
		execErr := pl.breaker.Execute(func() error {
			var doErr error
			payload, doErr = c.do(ctx, providerID, url, policy.Timeout)
			return doErr
		})
		if execErr == circuitbreaker.ErrOpenState || execErr == circuitbreaker.ErrTooManyRequests {
			return nil, apperrors.UpstreamUnavailable(providerID, "circuit open", execErr)
		}
		return payload, execErr
	}, nil)

	if err != nil {
		if apperrors.IsRetryable(err) {
			// Retries exhausted on a transient fault
			err = apperrors.UpstreamUnavailable(providerID, "retries exhausted", err)
		}
		return nil, err
	}

	if c.cache != nil && policy.CacheTTL > 0 {
		if cacheErr := c.cache.Set(key, body, policy.CacheTTL); cacheErr != nil {
			logger.AppLogger().WithProvider(providerID).Warn("failed to cache response")
		}
	}

	return body, nil
}

func (c *Client) do(ctx context.Context, providerID, url string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeTimeout, "request timed out").
				WithContext("provider", providerID)
		}
		return nil, apperrors.UpstreamTransient(providerID, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.UpstreamAuth(providerID,
			fmt.Sprintf("upstream rejected credentials (status %d)", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, apperrors.UpstreamTransient(providerID,
			fmt.Sprintf("upstream error (status %d)", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, apperrors.New(apperrors.CodeUpstreamRejected,
			fmt.Sprintf("upstream rejected request (status %d)", resp.StatusCode)).
			WithContext("provider", providerID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.UpstreamTransient(providerID, "failed to read response", err)
	}
	return body, nil
}
