// Package ratelimit enforces the remote bibliography store's request quota.
//
// The store counts requests over a rolling window (100 requests per 10
// minutes) and additionally tolerates at most one request every few seconds.
// Every outbound store call acquires the limiter first; the limiter only
// delays callers, it never rejects them.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Default quota parameters for the remote bibliography store.
const (
	DefaultWindow            = 600 * time.Second
	DefaultMaxRequests       = 100
	DefaultThresholdFraction = 0.9
	DefaultMinInterval       = 6 * time.Second
	DefaultBuffer            = 5 * time.Second
)

// Config holds the quota parameters.
type Config struct {
	// Window is the rolling time span over which the store counts requests.
	Window time.Duration

	// MaxRequests is the hard quota within one window.
	MaxRequests int

	// ThresholdFraction is the fill fraction of the quota at which the
	// limiter starts stalling callers (e.g. 0.9 stalls at 90 of 100).
	ThresholdFraction float64

	// MinInterval is the minimum spacing between two consecutive requests.
	MinInterval time.Duration

	// Buffer is extra slack added to every window wait.
	Buffer time.Duration
}

func (c *Config) applyDefaults() {
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	if c.ThresholdFraction == 0 {
		c.ThresholdFraction = DefaultThresholdFraction
	}
	if c.MinInterval == 0 {
		c.MinInterval = DefaultMinInterval
	}
}

// Limiter serializes access to the remote store. The timestamp FIFO is the
// single serialization point for all remote calls: the mutex is held for the
// whole of Acquire, including waits, so concurrent callers line up here
// instead of racing the quota.
type Limiter struct {
	mu        sync.Mutex
	cfg       Config
	threshold int
	sent      []time.Time
	spacing   *rate.Limiter
	now       func() time.Time
	log       zerolog.Logger
}

// New creates a Limiter with the given configuration.
func New(cfg Config, log zerolog.Logger) *Limiter {
	cfg.applyDefaults()

	threshold := int(cfg.ThresholdFraction * float64(cfg.MaxRequests))
	if threshold < 1 {
		threshold = 1
	}
	if threshold > cfg.MaxRequests {
		threshold = cfg.MaxRequests
	}

	return &Limiter{
		cfg:       cfg,
		threshold: threshold,
		sent:      make([]time.Time, 0, cfg.MaxRequests),
		spacing:   rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		now:       time.Now,
		log:       log.With().Str("component", "ratelimit").Logger(),
	}
}

// Acquire blocks until it is safe to issue one remote request, then records
// the request time and returns. It returns early only when ctx is done.
//
// Two checks compose: first the rolling-window quota, then the minimum
// inter-request spacing. Neither ever drops a request.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		now := l.now()
		if now.IsZero() {
			// Clock failure: fail closed, treat as at-quota.
			if err := sleepCtx(ctx, l.cfg.Window+l.cfg.Buffer); err != nil {
				return err
			}
			continue
		}

		l.prune(now)
		if len(l.sent) < l.threshold {
			break
		}

		wait := l.cfg.Window - now.Sub(l.sent[0]) + l.cfg.Buffer
		if wait <= 0 {
			continue
		}
		l.log.Warn().
			Int("in_window", len(l.sent)).
			Int("quota", l.cfg.MaxRequests).
			Dur("wait", wait).
			Msg("approaching store quota, stalling")
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}

	if err := l.spacing.Wait(ctx); err != nil {
		return err
	}

	l.sent = append(l.sent, l.now())
	if len(l.sent) > l.cfg.MaxRequests {
		l.sent = l.sent[len(l.sent)-l.cfg.MaxRequests:]
	}
	return nil
}

// InWindow returns the number of requests recorded inside the current
// window. Used for logging and metrics.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.sent)
}

// prune drops timestamps older than the window. Callers hold l.mu.
func (l *Limiter) prune(now time.Time) {
	i := 0
	for i < len(l.sent) && now.Sub(l.sent[i]) > l.cfg.Window {
		i++
	}
	if i > 0 {
		l.sent = append(l.sent[:0], l.sent[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
