// Package gateway dispatches generation requests across an ordered list of
// providers, retrying transient failures, failing over on quota and auth
// failures, and charging the session call budget once per network call.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonathan/b2b-content-agent/internal/budget"
	"github.com/jonathan/b2b-content-agent/internal/llm"
	"github.com/jonathan/b2b-content-agent/internal/quota"
)

// Config holds retry and failover tuning.
type Config struct {
	MaxRetries     int           // Transient retries per provider
	InitialBackoff time.Duration // First transient backoff
	MaxBackoff     time.Duration // Backoff cap
	MaxQuotaWait   time.Duration // Longest total wait on one provider's quota per request before failing over
	AuthCooldown   time.Duration // How long a provider is benched after an auth failure
}

// DefaultConfig returns the default retry and failover tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 3 * time.Second,
		MaxBackoff:     60 * time.Second,
		MaxQuotaWait:   15 * time.Second,
		AuthCooldown:   time.Hour,
	}
}

// Request is a single generation request.
type Request struct {
	Prompt string
	Tier   llm.ModelTier
	Label  string // Used in log lines
}

// Response is a successful generation.
type Response struct {
	Text     string
	Provider llm.Provider
	Model    string
	Attempts int // Network calls made, including failed ones
}

// Dispatcher is the interface stage runners depend on.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (*Response, error)
}

// ProviderStats counts calls per provider for usage reporting.
type ProviderStats struct {
	Calls     int
	Successes int
	Failures  int
	QuotaHits int           // Quota errors plus refusals from the local window
	Waited    time.Duration // Total time spent in backoff or quota waits
}

// Gateway implements Dispatcher over real provider clients.
type Gateway struct {
	clients []llm.Client
	quota   *quota.Tracker
	budget  *budget.Counter
	config  Config
	sleep   func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	stats map[llm.Provider]*ProviderStats
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSleep overrides how the gateway waits between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) {
		g.sleep = sleep
	}
}

// New creates a gateway that tries clients in the given order.
func New(clients []llm.Client, tracker *quota.Tracker, counter *budget.Counter, config Config, opts ...Option) (*Gateway, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("at least one provider client is required")
	}
	if tracker == nil || counter == nil {
		return nil, fmt.Errorf("quota tracker and budget counter are required")
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}

	g := &Gateway{
		clients: clients,
		quota:   tracker,
		budget:  counter,
		config:  config,
		sleep:   sleepContext,
		stats:   make(map[llm.Provider]*ProviderStats),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Providers returns the configured failover order.
func (g *Gateway) Providers() []llm.Provider {
	out := make([]llm.Provider, len(g.clients))
	for i, c := range g.clients {
		out[i] = c.Provider()
	}
	return out
}

// Dispatch sends req to the first provider able to serve it. The budget is
// checked and charged immediately before every network call.
func (g *Gateway) Dispatch(ctx context.Context, req Request) (*Response, error) {
	attempts := 0
	var failures []Failure

	for _, client := range g.clients {
		provider := client.Provider()
		retries := 0
		backoff := g.config.InitialBackoff
		var waited time.Duration

	attemptLoop:
		for {
			if err := ctx.Err(); err != nil {
				return nil, &Error{Kind: KindCanceled, Attempts: attempts, Failures: failures, Cause: err}
			}

			granted, wait := g.quota.Reserve(string(provider))
			if !granted {
				g.note(provider, func(s *ProviderStats) { s.QuotaHits++ })
				if waited+wait > g.config.MaxQuotaWait {
					log.Printf("[GATEWAY] %s unavailable for %s after %s waiting, failing over", provider, wait.Round(time.Second), waited.Round(time.Second))
					failures = append(failures, Failure{Provider: provider, Kind: llm.KindQuota, Message: fmt.Sprintf("quota unavailable for %s after %s waiting", wait.Round(time.Second), waited.Round(time.Second))})
					break attemptLoop
				}
				waited += wait
				g.note(provider, func(s *ProviderStats) { s.Waited += wait })
				if err := g.sleep(ctx, wait); err != nil {
					return nil, &Error{Kind: KindCanceled, Attempts: attempts, Failures: failures, Cause: err}
				}
				continue
			}

			if err := g.budget.Reserve(); err != nil {
				g.quota.Release(string(provider))
				return nil, &Error{Kind: KindBudgetExhausted, Attempts: attempts, Failures: failures}
			}
			attempts++

			text, err := client.GenerateContent(ctx, req.Prompt, req.Tier)
			if err == nil {
				g.quota.RecordResult(string(provider), quota.Result{Kind: quota.ResultSuccess})
				g.record(provider, true)
				return &Response{
					Text:     text,
					Provider: provider,
					Model:    client.GetModel(req.Tier),
					Attempts: attempts,
				}, nil
			}
			g.record(provider, false)

			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, &Error{Kind: KindCanceled, Attempts: attempts, Failures: failures, Cause: ctxErr}
			}

			pe := llm.AsProviderError(provider, err)
			failures = append(failures, Failure{Provider: provider, Kind: pe.Kind, Message: pe.Message})
			log.Printf("[GATEWAY] %s %s attempt failed (%s): %v", req.Label, provider, pe.Kind, err)

			switch pe.Kind {
			case llm.KindTransient:
				g.quota.RecordResult(string(provider), quota.Result{Kind: quota.ResultFailure})
				if retries >= g.config.MaxRetries {
					break attemptLoop
				}
				retries++
				wait := backoff
				g.note(provider, func(s *ProviderStats) { s.Waited += wait })
				if err := g.sleep(ctx, backoff); err != nil {
					return nil, &Error{Kind: KindCanceled, Attempts: attempts, Failures: failures, Cause: err}
				}
				backoff *= 2
				if backoff > g.config.MaxBackoff {
					backoff = g.config.MaxBackoff
				}
			case llm.KindQuota:
				g.note(provider, func(s *ProviderStats) { s.QuotaHits++ })
				g.quota.RecordResult(string(provider), quota.Result{Kind: quota.ResultQuotaExceeded, RetryAfter: pe.RetryAfter})
				break attemptLoop
			case llm.KindAuth:
				g.quota.RecordResult(string(provider), quota.Result{Kind: quota.ResultUnavailable, RetryAfter: g.config.AuthCooldown})
				break attemptLoop
			default:
				break attemptLoop
			}
		}
	}

	return nil, &Error{Kind: KindAllProvidersExhausted, Attempts: attempts, Failures: failures}
}

func (g *Gateway) record(p llm.Provider, ok bool) {
	g.note(p, func(s *ProviderStats) {
		s.Calls++
		if ok {
			s.Successes++
		} else {
			s.Failures++
		}
	})
}

func (g *Gateway) note(p llm.Provider, fn func(s *ProviderStats)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, exists := g.stats[p]
	if !exists {
		s = &ProviderStats{}
		g.stats[p] = s
	}
	fn(s)
}

// Stats returns a copy of the per-provider call counters.
func (g *Gateway) Stats() map[llm.Provider]ProviderStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[llm.Provider]ProviderStats, len(g.stats))
	for p, s := range g.stats {
		out[p] = *s
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
