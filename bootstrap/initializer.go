// Package bootstrap constructs the registry store behind a bounded
// retry/backoff state machine, so transient storage failures at startup
// do not take the whole process down with them.
package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/petal-labs/quorum/core"
	"github.com/petal-labs/quorum/registry"
)

// State is one phase of the initialization state machine:
// Idle -> Attempting -> (Succeeded | BackingOff -> Attempting) -> Fatal.
type State string

const (
	StateIdle       State = "idle"
	StateAttempting State = "attempting"
	StateBackingOff State = "backing_off"
	StateSucceeded  State = "succeeded"
	StateFatal      State = "fatal"
)

// Factory constructs the store. It is invoked once per attempt.
type Factory func(ctx context.Context) (registry.Store, error)

// InitError is the fatal initialization failure returned after every
// attempt has been exhausted. It wraps the last underlying cause and is
// never retried further by the initializer itself.
type InitError struct {
	Attempts int
	Cause    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("bootstrap: store initialization failed after %d attempts: %v", e.Attempts, e.Cause)
}

// Unwrap exposes the last underlying failure for errors.Is/errors.As.
func (e *InitError) Unwrap() error {
	return e.Cause
}

// Config bounds the retry policy.
type Config struct {
	// MaxAttempts is the total number of factory invocations before the
	// initializer goes fatal.
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt; each
	// subsequent wait doubles it.
	BaseDelay time.Duration
}

// DefaultConfig returns the default 3-attempt policy with 2s/4s waits,
// a worst case of about 6 seconds of blocking before a fatal result.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
	}
}

// Initializer runs the bounded retry state machine around a store
// factory. Callers should treat Initialize as a cancelable, time-bounded
// setup phase: cancellation during a backoff wait aborts before the next
// attempt rather than completing it.
type Initializer struct {
	cfg    Config
	events core.EventHandler

	mu    sync.Mutex
	state State
}

// Option customizes an Initializer.
type Option func(*Initializer)

// WithEventHandler attaches an event handler to the initializer.
func WithEventHandler(h core.EventHandler) Option {
	return func(i *Initializer) { i.events = h }
}

// New creates an Initializer with the given policy.
func New(cfg Config, opts ...Option) (*Initializer, error) {
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("bootstrap: max attempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.BaseDelay < 0 {
		return nil, fmt.Errorf("bootstrap: base delay must not be negative, got %v", cfg.BaseDelay)
	}
	i := &Initializer{
		cfg:   cfg,
		state: StateIdle,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// State returns the machine's current phase.
func (i *Initializer) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Initializer) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

// Initialize drives the factory through the retry state machine. A
// first-attempt success returns immediately with no delay. A
// recoverable failure on attempt n waits BaseDelay * 2^(n-1) before the
// next attempt. After exhausting all attempts it returns an *InitError
// wrapping the last underlying failure.
func (i *Initializer) Initialize(ctx context.Context, factory Factory) (registry.Store, error) {
	if factory == nil {
		return nil, fmt.Errorf("bootstrap: factory is required")
	}

	var lastErr error
	for attempt := 1; attempt <= i.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			i.setState(StateFatal)
			return nil, err
		}

		i.setState(StateAttempting)
		i.emit(core.Event{
			Kind: core.EventInitAttempt,
			Time: time.Now(),
			Payload: map[string]any{
				"attempt": attempt,
			},
		})

		store, err := factory(ctx)
		if err == nil {
			i.setState(StateSucceeded)
			return store, nil
		}
		lastErr = err

		if attempt == i.cfg.MaxAttempts {
			break
		}

		wait := i.cfg.BaseDelay << (attempt - 1)
		i.setState(StateBackingOff)
		i.emit(core.Event{
			Kind: core.EventInitBackoff,
			Time: time.Now(),
			Err:  err,
			Payload: map[string]any{
				"attempt": attempt,
				"wait":    wait.String(),
			},
		})

		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			i.setState(StateFatal)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	i.setState(StateFatal)
	return nil, &InitError{Attempts: i.cfg.MaxAttempts, Cause: lastErr}
}

func (i *Initializer) emit(e core.Event) {
	if i.events != nil {
		i.events(e)
	}
}
