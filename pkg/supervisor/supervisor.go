// Package supervisor keeps a long-lived stream connected: it dials, hands the
// open body to a handler, and reconnects with backoff whenever the stream
// fails or ends. Its state is published to observers as immutable snapshots.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/pulse/pkg/logger"
)

// ErrStreamEnded is recorded as the reconnect cause when a handler returns
// without error, since a live stream is never expected to end.
var ErrStreamEnded = errors.New("stream ended unexpectedly")

var errNilBody = errors.New("dialer returned no body")

// Dialer opens the underlying transport. A returned body is the
// transport-level "open" signal.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadCloser, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (io.ReadCloser, error)

func (f DialerFunc) Dial(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// Handler consumes an open stream until it fails or ends.
type Handler func(ctx context.Context, body io.Reader) error

// Observer receives every published State.
type Observer func(State)

// DefaultTickInterval is the elapsed-time clock period.
const DefaultTickInterval = time.Second

// Supervisor runs one stream. Create with New, begin with Start and tear
// down with Close.
type Supervisor struct {
	dialer       Dialer
	handler      Handler
	backoff      Backoff
	tickInterval time.Duration
	observers    []Observer
	logger       *slog.Logger

	// notifyMu serialises state publication so observers see snapshots in
	// mutation order, and lets Close fence off every later notification.
	notifyMu sync.Mutex
	closed   bool

	mu    sync.Mutex
	state State

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithBackoff overrides DefaultBackoff.
func WithBackoff(b Backoff) Option {
	return func(s *Supervisor) {
		s.backoff = b
	}
}

// WithTickInterval overrides DefaultTickInterval.
func WithTickInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithObserver registers o. Observers run on supervisor goroutines and must
// not call Close.
func WithObserver(o Observer) Option {
	return func(s *Supervisor) {
		s.observers = append(s.observers, o)
	}
}

// WithLogger sets the logger for connection events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger.OrNop(l)
	}
}

// New returns an idle Supervisor.
func New(d Dialer, h Handler, opts ...Option) *Supervisor {
	s := &Supervisor{
		dialer:       d,
		handler:      h,
		backoff:      DefaultBackoff(),
		tickInterval: DefaultTickInterval,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins connecting in the background. Later calls do nothing. The
// stream lives until Close is called or ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)

		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			s.run(ctx)
		}()
		go func() {
			defer s.wg.Done()
			s.tick(ctx)
		}()
	})
}

// Close tears down the transport, stops the clock and waits for every
// goroutine to exit. No observer is invoked after Close returns. Close is
// idempotent and may be called without Start.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		s.notifyMu.Lock()
		s.closed = true
		s.notifyMu.Unlock()

		// Prevent a late Start from spawning goroutines.
		s.startOnce.Do(func() {})

		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()

		s.mu.Lock()
		s.state.Phase = PhaseClosed
		s.state.Connected = false
		s.state.Reconnecting = false
		s.mu.Unlock()
	})
}

// State returns a copy of the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) run(ctx context.Context) {
	for {
		s.update(func(st *State) bool {
			st.Phase = PhaseConnecting
			st.Connected = false
			st.Reconnecting = false
			return true
		})

		err := s.connect(ctx)
		if ctx.Err() != nil {
			return
		}

		retries := s.fail(err)
		delay := s.backoff.Delay(retries)
		s.logger.Warn("stream disconnected, reconnecting",
			"error", err, "retry", retries, "delay", delay)

		if !sleep(ctx, delay) {
			return
		}
	}
}

// connect performs one dial and, on success, runs the handler until the
// stream ends. The returned error is the reconnect cause.
func (s *Supervisor) connect(ctx context.Context) error {
	body, err := s.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dialing stream: %w", err)
	}
	if body == nil {
		return errNilBody
	}
	defer body.Close()

	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.update(func(st *State) bool {
		st.Phase = PhaseConnected
		st.Connected = true
		st.Reconnecting = false
		st.RetryCount = 0
		st.ElapsedSeconds = 0
		st.LastError = nil
		return true
	})
	s.logger.Info("stream connected")

	if err := s.handler(ctx, body); err != nil {
		return err
	}
	return ErrStreamEnded
}

func (s *Supervisor) fail(err error) int {
	var retries int
	s.update(func(st *State) bool {
		st.Phase = PhaseReconnecting
		st.Connected = false
		st.Reconnecting = true
		st.RetryCount++
		st.LastError = err
		retries = st.RetryCount
		return true
	})
	return retries
}

// tick advances the elapsed clock while the stream is not connected.
func (s *Supervisor) tick(ctx context.Context) {
	t := time.NewTicker(s.tickInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.update(func(st *State) bool {
				switch st.Phase {
				case PhaseConnecting, PhaseReconnecting:
					st.ElapsedSeconds++
					return true
				default:
					return false
				}
			})
		}
	}
}

// update mutates the state and publishes the result when fn reports a
// change.
func (s *Supervisor) update(fn func(*State) bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := fn(&s.state)
	snap := s.state
	s.mu.Unlock()

	if !changed || s.closed {
		return
	}
	for _, o := range s.observers {
		o(snap)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
