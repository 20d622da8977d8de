// Package feed subscribes to the live event feed. It keeps the connection
// alive through a supervisor, records decoded events in a rolling log and
// publishes snapshots carrying the display window and per-engine activity.
package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/pulse/pkg/engine"
	"github.com/papercomputeco/pulse/pkg/event"
	"github.com/papercomputeco/pulse/pkg/eventlog"
	"github.com/papercomputeco/pulse/pkg/logger"
	"github.com/papercomputeco/pulse/pkg/sse"
	"github.com/papercomputeco/pulse/pkg/supervisor"
)

const (
	DefaultDisplayWindow  = 8
	DefaultClassifyWindow = 20
)

// Config parameterises a Feed.
type Config struct {
	// DisplayWindow is the number of most recent events in a snapshot.
	DisplayWindow int

	// ClassifyWindow is the number of most recent events the engine
	// classifier looks at. It also sizes the rolling log.
	ClassifyWindow int

	// Engines defaults to engine.DefaultTable.
	Engines []engine.Engine

	// DedupeIDs drops an event whose id is still in the rolling log.
	DedupeIDs bool

	// Record, when set, receives every raw byte read from the stream.
	Record io.Writer

	Backoff      supervisor.Backoff
	TickInterval time.Duration
	Logger       *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.DisplayWindow <= 0 {
		c.DisplayWindow = DefaultDisplayWindow
	}
	if c.ClassifyWindow <= 0 {
		c.ClassifyWindow = DefaultClassifyWindow
	}
	if c.ClassifyWindow < c.DisplayWindow {
		c.ClassifyWindow = c.DisplayWindow
	}
	if c.Engines == nil {
		c.Engines = engine.DefaultTable().Engines
	}
	if c.Backoff == (supervisor.Backoff{}) {
		c.Backoff = supervisor.DefaultBackoff()
	}
	if c.TickInterval <= 0 {
		c.TickInterval = supervisor.DefaultTickInterval
	}
	c.Logger = logger.OrNop(c.Logger)
}

// Snapshot is an immutable view of a feed.
type Snapshot struct {
	State supervisor.State

	// Events holds the display window, oldest first.
	Events []event.Event

	// Activity has one entry per engine in Engines.
	Activity map[string]engine.Activity
	Engines  []engine.Engine

	// Total counts every event appended, Skipped every malformed frame and
	// Duplicates every event dropped by id.
	Total      int
	Skipped    int
	Duplicates int
}

// Feed is one live subscription. Create with New, begin with Start and tear
// down with Close.
type Feed struct {
	cfg     Config
	log     *eventlog.Log
	decoder *event.Decoder
	sup     *supervisor.Supervisor

	mu         sync.Mutex
	state      supervisor.State
	engines    []engine.Engine
	duplicates int
	subs       map[int]chan Snapshot
	nextSub    int
	closed     bool
}

// New returns an unstarted Feed reading from d.
func New(d supervisor.Dialer, cfg Config) *Feed {
	cfg.applyDefaults()

	f := &Feed{
		cfg:     cfg,
		log:     eventlog.New(cfg.ClassifyWindow),
		decoder: event.NewDecoder(cfg.Logger),
		engines: cfg.Engines,
		subs:    make(map[int]chan Snapshot),
	}
	f.sup = supervisor.New(d, f.consume,
		supervisor.WithBackoff(cfg.Backoff),
		supervisor.WithTickInterval(cfg.TickInterval),
		supervisor.WithLogger(cfg.Logger),
		supervisor.WithObserver(f.onState),
	)
	return f
}

// Start connects in the background.
func (f *Feed) Start(ctx context.Context) {
	f.sup.Start(ctx)
}

// Close disconnects and closes every subscription channel. No snapshot is
// delivered after Close returns.
func (f *Feed) Close() {
	f.sup.Close()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
}

// Subscribe returns a channel of snapshots and a cancel func. The channel
// holds at most one pending snapshot; a newer one replaces it, so a slow
// reader only ever misses intermediate states. The current snapshot is
// delivered immediately.
func (f *Feed) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextSub
	f.nextSub++
	f.subs[id] = ch
	ch <- f.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				close(c)
				delete(f.subs, id)
			}
		})
	}
}

// Snapshot returns the current view.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// SetEngines swaps the engine table, e.g. after a reload, and republishes.
func (f *Feed) SetEngines(engines []engine.Engine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.engines = engines
	f.publishLocked()
}

func (f *Feed) onState(s supervisor.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	f.publishLocked()
}

// consume is the supervisor handler: it reads frames until the stream fails.
func (f *Feed) consume(ctx context.Context, body io.Reader) error {
	var opts []sse.ReaderOption
	if f.cfg.Record != nil {
		opts = append(opts, sse.WithTee(f.cfg.Record))
	}
	reader := sse.NewReader(body, sse.FramingLine, opts...)
	reader.OnOversize = func() {
		f.cfg.Logger.Warn("discarding oversized feed frame")
	}

	for {
		frame, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ev, ok := f.decoder.Event(frame.Data)
		if !ok {
			f.mu.Lock()
			f.publishLocked()
			f.mu.Unlock()
			continue
		}
		f.append(ev)
	}
}

func (f *Feed) append(ev event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cfg.DedupeIDs && f.log.Contains(ev.ID) {
		f.duplicates++
		f.cfg.Logger.Debug("dropping duplicate event", "id", ev.ID)
		return
	}

	f.log.Append(ev)
	f.publishLocked()
}

func (f *Feed) snapshotLocked() Snapshot {
	views := f.log.Views(f.cfg.DisplayWindow, f.cfg.ClassifyWindow)
	return Snapshot{
		State:      f.state,
		Events:     views[0],
		Activity:   engine.Classify(f.engines, views[1]),
		Engines:    f.engines,
		Total:      f.log.Total(),
		Skipped:    f.decoder.Skipped(),
		Duplicates: f.duplicates,
	}
}

// publishLocked hands the latest snapshot to every subscriber without
// blocking: a pending, unread snapshot is replaced.
func (f *Feed) publishLocked() {
	if f.closed || len(f.subs) == 0 {
		return
	}

	snap := f.snapshotLocked()
	for _, ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
