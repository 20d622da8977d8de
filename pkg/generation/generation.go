// Package generation consumes a one-shot streamed generation: a single
// request whose response is a sequence of chunk frames closed by exactly one
// complete or error frame.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/papercomputeco/pulse/pkg/event"
	"github.com/papercomputeco/pulse/pkg/logger"
	"github.com/papercomputeco/pulse/pkg/sse"
)

const (
	// ProgressStep is how far each chunk advances the progress estimate.
	ProgressStep = 5

	// ProgressCeiling caps the estimate until the complete frame arrives.
	ProgressCeiling = 90
)

var (
	// ErrIncomplete is returned when the stream ends before a complete or
	// error frame.
	ErrIncomplete = errors.New("stream ended without completion")

	// ErrAlreadyStarted is returned by a second call to Run.
	ErrAlreadyStarted = errors.New("generation already started")
)

// StreamError carries the message of an error frame verbatim.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	if e.Message == "" {
		return "generation failed"
	}
	return e.Message
}

// Status is the lifecycle of one generation.
type Status int

const (
	StatusNotStarted Status = iota
	StatusStreaming
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not started"
	case StatusStreaming:
		return "streaming"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request is the body posted to the generation endpoint.
type Request struct {
	Prompt string `json:"prompt"`

	// Params holds endpoint-specific options, sent verbatim.
	Params map[string]any `json:"params,omitempty"`
}

// Opener issues the generation request and returns the streaming body.
type Opener interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, req Request) (io.ReadCloser, error)

func (f OpenerFunc) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	return f(ctx, req)
}

// Progress is published after every state change.
type Progress struct {
	Status  Status
	Percent int
	Chunks  int

	// Text is everything accumulated so far.
	Text string
}

// Result is the outcome of a completed generation.
type Result struct {
	Text   string
	Chunks int

	// Raw is the result payload of the complete frame, verbatim.
	Raw json.RawMessage

	// Skipped counts malformed or unrecognised frames.
	Skipped int
}

// Generation runs a single streamed request. It is not reusable.
type Generation struct {
	opener     Opener
	onProgress func(Progress)
	logger     *slog.Logger
	chunkSize  int

	mu      sync.Mutex
	status  Status
	started bool
}

// Option configures a Generation.
type Option func(*Generation)

// WithProgress registers a callback invoked synchronously from Run.
func WithProgress(fn func(Progress)) Option {
	return func(g *Generation) {
		g.onProgress = fn
	}
}

// WithLogger sets the logger for skipped frames.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generation) {
		g.logger = logger.OrNop(l)
	}
}

// WithChunkSize sets the read size used on the response body.
func WithChunkSize(n int) Option {
	return func(g *Generation) {
		g.chunkSize = n
	}
}

// New returns a Generation that opens its stream through opener.
func New(opener Opener, opts ...Option) *Generation {
	g := &Generation{
		opener: opener,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Status returns the current lifecycle status.
func (g *Generation) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Run issues the request and consumes the stream until a terminal frame,
// the end of the stream or cancellation of ctx. The response body is closed
// before Run returns. Run may be called once.
func (g *Generation) Run(ctx context.Context, req Request) (*Result, error) {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	g.started = true
	g.mu.Unlock()

	body, err := g.opener.Open(ctx, req)
	if err != nil {
		g.finish(StatusFailed, nil)
		return nil, fmt.Errorf("opening generation stream: %w", err)
	}
	defer body.Close()

	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	g.setStatus(StatusStreaming)
	g.publish(Progress{Status: StatusStreaming})

	res, err := g.consume(ctx, body)
	if err != nil {
		g.finish(StatusFailed, res)
		return nil, err
	}

	g.finish(StatusCompleted, res)
	return res, nil
}

func (g *Generation) consume(ctx context.Context, body io.Reader) (*Result, error) {
	var opts []sse.ReaderOption
	if g.chunkSize > 0 {
		opts = append(opts, sse.WithChunkSize(g.chunkSize))
	}
	reader := sse.NewReader(body, sse.FramingBlankLine, opts...)
	reader.OnOversize = func() {
		g.logger.Warn("discarding oversized generation frame")
	}
	decoder := event.NewDecoder(g.logger)

	var (
		text    strings.Builder
		res     = &Result{}
		percent int
	)

	for {
		frame, err := reader.Next()
		if err != nil {
			res.Text = text.String()
			res.Skipped = decoder.Skipped()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			if errors.Is(err, io.EOF) {
				return res, ErrIncomplete
			}
			return res, fmt.Errorf("reading generation stream: %w", err)
		}

		msg, ok := decoder.Message(frame.Data)
		if !ok {
			continue
		}

		switch msg.Type {
		case event.MessageChunk:
			text.WriteString(msg.Content)
			res.Chunks++
			percent = min(percent+ProgressStep, ProgressCeiling)
			g.publish(Progress{
				Status:  StatusStreaming,
				Percent: percent,
				Chunks:  res.Chunks,
				Text:    text.String(),
			})

		case event.MessageComplete:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.Text = text.String()
			res.Raw = msg.Result
			res.Skipped = decoder.Skipped()
			return res, nil

		case event.MessageError:
			res.Text = text.String()
			res.Skipped = decoder.Skipped()
			return res, &StreamError{Message: msg.Error}
		}
	}
}

func (g *Generation) setStatus(s Status) {
	g.mu.Lock()
	g.status = s
	g.mu.Unlock()
}

func (g *Generation) finish(s Status, res *Result) {
	g.setStatus(s)

	p := Progress{Status: s}
	if res != nil {
		p.Chunks = res.Chunks
		p.Text = res.Text
	}
	if s == StatusCompleted {
		p.Percent = 100
	}
	g.publish(p)
}

func (g *Generation) publish(p Progress) {
	if g.onProgress != nil {
		g.onProgress(p)
	}
}
