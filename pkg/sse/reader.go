package sse

import (
	"errors"
	"io"
)

const defaultChunkSize = 4 * 1024

// Reader pulls raw chunks from a source io.Reader and yields assembled
// frames. Optionally every raw chunk is written verbatim to a tee
// destination as it is read.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌──────────────────────────┐
// │  Reader.Next()   │──▶│ tee io.Writer (optional) │
// └──────────────────┘   └──────────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Frame       │
// └──────────────────┘
//
// Frames are produced strictly in arrival order.
type Reader struct {
	src       io.Reader
	tee       io.Writer
	assembler *Assembler
	buf       []byte

	// queue holds frames completed by the last chunk but not yet returned.
	queue []Frame
	err   error

	// OnOversize is called when a carry-over is discarded for exceeding the
	// maximum frame size. Nil is fine.
	OnOversize func()
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithTee copies every raw chunk to w before it is assembled.
func WithTee(w io.Writer) ReaderOption {
	return func(r *Reader) {
		r.tee = w
	}
}

// WithChunkSize sets the size of the read buffer.
func WithChunkSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.buf = make([]byte, n)
		}
	}
}

// WithAssemblerOptions forwards options to the underlying Assembler.
func WithAssemblerOptions(opts ...AssemblerOption) ReaderOption {
	return func(r *Reader) {
		r.assembler = NewAssembler(r.assembler.Framing(), opts...)
	}
}

// NewReader returns a Reader that assembles frames from src using framing f.
func NewReader(src io.Reader, f Framing, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:       src,
		assembler: NewAssembler(f),
		buf:       make([]byte, defaultChunkSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next complete frame. It blocks until a frame is available
// or the source fails. When the source is exhausted Next returns io.EOF; an
// unterminated trailing segment is not treated as a frame and remains
// available through Pending.
func (r *Reader) Next() (Frame, error) {
	for len(r.queue) == 0 {
		if r.err != nil {
			return Frame{}, r.err
		}
		r.fill()
	}

	frame := r.queue[0]
	r.queue = r.queue[1:]
	return frame, nil
}

// fill performs one read from the source and queues the frames it completes.
func (r *Reader) fill() {
	n, err := r.src.Read(r.buf)
	if n > 0 {
		chunk := r.buf[:n]

		if r.tee != nil {
			if _, werr := r.tee.Write(chunk); werr != nil {
				r.err = werr
				return
			}
		}

		frames, perr := r.assembler.Push(chunk)
		if errors.Is(perr, ErrFrameTooLarge) && r.OnOversize != nil {
			r.OnOversize()
		}
		r.queue = append(r.queue, frames...)
	}

	if err != nil {
		r.err = err
	}
}

// Pending returns carry-over text that has not formed a complete frame.
func (r *Reader) Pending() string {
	return r.assembler.Pending()
}
