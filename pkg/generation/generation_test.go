package generation_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/pulse/pkg/generation"
)

type closeTracker struct {
	io.Reader
	closed atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	if rc, ok := c.Reader.(io.Closer); ok {
		return rc.Close()
	}
	return nil
}

func opener(body *closeTracker) generation.Opener {
	return generation.OpenerFunc(func(context.Context, generation.Request) (io.ReadCloser, error) {
		return body, nil
	})
}

func frames(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: " + p + "\n\n")
	}
	return b.String()
}

type progressLog struct {
	mu      sync.Mutex
	updates []generation.Progress
}

func (p *progressLog) record(pr generation.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, pr)
}

func (p *progressLog) percents() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.updates))
	for _, u := range p.updates {
		out = append(out, u.Percent)
	}
	return out
}

var _ = Describe("Generation", func() {
	var progress *progressLog

	BeforeEach(func() {
		progress = &progressLog{}
	})

	It("accumulates chunks and completes with the raw result", func() {
		body := &closeTracker{Reader: iotest.OneByteReader(strings.NewReader(frames(
			`{"type":"chunk","content":"Hel"}`,
			`{"type":"chunk","content":"lo"}`,
			`{"type":"complete","result":{"title":"Hello"}}`,
		)))}

		g := generation.New(opener(body), generation.WithProgress(progress.record))
		res, err := g.Run(context.Background(), generation.Request{Prompt: "greet"})

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Text).To(Equal("Hello"))
		Expect(res.Chunks).To(Equal(2))
		Expect(string(res.Raw)).To(MatchJSON(`{"title":"Hello"}`))
		Expect(g.Status()).To(Equal(generation.StatusCompleted))
		Expect(progress.percents()).To(Equal([]int{0, 5, 10, 100}))
		Expect(body.closed.Load()).To(BeTrue())
	})

	It("fails when the stream ends without a terminal frame", func() {
		body := &closeTracker{Reader: strings.NewReader(frames(
			`{"type":"chunk","content":"a"}`,
			`{"type":"chunk","content":"b"}`,
		))}

		g := generation.New(opener(body))
		res, err := g.Run(context.Background(), generation.Request{})

		Expect(err).To(MatchError(generation.ErrIncomplete))
		Expect(res).To(BeNil())
		Expect(g.Status()).To(Equal(generation.StatusFailed))
		Expect(body.closed.Load()).To(BeTrue())
	})

	It("does not complete on a complete frame without its terminating blank line", func() {
		body := &closeTracker{Reader: strings.NewReader(`data: {"type":"complete","result":{}}` + "\n")}

		_, err := generation.New(opener(body)).Run(context.Background(), generation.Request{})
		Expect(err).To(MatchError(generation.ErrIncomplete))
	})

	It("propagates an error frame verbatim", func() {
		body := &closeTracker{Reader: strings.NewReader(frames(
			`{"type":"chunk","content":"partial"}`,
			`{"type":"error","error":"quota exceeded for workspace"}`,
			`{"type":"complete","result":{}}`,
		))}

		g := generation.New(opener(body))
		_, err := g.Run(context.Background(), generation.Request{})

		var streamErr *generation.StreamError
		Expect(errors.As(err, &streamErr)).To(BeTrue())
		Expect(streamErr.Message).To(Equal("quota exceeded for workspace"))
		Expect(g.Status()).To(Equal(generation.StatusFailed))
		Expect(body.closed.Load()).To(BeTrue())
	})

	It("skips malformed and unknown frames", func() {
		body := &closeTracker{Reader: strings.NewReader(frames(
			`{"type":"chunk","content":"a"}`,
			`{"type":"chunk",`,
			`{"type":"ping"}`,
			`{"type":"chunk","text":"b"}`,
			`{"type":"complete","result":null}`,
		))}

		res, err := generation.New(opener(body)).Run(context.Background(), generation.Request{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Text).To(Equal("ab"))
		Expect(res.Skipped).To(Equal(2))
	})

	It("caps progress below 100 until completion", func() {
		payloads := make([]string, 0, 31)
		for range 30 {
			payloads = append(payloads, `{"type":"chunk","content":"x"}`)
		}
		payloads = append(payloads, `{"type":"complete","result":{}}`)
		body := &closeTracker{Reader: strings.NewReader(frames(payloads...))}

		g := generation.New(opener(body), generation.WithProgress(progress.record))
		_, err := g.Run(context.Background(), generation.Request{})
		Expect(err).NotTo(HaveOccurred())

		percents := progress.percents()
		last := percents[len(percents)-1]
		Expect(last).To(Equal(100))
		for i, p := range percents[:len(percents)-1] {
			Expect(p).To(BeNumerically("<=", generation.ProgressCeiling))
			if i > 0 {
				Expect(p).To(BeNumerically(">=", percents[i-1]))
			}
		}
	})

	It("closes the body and fails on cancellation", func() {
		pr, pw := io.Pipe()
		body := &closeTracker{Reader: pr}
		ctx, cancel := context.WithCancel(context.Background())

		g := generation.New(opener(body), generation.WithProgress(progress.record))

		done := make(chan error, 1)
		go func() {
			_, err := g.Run(ctx, generation.Request{})
			done <- err
		}()

		_, err := pw.Write([]byte(frames(`{"type":"chunk","content":"a"}`)))
		Expect(err).NotTo(HaveOccurred())
		Eventually(progress.percents).Should(ContainElement(5))

		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
		Expect(body.closed.Load()).To(BeTrue())
		Expect(g.Status()).To(Equal(generation.StatusFailed))
	})

	It("reports open failures", func() {
		g := generation.New(generation.OpenerFunc(func(context.Context, generation.Request) (io.ReadCloser, error) {
			return nil, errors.New("connection refused")
		}))

		_, err := g.Run(context.Background(), generation.Request{})
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
		Expect(g.Status()).To(Equal(generation.StatusFailed))
	})

	It("runs only once", func() {
		body := &closeTracker{Reader: strings.NewReader(frames(`{"type":"complete","result":{}}`))}
		g := generation.New(opener(body))

		_, err := g.Run(context.Background(), generation.Request{})
		Expect(err).NotTo(HaveOccurred())

		_, err = g.Run(context.Background(), generation.Request{})
		Expect(err).To(MatchError(generation.ErrAlreadyStarted))
	})
})
