package watchcmder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/pulse/pkg/config"
	"github.com/papercomputeco/pulse/pkg/feed"
	"github.com/papercomputeco/pulse/pkg/supervisor"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func feedLine(id, message string) string {
	return fmt.Sprintf(`data: {"id":%q,"timestamp":"2026-03-01T14:05:09Z","phase":"detect","status":"warning","message":%q}`+"\n", id, message)
}

var _ = Describe("plainPrinter", func() {
	It("prints state changes, new events and engine transitions", func() {
		var out bytes.Buffer
		p := &plainPrinter{w: &out}

		p.print(feed.Snapshot{State: supervisor.State{Phase: supervisor.PhaseConnecting}})
		Expect(out.String()).To(Equal("● connecting\n"))

		out.Reset()
		p.print(feed.Snapshot{State: supervisor.State{Phase: supervisor.PhaseConnecting, ElapsedSeconds: 6}})
		Expect(out.String()).To(Equal("  Still connecting...\n"))

		out.Reset()
		snap := liveSnapshot(1, "anomaly spotted")
		p.print(snap)
		Expect(out.String()).To(ContainSubstring("● connected\n"))
		Expect(out.String()).To(ContainSubstring("anomaly spotted"))
		Expect(out.String()).To(ContainSubstring("[Sentinel] active"))

		out.Reset()
		p.print(snap)
		Expect(out.String()).To(BeEmpty())
	})

	It("reports events that were coalesced away", func() {
		var out bytes.Buffer
		p := &plainPrinter{w: &out, lastLabel: "connected"}

		snap := liveSnapshot(10, "i", "j")
		p.print(snap)
		Expect(out.String()).To(ContainSubstring("... 8 events not shown"))
		Expect(out.String()).To(ContainSubstring(" i\n"))
		Expect(out.String()).To(ContainSubstring(" j\n"))
	})

	It("includes the retry count and error when reconnecting", func() {
		var out bytes.Buffer
		p := &plainPrinter{w: &out}

		p.print(feed.Snapshot{State: supervisor.State{
			Phase:        supervisor.PhaseReconnecting,
			Reconnecting: true,
			RetryCount:   2,
			LastError:    errors.New("connection reset"),
		}})
		Expect(out.String()).To(Equal("● reconnecting (retry 2): connection reset\n"))
	})
})

var _ = Describe("watch command", func() {
	var (
		server *httptest.Server
		sent   chan struct{}
	)

	BeforeEach(func() {
		sent = make(chan struct{})
		var once sync.Once

		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/feed", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, ": keep-alive\n"+feedLine("1", "traffic spike detected")+feedLine("2", "plan drafted"))
			w.(http.Flusher).Flush()
			once.Do(func() { close(sent) })
			<-r.Context().Done()
		})
		mux.HandleFunc("GET /api/settings", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"enabled":false,"mode":"manual"}`))
		})
		server = httptest.NewServer(mux)
	})

	AfterEach(func() {
		server.Close()
	})

	It("prints the feed as lines and records the raw stream", func() {
		dir := GinkgoT().TempDir()
		recordPath := filepath.Join(dir, "feed.sse")
		logPath := filepath.Join(dir, "watch.log")

		root := &cobra.Command{Use: "pulse", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().Bool("debug", false, "")
		root.PersistentFlags().String(config.ConfigDirFlag, "", "")
		root.AddCommand(NewWatchCmd())

		out := &safeBuffer{}
		root.SetOut(out)
		root.SetErr(io.Discard)
		root.SetArgs([]string{
			"watch", "--plain",
			"--base-url", server.URL,
			"--record", recordPath,
			"--log-file", logPath,
			"--" + config.ConfigDirFlag, dir,
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- root.ExecuteContext(ctx)
		}()

		Eventually(sent).WithTimeout(5 * time.Second).Should(BeClosed())
		Eventually(out.String).WithTimeout(5 * time.Second).Should(ContainSubstring("plan drafted"))
		Expect(out.String()).To(ContainSubstring("● connected"))
		Expect(out.String()).To(ContainSubstring("traffic spike detected"))
		Expect(out.String()).To(ContainSubstring("[Sentinel] active"))

		cancel()
		Eventually(done).WithTimeout(5 * time.Second).Should(Receive(BeNil()))

		raw, err := os.ReadFile(recordPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(HavePrefix(": keep-alive\n"))
		Expect(string(raw)).To(ContainSubstring(`"id":"2"`))

		logs, err := os.ReadFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(logs)).To(ContainSubstring(`"msg":"watching feed"`))
		Expect(string(logs)).To(ContainSubstring(`"mode":"manual"`))
	})
})
