package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/pulse/pkg/engine"
)

var _ = Describe("Watcher", func() {
	var (
		path   string
		mu     sync.Mutex
		loaded [][]engine.Engine
		cancel context.CancelFunc
		done   chan error
	)

	reloads := func() [][]engine.Engine {
		mu.Lock()
		defer mu.Unlock()
		return append([][]engine.Engine(nil), loaded...)
	}

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "engines.toml")
		loaded = nil

		w := engine.NewWatcher(path, func(e []engine.Engine) {
			mu.Lock()
			defer mu.Unlock()
			loaded = append(loaded, e)
		}, nil)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- w.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})

	It("hands the new engines to the callback when the file changes", func() {
		Eventually(func() [][]engine.Engine {
			Expect(os.WriteFile(path, []byte(tableTOML), 0o600)).To(Succeed())
			return reloads()
		}).ShouldNot(BeEmpty())

		last := reloads()[len(reloads())-1]
		Expect(last[0].ID).To(Equal("pricing"))
	})

	It("ignores invalid files", func() {
		for range 5 {
			Expect(os.WriteFile(path, []byte("[[engine]]\nname = \"no id\"\n"), 0o600)).To(Succeed())
		}
		Consistently(reloads, "200ms").Should(BeEmpty())
	})
})
