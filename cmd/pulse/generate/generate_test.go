package generatecmder_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	generatecmder "github.com/papercomputeco/pulse/cmd/pulse/generate"
	"github.com/papercomputeco/pulse/pkg/config"
	"github.com/papercomputeco/pulse/pkg/dotdir"
)

type generated struct {
	Prompt  string          `json:"prompt"`
	Text    string          `json:"text"`
	Chunks  int             `json:"chunks"`
	Skipped int             `json:"skipped"`
	Result  json.RawMessage `json:"result"`
}

var _ = Describe("generate command", func() {
	var (
		server    *httptest.Server
		configDir string
		stream    string

		mu       sync.Mutex
		received map[string]any
	)

	run := func(stdin string, args ...string) (string, error) {
		root := &cobra.Command{Use: "pulse", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().Bool("debug", false, "")
		root.PersistentFlags().String(config.ConfigDirFlag, "", "")
		root.AddCommand(generatecmder.NewGenerateCmd())

		var out, errOut bytes.Buffer
		root.SetIn(strings.NewReader(stdin))
		root.SetOut(&out)
		root.SetErr(&errOut)
		root.SetArgs(append([]string{
			"generate",
			"--base-url", server.URL,
			"--" + config.ConfigDirFlag, configDir,
		}, args...))

		err := root.Execute()
		return out.String(), err
	}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		stream = "data: {\"type\":\"chunk\",\"content\":\"Hello\"}\n\n" +
			"data: not json\n\n" +
			"data: {\"type\":\"chunk\",\"text\":\", world\"}\n\n" +
			"data: {\"type\":\"complete\",\"result\":{\"tokens\":2}}\n\n"

		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			received = body
			mu.Unlock()

			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, stream)
		})
		server = httptest.NewServer(mux)
	})

	AfterEach(func() {
		server.Close()
	})

	It("streams the generation and prints JSON", func() {
		out, err := run("", "--json", "--param", "tone=formal", "Say", "hello")
		Expect(err).NotTo(HaveOccurred())

		var got generated
		Expect(json.Unmarshal([]byte(out), &got)).To(Succeed())
		Expect(got.Prompt).To(Equal("Say hello"))
		Expect(got.Text).To(Equal("Hello, world"))
		Expect(got.Chunks).To(Equal(2))
		Expect(got.Skipped).To(Equal(1))
		Expect(got.Result).To(MatchJSON(`{"tokens":2}`))

		mu.Lock()
		defer mu.Unlock()
		Expect(received).To(HaveKeyWithValue("prompt", "Say hello"))
		Expect(received["params"]).To(HaveKeyWithValue("tone", "formal"))
	})

	It("prints plain text when stdout is not a terminal", func() {
		out, err := run("", "Say hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("Hello, world\n"))
	})

	It("reads the prompt from stdin", func() {
		out, err := run("  Plan the weekend campaign \n", "--json", "-")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring(`"prompt": "Plan the weekend campaign"`))
	})

	It("saves the result and shows it with --last", func() {
		_, err := run("", "Say hello")
		Expect(err).NotTo(HaveOccurred())

		last, err := dotdir.NewManager().LoadLastGeneration(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(last).NotTo(BeNil())
		Expect(last.Text).To(Equal("Hello, world"))

		out, err := run("", "--last", "--raw")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Say hello"))
		Expect(out).To(ContainSubstring("Hello, world"))
	})

	It("does not save with --no-save", func() {
		_, err := run("", "--no-save", "Say hello")
		Expect(err).NotTo(HaveOccurred())

		_, err = run("", "--last")
		Expect(err).To(MatchError("no saved generation"))
	})

	It("requires a prompt", func() {
		_, err := run("")
		Expect(err).To(MatchError("a prompt is required"))
	})

	It("surfaces a server error frame", func() {
		stream = "data: {\"type\":\"chunk\",\"content\":\"partial\"}\n\n" +
			"data: {\"type\":\"error\",\"message\":\"quota exceeded\"}\n\n"

		_, err := run("", "Say hello")
		Expect(err).To(MatchError("server reported an error: quota exceeded"))
	})

	It("fails when the stream ends early", func() {
		stream = "data: {\"type\":\"chunk\",\"content\":\"partial\"}\n\n"

		_, err := run("", "Say hello")
		Expect(err).To(MatchError(ContainSubstring("ended before the generation completed")))
	})
})
