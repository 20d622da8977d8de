package config_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/pulse/pkg/config"
)

var _ = Describe("Resolve", func() {
	newCmd := func(dir string) (*cobra.Command, *string) {
		cmd := &cobra.Command{Use: "test"}
		var configDir, baseURL string
		cmd.Flags().StringVar(&configDir, config.ConfigDirFlag, "", "")
		config.AddStringFlag(cmd, config.Flags, config.FlagBaseURL, &baseURL)
		Expect(cmd.Flags().Set(config.ConfigDirFlag, dir)).To(Succeed())
		return cmd, &baseURL
	}

	It("reads config.toml from the config dir", func() {
		dir := GinkgoT().TempDir()
		writeConfig(dir, "[server]\nbase_url = \"https://pulse.example.com\"\n")

		cmd, _ := newCmd(dir)
		cfg, err := config.Resolve(cmd, config.FlagBaseURL)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.BaseURL).To(Equal("https://pulse.example.com"))
	})

	It("lets a changed flag win over the file", func() {
		dir := GinkgoT().TempDir()
		writeConfig(dir, "[server]\nbase_url = \"https://pulse.example.com\"\n")

		cmd, _ := newCmd(dir)
		Expect(cmd.Flags().Set("base-url", "http://127.0.0.1:9000")).To(Succeed())

		cfg, err := config.Resolve(cmd, config.FlagBaseURL)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.BaseURL).To(Equal("http://127.0.0.1:9000"))
	})

	It("maps the configuration onto transport settings", func() {
		cmd, _ := newCmd(GinkgoT().TempDir())
		cfg, err := config.Resolve(cmd)
		Expect(err).NotTo(HaveOccurred())

		tc := cfg.Client(nil)
		Expect(tc.BaseURL).To(Equal("http://localhost:8000"))
		Expect(tc.FeedPath).To(Equal("/api/feed"))
		Expect(tc.GenerationPath).To(Equal("/api/generate"))
		Expect(tc.SettingsPath).To(Equal("/api/settings"))
		Expect(tc.StatusPath).To(Equal("/api/status"))
	})

	It("builds a JSON logger when log.json is set", func() {
		cfg := config.NewDefaultConfig()
		cfg.Log.JSON = true

		var buf bytes.Buffer
		cfg.NewLogger(&buf, false).Info("hello", "k", "v")
		Expect(buf.String()).To(ContainSubstring(`"msg":"hello"`))
	})
})
