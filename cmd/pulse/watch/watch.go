// Package watchcmder provides the watch command, which follows the live
// activity feed in a terminal UI or as plain log lines.
package watchcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/pulse/pkg/cliui"
	"github.com/papercomputeco/pulse/pkg/config"
	"github.com/papercomputeco/pulse/pkg/dotdir"
	"github.com/papercomputeco/pulse/pkg/engine"
	"github.com/papercomputeco/pulse/pkg/feed"
	"github.com/papercomputeco/pulse/pkg/logger"
	"github.com/papercomputeco/pulse/pkg/supervisor"
	"github.com/papercomputeco/pulse/pkg/transport"
)

const watchLongDesc string = `Follow the live activity feed.

Connects to the feed endpoint and keeps the connection alive, reconnecting
with exponential backoff whenever it drops. On a terminal the feed is shown
in a full-screen view with the connection state, per-engine activity and
the most recent events. With --plain, or when stdout is not a terminal,
events are printed as lines instead.

While the full-screen view owns the terminal, logs are written as JSON to
pulse.log in the .pulse/ directory (or --log-file).

Examples:
  pulse watch
  pulse watch --base-url https://pulse.example.com --token s3cret
  pulse watch --engines ./engines.toml
  pulse watch --plain --record feed.sse`

const watchShortDesc string = "Follow the live activity feed"

type watchCommander struct {
	baseURL        string
	token          string
	feedPath       string
	displayWindow  uint
	classifyWindow uint
	dedupe         bool
	enginesFile    string
	logJSON        bool

	plain   bool
	record  string
	logFile string
	debug   bool

	configDir string
	stdout    io.Writer
	stderr    io.Writer
}

var watchFlags = []string{
	config.FlagBaseURL,
	config.FlagToken,
	config.FlagFeedPath,
	config.FlagDisplayWindow,
	config.FlagClassifyWindow,
	config.FlagDedupe,
	config.FlagEngines,
	config.FlagLogJSON,
}

func NewWatchCmd() *cobra.Command {
	cmder := &watchCommander{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(cmd, watchFlags...)
			if err != nil {
				return err
			}
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString(config.ConfigDirFlag)
			cmder.stdout = cmd.OutOrStdout()
			cmder.stderr = cmd.ErrOrStderr()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, cfg)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagBaseURL, &cmder.baseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagToken, &cmder.token)
	config.AddStringFlag(cmd, config.Flags, config.FlagFeedPath, &cmder.feedPath)
	config.AddUintFlag(cmd, config.Flags, config.FlagDisplayWindow, &cmder.displayWindow)
	config.AddUintFlag(cmd, config.Flags, config.FlagClassifyWindow, &cmder.classifyWindow)
	config.AddBoolFlag(cmd, config.Flags, config.FlagDedupe, &cmder.dedupe)
	config.AddStringFlag(cmd, config.Flags, config.FlagEngines, &cmder.enginesFile)
	config.AddBoolFlag(cmd, config.Flags, config.FlagLogJSON, &cmder.logJSON)

	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Print events as lines instead of the full-screen view")
	cmd.Flags().StringVar(&cmder.record, "record", "", "Append the raw stream to this file")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *watchCommander) run(ctx context.Context, cfg *config.Config) error {
	table, err := engine.Resolve(cfg.Feed.EnginesFile)
	if err != nil {
		return err
	}

	policy, err := cfg.Backoff.Policy()
	if err != nil {
		return err
	}

	tui := !c.plain && cliui.IsTerminalWriter(c.stdout)

	log, closeLog, err := c.newLogger(cfg, tui)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := transport.New(cfg.Client(log))
	if err != nil {
		return err
	}

	var record io.Writer
	if c.record != "" {
		f, err := os.OpenFile(c.record, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening record file: %w", err)
		}
		defer f.Close()
		record = f
	}

	hub := feed.NewHub(func() *feed.Feed {
		return feed.New(client, feed.Config{
			DisplayWindow:  int(cfg.Feed.DisplayWindow),
			ClassifyWindow: int(cfg.Feed.ClassifyWindow),
			Engines:        table.Engines,
			DedupeIDs:      cfg.Feed.DedupeIDs,
			Record:         record,
			Backoff:        policy,
			Logger:         log,
		})
	})
	f, release := hub.Acquire()
	defer release()

	if cfg.Feed.EnginesFile != "" {
		go watchEngines(ctx, engine.NewWatcher(cfg.Feed.EnginesFile, f.SetEngines, log), log)
	}

	log.Info("watching feed", "server", client.BaseURL(), "path", cfg.Feed.Path, "engines", len(table.Engines))

	snapshots, unsubscribe := f.Subscribe()
	defer unsubscribe()

	if tui {
		return runWatchTUI(ctx, snapshots, client)
	}

	if settings, err := client.Settings(ctx); err != nil {
		log.Warn("could not fetch settings", "error", err)
	} else {
		log.Info("automation settings", "enabled", settings.Enabled, "mode", settings.Mode)
	}
	return runPlain(ctx, c.stdout, snapshots)
}

// newLogger routes logs to stderr in plain mode and to a JSON log file in
// TUI mode. --log-file adds a JSON file in either mode.
func (c *watchCommander) newLogger(cfg *config.Config, tui bool) (*slog.Logger, func(), error) {
	var (
		loggers []*slog.Logger
		files   []*os.File
	)
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	path := c.logFile
	if tui && path == "" {
		p, err := dotdir.NewManager().File(c.configDir, dotdir.LogFile)
		if err != nil {
			return nil, nil, err
		}
		path = p
	}

	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		files = append(files, f)
		loggers = append(loggers, logger.New(
			logger.WithWriter(f),
			logger.WithJSON(true),
			logger.WithDebug(c.debug || cfg.Log.Debug),
		))
	}

	if !tui {
		loggers = append(loggers, cfg.NewLogger(c.stderr, c.debug))
	}

	return logger.Multi(loggers...), closeAll, nil
}

func watchEngines(ctx context.Context, w *engine.Watcher, log *slog.Logger) {
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("engine table reload stopped", "error", err)
	}
}

// runPlain prints snapshots as lines until ctx is done or the feed closes.
func runPlain(ctx context.Context, w io.Writer, snapshots <-chan feed.Snapshot) error {
	p := &plainPrinter{w: w}
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			p.print(snap)
		}
	}
}

// plainPrinter prints what changed between consecutive snapshots.
type plainPrinter struct {
	w         io.Writer
	seen      int
	lastLabel string
	lastHint  string
	engines   map[string]bool
}

func (p *plainPrinter) print(s feed.Snapshot) {
	if label := s.State.Label(); label != p.lastLabel {
		p.lastLabel = label
		p.lastHint = ""
		line := "● " + label
		if s.State.RetryCount > 0 {
			line += fmt.Sprintf(" (retry %d)", s.State.RetryCount)
		}
		if s.State.LastError != nil && !s.State.Connected {
			line += ": " + s.State.LastError.Error()
		}
		fmt.Fprintln(p.w, line)
	}

	if !s.State.Connected && s.State.Phase != supervisor.PhaseClosed {
		if hint := supervisor.SlowHint(s.State.ElapsedSeconds); hint != "" && hint != p.lastHint {
			p.lastHint = hint
			fmt.Fprintln(p.w, "  "+hint)
		}
	}

	fresh := s.Total - p.seen
	if fresh > len(s.Events) {
		fmt.Fprintf(p.w, "  ... %d events not shown\n", fresh-len(s.Events))
		fresh = len(s.Events)
	}
	for _, ev := range s.Events[len(s.Events)-max(fresh, 0):] {
		fmt.Fprintln(p.w, plainEvent(ev))
	}
	p.seen = max(p.seen, s.Total)

	p.printEngineChanges(s)
}

// printEngineChanges reports engines that became active or idle.
func (p *plainPrinter) printEngineChanges(s feed.Snapshot) {
	if p.engines == nil {
		p.engines = map[string]bool{}
	}
	for _, e := range s.Engines {
		active := s.Activity[e.ID].Active()
		was, known := p.engines[e.ID]
		p.engines[e.ID] = active
		if (known && was == active) || (!known && !active) {
			continue
		}

		state := "idle"
		if active {
			state = "active"
		}
		fmt.Fprintf(p.w, "  [%s] %s\n", engineName(e), state)
	}
}
