package watchcmder

import (
	"context"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/pulse/pkg/feed"
	"github.com/papercomputeco/pulse/pkg/transport"
)

type watchKeyMap struct {
	Pause   key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Refresh, k.Help, k.Quit}
}

func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Pause, k.Refresh}, {k.Help, k.Quit}}
}

func defaultKeyMap() watchKeyMap {
	return watchKeyMap{
		Pause:   key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh settings")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

type snapshotMsg feed.Snapshot

type feedClosedMsg struct{}

type settingsMsg struct {
	settings *transport.Settings
	err      error
}

type watchModel struct {
	ctx       context.Context
	snapshots <-chan feed.Snapshot
	rest      transport.Collaborators

	snap        feed.Snapshot
	paused      bool
	pending     int
	settings    *transport.Settings
	settingsErr error

	spinner spinner.Model
	keys    watchKeyMap
	help    help.Model
	width   int
}

func runWatchTUI(ctx context.Context, snapshots <-chan feed.Snapshot, rest transport.Collaborators) error {
	renderer := lipgloss.NewRenderer(os.Stdout)
	renderer.SetColorProfile(termenv.EnvColorProfile())
	lipgloss.SetDefaultRenderer(renderer)

	program := bubbletea.NewProgram(newWatchModel(ctx, snapshots, rest),
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)
	_, err := program.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func newWatchModel(ctx context.Context, snapshots <-chan feed.Snapshot, rest transport.Collaborators) watchModel {
	return watchModel{
		ctx:       ctx,
		snapshots: snapshots,
		rest:      rest,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		keys:      defaultKeyMap(),
		help:      help.New(),
	}
}

// waitForSnapshot blocks on the subscription. The feed closes the channel
// on shutdown.
func waitForSnapshot(ch <-chan feed.Snapshot) bubbletea.Cmd {
	return func() bubbletea.Msg {
		snap, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func fetchSettings(ctx context.Context, rest transport.Collaborators) bubbletea.Cmd {
	if rest == nil {
		return nil
	}
	return func() bubbletea.Msg {
		s, err := rest.Settings(ctx)
		return settingsMsg{settings: s, err: err}
	}
}

func (m watchModel) Init() bubbletea.Cmd {
	return bubbletea.Batch(
		m.spinner.Tick,
		waitForSnapshot(m.snapshots),
		fetchSettings(m.ctx, m.rest),
	)
}

func (m watchModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case snapshotMsg:
		snap := feed.Snapshot(msg)
		if m.paused {
			m.pending = max(snap.Total-m.snap.Total, 0)
			// Connection state keeps flowing while the event list is frozen.
			m.snap.State = snap.State
		} else {
			m.snap = snap
		}
		return m, waitForSnapshot(m.snapshots)

	case feedClosedMsg:
		return m, bubbletea.Quit

	case settingsMsg:
		m.settings = msg.settings
		m.settingsErr = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd bubbletea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case bubbletea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m watchModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, bubbletea.Quit
	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused
		m.pending = 0
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		m.settings, m.settingsErr = nil, nil
		return m, fetchSettings(m.ctx, m.rest)
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	spin := ""
	if !m.snap.State.Connected {
		spin = m.spinner.View()
	}

	b.WriteString(watchTitleStyle.Render("PULSE"))
	b.WriteString("  ")
	b.WriteString(connectionBadge(m.snap.State, spin))
	b.WriteString("  ")
	b.WriteString(settingsLine(m.settings, m.settingsErr))
	b.WriteString("\n")

	if detail := connectionDetail(m.snap.State); detail != "" {
		b.WriteString(detail)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(watchSectionStyle.Render("Engines"))
	b.WriteString("\n")
	b.WriteString(renderEngines(m.snap.Engines, m.snap.Activity, m.width))
	b.WriteString("\n")

	title := "Activity"
	if m.paused {
		title += watchHintStyle.Render(" (paused)")
	}
	b.WriteString(watchSectionStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(renderEvents(m.snap.Events, m.width))
	b.WriteString("\n")

	footer := counters(m.snap)
	if m.paused && m.pending > 0 {
		footer += watchHintStyle.Render(" · new events waiting")
	}
	b.WriteString(footer)
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

