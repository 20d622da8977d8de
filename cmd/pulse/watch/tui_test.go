package watchcmder

import (
	"context"
	"errors"

	bubbletea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/pulse/pkg/engine"
	"github.com/papercomputeco/pulse/pkg/event"
	"github.com/papercomputeco/pulse/pkg/feed"
	"github.com/papercomputeco/pulse/pkg/supervisor"
	"github.com/papercomputeco/pulse/pkg/transport"
)

type fakeRest struct {
	settings *transport.Settings
	err      error
}

func (f fakeRest) Settings(context.Context) (*transport.Settings, error) {
	return f.settings, f.err
}

func (f fakeRest) Status(context.Context) (*transport.Status, error) {
	return &transport.Status{Metrics: map[string]float64{}}, nil
}

func runes(s string) bubbletea.KeyMsg {
	return bubbletea.KeyMsg{Type: bubbletea.KeyRunes, Runes: []rune(s)}
}

func liveSnapshot(total int, messages ...string) feed.Snapshot {
	events := make([]event.Event, len(messages))
	for i, m := range messages {
		events[i] = event.Event{ID: m, Message: m, Phase: event.PhaseDetect, Status: event.StatusInfo}
	}
	engines := engine.DefaultTable().Engines
	return feed.Snapshot{
		State:    supervisor.State{Phase: supervisor.PhaseConnected, Connected: true},
		Events:   events,
		Engines:  engines,
		Activity: engine.Classify(engines, events),
		Total:    total,
	}
}

var _ = Describe("Watch TUI model", func() {
	var (
		ch    chan feed.Snapshot
		model watchModel
	)

	BeforeEach(func() {
		ch = make(chan feed.Snapshot, 1)
		model = newWatchModel(context.Background(), ch, fakeRest{settings: &transport.Settings{Enabled: true, Mode: "autopilot"}})
	})

	update := func(m watchModel, msg bubbletea.Msg) (watchModel, bubbletea.Cmd) {
		next, cmd := m.Update(msg)
		return next.(watchModel), cmd
	}

	It("shows a snapshot and keeps listening", func() {
		m, cmd := update(model, snapshotMsg(liveSnapshot(1, "anomaly detected")))
		Expect(cmd).NotTo(BeNil())
		Expect(m.snap.Total).To(Equal(1))

		view := m.View()
		Expect(view).To(ContainSubstring("LIVE"))
		Expect(view).To(ContainSubstring("anomaly detected"))
		Expect(view).To(ContainSubstring("Sentinel"))
	})

	It("receives the next snapshot from the subscription", func() {
		ch <- liveSnapshot(2, "a", "b")
		msg := waitForSnapshot(ch)()
		Expect(msg).To(BeAssignableToTypeOf(snapshotMsg{}))
		Expect(feed.Snapshot(msg.(snapshotMsg)).Total).To(Equal(2))
	})

	It("quits when the feed closes", func() {
		close(ch)
		msg := waitForSnapshot(ch)()
		Expect(msg).To(Equal(feedClosedMsg{}))

		_, cmd := update(model, msg)
		Expect(cmd()).To(Equal(bubbletea.QuitMsg{}))
	})

	It("freezes events while paused but tracks the connection", func() {
		m, _ := update(model, snapshotMsg(liveSnapshot(1, "first")))
		m, _ = update(m, runes("p"))
		Expect(m.paused).To(BeTrue())

		next := liveSnapshot(3, "first", "second", "third")
		next.State = supervisor.State{Phase: supervisor.PhaseReconnecting, Reconnecting: true, RetryCount: 1}
		m, _ = update(m, snapshotMsg(next))

		Expect(m.snap.Events).To(HaveLen(1))
		Expect(m.snap.State.Reconnecting).To(BeTrue())
		Expect(m.pending).To(Equal(2))
		Expect(m.View()).To(ContainSubstring("(paused)"))
		Expect(m.View()).To(ContainSubstring("new events waiting"))

		m, _ = update(m, runes("p"))
		Expect(m.paused).To(BeFalse())
		Expect(m.pending).To(Equal(0))
	})

	It("loads and refreshes settings", func() {
		msg := fetchSettings(context.Background(), model.rest)()
		m, _ := update(model, msg)
		Expect(m.View()).To(ContainSubstring("automation on"))

		m, cmd := update(m, runes("r"))
		Expect(cmd).NotTo(BeNil())
		Expect(m.settings).To(BeNil())

		m, _ = update(m, settingsMsg{err: errors.New("unreachable")})
		Expect(m.View()).To(ContainSubstring("settings unavailable"))
	})

	It("quits on q", func() {
		_, cmd := update(model, runes("q"))
		Expect(cmd()).To(Equal(bubbletea.QuitMsg{}))
	})

	It("tracks the window width", func() {
		m, _ := update(model, bubbletea.WindowSizeMsg{Width: 72, Height: 20})
		Expect(m.width).To(Equal(72))
	})
})
