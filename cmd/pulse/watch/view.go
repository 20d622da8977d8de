package watchcmder

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/pulse/pkg/cliui"
	"github.com/papercomputeco/pulse/pkg/engine"
	"github.com/papercomputeco/pulse/pkg/event"
	"github.com/papercomputeco/pulse/pkg/feed"
	"github.com/papercomputeco/pulse/pkg/supervisor"
	"github.com/papercomputeco/pulse/pkg/transport"
	"github.com/papercomputeco/pulse/pkg/utils"
)

var (
	watchTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	watchSectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	watchMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	watchActiveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	watchHintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	watchPhaseStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("111")).Width(9)
)

const (
	connectedColor    = lipgloss.Color("82")
	connectingColor   = lipgloss.Color("214")
	reconnectingColor = lipgloss.Color("203")
	closedColor       = lipgloss.Color("240")

	timeLayout  = "15:04:05"
	unknownTime = "--:--:--"
)

// connectionBadge renders the connection state. spin is drawn next to the
// label while connecting.
func connectionBadge(s supervisor.State, spin string) string {
	switch s.Phase {
	case supervisor.PhaseConnected:
		return cliui.Badge("LIVE", connectedColor)
	case supervisor.PhaseClosed:
		return cliui.Badge("CLOSED", closedColor)
	case supervisor.PhaseIdle:
		return cliui.Badge("IDLE", closedColor)
	}

	label := strings.ToUpper(s.Label())
	color := connectingColor
	if s.RetryCount > 0 {
		label = fmt.Sprintf("%s #%d", label, s.RetryCount)
		color = reconnectingColor
	}

	badge := cliui.Badge(label, color)
	if spin != "" {
		badge = spin + " " + badge
	}
	return badge
}

// connectionDetail returns the slow-connection hint and the last error, or
// "" while connected.
func connectionDetail(s supervisor.State) string {
	if s.Connected || s.Phase == supervisor.PhaseClosed {
		return ""
	}

	var parts []string
	if hint := supervisor.SlowHint(s.ElapsedSeconds); hint != "" {
		parts = append(parts, watchHintStyle.Render(hint))
	}
	if s.LastError != nil {
		parts = append(parts, watchMutedStyle.Render(utils.Truncate(s.LastError.Error(), 80)))
	}
	return strings.Join(parts, "  ")
}

// settingsLine summarises the automation settings for the header.
func settingsLine(s *transport.Settings, err error) string {
	switch {
	case err != nil:
		return watchMutedStyle.Render("settings unavailable")
	case s == nil:
		return watchMutedStyle.Render("loading settings...")
	case s.Enabled:
		return watchActiveStyle.Render("automation on") + " " + watchMutedStyle.Render(s.Mode)
	default:
		return watchHintStyle.Render("automation paused") + " " + watchMutedStyle.Render(s.Mode)
	}
}

// eventTime formats the server timestamp as a wall clock, or placeholders
// when it does not parse.
func eventTime(ev event.Event) string {
	t, err := ev.Time()
	if err != nil {
		return unknownTime
	}
	return t.Local().Format(timeLayout)
}

// formatEvent renders one event line. width <= 0 disables truncation.
func formatEvent(ev event.Event, width int) string {
	prefix := fmt.Sprintf("%s %s ", watchMutedStyle.Render(eventTime(ev)), watchPhaseStyle.Render(string(ev.Phase)))

	message := ev.Message
	if width > 0 {
		room := width - lipgloss.Width(prefix)
		message = utils.Truncate(message, max(room-3, 8))
	}
	return prefix + cliui.StatusStyle(ev.Status).Render(message)
}

// plainEvent renders one event line without styling, for logs and pipes.
func plainEvent(ev event.Event) string {
	status := string(ev.Status)
	if status == "" {
		status = "-"
	}
	return fmt.Sprintf("%s %-8s %-7s %s", eventTime(ev), ev.Phase, status, ev.Message)
}

// renderEngines draws one line per engine in table order.
func renderEngines(engines []engine.Engine, activity map[string]engine.Activity, width int) string {
	nameWidth := 0
	for _, e := range engines {
		nameWidth = max(nameWidth, lipgloss.Width(engineName(e)))
	}

	var b strings.Builder
	for _, e := range engines {
		act := activity[e.ID]

		dot := watchMutedStyle.Render("○")
		name := watchMutedStyle.Render(fmt.Sprintf("%-*s", nameWidth, engineName(e)))
		if act.Active() {
			dot = watchActiveStyle.Render("●")
			name = watchSectionStyle.Render(fmt.Sprintf("%-*s", nameWidth, engineName(e)))
		}

		line := fmt.Sprintf("%s %s %s", dot, name, watchMutedStyle.Render(fmt.Sprintf("%3d", act.RecentCount)))
		if act.LastEvent != nil {
			room := width - lipgloss.Width(line) - 2
			if width <= 0 {
				room = 60
			}
			line += "  " + watchMutedStyle.Render(utils.Truncate(act.LastEvent.Message, max(room-3, 8)))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func engineName(e engine.Engine) string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// renderEvents draws the display window oldest first.
func renderEvents(events []event.Event, width int) string {
	if len(events) == 0 {
		return watchMutedStyle.Render("waiting for events...") + "\n"
	}

	var b strings.Builder
	for _, ev := range events {
		b.WriteString(formatEvent(ev, width))
		b.WriteString("\n")
	}
	return b.String()
}

// counters summarises the snapshot totals.
func counters(s feed.Snapshot) string {
	parts := []string{fmt.Sprintf("%d events", s.Total)}
	if s.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", s.Skipped))
	}
	if s.Duplicates > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicates", s.Duplicates))
	}
	return watchMutedStyle.Render(strings.Join(parts, " · "))
}
