// Package cliui holds the terminal styling shared by pulse commands: marks,
// key/value styles, status colours, a step spinner and markdown rendering.
package cliui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/papercomputeco/pulse/pkg/event"
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")

	KeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	ValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	DimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	TitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

var statusColors = map[event.Status]lipgloss.Color{
	event.StatusInfo:    lipgloss.Color("75"),
	event.StatusSuccess: lipgloss.Color("82"),
	event.StatusWarning: lipgloss.Color("214"),
	event.StatusError:   lipgloss.Color("196"),
}

// StatusStyle colours text by event status. Unknown statuses render dim.
func StatusStyle(s event.Status) lipgloss.Style {
	if c, ok := statusColors[s]; ok {
		return lipgloss.NewStyle().Foreground(c)
	}
	return DimStyle
}

// Badge renders a short label with a coloured background.
func Badge(label string, color lipgloss.Color) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(color).
		Padding(0, 1).
		Bold(true).
		Render(label)
}

// spinnerFrames matches bubbles' spinner.Dot used by the watch TUI.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step shows a spinner next to msg while fn runs, then a ✓ or ✗ with the
// elapsed time.
func Step(w io.Writer, msg string, fn func() error) error {
	var (
		mu   sync.Mutex
		done = make(chan struct{})
		wg   sync.WaitGroup
	)

	wg.Go(func() {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for frame := 0; ; frame++ {
			mu.Lock()
			fmt.Fprintf(w, "\r  %s %s", spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]), msg)
			mu.Unlock()

			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	})

	start := time.Now()
	err := fn()
	close(done)
	wg.Wait()

	fmt.Fprintf(w, "\r  %s %s %s\n", Mark(err), msg, DimStyle.Render("("+FormatDuration(time.Since(start))+")"))
	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderMarkdown renders markdown for the terminal with glamour. On failure
// the content is returned unchanged with the error.
func RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return rendered, nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// IsTerminalWriter reports whether w is a file attached to a terminal.
func IsTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && IsTerminal(f)
}

// TerminalWidth returns the width of f, or fallback when it is not a
// terminal.
func TerminalWidth(f *os.File, fallback int) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
