package tools

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	reasonStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	commandStyle = lipgloss.NewStyle().Bold(true)
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const (
	okGlyph   = "✓"
	failGlyph = "✗"

	maxLabelWidth = 76
)

// printCommandBox shows the command awaiting approval together with the
// classifier's reason.
func printCommandBox(w io.Writer, command, reason string) {
	body := commandStyle.Render(command) + "\n" + reasonStyle.Render(reason)
	fmt.Fprintln(w, boxStyle.Render(body))
}

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// spinner animates on one line while a command runs. It writes only to the
// given writer; stdout stays clean for the final answer.
type spinner struct {
	w     io.Writer
	label string
	quit  chan struct{}
	done  chan struct{}
}

func startSpinner(w io.Writer, label string) *spinner {
	if runewidth.StringWidth(label) > maxLabelWidth {
		label = runewidth.Truncate(label, maxLabelWidth, "…")
	}

	s := &spinner{
		w:     w,
		label: label,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *spinner) run() {
	defer close(s.done)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			fmt.Fprintf(s.w, "\r%s %s", spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]), labelStyle.Render(s.label))
			frame++
		}
	}
}

// stop halts the animation and replaces the spinner glyph with mark.
func (s *spinner) stop(mark string) {
	close(s.quit)
	<-s.done
	fmt.Fprintf(s.w, "\r%s %s\n", mark, labelStyle.Render(s.label))
}
