package output

import (
	"io"
	"strings"
	"sync"

	"conductor/internal/color"
	"conductor/pkg/logging"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Line is one complete line of component output.
type Line struct {
	Component string
	Color     string
	Text      string
}

// LineWriter receives complete lines from the multiplexer.
type LineWriter interface {
	WriteLine(line Line) error
}

// Sink serializes tagged lines and system messages onto a single writer.
// Every line is emitted with exactly one Write call while holding the lock,
// so concurrent producers never interleave within a line.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	styles *color.Styles
	width  int

	writeErrOnce sync.Once
}

// NewSink creates a sink writing to w. A nil styles value renders plain text.
func NewSink(w io.Writer, styles *color.Styles) *Sink {
	if styles == nil {
		styles = color.NewStyles(color.NewRenderer(w, color.ModeNever))
	}
	return &Sink{w: w, styles: styles}
}

// Align pads every component tag to the display width of the widest name.
func (s *Sink) Align(names []string) {
	width := 0
	for _, n := range names {
		if w := runewidth.StringWidth(n); w > width {
			width = w
		}
	}
	s.mu.Lock()
	s.width = width
	s.mu.Unlock()
}

// WriteLine writes "[<component>] <text>".
func (s *Sink) WriteLine(line Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.Grow(len(line.Component) + len(line.Text) + 4 + s.width)
	b.WriteByte('[')
	b.WriteString(s.styles.Component(line.Color).Render(line.Component))
	if pad := s.width - runewidth.StringWidth(line.Component); pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	b.WriteString("] ")
	b.WriteString(line.Text)
	b.WriteByte('\n')

	_, err := io.WriteString(s.w, b.String())
	return err
}

// System writes an orchestration message: "-=[ <msg> ]=-".
func (s *Sink) System(msg string) {
	s.system(s.styles.System, msg)
}

// SystemError writes an orchestration failure message.
func (s *Sink) SystemError(msg string) {
	s.system(s.styles.Error, msg)
}

func (s *Sink) system(style lipgloss.Style, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := s.styles.Bracket.Render("-=[") + " " + style.Render(msg) + " " + s.styles.Bracket.Render("]=-") + "\n"
	if _, err := io.WriteString(s.w, line); err != nil {
		s.writeErrOnce.Do(func() {
			logging.Error("Sink", err, "failed to write system message")
		})
	}
}
