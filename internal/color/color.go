package color

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Mode selects when output is colored.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeAlways Mode = "always"
	ModeNever  Mode = "never"
)

// ParseMode validates a --color flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAuto, "":
		return ModeAuto, nil
	case ModeAlways:
		return ModeAlways, nil
	case ModeNever:
		return ModeNever, nil
	default:
		return "", fmt.Errorf("unknown color mode %q (expected auto, always or never)", s)
	}
}

// ANSI color indexes for the component color names.
var palette = map[string]lipgloss.Color{
	"red":    lipgloss.Color("1"),
	"green":  lipgloss.Color("2"),
	"yellow": lipgloss.Color("3"),
	"blue":   lipgloss.Color("4"),
	"purple": lipgloss.Color("5"),
	"cyan":   lipgloss.Color("6"),
	"white":  lipgloss.Color("7"),
}

// Lookup returns the terminal color for a component color name. Unknown
// names fall back to yellow.
func Lookup(name string) lipgloss.Color {
	if c, ok := palette[strings.ToLower(name)]; ok {
		return c
	}
	return palette["yellow"]
}

// Enabled reports whether w should receive colored output in auto mode:
// it must be a terminal and NO_COLOR must be unset.
func Enabled(w io.Writer) bool {
	if _, disabled := os.LookupEnv("NO_COLOR"); disabled {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewRenderer returns a lipgloss renderer for w honouring mode. Components
// only use the basic 8 colors, so the ANSI profile is enough when enabled.
func NewRenderer(w io.Writer, mode Mode) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	switch {
	case mode == ModeAlways, mode == ModeAuto && Enabled(w):
		r.SetColorProfile(termenv.ANSI)
	default:
		r.SetColorProfile(termenv.Ascii)
	}
	return r
}

// Styles bundles the styles used on the output stream.
type Styles struct {
	renderer *lipgloss.Renderer

	Bracket lipgloss.Style
	System  lipgloss.Style
	Error   lipgloss.Style
}

// NewStyles builds the stream styles on renderer r.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		renderer: r,
		Bracket:  r.NewStyle().Foreground(palette["red"]).Bold(true),
		System:   r.NewStyle().Foreground(palette["white"]).Bold(true),
		Error:    r.NewStyle().Foreground(palette["red"]).Bold(true),
	}
}

// Component returns the style for a component name tag.
func (s *Styles) Component(colorName string) lipgloss.Style {
	return s.renderer.NewStyle().Foreground(Lookup(colorName)).Bold(true)
}
