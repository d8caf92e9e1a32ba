package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title     *color.Color
	Rule      *color.Color
	Label     *color.Color
	Value     *color.Color
	Dim       *color.Color
	Pass      *color.Color
	Warn      *color.Color
	Fail      *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.Bold),
		Rule:      color.New(color.FgCyan),
		Label:     color.New(color.FgWhite),
		Value:     color.New(color.FgCyan),
		Dim:       color.New(color.Faint),
		Pass:      color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Fail:      color.New(color.FgRed),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range []*color.Color{
		scheme.Title, scheme.Rule, scheme.Label, scheme.Value, scheme.Dim,
		scheme.Pass, scheme.Warn, scheme.Fail, scheme.Highlight,
	} {
		c.DisableColor()
	}
	return scheme
}

// ForceColorScheme returns the default scheme with colors on even when
// stdout is not a terminal.
func ForceColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range []*color.Color{
		scheme.Title, scheme.Rule, scheme.Label, scheme.Value, scheme.Dim,
		scheme.Pass, scheme.Warn, scheme.Fail, scheme.Highlight,
	} {
		c.EnableColor()
	}
	return scheme
}

// ErrorRateColor picks a color for a failure ratio.
func (s *ColorScheme) ErrorRateColor(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return s.Fail
	case rate > 0.01:
		return s.Warn
	default:
		return s.Pass
	}
}

// Mark returns a check mark or cross for ok.
func (s *ColorScheme) Mark(ok bool) string {
	if ok {
		return s.Pass.Sprint("✓")
	}
	return s.Fail.Sprint("✗")
}
