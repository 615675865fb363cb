package output

import (
	"github.com/fatih/color"
)

// Palette defines the colors used by the console renderer.
type Palette struct {
	Title   *color.Color
	Rule    *color.Color
	Label   *color.Color
	Value   *color.Color
	Good    *color.Color
	Warn    *color.Color
	Bad     *color.Color
	Phase   *color.Color
	Latency *color.Color
	Dim     *color.Color
}

// NewPalette returns the default palette. When enabled is false every color
// is disabled, regardless of what fatih/color detected for stdout.
func NewPalette(enabled bool) *Palette {
	p := &Palette{
		Title:   color.New(color.Bold),
		Rule:    color.New(color.FgCyan),
		Label:   color.New(color.FgYellow),
		Value:   color.New(color.FgCyan),
		Good:    color.New(color.FgGreen),
		Warn:    color.New(color.FgYellow),
		Bad:     color.New(color.FgRed),
		Phase:   color.New(color.FgMagenta),
		Latency: color.New(color.FgBlue),
		Dim:     color.New(color.Faint),
	}

	for _, c := range p.all() {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *Palette) all() []*color.Color {
	return []*color.Color{p.Title, p.Rule, p.Label, p.Value, p.Good, p.Warn, p.Bad, p.Phase, p.Latency, p.Dim}
}

// ErrorRate picks green, yellow or red for an error rate.
func (p *Palette) ErrorRate(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return p.Bad
	case rate > 0.01:
		return p.Warn
	default:
		return p.Good
	}
}

// Status returns a colored check mark or cross.
func (p *Palette) Status(ok bool) string {
	if ok {
		return p.Good.Sprint("✓")
	}
	return p.Bad.Sprint("✗")
}
