// Package printer formats command-line output with color. Color is disabled
// automatically when the output is not a terminal or NO_COLOR is set.
package printer

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ashita-ai/convergent/internal/model"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Printer writes formatted messages to one writer.
type Printer struct {
	w io.Writer
}

// New returns a printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Success prints a message in green with a checkmark prefix.
func (p *Printer) Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	_, _ = green.Fprint(p.w, msg)
}

// Warning prints a message in yellow with a warning prefix.
func (p *Printer) Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	_, _ = yellow.Fprint(p.w, msg)
}

// Step prints an emphasized step message.
func (p *Printer) Step(format string, a ...any) {
	_, _ = cyan.Fprintf(p.w, "→ %s", fmt.Sprintf(format, a...))
}

// Printf prints a plain formatted message.
func (p *Printer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(p.w, format, a...)
}

// Error prints a title in red, an explanation and numbered suggestions, and
// returns an error carrying only the title. Commands return it to cobra with
// SilenceErrors set so the message is not printed twice.
func (p *Printer) Error(title, explanation string, suggestions []string) error {
	_, _ = red.Fprintf(p.w, "%s\n\n", title)
	if explanation != "" {
		_, _ = fmt.Fprintf(p.w, "%s\n", explanation)
	}
	switch len(suggestions) {
	case 0:
	case 1:
		_, _ = fmt.Fprintf(p.w, "\n%s\n", suggestions[0])
	default:
		_, _ = fmt.Fprintf(p.w, "\nEither:\n")
		for i, s := range suggestions {
			_, _ = fmt.Fprintf(p.w, "  %d. %s\n", i+1, s)
		}
	}
	return fmt.Errorf("%s", title)
}

// Resolution prints a resolution result: a clean or conflicted headline, then
// adjustments, adopted constraints and conflicts.
func (p *Printer) Resolution(r model.ResolutionResult, myStability float64) {
	if r.IsClean() {
		p.Success("intent %s resolved cleanly (stability %.2f)\n", r.OriginalIntentID, myStability)
	} else {
		_, _ = red.Fprintf(p.w, "✗ intent %s has %d conflict(s) (stability %.2f)\n",
			r.OriginalIntentID, len(r.Conflicts), myStability)
	}

	if len(r.Adjustments) > 0 {
		p.Printf("\nAdjustments:\n")
		for _, a := range r.Adjustments {
			p.Printf("  ")
			_, _ = yellow.Fprintf(p.w, "%-16s", a.Kind)
			p.Printf(" %s\n", a.Description)
		}
	}

	if len(r.AdoptedConstraints) > 0 {
		p.Printf("\nAdopted constraints:\n")
		for _, c := range r.AdoptedConstraints {
			p.Printf("  [%s] %s: %s\n", c.Severity, c.Target, c.Requirement)
		}
	}

	if len(r.Conflicts) > 0 {
		p.Printf("\nConflicts:\n")
		for _, c := range r.Conflicts {
			_, _ = red.Fprintf(p.w, "  %s\n", c.Description)
			p.Printf("    mine %.2f vs theirs %.2f (%s)\n", c.MyStability, c.TheirStability, c.TheirIntentID)
			if c.ResolutionSuggestion != "" {
				p.Printf("    suggestion: %s\n", c.ResolutionSuggestion)
			}
		}
	}
}

// Summary prints aggregate graph figures.
func (p *Printer) Summary(s model.GraphSummary) {
	p.Printf("Intents:           %d\n", s.TotalIntents)
	p.Printf("Agents:            %d", s.AgentCount)
	if len(s.Agents) > 0 {
		p.Printf(" (%s)", strings.Join(s.Agents, ", "))
	}
	p.Printf("\n")
	p.Printf("Average stability: %.2f\n", s.AverageStability)
	p.Printf("High stability:    %d\n", s.HighStabilityCount)
}
