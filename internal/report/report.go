// Package report renders the intent graph for humans: a text table grouped by
// agent, a Graphviz DOT graph, and an overlap matrix.
package report

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ashita-ai/convergent/internal/matching"
	"github.com/ashita-ai/convergent/internal/model"
	"github.com/ashita-ai/convergent/internal/stability"
)

// Format names a renderer.
type Format string

const (
	FormatTable  Format = "table"
	FormatDOT    Format = "dot"
	FormatMatrix Format = "matrix"
)

// Formats lists the supported formats.
var Formats = []Format{FormatTable, FormatDOT, FormatMatrix}

const emptyGraph = "(empty graph)\n"

// Column widths for the table renderer.
const (
	agentWidth  = 16
	intentWidth = 30
	stabWidth   = 5
	specWidth   = 25
	matrixLabel = 15
)

// Options controls rendering.
type Options struct {
	// ShowEvidence lists each intent's evidence under its table row.
	ShowEvidence bool
}

// Renderer writes reports using computed stability from its scorer.
type Renderer struct {
	scorer *stability.Scorer
}

// New creates a renderer. A nil scorer uses the default weights.
func New(scorer *stability.Scorer) *Renderer {
	if scorer == nil {
		scorer = stability.NewDefaultScorer()
	}
	return &Renderer{scorer: scorer}
}

// Render writes intents in the given format.
func (r *Renderer) Render(w io.Writer, format Format, intents []model.IntentNode, opts Options) error {
	switch format {
	case FormatTable:
		return r.Table(w, intents, opts)
	case FormatDOT:
		return r.DOT(w, intents)
	case FormatMatrix:
		return r.Matrix(w, intents)
	default:
		return fmt.Errorf("report: unknown format %q (valid: table, dot, matrix)", format)
	}
}

// Table writes one row per intent grouped by agent, agents in lexical order
// and intents in the order given.
func (r *Renderer) Table(w io.Writer, intents []model.IntentNode, opts Options) error {
	if len(intents) == 0 {
		_, err := io.WriteString(w, emptyGraph)
		return err
	}

	var b strings.Builder
	header := row(
		cell("Agent", agentWidth),
		cell("Intent", intentWidth),
		fmt.Sprintf("%*s", stabWidth, "Stab"),
		cell("Provides", specWidth),
		cell("Requires", specWidth),
	)
	b.WriteString(strings.TrimRight(header, " "))
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("-", runewidth.StringWidth(header)))
	b.WriteByte('\n')

	agents, byAgent := groupByAgent(intents)
	for _, agent := range agents {
		for _, n := range byAgent[agent] {
			line := row(
				cell(agent, agentWidth),
				cell(n.Description, intentWidth),
				fmt.Sprintf("%*.2f", stabWidth, r.scorer.Compute(n)),
				cell(specNames(n.Provides), specWidth),
				cell(specNames(n.Requires), specWidth),
			)
			b.WriteString(strings.TrimRight(line, " "))
			b.WriteByte('\n')
			if opts.ShowEvidence {
				for _, ev := range n.Evidence {
					fmt.Fprintf(&b, "%s   [%s] %s\n", strings.Repeat(" ", agentWidth), ev.Kind, ev.Description)
				}
			}
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// DOT writes a Graphviz digraph. Each agent is a cluster; node fill darkens
// with computed stability; dashed edges join overlapping intents of
// different agents.
func (r *Renderer) DOT(w io.Writer, intents []model.IntentNode) error {
	var b strings.Builder
	b.WriteString("digraph convergent {\n  rankdir=LR;\n  node [shape=box];\n")

	agents, byAgent := groupByAgent(intents)
	for i, agent := range agents {
		fmt.Fprintf(&b, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&b, "    label=%s;\n", dotQuote(agent))
		for _, n := range byAgent[agent] {
			s := r.scorer.Compute(n)
			fontColor := "black"
			if s > 0.6 {
				fontColor = "white"
			}
			label := fmt.Sprintf("%s\n(%.2f)", n.Description, s)
			fmt.Fprintf(&b, "    %s [label=%s, style=filled, fillcolor=%q, fontcolor=%s];\n",
				dotQuote(n.ID), dotQuote(label), grayFill(s), fontColor)
		}
		b.WriteString("  }\n")
	}

	for _, pair := range overlappingPairs(intents) {
		fmt.Fprintf(&b, "  %s -> %s [dir=both, style=dashed];\n",
			dotQuote(intents[pair[0]].ID), dotQuote(intents[pair[1]].ID))
	}

	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Matrix writes a square matrix marking overlapping intents with X and the
// diagonal with a dot, followed by an index legend.
func (r *Renderer) Matrix(w io.Writer, intents []model.IntentNode) error {
	if len(intents) == 0 {
		_, err := io.WriteString(w, emptyGraph)
		return err
	}

	n := len(intents)
	labels := make([]string, n)
	maxLabel := 0
	for i, in := range intents {
		labels[i] = in.AgentID + ":" + runewidth.Truncate(in.Description, matrixLabel, "")
		maxLabel = max(maxLabel, runewidth.StringWidth(labels[i]))
	}

	grid := make([][]string, n)
	for i := range grid {
		grid[i] = make([]string, n)
		for j := range grid[i] {
			grid[i][j] = " "
		}
		grid[i][i] = "."
	}
	for _, pair := range overlappingPairs(intents) {
		grid[pair[0]][pair[1]] = "X"
		grid[pair[1]][pair[0]] = "X"
	}

	var b strings.Builder
	cols := make([]string, n)
	for j := range cols {
		cols[j] = fmt.Sprintf("%2d", j)
	}
	b.WriteString(strings.Repeat(" ", maxLabel+1) + strings.Join(cols, " ") + "\n")
	for i, label := range labels {
		cells := make([]string, n)
		for j := range cells {
			cells[j] = fmt.Sprintf("%2s", grid[i][j])
		}
		line := runewidth.FillRight(label, maxLabel) + " " + strings.Join(cells, " ")
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}

	b.WriteByte('\n')
	for i, label := range labels {
		fmt.Fprintf(&b, "  %2d: %s\n", i, label)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func groupByAgent(intents []model.IntentNode) ([]string, map[string][]model.IntentNode) {
	byAgent := make(map[string][]model.IntentNode)
	for _, n := range intents {
		byAgent[n.AgentID] = append(byAgent[n.AgentID], n)
	}
	agents := make([]string, 0, len(byAgent))
	for a := range byAgent {
		agents = append(agents, a)
	}
	slices.Sort(agents)
	return agents, byAgent
}

// overlappingPairs returns index pairs (i < j) of intents from different
// agents where any provided or required spec of one structurally overlaps
// any of the other.
func overlappingPairs(intents []model.IntentNode) [][2]int {
	var pairs [][2]int
	for i := range intents {
		for j := i + 1; j < len(intents); j++ {
			if intents[i].AgentID == intents[j].AgentID {
				continue
			}
			if matching.IntentsOverlap(intents[i], intents[j]) {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

func specNames(specs []model.InterfaceSpec) string {
	if len(specs) == 0 {
		return "-"
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return strings.Join(names, ", ")
}

func cell(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func row(cells ...string) string {
	return strings.Join(cells, " ")
}

// grayFill maps stability 0..1 to a fill from white to black.
func grayFill(s float64) string {
	v := int(math.Round((1 - s) * 255))
	v = min(max(v, 0), 255)
	return fmt.Sprintf("#%02x%02x%02x", v, v, v)
}

func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
