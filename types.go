package convergent

import (
	"github.com/ashita-ai/convergent/internal/model"
	"github.com/ashita-ai/convergent/internal/report"
	"github.com/ashita-ai/convergent/internal/stability"
)

// Public names for the graph's value types, so embedders never import internal packages.
type (
	Intent           = model.IntentNode
	InterfaceSpec    = model.InterfaceSpec
	Constraint       = model.Constraint
	Evidence         = model.Evidence
	ResolutionResult = model.ResolutionResult
	Adjustment       = model.Adjustment
	ConflictReport   = model.ConflictReport
	Summary          = model.GraphSummary
	Weights          = stability.Weights
	ReportFormat     = report.Format
)

// Report formats accepted by App.Inspect.
const (
	FormatTable  = report.FormatTable
	FormatDOT    = report.FormatDOT
	FormatMatrix = report.FormatMatrix
)

// DefaultWeights returns the built-in stability weights.
func DefaultWeights() Weights { return stability.DefaultWeights() }

// InspectRequest selects and formats intents for App.Inspect.
type InspectRequest struct {
	Format       ReportFormat
	AgentID      string
	MinStability float64
	ShowEvidence bool
}
