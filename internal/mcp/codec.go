package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ashita-ai/convergent/internal/model"
)

// Wire shapes accepted from agents. Enumerations arrive as strings and are
// converted with the model.Parse* functions after structural validation.

type intentPayload struct {
	ID          string              `json:"id" validate:"omitempty,max=128"`
	AgentID     string              `json:"agent_id" validate:"required,max=256"`
	Timestamp   *time.Time          `json:"timestamp"`
	Description string              `json:"description" validate:"required"`
	Provides    []specPayload       `json:"provides" validate:"dive"`
	Requires    []specPayload       `json:"requires" validate:"dive"`
	Constraints []constraintPayload `json:"constraints" validate:"dive"`
	Evidence    []evidencePayload   `json:"evidence" validate:"dive"`
	Stability   *float64            `json:"stability" validate:"omitempty,gte=0,lte=1"`
	ParentID    string              `json:"parent_id" validate:"omitempty,max=128"`
}

type specPayload struct {
	Name       string   `json:"name" validate:"required"`
	Kind       string   `json:"kind" validate:"required"`
	Signature  string   `json:"signature"`
	ModulePath string   `json:"module_path"`
	Tags       []string `json:"tags" validate:"dive,required"`
}

type constraintPayload struct {
	Target      string   `json:"target" validate:"required"`
	Requirement string   `json:"requirement" validate:"required"`
	Severity    string   `json:"severity"`
	AffectsTags []string `json:"affects_tags" validate:"dive,required"`
}

type evidencePayload struct {
	Kind        string     `json:"kind" validate:"required"`
	Description string     `json:"description"`
	Timestamp   *time.Time `json:"timestamp"`
}

// evidenceAliases maps the spellings agents commonly send onto evidence kinds.
var evidenceAliases = map[string]model.EvidenceKind{
	"test_passed":    model.EvidenceTestPass,
	"test_failed":    model.EvidenceTestFail,
	"committed":      model.EvidenceCodeCommitted,
	"consumed":       model.EvidenceConsumedByOther,
	"manual_approve": model.EvidenceManualApproval,
}

type decoder struct {
	validate *validator.Validate
	now      func() time.Time
}

func newDecoder() *decoder {
	return &decoder{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// decodeArg unmarshals a tool argument into dst. Clients send either a JSON
// object or the same object serialized into a string.
func decodeArg(name string, raw any, dst any) error {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return fmt.Errorf("%s is required", name)
	case string:
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required", name)
		}
		data = []byte(v)
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%s: invalid JSON: %w", name, err)
	}
	return nil
}

// intent converts a validated payload into an IntentNode, assigning an id and
// timestamp when the agent left them out.
func (d *decoder) intent(p intentPayload) (model.IntentNode, error) {
	if err := d.check(p); err != nil {
		return model.IntentNode{}, err
	}

	n := model.IntentNode{
		ID:          p.ID,
		AgentID:     strings.TrimSpace(p.AgentID),
		Description: p.Description,
		Stability:   model.DefaultStability,
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if p.Timestamp != nil {
		n.Timestamp = p.Timestamp.UTC()
	} else {
		n.Timestamp = d.now()
	}
	if p.Stability != nil {
		n.Stability = *p.Stability
	}
	if p.ParentID != "" {
		parent := p.ParentID
		n.ParentID = &parent
	}

	var err error
	if n.Provides, err = specs(p.Provides); err != nil {
		return model.IntentNode{}, fmt.Errorf("provides: %w", err)
	}
	if n.Requires, err = specs(p.Requires); err != nil {
		return model.IntentNode{}, fmt.Errorf("requires: %w", err)
	}
	for _, c := range p.Constraints {
		severity := model.SeverityRequired
		if c.Severity != "" {
			if severity, err = model.ParseSeverity(c.Severity); err != nil {
				return model.IntentNode{}, fmt.Errorf("constraints: %w", err)
			}
		}
		n.Constraints = append(n.Constraints, model.Constraint{
			Target:      c.Target,
			Requirement: c.Requirement,
			Severity:    severity,
			AffectsTags: c.AffectsTags,
		})
	}
	for _, e := range p.Evidence {
		kind, err := evidenceKind(e.Kind)
		if err != nil {
			return model.IntentNode{}, fmt.Errorf("evidence: %w", err)
		}
		ev := model.Evidence{Kind: kind, Description: e.Description, Timestamp: d.now()}
		if e.Timestamp != nil {
			ev.Timestamp = e.Timestamp.UTC()
		}
		n.Evidence = append(n.Evidence, ev)
	}
	return n, nil
}

// specList validates and converts a bare list of specs.
func (d *decoder) specList(ps []specPayload) ([]model.InterfaceSpec, error) {
	if len(ps) == 0 {
		return nil, errors.New("specs must not be empty")
	}
	for i := range ps {
		if err := d.check(ps[i]); err != nil {
			return nil, err
		}
	}
	return specs(ps)
}

func (d *decoder) check(v any) error {
	err := d.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := jsonPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte", "lte":
		return field + " must be within [0, 1]"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// jsonPath turns "intentPayload.Provides[0].Name" into "provides[0].name".
func jsonPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		name, index, _ := strings.Cut(p, "[")
		out := snakeCase(name)
		if index != "" {
			out += "[" + index
		}
		parts[i] = out
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	switch s {
	case "AgentID":
		return "agent_id"
	case "ParentID":
		return "parent_id"
	}
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func specs(ps []specPayload) ([]model.InterfaceSpec, error) {
	if len(ps) == 0 {
		return nil, nil
	}
	out := make([]model.InterfaceSpec, 0, len(ps))
	for _, p := range ps {
		kind, err := model.ParseInterfaceKind(p.Kind)
		if err != nil {
			return nil, err
		}
		out = append(out, model.InterfaceSpec{
			Name:       p.Name,
			Kind:       kind,
			Signature:  p.Signature,
			ModulePath: p.ModulePath,
			Tags:       p.Tags,
		})
	}
	return out, nil
}

func evidenceKind(s string) (model.EvidenceKind, error) {
	if kind, ok := evidenceAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return kind, nil
	}
	return model.ParseEvidenceKind(s)
}

var defaultDecoder = newDecoder()

// DecodeIntent parses an intent in the same JSON form convergent_publish
// accepts, applying the same validation and defaults.
func DecodeIntent(data []byte) (model.IntentNode, error) {
	var p intentPayload
	if err := decodeArg("intent", string(data), &p); err != nil {
		return model.IntentNode{}, err
	}
	return defaultDecoder.intent(p)
}
