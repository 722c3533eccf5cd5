package mcp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/convergent/internal/model"
)

func TestDecodeIntent(t *testing.T) {
	n, err := DecodeIntent([]byte(`{
		"agent_id": " agent-a ",
		"description": "auth",
		"timestamp": "2026-03-01T13:00:00+01:00",
		"stability": 0.6,
		"parent_id": "p-1",
		"provides": [{"name": "User", "kind": "MODEL", "signature": "id: UUID", "module_path": "app/models.py", "tags": ["user"]}],
		"requires": [{"name": "Session", "kind": "class"}],
		"constraints": [{"target": "User", "requirement": "email is unique", "severity": "critical", "affects_tags": ["user"]}],
		"evidence": [{"kind": "test_passed", "description": "green", "timestamp": "2026-03-01T12:30:00Z"}]
	}`))
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "agent-a", n.AgentID)
	assert.True(t, n.Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, n.Timestamp.Location())
	assert.InDelta(t, 0.6, n.Stability, 1e-9)
	require.NotNil(t, n.ParentID)
	assert.Equal(t, "p-1", *n.ParentID)

	require.Len(t, n.Provides, 1)
	assert.Equal(t, model.KindModel, n.Provides[0].Kind)
	assert.Equal(t, "app/models.py", n.Provides[0].ModulePath)
	require.Len(t, n.Requires, 1)
	assert.Equal(t, model.KindClass, n.Requires[0].Kind)
	require.Len(t, n.Constraints, 1)
	assert.Equal(t, model.SeverityCritical, n.Constraints[0].Severity)
	require.Len(t, n.Evidence, 1)
	assert.Equal(t, model.EvidenceTestPass, n.Evidence[0].Kind)
	assert.True(t, n.Evidence[0].Timestamp.Equal(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)))
}

func TestDecodeIntent_Errors(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		errSubstr string
	}{
		{"empty", ``, "intent is required"},
		{"not an object", `[1, 2]`, "invalid JSON"},
		{"missing description", `{"agent_id": "a"}`, "description is required"},
		{"empty tag", `{"agent_id": "a", "description": "d", "provides": [{"name": "U", "kind": "model", "tags": [""]}]}`, "provides[0].tags[0] is required"},
		{"constraint without target", `{"agent_id": "a", "description": "d", "constraints": [{"requirement": "r"}]}`, "constraints[0].target is required"},
		{"long agent id", `{"agent_id": "` + longID() + `", "description": "d"}`, "agent_id must be at most 256 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeIntent([]byte(tt.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func longID() string {
	return strings.Repeat("a", 300)
}

func TestEvidenceKindAliases(t *testing.T) {
	tests := map[string]model.EvidenceKind{
		"test_failed": model.EvidenceTestFail,
		"TEST_PASSED": model.EvidenceTestPass,
		"test_fail":   model.EvidenceTestFail,
		"committed":   model.EvidenceCodeCommitted,
		"conflict":    model.EvidenceConflict,
		" consumed ":  model.EvidenceConsumedByOther,
	}
	for in, want := range tests {
		got, err := evidenceKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := evidenceKind("broken")
	var enumErr *model.EnumError
	require.ErrorAs(t, err, &enumErr)
	assert.Equal(t, "broken", enumErr.Value)
}

func TestJSONPath(t *testing.T) {
	assert.Equal(t, "agent_id", jsonPath("intentPayload.AgentID"))
	assert.Equal(t, "provides[0].module_path", jsonPath("intentPayload.Provides[0].ModulePath"))
	assert.Equal(t, "constraints[2].affects_tags[1]", jsonPath("intentPayload.Constraints[2].AffectsTags[1]"))
}
