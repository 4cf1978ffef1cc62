package catalog

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stageflow/stageflow/pkg/models"
)

func testEntry(key string) *models.CatalogEntry {
	return &models.CatalogEntry{
		Key:      key,
		Name:     "Approval Gate",
		Category: models.CatalogCategoryControlFlow,
		InputSchema: map[string]any{
			"type": "object",
		},
		OutputSchema: map[string]any{
			"type": "object",
		},
		ConfigSchema: map[string]any{
			"type":     "object",
			"required": []any{"approver_role"},
			"properties": map[string]any{
				"approver_role": map[string]any{
					"type": "string",
					"enum": []any{"manager", "director"},
				},
				"timeout_hours": map[string]any{
					"type": "integer",
				},
			},
		},
		DefaultConfig: map[string]any{
			"approver_role": "manager",
		},
	}
}

func newTestCatalog() *Catalog {
	return NewCatalog(slog.Default())
}

func TestCatalog_Register(t *testing.T) {
	c := newTestCatalog()

	require.NoError(t, c.Register(testEntry("approval-gate")))

	entry, err := c.Get("approval-gate")
	require.NoError(t, err)
	assert.Equal(t, "Approval Gate", entry.Name)
}

func TestCatalog_Register_DuplicateKey(t *testing.T) {
	c := newTestCatalog()

	require.NoError(t, c.Register(testEntry("approval-gate")))

	err := c.Register(testEntry("approval-gate"))
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestCatalog_Register_SchemaNotObject(t *testing.T) {
	c := newTestCatalog()

	entry := testEntry("broken")
	entry.ConfigSchema = nil

	err := c.Register(entry)
	assert.ErrorIs(t, err, ErrSchemaNotObject)
}

func TestCatalog_Get_NotFound(t *testing.T) {
	c := newTestCatalog()

	_, err := c.Get("missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestCatalog_Deregister(t *testing.T) {
	c := newTestCatalog()

	require.NoError(t, c.Register(testEntry("approval-gate")))
	require.NoError(t, c.Deregister("approval-gate"))

	_, err := c.Get("approval-gate")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	assert.ErrorIs(t, c.Deregister("approval-gate"), ErrEntryNotFound)
}

func TestValidateNodeConfig(t *testing.T) {
	entry := testEntry("approval-gate")

	violations, err := ValidateNodeConfig(entry, map[string]any{
		"approver_role": "manager",
		"timeout_hours": 48,
	})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestValidateNodeConfig_Violations(t *testing.T) {
	entry := testEntry("approval-gate")

	tests := []struct {
		name   string
		config map[string]any
	}{
		{"missing required property", map[string]any{"timeout_hours": 48}},
		{"wrong primitive type", map[string]any{"approver_role": "manager", "timeout_hours": "soon"}},
		{"enum violation", map[string]any{"approver_role": "intern"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations, err := ValidateNodeConfig(entry, tt.config)
			require.NoError(t, err)
			assert.NotEmpty(t, violations)
		})
	}
}

func TestValidateNodeConfig_EmptySchemaAcceptsAnything(t *testing.T) {
	entry := testEntry("open-ended")
	entry.ConfigSchema = map[string]any{}

	violations, err := ValidateNodeConfig(entry, map[string]any{"whatever": true})
	require.NoError(t, err)
	assert.Empty(t, violations)
}
