package models

import "time"

// CatalogCategory groups catalog entries in the template picker.
type CatalogCategory string

const (
	CatalogCategoryTaskManagement  CatalogCategory = "task_management"
	CatalogCategoryDraftGenerators CatalogCategory = "draft_generators"
	CatalogCategoryControlFlow     CatalogCategory = "control_flow"
	CatalogCategoryActions         CatalogCategory = "actions"
)

var catalogCategories = map[CatalogCategory]bool{
	CatalogCategoryTaskManagement:  true,
	CatalogCategoryDraftGenerators: true,
	CatalogCategoryControlFlow:     true,
	CatalogCategoryActions:         true,
}

// IsValid reports whether the catalog category is recognized.
func (c CatalogCategory) IsValid() bool {
	return catalogCategories[c]
}

// CatalogEntry is a reusable node template independent of any single workflow.
// Nodes reference an entry by key; entry lifetime is independent of the nodes
// that bind to it, and deleting an entry detaches referencing nodes rather
// than cascading deletion.
type CatalogEntry struct {
	Key           string          `json:"key"      validate:"required,min=1"`
	Name          string          `json:"name"     validate:"required,min=1"`
	Category      CatalogCategory `json:"category" validate:"required"`
	Icon          string          `json:"icon,omitempty"`
	Color         string          `json:"color,omitempty"`
	InputSchema   map[string]any  `json:"input_schema"`
	OutputSchema  map[string]any  `json:"output_schema"`
	ConfigSchema  map[string]any  `json:"config_schema"`
	DefaultConfig map[string]any  `json:"default_config"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SchemaObjects returns the four JSON-like attributes that must be structured
// objects at save time, keyed by attribute name for error reporting.
func (e *CatalogEntry) SchemaObjects() map[string]map[string]any {
	return map[string]map[string]any{
		"input_schema":   e.InputSchema,
		"output_schema":  e.OutputSchema,
		"config_schema":  e.ConfigSchema,
		"default_config": e.DefaultConfig,
	}
}
