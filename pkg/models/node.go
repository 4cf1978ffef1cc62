package models

import (
	"time"
)

// NodeCategory represents the category of a status node.
type NodeCategory string

const (
	NodeCategoryStart      NodeCategory = "start"
	NodeCategoryToDo       NodeCategory = "to_do"
	NodeCategoryInProgress NodeCategory = "in_progress"
	NodeCategoryDone       NodeCategory = "done"
)

// Legacy categories retained for backward compatibility with graphs created
// before the status-based model.
const (
	NodeCategoryAction    NodeCategory = "action"
	NodeCategoryCondition NodeCategory = "condition"
	NodeCategoryApproval  NodeCategory = "approval"
	NodeCategoryDelay     NodeCategory = "delay"
	NodeCategoryEnd       NodeCategory = "end"
)

var nodeCategories = map[NodeCategory]bool{
	NodeCategoryStart:      true,
	NodeCategoryToDo:       true,
	NodeCategoryInProgress: true,
	NodeCategoryDone:       true,
	NodeCategoryAction:     true,
	NodeCategoryCondition:  true,
	NodeCategoryApproval:   true,
	NodeCategoryDelay:      true,
	NodeCategoryEnd:        true,
}

// IsValid reports whether the category is a recognized node category.
func (c NodeCategory) IsValid() bool {
	return nodeCategories[c]
}

// IsTerminal reports whether the category forbids outgoing connections.
func (c NodeCategory) IsTerminal() bool {
	return c == NodeCategoryDone || c == NodeCategoryEnd
}

// IsStart reports whether the category forbids incoming connections.
func (c NodeCategory) IsStart() bool {
	return c == NodeCategoryStart
}

// Node represents a status/step within exactly one workflow.
type Node struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"         validate:"required"`
	Label       string         `json:"label"               validate:"required,min=1"`
	Category    NodeCategory   `json:"category"            validate:"required"`
	Color       string         `json:"color,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	NodeTypeKey string         `json:"node_type_key,omitempty"` // Optional catalog entry binding
	Config      map[string]any `json:"config,omitempty"`        // Validated against the catalog entry's config schema
	PositionX   int            `json:"position_x"`
	PositionY   int            `json:"position_y"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

// NewNode constructs a node after checking single-entity invariants.
// Start-node cardinality is a whole-graph concern and is deliberately not
// checked here; batch construction transiently violates it.
func NewNode(workflowID string, category NodeCategory, label string) (*Node, error) {
	if !category.IsValid() {
		return nil, ErrInvalidCategory
	}

	return &Node{
		WorkflowID: workflowID,
		Category:   category,
		Label:      label,
		Properties: map[string]any{},
		Config:     map[string]any{},
	}, nil
}

// IsTerminal reports whether the node forbids outgoing connections.
func (n *Node) IsTerminal() bool {
	return n.Category.IsTerminal()
}
