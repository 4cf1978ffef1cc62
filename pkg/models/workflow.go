// Package models defines the core domain models for workflow graph definition and validation.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, not eligible for runtime use
	WorkflowStatusPublished WorkflowStatus = "published" // Active, eligible for runtime use
	WorkflowStatusArchived  WorkflowStatus = "archived"  // Read-only, retained for audit
)

// Workflow represents a named, versioned process definition. The graph itself
// lives in the workflow's nodes and connections. Version is monotonically
// non-decreasing and only advances through publication; Revision is the
// storage-level optimistic-concurrency token and advances on every save.
type Workflow struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"                      validate:"required,min=3"`
	Description    string         `json:"description"`
	Status         WorkflowStatus `json:"status"                    validate:"required"`
	OrganizationID string         `json:"organization_id,omitempty"` // Empty means globally shared
	ProjectID      string         `json:"project_id,omitempty"`
	Version        int64          `json:"version"`
	Revision       int64          `json:"revision"`
	Nodes          []*Node        `json:"nodes"`
	Connections    []*Connection  `json:"connections"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Owner          string         `json:"owner"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	PublishedAt    *time.Time     `json:"published_at,omitempty"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// IsEditable reports whether the workflow accepts graph mutations.
// Published workflows are frozen; archived workflows are read-only.
func (w *Workflow) IsEditable() bool {
	return w.Status == WorkflowStatusDraft && w.DeletedAt == nil
}

// ActiveNodes returns the non-deleted nodes of the workflow.
func (w *Workflow) ActiveNodes() []*Node {
	nodes := make([]*Node, 0, len(w.Nodes))

	for _, node := range w.Nodes {
		if node.DeletedAt == nil {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// ActiveConnections returns the non-deleted connections of the workflow.
func (w *Workflow) ActiveConnections() []*Connection {
	connections := make([]*Connection, 0, len(w.Connections))

	for _, connection := range w.Connections {
		if connection.DeletedAt == nil {
			connections = append(connections, connection)
		}
	}

	return connections
}

// NodeByID returns the non-deleted node with the given ID, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id && node.DeletedAt == nil {
			return node
		}
	}

	return nil
}

// ConnectionByID returns the non-deleted connection with the given ID, or nil.
func (w *Workflow) ConnectionByID(id string) *Connection {
	for _, connection := range w.Connections {
		if connection.ID == id && connection.DeletedAt == nil {
			return connection
		}
	}

	return nil
}
