package models

import (
	"fmt"
	"time"
)

// ConnectionType represents the kind of transition a connection models.
type ConnectionType string

const (
	ConnectionTypeSequential  ConnectionType = "sequential"
	ConnectionTypeConditional ConnectionType = "conditional"
	ConnectionTypeParallel    ConnectionType = "parallel"
	ConnectionTypeLoop        ConnectionType = "loop"
)

var connectionTypes = map[ConnectionType]bool{
	ConnectionTypeSequential:  true,
	ConnectionTypeConditional: true,
	ConnectionTypeParallel:    true,
	ConnectionTypeLoop:        true,
}

// IsValid reports whether the connection type is recognized.
func (t ConnectionType) IsValid() bool {
	return connectionTypes[t]
}

// TriggerEvent identifies what fires a transition over a connection.
type TriggerEvent string

const (
	TriggerEventManualTransition TriggerEvent = "manual_transition"
	TriggerEventIssueCreated     TriggerEvent = "issue_created"
	TriggerEventIssueUpdated     TriggerEvent = "issue_updated"
	TriggerEventIssueCommented   TriggerEvent = "issue_commented"
	TriggerEventIssueAssigned    TriggerEvent = "issue_assigned"
	TriggerEventIssueResolved    TriggerEvent = "issue_resolved"
)

var triggerEvents = map[TriggerEvent]bool{
	TriggerEventManualTransition: true,
	TriggerEventIssueCreated:     true,
	TriggerEventIssueUpdated:     true,
	TriggerEventIssueCommented:   true,
	TriggerEventIssueAssigned:    true,
	TriggerEventIssueResolved:    true,
}

// IsValid reports whether the trigger event is recognized.
func (e TriggerEvent) IsValid() bool {
	return triggerEvents[e]
}

// Loop bound range accepted for loop connections.
const (
	LoopMinIterations = 1
	LoopMaxIterations = 1000
)

// Connection represents a directed edge between two nodes of the same workflow.
type Connection struct {
	ID              string         `json:"id"`
	WorkflowID      string         `json:"workflow_id"      validate:"required"`
	SourceNodeID    string         `json:"source_node_id"   validate:"required"`
	TargetNodeID    string         `json:"target_node_id"   validate:"required"`
	Type            ConnectionType `json:"type"             validate:"required"`
	Name            string         `json:"name"` // Defaults to "Source → Target"
	ConditionConfig map[string]any `json:"condition_config,omitempty"`
	Priority        int            `json:"priority"` // Tie-break among connections sharing a source; resolution is a runtime concern
	SourceHandle    string         `json:"source_handle,omitempty"`
	TargetHandle    string         `json:"target_handle,omitempty"`
	TriggerEvent    TriggerEvent   `json:"trigger_event"`
	Properties      map[string]any `json:"properties,omitempty"`
	Rules           []*Rule        `json:"rules,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       *time.Time     `json:"deleted_at,omitempty"`
}

// NewConnection constructs a connection between two existing nodes after
// checking every single-entity invariant: no self-loop, endpoints share the
// workflow, terminal sources and start targets are rejected, and
// conditional/loop configurations are well-formed.
func NewConnection(source, target *Node, connType ConnectionType, conditionConfig map[string]any) (*Connection, error) {
	if !connType.IsValid() {
		return nil, ErrInvalidConnectionType
	}

	if source.ID == target.ID {
		return nil, ErrSelfLoop
	}

	if source.WorkflowID != target.WorkflowID {
		return nil, ErrCrossWorkflow
	}

	if source.Category.IsTerminal() {
		return nil, ErrTerminalSource
	}

	if target.Category.IsStart() {
		return nil, ErrProtectedTarget
	}

	connection := &Connection{
		WorkflowID:      source.WorkflowID,
		SourceNodeID:    source.ID,
		TargetNodeID:    target.ID,
		Type:            connType,
		Name:            fmt.Sprintf("%s → %s", source.Label, target.Label),
		ConditionConfig: conditionConfig,
		TriggerEvent:    TriggerEventManualTransition,
	}

	if err := connection.ValidateConfig(); err != nil {
		return nil, err
	}

	return connection, nil
}

// ValidateConfig checks the condition/loop configuration against the
// connection's type. Conditional connections require a structured object
// (possibly empty); loop connections additionally require an integer
// max_iterations within [LoopMinIterations, LoopMaxIterations].
func (c *Connection) ValidateConfig() error {
	switch c.Type {
	case ConnectionTypeConditional:
		if c.ConditionConfig == nil {
			return ErrInvalidConditionConfig
		}
	case ConnectionTypeLoop:
		if _, err := c.MaxIterations(); err != nil {
			return err
		}
	case ConnectionTypeSequential, ConnectionTypeParallel:
	}

	return nil
}

// MaxIterations extracts the loop bound from the condition configuration.
// JSON decoding yields float64 for numbers, so integral floats are accepted;
// strings and fractional values are not.
func (c *Connection) MaxIterations() (int, error) {
	if c.ConditionConfig == nil {
		return 0, ErrInvalidLoopConfig
	}

	raw, ok := c.ConditionConfig["max_iterations"]
	if !ok {
		return 0, ErrInvalidLoopConfig
	}

	var iterations int

	switch v := raw.(type) {
	case int:
		iterations = v
	case int64:
		iterations = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, ErrInvalidLoopConfig
		}

		iterations = int(v)
	default:
		return 0, ErrInvalidLoopConfig
	}

	if iterations < LoopMinIterations || iterations > LoopMaxIterations {
		return 0, ErrInvalidLoopConfig
	}

	return iterations, nil
}

// IsForwardEdge reports whether the connection counts as forward progress for
// reachability and cycle analysis. Loop connections intentionally revisit
// earlier nodes and are excluded.
func (c *Connection) IsForwardEdge() bool {
	return c.Type != ConnectionTypeLoop
}
