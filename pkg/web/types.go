// Package web provides HTTP handlers and REST API endpoints for workflow
// definition management.
package web

import "github.com/stageflow/stageflow/pkg/services"

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name           string         `json:"name"                      validate:"required,min=3"`
	Description    string         `json:"description"`
	OrganizationID string         `json:"organization_id,omitempty"`
	ProjectID      string         `json:"project_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Owner          string         `json:"owner"                     validate:"required"`
}

// UpdateWorkflowRequest represents the request body for updating workflow
// metadata. All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CreateNodeRequest represents the request body for creating a new node.
type CreateNodeRequest struct {
	Label       string         `json:"label"                   validate:"required,min=1"`
	Category    string         `json:"category"                validate:"required"`
	Color       string         `json:"color,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	NodeTypeKey string         `json:"node_type_key,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	PositionX   int            `json:"position_x"`
	PositionY   int            `json:"position_y"`
}

// UpdateNodeRequest represents the request body for updating an existing
// node. The category cannot be changed.
type UpdateNodeRequest struct {
	Label       string         `json:"label"                   validate:"required,min=1"`
	Color       string         `json:"color,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	NodeTypeKey string         `json:"node_type_key,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	PositionX   int            `json:"position_x"`
	PositionY   int            `json:"position_y"`
}

// CreateConnectionRequest represents the request body for creating a connection.
type CreateConnectionRequest struct {
	SourceNodeID    string         `json:"source_node_id"             validate:"required"`
	TargetNodeID    string         `json:"target_node_id"             validate:"required"`
	Type            string         `json:"type"                       validate:"required"`
	Name            string         `json:"name,omitempty"`
	ConditionConfig map[string]any `json:"condition_config,omitempty"`
	Priority        int            `json:"priority"`
	SourceHandle    string         `json:"source_handle,omitempty"`
	TargetHandle    string         `json:"target_handle,omitempty"`
	TriggerEvent    string         `json:"trigger_event,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
}

// UpdateConnectionRequest represents the request body for updating a
// connection. Endpoints and type are immutable.
type UpdateConnectionRequest struct {
	Name            string         `json:"name,omitempty"`
	ConditionConfig map[string]any `json:"condition_config,omitempty"`
	Priority        int            `json:"priority"`
	SourceHandle    string         `json:"source_handle,omitempty"`
	TargetHandle    string         `json:"target_handle,omitempty"`
	TriggerEvent    string         `json:"trigger_event,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
}

// AttachRuleRequest represents the request body for attaching a rule to a
// connection.
type AttachRuleRequest struct {
	Type        string         `json:"type"        validate:"required"`
	Subtype     string         `json:"subtype"     validate:"required"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config"      validate:"required"`
	Order       int            `json:"order"`
}

// UpdateRuleRequest represents the request body for updating a rule.
type UpdateRuleRequest struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config"  validate:"required"`
	Order       int            `json:"order"`
	Active      bool           `json:"active"`
}

// RegisterCatalogEntryRequest represents the request body for registering a
// node type.
type RegisterCatalogEntryRequest struct {
	Key           string         `json:"key"            validate:"required,min=1"`
	Name          string         `json:"name"           validate:"required,min=1"`
	Category      string         `json:"category"       validate:"required"`
	Icon          string         `json:"icon,omitempty"`
	Color         string         `json:"color,omitempty"`
	InputSchema   map[string]any `json:"input_schema"   validate:"required"`
	OutputSchema  map[string]any `json:"output_schema"  validate:"required"`
	ConfigSchema  map[string]any `json:"config_schema"  validate:"required"`
	DefaultConfig map[string]any `json:"default_config" validate:"required"`
}

// UpdateCatalogEntryRequest represents the request body for updating a node
// type. The key is taken from the path and cannot change.
type UpdateCatalogEntryRequest struct {
	Name          string         `json:"name"           validate:"required,min=1"`
	Category      string         `json:"category"       validate:"required"`
	Icon          string         `json:"icon,omitempty"`
	Color         string         `json:"color,omitempty"`
	InputSchema   map[string]any `json:"input_schema"   validate:"required"`
	OutputSchema  map[string]any `json:"output_schema"  validate:"required"`
	ConfigSchema  map[string]any `json:"config_schema"  validate:"required"`
	DefaultConfig map[string]any `json:"default_config" validate:"required"`
}

// BatchNodeCreate pairs a node create payload with an optional client-chosen
// reference that connection creates in the same batch can use as an endpoint.
type BatchNodeCreate struct {
	RefID string `json:"ref_id,omitempty"`
	CreateNodeRequest
}

// BatchNodeUpdate pairs a node ID with its update payload.
type BatchNodeUpdate struct {
	NodeID string `json:"node_id" validate:"required"`
	UpdateNodeRequest
}

// BatchConnectionUpdate pairs a connection ID with its update payload.
type BatchConnectionUpdate struct {
	ConnectionID string `json:"connection_id" validate:"required"`
	UpdateConnectionRequest
}

// BatchRequest represents the request body for applying grouped graph
// mutations atomically.
type BatchRequest struct {
	CreateNodes       []*BatchNodeCreate         `json:"create_nodes,omitempty"`
	UpdateNodes       []*BatchNodeUpdate         `json:"update_nodes,omitempty"`
	DeleteNodes       []string                   `json:"delete_nodes,omitempty"`
	CreateConnections []*CreateConnectionRequest `json:"create_connections,omitempty"`
	UpdateConnections []*BatchConnectionUpdate   `json:"update_connections,omitempty"`
	DeleteConnections []string                   `json:"delete_connections,omitempty"`
}

// EvaluateTransitionRequest represents the request body for evaluating the
// rules of a connection against a transition context.
type EvaluateTransitionRequest struct {
	UserID         string         `json:"user_id"`
	Roles          []string       `json:"roles,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	ProjectID      string         `json:"project_id,omitempty"`
	FieldValues    map[string]any `json:"field_values,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	Approvals      []string       `json:"approvals,omitempty"`
}

func (r *CreateNodeRequest) toService() *services.CreateNodeRequest {
	return &services.CreateNodeRequest{
		Label:       r.Label,
		Category:    r.Category,
		Color:       r.Color,
		Properties:  r.Properties,
		NodeTypeKey: r.NodeTypeKey,
		Config:      r.Config,
		PositionX:   r.PositionX,
		PositionY:   r.PositionY,
	}
}

func (r *UpdateNodeRequest) toService() *services.UpdateNodeRequest {
	return &services.UpdateNodeRequest{
		Label:       r.Label,
		Color:       r.Color,
		Properties:  r.Properties,
		NodeTypeKey: r.NodeTypeKey,
		Config:      r.Config,
		PositionX:   r.PositionX,
		PositionY:   r.PositionY,
	}
}

func (r *CreateConnectionRequest) toService() *services.CreateConnectionRequest {
	return &services.CreateConnectionRequest{
		SourceNodeID:    r.SourceNodeID,
		TargetNodeID:    r.TargetNodeID,
		Type:            r.Type,
		Name:            r.Name,
		ConditionConfig: r.ConditionConfig,
		Priority:        r.Priority,
		SourceHandle:    r.SourceHandle,
		TargetHandle:    r.TargetHandle,
		TriggerEvent:    r.TriggerEvent,
		Properties:      r.Properties,
	}
}

func (r *UpdateConnectionRequest) toService() *services.UpdateConnectionRequest {
	return &services.UpdateConnectionRequest{
		Name:            r.Name,
		ConditionConfig: r.ConditionConfig,
		Priority:        r.Priority,
		SourceHandle:    r.SourceHandle,
		TargetHandle:    r.TargetHandle,
		TriggerEvent:    r.TriggerEvent,
		Properties:      r.Properties,
	}
}

func (r *BatchRequest) toService() *services.BatchRequest {
	req := &services.BatchRequest{
		DeleteNodes:       r.DeleteNodes,
		DeleteConnections: r.DeleteConnections,
	}

	for _, create := range r.CreateNodes {
		req.CreateNodes = append(req.CreateNodes, &services.BatchNodeCreate{
			RefID:             create.RefID,
			CreateNodeRequest: *create.CreateNodeRequest.toService(),
		})
	}

	for _, update := range r.UpdateNodes {
		req.UpdateNodes = append(req.UpdateNodes, &services.BatchNodeUpdate{
			NodeID:            update.NodeID,
			UpdateNodeRequest: *update.UpdateNodeRequest.toService(),
		})
	}

	for _, create := range r.CreateConnections {
		req.CreateConnections = append(req.CreateConnections, create.toService())
	}

	for _, update := range r.UpdateConnections {
		req.UpdateConnections = append(req.UpdateConnections, &services.BatchConnectionUpdate{
			ConnectionID:            update.ConnectionID,
			UpdateConnectionRequest: *update.UpdateConnectionRequest.toService(),
		})
	}

	return req
}
