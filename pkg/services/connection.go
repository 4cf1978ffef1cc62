package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence"
)

// CreateConnectionRequest represents the request to create a new connection.
type CreateConnectionRequest struct {
	SourceNodeID    string
	TargetNodeID    string
	Type            string
	Name            string
	ConditionConfig map[string]any
	Priority        int
	SourceHandle    string
	TargetHandle    string
	TriggerEvent    string
	Properties      map[string]any
}

// UpdateConnectionRequest represents the request to update an existing
// connection. Endpoints and type are immutable after creation.
type UpdateConnectionRequest struct {
	Name            string
	ConditionConfig map[string]any
	Priority        int
	SourceHandle    string
	TargetHandle    string
	TriggerEvent    string
	Properties      map[string]any
}

// Connection handles connection-related business operations.
type Connection struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

// NewConnection creates a new connection service.
func NewConnection(persistence persistence.Persistence, logger *slog.Logger) *Connection {
	return &Connection{
		persistence: persistence,
		logger:      logger,
	}
}

func (c *Connection) editableWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := c.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	if !workflow.IsEditable() {
		return nil, ErrWorkflowNotEditable
	}

	return workflow, nil
}

// CreateConnection creates a new connection between two nodes of the workflow.
func (c *Connection) CreateConnection(ctx context.Context, workflowID string, req *CreateConnectionRequest) (*models.Connection, error) {
	workflow, err := c.editableWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	connection, err := buildConnection(workflow, req)
	if err != nil {
		return nil, err
	}

	workflow.Connections = append(workflow.Connections, connection)

	err = c.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}

	return connection, nil
}

// buildConnection resolves endpoints inside the workflow aggregate and runs
// the model-level invariants. Shared with the batch coordinator.
func buildConnection(workflow *models.Workflow, req *CreateConnectionRequest) (*models.Connection, error) {
	source := workflow.NodeByID(req.SourceNodeID)
	if source == nil {
		return nil, fmt.Errorf("%w: source %s", ErrNodeNotFound, req.SourceNodeID)
	}

	target := workflow.NodeByID(req.TargetNodeID)
	if target == nil {
		return nil, fmt.Errorf("%w: target %s", ErrNodeNotFound, req.TargetNodeID)
	}

	connection, err := models.NewConnection(source, target, models.ConnectionType(req.Type), req.ConditionConfig)
	if err != nil {
		return nil, err
	}

	connection.ID = uuid.New().String()
	connection.Priority = req.Priority
	connection.SourceHandle = req.SourceHandle
	connection.TargetHandle = req.TargetHandle
	connection.Properties = req.Properties

	if req.Name != "" {
		connection.Name = req.Name
	}

	if req.TriggerEvent != "" {
		event := models.TriggerEvent(req.TriggerEvent)
		if !event.IsValid() {
			return nil, fmt.Errorf("%w: %s", models.ErrInvalidTriggerEvent, req.TriggerEvent)
		}

		connection.TriggerEvent = event
	}

	return connection, nil
}

// GetConnection retrieves a specific connection from the workflow.
func (c *Connection) GetConnection(ctx context.Context, workflowID, connectionID string) (*models.Connection, error) {
	workflow, err := c.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	connection := workflow.ConnectionByID(connectionID)
	if connection == nil {
		return nil, ErrConnectionNotFound
	}

	return connection, nil
}

// UpdateConnection updates the mutable fields of an existing connection.
func (c *Connection) UpdateConnection(ctx context.Context, workflowID, connectionID string, req *UpdateConnectionRequest) (*models.Connection, error) {
	workflow, err := c.editableWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	connection := workflow.ConnectionByID(connectionID)
	if connection == nil {
		return nil, ErrConnectionNotFound
	}

	err = applyConnectionUpdate(connection, req)
	if err != nil {
		return nil, err
	}

	err = c.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update connection: %w", err)
	}

	return connection, nil
}

// applyConnectionUpdate mutates the connection in place, re-running the
// type/config invariants. Shared with the batch coordinator.
func applyConnectionUpdate(connection *models.Connection, req *UpdateConnectionRequest) error {
	if req.Name != "" {
		connection.Name = req.Name
	}

	connection.Priority = req.Priority
	connection.SourceHandle = req.SourceHandle
	connection.TargetHandle = req.TargetHandle

	if req.Properties != nil {
		connection.Properties = req.Properties
	}

	if req.ConditionConfig != nil {
		connection.ConditionConfig = req.ConditionConfig
	}

	if req.TriggerEvent != "" {
		event := models.TriggerEvent(req.TriggerEvent)
		if !event.IsValid() {
			return fmt.Errorf("%w: %s", models.ErrInvalidTriggerEvent, req.TriggerEvent)
		}

		connection.TriggerEvent = event
	}

	return connection.ValidateConfig()
}

// DeleteConnection soft-deletes a connection from the workflow.
func (c *Connection) DeleteConnection(ctx context.Context, workflowID, connectionID string) error {
	workflow, err := c.editableWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	connection := workflow.ConnectionByID(connectionID)
	if connection == nil {
		return ErrConnectionNotFound
	}

	now := nowUTC()
	connection.DeletedAt = &now

	err = c.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	return nil
}
