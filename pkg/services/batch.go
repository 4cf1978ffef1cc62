package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/eventbus"
	"github.com/stageflow/stageflow/pkg/events"
	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence"
)

// BatchNodeCreate pairs a node create payload with an optional client-chosen
// reference. Connection creates in the same batch may name the reference as
// an endpoint before the node's real ID exists.
type BatchNodeCreate struct {
	RefID string
	CreateNodeRequest
}

// BatchNodeUpdate pairs a node ID with its update payload.
type BatchNodeUpdate struct {
	NodeID string
	UpdateNodeRequest
}

// BatchConnectionUpdate pairs a connection ID with its update payload.
type BatchConnectionUpdate struct {
	ConnectionID string
	UpdateConnectionRequest
}

// BatchRequest groups graph mutations to be applied as one unit.
type BatchRequest struct {
	CreateNodes       []*BatchNodeCreate
	UpdateNodes       []*BatchNodeUpdate
	DeleteNodes       []string
	CreateConnections []*CreateConnectionRequest
	UpdateConnections []*BatchConnectionUpdate
	DeleteConnections []string
}

// IsEmpty reports whether the batch contains no operations.
func (r *BatchRequest) IsEmpty() bool {
	return len(r.CreateNodes) == 0 &&
		len(r.UpdateNodes) == 0 &&
		len(r.DeleteNodes) == 0 &&
		len(r.CreateConnections) == 0 &&
		len(r.UpdateConnections) == 0 &&
		len(r.DeleteConnections) == 0
}

// BatchResult echoes what the batch did, grouped by entity kind and in
// request order so clients can correlate. Deleted connection IDs include
// connections cascaded by node deletions.
type BatchResult struct {
	CreatedNodes         []*models.Node       `json:"created_nodes"`
	UpdatedNodes         []*models.Node       `json:"updated_nodes"`
	DeletedNodeIDs       []string             `json:"deleted_node_ids"`
	CreatedConnections   []*models.Connection `json:"created_connections"`
	UpdatedConnections   []*models.Connection `json:"updated_connections"`
	DeletedConnectionIDs []string             `json:"deleted_connection_ids"`
	Workflow             *models.Workflow     `json:"workflow"`
}

// BatchOperationError identifies the first operation that failed and why.
// Nothing from the batch is persisted when it is returned.
type BatchOperationError struct {
	Kind  string // "create_node", "update_connection", ...
	Index int    // Position within the operation's list
	Err   error
}

func (e *BatchOperationError) Error() string {
	return fmt.Sprintf("batch %s[%d]: %v", e.Kind, e.Index, e.Err)
}

func (e *BatchOperationError) Unwrap() error {
	return e.Err
}

// Batch applies grouped graph mutations atomically: every operation succeeds
// or none is persisted. Operations run in a fixed order (node creates,
// node updates, node deletes, then the same for connections), so a batch can
// connect nodes it creates.
type Batch struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewBatch creates a new batch coordinator.
func NewBatch(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Batch {
	return &Batch{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger,
	}
}

// Apply executes the batch against the workflow's graph. All mutations are
// staged on the in-memory aggregate and persisted with a single save, which
// is the transactional boundary: a failure in any operation, or a concurrent
// modification detected at save time, leaves the stored graph untouched.
func (b *Batch) Apply(ctx context.Context, workflowID string, req *BatchRequest) (*BatchResult, error) {
	workflow, err := b.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	if !workflow.IsEditable() {
		return nil, ErrWorkflowNotEditable
	}

	if req.IsEmpty() {
		return nil, NewValidationError("Apply", "EMPTY_BATCH", "batch contains no operations", ErrInvalidRequest)
	}

	result := &BatchResult{
		CreatedNodes:         make([]*models.Node, 0, len(req.CreateNodes)),
		UpdatedNodes:         make([]*models.Node, 0, len(req.UpdateNodes)),
		DeletedNodeIDs:       make([]string, 0, len(req.DeleteNodes)),
		CreatedConnections:   make([]*models.Connection, 0, len(req.CreateConnections)),
		UpdatedConnections:   make([]*models.Connection, 0, len(req.UpdateConnections)),
		DeletedConnectionIDs: make([]string, 0, len(req.DeleteConnections)),
	}

	if err := b.stage(workflow, req, result); err != nil {
		return nil, err
	}

	err = b.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to apply batch: %w", err)
	}

	result.Workflow = workflow

	b.logger.InfoContext(ctx, "Graph batch applied",
		"workflow_id", workflowID,
		"nodes_created", len(req.CreateNodes),
		"connections_created", len(req.CreateConnections),
	)

	if b.publisher != nil {
		event := events.GraphBatchApplied{
			BaseEvent: events.BaseEvent{
				ID:         uuid.New().String(),
				Type:       events.GraphBatchAppliedEvent,
				Timestamp:  nowUTC(),
				WorkflowID: workflowID,
			},
			NodesCreated:       len(req.CreateNodes),
			NodesUpdated:       len(req.UpdateNodes),
			NodesDeleted:       len(req.DeleteNodes),
			ConnectionsCreated: len(req.CreateConnections),
			ConnectionsUpdated: len(req.UpdateConnections),
			ConnectionsDeleted: len(req.DeleteConnections),
		}

		if err := b.publisher.Publish(ctx, workflowID, event); err != nil {
			b.logger.WarnContext(ctx, "Failed to publish event",
				"event_type", events.GraphBatchAppliedEvent,
				"workflow_id", workflowID,
				"error", err,
			)
		}
	}

	return result, nil
}

// stage applies every operation to the in-memory aggregate, stopping at the
// first failure. Client references on node creates are resolved to the
// assigned node IDs before connection creates run.
func (b *Batch) stage(workflow *models.Workflow, req *BatchRequest, result *BatchResult) error {
	refs := make(map[string]string, len(req.CreateNodes))

	for i, create := range req.CreateNodes {
		node, err := buildNode(workflow, &create.CreateNodeRequest)
		if err != nil {
			return &BatchOperationError{Kind: "create_node", Index: i, Err: err}
		}

		node.NodeTypeKey = create.NodeTypeKey

		if create.RefID != "" {
			refs[create.RefID] = node.ID
		}

		workflow.Nodes = append(workflow.Nodes, node)
		result.CreatedNodes = append(result.CreatedNodes, node)
	}

	for i, update := range req.UpdateNodes {
		node := workflow.NodeByID(update.NodeID)
		if node == nil {
			return &BatchOperationError{Kind: "update_node", Index: i, Err: ErrNodeNotFound}
		}

		if update.Label == "" {
			return &BatchOperationError{Kind: "update_node", Index: i, Err: ErrInvalidRequest}
		}

		node.Label = update.Label
		node.Color = update.Color
		node.NodeTypeKey = update.NodeTypeKey
		node.Config = update.Config
		node.PositionX = update.PositionX
		node.PositionY = update.PositionY

		if update.Properties != nil {
			node.Properties = update.Properties
		}

		result.UpdatedNodes = append(result.UpdatedNodes, node)
	}

	for i, nodeID := range req.DeleteNodes {
		node := workflow.NodeByID(nodeID)
		if node == nil {
			return &BatchOperationError{Kind: "delete_node", Index: i, Err: ErrNodeNotFound}
		}

		cascaded := deleteNode(workflow, node)
		result.DeletedNodeIDs = append(result.DeletedNodeIDs, node.ID)
		result.DeletedConnectionIDs = append(result.DeletedConnectionIDs, cascaded...)
	}

	for i, create := range req.CreateConnections {
		resolved := *create
		if id, ok := refs[resolved.SourceNodeID]; ok {
			resolved.SourceNodeID = id
		}

		if id, ok := refs[resolved.TargetNodeID]; ok {
			resolved.TargetNodeID = id
		}

		connection, err := buildConnection(workflow, &resolved)
		if err != nil {
			return &BatchOperationError{Kind: "create_connection", Index: i, Err: err}
		}

		workflow.Connections = append(workflow.Connections, connection)
		result.CreatedConnections = append(result.CreatedConnections, connection)
	}

	for i, update := range req.UpdateConnections {
		connection := workflow.ConnectionByID(update.ConnectionID)
		if connection == nil {
			return &BatchOperationError{Kind: "update_connection", Index: i, Err: ErrConnectionNotFound}
		}

		if err := applyConnectionUpdate(connection, &update.UpdateConnectionRequest); err != nil {
			return &BatchOperationError{Kind: "update_connection", Index: i, Err: err}
		}

		result.UpdatedConnections = append(result.UpdatedConnections, connection)
	}

	for i, connectionID := range req.DeleteConnections {
		connection := workflow.ConnectionByID(connectionID)
		if connection == nil {
			return &BatchOperationError{Kind: "delete_connection", Index: i, Err: ErrConnectionNotFound}
		}

		now := nowUTC()
		connection.DeletedAt = &now
		result.DeletedConnectionIDs = append(result.DeletedConnectionIDs, connection.ID)
	}

	return nil
}
