package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/catalog"
	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// CreateNodeRequest represents the request to create a new workflow node.
type CreateNodeRequest struct {
	Label       string
	Category    string
	Color       string
	Properties  map[string]any
	NodeTypeKey string
	Config      map[string]any
	PositionX   int
	PositionY   int
}

// UpdateNodeRequest represents the request to update an existing workflow node.
// The category is immutable after creation.
type UpdateNodeRequest struct {
	Label       string
	Color       string
	Properties  map[string]any
	NodeTypeKey string
	Config      map[string]any
	PositionX   int
	PositionY   int
}

// Node handles node-related business operations.
type Node struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

// NewNode creates a new node service.
func NewNode(persistence persistence.Persistence, logger *slog.Logger) *Node {
	return &Node{
		persistence: persistence,
		logger:      logger,
	}
}

// editableWorkflow fetches a workflow and verifies it accepts graph mutations.
func (n *Node) editableWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := n.persistence.WorkflowRepository().GetByID(ctx, workflowID)
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

// CreateNode creates a new node in the specified workflow.
func (n *Node) CreateNode(ctx context.Context, workflowID string, req *CreateNodeRequest) (*models.Node, error) {
	workflow, err := n.editableWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	node, err := buildNode(workflow, req)
	if err != nil {
		return nil, err
	}

	if req.NodeTypeKey != "" {
		err = n.bindNodeType(ctx, node, req.NodeTypeKey)
		if err != nil {
			return nil, err
		}
	}

	workflow.Nodes = append(workflow.Nodes, node)

	err = n.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save node: %w", err)
	}

	return node, nil
}

// buildNode constructs an identified node for the workflow from a create
// request. Catalog binding is the caller's concern.
func buildNode(workflow *models.Workflow, req *CreateNodeRequest) (*models.Node, error) {
	node, err := models.NewNode(workflow.ID, models.NodeCategory(req.Category), req.Label)
	if err != nil {
		return nil, err
	}

	node.ID = uuid.New().String()
	node.Color = req.Color
	node.Properties = req.Properties
	node.PositionX = req.PositionX
	node.PositionY = req.PositionY
	node.Config = req.Config

	if node.Properties == nil {
		node.Properties = make(map[string]any)
	}

	return node, nil
}

// bindNodeType attaches a catalog entry to the node and validates the node's
// configuration against the entry's config schema. Missing config keys are
// filled from the entry's default configuration.
func (n *Node) bindNodeType(ctx context.Context, node *models.Node, key string) error {
	entry, err := n.persistence.CatalogRepository().GetByKey(ctx, key)
	if err != nil {
		return err
	}

	if node.Config == nil {
		node.Config = make(map[string]any)
	}

	for name, value := range entry.DefaultConfig {
		if _, exists := node.Config[name]; !exists {
			node.Config[name] = value
		}
	}

	violations, err := catalog.ValidateNodeConfig(entry, node.Config)
	if err != nil {
		return fmt.Errorf("failed to validate node config: %w", err)
	}

	if len(violations) > 0 {
		return NewValidationError(
			"bindNodeType",
			"INVALID_NODE_CONFIG",
			fmt.Sprintf("node config violates schema of %s: %s", key, strings.Join(violations, "; ")),
			models.ErrInvalidConfiguration,
		)
	}

	node.NodeTypeKey = key

	return nil
}

// GetNode retrieves a specific node from the specified workflow.
func (n *Node) GetNode(ctx context.Context, workflowID, nodeID string) (*models.Node, error) {
	workflow, err := n.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	node := workflow.NodeByID(nodeID)
	if node == nil {
		return nil, ErrNodeNotFound
	}

	return node, nil
}

// UpdateNode updates an existing node in the specified workflow.
func (n *Node) UpdateNode(ctx context.Context, workflowID, nodeID string, req *UpdateNodeRequest) (*models.Node, error) {
	workflow, err := n.editableWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	node := workflow.NodeByID(nodeID)
	if node == nil {
		return nil, ErrNodeNotFound
	}

	if strings.TrimSpace(req.Label) == "" {
		return nil, NewValidationError("UpdateNode", "INVALID_LABEL", "node label cannot be empty", ErrInvalidRequest)
	}

	node.Label = req.Label
	node.Color = req.Color
	node.PositionX = req.PositionX
	node.PositionY = req.PositionY

	if req.Properties != nil {
		node.Properties = req.Properties
	}

	node.Config = req.Config

	switch {
	case req.NodeTypeKey == "":
		node.NodeTypeKey = ""
	default:
		err = n.bindNodeType(ctx, node, req.NodeTypeKey)
		if err != nil {
			return nil, err
		}
	}

	err = n.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update node: %w", err)
	}

	return node, nil
}

// DeleteNode soft-deletes a node and cascades to every connection that
// references it as source or target.
func (n *Node) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	workflow, err := n.editableWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	node := workflow.NodeByID(nodeID)
	if node == nil {
		return ErrNodeNotFound
	}

	deleteNode(workflow, node)

	err = n.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	return nil
}

// deleteNode marks the node and its incident connections as deleted in the
// workflow aggregate, returning the IDs of the cascaded connections. The
// caller persists the change.
func deleteNode(workflow *models.Workflow, node *models.Node) []string {
	now := nowUTC()
	node.DeletedAt = &now

	var cascaded []string

	for _, connection := range workflow.ActiveConnections() {
		if connection.SourceNodeID == node.ID || connection.TargetNodeID == node.ID {
			connection.DeletedAt = &now
			cascaded = append(cascaded, connection.ID)
		}
	}

	return cascaded
}
