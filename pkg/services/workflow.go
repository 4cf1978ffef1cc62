package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/eventbus"
	"github.com/stageflow/stageflow/pkg/events"
	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence"
	"github.com/stageflow/stageflow/pkg/validation"
)

// Workflow handles workflow lifecycle operations.
type Workflow struct {
	persistence persistence.Persistence
	validator   *validation.Validator
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(
	persistence persistence.Persistence,
	validator *validation.Validator,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		persistence: persistence,
		validator:   validator,
		publisher:   publisher,
		logger:      logger,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	OwnerID        string
	OrganizationID string
	ProjectID      string
	Status         *models.WorkflowStatus

	// Sorting
	SortBy    string `validate:"oneof=created_at updated_at name"`
	SortOrder string `validate:"oneof=asc desc"`
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.validateListWorkflowsRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	opts := persistence.ListWorkflowsOptions{
		Limit:          req.Limit,
		Offset:         req.Offset,
		OwnerID:        req.OwnerID,
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
		Status:         req.Status,
		SortBy:         req.SortBy,
		SortOrder:      req.SortOrder,
	}

	result, err := w.persistence.WorkflowRepository().ListWorkflows(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   result.Workflows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// validateListWorkflowsRequest validates and sets defaults for the request.
func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "name"}

	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil {
		allowedStatuses := []models.WorkflowStatus{
			models.WorkflowStatusDraft,
			models.WorkflowStatusPublished,
			models.WorkflowStatusArchived,
		}

		if !slices.Contains(allowedStatuses, *req.Status) {
			return NewValidationError(
				"validateListWorkflowsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	if req.OwnerID != "" {
		req.OwnerID = strings.TrimSpace(req.OwnerID)
		if req.OwnerID == "" {
			return ErrEmptyOwnerID
		}
	}

	return nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create adds a new workflow in draft status.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if strings.TrimSpace(workflow.Name) == "" {
		return nil, ErrWorkflowNameRequired
	}

	workflow.ID = uuid.New().String()
	workflow.Status = models.WorkflowStatusDraft
	workflow.Version = 0
	workflow.Revision = 0

	if workflow.Nodes == nil {
		workflow.Nodes = make([]*models.Node, 0)
	}

	if workflow.Connections == nil {
		workflow.Connections = make([]*models.Connection, 0)
	}

	err := w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.emit(ctx, workflow.ID, events.WorkflowCreated{
		BaseEvent: w.baseEvent(events.WorkflowCreatedEvent, workflow.ID),
		Name:      workflow.Name,
		Owner:     workflow.Owner,
	})

	return workflow, nil
}

// UpdateWorkflowRequest carries the mutable metadata fields of a workflow.
type UpdateWorkflowRequest struct {
	Name        string
	Description string
	Metadata    map[string]any
}

// Update modifies workflow metadata. The graph itself changes through the
// node, connection, and batch operations.
func (w *Workflow) Update(ctx context.Context, workflowID string, req *UpdateWorkflowRequest) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsEditable() {
		return nil, ErrWorkflowNotEditable
	}

	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrWorkflowNameRequired
	}

	workflow.Name = req.Name
	workflow.Description = req.Description

	if req.Metadata != nil {
		workflow.Metadata = req.Metadata
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	w.emit(ctx, workflowID, events.WorkflowUpdated{
		BaseEvent: w.baseEvent(events.WorkflowUpdatedEvent, workflowID),
		Name:      workflow.Name,
	})

	return workflow, nil
}

// Delete soft-deletes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	_, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return err
	}

	err = w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	w.emit(ctx, workflowID, events.WorkflowDeleted{
		BaseEvent: w.baseEvent(events.WorkflowDeletedEvent, workflowID),
	})

	return nil
}

// Validate runs structural validation against the workflow's graph.
func (w *Workflow) Validate(ctx context.Context, workflowID string) (*validation.Result, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	result := w.validator.Validate(workflow)

	w.emit(ctx, workflowID, events.GraphValidated{
		BaseEvent: w.baseEvent(events.GraphValidatedEvent, workflowID),
		Valid:     result.Valid,
		Errors:    result.Errors,
		Warnings:  result.Warnings,
	})

	return result, nil
}

// Publish promotes a draft workflow to published. Publication is gated on
// structural validation: any validation error blocks the transition and the
// workflow stays in draft. On success the workflow version advances and the
// definition becomes frozen.
func (w *Workflow) Publish(ctx context.Context, workflowID string) (*models.Workflow, *validation.Result, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	if workflow.Status != models.WorkflowStatusDraft {
		return nil, nil, ErrWorkflowNotDraft
	}

	if strings.TrimSpace(workflow.Name) == "" {
		return nil, nil, ErrWorkflowNameRequired
	}

	result := w.validator.Validate(workflow)
	if !result.Valid {
		return nil, result, fmt.Errorf("%w: %d errors", ErrGraphInvalid, len(result.Errors))
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusPublished
	workflow.Version++
	workflow.PublishedAt = &now

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, result, fmt.Errorf("failed to publish workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow published",
		"workflow_id", workflowID,
		"version", workflow.Version,
	)

	w.emit(ctx, workflowID, events.WorkflowPublished{
		BaseEvent:   w.baseEvent(events.WorkflowPublishedEvent, workflowID),
		Version:     workflow.Version,
		PublishedAt: now,
	})

	return workflow, result, nil
}

// Archive retires a published workflow. Archived workflows are read-only and
// no longer eligible for runtime use.
func (w *Workflow) Archive(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return nil, ErrWorkflowNotPublished
	}

	workflow.Status = models.WorkflowStatusArchived

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to archive workflow: %w", err)
	}

	w.emit(ctx, workflowID, events.WorkflowArchived{
		BaseEvent: w.baseEvent(events.WorkflowArchivedEvent, workflowID),
	})

	return workflow, nil
}

func (w *Workflow) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// emit publishes an event without failing the surrounding operation. The
// definition change is already persisted; a lost notification is logged.
func (w *Workflow) emit(ctx context.Context, key string, event eventbus.Event) {
	if w.publisher == nil {
		return
	}

	err := w.publisher.Publish(ctx, key, event)
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"workflow_id", key,
			"error", err,
		)
	}
}
