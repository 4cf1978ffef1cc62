package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations. Each
// workflow aggregate is stored as a JSONB document in a single row, so a
// save replaces the whole graph in one statement.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// ListWorkflows returns paginated and filtered workflows.
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"name":       true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("invalid sort field: %s", opts.SortBy)
	}

	if opts.SortOrder != "asc" && opts.SortOrder != "desc" {
		return nil, fmt.Errorf("invalid sort order: %s", opts.SortOrder)
	}

	where := "deleted_at IS NULL"
	args := make([]any, 0, 6)

	addFilter := func(column, value string) {
		if value == "" {
			return
		}

		args = append(args, value)
		where += fmt.Sprintf(" AND %s = $%d", column, len(args))
	}

	addFilter("owner", opts.OwnerID)
	addFilter("organization_id", opts.OrganizationID)
	addFilter("project_id", opts.ProjectID)

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var totalCount int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows WHERE "+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(
		"SELECT document, revision FROM workflows WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		where, opts.SortBy, opts.SortOrder, len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0, opts.Limit)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return &persistence.WorkflowListResult{
		Workflows:   workflows,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(workflows)) < totalCount,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		document []byte
		revision int64
	)

	err := row.Scan(&document, &revision)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(document, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow document: %w", err)
	}

	workflow.Revision = revision

	return &workflow, nil
}

// GetByID returns the workflow aggregate, or nil when it does not exist or
// has been soft-deleted.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := "SELECT document, revision FROM workflows WHERE id = $1 AND deleted_at IS NULL"

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return workflow, nil
}

// Save persists the workflow aggregate after an optimistic revision check.
// The revision comparison happens in the UPDATE predicate, so two concurrent
// writers racing on the same revision cannot both succeed.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	priorRevision := workflow.Revision
	workflow.Revision++

	document, err := json.Marshal(workflow)
	if err != nil {
		workflow.Revision = priorRevision

		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	var deletedAt any
	if workflow.DeletedAt != nil {
		deletedAt = *workflow.DeletedAt
	}

	query := `
		INSERT INTO workflows (id, name, status, owner, organization_id, project_id, revision, document, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			owner = EXCLUDED.owner,
			organization_id = EXCLUDED.organization_id,
			project_id = EXCLUDED.project_id,
			revision = EXCLUDED.revision,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
		WHERE workflows.revision = $12
	`

	result, err := r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		string(workflow.Status),
		workflow.Owner,
		workflow.OrganizationID,
		workflow.ProjectID,
		workflow.Revision,
		document,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		deletedAt,
		priorRevision,
	)
	if err != nil {
		workflow.Revision = priorRevision

		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read save result for workflow %s: %w", workflow.ID, err)
	}

	if affected == 0 {
		workflow.Revision = priorRevision

		return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrConcurrentModification)
	}

	return nil
}

// Delete soft-deletes a workflow; the row is retained for audit.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	workflow, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if workflow == nil {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now

	return r.Save(ctx, workflow)
}

// DetachNodeType clears the catalog reference on every node bound to the
// given key, across all workflows. Returns the number of detached nodes.
func (r *WorkflowRepository) DetachNodeType(ctx context.Context, nodeTypeKey string) (int, error) {
	probe, err := json.Marshal([]map[string]any{{"node_type_key": nodeTypeKey}})
	if err != nil {
		return 0, fmt.Errorf("failed to build node type probe: %w", err)
	}

	query := "SELECT id FROM workflows WHERE deleted_at IS NULL AND document -> 'nodes' @> $1"

	rows, err := r.db.QueryContext(ctx, query, probe)
	if err != nil {
		return 0, fmt.Errorf("failed to query workflows by node type: %w", err)
	}

	ids := make([]string, 0)

	for rows.Next() {
		var id string

		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()

			return 0, fmt.Errorf("failed to scan workflow id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("failed to close rows: %w", err)
	}

	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating workflows: %w", err)
	}

	detached := 0

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, id)
		if err != nil {
			return detached, err
		}

		if workflow == nil {
			continue
		}

		changed := false

		for _, node := range workflow.Nodes {
			if node.NodeTypeKey == nodeTypeKey {
				node.NodeTypeKey = ""
				changed = true
				detached++
			}
		}

		if changed {
			if err := r.Save(ctx, workflow); err != nil {
				return detached, err
			}
		}
	}

	return detached, nil
}
