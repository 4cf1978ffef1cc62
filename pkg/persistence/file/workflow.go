package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations. Each workflow
// aggregate (workflow plus its nodes, connections, and rules) is stored as
// one JSON document, so a save is naturally all-or-nothing.
type WorkflowRepository struct {
	root string // File system root for storing workflows
	mu   sync.Mutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

// ListWorkflows returns paginated and filtered workflows with in-memory operations.
func (wr *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
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

	root := os.DirFS(path.Join(wr.root, "workflows"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	filtered := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflowID := file[:len(file)-5] // Remove .json extension

		workflow, err := wr.load(workflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
		}

		if workflow == nil || workflow.DeletedAt != nil {
			continue
		}

		if opts.OwnerID != "" && workflow.Owner != opts.OwnerID {
			continue
		}

		if opts.OrganizationID != "" && workflow.OrganizationID != opts.OrganizationID {
			continue
		}

		if opts.ProjectID != "" && workflow.ProjectID != opts.ProjectID {
			continue
		}

		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, workflow)
	}

	wr.sortWorkflows(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))
	startIdx := opts.Offset
	endIdx := opts.Offset + opts.Limit

	if startIdx >= len(filtered) {
		return &persistence.WorkflowListResult{
			Workflows:   make([]*models.Workflow, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.WorkflowListResult{
		Workflows:   filtered[startIdx:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

func (wr *WorkflowRepository) sortWorkflows(workflows []*models.Workflow, sortBy, sortOrder string) {
	sort.SliceStable(workflows, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "name":
			less = workflows[i].Name < workflows[j].Name
		case "updated_at":
			less = workflows[i].UpdatedAt.Before(workflows[j].UpdatedAt)
		default:
			less = workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// GetByID returns the workflow aggregate, or nil when it does not exist or
// has been soft-deleted.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := wr.load(workflowID)
	if err != nil {
		return nil, err
	}

	if workflow == nil || workflow.DeletedAt != nil {
		return nil, nil
	}

	return workflow, nil
}

func (wr *WorkflowRepository) load(workflowID string) (*models.Workflow, error) {
	filePath := filepath.Clean(path.Join(wr.root, "workflows", workflowID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(body, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", workflowID, err)
	}

	return &workflow, nil
}

// Save persists the workflow aggregate after an optimistic revision check:
// the caller's revision must match the stored one, otherwise the workflow was
// modified concurrently and the caller must re-fetch and retry. The check and
// the write happen under one lock so concurrent saves from the same revision
// cannot both commit.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := os.MkdirAll(path.Join(wr.root, "workflows"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	stored, err := wr.load(workflow.ID)
	if err != nil {
		return err
	}

	if stored != nil && stored.Revision != workflow.Revision {
		return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrConcurrentModification)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now
	workflow.Revision++

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	filePath := path.Join(wr.root, "workflows", workflow.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// Delete soft-deletes a workflow; the document is retained for audit.
func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	workflow, err := wr.load(id)
	if err != nil {
		return err
	}

	if workflow == nil || workflow.DeletedAt != nil {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now

	return wr.Save(ctx, workflow)
}

// DetachNodeType clears the catalog reference on every node bound to the
// given key, across all workflows. Returns the number of detached nodes.
func (wr *WorkflowRepository) DetachNodeType(ctx context.Context, nodeTypeKey string) (int, error) {
	root := os.DirFS(path.Join(wr.root, "workflows"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return 0, fmt.Errorf("failed to list workflow files: %w", err)
	}

	detached := 0

	for _, file := range jsonFiles {
		workflowID := file[:len(file)-5]

		workflow, err := wr.load(workflowID)
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
			if err := wr.Save(ctx, workflow); err != nil {
				return detached, err
			}
		}
	}

	return detached, nil
}
