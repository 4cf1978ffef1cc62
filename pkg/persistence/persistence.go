// Package persistence provides the data storage abstraction for workflows and
// catalog entries. The engine never issues raw queries; it calls these
// interfaces.
package persistence

import (
	"context"

	"github.com/stageflow/stageflow/pkg/models"
)

// ListWorkflowsOptions controls filtering, sorting, and pagination of
// workflow listings.
type ListWorkflowsOptions struct {
	Limit          int
	Offset         int
	OwnerID        string
	OrganizationID string
	ProjectID      string
	Status         *models.WorkflowStatus
	SortBy         string
	SortOrder      string
}

// WorkflowListResult is a page of workflows plus pagination metadata.
type WorkflowListResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// WorkflowRepository stores workflow aggregates. A workflow's graph (its
// nodes, connections, and rules) is saved and loaded as one unit: the
// workflow is the unit of mutual exclusion, and Save performs an optimistic
// version check so concurrent writers are serialized. A save against a stale
// version fails with ErrConcurrentModification and is never retried here.
type WorkflowRepository interface {
	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
	DetachNodeType(ctx context.Context, nodeTypeKey string) (int, error)
}

// CatalogRepository stores node type catalog entries.
type CatalogRepository interface {
	Entries(ctx context.Context) ([]*models.CatalogEntry, error)
	GetByKey(ctx context.Context, key string) (*models.CatalogEntry, error)
	Save(ctx context.Context, entry *models.CatalogEntry) error
	Delete(ctx context.Context, key string) error
}

// Persistence aggregates the repositories of a storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	CatalogRepository() CatalogRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
