package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stageflow/stageflow/pkg/catalog"
	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/services"
)

func TestCatalog_RegisterAndFetch(t *testing.T) {
	f := newFixture(t)
	registerApprovalGate(t, f)

	entry, err := f.catalog.FetchByKey(t.Context(), "approval-gate")
	require.NoError(t, err)
	assert.Equal(t, "Approval Gate", entry.Name)

	entries, err := f.catalog.Entries(t.Context())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCatalog_RegisterDuplicateKey(t *testing.T) {
	f := newFixture(t)
	registerApprovalGate(t, f)

	_, err := f.catalog.Register(t.Context(), &services.RegisterEntryRequest{
		Key:           "approval-gate",
		Name:          "Approval Gate Again",
		Category:      string(models.CatalogCategoryControlFlow),
		InputSchema:   map[string]any{},
		OutputSchema:  map[string]any{},
		ConfigSchema:  map[string]any{},
		DefaultConfig: map[string]any{},
	})
	assert.ErrorIs(t, err, services.ErrCatalogEntryConflict)
}

func TestCatalog_RegisterRejectsNilSchema(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.Register(t.Context(), &services.RegisterEntryRequest{
		Key:          "half-baked",
		Name:         "Half Baked",
		Category:     string(models.CatalogCategoryActions),
		InputSchema:  map[string]any{},
		OutputSchema: map[string]any{},
		ConfigSchema: map[string]any{},
		// DefaultConfig missing
	})
	assert.ErrorIs(t, err, catalog.ErrSchemaNotObject)
}

func TestCatalog_RegisterRejectsBadCategory(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.Register(t.Context(), &services.RegisterEntryRequest{
		Key:      "odd",
		Name:     "Odd",
		Category: "miscellaneous",
	})
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestCatalog_FetchServesFromRegistry(t *testing.T) {
	f := newFixture(t)
	registerApprovalGate(t, f)

	// Removing the stored entry behind the service's back leaves the
	// registry's copy in place, so lookups keep answering without a storage
	// round trip.
	require.NoError(t, f.persistence.CatalogRepository().Delete(t.Context(), "approval-gate"))

	entry, err := f.catalog.FetchByKey(t.Context(), "approval-gate")
	require.NoError(t, err)
	assert.Equal(t, "Approval Gate", entry.Name)

	// Updates refresh the registry's copy.
	fresh := newFixture(t)
	registerApprovalGate(t, fresh)

	_, err = fresh.catalog.Update(t.Context(), "approval-gate", &services.UpdateEntryRequest{
		Name:          "Approval Gate v2",
		Category:      string(models.CatalogCategoryControlFlow),
		InputSchema:   map[string]any{"type": "object"},
		OutputSchema:  map[string]any{"type": "object"},
		ConfigSchema:  map[string]any{"type": "object"},
		DefaultConfig: map[string]any{},
	})
	require.NoError(t, err)

	entry, err = fresh.catalog.FetchByKey(t.Context(), "approval-gate")
	require.NoError(t, err)
	assert.Equal(t, "Approval Gate v2", entry.Name)
}

func TestCatalog_UpdatePreservesKeyAndCreation(t *testing.T) {
	f := newFixture(t)
	registerApprovalGate(t, f)

	updated, err := f.catalog.Update(t.Context(), "approval-gate", &services.UpdateEntryRequest{
		Name:          "Approval Gate v2",
		Category:      string(models.CatalogCategoryControlFlow),
		InputSchema:   map[string]any{"type": "object"},
		OutputSchema:  map[string]any{"type": "object"},
		ConfigSchema:  map[string]any{"type": "object"},
		DefaultConfig: map[string]any{"approver_role": "director"},
	})
	require.NoError(t, err)
	assert.Equal(t, "approval-gate", updated.Key)
	assert.Equal(t, "Approval Gate v2", updated.Name)
	assert.Equal(t, "director", updated.DefaultConfig["approver_role"])

	_, err = f.catalog.Update(t.Context(), "approval-gate", &services.UpdateEntryRequest{
		Name:     "Broken",
		Category: string(models.CatalogCategoryControlFlow),
		// schemas missing
	})
	assert.ErrorIs(t, err, catalog.ErrSchemaNotObject)

	_, err = f.catalog.Update(t.Context(), "never-registered", &services.UpdateEntryRequest{
		Name:     "Ghost",
		Category: string(models.CatalogCategoryControlFlow),
	})
	assert.ErrorIs(t, err, services.ErrCatalogEntryNotFound)
}

func TestCatalog_DeleteDetachesNodes(t *testing.T) {
	f := newFixture(t)
	registerApprovalGate(t, f)
	workflow, _ := linearWorkflow(t, f)

	for _, label := range []string{"Gate A", "Gate B", "Gate C"} {
		_, err := f.nodes.CreateNode(t.Context(), workflow.ID, &services.CreateNodeRequest{
			Label:       label,
			Category:    string(models.NodeCategoryInProgress),
			NodeTypeKey: "approval-gate",
		})
		require.NoError(t, err)
	}

	detached, err := f.catalog.Delete(t.Context(), "approval-gate")
	require.NoError(t, err)
	assert.Equal(t, 3, detached)

	_, err = f.catalog.FetchByKey(t.Context(), "approval-gate")
	assert.ErrorIs(t, err, services.ErrCatalogEntryNotFound)

	// Nodes survive with their config, only the catalog reference is cleared.
	current, err := f.workflows.FetchByID(t.Context(), workflow.ID)
	require.NoError(t, err)

	survivors := 0

	for _, node := range current.ActiveNodes() {
		assert.Empty(t, node.NodeTypeKey)

		if node.Config != nil && node.Config["approver_role"] == "manager" {
			survivors++
		}
	}

	assert.Equal(t, 3, survivors)
}

func TestCatalog_DeleteUnknownKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.Delete(t.Context(), "never-registered")
	assert.ErrorIs(t, err, services.ErrCatalogEntryNotFound)
}
