package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/services"
)

func TestBatch_AppliesMixedOperations(t *testing.T) {
	f := newFixture(t)
	workflow, nodes := linearWorkflow(t, f)

	result, err := f.batch.Apply(t.Context(), workflow.ID, &services.BatchRequest{
		CreateNodes: []*services.BatchNodeCreate{
			{
				RefID:             "offer",
				CreateNodeRequest: services.CreateNodeRequest{Label: "Offer", Category: string(models.NodeCategoryToDo)},
			},
		},
		UpdateNodes: []*services.BatchNodeUpdate{
			{
				NodeID:            nodes[1].ID,
				UpdateNodeRequest: services.UpdateNodeRequest{Label: "Panel Interview"},
			},
		},
		CreateConnections: []*services.CreateConnectionRequest{
			{
				SourceNodeID: nodes[1].ID,
				TargetNodeID: "offer",
				Type:         string(models.ConnectionTypeSequential),
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.CreatedNodes, 1)
	require.Len(t, result.CreatedConnections, 1)
	require.Len(t, result.UpdatedNodes, 1)

	offer := result.CreatedNodes[0]
	assert.NotEmpty(t, offer.ID)
	assert.Equal(t, offer.ID, result.CreatedConnections[0].TargetNodeID)
	assert.Equal(t, "Panel Interview", result.UpdatedNodes[0].Label)

	current, err := f.workflows.FetchByID(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Panel Interview", current.NodeByID(nodes[1].ID).Label)
	assert.Len(t, current.ActiveNodes(), 4)
	assert.Len(t, current.ActiveConnections(), 3)
}

func TestBatch_ConnectsNodesCreatedInSameBatch(t *testing.T) {
	f := newFixture(t)

	workflow, err := f.workflows.Create(t.Context(), &models.Workflow{Name: "Fresh Pipeline", Owner: "owner-1"})
	require.NoError(t, err)

	// Node creates run before connection creates, and connections may name
	// in-batch nodes by client reference, so one batch builds the whole graph.
	result, err := f.batch.Apply(t.Context(), workflow.ID, &services.BatchRequest{
		CreateNodes: []*services.BatchNodeCreate{
			{RefID: "open", CreateNodeRequest: services.CreateNodeRequest{Label: "Open", Category: string(models.NodeCategoryStart)}},
			{RefID: "triage", CreateNodeRequest: services.CreateNodeRequest{Label: "Triage", Category: string(models.NodeCategoryToDo)}},
			{RefID: "closed", CreateNodeRequest: services.CreateNodeRequest{Label: "Closed", Category: string(models.NodeCategoryDone)}},
		},
		CreateConnections: []*services.CreateConnectionRequest{
			{SourceNodeID: "open", TargetNodeID: "triage", Type: string(models.ConnectionTypeSequential)},
			{SourceNodeID: "triage", TargetNodeID: "closed", Type: string(models.ConnectionTypeSequential)},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.CreatedNodes, 3)
	require.Len(t, result.CreatedConnections, 2)

	for i, node := range result.CreatedNodes {
		assert.NotEmpty(t, node.ID, "node %d has an ID", i)
	}

	open, triage, closed := result.CreatedNodes[0], result.CreatedNodes[1], result.CreatedNodes[2]
	assert.Equal(t, open.ID, result.CreatedConnections[0].SourceNodeID)
	assert.Equal(t, triage.ID, result.CreatedConnections[0].TargetNodeID)
	assert.Equal(t, closed.ID, result.CreatedConnections[1].TargetNodeID)

	validated, err := f.workflows.Validate(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.True(t, validated.Valid)
}

func TestBatch_EchoesDeletedIdentifiers(t *testing.T) {
	f := newFixture(t)
	workflow, nodes := linearWorkflow(t, f)

	current, err := f.workflows.FetchByID(t.Context(), workflow.ID)
	require.NoError(t, err)
	require.Len(t, current.ActiveConnections(), 2)

	// Deleting the middle node cascades to both of its connections; their IDs
	// must surface in the result alongside the node's own.
	result, err := f.batch.Apply(t.Context(), workflow.ID, &services.BatchRequest{
		DeleteNodes: []string{nodes[1].ID},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{nodes[1].ID}, result.DeletedNodeIDs)
	assert.Len(t, result.DeletedConnectionIDs, 2)

	for _, connection := range current.ActiveConnections() {
		assert.Contains(t, result.DeletedConnectionIDs, connection.ID)
	}
}

func TestBatch_AtomicityOnFailure(t *testing.T) {
	f := newFixture(t)
	workflow, nodes := linearWorkflow(t, f)

	before, err := f.workflows.FetchByID(t.Context(), workflow.ID)
	require.NoError(t, err)

	// Two valid creates followed by an invalid connection: the whole batch
	// must be rejected and nothing persisted.
	_, err = f.batch.Apply(t.Context(), workflow.ID, &services.BatchRequest{
		CreateNodes: []*services.BatchNodeCreate{
			{CreateNodeRequest: services.CreateNodeRequest{Label: "Extra A", Category: string(models.NodeCategoryToDo)}},
			{CreateNodeRequest: services.CreateNodeRequest{Label: "Extra B", Category: string(models.NodeCategoryToDo)}},
		},
		CreateConnections: []*services.CreateConnectionRequest{
			{
				SourceNodeID: nodes[2].ID, // terminal node as source
				TargetNodeID: nodes[1].ID,
				Type:         string(models.ConnectionTypeSequential),
			},
		},
	})
	require.Error(t, err)

	var batchErr *services.BatchOperationError

	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "create_connection", batchErr.Kind)
	assert.Equal(t, 0, batchErr.Index)
	assert.ErrorIs(t, batchErr, models.ErrTerminalSource)

	after, err := f.workflows.FetchByID(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.Len(t, after.ActiveNodes(), len(before.ActiveNodes()), "no partial application")
	assert.Len(t, after.ActiveConnections(), len(before.ActiveConnections()))
	assert.Equal(t, before.Revision, after.Revision)
}

func TestBatch_FailsOnMissingEntity(t *testing.T) {
	f := newFixture(t)
	workflow, _ := linearWorkflow(t, f)

	_, err := f.batch.Apply(t.Context(), workflow.ID, &services.BatchRequest{
		DeleteNodes: []string{"ghost"},
	})

	var batchErr *services.BatchOperationError

	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "delete_node", batchErr.Kind)
	assert.ErrorIs(t, batchErr, services.ErrNodeNotFound)
}

func TestBatch_RejectsEmptyBatch(t *testing.T) {
	f := newFixture(t)
	workflow, _ := linearWorkflow(t, f)

	_, err := f.batch.Apply(t.Context(), workflow.ID, &services.BatchRequest{})
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestBatch_RequiresEditableWorkflow(t *testing.T) {
	f := newFixture(t)
	workflow, _ := linearWorkflow(t, f)

	_, _, err := f.workflows.Publish(t.Context(), workflow.ID)
	require.NoError(t, err)

	_, err = f.batch.Apply(t.Context(), workflow.ID, &services.BatchRequest{
		CreateNodes: []*services.BatchNodeCreate{
			{CreateNodeRequest: services.CreateNodeRequest{Label: "Late", Category: string(models.NodeCategoryToDo)}},
		},
	})
	assert.ErrorIs(t, err, services.ErrWorkflowNotEditable)
}
