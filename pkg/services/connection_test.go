package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/services"
)

func TestConnection_CreateEnforcesInvariants(t *testing.T) {
	f := newFixture(t)
	workflow, nodes := linearWorkflow(t, f)

	start, task, done := nodes[0], nodes[1], nodes[2]

	tests := []struct {
		name string
		req  *services.CreateConnectionRequest
		want error
	}{
		{
			name: "self loop",
			req: &services.CreateConnectionRequest{
				SourceNodeID: task.ID,
				TargetNodeID: task.ID,
				Type:         string(models.ConnectionTypeSequential),
			},
			want: models.ErrSelfLoop,
		},
		{
			name: "terminal source",
			req: &services.CreateConnectionRequest{
				SourceNodeID: done.ID,
				TargetNodeID: task.ID,
				Type:         string(models.ConnectionTypeSequential),
			},
			want: models.ErrTerminalSource,
		},
		{
			name: "start as target",
			req: &services.CreateConnectionRequest{
				SourceNodeID: task.ID,
				TargetNodeID: start.ID,
				Type:         string(models.ConnectionTypeSequential),
			},
			want: models.ErrProtectedTarget,
		},
		{
			name: "unknown type",
			req: &services.CreateConnectionRequest{
				SourceNodeID: start.ID,
				TargetNodeID: task.ID,
				Type:         "teleport",
			},
			want: models.ErrInvalidConnectionType,
		},
		{
			name: "conditional without config",
			req: &services.CreateConnectionRequest{
				SourceNodeID: start.ID,
				TargetNodeID: done.ID,
				Type:         string(models.ConnectionTypeConditional),
			},
			want: models.ErrInvalidConditionConfig,
		},
		{
			name: "missing source",
			req: &services.CreateConnectionRequest{
				SourceNodeID: "ghost",
				TargetNodeID: task.ID,
				Type:         string(models.ConnectionTypeSequential),
			},
			want: services.ErrNodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.connections.CreateConnection(t.Context(), workflow.ID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConnection_CreateLoopWithBounds(t *testing.T) {
	f := newFixture(t)
	workflow, nodes := linearWorkflow(t, f)

	connection, err := f.connections.CreateConnection(t.Context(), workflow.ID, &services.CreateConnectionRequest{
		SourceNodeID:    nodes[1].ID,
		TargetNodeID:    nodes[1].ID,
		Type:            string(models.ConnectionTypeLoop),
		ConditionConfig: map[string]any{"max_iterations": 5},
	})
	assert.ErrorIs(t, err, models.ErrSelfLoop)
	assert.Nil(t, connection)

	// Valid loop back from the task requires a second non-terminal node.
	review, err := f.nodes.CreateNode(t.Context(), workflow.ID, &services.CreateNodeRequest{
		Label:    "Review",
		Category: string(models.NodeCategoryToDo),
	})
	require.NoError(t, err)

	_, err = f.connections.CreateConnection(t.Context(), workflow.ID, &services.CreateConnectionRequest{
		SourceNodeID: nodes[1].ID,
		TargetNodeID: review.ID,
		Type:         string(models.ConnectionTypeSequential),
	})
	require.NoError(t, err)

	loop, err := f.connections.CreateConnection(t.Context(), workflow.ID, &services.CreateConnectionRequest{
		SourceNodeID:    review.ID,
		TargetNodeID:    nodes[1].ID,
		Type:            string(models.ConnectionTypeLoop),
		ConditionConfig: map[string]any{"max_iterations": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionTypeLoop, loop.Type)

	_, err = f.connections.CreateConnection(t.Context(), workflow.ID, &services.CreateConnectionRequest{
		SourceNodeID:    review.ID,
		TargetNodeID:    nodes[1].ID,
		Type:            string(models.ConnectionTypeLoop),
		ConditionConfig: map[string]any{"max_iterations": 5000},
	})
	assert.ErrorIs(t, err, models.ErrInvalidLoopConfig)
}

func TestConnection_DefaultNameAndTrigger(t *testing.T) {
	f := newFixture(t)
	workflow, nodes := linearWorkflow(t, f)

	connection, err := f.connections.CreateConnection(t.Context(), workflow.ID, &services.CreateConnectionRequest{
		SourceNodeID: nodes[0].ID,
		TargetNodeID: nodes[2].ID,
		Type:         string(models.ConnectionTypeSequential),
	})
	require.NoError(t, err)

	assert.Equal(t, "Applied → Hired", connection.Name)
	assert.Equal(t, models.TriggerEventManualTransition, connection.TriggerEvent)
}

func TestConnection_UpdateRevalidatesConfig(t *testing.T) {
	f := newFixture(t)
	workflow, nodes := linearWorkflow(t, f)

	connection, err := f.connections.CreateConnection(t.Context(), workflow.ID, &services.CreateConnectionRequest{
		SourceNodeID:    nodes[0].ID,
		TargetNodeID:    nodes[2].ID,
		Type:            string(models.ConnectionTypeConditional),
		ConditionConfig: map[string]any{"field": "score", "operator": "greater_than", "value": 80},
	})
	require.NoError(t, err)

	updated, err := f.connections.UpdateConnection(t.Context(), workflow.ID, connection.ID, &services.UpdateConnectionRequest{
		Name:            "High Score",
		Priority:        2,
		TriggerEvent:    string(models.TriggerEventIssueResolved),
		ConditionConfig: map[string]any{"field": "score", "operator": "greater_than", "value": 90},
	})
	require.NoError(t, err)
	assert.Equal(t, "High Score", updated.Name)
	assert.Equal(t, 2, updated.Priority)
	assert.Equal(t, models.TriggerEventIssueResolved, updated.TriggerEvent)

	_, err = f.connections.UpdateConnection(t.Context(), workflow.ID, connection.ID, &services.UpdateConnectionRequest{
		TriggerEvent: "issue_teleported",
	})
	assert.ErrorIs(t, err, models.ErrInvalidTriggerEvent)
}

func TestConnection_Delete(t *testing.T) {
	f := newFixture(t)
	workflow, nodes := linearWorkflow(t, f)

	connection, err := f.connections.CreateConnection(t.Context(), workflow.ID, &services.CreateConnectionRequest{
		SourceNodeID: nodes[0].ID,
		TargetNodeID: nodes[2].ID,
		Type:         string(models.ConnectionTypeParallel),
	})
	require.NoError(t, err)

	require.NoError(t, f.connections.DeleteConnection(t.Context(), workflow.ID, connection.ID))

	_, err = f.connections.GetConnection(t.Context(), workflow.ID, connection.ID)
	assert.ErrorIs(t, err, services.ErrConnectionNotFound)
}
