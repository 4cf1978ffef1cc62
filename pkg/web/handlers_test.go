package web_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence/file"
	"github.com/stageflow/stageflow/pkg/rules"
	"github.com/stageflow/stageflow/pkg/services"
	"github.com/stageflow/stageflow/pkg/validation"
	"github.com/stageflow/stageflow/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *services.Workflow, *services.Node, *services.Connection) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persistence := file.NewPersistence(t.TempDir())

	workflowService := services.NewWorkflow(persistence, validation.NewValidator(logger), nil, logger)
	nodeService := services.NewNode(persistence, logger)
	connectionService := services.NewConnection(persistence, logger)
	ruleService := services.NewRule(persistence, rules.NewEngine(logger), nil, logger)
	catalogService := services.NewCatalog(persistence, nil, logger)
	batchService := services.NewBatch(persistence, nil, logger)

	handlers := web.NewAPIHandlers(
		workflowService,
		nodeService,
		connectionService,
		ruleService,
		catalogService,
		batchService,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return app, workflowService, nodeService, connectionService
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) *http.Response {
	t.Helper()

	var body []byte

	if payload != nil {
		if str, ok := payload.(string); ok {
			body = []byte(str)
		} else {
			var err error

			body, err = json.Marshal(payload)
			require.NoError(t, err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &out))

	return out
}

// seedLinearWorkflow builds a draft workflow with a valid start -> task ->
// done graph through the HTTP surface, mirroring how an editor client would.
func seedLinearWorkflow(t *testing.T, app *fiber.App) (*models.Workflow, []*models.Node, *models.Connection) {
	t.Helper()

	resp := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name:  "Hiring Pipeline",
		Owner: "recruiting",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	workflow := decodeBody[*models.Workflow](t, resp)

	nodes := make([]*models.Node, 0, 3)

	for _, def := range []struct {
		label    string
		category models.NodeCategory
	}{
		{"Applied", models.NodeCategoryStart},
		{"Interview", models.NodeCategoryInProgress},
		{"Hired", models.NodeCategoryDone},
	} {
		resp := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/nodes", web.CreateNodeRequest{
			Label:    def.label,
			Category: string(def.category),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		nodes = append(nodes, decodeBody[*models.Node](t, resp))
	}

	resp = doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/connections", web.CreateConnectionRequest{
		SourceNodeID: nodes[0].ID,
		TargetNodeID: nodes[1].ID,
		Type:         string(models.ConnectionTypeSequential),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/connections", web.CreateConnectionRequest{
		SourceNodeID: nodes[1].ID,
		TargetNodeID: nodes[2].ID,
		Type:         string(models.ConnectionTypeSequential),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	connection := decodeBody[*models.Connection](t, resp)

	return workflow, nodes, connection
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name: "successful creation",
			requestBody: web.CreateWorkflowRequest{
				Name:        "Test Workflow",
				Description: "Test Description",
				Owner:       "test-user",
				Metadata:    map[string]any{"category": "test"},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "validation error - missing name",
			requestBody: web.CreateWorkflowRequest{
				Owner: "test-user",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - name too short",
			requestBody: web.CreateWorkflowRequest{
				Name:  "Te",
				Owner: "test-user",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - missing owner",
			requestBody: web.CreateWorkflowRequest{
				Name: "Test Workflow",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _, _, _ := setupTestApp(t)

			resp := doJSON(t, app, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				workflow := decodeBody[*models.Workflow](t, resp)
				assert.NotEmpty(t, workflow.ID)
				assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
				assert.Equal(t, int64(0), workflow.Version)
				assert.Empty(t, workflow.Nodes)
				assert.Empty(t, workflow.Connections)
			}
		})
	}
}

func TestAPIHandlers_GetWorkflow(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)
	workflow, _, _ := seedLinearWorkflow(t, app)

	resp := doJSON(t, app, http.MethodGet, "/workflows/"+workflow.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fetched := decodeBody[*models.Workflow](t, resp)
	assert.Equal(t, workflow.ID, fetched.ID)
	assert.Len(t, fetched.Nodes, 3)
	assert.Len(t, fetched.Connections, 2)

	resp = doJSON(t, app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_UpdateWorkflow_Partial(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)
	workflow, _, _ := seedLinearWorkflow(t, app)

	newName := "Renamed Pipeline"

	resp := doJSON(t, app, http.MethodPatch, "/workflows/"+workflow.ID, web.UpdateWorkflowRequest{
		Name: &newName,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeBody[*models.Workflow](t, resp)
	assert.Equal(t, "Renamed Pipeline", updated.Name)
	assert.Equal(t, workflow.Description, updated.Description)
}

func TestAPIHandlers_DeleteWorkflow(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)
	workflow, _, _ := seedLinearWorkflow(t, app)

	resp := doJSON(t, app, http.MethodDelete, "/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_ListWorkflows(t *testing.T) {
	t.Parallel()

	app, workflowService, _, _ := setupTestApp(t)

	for i := range 3 {
		_, err := workflowService.Create(t.Context(), &models.Workflow{
			Name:  fmt.Sprintf("Pipeline %d", i),
			Owner: "team-a",
		})
		require.NoError(t, err)
	}

	resp := doJSON(t, app, http.MethodGet, "/workflows?limit=2&owner_id=team-a", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	page := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(3), page["total_count"])
	assert.Equal(t, true, page["has_next_page"])

	resp = doJSON(t, app, http.MethodGet, "/workflows?limit=nope", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/workflows?sort_by=owner", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_PublishWorkflow(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)
	workflow, _, _ := seedLinearWorkflow(t, app)

	resp := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	published := decodeBody[*models.Workflow](t, resp)
	assert.Equal(t, models.WorkflowStatusPublished, published.Status)
	assert.Equal(t, int64(1), published.Version)

	// A published workflow is frozen for structural edits.
	resp = doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/nodes", web.CreateNodeRequest{
		Label:    "Late Node",
		Category: string(models.NodeCategoryToDo),
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// And archiving is the only remaining lifecycle move.
	resp = doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	archived := decodeBody[*models.Workflow](t, resp)
	assert.Equal(t, models.WorkflowStatusArchived, archived.Status)
}

func TestAPIHandlers_PublishInvalidGraph(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name:  "Empty Pipeline",
		Owner: "team-a",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	workflow := decodeBody[*models.Workflow](t, resp)

	resp = doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/publish", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	payload := decodeBody[map[string]any](t, resp)
	assert.Contains(t, payload, "validation")
}

func TestAPIHandlers_ValidateWorkflow(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)
	workflow, _, _ := seedLinearWorkflow(t, app)

	resp := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/validate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[*validation.Result](t, resp)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestAPIHandlers_NodeLifecycle(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)
	workflow, nodes, _ := seedLinearWorkflow(t, app)

	resp := doJSON(t, app, http.MethodGet, "/workflows/"+workflow.ID+"/nodes/"+nodes[1].ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPut, "/workflows/"+workflow.ID+"/nodes/"+nodes[1].ID, web.UpdateNodeRequest{
		Label: "Panel Interview",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeBody[*models.Node](t, resp)
	assert.Equal(t, "Panel Interview", updated.Label)
	assert.Equal(t, models.NodeCategoryInProgress, updated.Category)

	resp = doJSON(t, app, http.MethodDelete, "/workflows/"+workflow.ID+"/nodes/"+nodes[1].ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/workflows/"+workflow.ID+"/nodes/"+nodes[1].ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_CreateNodeRejectsBadCategory(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)
	workflow, _, _ := seedLinearWorkflow(t, app)

	resp := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/nodes", web.CreateNodeRequest{
		Label:    "Odd",
		Category: "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_ConnectionLifecycle(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)
	workflow, nodes, connection := seedLinearWorkflow(t, app)

	resp := doJSON(t, app, http.MethodGet, "/workflows/"+workflow.ID+"/connections/"+connection.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPut, "/workflows/"+workflow.ID+"/connections/"+connection.ID, web.UpdateConnectionRequest{
		Name:         "Final Offer",
		TriggerEvent: string(models.TriggerEventManualTransition),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeBody[*models.Connection](t, resp)
	assert.Equal(t, "Final Offer", updated.Name)

	// Structural invariants surface as 400s.
	resp = doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/connections", web.CreateConnectionRequest{
		SourceNodeID: nodes[2].ID,
		TargetNodeID: nodes[0].ID,
		Type:         string(models.ConnectionTypeSequential),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodDelete, "/workflows/"+workflow.ID+"/connections/"+connection.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPIHandlers_RulesAndEvaluation(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)
	workflow, _, connection := seedLinearWorkflow(t, app)

	resp := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/connections/"+connection.ID+"/rules", web.AttachRuleRequest{
		Type:        string(models.RuleTypeRestrictTransition),
		Subtype:     string(models.RuleSubtypeRestrictByUserRole),
		Description: "hiring managers only",
		Config:      map[string]any{"allowed_roles": []string{"hiring-manager"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	rule := decodeBody[*models.Rule](t, resp)
	require.NotEmpty(t, rule.ID)

	resp = doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/connections/"+connection.ID+"/evaluate", web.EvaluateTransitionRequest{
		UserID: "u1",
		Roles:  []string{"recruiter"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	denied := decodeBody[*rules.Result](t, resp)
	assert.False(t, denied.Allowed)
	assert.Equal(t, "hiring managers only", denied.RestrictionReason)

	resp = doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/connections/"+connection.ID+"/evaluate", web.EvaluateTransitionRequest{
		UserID: "u2",
		Roles:  []string{"hiring-manager"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	allowed := decodeBody[*rules.Result](t, resp)
	assert.True(t, allowed.Allowed)

	resp = doJSON(t, app, http.MethodPut, "/workflows/"+workflow.ID+"/connections/"+connection.ID+"/rules/"+rule.ID, web.UpdateRuleRequest{
		Config: map[string]any{"allowed_roles": []string{"director"}},
		Active: false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodDelete, "/workflows/"+workflow.ID+"/connections/"+connection.ID+"/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPIHandlers_Catalog(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)

	entryReq := web.RegisterCatalogEntryRequest{
		Key:      "approval-gate",
		Name:     "Approval Gate",
		Category: string(models.CatalogCategoryControlFlow),
		InputSchema: map[string]any{
			"type": "object",
		},
		OutputSchema: map[string]any{
			"type": "object",
		},
		ConfigSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"approver_role": map[string]any{"type": "string"}},
		},
		DefaultConfig: map[string]any{"approver_role": "manager"},
	}

	resp := doJSON(t, app, http.MethodPost, "/catalog", entryReq)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/catalog", entryReq)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/catalog/approval-gate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entry := decodeBody[*models.CatalogEntry](t, resp)
	assert.Equal(t, "Approval Gate", entry.Name)

	resp = doJSON(t, app, http.MethodGet, "/catalog", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPut, "/catalog/approval-gate", web.UpdateCatalogEntryRequest{
		Name:          "Approval Gate v2",
		Category:      string(models.CatalogCategoryControlFlow),
		InputSchema:   map[string]any{"type": "object"},
		OutputSchema:  map[string]any{"type": "object"},
		ConfigSchema:  map[string]any{"type": "object"},
		DefaultConfig: map[string]any{"approver_role": "director"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeBody[*models.CatalogEntry](t, resp)
	assert.Equal(t, "Approval Gate v2", updated.Name)

	// Bind a node so deletion has something to detach.
	workflow, _, _ := seedLinearWorkflow(t, app)
	resp = doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/nodes", web.CreateNodeRequest{
		Label:       "Gate",
		Category:    string(models.NodeCategoryInProgress),
		NodeTypeKey: "approval-gate",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, http.MethodDelete, "/catalog/approval-gate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	detachResult := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(1), detachResult["detached_nodes"])

	resp = doJSON(t, app, http.MethodGet, "/catalog/approval-gate", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_Batch(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)
	workflow, nodes, _ := seedLinearWorkflow(t, app)

	resp := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/batch", web.BatchRequest{
		CreateNodes: []*web.BatchNodeCreate{
			{
				RefID:             "offer",
				CreateNodeRequest: web.CreateNodeRequest{Label: "Offer", Category: string(models.NodeCategoryToDo)},
			},
		},
		UpdateNodes: []*web.BatchNodeUpdate{
			{
				NodeID:            nodes[1].ID,
				UpdateNodeRequest: web.UpdateNodeRequest{Label: "Panel Interview"},
			},
		},
		CreateConnections: []*web.CreateConnectionRequest{
			{
				SourceNodeID: nodes[1].ID,
				TargetNodeID: "offer",
				Type:         string(models.ConnectionTypeSequential),
			},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[*services.BatchResult](t, resp)
	require.Len(t, result.CreatedNodes, 1)
	require.Len(t, result.CreatedConnections, 1)
	require.Len(t, result.UpdatedNodes, 1)
	assert.NotEmpty(t, result.CreatedNodes[0].ID)
	assert.Equal(t, result.CreatedNodes[0].ID, result.CreatedConnections[0].TargetNodeID)
	assert.Equal(t, "Panel Interview", result.UpdatedNodes[0].Label)

	// An invalid operation anywhere rejects the whole batch.
	resp = doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/batch", web.BatchRequest{
		DeleteNodes: []string{"ghost"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/batch", web.BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
