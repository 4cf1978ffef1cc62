package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/rules"
	"github.com/stageflow/stageflow/pkg/services"
)

type APIHandlers struct {
	workflowService   *services.Workflow
	nodeService       *services.Node
	connectionService *services.Connection
	ruleService       *services.Rule
	catalogService    *services.Catalog
	batchService      *services.Batch
	validator         *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	nodeService *services.Node,
	connectionService *services.Connection,
	ruleService *services.Rule,
	catalogService *services.Catalog,
	batchService *services.Batch,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService:   workflowService,
		nodeService:       nodeService,
		connectionService: connectionService,
		ruleService:       ruleService,
		catalogService:    catalogService,
		batchService:      batchService,
		validator:         validator,
	}
}

// RegisterRoutes mounts every API endpoint on the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	workflows := app.Group("/workflows")
	workflows.Get("/", h.GetWorkflows)
	workflows.Post("/", h.CreateWorkflow)
	workflows.Get("/:id", h.GetWorkflow)
	workflows.Patch("/:id", h.UpdateWorkflow)
	workflows.Delete("/:id", h.DeleteWorkflow)
	workflows.Post("/:id/publish", h.PublishWorkflow)
	workflows.Post("/:id/archive", h.ArchiveWorkflow)
	workflows.Post("/:id/validate", h.ValidateWorkflow)
	workflows.Post("/:id/batch", h.ApplyBatch)

	workflows.Post("/:id/nodes", h.CreateNode)
	workflows.Get("/:id/nodes/:nodeId", h.GetNode)
	workflows.Put("/:id/nodes/:nodeId", h.UpdateNode)
	workflows.Delete("/:id/nodes/:nodeId", h.DeleteNode)

	workflows.Post("/:id/connections", h.CreateConnection)
	workflows.Get("/:id/connections/:connectionId", h.GetConnection)
	workflows.Put("/:id/connections/:connectionId", h.UpdateConnection)
	workflows.Delete("/:id/connections/:connectionId", h.DeleteConnection)
	workflows.Post("/:id/connections/:connectionId/evaluate", h.EvaluateTransition)

	workflows.Post("/:id/connections/:connectionId/rules", h.AttachRule)
	workflows.Put("/:id/connections/:connectionId/rules/:ruleId", h.UpdateRule)
	workflows.Delete("/:id/connections/:connectionId/rules/:ruleId", h.DetachRule)

	catalog := app.Group("/catalog")
	catalog.Get("/", h.GetCatalogEntries)
	catalog.Post("/", h.RegisterCatalogEntry)
	catalog.Get("/:key", h.GetCatalogEntry)
	catalog.Put("/:key", h.UpdateCatalogEntry)
	catalog.Delete("/:key", h.DeleteCatalogEntry)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Stageflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Stageflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := h.parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflowService.ListWorkflows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListWorkflowsRequest parses and validates query parameters for listing workflows.
func (h *APIHandlers) parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.OwnerID = c.Query("owner_id")
	req.OrganizationID = c.Query("organization_id")
	req.ProjectID = c.Query("project_id")

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:           req.Name,
		Description:    req.Description,
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
		Metadata:       req.Metadata,
		Owner:          req.Owner,
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	update := &services.UpdateWorkflowRequest{
		Name:        existing.Name,
		Description: existing.Description,
		Metadata:    req.Metadata,
	}

	if req.Name != nil {
		update.Name = *req.Name
	}

	if req.Description != nil {
		update.Description = *req.Description
	}

	updated, err := h.workflowService.Update(c.Context(), id, update)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.workflowService.Delete(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	published, result, err := h.workflowService.Publish(c.Context(), id)
	if err != nil {
		// Validation failures carry the full issue list for the client.
		if result != nil && !result.Valid {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":      "workflow graph failed validation",
				"validation": result,
			})
		}

		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) ArchiveWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	archived, err := h.workflowService.Archive(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(archived)
}

func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	result, err := h.workflowService.Validate(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ApplyBatch(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req BatchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result, err := h.batchService.Apply(c.Context(), id, req.toService())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CreateNode(c fiber.Ctx) error {
	id := c.Params("id")

	var req CreateNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	node, err := h.nodeService.CreateNode(c.Context(), id, req.toService())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) GetNode(c fiber.Ctx) error {
	node, err := h.nodeService.GetNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) UpdateNode(c fiber.Ctx) error {
	var req UpdateNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	node, err := h.nodeService.UpdateNode(c.Context(), c.Params("id"), c.Params("nodeId"), req.toService())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) DeleteNode(c fiber.Ctx) error {
	err := h.nodeService.DeleteNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateConnection(c fiber.Ctx) error {
	var req CreateConnectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	connection, err := h.connectionService.CreateConnection(c.Context(), c.Params("id"), req.toService())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(connection)
}

func (h *APIHandlers) GetConnection(c fiber.Ctx) error {
	connection, err := h.connectionService.GetConnection(c.Context(), c.Params("id"), c.Params("connectionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(connection)
}

func (h *APIHandlers) UpdateConnection(c fiber.Ctx) error {
	var req UpdateConnectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	connection, err := h.connectionService.UpdateConnection(c.Context(), c.Params("id"), c.Params("connectionId"), req.toService())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(connection)
}

func (h *APIHandlers) DeleteConnection(c fiber.Ctx) error {
	err := h.connectionService.DeleteConnection(c.Context(), c.Params("id"), c.Params("connectionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AttachRule(c fiber.Ctx) error {
	var req AttachRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := h.ruleService.AttachRule(c.Context(), c.Params("id"), c.Params("connectionId"), &services.AttachRuleRequest{
		Type:        req.Type,
		Subtype:     req.Subtype,
		Name:        req.Name,
		Description: req.Description,
		Config:      req.Config,
		Order:       req.Order,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

func (h *APIHandlers) UpdateRule(c fiber.Ctx) error {
	var req UpdateRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := h.ruleService.UpdateRule(c.Context(), c.Params("id"), c.Params("connectionId"), c.Params("ruleId"), &services.UpdateRuleRequest{
		Name:        req.Name,
		Description: req.Description,
		Config:      req.Config,
		Order:       req.Order,
		Active:      req.Active,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) DetachRule(c fiber.Ctx) error {
	err := h.ruleService.DetachRule(c.Context(), c.Params("id"), c.Params("connectionId"), c.Params("ruleId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EvaluateTransition(c fiber.Ctx) error {
	var req EvaluateTransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	tc := &rules.TransitionContext{
		Principal: rules.Principal{
			ID:             req.UserID,
			Roles:          req.Roles,
			OrganizationID: req.OrganizationID,
			ProjectID:      req.ProjectID,
		},
		FieldValues: req.FieldValues,
		Payload:     req.Payload,
		Approvals:   req.Approvals,
	}

	result, err := h.ruleService.EvaluateTransition(c.Context(), c.Params("id"), c.Params("connectionId"), tc)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetCatalogEntries(c fiber.Ctx) error {
	entries, err := h.catalogService.Entries(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries})
}

func (h *APIHandlers) GetCatalogEntry(c fiber.Ctx) error {
	entry, err := h.catalogService.FetchByKey(c.Context(), c.Params("key"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(entry)
}

func (h *APIHandlers) RegisterCatalogEntry(c fiber.Ctx) error {
	var req RegisterCatalogEntryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	entry, err := h.catalogService.Register(c.Context(), &services.RegisterEntryRequest{
		Key:           req.Key,
		Name:          req.Name,
		Category:      req.Category,
		Icon:          req.Icon,
		Color:         req.Color,
		InputSchema:   req.InputSchema,
		OutputSchema:  req.OutputSchema,
		ConfigSchema:  req.ConfigSchema,
		DefaultConfig: req.DefaultConfig,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (h *APIHandlers) UpdateCatalogEntry(c fiber.Ctx) error {
	var req UpdateCatalogEntryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	entry, err := h.catalogService.Update(c.Context(), c.Params("key"), &services.UpdateEntryRequest{
		Name:          req.Name,
		Category:      req.Category,
		Icon:          req.Icon,
		Color:         req.Color,
		InputSchema:   req.InputSchema,
		OutputSchema:  req.OutputSchema,
		ConfigSchema:  req.ConfigSchema,
		DefaultConfig: req.DefaultConfig,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(entry)
}

func (h *APIHandlers) DeleteCatalogEntry(c fiber.Ctx) error {
	detached, err := h.catalogService.Delete(c.Context(), c.Params("key"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"detached_nodes": detached})
}
