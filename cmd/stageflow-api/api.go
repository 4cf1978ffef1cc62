// Package main provides the Stageflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/stageflow/stageflow/pkg/eventbus"
	"github.com/stageflow/stageflow/pkg/persistence"
	"github.com/stageflow/stageflow/pkg/rules"
	"github.com/stageflow/stageflow/pkg/services"
	"github.com/stageflow/stageflow/pkg/validation"
	"github.com/stageflow/stageflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	graphValidator := validation.NewValidator(a.logger)
	engine := rules.NewEngine(a.logger)

	workflowService := services.NewWorkflow(a.persistence, graphValidator, a.eventBus, a.logger)
	nodeService := services.NewNode(a.persistence, a.logger)
	connectionService := services.NewConnection(a.persistence, a.logger)
	ruleService := services.NewRule(a.persistence, engine, a.eventBus, a.logger)
	catalogService := services.NewCatalog(a.persistence, a.eventBus, a.logger)
	batchService := services.NewBatch(a.persistence, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(
		workflowService,
		nodeService,
		connectionService,
		ruleService,
		catalogService,
		batchService,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stageflow API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
