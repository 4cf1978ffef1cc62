package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/catalog"
	"github.com/stageflow/stageflow/pkg/eventbus"
	"github.com/stageflow/stageflow/pkg/events"
	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence"
)

// RegisterEntryRequest represents the request to register a node type.
type RegisterEntryRequest struct {
	Key           string
	Name          string
	Category      string
	Icon          string
	Color         string
	InputSchema   map[string]any
	OutputSchema  map[string]any
	ConfigSchema  map[string]any
	DefaultConfig map[string]any
}

// Catalog handles node type catalog operations. A registry in front of the
// repository serves key lookups without a storage round trip; the repository
// stays the source of truth and the registry is refreshed on every write.
type Catalog struct {
	persistence persistence.Persistence
	registry    *catalog.Catalog
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewCatalog creates a new catalog service.
func NewCatalog(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Catalog {
	return &Catalog{
		persistence: persistence,
		registry:    catalog.NewCatalog(logger),
		publisher:   publisher,
		logger:      logger,
	}
}

// Entries returns all registered catalog entries.
func (c *Catalog) Entries(ctx context.Context) ([]*models.CatalogEntry, error) {
	return c.persistence.CatalogRepository().Entries(ctx)
}

// FetchByKey returns the catalog entry registered under key. Lookups hit the
// in-process registry first and fall back to the repository, populating the
// registry on the way out.
func (c *Catalog) FetchByKey(ctx context.Context, key string) (*models.CatalogEntry, error) {
	if entry, err := c.registry.Get(key); err == nil {
		return entry, nil
	}

	entry, err := c.persistence.CatalogRepository().GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	c.cache(entry)

	return entry, nil
}

// cache replaces the registry's copy of the entry.
func (c *Catalog) cache(entry *models.CatalogEntry) {
	_ = c.registry.Deregister(entry.Key)

	if err := c.registry.Register(entry); err != nil {
		c.logger.Warn("Failed to cache catalog entry", "entry_key", entry.Key, "error", err)
	}
}

// Register adds a new node type to the catalog. Keys are unique; all four
// schema attributes must be structured objects.
func (c *Catalog) Register(ctx context.Context, req *RegisterEntryRequest) (*models.CatalogEntry, error) {
	if strings.TrimSpace(req.Key) == "" {
		return nil, NewValidationError("Register", "INVALID_KEY", "catalog entry key cannot be empty", ErrInvalidRequest)
	}

	category := models.CatalogCategory(req.Category)
	if !category.IsValid() {
		return nil, NewValidationError(
			"Register",
			"INVALID_CATEGORY",
			fmt.Sprintf("invalid catalog category '%s'", req.Category),
			ErrInvalidRequest,
		)
	}

	existing, err := c.persistence.CatalogRepository().GetByKey(ctx, req.Key)
	if err != nil && !errors.Is(err, persistence.ErrCatalogEntryNotFound) {
		return nil, fmt.Errorf("failed to check catalog key: %w", err)
	}

	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrCatalogEntryConflict, req.Key)
	}

	entry := &models.CatalogEntry{
		Key:           req.Key,
		Name:          req.Name,
		Category:      category,
		Icon:          req.Icon,
		Color:         req.Color,
		InputSchema:   req.InputSchema,
		OutputSchema:  req.OutputSchema,
		ConfigSchema:  req.ConfigSchema,
		DefaultConfig: req.DefaultConfig,
	}

	for name, schema := range entry.SchemaObjects() {
		if schema == nil {
			return nil, NewValidationError(
				"Register",
				"SCHEMA_NOT_OBJECT",
				fmt.Sprintf("%s must be a structured object", name),
				catalog.ErrSchemaNotObject,
			)
		}
	}

	err = c.persistence.CatalogRepository().Save(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to register catalog entry: %w", err)
	}

	c.cache(entry)

	c.emit(ctx, events.CatalogEntryRegistered{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.CatalogEntryRegisteredEvent,
			Timestamp: nowUTC(),
		},
		Key:      entry.Key,
		Category: entry.Category,
	})

	return entry, nil
}

// UpdateEntryRequest represents the request to update a registered node type.
// The key is immutable.
type UpdateEntryRequest struct {
	Name          string
	Category      string
	Icon          string
	Color         string
	InputSchema   map[string]any
	OutputSchema  map[string]any
	ConfigSchema  map[string]any
	DefaultConfig map[string]any
}

// Update replaces the attributes of a registered node type. Already bound
// nodes are not revalidated; the new schema applies from the next binding.
func (c *Catalog) Update(ctx context.Context, key string, req *UpdateEntryRequest) (*models.CatalogEntry, error) {
	entry, err := c.persistence.CatalogRepository().GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	category := models.CatalogCategory(req.Category)
	if !category.IsValid() {
		return nil, NewValidationError(
			"Update",
			"INVALID_CATEGORY",
			fmt.Sprintf("invalid catalog category '%s'", req.Category),
			ErrInvalidRequest,
		)
	}

	entry.Name = req.Name
	entry.Category = category
	entry.Icon = req.Icon
	entry.Color = req.Color
	entry.InputSchema = req.InputSchema
	entry.OutputSchema = req.OutputSchema
	entry.ConfigSchema = req.ConfigSchema
	entry.DefaultConfig = req.DefaultConfig

	for name, schema := range entry.SchemaObjects() {
		if schema == nil {
			return nil, NewValidationError(
				"Update",
				"SCHEMA_NOT_OBJECT",
				fmt.Sprintf("%s must be a structured object", name),
				catalog.ErrSchemaNotObject,
			)
		}
	}

	err = c.persistence.CatalogRepository().Save(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to update catalog entry: %w", err)
	}

	c.cache(entry)

	return entry, nil
}

// Delete removes a node type from the catalog. Nodes bound to the key are
// detached first: they survive with their configuration but lose the catalog
// reference. Returns the number of detached nodes.
func (c *Catalog) Delete(ctx context.Context, key string) (int, error) {
	_, err := c.persistence.CatalogRepository().GetByKey(ctx, key)
	if err != nil {
		return 0, err
	}

	detached, err := c.persistence.WorkflowRepository().DetachNodeType(ctx, key)
	if err != nil {
		return detached, fmt.Errorf("failed to detach nodes from %s: %w", key, err)
	}

	err = c.persistence.CatalogRepository().Delete(ctx, key)
	if err != nil {
		return detached, fmt.Errorf("failed to delete catalog entry: %w", err)
	}

	_ = c.registry.Deregister(key)

	c.logger.InfoContext(ctx, "Catalog entry deleted",
		"entry_key", key,
		"detached_nodes", detached,
	)

	c.emit(ctx, events.CatalogEntryDeleted{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.CatalogEntryDeletedEvent,
			Timestamp: nowUTC(),
		},
		Key:           key,
		DetachedNodes: detached,
	})

	return detached, nil
}

func (c *Catalog) emit(ctx context.Context, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	err := c.publisher.Publish(ctx, string(event.GetType()), event)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"error", err,
		)
	}
}
