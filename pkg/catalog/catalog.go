// Package catalog manages reusable node templates and validates node
// configurations against their template's config schema.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stageflow/stageflow/pkg/models"
)

var (
	// ErrDuplicateKey indicates a catalog entry key that is already registered.
	ErrDuplicateKey = errors.New("catalog entry key already registered")

	// ErrSchemaNotObject indicates a schema/config attribute that is not a structured object.
	ErrSchemaNotObject = errors.New("catalog schemas must be structured objects")

	// ErrEntryNotFound indicates a lookup for an unregistered key.
	ErrEntryNotFound = errors.New("catalog entry not found")
)

// Catalog is a map-backed registry of node templates. Lookup by key is O(1).
type Catalog struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]*models.CatalogEntry
}

// NewCatalog creates an empty catalog.
func NewCatalog(logger *slog.Logger) *Catalog {
	return &Catalog{
		logger:  logger,
		entries: make(map[string]*models.CatalogEntry),
	}
}

// Register adds an entry to the catalog. All four JSON-like attributes must be
// structured objects; this fails at save time, not at use time.
func (c *Catalog) Register(entry *models.CatalogEntry) error {
	for attribute, object := range entry.SchemaObjects() {
		if object == nil {
			return fmt.Errorf("%w: %s", ErrSchemaNotObject, attribute)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[entry.Key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, entry.Key)
	}

	c.entries[entry.Key] = entry
	c.logger.Debug("Registered catalog entry", "key", entry.Key, "category", entry.Category)

	return nil
}

// Get returns the entry registered under key.
func (c *Catalog) Get(key string) (*models.CatalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, key)
	}

	return entry, nil
}

// Deregister removes the entry registered under key. Detaching nodes that
// reference the entry is the caller's responsibility.
func (c *Catalog) Deregister(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, key)
	}

	delete(c.entries, key)

	return nil
}

// Entries returns all registered entries.
func (c *Catalog) Entries() []*models.CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]*models.CatalogEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}

	return entries
}

// ValidateNodeConfig checks a proposed node configuration against the entry's
// config schema: required properties present, declared primitive types
// matched, enum values respected. Returns the list of violations, empty when
// the configuration is valid.
func ValidateNodeConfig(entry *models.CatalogEntry, config map[string]any) ([]string, error) {
	if len(entry.ConfigSchema) == 0 {
		return nil, nil
	}

	schemaLoader := gojsonschema.NewGoLoader(entry.ConfigSchema)
	configLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, configLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to validate config against schema %q: %w", entry.Key, err)
	}

	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}

	return violations, nil
}
