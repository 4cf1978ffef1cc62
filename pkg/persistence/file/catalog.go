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
	"time"

	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence"
)

// CatalogRepository stores node type catalog entries as one JSON file per key.
type CatalogRepository struct {
	root string
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(root string) *CatalogRepository {
	return &CatalogRepository{root: root}
}

// Entries returns all catalog entries sorted by key.
func (cr *CatalogRepository) Entries(_ context.Context) ([]*models.CatalogEntry, error) {
	root := os.DirFS(path.Join(cr.root, "catalog"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog files: %w", err)
	}

	entries := make([]*models.CatalogEntry, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		entry, err := cr.load(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if entry != nil {
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	return entries, nil
}

// GetByKey returns the entry stored under key.
func (cr *CatalogRepository) GetByKey(_ context.Context, key string) (*models.CatalogEntry, error) {
	entry, err := cr.load(key)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		return nil, fmt.Errorf("%w: %s", persistence.ErrCatalogEntryNotFound, key)
	}

	return entry, nil
}

func (cr *CatalogRepository) load(key string) (*models.CatalogEntry, error) {
	filePath := filepath.Clean(path.Join(cr.root, "catalog", key+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch catalog entry %s: %w", key, err)
	}

	var entry models.CatalogEntry

	err = json.Unmarshal(body, &entry)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog entry %s: %w", key, err)
	}

	return &entry, nil
}

// Save persists a catalog entry.
func (cr *CatalogRepository) Save(_ context.Context, entry *models.CatalogEntry) error {
	err := os.MkdirAll(path.Join(cr.root, "catalog"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}

	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	entry.UpdatedAt = now

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog entry %s: %w", entry.Key, err)
	}

	return os.WriteFile(path.Join(cr.root, "catalog", entry.Key+".json"), data, 0600)
}

// Delete removes a catalog entry. Detaching referencing nodes is the
// caller's responsibility.
func (cr *CatalogRepository) Delete(_ context.Context, key string) error {
	err := os.Remove(path.Join(cr.root, "catalog", key+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", persistence.ErrCatalogEntryNotFound, key)
		}

		return fmt.Errorf("failed to delete catalog entry %s: %w", key, err)
	}

	return nil
}
