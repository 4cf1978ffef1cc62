package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/persistence"
)

// CatalogRepository handles catalog-entry database operations.
type CatalogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *sql.DB, logger *slog.Logger) *CatalogRepository {
	return &CatalogRepository{db: db, logger: logger}
}

// Entries returns all catalog entries sorted by key.
func (r *CatalogRepository) Entries(ctx context.Context) ([]*models.CatalogEntry, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT document FROM catalog_entries ORDER BY key ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog entries: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entries := make([]*models.CatalogEntry, 0)

	for rows.Next() {
		var document []byte

		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}

		var entry models.CatalogEntry

		if err := json.Unmarshal(document, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal catalog entry: %w", err)
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating catalog entries: %w", err)
	}

	return entries, nil
}

// GetByKey returns the entry stored under key.
func (r *CatalogRepository) GetByKey(ctx context.Context, key string) (*models.CatalogEntry, error) {
	var document []byte

	err := r.db.QueryRowContext(ctx, "SELECT document FROM catalog_entries WHERE key = $1", key).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrCatalogEntryNotFound, key)
		}

		return nil, fmt.Errorf("failed to fetch catalog entry %s: %w", key, err)
	}

	var entry models.CatalogEntry

	err = json.Unmarshal(document, &entry)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog entry %s: %w", key, err)
	}

	return &entry, nil
}

// Save persists a catalog entry.
func (r *CatalogRepository) Save(ctx context.Context, entry *models.CatalogEntry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	entry.UpdatedAt = now

	document, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog entry %s: %w", entry.Key, err)
	}

	query := `
		INSERT INTO catalog_entries (key, name, category, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.Key,
		entry.Name,
		string(entry.Category),
		document,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save catalog entry %s: %w", entry.Key, err)
	}

	return nil
}

// Delete removes a catalog entry. Detaching referencing nodes is the
// caller's responsibility.
func (r *CatalogRepository) Delete(ctx context.Context, key string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM catalog_entries WHERE key = $1", key)
	if err != nil {
		return fmt.Errorf("failed to delete catalog entry %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result for catalog entry %s: %w", key, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrCatalogEntryNotFound, key)
	}

	return nil
}
