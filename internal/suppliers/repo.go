package suppliers

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
)

// Repository reads supplier configuration rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListActive returns every supplier flagged active, ordered by name.
func (r *Repository) ListActive(ctx context.Context) ([]models.Supplier, error) {
	var rows []models.Supplier
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}

// BuildRegistry registers a rate-limited feed client for every supplier row. JS-rendered
// suppliers are skipped because the feed client cannot serve them.
func BuildRegistry(rows []models.Supplier, fetchTimeout time.Duration) *Registry {
	registry := NewRegistry()
	for _, row := range rows {
		if row.RequiresJS {
			continue
		}
		registry.Register(row.Name, NewLimited(NewFeedClient(row.BaseURL, fetchTimeout), row.RateLimit, fetchTimeout))
	}
	return registry
}

// LoadRegistry reads the active suppliers and builds their registry.
func LoadRegistry(ctx context.Context, repo *Repository, fetchTimeout time.Duration) (*Registry, error) {
	rows, err := repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return BuildRegistry(rows, fetchTimeout), nil
}
