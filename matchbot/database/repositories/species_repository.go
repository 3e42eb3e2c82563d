package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pogotraders/matchbot/matchbot/database/models"
	"github.com/uptrace/bun"
)

type SpeciesRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Species, error)
	GetAll(ctx context.Context) ([]*models.Species, error)
	Upsert(ctx context.Context, species *models.Species) error
}

type speciesRepository struct {
	db *bun.DB
}

func NewSpeciesRepository(db *bun.DB) SpeciesRepository {
	return &speciesRepository{db: db}
}

func (r *speciesRepository) GetByID(ctx context.Context, id int64) (*models.Species, error) {
	species := new(models.Species)
	err := r.db.NewSelect().
		Model(species).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get species: %w", err)
	}
	return species, nil
}

func (r *speciesRepository) GetAll(ctx context.Context) ([]*models.Species, error) {
	var species []*models.Species
	err := r.db.NewSelect().
		Model(&species).
		Order("dex_number ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list species: %w", err)
	}
	return species, nil
}

func (r *speciesRepository) Upsert(ctx context.Context, species *models.Species) error {
	_, err := r.db.NewInsert().
		Model(species).
		On("CONFLICT (id) DO UPDATE").
		Set("dex_number = EXCLUDED.dex_number").
		Set("name = EXCLUDED.name").
		Set("form = EXCLUDED.form").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert species: %w", err)
	}
	return nil
}
