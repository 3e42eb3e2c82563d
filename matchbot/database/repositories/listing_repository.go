package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pogotraders/matchbot/matchbot/database/models"
	"github.com/uptrace/bun"
)

type ListingRepository interface {
	Create(ctx context.Context, listing *models.Listing) error
	GetByID(ctx context.Context, id int64) (*models.Listing, error)
	GetUserListings(ctx context.Context, userID snowflake.ID, status models.ListingStatus) ([]*models.Listing, error)
	FindCandidates(ctx context.Context, direction models.ListingDirection, speciesID int64, fp models.Fingerprint, excludeOwnerID snowflake.ID) ([]*models.Listing, error)
	SetStatus(ctx context.Context, id int64, status models.ListingStatus) error
	DecrementOrDelete(ctx context.Context, id int64) (int, error)
	RevertToActive(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	SetMessageRef(ctx context.Context, id int64, messageID snowflake.ID) error
}

type listingRepository struct {
	db *bun.DB
}

func NewListingRepository(db *bun.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) Create(ctx context.Context, listing *models.Listing) error {
	if listing.Count <= 0 {
		listing.Count = 1
	}
	listing.Status = models.ListingActive
	listing.CreatedAt = time.Now()

	_, err := r.db.NewInsert().Model(listing).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

func (r *listingRepository) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	listing := new(models.Listing)
	err := r.db.NewSelect().
		Model(listing).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return listing, nil
}

func (r *listingRepository) GetUserListings(ctx context.Context, userID snowflake.ID, status models.ListingStatus) ([]*models.Listing, error) {
	var listings []*models.Listing
	q := r.db.NewSelect().
		Model(&listings).
		Where("owner_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at ASC", "id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user listings: %w", err)
	}
	return listings, nil
}

// FindCandidates returns every ACTIVE listing that could pair with the given
// direction, species and attribute set, oldest first. The requester's own
// listings are excluded so a user never matches themselves, across all of
// their accounts. Ordering is stable: created_at with id as tie-break.
func (r *listingRepository) FindCandidates(ctx context.Context, direction models.ListingDirection, speciesID int64, fp models.Fingerprint, excludeOwnerID snowflake.ID) ([]*models.Listing, error) {
	var listings []*models.Listing
	err := r.db.NewSelect().
		Model(&listings).
		Where("direction = ?", direction).
		Where("species_id = ?", speciesID).
		Where("status = ?", models.ListingActive).
		Where("owner_id != ?", excludeOwnerID).
		Where("is_shiny = ?", fp.Shiny).
		Where("is_purified = ?", fp.Purified).
		Where("is_dynamax = ?", fp.Dynamax).
		Where("is_gigantamax = ?", fp.Gigantamax).
		Where("is_background = ?", fp.Background).
		Where("is_adventure_effect = ?", fp.AdventureEffect).
		Where("is_mirror = ?", fp.Mirror).
		Order("created_at ASC", "id ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	return listings, nil
}

func (r *listingRepository) SetStatus(ctx context.Context, id int64, status models.ListingStatus) error {
	res, err := r.db.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("status = ?", status).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update listing status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *listingRepository) DecrementOrDelete(ctx context.Context, id int64) (int, error) {
	var remaining int
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		remaining, err = decrementOrDelete(ctx, tx, id)
		return err
	})
	return remaining, err
}

func (r *listingRepository) RevertToActive(ctx context.Context, id int64) error {
	return revertToActive(ctx, r.db, id)
}

func (r *listingRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.NewDelete().
		Model((*models.Listing)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	return nil
}

func (r *listingRepository) SetMessageRef(ctx context.Context, id int64, messageID snowflake.ID) error {
	_, err := r.db.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("message_id = ?", messageID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set listing message ref: %w", err)
	}
	return nil
}

// decrementOrDelete takes one unit off a listing inside the caller's
// transaction. Reaching zero deletes the row outright; a remainder goes
// straight back to ACTIVE so the remaining stock is matchable again.
func decrementOrDelete(ctx context.Context, idb bun.IDB, id int64) (int, error) {
	listing := new(models.Listing)
	err := idb.NewSelect().
		Model(listing).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to load listing for decrement: %w", err)
	}

	remaining := listing.Count - 1
	if remaining <= 0 {
		_, err = idb.NewDelete().
			Model((*models.Listing)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to delete exhausted listing: %w", err)
		}
		return 0, nil
	}

	_, err = idb.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("count = ?", remaining).
		Set("status = ?", models.ListingActive).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to decrement listing: %w", err)
	}
	return remaining, nil
}

func revertToActive(ctx context.Context, idb bun.IDB, id int64) error {
	_, err := idb.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("status = ?", models.ListingActive).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to revert listing to active: %w", err)
	}
	return nil
}

// claimForMatch flips one listing from ACTIVE to PENDING iff it is still
// ACTIVE. A zero row count means a concurrent match got there first.
func claimForMatch(ctx context.Context, idb bun.IDB, id int64) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("status = ?", models.ListingPending).
		Where("id = ? AND status = ?", id, models.ListingActive).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim listing %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return affected == 1, nil
}
