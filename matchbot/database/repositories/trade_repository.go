package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pogotraders/matchbot/matchbot/database/models"
	"github.com/uptrace/bun"
)

// CloseReport describes the state of both sides after a trade was closed,
// so the caller can update the public display and tear the space down.
type CloseReport struct {
	Trade      *models.Trade
	ListingA   *models.Listing
	ListingB   *models.Listing
	RemainingA int
	RemainingB int
	Completed  bool
}

type TradeRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Trade, error)
	GetByChannel(ctx context.Context, channelID snowflake.ID) (*models.Trade, error)
	HasBeenPaired(ctx context.Context, listingA, listingB int64) (bool, error)
	BindPair(ctx context.Context, newListingID, candidateID int64) (*models.Trade, error)
	CompleteTrade(ctx context.Context, tradeID int64, actorID snowflake.ID) (*CloseReport, error)
	CancelTrade(ctx context.Context, tradeID int64, actorID snowflake.ID, force bool) (*CloseReport, error)
	SetChannel(ctx context.Context, tradeID int64, channelID snowflake.ID) error
	GetExpired(ctx context.Context, olderThan time.Duration) ([]*models.Trade, error)
}

type tradeRepository struct {
	db *bun.DB
}

func NewTradeRepository(db *bun.DB) TradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) GetByID(ctx context.Context, id int64) (*models.Trade, error) {
	trade := new(models.Trade)
	err := r.db.NewSelect().
		Model(trade).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

func (r *tradeRepository) GetByChannel(ctx context.Context, channelID snowflake.ID) (*models.Trade, error) {
	trade := new(models.Trade)
	err := r.db.NewSelect().
		Model(trade).
		Where("channel_id = ?", channelID).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trade by channel: %w", err)
	}
	return trade, nil
}

// HasBeenPaired reports whether any trade row, open or closed, ever bound
// these two listings in either order. Closed trades count: a cancelled pair
// is never offered to each other again.
func (r *tradeRepository) HasBeenPaired(ctx context.Context, listingA, listingB int64) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.Trade)(nil)).
		Where("(listing_a_id = ? AND listing_b_id = ?) OR (listing_a_id = ? AND listing_b_id = ?)",
			listingA, listingB, listingB, listingA).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check trade history: %w", err)
	}
	return exists, nil
}

// BindPair locks both listings and records the trade in a single
// transaction: either both flip to PENDING and a trade row exists, or
// nothing happened. A candidate that lost its claim to a concurrent match
// surfaces as ErrCandidateUnavailable so the caller can move on to the next
// one; a lost claim on the new listing itself is ErrListingUnavailable.
func (r *tradeRepository) BindPair(ctx context.Context, newListingID, candidateID int64) (*models.Trade, error) {
	trade := &models.Trade{
		ListingAID: newListingID,
		ListingBID: candidateID,
		Status:     models.TradeOpen,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		claimed, err := claimForMatch(ctx, tx, candidateID)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrCandidateUnavailable
		}

		claimed, err = claimForMatch(ctx, tx, newListingID)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrListingUnavailable
		}

		if _, err := tx.NewInsert().Model(trade).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Trade created",
		slog.String("type", "match"),
		slog.Int64("trade_id", trade.ID),
		slog.Int64("listing_a", newListingID),
		slog.Int64("listing_b", candidateID))

	return trade, nil
}

// CompleteTrade decrements both sides and closes the trade in one
// transaction. Sides that still have stock return to ACTIVE and re-enter
// the matching pool; sides that reach zero are deleted. Closing an already
// closed trade is refused, so a double button press can never decrement
// twice.
func (r *tradeRepository) CompleteTrade(ctx context.Context, tradeID int64, actorID snowflake.ID) (*CloseReport, error) {
	report := &CloseReport{Completed: true}

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		trade, listingA, listingB, err := lockOpenTrade(ctx, tx, tradeID, actorID)
		if err != nil {
			return err
		}
		report.Trade = trade
		report.ListingA = listingA
		report.ListingB = listingB

		if report.RemainingA, err = decrementOrDelete(ctx, tx, listingA.ID); err != nil {
			return err
		}
		if report.RemainingB, err = decrementOrDelete(ctx, tx, listingB.ID); err != nil {
			return err
		}

		return closeTrade(ctx, tx, trade)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// CancelTrade reverts both listings to ACTIVE with counts untouched and
// closes the trade. The trade row stays behind as pair history. force skips
// the participant check for the expiry sweep.
func (r *tradeRepository) CancelTrade(ctx context.Context, tradeID int64, actorID snowflake.ID, force bool) (*CloseReport, error) {
	report := &CloseReport{}

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		checkActor := actorID
		if force {
			checkActor = 0
		}
		trade, listingA, listingB, err := lockOpenTrade(ctx, tx, tradeID, checkActor)
		if err != nil {
			return err
		}
		report.Trade = trade
		report.ListingA = listingA
		report.ListingB = listingB
		report.RemainingA = listingA.Count
		report.RemainingB = listingB.Count

		if err := revertToActive(ctx, tx, listingA.ID); err != nil {
			return err
		}
		if err := revertToActive(ctx, tx, listingB.ID); err != nil {
			return err
		}

		return closeTrade(ctx, tx, trade)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// SetChannel records the conversation space once the chat collaborator has
// created it. The reference is write-once.
func (r *tradeRepository) SetChannel(ctx context.Context, tradeID int64, channelID snowflake.ID) error {
	res, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("channel_id = ?", channelID).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND channel_id IS NULL", tradeID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set trade channel: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read channel update result: %w", err)
	}
	if affected == 0 {
		exists, err := r.db.NewSelect().
			Model((*models.Trade)(nil)).
			Where("id = ?", tradeID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check trade existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrChannelAlreadySet
	}
	return nil
}

func (r *tradeRepository) GetExpired(ctx context.Context, olderThan time.Duration) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := r.db.NewSelect().
		Model(&trades).
		Where("status = ?", models.TradeOpen).
		Where("created_at < ?", time.Now().Add(-olderThan)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired trades: %w", err)
	}
	return trades, nil
}

// lockOpenTrade loads an OPEN trade and both of its listings under row
// locks, validating the actor when one is given (0 means a system actor).
func lockOpenTrade(ctx context.Context, tx bun.Tx, tradeID int64, actorID snowflake.ID) (*models.Trade, *models.Listing, *models.Listing, error) {
	trade := new(models.Trade)
	err := tx.NewSelect().
		Model(trade).
		Where("id = ?", tradeID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil, ErrNotFound
		}
		return nil, nil, nil, fmt.Errorf("failed to load trade: %w", err)
	}
	if trade.Status != models.TradeOpen {
		return nil, nil, nil, ErrTradeClosed
	}

	listingA, err := lockListing(ctx, tx, trade.ListingAID)
	if err != nil {
		return nil, nil, nil, err
	}
	listingB, err := lockListing(ctx, tx, trade.ListingBID)
	if err != nil {
		return nil, nil, nil, err
	}

	if actorID != 0 && actorID != listingA.OwnerID && actorID != listingB.OwnerID {
		return nil, nil, nil, ErrUnauthorized
	}
	return trade, listingA, listingB, nil
}

func lockListing(ctx context.Context, tx bun.Tx, id int64) (*models.Listing, error) {
	listing := new(models.Listing)
	err := tx.NewSelect().
		Model(listing).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load listing %d: %w", id, err)
	}
	return listing, nil
}

func closeTrade(ctx context.Context, tx bun.Tx, trade *models.Trade) error {
	_, err := tx.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", models.TradeClosed).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", trade.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to close trade: %w", err)
	}
	trade.Status = models.TradeClosed
	return nil
}
