package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pogotraders/matchbot/matchbot/database/models"
	"github.com/pogotraders/matchbot/matchbot/database/repositories"
	"github.com/pogotraders/matchbot/matchbot/logger"
)

const pairCacheSize = 8192

// Result is what a successful match hands back to the caller. The caller
// owns the next step: create the conversation space and store its reference
// on the trade.
type Result struct {
	Trade   *models.Trade
	Listing *models.Listing
	Matched *models.Listing
}

// Engine pairs a freshly activated listing with the oldest compatible
// counter-listing, locking both sides so no listing is ever claimed twice.
type Engine struct {
	listings repositories.ListingRepository
	trades   repositories.TradeRepository

	// pairCache holds canonical "min:max" listing-id keys that are known
	// to be in trade history. History rows are never deleted, so positive
	// entries can be cached indefinitely; negatives are never cached.
	pairCache *lru.Cache
}

func NewEngine(listings repositories.ListingRepository, trades repositories.TradeRepository) *Engine {
	cache, _ := lru.New(pairCacheSize)
	return &Engine{
		listings:  listings,
		trades:    trades,
		pairCache: cache,
	}
}

// AttemptMatch is invoked once per newly created (or newly re-activated)
// listing. It returns (nil, nil) when no compatible counter-listing is
// available, which is the expected steady state and not an error.
func (e *Engine) AttemptMatch(ctx context.Context, listingID int64) (*Result, error) {
	start := time.Now()
	result, err := e.attemptMatch(ctx, listingID)

	var tradeID int64
	if result != nil {
		tradeID = result.Trade.ID
	}
	logger.LogMatch(listingID, tradeID, time.Since(start), err)

	return result, err
}

func (e *Engine) attemptMatch(ctx context.Context, listingID int64) (*Result, error) {
	listing, err := e.listings.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Deleted between creation and the match call; nothing to do.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load listing %d: %w", listingID, err)
	}
	if listing.Status != models.ListingActive {
		return nil, nil
	}

	candidates, err := e.listings.FindCandidates(ctx,
		listing.TargetDirection(),
		listing.SpeciesID,
		listing.Fingerprint(),
		listing.OwnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("candidate search failed for listing %d: %w", listingID, err)
	}

	for _, candidate := range candidates {
		paired, err := e.hasBeenPaired(ctx, listing.ID, candidate.ID)
		if err != nil {
			return nil, err
		}
		if paired {
			continue
		}

		trade, err := e.trades.BindPair(ctx, listing.ID, candidate.ID)
		switch {
		case err == nil:
			e.pairCache.Add(pairKey(listing.ID, candidate.ID), struct{}{})
			return &Result{Trade: trade, Listing: listing, Matched: candidate}, nil
		case errors.Is(err, repositories.ErrCandidateUnavailable):
			// Lost the race for this candidate; the next one may still be free.
			continue
		case errors.Is(err, repositories.ErrListingUnavailable):
			// Someone matched our listing concurrently. Their trade stands.
			return nil, nil
		default:
			return nil, fmt.Errorf("failed to bind listings %d and %d: %w", listing.ID, candidate.ID, err)
		}
	}

	return nil, nil
}

func (e *Engine) hasBeenPaired(ctx context.Context, a, b int64) (bool, error) {
	key := pairKey(a, b)
	if e.pairCache.Contains(key) {
		return true, nil
	}

	paired, err := e.trades.HasBeenPaired(ctx, a, b)
	if err != nil {
		return false, fmt.Errorf("history check failed for listings %d and %d: %w", a, b, err)
	}
	if paired {
		e.pairCache.Add(key, struct{}{})
	}
	return paired, nil
}

func pairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
