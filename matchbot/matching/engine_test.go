package matching

import (
	"context"
	"sync"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pogotraders/matchbot/matchbot/database/models"
	"github.com/pogotraders/matchbot/matchbot/database/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewEngine(store.Listings(), store.Trades()), store
}

func addListing(t *testing.T, store *memory.Store, owner snowflake.ID, direction models.ListingDirection, speciesID int64, fp models.Fingerprint, count int) *models.Listing {
	t.Helper()
	listing := &models.Listing{
		OwnerID:   owner,
		Direction: direction,
		SpeciesID: speciesID,
		Count:     count,
	}
	listing.SetFingerprint(fp)
	require.NoError(t, store.Listings().Create(context.Background(), listing))
	return listing
}

func TestAttemptMatch_PairsOppositeDirections(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	request := addListing(t, store, 1, models.DirectionRequest, 25, models.Fingerprint{}, 1)
	offer := addListing(t, store, 2, models.DirectionOffer, 25, models.Fingerprint{}, 1)

	result, err := engine.AttemptMatch(ctx, offer.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, request.ID, result.Matched.ID)

	for _, id := range []int64{request.ID, offer.ID} {
		l, err := store.Listings().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ListingPending, l.Status)
	}
}

func TestAttemptMatch_NoCandidates(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	offer := addListing(t, store, 1, models.DirectionOffer, 25, models.Fingerprint{}, 1)

	result, err := engine.AttemptMatch(ctx, offer.ID)
	require.NoError(t, err)
	assert.Nil(t, result)

	// The listing stays in the pool, waiting for future counter-listings.
	l, err := store.Listings().GetByID(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, l.Status)
}

func TestAttemptMatch_MissingListing(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.AttemptMatch(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestAttemptMatch_FingerprintMustMatchExactly(t *testing.T) {
	tests := []struct {
		name string
		fp   models.Fingerprint
	}{
		{name: "shiny", fp: models.Fingerprint{Shiny: true}},
		{name: "purified", fp: models.Fingerprint{Purified: true}},
		{name: "dynamax", fp: models.Fingerprint{Dynamax: true}},
		{name: "gigantamax", fp: models.Fingerprint{Gigantamax: true}},
		{name: "background", fp: models.Fingerprint{Background: true}},
		{name: "adventure_effect", fp: models.Fingerprint{AdventureEffect: true}},
		{name: "mirror", fp: models.Fingerprint{Mirror: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, store := newTestEngine(t)

			addListing(t, store, 1, models.DirectionRequest, 25, tt.fp, 1)
			offer := addListing(t, store, 2, models.DirectionOffer, 25, models.Fingerprint{}, 1)

			result, err := engine.AttemptMatch(context.Background(), offer.ID)
			require.NoError(t, err)
			assert.Nil(t, result, "a listing must never match a candidate whose %s flag differs", tt.name)
		})
	}
}

func TestAttemptMatch_DifferentSpeciesNeverMatch(t *testing.T) {
	engine, store := newTestEngine(t)

	addListing(t, store, 1, models.DirectionRequest, 26, models.Fingerprint{}, 1)
	offer := addListing(t, store, 2, models.DirectionOffer, 25, models.Fingerprint{}, 1)

	result, err := engine.AttemptMatch(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestAttemptMatch_MirrorPairsSameDirection(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	mirror := models.Fingerprint{Shiny: true, Mirror: true}

	// Neither an opposite-direction mirror request nor a plain request is a
	// valid partner for a mirror offer.
	addListing(t, store, 1, models.DirectionRequest, 25, mirror, 1)
	addListing(t, store, 2, models.DirectionRequest, 25, models.Fingerprint{Shiny: true}, 1)
	offer := addListing(t, store, 3, models.DirectionOffer, 25, mirror, 1)

	result, err := engine.AttemptMatch(ctx, offer.ID)
	require.NoError(t, err)
	require.Nil(t, result)

	// A second mirror OFFER with the same flags is.
	counterpart := addListing(t, store, 4, models.DirectionOffer, 25, mirror, 1)
	result, err = engine.AttemptMatch(ctx, counterpart.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, offer.ID, result.Matched.ID)
}

func TestAttemptMatch_MirrorFlagIsPartOfFingerprint(t *testing.T) {
	engine, store := newTestEngine(t)

	// A plain offer must not be paired with a mirror offer even though the
	// mirror one targets the OFFER direction.
	addListing(t, store, 1, models.DirectionOffer, 25, models.Fingerprint{Mirror: true}, 1)
	offer := addListing(t, store, 2, models.DirectionOffer, 25, models.Fingerprint{}, 1)

	result, err := engine.AttemptMatch(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestAttemptMatch_SelectsOldestCandidate(t *testing.T) {
	engine, store := newTestEngine(t)

	first := addListing(t, store, 1, models.DirectionRequest, 25, models.Fingerprint{}, 1)
	addListing(t, store, 2, models.DirectionRequest, 25, models.Fingerprint{}, 1)
	addListing(t, store, 3, models.DirectionRequest, 25, models.Fingerprint{}, 1)
	offer := addListing(t, store, 4, models.DirectionOffer, 25, models.Fingerprint{}, 1)

	result, err := engine.AttemptMatch(context.Background(), offer.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, first.ID, result.Matched.ID)
}

func TestAttemptMatch_NeverMatchesOwnListings(t *testing.T) {
	engine, store := newTestEngine(t)

	// Same user on both sides.
	addListing(t, store, 1, models.DirectionRequest, 25, models.Fingerprint{}, 1)
	offer := addListing(t, store, 1, models.DirectionOffer, 25, models.Fingerprint{}, 1)

	result, err := engine.AttemptMatch(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestAttemptMatch_SkipsPreviouslyPairedListings(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	request := addListing(t, store, 1, models.DirectionRequest, 25, models.Fingerprint{}, 1)
	offer := addListing(t, store, 2, models.DirectionOffer, 25, models.Fingerprint{}, 1)

	result, err := engine.AttemptMatch(ctx, offer.ID)
	require.NoError(t, err)
	require.NotNil(t, result)

	// The pair falls out and both sides return to the pool.
	_, err = store.Trades().CancelTrade(ctx, result.Trade.ID, 1, false)
	require.NoError(t, err)

	// Even though both are ACTIVE again, this exact pair is burned forever.
	result, err = engine.AttemptMatch(ctx, offer.ID)
	require.NoError(t, err)
	assert.Nil(t, result)

	result, err = engine.AttemptMatch(ctx, request.ID)
	require.NoError(t, err)
	assert.Nil(t, result)

	// A fresh third-party listing is still fair game for either side.
	third := addListing(t, store, 3, models.DirectionOffer, 25, models.Fingerprint{}, 1)
	result, err = engine.AttemptMatch(ctx, third.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, request.ID, result.Matched.ID)
}

// Mirrors the walkthrough of a full cancel-and-rematch cycle: after (A, B1)
// is cancelled, a second identical offer B2 can still match A, while B1
// stays blacklisted against A.
func TestAttemptMatch_CancelAndRematchCycle(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	request := addListing(t, store, 1, models.DirectionRequest, 25, models.Fingerprint{}, 1)
	offerB1 := addListing(t, store, 2, models.DirectionOffer, 25, models.Fingerprint{}, 1)

	result, err := engine.AttemptMatch(ctx, offerB1.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	firstTrade := result.Trade.ID

	// B posts a second identical offer: A's request is PENDING, so no match.
	offerB2 := addListing(t, store, 2, models.DirectionOffer, 25, models.Fingerprint{}, 1)
	result, err = engine.AttemptMatch(ctx, offerB2.ID)
	require.NoError(t, err)
	require.Nil(t, result)

	// A cancels; both sides of the first trade go back to ACTIVE.
	_, err = store.Trades().CancelTrade(ctx, firstTrade, 1, false)
	require.NoError(t, err)

	// B's second listing can now take the match, not the burned first one.
	result, err = engine.AttemptMatch(ctx, offerB2.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, request.ID, result.Matched.ID)

	result, err = engine.AttemptMatch(ctx, offerB1.ID)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestAttemptMatch_NoDoubleBooking(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	const offers = 16
	requests := 4

	for i := 0; i < requests; i++ {
		addListing(t, store, snowflake.ID(100+i), models.DirectionRequest, 25, models.Fingerprint{}, 1)
	}

	var offerIDs []int64
	for i := 0; i < offers; i++ {
		l := addListing(t, store, snowflake.ID(200+i), models.DirectionOffer, 25, models.Fingerprint{}, 1)
		offerIDs = append(offerIDs, l.ID)
	}

	var wg sync.WaitGroup
	results := make([]*Result, offers)
	for i, id := range offerIDs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			result, err := engine.AttemptMatch(ctx, id)
			assert.NoError(t, err)
			results[i] = result
		}(i, id)
	}
	wg.Wait()

	// Every request listing ends up in at most one trade, and the matched
	// trades cover distinct listings on both sides.
	seen := make(map[int64]bool)
	matched := 0
	for _, result := range results {
		if result == nil {
			continue
		}
		matched++
		assert.False(t, seen[result.Matched.ID], "candidate %d booked twice", result.Matched.ID)
		assert.False(t, seen[result.Listing.ID], "listing %d booked twice", result.Listing.ID)
		seen[result.Matched.ID] = true
		seen[result.Listing.ID] = true
	}
	assert.Equal(t, requests, matched)
}
