package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pogotraders/matchbot/matchbot/database/models"
	"github.com/pogotraders/matchbot/matchbot/database/repositories"
	"github.com/pogotraders/matchbot/matchbot/database/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	released []*repositories.CloseReport
}

func (n *recordingNotifier) SpaceReleased(_ context.Context, report *repositories.CloseReport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.released = append(n.released, report)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.released)
}

type fixture struct {
	store     *memory.Store
	lifecycle *Lifecycle
	notifier  *recordingNotifier
	trade     *models.Trade
	listingA  *models.Listing
	listingB  *models.Listing
}

// newFixture builds a store holding one bound pair: user 1 requesting and
// user 2 offering, with the given counts.
func newFixture(t *testing.T, countA, countB int) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	listingA := &models.Listing{OwnerID: 1, Direction: models.DirectionRequest, SpeciesID: 25, Count: countA}
	require.NoError(t, store.Listings().Create(ctx, listingA))
	listingB := &models.Listing{OwnerID: 2, Direction: models.DirectionOffer, SpeciesID: 25, Count: countB}
	require.NoError(t, store.Listings().Create(ctx, listingB))

	trade, err := store.Trades().BindPair(ctx, listingA.ID, listingB.ID)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	return &fixture{
		store:     store,
		lifecycle: NewLifecycle(store.Trades(), notifier),
		notifier:  notifier,
		trade:     trade,
		listingA:  listingA,
		listingB:  listingB,
	}
}

func TestComplete_DecrementsAndReactivates(t *testing.T) {
	f := newFixture(t, 3, 1)
	ctx := context.Background()

	report, err := f.lifecycle.Complete(ctx, f.trade.ID, 1)
	require.NoError(t, err)
	assert.True(t, report.Completed)
	assert.Equal(t, 2, report.RemainingA)
	assert.Equal(t, 0, report.RemainingB)

	// Side A keeps its remainder and is matchable again.
	a, err := f.store.Listings().GetByID(ctx, f.listingA.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Count)
	assert.Equal(t, models.ListingActive, a.Status)

	// Side B ran out and is gone, not a zero-count row.
	_, err = f.store.Listings().GetByID(ctx, f.listingB.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	trade, err := f.store.Trades().GetByID(ctx, f.trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, trade.Status)
	assert.Equal(t, 1, f.notifier.count())
}

func TestComplete_TwiceNeverDoubleDecrements(t *testing.T) {
	f := newFixture(t, 3, 3)
	ctx := context.Background()

	_, err := f.lifecycle.Complete(ctx, f.trade.ID, 1)
	require.NoError(t, err)

	_, err = f.lifecycle.Complete(ctx, f.trade.ID, 1)
	assert.ErrorIs(t, err, repositories.ErrTradeClosed)

	a, err := f.store.Listings().GetByID(ctx, f.listingA.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Count)
	assert.Equal(t, 1, f.notifier.count())
}

func TestComplete_RejectsNonParticipant(t *testing.T) {
	f := newFixture(t, 1, 1)
	ctx := context.Background()

	_, err := f.lifecycle.Complete(ctx, f.trade.ID, 99)
	assert.ErrorIs(t, err, repositories.ErrUnauthorized)

	// Nothing moved.
	a, err := f.store.Listings().GetByID(ctx, f.listingA.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingPending, a.Status)
	assert.Equal(t, 1, a.Count)
	assert.Equal(t, 0, f.notifier.count())
}

func TestComplete_MissingTrade(t *testing.T) {
	f := newFixture(t, 1, 1)

	_, err := f.lifecycle.Complete(context.Background(), 404, 1)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestCancel_RevertsBothSides(t *testing.T) {
	f := newFixture(t, 2, 1)
	ctx := context.Background()

	report, err := f.lifecycle.Cancel(ctx, f.trade.ID, 2)
	require.NoError(t, err)
	assert.False(t, report.Completed)

	// Counts untouched, both back in the pool.
	for id, wantCount := range map[int64]int{f.listingA.ID: 2, f.listingB.ID: 1} {
		l, err := f.store.Listings().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ListingActive, l.Status)
		assert.Equal(t, wantCount, l.Count)
	}

	// The trade row survives as pair history.
	paired, err := f.store.Trades().HasBeenPaired(ctx, f.listingA.ID, f.listingB.ID)
	require.NoError(t, err)
	assert.True(t, paired)
	assert.Equal(t, 1, f.notifier.count())
}

func TestSetChannel_WriteOnce(t *testing.T) {
	f := newFixture(t, 1, 1)
	ctx := context.Background()

	require.NoError(t, f.lifecycle.SetChannel(ctx, f.trade.ID, snowflake.ID(555)))

	err := f.lifecycle.SetChannel(ctx, f.trade.ID, snowflake.ID(556))
	assert.ErrorIs(t, err, repositories.ErrChannelAlreadySet)

	trade, err := f.store.Trades().GetByChannel(ctx, snowflake.ID(555))
	require.NoError(t, err)
	assert.Equal(t, f.trade.ID, trade.ID)
}

func TestSweeper_CancelsExpiredTrades(t *testing.T) {
	f := newFixture(t, 1, 1)
	ctx := context.Background()

	sweeper := NewSweeper(f.store.Trades(), f.lifecycle, 7*24*time.Hour, 0, 2)

	// Fresh trade: nothing to do.
	require.NoError(t, sweeper.Sweep(ctx))
	trade, err := f.store.Trades().GetByID(ctx, f.trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeOpen, trade.Status)

	// Past retention the sweep force-cancels it and frees both listings.
	f.store.Age(f.trade.ID, 8*24*time.Hour)
	require.NoError(t, sweeper.Sweep(ctx))

	trade, err = f.store.Trades().GetByID(ctx, f.trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, trade.Status)

	a, err := f.store.Listings().GetByID(ctx, f.listingA.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, a.Status)
	assert.Equal(t, 1, f.notifier.count())
}
