// Package memory provides map-backed implementations of the repository
// contracts. They honor the same claim and close semantics as the SQL
// implementations and back the matching and lifecycle test suites.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pogotraders/matchbot/matchbot/database/models"
	"github.com/pogotraders/matchbot/matchbot/database/repositories"
)

type Store struct {
	mu sync.Mutex

	listings      map[int64]*models.Listing
	trades        map[int64]*models.Trade
	nextListingID int64
	nextTradeID   int64
	clock         time.Time
}

func NewStore() *Store {
	return &Store{
		listings: make(map[int64]*models.Listing),
		trades:   make(map[int64]*models.Trade),
		clock:    time.Now(),
	}
}

// Listings returns the store viewed through the listing contract.
func (s *Store) Listings() repositories.ListingRepository { return (*listingStore)(s) }

// Trades returns the store viewed through the trade contract.
func (s *Store) Trades() repositories.TradeRepository { return (*tradeStore)(s) }

// now hands out strictly increasing timestamps so FIFO ordering is
// deterministic even when rows are created within the same tick.
func (s *Store) now() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func copyListing(l *models.Listing) *models.Listing {
	c := *l
	return &c
}

func copyTrade(t *models.Trade) *models.Trade {
	c := *t
	return &c
}

type listingStore Store

func (s *listingStore) Create(_ context.Context, listing *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextListingID++
	listing.ID = s.nextListingID
	if listing.Count <= 0 {
		listing.Count = 1
	}
	listing.Status = models.ListingActive
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = (*Store)(s).now()
	}
	s.listings[listing.ID] = copyListing(listing)
	return nil
}

func (s *listingStore) GetByID(_ context.Context, id int64) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return copyListing(listing), nil
}

func (s *listingStore) GetUserListings(_ context.Context, userID snowflake.ID, status models.ListingStatus) ([]*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Listing
	for _, l := range s.listings {
		if l.OwnerID != userID {
			continue
		}
		if status != "" && l.Status != status {
			continue
		}
		out = append(out, copyListing(l))
	}
	sortByAge(out)
	return out, nil
}

func (s *listingStore) FindCandidates(_ context.Context, direction models.ListingDirection, speciesID int64, fp models.Fingerprint, excludeOwnerID snowflake.ID) ([]*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Listing
	for _, l := range s.listings {
		if l.Status != models.ListingActive ||
			l.Direction != direction ||
			l.SpeciesID != speciesID ||
			l.OwnerID == excludeOwnerID ||
			l.Fingerprint() != fp {
			continue
		}
		out = append(out, copyListing(l))
	}
	sortByAge(out)
	return out, nil
}

func (s *listingStore) SetStatus(_ context.Context, id int64, status models.ListingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[id]
	if !ok {
		return repositories.ErrNotFound
	}
	listing.Status = status
	return nil
}

func (s *listingStore) DecrementOrDelete(_ context.Context, id int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*Store)(s).decrementOrDeleteLocked(id)
}

func (s *listingStore) RevertToActive(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[id]
	if !ok {
		return repositories.ErrNotFound
	}
	listing.Status = models.ListingActive
	return nil
}

func (s *listingStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.listings, id)
	return nil
}

func (s *listingStore) SetMessageRef(_ context.Context, id int64, messageID snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[id]
	if !ok {
		return repositories.ErrNotFound
	}
	listing.MessageID = messageID
	return nil
}

type tradeStore Store

func (s *tradeStore) GetByID(_ context.Context, id int64) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade, ok := s.trades[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return copyTrade(trade), nil
}

func (s *tradeStore) GetByChannel(_ context.Context, channelID snowflake.ID) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.trades {
		if t.ChannelID == channelID {
			return copyTrade(t), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *tradeStore) HasBeenPaired(_ context.Context, listingA, listingB int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.trades {
		if (t.ListingAID == listingA && t.ListingBID == listingB) ||
			(t.ListingAID == listingB && t.ListingBID == listingA) {
			return true, nil
		}
	}
	return false, nil
}

func (s *tradeStore) BindPair(_ context.Context, newListingID, candidateID int64) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate, ok := s.listings[candidateID]
	if !ok || candidate.Status != models.ListingActive {
		return nil, repositories.ErrCandidateUnavailable
	}
	listing, ok := s.listings[newListingID]
	if !ok || listing.Status != models.ListingActive {
		return nil, repositories.ErrListingUnavailable
	}

	candidate.Status = models.ListingPending
	listing.Status = models.ListingPending

	s.nextTradeID++
	trade := &models.Trade{
		ID:         s.nextTradeID,
		ListingAID: newListingID,
		ListingBID: candidateID,
		Status:     models.TradeOpen,
		CreatedAt:  (*Store)(s).now(),
		UpdatedAt:  (*Store)(s).now(),
	}
	s.trades[trade.ID] = trade
	return copyTrade(trade), nil
}

func (s *tradeStore) CompleteTrade(_ context.Context, tradeID int64, actorID snowflake.ID) (*repositories.CloseReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade, listingA, listingB, err := (*Store)(s).openTradeLocked(tradeID, actorID)
	if err != nil {
		return nil, err
	}

	report := &repositories.CloseReport{
		Trade:     copyTrade(trade),
		ListingA:  copyListing(listingA),
		ListingB:  copyListing(listingB),
		Completed: true,
	}
	if report.RemainingA, err = (*Store)(s).decrementOrDeleteLocked(listingA.ID); err != nil {
		return nil, err
	}
	if report.RemainingB, err = (*Store)(s).decrementOrDeleteLocked(listingB.ID); err != nil {
		return nil, err
	}

	trade.Status = models.TradeClosed
	report.Trade.Status = models.TradeClosed
	return report, nil
}

func (s *tradeStore) CancelTrade(_ context.Context, tradeID int64, actorID snowflake.ID, force bool) (*repositories.CloseReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if force {
		actorID = 0
	}
	trade, listingA, listingB, err := (*Store)(s).openTradeLocked(tradeID, actorID)
	if err != nil {
		return nil, err
	}

	listingA.Status = models.ListingActive
	listingB.Status = models.ListingActive
	trade.Status = models.TradeClosed

	return &repositories.CloseReport{
		Trade:      copyTrade(trade),
		ListingA:   copyListing(listingA),
		ListingB:   copyListing(listingB),
		RemainingA: listingA.Count,
		RemainingB: listingB.Count,
	}, nil
}

func (s *tradeStore) SetChannel(_ context.Context, tradeID int64, channelID snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade, ok := s.trades[tradeID]
	if !ok {
		return repositories.ErrNotFound
	}
	if trade.ChannelID != 0 {
		return repositories.ErrChannelAlreadySet
	}
	trade.ChannelID = channelID
	return nil
}

func (s *tradeStore) GetExpired(_ context.Context, olderThan time.Duration) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Add(-olderThan)
	var out []*models.Trade
	for _, t := range s.trades {
		if t.Status == models.TradeOpen && t.CreatedAt.Before(cutoff) {
			out = append(out, copyTrade(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Age rewinds a trade's creation time; tests use it to trigger expiry.
func (s *Store) Age(tradeID int64, by time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.trades[tradeID]; ok {
		t.CreatedAt = t.CreatedAt.Add(-by)
	}
}

func (s *Store) openTradeLocked(tradeID int64, actorID snowflake.ID) (*models.Trade, *models.Listing, *models.Listing, error) {
	trade, ok := s.trades[tradeID]
	if !ok {
		return nil, nil, nil, repositories.ErrNotFound
	}
	if trade.Status != models.TradeOpen {
		return nil, nil, nil, repositories.ErrTradeClosed
	}

	listingA, ok := s.listings[trade.ListingAID]
	if !ok {
		return nil, nil, nil, repositories.ErrNotFound
	}
	listingB, ok := s.listings[trade.ListingBID]
	if !ok {
		return nil, nil, nil, repositories.ErrNotFound
	}

	if actorID != 0 && actorID != listingA.OwnerID && actorID != listingB.OwnerID {
		return nil, nil, nil, repositories.ErrUnauthorized
	}
	return trade, listingA, listingB, nil
}

func (s *Store) decrementOrDeleteLocked(id int64) (int, error) {
	listing, ok := s.listings[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}

	remaining := listing.Count - 1
	if remaining <= 0 {
		delete(s.listings, id)
		return 0, nil
	}
	listing.Count = remaining
	listing.Status = models.ListingActive
	return remaining, nil
}

func sortByAge(listings []*models.Listing) {
	sort.Slice(listings, func(i, j int) bool {
		if listings[i].CreatedAt.Equal(listings[j].CreatedAt) {
			return listings[i].ID < listings[j].ID
		}
		return listings[i].CreatedAt.Before(listings[j].CreatedAt)
	})
}
