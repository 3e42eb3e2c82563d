package trading

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pogotraders/matchbot/matchbot/database/repositories"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const sweepTimeout = 30 * time.Second

// Sweeper force-cancels open trades that sat untouched past the retention
// window. Failures are logged and retried on the next cycle.
type Sweeper struct {
	trades      repositories.TradeRepository
	lifecycle   *Lifecycle
	retention   time.Duration
	concurrency int64
	ticker      *time.Ticker
	shutdown    chan struct{}
}

func NewSweeper(trades repositories.TradeRepository, lifecycle *Lifecycle, retention, interval time.Duration, concurrency int) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Sweeper{
		trades:      trades,
		lifecycle:   lifecycle,
		retention:   retention,
		concurrency: int64(concurrency),
		ticker:      time.NewTicker(interval),
		shutdown:    make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go func() {
		defer s.ticker.Stop()

		for {
			select {
			case <-s.ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
				if err := s.Sweep(ctx); err != nil {
					slog.Error("Trade expiry sweep failed",
						slog.String("type", "trade"),
						slog.Any("error", err))
				}
				cancel()
			case <-s.shutdown:
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	close(s.shutdown)
}

// Sweep runs one expiry pass. Exported so main can run a pass at startup.
func (s *Sweeper) Sweep(ctx context.Context) error {
	expired, err := s.trades.GetExpired(ctx, s.retention)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	slog.Info("Expiring stale trades",
		slog.String("type", "trade"),
		slog.Int("count", len(expired)))

	sem := semaphore.NewWeighted(s.concurrency)
	g, ctx := errgroup.WithContext(ctx)

	for _, trade := range expired {
		tradeID := trade.ID
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			_, err := s.lifecycle.ForceCancel(ctx, tradeID)
			if err != nil && !errors.Is(err, repositories.ErrTradeClosed) && !errors.Is(err, repositories.ErrNotFound) {
				// Log and keep sweeping; this trade is retried next cycle.
				slog.Error("Failed to expire trade",
					slog.String("type", "trade"),
					slog.Int64("trade_id", tradeID),
					slog.Any("error", err))
			}
			return nil
		})
	}

	return g.Wait()
}
