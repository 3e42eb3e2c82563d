package trading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pogotraders/matchbot/matchbot/database/repositories"
)

// SpaceNotifier is the narrow seam to the chat collaborator. It is told when
// a trade's private conversation space may be torn down; creating the space
// in the first place is the caller's job after a successful match.
type SpaceNotifier interface {
	SpaceReleased(ctx context.Context, report *repositories.CloseReport)
}

// Lifecycle drives a bound pair from OPEN to CLOSED, in either direction the
// participants choose.
type Lifecycle struct {
	trades   repositories.TradeRepository
	notifier SpaceNotifier
}

func NewLifecycle(trades repositories.TradeRepository, notifier SpaceNotifier) *Lifecycle {
	return &Lifecycle{trades: trades, notifier: notifier}
}

// Complete finishes a trade on behalf of one of its participants. Both sides
// lose one unit; remainders go back into the matching pool.
func (l *Lifecycle) Complete(ctx context.Context, tradeID int64, actorID snowflake.ID) (*repositories.CloseReport, error) {
	report, err := l.trades.CompleteTrade(ctx, tradeID, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete trade %d: %w", tradeID, err)
	}

	slog.Info("Trade completed",
		slog.String("type", "trade"),
		slog.Int64("trade_id", tradeID),
		slog.Int("remaining_a", report.RemainingA),
		slog.Int("remaining_b", report.RemainingB))

	l.release(ctx, report)
	return report, nil
}

// Cancel closes a trade without exchanging anything. Both listings return to
// ACTIVE, and the trade row stays behind so this exact pair is never offered
// to each other again.
func (l *Lifecycle) Cancel(ctx context.Context, tradeID int64, actorID snowflake.ID) (*repositories.CloseReport, error) {
	report, err := l.trades.CancelTrade(ctx, tradeID, actorID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel trade %d: %w", tradeID, err)
	}

	slog.Info("Trade cancelled",
		slog.String("type", "trade"),
		slog.Int64("trade_id", tradeID))

	l.release(ctx, report)
	return report, nil
}

// ForceCancel is the expiry-sweep path: same semantics as Cancel without a
// participant check.
func (l *Lifecycle) ForceCancel(ctx context.Context, tradeID int64) (*repositories.CloseReport, error) {
	report, err := l.trades.CancelTrade(ctx, tradeID, 0, true)
	if err != nil {
		return nil, fmt.Errorf("failed to force-cancel trade %d: %w", tradeID, err)
	}

	slog.Info("Trade expired and cancelled",
		slog.String("type", "trade"),
		slog.Int64("trade_id", tradeID))

	l.release(ctx, report)
	return report, nil
}

// SetChannel stores the conversation space reference after the chat
// collaborator has created it. Write-once.
func (l *Lifecycle) SetChannel(ctx context.Context, tradeID int64, channelID snowflake.ID) error {
	if err := l.trades.SetChannel(ctx, tradeID, channelID); err != nil {
		return fmt.Errorf("failed to set channel for trade %d: %w", tradeID, err)
	}
	return nil
}

func (l *Lifecycle) release(ctx context.Context, report *repositories.CloseReport) {
	if l.notifier != nil {
		l.notifier.SpaceReleased(ctx, report)
	}
}
