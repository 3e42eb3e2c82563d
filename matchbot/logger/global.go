package logger

import (
	"log/slog"
	"time"
)

// LogMatch logs the outcome of one match attempt.
func LogMatch(listingID int64, tradeID int64, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "match"),
		slog.Int64("listing_id", listingID),
		slog.Duration("took", duration),
	}

	switch {
	case err != nil:
		slog.Error("Match attempt failed", append(attrs, slog.Any("error", err))...)
	case tradeID == 0:
		slog.Debug("No match found", attrs...)
	default:
		slog.Info("Match found", append(attrs, slog.Int64("trade_id", tradeID))...)
	}
}

// LogQuery logs database operations.
func LogQuery(query string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "db"),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Error("Query failed", append(attrs,
			slog.String("query", query),
			slog.Any("error", err),
		)...)
	} else {
		slog.Debug("Query executed", append(attrs,
			slog.String("query", query),
		)...)
	}
}
