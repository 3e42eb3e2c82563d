package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// Trade binds two matched listings. Rows are never deleted: a closed trade
// is the permanent record that this pair has been tried, which is what keeps
// a cancelled pair from being offered to each other again.
type Trade struct {
	bun.BaseModel `bun:"table:trades,alias:t"`

	ID         int64        `bun:"id,pk,autoincrement"`
	ListingAID int64        `bun:"listing_a_id,notnull"`
	ListingBID int64        `bun:"listing_b_id,notnull"`
	ChannelID  snowflake.ID `bun:"channel_id,nullzero"`
	Status     TradeStatus  `bun:"status,notnull,default:'OPEN'"`
	CreatedAt  time.Time    `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time    `bun:"updated_at,notnull,default:current_timestamp"`
}

// Involves reports whether the listing id is one of the trade's two sides.
func (t *Trade) Involves(listingID int64) bool {
	return t.ListingAID == listingID || t.ListingBID == listingID
}
