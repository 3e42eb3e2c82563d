package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type ListingDirection string

const (
	DirectionOffer   ListingDirection = "OFFER"
	DirectionRequest ListingDirection = "REQUEST"
)

// Opposite returns the counterpart direction for normal matching.
func (d ListingDirection) Opposite() ListingDirection {
	if d == DirectionOffer {
		return DirectionRequest
	}
	return DirectionOffer
}

type ListingStatus string

const (
	ListingActive    ListingStatus = "ACTIVE"
	ListingPending   ListingStatus = "PENDING"
	ListingCompleted ListingStatus = "COMPLETED"
	ListingCancelled ListingStatus = "CANCELLED"
)

// Fingerprint is the full set of attributes two listings must share exactly
// for a pairing to be valid. It is a plain comparable value so equality is
// a single == and SQL filters stay in one place.
type Fingerprint struct {
	Shiny           bool
	Purified        bool
	Dynamax         bool
	Gigantamax      bool
	Background      bool
	AdventureEffect bool
	Mirror          bool
}

type Listing struct {
	bun.BaseModel `bun:"table:listings,alias:l"`

	ID        int64            `bun:"id,pk,autoincrement"`
	OwnerID   snowflake.ID     `bun:"owner_id,notnull"`
	AccountID int64            `bun:"account_id,nullzero"`
	Direction ListingDirection `bun:"direction,notnull"`
	SpeciesID int64            `bun:"species_id,notnull"`

	Shiny           bool `bun:"is_shiny,notnull,default:false"`
	Purified        bool `bun:"is_purified,notnull,default:false"`
	Dynamax         bool `bun:"is_dynamax,notnull,default:false"`
	Gigantamax      bool `bun:"is_gigantamax,notnull,default:false"`
	Background      bool `bun:"is_background,notnull,default:false"`
	AdventureEffect bool `bun:"is_adventure_effect,notnull,default:false"`
	Mirror          bool `bun:"is_mirror,notnull,default:false"`

	Details   string        `bun:"details"`
	Count     int           `bun:"count,notnull,default:1"`
	Status    ListingStatus `bun:"status,notnull,default:'ACTIVE'"`
	MessageID snowflake.ID  `bun:"message_id,nullzero"`
	CreatedAt time.Time     `bun:"created_at,notnull,default:current_timestamp"`
}

// Fingerprint collects the attribute flags into a comparable value.
func (l *Listing) Fingerprint() Fingerprint {
	return Fingerprint{
		Shiny:           l.Shiny,
		Purified:        l.Purified,
		Dynamax:         l.Dynamax,
		Gigantamax:      l.Gigantamax,
		Background:      l.Background,
		AdventureEffect: l.AdventureEffect,
		Mirror:          l.Mirror,
	}
}

// SetFingerprint writes the attribute flags back onto the row fields.
func (l *Listing) SetFingerprint(fp Fingerprint) {
	l.Shiny = fp.Shiny
	l.Purified = fp.Purified
	l.Dynamax = fp.Dynamax
	l.Gigantamax = fp.Gigantamax
	l.Background = fp.Background
	l.AdventureEffect = fp.AdventureEffect
	l.Mirror = fp.Mirror
}

// TargetDirection returns the direction a counter-listing must have.
// Mirror listings pair with the SAME direction (two owners swapping
// identical duplicates); everything else pairs with the opposite.
func (l *Listing) TargetDirection() ListingDirection {
	if l.Mirror {
		return l.Direction
	}
	return l.Direction.Opposite()
}
