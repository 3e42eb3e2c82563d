package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	UserID     snowflake.ID `bun:"user_id,pk"`
	FriendCode string       `bun:"friend_code"`
	Team       string       `bun:"team"`
	Region     string       `bun:"region"`
	CreatedAt  time.Time    `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time    `bun:"updated_at,notnull,default:current_timestamp"`
}

// Account is one named in-game profile of a user. Matching works at the user
// level (a user never matches any of their own listings, across all of their
// accounts); accounts only scope how a listing is displayed.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID         int64        `bun:"id,pk,autoincrement"`
	UserID     snowflake.ID `bun:"user_id,notnull"`
	Name       string       `bun:"name,notnull"`
	FriendCode string       `bun:"friend_code"`
	CreatedAt  time.Time    `bun:"created_at,notnull,default:current_timestamp"`
}
