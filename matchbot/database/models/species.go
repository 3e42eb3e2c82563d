package models

import "github.com/uptrace/bun"

// Species is a catalog row for one creature form. The matching engine only
// ever compares the id; names and forms exist for lookup and display.
type Species struct {
	bun.BaseModel `bun:"table:species,alias:s"`

	ID        int64  `bun:"id,pk,autoincrement"`
	DexNumber int    `bun:"dex_number,notnull"`
	Name      string `bun:"name,notnull"`
	Form      string `bun:"form"`
}
