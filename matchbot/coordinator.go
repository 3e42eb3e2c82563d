package matchbot

import (
	"context"

	"github.com/pogotraders/matchbot/matchbot/database"
	"github.com/pogotraders/matchbot/matchbot/database/repositories"
	"github.com/pogotraders/matchbot/matchbot/matching"
	"github.com/pogotraders/matchbot/matchbot/species"
	"github.com/pogotraders/matchbot/matchbot/trading"
)

// Coordinator wires the matching core together and is the surface the chat
// collaborator talks to: attempt a match after persisting a listing, then
// complete or cancel the resulting trade on user action.
type Coordinator struct {
	Cfg               Config
	DB                *database.DB
	ListingRepository repositories.ListingRepository
	TradeRepository   repositories.TradeRepository
	UserRepository    repositories.UserRepository
	AccountRepository repositories.AccountRepository
	SpeciesCatalog    *species.Catalog
	Engine            *matching.Engine
	Lifecycle         *trading.Lifecycle
	Sweeper           *trading.Sweeper
}

func New(cfg Config, db *database.DB, notifier trading.SpaceNotifier) *Coordinator {
	bunDB := db.BunDB()

	listingRepo := repositories.NewListingRepository(bunDB)
	tradeRepo := repositories.NewTradeRepository(bunDB)
	lifecycle := trading.NewLifecycle(tradeRepo, notifier)

	return &Coordinator{
		Cfg:               cfg,
		DB:                db,
		ListingRepository: listingRepo,
		TradeRepository:   tradeRepo,
		UserRepository:    repositories.NewUserRepository(bunDB),
		AccountRepository: repositories.NewAccountRepository(bunDB),
		SpeciesCatalog:    species.NewCatalog(repositories.NewSpeciesRepository(bunDB)),
		Engine:            matching.NewEngine(listingRepo, tradeRepo),
		Lifecycle:         lifecycle,
		Sweeper: trading.NewSweeper(tradeRepo, lifecycle,
			cfg.Trading.Retention(), cfg.Trading.SweepInterval(), cfg.Trading.SweepConcurrency),
	}
}

// Start brings up the background expiry sweep.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.SpeciesCatalog.Refresh(ctx); err != nil {
		return err
	}
	c.Sweeper.Start()
	return nil
}

func (c *Coordinator) Shutdown() {
	c.Sweeper.Stop()
	c.DB.Close()
}
