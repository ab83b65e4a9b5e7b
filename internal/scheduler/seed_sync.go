package scheduler

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/lineup/internal/domain"
	"github.com/MrSnakeDoc/lineup/internal/logger"
	"github.com/MrSnakeDoc/lineup/internal/store"
)

// SeedSyncer writes the seed into the host store on startup
type SeedSyncer struct {
	store  store.HostStore
	seed   domain.Seed
	reseed bool
	logger logger.Logger
}

// NewSeedSyncer creates a new seed syncer
func NewSeedSyncer(
	s store.HostStore,
	seed domain.Seed,
	reseed bool,
	log logger.Logger,
) *SeedSyncer {
	return &SeedSyncer{
		store:  s,
		seed:   seed,
		reseed: reseed,
		logger: log,
	}
}

// Sync applies the seed and logs what the store holds afterwards
func (ss *SeedSyncer) Sync(ctx context.Context) error {
	ss.logger.Info("syncing seed into host store",
		logger.Bool("reseed", ss.reseed))

	if err := store.Seed(ctx, ss.store, ss.seed, ss.reseed); err != nil {
		return fmt.Errorf("seed sync failed: %w", err)
	}

	hosts, err := ss.store.APIHosts(ctx)
	if err != nil {
		return fmt.Errorf("failed to read seeded hosts: %w", err)
	}
	if len(hosts) == 0 {
		ss.logger.Warn("no api hosts after seeding, resolution will go straight to cloud fallback")
	}

	ss.logger.Info("seed synced",
		logger.Int("api_hosts", len(hosts)),
		logger.Int("clouds", len(ss.seed.Clouds)))

	return nil
}
