// Package store persists candidate hosts, cloud sources, resolved endpoints
// and the current advert between resolutions.
package store

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/lineup/internal/domain"
)

// HostStore is the key/value surface the resolver works against.
// Implementations must be safe for concurrent use.
type HostStore interface {
	APIHosts(ctx context.Context) ([]string, error)
	SetAPIHosts(ctx context.Context, hosts []string) error
	// RemoveAPIHost deletes every occurrence of host. Removing an unknown
	// host is not an error.
	RemoveAPIHost(ctx context.Context, host string) error

	Clouds(ctx context.Context) ([]domain.CloudSource, error)
	SetClouds(ctx context.Context, clouds []domain.CloudSource) error

	Endpoints(ctx context.Context) (domain.Endpoints, error)
	SetAPIEndpoint(ctx context.Context, host string) error
	SetFrontendEndpoint(ctx context.Context, url string) error

	// Advert returns nil when no advert was stored yet.
	Advert(ctx context.Context) (*domain.AdvertAsset, error)
	SetAdvert(ctx context.Context, asset domain.AdvertAsset) error

	Ping(ctx context.Context) error
}

// Seed loads the seed into s. Cloud sources are always replaced. Candidate
// hosts are only written when reseed is set or the store has none, in which
// case the resolved endpoints are reset too.
func Seed(ctx context.Context, s HostStore, seed domain.Seed, reseed bool) error {
	if err := s.SetClouds(ctx, seed.Clouds); err != nil {
		return fmt.Errorf("failed to seed clouds: %w", err)
	}

	if !reseed {
		current, err := s.APIHosts(ctx)
		if err != nil {
			return fmt.Errorf("failed to read api hosts: %w", err)
		}
		if len(current) > 0 {
			return nil
		}
	}

	if err := s.SetAPIHosts(ctx, domain.FilterURLs(seed.APIHosts)); err != nil {
		return fmt.Errorf("failed to seed api hosts: %w", err)
	}
	if err := s.SetAPIEndpoint(ctx, ""); err != nil {
		return fmt.Errorf("failed to reset api endpoint: %w", err)
	}
	if err := s.SetFrontendEndpoint(ctx, ""); err != nil {
		return fmt.Errorf("failed to reset frontend endpoint: %w", err)
	}
	return nil
}
