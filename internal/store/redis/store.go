package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/lineup/internal/domain"
	"github.com/MrSnakeDoc/lineup/internal/store"
)

var _ store.HostStore = (*Store)(nil)

// Store is a HostStore backed by Redis. Keys never expire; the host list is
// a Redis list so removals stay atomic under concurrent probes.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// APIHosts returns the candidate hosts in stored order
func (s *Store) APIHosts(ctx context.Context) ([]string, error) {
	hosts, err := s.client.LRange(ctx, KeyAPIHosts, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get api hosts: %w", err)
	}
	return hosts, nil
}

// SetAPIHosts replaces the candidate list in one transaction
func (s *Store) SetAPIHosts(ctx context.Context, hosts []string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, KeyAPIHosts)
		if len(hosts) > 0 {
			values := make([]interface{}, len(hosts))
			for i, h := range hosts {
				values[i] = h
			}
			pipe.RPush(ctx, KeyAPIHosts, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save api hosts: %w", err)
	}
	return nil
}

// RemoveAPIHost drops every occurrence of host from the candidate list
func (s *Store) RemoveAPIHost(ctx context.Context, host string) error {
	if err := s.client.LRem(ctx, KeyAPIHosts, 0, host).Err(); err != nil {
		return fmt.Errorf("failed to remove api host: %w", err)
	}
	return nil
}

func (s *Store) Clouds(ctx context.Context) ([]domain.CloudSource, error) {
	var clouds []domain.CloudSource
	found, err := s.getJSON(ctx, KeyClouds, &clouds)
	if err != nil {
		return nil, fmt.Errorf("failed to get clouds: %w", err)
	}
	if !found {
		return []domain.CloudSource{}, nil
	}
	return clouds, nil
}

func (s *Store) SetClouds(ctx context.Context, clouds []domain.CloudSource) error {
	if clouds == nil {
		clouds = []domain.CloudSource{}
	}
	if err := s.setJSON(ctx, KeyClouds, clouds); err != nil {
		return fmt.Errorf("failed to save clouds: %w", err)
	}
	return nil
}

// Endpoints reads both resolved endpoints; missing keys read as unresolved
func (s *Store) Endpoints(ctx context.Context) (domain.Endpoints, error) {
	vals, err := s.client.MGet(ctx, EndpointKey("api"), EndpointKey("frontend")).Result()
	if err != nil {
		return domain.Endpoints{}, fmt.Errorf("failed to get endpoints: %w", err)
	}

	var ep domain.Endpoints
	if v, ok := vals[0].(string); ok {
		ep.API = v
	}
	if v, ok := vals[1].(string); ok {
		ep.Frontend = v
	}
	return ep, nil
}

func (s *Store) SetAPIEndpoint(ctx context.Context, host string) error {
	if err := s.client.Set(ctx, EndpointKey("api"), host, 0).Err(); err != nil {
		return fmt.Errorf("failed to save api endpoint: %w", err)
	}
	return nil
}

func (s *Store) SetFrontendEndpoint(ctx context.Context, url string) error {
	if err := s.client.Set(ctx, EndpointKey("frontend"), url, 0).Err(); err != nil {
		return fmt.Errorf("failed to save frontend endpoint: %w", err)
	}
	return nil
}

func (s *Store) Advert(ctx context.Context) (*domain.AdvertAsset, error) {
	var asset domain.AdvertAsset
	found, err := s.getJSON(ctx, KeyAdvert, &asset)
	if err != nil {
		return nil, fmt.Errorf("failed to get advert: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &asset, nil
}

func (s *Store) SetAdvert(ctx context.Context, asset domain.AdvertAsset) error {
	if err := s.setJSON(ctx, KeyAdvert, asset); err != nil {
		return fmt.Errorf("failed to save advert: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.client.Set(ctx, key, data, 0).Err()
}
