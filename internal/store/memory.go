package store

import (
	"context"
	"slices"
	"sync"

	"github.com/MrSnakeDoc/lineup/internal/domain"
)

// Memory is an in-process HostStore, used when no Redis is configured.
type Memory struct {
	mu        sync.RWMutex
	apiHosts  []string
	clouds    []domain.CloudSource
	endpoints domain.Endpoints
	advert    *domain.AdvertAsset
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) APIHosts(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.apiHosts), nil
}

// SetAPIHosts replaces the candidate list.
func (m *Memory) SetAPIHosts(_ context.Context, hosts []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.apiHosts = slices.Clone(hosts)
	return nil
}

func (m *Memory) RemoveAPIHost(_ context.Context, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.apiHosts = slices.DeleteFunc(m.apiHosts, func(h string) bool { return h == host })
	return nil
}

func (m *Memory) Clouds(_ context.Context) ([]domain.CloudSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.clouds), nil
}

func (m *Memory) SetClouds(_ context.Context, clouds []domain.CloudSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clouds = slices.Clone(clouds)
	return nil
}

func (m *Memory) Endpoints(_ context.Context) (domain.Endpoints, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.endpoints, nil
}

func (m *Memory) SetAPIEndpoint(_ context.Context, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.endpoints.API = host
	return nil
}

func (m *Memory) SetFrontendEndpoint(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.endpoints.Frontend = url
	return nil
}

func (m *Memory) Advert(_ context.Context) (*domain.AdvertAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.advert == nil {
		return nil, nil
	}
	a := *m.advert
	return &a, nil
}

func (m *Memory) SetAdvert(_ context.Context, asset domain.AdvertAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.advert = &asset
	return nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }
