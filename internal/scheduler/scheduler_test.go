package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/lineup/internal/domain"
	"github.com/MrSnakeDoc/lineup/internal/logger"
	"github.com/MrSnakeDoc/lineup/internal/resolver"
	"github.com/MrSnakeDoc/lineup/internal/store"
)

type countingResolver struct {
	calls atomic.Int32
	err   error
}

func (c *countingResolver) Resolve(context.Context) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}
	return "https://api.ext", nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestResolutionLoop_InitialAndManual(t *testing.T) {
	r := &countingResolver{}
	trigger := make(chan struct{}, 1)
	loop := NewResolutionLoop(r, logger.NewNop(), time.Hour, trigger)

	loop.Start(context.Background())
	defer loop.Stop()

	waitFor(t, func() bool { return r.calls.Load() == 1 })

	trigger <- struct{}{}
	waitFor(t, func() bool { return r.calls.Load() == 2 })
}

func TestResolutionLoop_Periodic(t *testing.T) {
	r := &countingResolver{err: resolver.ErrNoAvailableHost}
	loop := NewResolutionLoop(r, logger.NewNop(), 10*time.Millisecond, make(chan struct{}))

	loop.Start(context.Background())
	waitFor(t, func() bool { return r.calls.Load() >= 3 })
	loop.Stop()

	after := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if r.calls.Load() != after {
		t.Error("loop kept resolving after Stop()")
	}

	// second Stop must not panic
	loop.Stop()
}

func TestResolutionLoop_ContextCancel(t *testing.T) {
	r := &countingResolver{}
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewResolutionLoop(r, logger.NewNop(), time.Hour, make(chan struct{}))

	loop.Start(ctx)
	waitFor(t, func() bool { return r.calls.Load() == 1 })
	cancel()

	select {
	case <-loop.done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit on context cancel")
	}
}

func TestSeedSyncer_Sync(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seed := domain.Seed{
		APIHosts: []string{"https://a.ext/", "not a url"},
		Clouds:   []domain.CloudSource{{Name: "gitlab", URL: "https://gitlab.ext"}},
	}

	if err := NewSeedSyncer(mem, seed, true, logger.NewNop()).Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	hosts, _ := mem.APIHosts(ctx)
	if len(hosts) != 1 || hosts[0] != "https://a.ext" {
		t.Errorf("hosts = %v, want [https://a.ext]", hosts)
	}
	clouds, _ := mem.Clouds(ctx)
	if len(clouds) != 1 {
		t.Errorf("clouds = %v, want 1", clouds)
	}
}
