package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/lineup/internal/logger"
	"github.com/MrSnakeDoc/lineup/internal/resolver"
)

// Resolver runs one top-level host resolution.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// ResolutionLoop resolves hosts once at start, then on every tick and on
// every manual trigger.
type ResolutionLoop struct {
	resolver      Resolver
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
	manualTrigger chan struct{}
}

// NewResolutionLoop creates a new resolution loop
func NewResolutionLoop(
	r Resolver,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *ResolutionLoop {
	return &ResolutionLoop{
		resolver:      r,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start launches the loop. The first resolution runs in the background so
// the HTTP surface can report progress while it is under way.
func (rl *ResolutionLoop) Start(ctx context.Context) {
	ticker := time.NewTicker(rl.interval)
	go func() {
		defer close(rl.done)
		defer ticker.Stop()

		rl.run(ctx, "initial")
		for {
			select {
			case <-ticker.C:
				rl.run(ctx, "periodic")
			case <-rl.manualTrigger:
				rl.logger.Info("manual resolution triggered")
				rl.run(ctx, "manual")
			case <-rl.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the loop and waits for the running resolution, if any.
func (rl *ResolutionLoop) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
	<-rl.done
}

func (rl *ResolutionLoop) run(ctx context.Context, reason string) {
	start := time.Now()
	host, err := rl.resolver.Resolve(ctx)

	switch {
	case errors.Is(err, resolver.ErrInProgress):
		rl.logger.Debug("resolution skipped, one is already running",
			logger.String("reason", reason))
	case errors.Is(err, resolver.ErrNoAvailableHost):
		rl.logger.Error("no available backend found",
			logger.String("reason", reason),
			logger.Duration("elapsed", time.Since(start)))
	case err != nil:
		rl.logger.Error("resolution failed",
			logger.String("reason", reason),
			logger.Error(err))
	default:
		rl.logger.Info("resolution done",
			logger.String("reason", reason),
			logger.String("host", host),
			logger.Duration("elapsed", time.Since(start)))
	}
}
