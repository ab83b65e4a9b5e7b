package deps

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrSnakeDoc/lineup/internal/logger"
	"github.com/MrSnakeDoc/lineup/internal/resolver"
	"github.com/MrSnakeDoc/lineup/internal/store"
)

// SessionSource exposes the state of the running or last resolution.
type SessionSource interface {
	Snapshot() resolver.Session
}

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time    // for testing, defaults to time.Now
	AllowedCIDRS   []string            // IPs allowed to trigger a resolution
	TrustProxy     bool                // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Store          store.HostStore     // resolved endpoints, advert and candidates
	StoreBackend   string              // "redis" | "memory"
	Session        SessionSource       // resolver session snapshots
	ResolveTrigger chan struct{}       // Channel to trigger a manual resolution
	ResolveBurst   int                 // manual triggers allowed in a burst, per client
	ResolvePerMin  int                 // manual trigger refill rate, per client
	Gatherer       prometheus.Gatherer // served on /metrics
}
