package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/lineup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/lineup/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/lineup/internal/httpserver/mw"
)

func init() { Register(registerResolve) }

func registerResolve(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.ResolveBurst,
		RefillPerIPPerMin: d.ResolvePerMin,
		TrustProxy:        d.TrustProxy,
		Now:               d.TimeNow,
	})
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger), limit).Post("/resolve", handlers.Resolve(d))
}
