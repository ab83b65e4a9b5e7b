package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/lineup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/lineup/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/lineup/internal/httpserver/mw"
)

func init() { Register(registerMetrics) }

func registerMetrics(r chi.Router, d deps.Deps) {
	if d.Gatherer == nil {
		return
	}
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)).Handle("/metrics", handlers.Metrics(d))
}
