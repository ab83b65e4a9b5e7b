package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/lineup/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready       bool   `json:"ready"`
	APIEndpoint string `json:"api_endpoint,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Readyz reports ready once the store answers and an API endpoint is resolved.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		resp := readyzResponse{}
		switch ep, err := d.Store.Endpoints(ctx); {
		case err != nil:
			resp.Reason = "store unavailable"
		case ep.API == "":
			resp.Reason = "no api endpoint resolved"
		default:
			resp.Ready = true
			resp.APIEndpoint = ep.API
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Ready {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
