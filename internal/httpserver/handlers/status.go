package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/lineup/internal/domain"
	"github.com/MrSnakeDoc/lineup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/lineup/internal/resolver"
)

type storeStatus struct {
	OK      bool   `json:"ok"`
	Backend string `json:"backend"`
	Error   string `json:"error,omitempty"`
}

type advertStatus struct {
	Image    string `json:"image"`
	URL      string `json:"url,omitempty"`
	Name     string `json:"name,omitempty"`
	Position *int   `json:"position,omitempty"`
	DataURI  string `json:"data_uri,omitempty"`
}

type statusResponse struct {
	Mode       string           `json:"mode"`
	Endpoints  domain.Endpoints `json:"endpoints"`
	Candidates []string         `json:"candidates"`
	Session    resolver.Session `json:"session"`
	Advert     *advertStatus    `json:"advert,omitempty"`
	Store      storeStatus      `json:"store"`
}

// Status returns what the presenting layer needs: resolved endpoints, the
// current advert and the diagnostic lists of the last resolution.
// ?advert=full includes the decrypted data URI.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := statusResponse{
			Session:    d.Session.Snapshot(),
			Candidates: []string{},
			Store:      checkStore(ctx, d),
		}

		if resp.Store.OK {
			if ep, err := d.Store.Endpoints(ctx); err == nil {
				resp.Endpoints = ep
			}
			if hosts, err := d.Store.APIHosts(ctx); err == nil && hosts != nil {
				resp.Candidates = hosts
			}
			if ad, err := d.Store.Advert(ctx); err == nil && ad != nil {
				resp.Advert = &advertStatus{Image: ad.Image, URL: ad.URL, Name: ad.Name, Position: ad.Position}
				if r.URL.Query().Get("advert") == "full" {
					resp.Advert.DataURI = ad.DataURI
				}
			}
		}
		resp.Mode = determineMode(resp)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func determineMode(s statusResponse) string {
	switch {
	case s.Session.Loading:
		return "resolving"
	case !s.Store.OK:
		return "degraded"
	case s.Endpoints.API == "":
		return "unavailable"
	default:
		return "resolved"
	}
}

func checkStore(ctx context.Context, d deps.Deps) storeStatus {
	st := storeStatus{OK: true, Backend: d.StoreBackend}
	if err := d.Store.Ping(ctx); err != nil {
		st.OK = false
		st.Error = err.Error()
	}
	return st
}
