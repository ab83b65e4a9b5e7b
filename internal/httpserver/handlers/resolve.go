package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/lineup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/lineup/internal/logger"
)

// Resolve triggers a manual resolution. It is ignored while one is running.
func Resolve(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Session.Snapshot().Loading {
			d.Logger.Warn("resolution already in progress",
				logger.String("remote_ip", r.RemoteAddr))
			writeText(w, d, http.StatusTooManyRequests, "⏳ Resolution already in progress, please wait\n")
			return
		}

		select {
		case d.ResolveTrigger <- struct{}{}:
			d.Logger.Info("manual resolution triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeText(w, d, http.StatusAccepted, "✅ Resolution triggered successfully\n")
		default:
			d.Logger.Warn("resolution already queued",
				logger.String("remote_ip", r.RemoteAddr))
			writeText(w, d, http.StatusTooManyRequests, "⏳ Resolution already queued, please wait\n")
		}
	}
}

func writeText(w http.ResponseWriter, d deps.Deps, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(msg)); err != nil {
		d.Logger.Debug("failed to write response", logger.Error(err))
	}
}
