package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"
)

func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /media", h.UploadMedia)
	mux.HandleFunc("GET /media/{uuid}", h.GetMedia)
	mux.HandleFunc("PUT /media/{uuid}", h.EditMedia)
	mux.HandleFunc("DELETE /media/{uuid}", h.DeleteMedia)

	mux.HandleFunc("GET /media/playback/{uuid}/{segment}", h.ServePlayback)

	access := hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("took", d).
			Msg("request")
	})
	return hlog.NewHandler(h.logger)(access(mux))
}
