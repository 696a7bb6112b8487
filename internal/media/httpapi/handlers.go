package httpapi

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/romariotrain/vod-platform/internal/auth"
	"github.com/romariotrain/vod-platform/internal/media/models"
	"github.com/romariotrain/vod-platform/internal/media/service"
)

const (
	playlistFile    = "playlist.m3u8"
	multipartMemory = 32 << 20
)

type Config struct {
	PublicURL      string
	MaxUploadBytes int64
	UploaderRole   string
	Logger         zerolog.Logger
}

type Handler struct {
	svc      *service.Service
	verifier auth.Verifier
	cfg      Config
	logger   zerolog.Logger
}

func New(svc *service.Service, verifier auth.Verifier, cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 1 << 30
	}
	return &Handler{
		svc:      svc,
		verifier: verifier,
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authenticate(h.verifier, r)
	if err != nil || !identity.HasRole(h.cfg.UploaderRole) {
		writeStatus(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeStatus(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeStatus(w, http.StatusBadRequest, "file not supplied")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "file not supplied")
		return
	}
	defer file.Close()

	title := service.DefaultTitle
	if values, ok := r.MultipartForm.Value["title"]; ok && len(values) > 0 {
		title = values[0]
	}

	m, err := h.svc.Ingest(r.Context(), service.IngestRequest{
		Owner:    identity.Subject,
		Filename: header.Filename,
		Title:    title,
		File:     file,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Status:            "success",
		DetectedMediaKind: m.Kind,
		URL:               h.cfg.PublicURL + "/media/" + m.UUID.String(),
	})
}

func (h *Handler) EditMedia(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authenticate(h.verifier, r)
	if err != nil {
		writeStatus(w, http.StatusUnauthorized, "invalid identity")
		return
	}

	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "bad request")
		return
	}

	var req EditMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.Title == nil {
		writeStatus(w, http.StatusBadRequest, "title not supplied")
		return
	}

	if err := h.svc.EditTitle(r.Context(), identity.Subject, id, *req.Title); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeStatus(w, http.StatusOK, "success")
}

func (h *Handler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authenticate(h.verifier, r)
	if err != nil {
		writeStatus(w, http.StatusUnauthorized, "invalid identity")
		return
	}

	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "bad request")
		return
	}

	if err := h.svc.Delete(r.Context(), identity.Subject, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeStatus(w, http.StatusOK, "success")
}

func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeStatus(w, http.StatusNotFound, "not found")
		return
	}

	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeStatus(w, http.StatusNotFound, "not found")
			return
		}
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toMediaResponse(m))
}

// ServePlayback streams one playlist or segment file. "playlist" is accepted
// as a short name for the playlist file.
func (h *Handler) ServePlayback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeStatus(w, http.StatusNotFound, "not found")
		return
	}

	segment := r.PathValue("segment")
	if segment == "playlist" {
		segment = playlistFile
	}
	if !fs.ValidPath(segment) || segment == "." {
		writeStatus(w, http.StatusNotFound, "not found")
		return
	}

	fsys, err := h.svc.Playback(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeStatus(w, http.StatusNotFound, "not found")
			return
		}
		h.writeError(w, r, err)
		return
	}

	info, err := fs.Stat(fsys, segment)
	if err != nil || info.IsDir() {
		writeStatus(w, http.StatusNotFound, "not found")
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	if ct := contentType(segment); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeFileFS(w, r, fsys, segment)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrMissingFile):
		writeStatus(w, http.StatusBadRequest, "file not supplied")
	case errors.Is(err, service.ErrUnsupportedType):
		writeStatus(w, http.StatusUnprocessableEntity, "disallowed filetype")
	case errors.Is(err, service.ErrInvalidTitle):
		writeStatus(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrUnclassifiable):
		writeStatus(w, http.StatusUnprocessableEntity, "media file could not be parsed")
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidArgument):
		writeStatus(w, http.StatusBadRequest, "bad request")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeStatus(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) toMediaResponse(m *models.Media) MediaResponse {
	return MediaResponse{
		Status:        m.Status,
		MediaUUID:     m.UUID,
		Title:         m.Title,
		MediaKind:     m.Kind,
		OwnerIdentity: m.OwnerIdentity,
		CreatedAt:     m.CreatedAt,
		VODURL:        h.cfg.PublicURL + "/media/playback/" + m.UUID.String() + "/" + playlistFile,
	}
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, StatusResponse{Status: message})
}
