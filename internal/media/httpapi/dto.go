package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/vod-platform/internal/media/models"
)

type EditMediaRequest struct {
	Title *string `json:"title"`
}

type UploadResponse struct {
	Status            string           `json:"status"`
	DetectedMediaKind models.MediaKind `json:"detected_media_kind"`
	URL               string           `json:"url"`
}

type MediaResponse struct {
	Status        models.Status    `json:"status"`
	MediaUUID     uuid.UUID        `json:"media_uuid"`
	Title         string           `json:"title"`
	MediaKind     models.MediaKind `json:"media_kind"`
	OwnerIdentity string           `json:"owner_identity"`
	CreatedAt     time.Time        `json:"created_at"`
	VODURL        string           `json:"vod_url"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
