package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	CreatedStatus    Status = "created"
	QueuedStatus     Status = "queued"
	ProcessingStatus Status = "processing"
	ReadyStatus      Status = "ready"
)

// ParseStatus maps a stored value onto the closed set of lifecycle statuses.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case CreatedStatus, QueuedStatus, ProcessingStatus, ReadyStatus:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, s)
	}
}

type MediaKind string

const (
	Audio             MediaKind = "audio"
	Video             MediaKind = "video"
	VideoWithoutAudio MediaKind = "video_without_audio"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case Audio, Video, VideoWithoutAudio:
		return MediaKind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown media kind %q", ErrInvalidArgument, s)
	}
}

type Media struct {
	ID            int64     `db:"id"`
	UUID          uuid.UUID `db:"uuid"`
	OwnerIdentity string    `db:"owner_identity"`
	Kind          MediaKind `db:"media_kind"`
	Title         string    `db:"title"`
	Status        Status    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// OwnedBy reports whether identity may mutate the record.
func (m *Media) OwnedBy(identity string) bool {
	return identity != "" && m.OwnerIdentity == identity
}
