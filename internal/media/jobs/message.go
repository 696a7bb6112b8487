package jobs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/romariotrain/vod-platform/internal/media/models"
)

// MessageVersion is bumped whenever the payload changes incompatibly.
const MessageVersion = 1

var ErrMalformedMessage = errors.New("malformed transcode message")

// Message is the broker payload instructing a worker to transcode one upload.
type Message struct {
	Version       int              `json:"v"`
	MediaUUID     uuid.UUID        `json:"media_uuid"`
	MediaKind     models.MediaKind `json:"media_kind"`
	OwnerIdentity string           `json:"owner_identity"`
}

func NewMessage(m *models.Media) Message {
	return Message{
		Version:       MessageVersion,
		MediaUUID:     m.UUID,
		MediaKind:     m.Kind,
		OwnerIdentity: m.OwnerIdentity,
	}
}

// Key partitions messages by media so redeliveries of one upload stay ordered.
func (m Message) Key() string {
	return m.MediaUUID.String()
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.Version != MessageVersion {
		return Message{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedMessage, m.Version)
	}
	if m.MediaUUID == uuid.Nil {
		return Message{}, fmt.Errorf("%w: missing media_uuid", ErrMalformedMessage)
	}
	if _, err := models.ParseMediaKind(string(m.MediaKind)); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.OwnerIdentity == "" {
		return Message{}, fmt.Errorf("%w: missing owner_identity", ErrMalformedMessage)
	}
	return m, nil
}
