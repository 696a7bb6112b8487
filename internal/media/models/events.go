package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	AggregateID() uuid.UUID
	OccurredAt() time.Time
}

const MediaReadyEventType = "MediaReady"

// SearchDocument is the denormalized projection of a ready record kept in the search index.
type SearchDocument struct {
	MediaUUID     uuid.UUID `json:"media_uuid"`
	OwnerIdentity string    `json:"owner_identity"`
	Title         string    `json:"title"`
	Kind          MediaKind `json:"media_kind"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewSearchDocument(m *Media) SearchDocument {
	return SearchDocument{
		MediaUUID:     m.UUID,
		OwnerIdentity: m.OwnerIdentity,
		Title:         m.Title,
		Kind:          m.Kind,
		CreatedAt:     m.CreatedAt,
	}
}

// MediaReady is recorded in the outbox in the same transaction that marks a record ready.
type MediaReady struct {
	eventID    uuid.UUID
	document   SearchDocument
	occurredAt time.Time
}

func NewMediaReady(m *Media, at time.Time) *MediaReady {
	return &MediaReady{
		eventID:    uuid.New(),
		document:   NewSearchDocument(m),
		occurredAt: at,
	}
}

func (e *MediaReady) EventID() uuid.UUID     { return e.eventID }
func (e *MediaReady) EventType() string      { return MediaReadyEventType }
func (e *MediaReady) AggregateID() uuid.UUID { return e.document.MediaUUID }
func (e *MediaReady) OccurredAt() time.Time  { return e.occurredAt }

func (e *MediaReady) Document() SearchDocument { return e.document }

// MarshalJSON stores only the search document; the envelope lives in outbox columns.
func (e *MediaReady) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.document)
}
