package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/syllabus-sync/constants"
)

// CalendarSyncState is the per user, per provider calendar connection.
type CalendarSyncState struct {
	UserID       string                     `json:"user_id"`
	Provider     string                     `json:"provider"`
	Status       constants.ConnectionStatus `json:"status"`
	AccountEmail string                     `json:"account_email,omitempty"`
	CalendarID   string                     `json:"calendar_id,omitempty"`
	Credential   []byte                     `json:"-"`
	PendingSince *time.Time                 `json:"pending_since,omitempty"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// SyncEventMapping links one date field of a syllabus to one external event.
type SyncEventMapping struct {
	SyllabusID      uuid.UUID               `json:"syllabus_id"`
	FieldKind       constants.DateFieldKind `json:"field_kind"`
	OccurrenceIndex int                     `json:"occurrence_index"`
	ExternalEventID string                  `json:"external_event_id"`
	SyncedDate      Date                    `json:"synced_date"`
	SyncedAt        time.Time               `json:"synced_at"`
}

// MappingKey identifies a SyncEventMapping.
type MappingKey struct {
	SyllabusID      uuid.UUID
	FieldKind       constants.DateFieldKind
	OccurrenceIndex int
}

func (m SyncEventMapping) Key() MappingKey {
	return MappingKey{SyllabusID: m.SyllabusID, FieldKind: m.FieldKind, OccurrenceIndex: m.OccurrenceIndex}
}
