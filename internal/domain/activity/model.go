package activity

import (
	"time"

	"github.com/google/uuid"
)

// Entry types. Manual entries are created by users through the activity
// feed; system-edit entries are generated when an incident edit is saved.
const (
	TypeCall        = "call"
	TypeAppointment = "appointment"
	TypeNote        = "note"
	TypeVoiceAgent  = "voice-agent"
	TypeSystemEdit  = "system-edit"
)

// Entry is one row in an incident's activity feed.
type Entry struct {
	ID          uuid.UUID              `json:"id"`
	IncidentID  uuid.UUID              `json:"incident_id"`
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ActorID     string                 `json:"actor_id,omitempty"`
	ActorName   string                 `json:"actor_name,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// FieldChange records one field's before and after values inside a
// system-edit entry's metadata.
type FieldChange struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// ValidType reports whether t is a recognized entry type.
func ValidType(t string) bool {
	switch t {
	case TypeCall, TypeAppointment, TypeNote, TypeVoiceAgent, TypeSystemEdit:
		return true
	}
	return false
}
