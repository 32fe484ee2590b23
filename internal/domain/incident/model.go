package incident

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Lifecycle states. Transitions are enforced in the repository layer:
// active -> archived (archive), archived -> active (restore), and
// active|archived -> deleted (soft delete). There is no restore path out of
// deleted on this surface.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
	StatusDeleted  = "deleted"
)

var (
	ErrNotFound       = errors.New("incident not found")
	ErrSessionExpired = errors.New("wizard session not found")
	ErrSubmitInFlight = errors.New("submit already in progress")
)

// Incident is one injury report. Date and time of injury are kept as the
// form values the reporter entered ("2026-08-14", "14:30"); timestamps the
// server assigns are real timestamps.
type Incident struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`

	// Notifier: the person who reported the incident.
	NotifierName         string `json:"notifier_name"`
	NotifierRole         string `json:"notifier_role,omitempty"`
	NotifierPhone        string `json:"notifier_phone,omitempty"`
	NotifierEmail        string `json:"notifier_email,omitempty"`
	NotifierRelationship string `json:"notifier_relationship,omitempty"`

	// Worker: the injured person.
	WorkerID   string `json:"worker_id,omitempty"`
	WorkerName string `json:"worker_name"`
	Occupation string `json:"occupation,omitempty"`
	EmployerID string `json:"employer_id"`

	// Where and when.
	SiteID       string `json:"site_id,omitempty"`
	SiteName     string `json:"site_name"`
	SiteLocation string `json:"site_location,omitempty"`
	DateOfInjury string `json:"date_of_injury"`
	TimeOfInjury string `json:"time_of_injury,omitempty"`
	DateReported string `json:"date_reported,omitempty"`

	// Injury classification.
	InjuryType     string `json:"injury_type"`
	Severity       string `json:"severity"`
	Classification string `json:"classification,omitempty"`
	BodyPart       string `json:"body_part,omitempty"`
	BodySide       string `json:"body_side,omitempty"`

	// Narrative.
	Description string `json:"description"`
	Mechanism   string `json:"mechanism,omitempty"`
	WitnessName string `json:"witness_name,omitempty"`

	// Treatment.
	TreatmentType     string `json:"treatment_type,omitempty"`
	TreatmentProvider string `json:"treatment_provider,omitempty"`
	TreatmentDetails  string `json:"treatment_details,omitempty"`
	ReferredTo        string `json:"referred_to,omitempty"`

	// Follow-up.
	Actions        []string `json:"actions,omitempty"`
	CaseNotes      string   `json:"case_notes,omitempty"`
	CallTranscript string   `json:"call_transcript,omitempty"`
	DocumentRefs   []string `json:"document_refs,omitempty"`
	CostEstimate   string   `json:"cost_estimate,omitempty"`

	// Lifecycle bookkeeping.
	ArchivedBy string     `json:"archived_by,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	DeletedBy  string     `json:"deleted_by,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter narrows incident listings. Role and EmployerScope come from the
// authenticated actor and are applied in the repository: non-admin callers
// only see their own employer's incidents.
type ListFilter struct {
	Status        string
	SiteID        string
	Search        string
	Role          string
	EmployerScope string
}
