package activity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordEdit diffs two snapshots of an incident and, when anything changed,
// writes a single system-edit entry covering every changed field. Returns
// nil when the edit was a no-op.
func (s *Service) RecordEdit(ctx context.Context, incidentID uuid.UUID, actorID, actorName string, before, after Snapshot) (*Entry, error) {
	entry := NewEditEntry(incidentID, actorID, actorName, Diff(before, after))
	if entry == nil {
		return nil, nil
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordCreated writes the initial entry for a newly submitted incident.
func (s *Service) RecordCreated(ctx context.Context, incidentID uuid.UUID, actorID, actorName string) (*Entry, error) {
	entry := &Entry{
		IncidentID: incidentID,
		Type:       TypeSystemEdit,
		Title:      "Incident Created",
		ActorID:    actorID,
		ActorName:  actorName,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordLifecycle writes an entry for an archive, restore or delete
// transition, e.g. "Incident Archived".
func (s *Service) RecordLifecycle(ctx context.Context, incidentID uuid.UUID, actorID, actorName, title string) (*Entry, error) {
	entry := &Entry{
		IncidentID: incidentID,
		Type:       TypeSystemEdit,
		Title:      title,
		ActorID:    actorID,
		ActorName:  actorName,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// AddEntry records a manual feed entry (call, appointment, note or
// voice-agent). System-edit entries can only be produced by the service
// itself.
func (s *Service) AddEntry(ctx context.Context, e *Entry) error {
	if e.IncidentID == uuid.Nil {
		return fmt.Errorf("incident_id is required")
	}
	if !ValidType(e.Type) {
		return fmt.Errorf("invalid entry type %q", e.Type)
	}
	if e.Type == TypeSystemEdit {
		return fmt.Errorf("system-edit entries cannot be created directly")
	}
	if e.Title == "" {
		return fmt.Errorf("title is required")
	}
	return s.repo.Create(ctx, e)
}

func (s *Service) ListByIncident(ctx context.Context, incidentID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListByIncident(ctx, incidentID, limit, offset)
}
