package incident

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sitesafe/sitesafe/internal/domain/activity"
	"github.com/sitesafe/sitesafe/internal/platform/auth"
	"github.com/sitesafe/sitesafe/internal/platform/listcache"
	"github.com/sitesafe/sitesafe/pkg/casenotes"
)

// List cache buckets. Every write path that changes which incidents a list
// or count would return invalidates all of them.
const (
	CacheBucketList  = "incidents:list"
	CacheBucketCount = "incidents:count"
)

type Service struct {
	repo     Repository
	activity *activity.Service
	cache    *listcache.Store
	log      zerolog.Logger
}

func NewService(repo Repository, act *activity.Service, cache *listcache.Store, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		activity: act,
		cache:    cache,
		log:      log.With().Str("component", "incident").Logger(),
	}
}

// Create validates and persists a complete incident, writes the "Incident
// Created" activity entry and invalidates the list caches. Used by the
// wizard's submit path and by the direct create endpoint.
func (s *Service) Create(ctx context.Context, inc *Incident, actor auth.Identity) error {
	if tab, errs := ValidateAll(inc.FieldMap(), false); tab != "" {
		return &ValidationError{Tab: tab, Fields: errs}
	}
	// Migration shim for callers still sending one combined notes field:
	// notes and transcript are stored as two columns going forward.
	if inc.CallTranscript == "" && casenotes.HasTranscript(inc.CaseNotes) {
		inc.CaseNotes, inc.CallTranscript = casenotes.Split(inc.CaseNotes)
	}
	if err := s.repo.Create(ctx, inc); err != nil {
		return err
	}
	if _, err := s.activity.RecordCreated(ctx, inc.ID, actor.ID, actor.Name); err != nil {
		// The record is the source of truth; the audit trail is best-effort.
		s.log.Error().Err(err).Str("incident_id", inc.ID.String()).Msg("failed to record creation entry")
	}
	s.invalidateCaches()
	return nil
}

// FetchForEdit loads the fully joined record for the wizard, applying the
// actor's employer scope.
func (s *Service) FetchForEdit(ctx context.Context, id uuid.UUID, actor auth.Identity) (*Incident, error) {
	return s.repo.GetByID(ctx, id, actor.Role, actor.EmployerID)
}

// Update applies a sparse field update: only the keys present in fields are
// written. The audit diff is the caller's concern (the wizard carries the
// frozen snapshot); Update itself only moves data and drops caches.
func (s *Service) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}, actor auth.Identity) error {
	for key := range fields {
		if !KnownField(key) {
			return fmt.Errorf("unknown field %q", key)
		}
	}
	if err := s.repo.UpdateFields(ctx, id, actor.Role, actor.EmployerID, fields); err != nil {
		return err
	}
	s.invalidateCaches()
	return nil
}

// RecordEditDiff diffs the hydration snapshot against the submitted fields
// and writes the system-edit entry. A failed insert after a successful
// update is logged, never bubbled up.
func (s *Service) RecordEditDiff(ctx context.Context, id uuid.UUID, before, after activity.Snapshot, actor auth.Identity) {
	if _, err := s.activity.RecordEdit(ctx, id, actor.ID, actor.Name, before, after); err != nil {
		s.log.Error().Err(err).Str("incident_id", id.String()).Msg("failed to record edit entry")
	}
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Incident, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Count(ctx context.Context, f ListFilter) (int, error) {
	return s.repo.Count(ctx, f)
}

// Archive forwards the transition with the actor's display name. No current
// state is pre-checked here; the repository accepts or rejects.
func (s *Service) Archive(ctx context.Context, id uuid.UUID, actor auth.Identity) error {
	if err := s.repo.Archive(ctx, id, actor.Name); err != nil {
		return err
	}
	s.recordLifecycle(ctx, id, actor, "Incident Archived")
	s.invalidateCaches()
	return nil
}

func (s *Service) Restore(ctx context.Context, id uuid.UUID, actor auth.Identity) error {
	if err := s.repo.Restore(ctx, id); err != nil {
		return err
	}
	s.recordLifecycle(ctx, id, actor, "Incident Restored")
	s.invalidateCaches()
	return nil
}

func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID, actor auth.Identity) error {
	if err := s.repo.SoftDelete(ctx, id, actor.Name); err != nil {
		return err
	}
	s.recordLifecycle(ctx, id, actor, "Incident Deleted")
	s.invalidateCaches()
	return nil
}

func (s *Service) recordLifecycle(ctx context.Context, id uuid.UUID, actor auth.Identity, title string) {
	if _, err := s.activity.RecordLifecycle(ctx, id, actor.ID, actor.Name, title); err != nil {
		s.log.Error().Err(err).Str("incident_id", id.String()).Msg("failed to record lifecycle entry")
	}
}

func (s *Service) invalidateCaches() {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(CacheBucketList)
	s.cache.Invalidate(CacheBucketCount)
}
