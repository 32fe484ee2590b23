package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sitesafe/sitesafe/internal/domain/activity"
	"github.com/sitesafe/sitesafe/internal/domain/draft"
	"github.com/sitesafe/sitesafe/internal/platform/auth"
	"github.com/sitesafe/sitesafe/pkg/casenotes"
)

// Wizard holds the in-progress report/edit sessions. A session is keyed by
// its draft key: a fresh uuid for a new report, the incident id for an edit,
// so reopening the same incident always lands on the same draft slot.
type Wizard struct {
	svc    *Service
	drafts *draft.Engine
	log    zerolog.Logger

	ttl      time.Duration
	interval time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	key        string
	incidentID uuid.UUID // Nil for new reports
	edit       bool
	order      []string
	tab        int
	fields     map[string]interface{}
	touched    map[string]bool
	dirty      bool
	hydrated   activity.Snapshot // frozen at hydration, edit sessions only
	submitting bool
	lastActive time.Time
	actor      auth.Identity
}

// sessionSnapshot is what gets persisted into the draft slot.
type sessionSnapshot struct {
	IncidentID string                 `json:"incident_id,omitempty"`
	Tab        string                 `json:"tab"`
	Fields     map[string]interface{} `json:"fields"`
	Touched    []string               `json:"touched,omitempty"`
}

// SessionState is the wire representation of a session.
type SessionState struct {
	Key        string                 `json:"key"`
	Mode       string                 `json:"mode"`
	IncidentID string                 `json:"incident_id,omitempty"`
	Tab        string                 `json:"tab"`
	TabOrder   []string               `json:"tab_order"`
	Fields     map[string]interface{} `json:"fields"`
	Errors     map[string]string      `json:"errors,omitempty"`
	Dirty      bool                   `json:"dirty"`
	LastSaved  *time.Time             `json:"last_saved,omitempty"`
}

// StartRequest opens a session. IncidentID switches to edit mode; DraftKey
// reattaches to a previous new-report session's draft.
type StartRequest struct {
	IncidentID string `json:"incident_id,omitempty"`
	DraftKey   string `json:"draft_key,omitempty"`
}

// SubmitResult is returned on a successful submit.
type SubmitResult struct {
	IncidentID string `json:"incident_id"`
	Created    bool   `json:"created"`
}

func NewWizard(svc *Service, drafts *draft.Engine, log zerolog.Logger, ttl, interval time.Duration) *Wizard {
	return &Wizard{
		svc:      svc,
		drafts:   drafts,
		log:      log.With().Str("component", "wizard").Logger(),
		ttl:      ttl,
		interval: interval,
		sessions: make(map[string]*session),
	}
}

// Run drives the periodic autosave: every interval, dirty sessions are
// flushed to their draft slots and idle sessions past the TTL are dropped.
// Blocks until ctx is canceled.
func (w *Wizard) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Wizard) tick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	for key, s := range w.sessions {
		if now.Sub(s.lastActive) > w.ttl {
			w.log.Info().Str("key", key).Msg("expiring idle wizard session")
			delete(w.sessions, key)
			continue
		}
		if s.dirty {
			w.autosaveLocked(s)
		}
	}
}

// autosaveLocked fires a background draft save and clears the dirty flag.
// The session stays eligible for future saves; failures never surface here.
func (w *Wizard) autosaveLocked(s *session) {
	snap := sessionSnapshot{
		Tab:    s.order[s.tab],
		Fields: s.fields,
	}
	if s.incidentID != uuid.Nil {
		snap.IncidentID = s.incidentID.String()
	}
	for f := range s.touched {
		snap.Touched = append(snap.Touched, f)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		w.log.Warn().Err(err).Str("key", s.key).Msg("draft snapshot marshal failed")
		return
	}
	w.drafts.Save(s.key, raw)
	s.dirty = false
}

// Start opens a session. Edit sessions hydrate from the persisted record and
// freeze the audit snapshot; if a draft slot already exists for the key, the
// recovered draft wins over the persisted fields.
func (w *Wizard) Start(ctx context.Context, req StartRequest, actor auth.Identity) (*SessionState, error) {
	s := &session{
		fields:     make(map[string]interface{}),
		touched:    make(map[string]bool),
		lastActive: time.Now(),
		actor:      actor,
	}

	if req.IncidentID != "" {
		id, err := uuid.Parse(req.IncidentID)
		if err != nil {
			return nil, fmt.Errorf("invalid incident_id")
		}
		inc, err := w.svc.FetchForEdit(ctx, id, actor)
		if err != nil {
			return nil, err
		}
		s.incidentID = id
		s.edit = true
		s.key = id.String()
		s.fields = inc.FieldMap()
		s.hydrated = AuditSnapshot(s.fields)
	} else {
		s.key = req.DraftKey
		if s.key == "" {
			s.key = uuid.New().String()
		}
	}
	s.order = TabOrder(s.edit)

	w.recover(ctx, s)

	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.sessions[s.key]; ok {
		// One wizard instance per draft key; reattach to the live session.
		existing.lastActive = time.Now()
		return w.stateLocked(existing), nil
	}
	w.sessions[s.key] = s
	return w.stateLocked(s), nil
}

// recover overlays a persisted draft slot onto a freshly opened session, so
// a killed session resumes with its last autosaved snapshot instead of an
// empty form or the stale persisted record.
func (w *Wizard) recover(ctx context.Context, s *session) {
	slot, err := w.drafts.Load(ctx, s.key)
	if err != nil || len(slot.Snapshot) == 0 {
		return
	}
	var snap sessionSnapshot
	if err := json.Unmarshal(slot.Snapshot, &snap); err != nil {
		w.log.Warn().Err(err).Str("key", s.key).Msg("unreadable draft snapshot, ignoring")
		return
	}
	if len(snap.Fields) > 0 {
		s.fields = snap.Fields
	}
	for _, f := range snap.Touched {
		s.touched[f] = true
	}
	for i, tab := range s.order {
		if tab == snap.Tab {
			s.tab = i
			break
		}
	}
	w.log.Info().Str("key", s.key).Msg("recovered wizard session from draft")
}

func (w *Wizard) get(key string) (*session, error) {
	s, ok := w.sessions[key]
	if !ok {
		return nil, ErrSessionExpired
	}
	s.lastActive = time.Now()
	return s, nil
}

// State returns the current session state.
func (w *Wizard) State(key string) (*SessionState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.get(key)
	if err != nil {
		return nil, err
	}
	return w.stateLocked(s), nil
}

// SetFields merges a partial field patch into the working draft and marks
// the session dirty. Unknown field keys are rejected whole.
func (w *Wizard) SetFields(key string, patch map[string]interface{}) (*SessionState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.get(key)
	if err != nil {
		return nil, err
	}
	for f := range patch {
		if !KnownField(f) {
			return nil, fmt.Errorf("unknown field %q", f)
		}
	}
	for f, v := range patch {
		s.fields[f] = v
		s.touched[f] = true
	}
	// Combined-notes shim: a pasted notes blob carrying a transcript is
	// split across the two stored fields.
	if raw, ok := patch["case_notes"]; ok {
		if _, explicit := patch["call_transcript"]; !explicit {
			if notes := asString(raw); casenotes.HasTranscript(notes) {
				n, tr := casenotes.Split(notes)
				s.fields["case_notes"] = n
				s.fields["call_transcript"] = tr
				s.touched["call_transcript"] = true
			}
		}
	}
	s.dirty = true
	return w.stateLocked(s), nil
}

// Advance validates the active tab. On failure the tab does not move and the
// returned state carries the field errors; on success the departure
// triggers an autosave and the pointer moves to the next tab.
func (w *Wizard) Advance(key string) (*SessionState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.get(key)
	if err != nil {
		return nil, err
	}
	errs := ValidateTab(s.order[s.tab], s.fields)
	if len(errs) > 0 {
		st := w.stateLocked(s)
		st.Errors = errs
		return st, nil
	}
	w.autosaveLocked(s)
	if s.tab < len(s.order)-1 {
		s.tab++
	}
	return w.stateLocked(s), nil
}

// Retreat always moves back one tab. Leaving a tab is an autosave trigger
// regardless of direction or dirty state.
func (w *Wizard) Retreat(key string) (*SessionState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.get(key)
	if err != nil {
		return nil, err
	}
	w.autosaveLocked(s)
	if s.tab > 0 {
		s.tab--
	}
	return w.stateLocked(s), nil
}

// SaveDraft is the explicit "save draft" action: a synchronous save whose
// outcome the caller sees.
func (w *Wizard) SaveDraft(ctx context.Context, key string) (*SessionState, error) {
	w.mu.Lock()
	s, err := w.get(key)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	snap := sessionSnapshot{Tab: s.order[s.tab], Fields: s.fields}
	if s.incidentID != uuid.Nil {
		snap.IncidentID = s.incidentID.String()
	}
	for f := range s.touched {
		snap.Touched = append(snap.Touched, f)
	}
	raw, merr := json.Marshal(snap)
	w.mu.Unlock()

	if merr != nil {
		return nil, merr
	}
	if err := w.drafts.SaveSync(ctx, key, raw); err != nil {
		return nil, fmt.Errorf("saving draft: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	s, err = w.get(key)
	if err != nil {
		return nil, err
	}
	s.dirty = false
	return w.stateLocked(s), nil
}

// Submit runs full-document validation and commits the draft. On validation
// failure the session halts at the first failing tab with every current
// error. While one submit is in flight, repeat submits are rejected; the
// session is untouched on backend failure so the user can retry.
func (w *Wizard) Submit(ctx context.Context, key string) (*SubmitResult, *SessionState, error) {
	w.mu.Lock()
	s, err := w.get(key)
	if err != nil {
		w.mu.Unlock()
		return nil, nil, err
	}
	if s.submitting {
		w.mu.Unlock()
		return nil, nil, ErrSubmitInFlight
	}

	failTab, errs := ValidateAll(s.fields, s.edit)
	if failTab != "" {
		for i, tab := range s.order {
			if tab == failTab {
				s.tab = i
				break
			}
		}
		st := w.stateLocked(s)
		st.Errors = errs
		w.mu.Unlock()
		return nil, st, &ValidationError{Tab: failTab, Fields: errs}
	}

	s.submitting = true
	edit := s.edit
	incidentID := s.incidentID
	actor := s.actor
	fields := make(map[string]interface{}, len(s.fields))
	for f, v := range s.fields {
		fields[f] = v
	}
	sparse := make(map[string]interface{}, len(s.touched))
	for f := range s.touched {
		sparse[f] = s.fields[f]
	}
	before := s.hydrated
	w.mu.Unlock()

	result, err := w.commit(ctx, edit, incidentID, fields, sparse, before, actor)
	if err == nil {
		if derr := w.drafts.Discard(ctx, key); derr != nil {
			w.log.Warn().Err(derr).Str("key", key).Msg("failed to delete draft slot after submit")
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.sessions[key]; ok {
		cur.submitting = false
	}
	if err != nil {
		return nil, nil, err
	}
	delete(w.sessions, key)
	return result, nil, nil
}

func (w *Wizard) commit(ctx context.Context, edit bool, incidentID uuid.UUID, fields, sparse map[string]interface{}, before activity.Snapshot, actor auth.Identity) (*SubmitResult, error) {
	var result SubmitResult
	if edit {
		// Sparse update: only fields the session actually touched are sent,
		// so untouched fields can never be clobbered.
		if err := w.svc.Update(ctx, incidentID, sparse, actor); err != nil {
			return nil, err
		}
		w.svc.RecordEditDiff(ctx, incidentID, before, AuditSnapshot(fields), actor)
		result = SubmitResult{IncidentID: incidentID.String()}
	} else {
		inc := &Incident{}
		ApplyFields(inc, fields)
		if err := w.svc.Create(ctx, inc, actor); err != nil {
			return nil, err
		}
		result = SubmitResult{IncidentID: inc.ID.String(), Created: true}
	}
	return &result, nil
}

// Discard deletes the draft slot and drops the session.
func (w *Wizard) Discard(ctx context.Context, key string) error {
	w.mu.Lock()
	delete(w.sessions, key)
	w.mu.Unlock()
	// Clears the slot even for orphaned keys with no live session.
	return w.drafts.Discard(ctx, key)
}

func (w *Wizard) stateLocked(s *session) *SessionState {
	// Handlers marshal the state after the mutex is released, so the live
	// field map must not leak out of the lock.
	fields := make(map[string]interface{}, len(s.fields))
	for f, v := range s.fields {
		fields[f] = v
	}
	st := &SessionState{
		Key:      s.key,
		Mode:     "create",
		Tab:      s.order[s.tab],
		TabOrder: s.order,
		Fields:   fields,
		Dirty:    s.dirty,
	}
	if s.edit {
		st.Mode = "edit"
		st.IncidentID = s.incidentID.String()
	}
	if saved := w.drafts.LastSaved(s.key); !saved.IsZero() {
		st.LastSaved = &saved
	}
	return st
}
