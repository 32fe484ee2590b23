package incident

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sitesafe/sitesafe/internal/domain/activity"
	"github.com/sitesafe/sitesafe/internal/domain/draft"
	"github.com/sitesafe/sitesafe/internal/platform/auth"
	"github.com/sitesafe/sitesafe/internal/platform/listcache"
)

// -- mocks --

type mockIncidentRepo struct {
	mu         sync.Mutex
	incidents  map[uuid.UUID]*Incident
	lastSparse []string
	createErr  error
}

func newMockIncidentRepo() *mockIncidentRepo {
	return &mockIncidentRepo{incidents: make(map[uuid.UUID]*Incident)}
}

func (m *mockIncidentRepo) Create(ctx context.Context, inc *Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if inc.ID == uuid.Nil {
		inc.ID = uuid.New()
	}
	if inc.Status == "" {
		inc.Status = StatusActive
	}
	inc.CreatedAt = time.Now()
	inc.UpdatedAt = inc.CreatedAt
	cp := *inc
	m.incidents[inc.ID] = &cp
	return nil
}

func (m *mockIncidentRepo) GetByID(ctx context.Context, id uuid.UUID, role, scope string) (*Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	if role != "admin" && scope != "" && inc.EmployerID != scope {
		return nil, ErrNotFound
	}
	cp := *inc
	return &cp, nil
}

func (m *mockIncidentRepo) UpdateFields(ctx context.Context, id uuid.UUID, role, scope string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return ErrNotFound
	}
	m.lastSparse = nil
	for key := range fields {
		m.lastSparse = append(m.lastSparse, key)
	}
	ApplyFields(inc, fields)
	inc.UpdatedAt = time.Now()
	return nil
}

func (m *mockIncidentRepo) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Incident, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Incident
	for _, inc := range m.incidents {
		if f.Status != "" && inc.Status != f.Status {
			continue
		}
		if f.Status == "" && inc.Status == StatusDeleted {
			continue
		}
		cp := *inc
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockIncidentRepo) Count(ctx context.Context, f ListFilter) (int, error) {
	_, total, err := m.List(ctx, f, 0, 0)
	return total, err
}

func (m *mockIncidentRepo) Archive(ctx context.Context, id uuid.UUID, actorName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok || inc.Status == StatusDeleted {
		return ErrNotFound
	}
	now := time.Now()
	inc.Status = StatusArchived
	inc.ArchivedBy = actorName
	inc.ArchivedAt = &now
	return nil
}

func (m *mockIncidentRepo) Restore(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok || inc.Status == StatusDeleted {
		return ErrNotFound
	}
	inc.Status = StatusActive
	inc.ArchivedBy = ""
	inc.ArchivedAt = nil
	return nil
}

func (m *mockIncidentRepo) SoftDelete(ctx context.Context, id uuid.UUID, actorName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	inc.Status = StatusDeleted
	inc.DeletedBy = actorName
	inc.DeletedAt = &now
	return nil
}

type mockActivityRepo struct {
	mu      sync.Mutex
	entries []*activity.Entry
}

func (m *mockActivityRepo) Create(ctx context.Context, e *activity.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockActivityRepo) ListByIncident(ctx context.Context, incidentID uuid.UUID, limit, offset int) ([]*activity.Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*activity.Entry
	for _, e := range m.entries {
		if e.IncidentID == incidentID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *mockActivityRepo) forIncident(id uuid.UUID) []*activity.Entry {
	out, _, _ := m.ListByIncident(context.Background(), id, 100, 0)
	return out
}

type mockDraftRepo struct {
	mu    sync.Mutex
	slots map[string]*draft.Slot
}

func newMockDraftRepo() *mockDraftRepo {
	return &mockDraftRepo{slots: make(map[string]*draft.Slot)}
}

func (m *mockDraftRepo) Upsert(ctx context.Context, slot *draft.Slot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.slots[slot.Key]; ok && existing.Seq >= slot.Seq {
		return false, nil
	}
	cp := *slot
	cp.SavedAt = time.Now()
	m.slots[slot.Key] = &cp
	return true, nil
}

func (m *mockDraftRepo) Get(ctx context.Context, key string) (*draft.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (m *mockDraftRepo) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, key)
	return nil
}

// -- fixture --

type fixture struct {
	wizard    *Wizard
	svc       *Service
	incidents *mockIncidentRepo
	acts      *mockActivityRepo
	drafts    *mockDraftRepo
	engine    *draft.Engine
}

func newFixture() *fixture {
	incidents := newMockIncidentRepo()
	acts := &mockActivityRepo{}
	draftRepo := newMockDraftRepo()
	engine := draft.NewEngine(draftRepo, zerolog.Nop())
	svc := NewService(incidents, activity.NewService(acts), listcache.New(time.Minute), zerolog.Nop())
	w := NewWizard(svc, engine, zerolog.Nop(), time.Hour, time.Second)
	return &fixture{wizard: w, svc: svc, incidents: incidents, acts: acts, drafts: draftRepo, engine: engine}
}

var testActor = auth.Identity{ID: "u1", Name: "Kim Lee", Role: "admin"}

func (f *fixture) seedIncident(t *testing.T) *Incident {
	t.Helper()
	inc := &Incident{}
	ApplyFields(inc, validFields())
	inc.WitnessName = ""
	if err := f.incidents.Create(context.Background(), inc); err != nil {
		t.Fatalf("seeding incident: %v", err)
	}
	return inc
}

// -- tests --

func TestWizard_StartNewSession(t *testing.T) {
	f := newFixture()
	st, err := f.wizard.Start(context.Background(), StartRequest{}, testActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Mode != "create" || st.Tab != TabNotifier {
		t.Errorf("unexpected initial state: mode=%s tab=%s", st.Mode, st.Tab)
	}
	if st.Key == "" {
		t.Error("expected generated draft key")
	}
}

func TestWizard_AdvanceBlockedOnInvalidTab(t *testing.T) {
	f := newFixture()
	st, _ := f.wizard.Start(context.Background(), StartRequest{}, testActor)

	after, err := f.wizard.Advance(st.Key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Tab != TabNotifier {
		t.Errorf("advance moved off an invalid tab: %s", after.Tab)
	}
	if after.Errors["notifier_name"] == "" {
		t.Errorf("expected field error, got %v", after.Errors)
	}
}

func TestWizard_AdvanceMovesAndAutosaves(t *testing.T) {
	f := newFixture()
	st, _ := f.wizard.Start(context.Background(), StartRequest{}, testActor)
	if _, err := f.wizard.SetFields(st.Key, map[string]interface{}{"notifier_name": "Dana Reyes"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, err := f.wizard.Advance(st.Key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Tab != TabWorker {
		t.Errorf("expected worker tab, got %s", after.Tab)
	}

	f.engine.Flush()
	if _, err := f.drafts.Get(context.Background(), st.Key); err != nil {
		t.Error("expected draft slot after tab change")
	}
}

func TestWizard_RetreatAlwaysPermitted(t *testing.T) {
	f := newFixture()
	st, _ := f.wizard.Start(context.Background(), StartRequest{}, testActor)
	f.wizard.SetFields(st.Key, map[string]interface{}{"notifier_name": "Dana"})
	f.wizard.Advance(st.Key)

	// Invalidate the current tab; retreat must still move.
	f.wizard.SetFields(st.Key, map[string]interface{}{"worker_name": ""})
	after, err := f.wizard.Retreat(st.Key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Tab != TabNotifier {
		t.Errorf("expected notifier tab, got %s", after.Tab)
	}
}

func TestWizard_SubmitHaltsAtFirstFailingTab(t *testing.T) {
	f := newFixture()
	st, _ := f.wizard.Start(context.Background(), StartRequest{}, testActor)
	fields := validFields()
	delete(fields, "severity")
	f.wizard.SetFields(st.Key, fields)

	_, failState, err := f.wizard.Submit(context.Background(), st.Key)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Tab != TabInjury || failState.Tab != TabInjury {
		t.Errorf("expected halt at injury tab, got %s / %s", verr.Tab, failState.Tab)
	}
	if len(failState.Errors) == 0 {
		t.Error("expected surfaced field errors")
	}
}

func TestWizard_SubmitCreatesIncident(t *testing.T) {
	f := newFixture()
	st, _ := f.wizard.Start(context.Background(), StartRequest{}, testActor)
	f.wizard.SetFields(st.Key, validFields())
	f.wizard.SaveDraft(context.Background(), st.Key)

	result, _, err := f.wizard.Submit(context.Background(), st.Key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Created {
		t.Error("expected created flag")
	}

	id, _ := uuid.Parse(result.IncidentID)
	inc, err := f.incidents.GetByID(context.Background(), id, "admin", "")
	if err != nil {
		t.Fatalf("incident not persisted: %v", err)
	}
	if inc.WorkerName != "Alex Chen" {
		t.Errorf("unexpected worker: %q", inc.WorkerName)
	}

	entries := f.acts.forIncident(id)
	if len(entries) != 1 || entries[0].Title != "Incident Created" {
		t.Errorf("expected single creation entry, got %v", entries)
	}

	if _, err := f.drafts.Get(context.Background(), st.Key); err == nil {
		t.Error("expected draft slot deleted after submit")
	}
	if _, err := f.wizard.State(st.Key); !errors.Is(err, ErrSessionExpired) {
		t.Error("expected session closed after submit")
	}
}

func TestWizard_EditZeroDiffProducesNoEntry(t *testing.T) {
	f := newFixture()
	inc := f.seedIncident(t)

	st, err := f.wizard.Start(context.Background(), StartRequest{IncidentID: inc.ID.String()}, testActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Mode != "edit" {
		t.Fatalf("expected edit mode, got %s", st.Mode)
	}

	if _, _, err := f.wizard.Submit(context.Background(), st.Key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries := f.acts.forIncident(inc.ID); len(entries) != 0 {
		t.Errorf("no-op submit must produce no audit noise, got %d entries", len(entries))
	}
}

func TestWizard_EditDiffScenario(t *testing.T) {
	f := newFixture()
	inc := f.seedIncident(t)

	st, _ := f.wizard.Start(context.Background(), StartRequest{IncidentID: inc.ID.String()}, testActor)
	f.wizard.SetFields(st.Key, map[string]interface{}{
		"injury_type":  "Fracture",
		"witness_name": "J. Doe",
	})

	if _, _, err := f.wizard.Submit(context.Background(), st.Key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, _ := f.incidents.GetByID(context.Background(), inc.ID, "admin", "")
	if updated.InjuryType != "Fracture" || updated.WitnessName != "J. Doe" {
		t.Errorf("persisted record missing new values: %q / %q", updated.InjuryType, updated.WitnessName)
	}

	entries := f.acts.forIncident(inc.ID)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Title != "Incident Updated" || e.Type != activity.TypeSystemEdit {
		t.Errorf("unexpected entry: %s / %s", e.Title, e.Type)
	}
	if !strings.Contains(e.Description, "Injury Type") || !strings.Contains(e.Description, "Witness") {
		t.Errorf("description must mention changed labels, got %q", e.Description)
	}
	changes := e.Metadata["changes"].([]interface{})
	if len(changes) != 2 {
		t.Errorf("expected 2 field changes, got %d", len(changes))
	}
}

func TestWizard_EditSendsOnlyTouchedFields(t *testing.T) {
	f := newFixture()
	inc := f.seedIncident(t)

	st, _ := f.wizard.Start(context.Background(), StartRequest{IncidentID: inc.ID.String()}, testActor)
	f.wizard.SetFields(st.Key, map[string]interface{}{"witness_name": "J. Doe"})

	if _, _, err := f.wizard.Submit(context.Background(), st.Key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.incidents.lastSparse) != 1 || f.incidents.lastSparse[0] != "witness_name" {
		t.Errorf("update payload must contain only touched fields, got %v", f.incidents.lastSparse)
	}
}

func TestWizard_DraftRecovery(t *testing.T) {
	f := newFixture()
	st, _ := f.wizard.Start(context.Background(), StartRequest{}, testActor)
	f.wizard.SetFields(st.Key, map[string]interface{}{
		"notifier_name": "Dana Reyes",
		"worker_name":   "Alex Chen",
	})
	if _, err := f.wizard.SaveDraft(context.Background(), st.Key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A process restart loses the in-memory sessions but keeps the slots.
	reborn := NewWizard(f.svc, f.engine, zerolog.Nop(), time.Hour, time.Second)
	recovered, err := reborn.Start(context.Background(), StartRequest{DraftKey: st.Key}, testActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recovered.Fields["notifier_name"] != "Dana Reyes" {
		t.Errorf("expected recovered snapshot, got %v", recovered.Fields)
	}
}

func TestWizard_EditRecoveryWinsOverRecord(t *testing.T) {
	f := newFixture()
	inc := f.seedIncident(t)

	st, _ := f.wizard.Start(context.Background(), StartRequest{IncidentID: inc.ID.String()}, testActor)
	f.wizard.SetFields(st.Key, map[string]interface{}{"severity": "Serious"})
	if _, err := f.wizard.SaveDraft(context.Background(), st.Key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reborn := NewWizard(f.svc, f.engine, zerolog.Nop(), time.Hour, time.Second)
	recovered, err := reborn.Start(context.Background(), StartRequest{IncidentID: inc.ID.String()}, testActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recovered.Fields["severity"] != "Serious" {
		t.Errorf("draft must win over persisted record, got %v", recovered.Fields["severity"])
	}
}

func TestWizard_SetFields_RejectsUnknownKey(t *testing.T) {
	f := newFixture()
	st, _ := f.wizard.Start(context.Background(), StartRequest{}, testActor)
	if _, err := f.wizard.SetFields(st.Key, map[string]interface{}{"bogus": 1}); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestWizard_DiscardDeletesSlot(t *testing.T) {
	f := newFixture()
	st, _ := f.wizard.Start(context.Background(), StartRequest{}, testActor)
	f.wizard.SetFields(st.Key, map[string]interface{}{"notifier_name": "Dana"})
	f.wizard.SaveDraft(context.Background(), st.Key)

	if err := f.wizard.Discard(context.Background(), st.Key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.drafts.Get(context.Background(), st.Key); err == nil {
		t.Error("expected slot deleted")
	}
	if _, err := f.wizard.State(st.Key); !errors.Is(err, ErrSessionExpired) {
		t.Error("expected session dropped")
	}
}

func TestWizard_SetFieldsSplitsCombinedNotes(t *testing.T) {
	f := newFixture()
	st, _ := f.wizard.Start(context.Background(), StartRequest{}, testActor)

	combined := "Worker reported pain.\n--- Call Transcript ---\nAgent: How did it happen?\nCaller: A plank slipped."
	after, err := f.wizard.SetFields(st.Key, map[string]interface{}{"case_notes": combined})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Fields["case_notes"] != "Worker reported pain." {
		t.Errorf("unexpected notes: %q", after.Fields["case_notes"])
	}
	transcript, _ := after.Fields["call_transcript"].(string)
	if !strings.HasPrefix(transcript, "Agent:") {
		t.Errorf("unexpected transcript: %q", transcript)
	}
}

func TestWizard_StateFieldsDetachedFromSession(t *testing.T) {
	f := newFixture()
	st, _ := f.wizard.Start(context.Background(), StartRequest{}, testActor)

	before, err := f.wizard.State(st.Key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.wizard.SetFields(st.Key, map[string]interface{}{"notifier_name": "Dana"})
	if _, ok := before.Fields["notifier_name"]; ok {
		t.Error("returned state aliases the live session field map")
	}

	// Handlers marshal states outside the wizard lock; a concurrent patch
	// must not race the marshal. Run under -race.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			f.wizard.SetFields(st.Key, map[string]interface{}{"description": strings.Repeat("x", i%7)})
		}
	}()
	for i := 0; i < 200; i++ {
		cur, err := f.wizard.State(st.Key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := json.Marshal(cur.Fields); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	<-done
}
