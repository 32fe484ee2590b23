package draft

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Engine coordinates draft saves for wizard sessions. Each save gets a
// monotonically increasing sequence number per key; a save that completes
// after a later one already landed is discarded, so slow writes can never
// roll the slot back to an older snapshot. Background saves never surface
// errors to the caller: a failed autosave is logged and the next tick tries
// again.
type Engine struct {
	repo Repository
	log  zerolog.Logger

	mu    sync.Mutex
	state map[string]*slotState

	wg sync.WaitGroup
}

type slotState struct {
	nextSeq int64
	applied int64
	savedAt time.Time
}

const saveTimeout = 10 * time.Second

func NewEngine(repo Repository, log zerolog.Logger) *Engine {
	return &Engine{
		repo:  repo,
		log:   log.With().Str("component", "draft-engine").Logger(),
		state: make(map[string]*slotState),
	}
}

func (e *Engine) claim(key string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.state[key]
	if !ok {
		st = &slotState{}
		e.state[key] = st
	}
	st.nextSeq++
	return st.nextSeq
}

func (e *Engine) complete(key string, seq int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.state[key]
	if !ok || seq <= st.applied {
		return false
	}
	st.applied = seq
	st.savedAt = time.Now()
	return true
}

// Save persists a snapshot in the background. It returns immediately; the
// write happens on its own goroutine with its own deadline, detached from
// the request that triggered it.
func (e *Engine) Save(key string, snapshot json.RawMessage) {
	seq := e.claim(key)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		e.save(ctx, key, snapshot, seq)
	}()
}

// SaveSync persists a snapshot and waits for the result. Used for explicit
// saves where the caller wants confirmation.
func (e *Engine) SaveSync(ctx context.Context, key string, snapshot json.RawMessage) error {
	return e.save(ctx, key, snapshot, e.claim(key))
}

func (e *Engine) save(ctx context.Context, key string, snapshot json.RawMessage, seq int64) error {
	applied, err := e.repo.Upsert(ctx, &Slot{Key: key, Snapshot: snapshot, Seq: seq})
	if err != nil {
		e.log.Warn().Err(err).Str("key", key).Int64("seq", seq).Msg("draft save failed")
		return err
	}
	if !applied {
		e.log.Debug().Str("key", key).Int64("seq", seq).Msg("stale draft save discarded")
		return nil
	}
	if e.complete(key, seq) {
		e.log.Debug().Str("key", key).Int64("seq", seq).Msg("draft saved")
	}
	return nil
}

// LastSaved reports when the most recent save for key landed. The zero time
// means nothing has been saved this process lifetime.
func (e *Engine) LastSaved(key string) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.state[key]; ok {
		return st.savedAt
	}
	return time.Time{}
}

// Load fetches the persisted slot for key and seeds the key's sequence
// counter from it. A fresh process starts counting at zero; without the
// seed, every save for a recovered key would lose to the repository's
// stale-write guard until the counter caught up with the persisted seq.
func (e *Engine) Load(ctx context.Context, key string) (*Slot, error) {
	slot, err := e.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	st, ok := e.state[key]
	if !ok {
		st = &slotState{}
		e.state[key] = st
	}
	if slot.Seq > st.nextSeq {
		st.nextSeq = slot.Seq
	}
	e.mu.Unlock()
	return slot, nil
}

// Discard deletes the slot and forgets the key's sequence state.
func (e *Engine) Discard(ctx context.Context, key string) error {
	if err := e.repo.Delete(ctx, key); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.state, key)
	e.mu.Unlock()
	return nil
}

// Flush waits for in-flight background saves. Called on shutdown and by
// tests.
func (e *Engine) Flush() {
	e.wg.Wait()
}
