package draft

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitesafe/sitesafe/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Upsert writes the slot unless a newer seq is already stored. The seq guard
// runs in the database so two racing saves cannot interleave a stale
// snapshot over a fresh one.
func (r *RepoPG) Upsert(ctx context.Context, slot *Slot) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO draft_slots (key, snapshot, seq, saved_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET snapshot = EXCLUDED.snapshot, seq = EXCLUDED.seq, saved_at = now()
		WHERE draft_slots.seq < EXCLUDED.seq`,
		slot.Key, []byte(slot.Snapshot), slot.Seq)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RepoPG) Get(ctx context.Context, key string) (*Slot, error) {
	var s Slot
	var snap []byte
	err := r.conn(ctx).QueryRow(ctx,
		"SELECT key, snapshot, seq, saved_at FROM draft_slots WHERE key = $1", key,
	).Scan(&s.Key, &snap, &s.Seq, &s.SavedAt)
	if err != nil {
		return nil, err
	}
	s.Snapshot = snap
	return &s, nil
}

func (r *RepoPG) Delete(ctx context.Context, key string) error {
	_, err := r.conn(ctx).Exec(ctx, "DELETE FROM draft_slots WHERE key = $1", key)
	return err
}
