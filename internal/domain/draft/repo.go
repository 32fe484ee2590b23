package draft

import "context"

type Repository interface {
	// Upsert writes a slot, keeping the row only if seq is newer than what
	// is already stored. Returns false when the write was stale.
	Upsert(ctx context.Context, slot *Slot) (bool, error)
	Get(ctx context.Context, key string) (*Slot, error)
	Delete(ctx context.Context, key string) error
}
