package incident

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, inc *Incident) error
	// GetByID applies the caller's employer scope: non-admin callers only
	// see incidents belonging to their employer.
	GetByID(ctx context.Context, id uuid.UUID, role, employerScope string) (*Incident, error)
	// UpdateFields applies a sparse update: only the given fields change,
	// everything else is left untouched.
	UpdateFields(ctx context.Context, id uuid.UUID, role, employerScope string, fields map[string]interface{}) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Incident, int, error)
	Count(ctx context.Context, f ListFilter) (int, error)
	Archive(ctx context.Context, id uuid.UUID, actorName string) error
	Restore(ctx context.Context, id uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID, actorName string) error
}
