package activity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	ListByIncident(ctx context.Context, incidentID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}
