package ports

import (
	"context"

	"manimrender/internal/models"
)

// JobStore reads pending video jobs and writes their terminal status.
// Implementations: PostgREST over HTTP, Postgres through pgx.
type JobStore interface {
	// FetchPending returns at most limit rows with status generating and a
	// non-null script. An empty slice is not an error.
	FetchPending(ctx context.Context, limit int) ([]models.Video, error)
	// Update applies a partial update to the row with the given id.
	Update(ctx context.Context, id string, u models.VideoUpdate) error
}
