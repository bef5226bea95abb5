package profilestore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"cityPerksAPI/internal/types/friendgraph"
	"cityPerksAPI/internal/types/profile"
)

// ErrUserNotFound means the user id does not exist at all. A user that exists
// but has no gamification document yet is NOT an error: loads return the
// zero-state aggregate with version 0.
var ErrUserNotFound = errors.New("user not found")

// ErrVersionConflict means a concurrent writer saved the aggregate between
// our load and save. Callers retry against a fresh load.
var ErrVersionConflict = errors.New("version conflict")

// Store persists the two per-user aggregates. Saves are conditional on the
// version observed at load time, which makes every read-modify-write cycle
// an optimistic transaction.
type Store interface {
	LoadProfile(ctx context.Context, userID uuid.UUID) (*profile.Profile, int64, error)
	SaveProfile(ctx context.Context, p *profile.Profile, version int64) error

	LoadGraph(ctx context.Context, userID uuid.UUID) (*friendgraph.Graph, int64, error)
	SaveGraph(ctx context.Context, g *friendgraph.Graph, version int64) error
}
