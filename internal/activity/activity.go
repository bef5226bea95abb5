package activity

import (
	"context"

	"github.com/google/uuid"
)

// Oracle answers read-only questions about a user's real activity today.
// The engine uses it to verify that a task was actually earned before any
// reward is granted. Implementations must scope "today" to the calendar day.
type Oracle interface {
	CountDistinctBrandsToday(ctx context.Context, userID uuid.UUID) (int, error)
	HasApprovedEventToday(ctx context.Context, userID uuid.UUID) (bool, error)
	HasUsedRedemptionToday(ctx context.Context, userID uuid.UUID) (bool, error)
	HasShareToday(ctx context.Context, userID uuid.UUID) (bool, error)
}
