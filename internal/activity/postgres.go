package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"cityPerksAPI/internal/clock"
)

// PostgresOracle reads activity facts out of the tables the redemption,
// event and discovery subsystems own. Queries are read-only here.
type PostgresOracle struct {
	db    *pgxpool.Pool
	clock clock.Clock
}

func NewPostgresOracle(db *pgxpool.Pool, clk clock.Clock) *PostgresOracle {
	return &PostgresOracle{db: db, clock: clk}
}

func (o *PostgresOracle) dayBounds() (time.Time, time.Time) {
	start := clock.DayStart(o.clock.Now())
	return start, start.AddDate(0, 0, 1)
}

func (o *PostgresOracle) CountDistinctBrandsToday(ctx context.Context, userID uuid.UUID) (int, error) {
	start, end := o.dayBounds()

	query := `
	SELECT COUNT(DISTINCT brand_id)
	FROM discoveries
	WHERE user_id = $1
		AND discovered_at >= $2
		AND discovered_at < $3
	`

	var count int
	err := o.db.QueryRow(ctx, query, userID, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count discovered brands: %w", err)
	}

	return count, nil
}

func (o *PostgresOracle) HasApprovedEventToday(ctx context.Context, userID uuid.UUID) (bool, error) {
	start, end := o.dayBounds()

	query := `
	SELECT EXISTS(
		SELECT 1 FROM event_participations
		WHERE user_id = $1
			AND status IN ('approved', 'attended')
			AND participated_at >= $2
			AND participated_at < $3
	)
	`

	var exists bool
	err := o.db.QueryRow(ctx, query, userID, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check event participation: %w", err)
	}

	return exists, nil
}

func (o *PostgresOracle) HasUsedRedemptionToday(ctx context.Context, userID uuid.UUID) (bool, error) {
	start, end := o.dayBounds()

	query := `
	SELECT EXISTS(
		SELECT 1 FROM code_redemptions
		WHERE user_id = $1
			AND status = 'used'
			AND redeemed_at >= $2
			AND redeemed_at < $3
	)
	`

	var exists bool
	err := o.db.QueryRow(ctx, query, userID, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check redemptions: %w", err)
	}

	return exists, nil
}

func (o *PostgresOracle) HasShareToday(ctx context.Context, userID uuid.UUID) (bool, error) {
	start, end := o.dayBounds()

	query := `
	SELECT EXISTS(
		SELECT 1 FROM shares
		WHERE user_id = $1
			AND shared_at >= $2
			AND shared_at < $3
	)
	`

	var exists bool
	err := o.db.QueryRow(ctx, query, userID, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check shares: %w", err)
	}

	return exists, nil
}
