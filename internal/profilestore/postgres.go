package profilestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cityPerksAPI/internal/clock"
	"cityPerksAPI/internal/types/friendgraph"
	"cityPerksAPI/internal/types/leaderboard"
	"cityPerksAPI/internal/types/profile"
)

// Postgres stores each aggregate as one JSONB document per user with a
// version column. Saves are conditional on the loaded version so two
// concurrent writers cannot silently overwrite each other.
type Postgres struct {
	db    *pgxpool.Pool
	clock clock.Clock
}

func NewPostgres(db *pgxpool.Pool, clk clock.Clock) *Postgres {
	return &Postgres{db: db, clock: clk}
}

// ResolveClerkID maps the authenticated Clerk subject to the internal user id.
func (s *Postgres) ResolveClerkID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrUserNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return userID, nil
}

func (s *Postgres) userExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

func (s *Postgres) LoadProfile(ctx context.Context, userID uuid.UUID) (*profile.Profile, int64, error) {
	query := `
	SELECT doc, version
	FROM gamification_profiles
	WHERE user_id = $1
	`

	p := &profile.Profile{}
	var version int64
	err := s.db.QueryRow(ctx, query, userID).Scan(p, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, checkErr := s.userExists(ctx, userID)
			if checkErr != nil {
				return nil, 0, checkErr
			}
			if !exists {
				return nil, 0, ErrUserNotFound
			}
			return profile.New(userID, s.clock.Now()), 0, nil
		}
		return nil, 0, fmt.Errorf("failed to load profile: %w", err)
	}

	return p, version, nil
}

func (s *Postgres) SaveProfile(ctx context.Context, p *profile.Profile, version int64) error {
	if version == 0 {
		query := `
		INSERT INTO gamification_profiles (user_id, doc, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (user_id) DO NOTHING
		`
		result, err := s.db.Exec(ctx, query, p.UserID, p)
		if err != nil {
			return fmt.Errorf("failed to insert profile: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		return nil
	}

	query := `
	UPDATE gamification_profiles
	SET doc = $2, version = version + 1, updated_at = NOW()
	WHERE user_id = $1 AND version = $3
	`
	result, err := s.db.Exec(ctx, query, p.UserID, p, version)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *Postgres) LoadGraph(ctx context.Context, userID uuid.UUID) (*friendgraph.Graph, int64, error) {
	query := `
	SELECT doc, version
	FROM friend_graphs
	WHERE user_id = $1
	`

	g := &friendgraph.Graph{}
	var version int64
	err := s.db.QueryRow(ctx, query, userID).Scan(g, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, checkErr := s.userExists(ctx, userID)
			if checkErr != nil {
				return nil, 0, checkErr
			}
			if !exists {
				return nil, 0, ErrUserNotFound
			}
			return friendgraph.New(userID), 0, nil
		}
		return nil, 0, fmt.Errorf("failed to load friend graph: %w", err)
	}

	return g, version, nil
}

func (s *Postgres) SaveGraph(ctx context.Context, g *friendgraph.Graph, version int64) error {
	if version == 0 {
		query := `
		INSERT INTO friend_graphs (user_id, doc, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (user_id) DO NOTHING
		`
		result, err := s.db.Exec(ctx, query, g.UserID, g)
		if err != nil {
			return fmt.Errorf("failed to insert friend graph: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		return nil
	}

	query := `
	UPDATE friend_graphs
	SET doc = $2, version = version + 1, updated_at = NOW()
	WHERE user_id = $1 AND version = $3
	`
	result, err := s.db.Exec(ctx, query, g.UserID, g, version)
	if err != nil {
		return fmt.Errorf("failed to update friend graph: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// GlobalLeaderboard ranks every user by total XP straight in SQL, optionally
// filtered to users whose home city matches. Friend comparisons live in the
// services layer; this one exists for the city-wide boards.
func (s *Postgres) GlobalLeaderboard(ctx context.Context, userID uuid.UUID, city string, limit int) (*leaderboard.Leaderboard, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
	SELECT
		u.id AS user_id,
		COALESCE(u.username, '') AS username,
		COALESCE(u.image_url, '') AS image_url,
		COALESCE((gp.doc->>'total_xp')::int, 0) AS total_xp,
		COALESCE(gp.doc->>'level', 'newcomer') AS level,
		COALESCE((gp.doc->'daily_tasks'->>'current_streak')::int, 0) AS current_streak,
		RANK() OVER (ORDER BY COALESCE((gp.doc->>'total_xp')::int, 0) DESC) AS rank,
		u.id = $1 AS is_self
	FROM users u
	LEFT JOIN gamification_profiles gp ON u.id = gp.user_id
	WHERE ($2 = '' OR u.city = $2)
	ORDER BY total_xp DESC, u.username
	LIMIT $3
	`

	rows, err := s.db.Query(ctx, query, userID, city, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch global leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*leaderboard.Entry
	var userPosition *leaderboard.Entry

	for rows.Next() {
		entry := &leaderboard.Entry{}
		err := rows.Scan(
			&entry.UserID,
			&entry.Username,
			&entry.ImageURL,
			&entry.XP,
			&entry.Level,
			&entry.CurrentStreak,
			&entry.Rank,
			&entry.IsSelf,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}

		entries = append(entries, entry)

		if entry.IsSelf {
			userPosition = entry
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard rows: %w", err)
	}

	return &leaderboard.Leaderboard{
		Entries:      entries,
		UserPosition: userPosition,
		TotalUsers:   len(entries),
	}, nil
}
