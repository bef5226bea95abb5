package leaderboard

import "github.com/google/uuid"

// Period selects which XP window a comparison ranks by.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "allTime"
)

// Valid reports whether p is one of the known periods.
func (p Period) Valid() bool {
	return p == PeriodWeekly || p == PeriodMonthly || p == PeriodAllTime
}

type Entry struct {
	UserID        uuid.UUID `json:"user_id"`
	Username      string    `json:"username,omitempty"`
	ImageURL      *string   `json:"image_url,omitempty"`
	XP            int       `json:"xp"`
	Level         string    `json:"level,omitempty"`
	CurrentStreak int       `json:"current_streak"`
	Rank          int       `json:"rank"`
	IsSelf        bool      `json:"is_self,omitempty"`
}

type Leaderboard struct {
	Entries      []*Entry `json:"entries"`
	UserPosition *Entry   `json:"user_position"`
	TotalUsers   int      `json:"total_users"`
}
