package profile

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the per-user gamification aggregate. It is persisted as a single
// document and only ever mutated through the services layer; handlers get
// read-only copies.
type Profile struct {
	UserID       uuid.UUID      `json:"user_id"`
	XP           int            `json:"xp"`
	TotalXP      int            `json:"total_xp"`
	Level        string         `json:"level"`
	Badges       []Badge        `json:"badges"`
	DailyTasks   DailyTasks     `json:"daily_tasks"`
	Collections  []Collection   `json:"collections"`
	BrandLoyalty []BrandLoyalty `json:"brand_loyalty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	EarnedAt    time.Time `json:"earned_at"`
}

type DailyTasks struct {
	CurrentStreak       int        `json:"current_streak"`
	LongestStreak       int        `json:"longest_streak"`
	CompletedTasksToday []string   `json:"completed_tasks_today"`
	LastTaskDate        *time.Time `json:"last_task_date"`
	TotalTasksCompleted int        `json:"total_tasks_completed"`
	SharesToday         []Share    `json:"shares_today"`
	LastSurpriseBoxDate *time.Time `json:"last_surprise_box_date"`
}

type Share struct {
	SharedAt time.Time `json:"shared_at"`
}

type Collection struct {
	CollectionID string     `json:"collection_id"`
	Progress     int        `json:"progress"`
	Total        int        `json:"total"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type BrandLoyalty struct {
	BrandID   string    `json:"brand_id"`
	Points    int       `json:"points"`
	Visits    int       `json:"visits"`
	LastVisit time.Time `json:"last_visit"`
}

// New returns the zero-state profile a user gets on first access.
func New(userID uuid.UUID, now time.Time) *Profile {
	return &Profile{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasBadge reports whether the badge id is already in the set.
func (p *Profile) HasBadge(badgeID string) bool {
	for _, b := range p.Badges {
		if b.ID == badgeID {
			return true
		}
	}
	return false
}

// GrantBadge appends the badge if absent. Returns false on a duplicate id,
// leaving the set unchanged.
func (p *Profile) GrantBadge(b Badge) bool {
	if p.HasBadge(b.ID) {
		return false
	}
	p.Badges = append(p.Badges, b)
	return true
}

// HasCompletedToday reports whether taskID is in today's completion set.
func (p *Profile) HasCompletedToday(taskID string) bool {
	for _, id := range p.DailyTasks.CompletedTasksToday {
		if id == taskID {
			return true
		}
	}
	return false
}

// FindCollection returns the entry for collectionID, or nil.
func (p *Profile) FindCollection(collectionID string) *Collection {
	for i := range p.Collections {
		if p.Collections[i].CollectionID == collectionID {
			return &p.Collections[i]
		}
	}
	return nil
}

// FindBrand returns the loyalty entry for brandID, or nil.
func (p *Profile) FindBrand(brandID string) *BrandLoyalty {
	for i := range p.BrandLoyalty {
		if p.BrandLoyalty[i].BrandID == brandID {
			return &p.BrandLoyalty[i]
		}
	}
	return nil
}
