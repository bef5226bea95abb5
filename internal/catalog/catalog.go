package catalog

import (
	"fmt"
	"math"
)

// TaskType selects the verification predicate for a daily task.
type TaskType string

const (
	TaskCheckin  TaskType = "checkin"
	TaskDiscover TaskType = "discover"
	TaskEvent    TaskType = "event"
	TaskCampaign TaskType = "campaign"
	TaskShare    TaskType = "share"
)

type DailyTaskDefinition struct {
	ID       string   `json:"id"`
	Type     TaskType `json:"type"`
	Target   int      `json:"target,omitempty"`
	XPReward int      `json:"xp_reward"`
}

// LevelThreshold maps a minimum total XP to a named tier. Thresholds must be
// strictly increasing and start at 0.
type LevelThreshold struct {
	MinTotalXP int    `json:"min_total_xp"`
	Name       string `json:"name"`
}

type StreakBonus struct {
	ThresholdDays int     `json:"threshold_days"`
	XPMultiplier  float64 `json:"xp_multiplier"`
	BadgeID       string  `json:"badge_id,omitempty"`
}

// MatchKind says which metadata field gates a collection.
type MatchKind string

const (
	MatchCity     MatchKind = "city"
	MatchCategory MatchKind = "category"
)

type CollectionDefinition struct {
	ID       string    `json:"id"`
	Kind     MatchKind `json:"kind"`
	MatchKey string    `json:"match_key"`
	Target   int       `json:"target"`
	XPReward int       `json:"xp_reward"`
	BadgeID  string    `json:"badge_id"`
}

// RewardKind is what a surprise-box tier pays out.
type RewardKind string

const (
	RewardXP RewardKind = "xp"
)

type SurpriseBoxTier struct {
	Name        string     `json:"name"`
	Probability float64    `json:"probability"`
	Kind        RewardKind `json:"kind"`
	MinAmount   int        `json:"min_amount"`
	MaxAmount   int        `json:"max_amount"`
	FixedAmount int        `json:"fixed_amount"`
	BadgeID     string     `json:"badge_id,omitempty"`
}

// BadgeDefinition carries the display metadata for a grantable badge.
type BadgeDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Catalog is the immutable rules configuration the engine runs against.
type Catalog struct {
	Tasks             []DailyTaskDefinition
	Levels            []LevelThreshold
	StreakBonuses     []StreakBonus
	Collections       []CollectionDefinition
	Badges            []BadgeDefinition
	BoxTriggerChance  float64
	BoxTiers          []SurpriseBoxTier
	FriendAcceptBonus int
}

// Default is the shipped rule set.
func Default() *Catalog {
	return &Catalog{
		Tasks: []DailyTaskDefinition{
			{ID: "daily_checkin", Type: TaskCheckin, XPReward: 5},
			{ID: "daily_discover", Type: TaskDiscover, Target: 2, XPReward: 15},
			{ID: "daily_event", Type: TaskEvent, XPReward: 25},
			{ID: "daily_campaign", Type: TaskCampaign, XPReward: 20},
			{ID: "daily_share", Type: TaskShare, XPReward: 10},
		},
		Levels: []LevelThreshold{
			{MinTotalXP: 0, Name: "newcomer"},
			{MinTotalXP: 100, Name: "explorer"},
			{MinTotalXP: 500, Name: "adventurer"},
			{MinTotalXP: 1500, Name: "insider"},
			{MinTotalXP: 5000, Name: "legend"},
		},
		StreakBonuses: []StreakBonus{
			{ThresholdDays: 3, XPMultiplier: 1.2},
			{ThresholdDays: 7, XPMultiplier: 2.0, BadgeID: "streak_7"},
			{ThresholdDays: 14, XPMultiplier: 2.5, BadgeID: "streak_14"},
			{ThresholdDays: 30, XPMultiplier: 3.0, BadgeID: "streak_30"},
		},
		Collections: []CollectionDefinition{
			{ID: "coffee_lover", Kind: MatchCategory, MatchKey: "Kahve", Target: 10, XPReward: 150, BadgeID: "coffee_master"},
			{ID: "istanbul_explorer", Kind: MatchCity, MatchKey: "Istanbul", Target: 15, XPReward: 200, BadgeID: "istanbul_native"},
			{ID: "ankara_explorer", Kind: MatchCity, MatchKey: "Ankara", Target: 15, XPReward: 200, BadgeID: "ankara_native"},
			{ID: "event_goer", Kind: MatchCategory, MatchKey: "Etkinlik", Target: 5, XPReward: 100, BadgeID: "event_regular"},
			{ID: "foodie", Kind: MatchCategory, MatchKey: "Yemek", Target: 12, XPReward: 150, BadgeID: "food_critic"},
		},
		Badges: []BadgeDefinition{
			{ID: "streak_7", Name: "One Week Strong", Category: "streak", Description: "Completed a task 7 days in a row"},
			{ID: "streak_14", Name: "Two Week Champion", Category: "streak", Description: "Completed a task 14 days in a row"},
			{ID: "streak_30", Name: "Monthly Devotee", Category: "streak", Description: "Completed a task 30 days in a row"},
			{ID: "coffee_master", Name: "Coffee Master", Category: "collection", Description: "Completed the coffee lover collection"},
			{ID: "istanbul_native", Name: "Istanbul Native", Category: "collection", Description: "Explored 15 places in Istanbul"},
			{ID: "ankara_native", Name: "Ankara Native", Category: "collection", Description: "Explored 15 places in Ankara"},
			{ID: "event_regular", Name: "Event Regular", Category: "collection", Description: "Attended 5 events"},
			{ID: "food_critic", Name: "Food Critic", Category: "collection", Description: "Completed the foodie collection"},
			{ID: "lucky_star", Name: "Lucky Star", Category: "surprise_box", Description: "Drew the rarest surprise box reward"},
		},
		BoxTriggerChance: 0.25,
		BoxTiers: []SurpriseBoxTier{
			{Name: "common", Probability: 0.85, Kind: RewardXP, MinAmount: 5, MaxAmount: 20},
			{Name: "rare", Probability: 0.12, Kind: RewardXP, MinAmount: 25, MaxAmount: 75},
			{Name: "epic", Probability: 0.03, Kind: RewardXP, FixedAmount: 150, BadgeID: "lucky_star"},
		},
		FriendAcceptBonus: 25,
	}
}

// FindTask returns the definition for id, or nil.
func (c *Catalog) FindTask(id string) *DailyTaskDefinition {
	for i := range c.Tasks {
		if c.Tasks[i].ID == id {
			return &c.Tasks[i]
		}
	}
	return nil
}

// FindCollection returns the definition for id, or nil.
func (c *Catalog) FindCollection(id string) *CollectionDefinition {
	for i := range c.Collections {
		if c.Collections[i].ID == id {
			return &c.Collections[i]
		}
	}
	return nil
}

// FindBadge returns the display metadata for a badge id. Unknown ids get a
// minimal definition so a grant never fails on missing metadata.
func (c *Catalog) FindBadge(id string) BadgeDefinition {
	for _, b := range c.Badges {
		if b.ID == id {
			return b
		}
	}
	return BadgeDefinition{ID: id, Name: id, Category: "general"}
}

// LevelFor derives the tier name for a total XP figure. Pure and monotonic:
// the highest threshold not exceeding totalXP wins.
func (c *Catalog) LevelFor(totalXP int) string {
	name := c.Levels[0].Name
	for _, l := range c.Levels {
		if totalXP >= l.MinTotalXP {
			name = l.Name
		}
	}
	return name
}

// MultiplierFor returns the streak multiplier for a streak length: the bonus
// with the highest threshold at or below the streak, default 1.0.
func (c *Catalog) MultiplierFor(streak int) float64 {
	mult := 1.0
	for _, b := range c.StreakBonuses {
		if streak >= b.ThresholdDays {
			mult = b.XPMultiplier
		}
	}
	return mult
}

// BonusAt returns the streak bonus whose threshold is exactly streak, or nil.
func (c *Catalog) BonusAt(streak int) *StreakBonus {
	for i := range c.StreakBonuses {
		if c.StreakBonuses[i].ThresholdDays == streak {
			return &c.StreakBonuses[i]
		}
	}
	return nil
}

// Validate checks the catalog invariants the draw and lookup logic relies on.
func (c *Catalog) Validate() error {
	if len(c.Levels) == 0 || c.Levels[0].MinTotalXP != 0 {
		return fmt.Errorf("level thresholds must start at 0")
	}
	for i := 1; i < len(c.Levels); i++ {
		if c.Levels[i].MinTotalXP <= c.Levels[i-1].MinTotalXP {
			return fmt.Errorf("level thresholds must be strictly increasing at %q", c.Levels[i].Name)
		}
	}
	for i := 1; i < len(c.StreakBonuses); i++ {
		if c.StreakBonuses[i].ThresholdDays <= c.StreakBonuses[i-1].ThresholdDays {
			return fmt.Errorf("streak bonus thresholds must be strictly increasing")
		}
	}
	if c.BoxTriggerChance < 0 || c.BoxTriggerChance > 1 {
		return fmt.Errorf("box trigger chance must be within [0,1], got %v", c.BoxTriggerChance)
	}
	var sum float64
	for _, t := range c.BoxTiers {
		if t.Probability <= 0 {
			return fmt.Errorf("box tier %q must have positive probability", t.Name)
		}
		if t.FixedAmount == 0 && t.MinAmount > t.MaxAmount {
			return fmt.Errorf("box tier %q has an empty amount range", t.Name)
		}
		sum += t.Probability
	}
	if len(c.BoxTiers) > 0 && math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("box tier probabilities must sum to 1, got %v", sum)
	}
	for _, col := range c.Collections {
		if col.Target <= 0 {
			return fmt.Errorf("collection %q must have a positive target", col.ID)
		}
	}
	return nil
}
