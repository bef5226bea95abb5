package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"cityPerksAPI/internal/catalog"
	"cityPerksAPI/internal/clock"
	"cityPerksAPI/internal/notification"
	"cityPerksAPI/internal/types/profile"
)

// errNoProgress aborts the aggregate save when an update has no effect:
// already completed, or the metadata does not satisfy the gate. It never
// leaves this file; callers see a successful result with the stored progress.
var errNoProgress = errors.New("collection not advanced")

// CollectionService advances themed collections gated by event metadata.
// Completion is write-once: the bundled XP and badge are granted exactly the
// first time progress reaches the target.
type CollectionService struct {
	gamification *GamificationService
	clock        clock.Clock
	catalog      *catalog.Catalog
}

func NewCollectionService(g *GamificationService, clk clock.Clock, cat *catalog.Catalog) *CollectionService {
	return &CollectionService{
		gamification: g,
		clock:        clk,
		catalog:      cat,
	}
}

type CollectionResult struct {
	CollectionID string `json:"collection_id"`
	Progress     int    `json:"progress"`
	Total        int    `json:"total"`
	Completed    bool   `json:"completed"`
	XPGained     int    `json:"xp_gained"`
	BadgeID      string `json:"badge_id,omitempty"`
}

// metadataMatches applies the collection's gating key: city collections need
// a city match, category collections a category match.
func metadataMatches(def *catalog.CollectionDefinition, metadata map[string]string) bool {
	switch def.Kind {
	case catalog.MatchCity:
		return metadata["city"] == def.MatchKey
	case catalog.MatchCategory:
		return metadata["category"] == def.MatchKey
	default:
		return false
	}
}

// UpdateCollection adds increment to the collection's progress when the
// metadata satisfies its gating key. Already-completed collections and
// non-matching metadata are successful no-ops that touch nothing persisted.
func (s *CollectionService) UpdateCollection(ctx context.Context, userID uuid.UUID, collectionID string, increment int, metadata map[string]string) (*CollectionResult, error) {
	def := s.catalog.FindCollection(collectionID)
	if def == nil {
		return nil, ErrCollectionNotFound
	}
	// A missing or non-positive increment counts a single qualifying event.
	if increment <= 0 {
		increment = 1
	}

	var result CollectionResult
	var xpGained int
	err := s.gamification.withProfile(ctx, userID, func(p *profile.Profile, events *[]notification.Event) error {
		xpGained = 0
		entry := p.FindCollection(def.ID)

		result = CollectionResult{
			CollectionID: def.ID,
			Total:        def.Target,
		}
		if entry != nil {
			result.Progress = entry.Progress
			result.Total = entry.Total
			result.Completed = entry.Completed
		}

		if (entry != nil && entry.Completed) || !metadataMatches(def, metadata) {
			return errNoProgress
		}

		if entry == nil {
			p.Collections = append(p.Collections, profile.Collection{
				CollectionID: def.ID,
				Total:        def.Target,
			})
			entry = &p.Collections[len(p.Collections)-1]
		}

		entry.Progress += increment
		if entry.Progress >= def.Target {
			// Saturate: persisted progress never exceeds the target.
			entry.Progress = def.Target
			entry.Completed = true
			now := s.clock.Now()
			entry.CompletedAt = &now

			s.gamification.applyXP(p, def.XPReward, events)
			xpGained = def.XPReward
			s.gamification.grantBadge(p, def.BadgeID, events)

			*events = append(*events, notification.Event{
				UserID: userID,
				Type:   notification.EventCollectionCompleted,
				Data:   map[string]any{"collection_id": def.ID, "xp": def.XPReward},
			})

			result.BadgeID = def.BadgeID
		}

		result.Progress = entry.Progress
		result.Completed = entry.Completed
		result.XPGained = xpGained
		return nil
	})
	if err != nil {
		if errors.Is(err, errNoProgress) {
			return &result, nil
		}
		return nil, err
	}

	if xpGained > 0 {
		s.gamification.creditWindows(ctx, userID, xpGained)
		xpGrantedTotal.WithLabelValues("collection").Add(float64(xpGained))
	}
	return &result, nil
}
