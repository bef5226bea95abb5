package services

import (
	"context"
	"errors"
	"log"
	"sort"

	"github.com/google/uuid"

	"cityPerksAPI/internal/catalog"
	"cityPerksAPI/internal/clock"
	"cityPerksAPI/internal/notification"
	"cityPerksAPI/internal/profilestore"
	"cityPerksAPI/internal/types/friendgraph"
	"cityPerksAPI/internal/types/leaderboard"
)

// FriendService manages the friend-edge state machine and the windowed
// comparisons. Every edge lives on both users' graph fragments, so each
// mutation writes two aggregates: lower uuid first (deterministic order, no
// deadlock), and the second side is retried to completion rather than left
// half-applied.
type FriendService struct {
	gamification *GamificationService
	store        profilestore.Store
	clock        clock.Clock
	catalog      *catalog.Catalog
	notifier     notification.Publisher
}

func NewFriendService(g *GamificationService, store profilestore.Store, clk clock.Clock, cat *catalog.Catalog, notifier notification.Publisher) *FriendService {
	return &FriendService{
		gamification: g,
		store:        store,
		clock:        clk,
		catalog:      cat,
		notifier:     notifier,
	}
}

// updateEdge applies one logical edge mutation to both fragments. The
// per-side mutations must be idempotent: the second side may be re-applied
// against a fresh load after a conflict.
func (s *FriendService) updateEdge(
	ctx context.Context,
	userID, friendID uuid.UUID,
	validate func(self, other *friendgraph.Graph) error,
	mutateSelf, mutateOther func(g *friendgraph.Graph),
) error {
	firstID, secondID := userID, friendID
	mutateFirst, mutateSecond := mutateSelf, mutateOther
	if friendID.String() < userID.String() {
		firstID, secondID = friendID, userID
		mutateFirst, mutateSecond = mutateOther, mutateSelf
	}

	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		selfG, _, err := s.store.LoadGraph(ctx, userID)
		if err != nil {
			return err
		}
		otherG, _, err := s.store.LoadGraph(ctx, friendID)
		if err != nil {
			return err
		}
		if err := validate(selfG, otherG); err != nil {
			return err
		}

		firstG, firstVer, err := s.store.LoadGraph(ctx, firstID)
		if err != nil {
			return err
		}
		mutateFirst(firstG)
		if err := s.store.SaveGraph(ctx, firstG, firstVer); err != nil {
			if errors.Is(err, profilestore.ErrVersionConflict) {
				continue
			}
			return err
		}

		// First side is committed. The second side must now land too, even
		// if it loses races: compensate by retrying, never by leaving the
		// edge half-applied.
		if err := s.saveWithRetry(ctx, secondID, mutateSecond); err != nil {
			log.Printf("updateEdge: second-side write for %s (edge with %s) did not land: %v", secondID, firstID, err)
			return err
		}
		return nil
	}
	return ErrConcurrentUpdate
}

func (s *FriendService) saveWithRetry(ctx context.Context, userID uuid.UUID, mutate func(g *friendgraph.Graph)) error {
	var lastErr error
	for attempt := 0; attempt < maxSaveRetries*2; attempt++ {
		g, version, err := s.store.LoadGraph(ctx, userID)
		if err != nil {
			return err
		}
		mutate(g)
		err = s.store.SaveGraph(ctx, g, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, profilestore.ErrVersionConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// SendRequest moves the edge from none to requested.
func (s *FriendService) SendRequest(ctx context.Context, userID, friendID uuid.UUID) error {
	if userID == friendID {
		return ErrSelfReference
	}

	now := s.clock.Now()
	err := s.updateEdge(ctx, userID, friendID,
		func(self, other *friendgraph.Graph) error {
			if self.IsFriend(friendID) {
				return ErrAlreadyFriends
			}
			if self.HasSentRequestTo(friendID) || self.HasReceivedRequestFrom(friendID) {
				return ErrRequestPending
			}
			return nil
		},
		func(g *friendgraph.Graph) {
			if !g.HasSentRequestTo(friendID) {
				g.Requests.Sent = append(g.Requests.Sent, friendgraph.SentRequest{ToUserID: friendID, SentAt: now})
			}
		},
		func(g *friendgraph.Graph) {
			if !g.HasReceivedRequestFrom(userID) {
				g.Requests.Received = append(g.Requests.Received, friendgraph.ReceivedRequest{FromUserID: userID, ReceivedAt: now})
			}
		},
	)
	if err != nil {
		return err
	}

	s.notifier.Publish(notification.Event{
		UserID: friendID,
		Type:   notification.EventFriendRequest,
		Data:   map[string]any{"from_user_id": userID.String()},
	})
	return nil
}

// AcceptRequest moves the edge from requested to friends and pays the accept
// bonus to both sides. The bonus fires exactly once per accepted edge: the
// request entries are consumed by the same mutation that adds the edge.
func (s *FriendService) AcceptRequest(ctx context.Context, userID, requesterID uuid.UUID) error {
	if userID == requesterID {
		return ErrSelfReference
	}

	now := s.clock.Now()
	err := s.updateEdge(ctx, userID, requesterID,
		func(self, other *friendgraph.Graph) error {
			if self.IsFriend(requesterID) {
				return ErrAlreadyFriends
			}
			if !self.HasReceivedRequestFrom(requesterID) {
				return ErrNoSuchRequest
			}
			return nil
		},
		func(g *friendgraph.Graph) {
			g.RemoveReceived(requesterID)
			g.AddFriend(requesterID, now)
		},
		func(g *friendgraph.Graph) {
			g.RemoveSent(userID)
			g.AddFriend(userID, now)
		},
	)
	if err != nil {
		return err
	}

	bonus := s.catalog.FriendAcceptBonus
	if bonus > 0 {
		for _, id := range []uuid.UUID{userID, requesterID} {
			if err := s.grantAcceptBonus(ctx, id, bonus); err != nil {
				return err
			}
		}
	}

	for _, id := range []uuid.UUID{userID, requesterID} {
		s.notifier.Publish(notification.Event{
			UserID: id,
			Type:   notification.EventFriendAccepted,
			Data:   map[string]any{"bonus_xp": bonus},
		})
	}
	return nil
}

// grantAcceptBonus pushes the accept bonus through with the same persistence
// guarantee as the second-side edge write: the edge is already committed, so
// the grant retries through lost races rather than being dropped, and a
// failure that survives the retries surfaces to the caller instead of being
// swallowed.
func (s *FriendService) grantAcceptBonus(ctx context.Context, userID uuid.UUID, bonus int) error {
	var lastErr error
	for attempt := 0; attempt < maxSaveRetries*2; attempt++ {
		_, err := s.gamification.AddXP(ctx, userID, bonus, "friend_accept")
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrentUpdate) {
			return err
		}
		lastErr = err
	}
	log.Printf("AcceptRequest: accept bonus for %s did not land: %v", userID, lastErr)
	return lastErr
}

// RejectRequest drops a received request without creating an edge.
func (s *FriendService) RejectRequest(ctx context.Context, userID, requesterID uuid.UUID) error {
	if userID == requesterID {
		return ErrSelfReference
	}

	return s.updateEdge(ctx, userID, requesterID,
		func(self, other *friendgraph.Graph) error {
			if !self.HasReceivedRequestFrom(requesterID) {
				return ErrNoSuchRequest
			}
			return nil
		},
		func(g *friendgraph.Graph) { g.RemoveReceived(requesterID) },
		func(g *friendgraph.Graph) { g.RemoveSent(userID) },
	)
}

// CancelRequest withdraws a request the user sent earlier.
func (s *FriendService) CancelRequest(ctx context.Context, userID, toUserID uuid.UUID) error {
	if userID == toUserID {
		return ErrSelfReference
	}

	return s.updateEdge(ctx, userID, toUserID,
		func(self, other *friendgraph.Graph) error {
			if !self.HasSentRequestTo(toUserID) {
				return ErrNoSuchRequest
			}
			return nil
		},
		func(g *friendgraph.Graph) { g.RemoveSent(toUserID) },
		func(g *friendgraph.Graph) { g.RemoveReceived(userID) },
	)
}

// RemoveFriend deletes the edge from both fragments.
func (s *FriendService) RemoveFriend(ctx context.Context, userID, friendID uuid.UUID) error {
	if userID == friendID {
		return ErrSelfReference
	}

	return s.updateEdge(ctx, userID, friendID,
		func(self, other *friendgraph.Graph) error {
			if !self.IsFriend(friendID) {
				return ErrNotFriends
			}
			return nil
		},
		func(g *friendgraph.Graph) { g.RemoveFriend(friendID) },
		func(g *friendgraph.Graph) { g.RemoveFriend(userID) },
	)
}

// GetGraph returns the user's fragment with the comparison windows rolled
// to now for display. The roll is not persisted here.
func (s *FriendService) GetGraph(ctx context.Context, userID uuid.UUID) (*friendgraph.Graph, error) {
	g, _, err := s.store.LoadGraph(ctx, userID)
	if err != nil {
		return nil, err
	}
	g.Stats.RollWindows(s.clock.Now())
	return g, nil
}

// Compare ranks the user and their friends by the period's XP figure.
// Weekly/monthly figures are incremental window counters, reset lazily when
// the window rolls; allTime ranks by ledger total.
func (s *FriendService) Compare(ctx context.Context, userID uuid.UUID, period leaderboard.Period) (*leaderboard.Leaderboard, error) {
	if !period.Valid() {
		return nil, ErrInvalidPeriod
	}

	selfGraph, _, err := s.store.LoadGraph(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(selfGraph.Friends)+1)
	ids = append(ids, userID)
	for _, f := range selfGraph.Friends {
		ids = append(ids, f.FriendID)
	}

	now := s.clock.Now()
	entries := make([]*leaderboard.Entry, 0, len(ids))
	for _, id := range ids {
		p, _, err := s.store.LoadProfile(ctx, id)
		if err != nil {
			// A friend whose account vanished should not break the board.
			log.Printf("Compare: skipping %s: %v", id, err)
			continue
		}

		xp := p.TotalXP
		if period != leaderboard.PeriodAllTime {
			g, _, err := s.store.LoadGraph(ctx, id)
			if err != nil {
				log.Printf("Compare: skipping %s: %v", id, err)
				continue
			}
			g.Stats.RollWindows(now)
			if period == leaderboard.PeriodWeekly {
				xp = g.Stats.WeeklyXP
			} else {
				xp = g.Stats.MonthlyXP
			}
		}

		entries = append(entries, &leaderboard.Entry{
			UserID:        id,
			XP:            xp,
			Level:         s.catalog.LevelFor(p.TotalXP),
			CurrentStreak: p.DailyTasks.CurrentStreak,
			IsSelf:        id == userID,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].XP > entries[j].XP
	})

	var userPosition *leaderboard.Entry
	for i, e := range entries {
		if i > 0 && e.XP == entries[i-1].XP {
			e.Rank = entries[i-1].Rank
		} else {
			e.Rank = i + 1
		}
		if e.IsSelf {
			userPosition = e
		}
	}

	return &leaderboard.Leaderboard{
		Entries:      entries,
		UserPosition: userPosition,
		TotalUsers:   len(entries),
	}, nil
}
