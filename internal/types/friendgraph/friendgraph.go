package friendgraph

import (
	"time"

	"github.com/google/uuid"

	"cityPerksAPI/internal/clock"
)

// Graph is one user's fragment of the friend graph. Every edge is stored on
// both endpoints, so any mutation has to be mirrored on the other fragment.
type Graph struct {
	UserID   uuid.UUID `json:"user_id"`
	Friends  []Friend  `json:"friends"`
	Requests Requests  `json:"friend_requests"`
	Stats    Stats     `json:"friend_stats"`
}

type Friend struct {
	FriendID uuid.UUID `json:"friend_id"`
	AddedAt  time.Time `json:"added_at"`
	Nickname string    `json:"nickname,omitempty"`
}

type Requests struct {
	Sent     []SentRequest     `json:"sent"`
	Received []ReceivedRequest `json:"received"`
}

type SentRequest struct {
	ToUserID uuid.UUID `json:"to_user_id"`
	SentAt   time.Time `json:"sent_at"`
}

type ReceivedRequest struct {
	FromUserID uuid.UUID `json:"from_user_id"`
	ReceivedAt time.Time `json:"received_at"`
}

type Stats struct {
	TotalFriends     int        `json:"total_friends"`
	WeeklyXP         int        `json:"weekly_xp"`
	MonthlyXP        int        `json:"monthly_xp"`
	LastWeeklyReset  *time.Time `json:"last_weekly_reset"`
	LastMonthlyReset *time.Time `json:"last_monthly_reset"`
}

func New(userID uuid.UUID) *Graph {
	return &Graph{UserID: userID}
}

func (g *Graph) IsFriend(id uuid.UUID) bool {
	for _, f := range g.Friends {
		if f.FriendID == id {
			return true
		}
	}
	return false
}

func (g *Graph) HasSentRequestTo(id uuid.UUID) bool {
	for _, r := range g.Requests.Sent {
		if r.ToUserID == id {
			return true
		}
	}
	return false
}

func (g *Graph) HasReceivedRequestFrom(id uuid.UUID) bool {
	for _, r := range g.Requests.Received {
		if r.FromUserID == id {
			return true
		}
	}
	return false
}

// RemoveSent drops the outgoing request to id. Returns false if absent.
func (g *Graph) RemoveSent(id uuid.UUID) bool {
	for i, r := range g.Requests.Sent {
		if r.ToUserID == id {
			g.Requests.Sent = append(g.Requests.Sent[:i], g.Requests.Sent[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveReceived drops the incoming request from id. Returns false if absent.
func (g *Graph) RemoveReceived(id uuid.UUID) bool {
	for i, r := range g.Requests.Received {
		if r.FromUserID == id {
			g.Requests.Received = append(g.Requests.Received[:i], g.Requests.Received[i+1:]...)
			return true
		}
	}
	return false
}

// AddFriend records the edge and keeps TotalFriends in step.
func (g *Graph) AddFriend(id uuid.UUID, now time.Time) {
	if g.IsFriend(id) {
		return
	}
	g.Friends = append(g.Friends, Friend{FriendID: id, AddedAt: now})
	g.Stats.TotalFriends = len(g.Friends)
}

// RemoveFriend drops the edge. Returns false if it was not present.
func (g *Graph) RemoveFriend(id uuid.UUID) bool {
	for i, f := range g.Friends {
		if f.FriendID == id {
			g.Friends = append(g.Friends[:i], g.Friends[i+1:]...)
			g.Stats.TotalFriends = len(g.Friends)
			return true
		}
	}
	return false
}

// RollWindows zeroes the weekly/monthly XP counters when their last reset
// falls outside the current window. Called lazily before any read or add.
func (s *Stats) RollWindows(now time.Time) {
	weekStart := clock.WeekStart(now)
	if s.LastWeeklyReset == nil || s.LastWeeklyReset.Before(weekStart) {
		s.WeeklyXP = 0
		t := now
		s.LastWeeklyReset = &t
	}
	monthStart := clock.MonthStart(now)
	if s.LastMonthlyReset == nil || s.LastMonthlyReset.Before(monthStart) {
		s.MonthlyXP = 0
		t := now
		s.LastMonthlyReset = &t
	}
}

// AddXP rolls the windows and credits the grant to both counters.
func (s *Stats) AddXP(amount int, now time.Time) {
	s.RollWindows(now)
	s.WeeklyXP += amount
	s.MonthlyXP += amount
}
