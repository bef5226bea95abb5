package services

import "errors"

// Validation errors: rejected before any mutation, retryable with fixed input.
var (
	ErrInvalidAmount      = errors.New("xp amount must be positive")
	ErrTaskNotFound       = errors.New("task not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrInvalidPeriod      = errors.New("invalid leaderboard period")
)

// State-conflict errors: expected, user-visible, not retryable within the
// same day or window.
var (
	ErrTaskAlreadyCompleted = errors.New("task already completed today")
	ErrAlreadyCheckedIn     = errors.New("already checked in today")
	ErrDailyLimitReached    = errors.New("surprise box already opened today")
	ErrSelfReference        = errors.New("cannot befriend yourself")
	ErrAlreadyFriends       = errors.New("already friends")
	ErrRequestPending       = errors.New("friend request already pending")
	ErrNoSuchRequest        = errors.New("no such friend request")
	ErrNotFriends           = errors.New("users are not friends")
)

// ErrTaskNotVerified means the activity oracle could not confirm the task was
// earned. Wrapped with a reason naming the missing activity; retryable once
// the activity happens.
var ErrTaskNotVerified = errors.New("task not verified")

// ErrConcurrentUpdate surfaces after the bounded optimistic-retry budget is
// exhausted. Transient; the caller may retry the whole request.
var ErrConcurrentUpdate = errors.New("concurrent update, please retry")
