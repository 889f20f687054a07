package service

import "errors"

// Orchestration errors surfaced to the transport layer. Engine rule
// errors (wrong turn, illegal piece) pass through from the game packages;
// these cover the match lifecycle and the ledger.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrUnknownGame         = errors.New("unknown game type")
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchNotJoinable    = errors.New("match is no longer open for joining")
	ErrMatchExpired        = errors.New("match expired before an opponent joined")
	ErrMatchNotWaiting     = errors.New("match is not in the waiting state")
	ErrMatchNotActive      = errors.New("match is not active")
	ErrSelfJoin            = errors.New("cannot join your own match")
	ErrNotParticipant      = errors.New("you are not part of this match")
	ErrNotCreator          = errors.New("only the match creator can do this")
	ErrTooManyMatches      = errors.New("too many open matches")
	ErrWrongGame           = errors.New("move does not belong to this match's game")
	ErrChoiceAlreadyMade   = errors.New("choice already submitted for this match")
)
