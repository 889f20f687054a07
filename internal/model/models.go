// Package model defines the data models for the Telegram wager bot.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// User represents a Telegram user account holding an internal balance.
// Balance is an exact fixed-point decimal backed by a NUMERIC column;
// it is never manipulated as a float.
type User struct {
	TelegramID int64           `db:"telegram_id"`
	Username   string          `db:"username"`
	ChatID     int64           `db:"chat_id"`
	Balance    decimal.Decimal `db:"balance"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// Transaction is an append-only audit record of a single balance change.
// It is never mutated after creation; one record exists per ledger mutation.
type Transaction struct {
	ID            int64           `db:"id"`
	UserID        int64           `db:"user_id"`
	Type          string          `db:"type"`
	Amount        decimal.Decimal `db:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	Description   *string         `db:"description"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeDeposit    = "deposit"    // Balance added (admin deposit, refund)
	TxTypeWithdrawal = "withdrawal" // Balance removed (admin withdrawal, wager escrow)
	TxTypeBetWin     = "bet_win"    // Prize paid to a match winner
	TxTypeBetLoss    = "bet_loss"   // Audit record for a match loser
)

// GameType identifies the rules engine a match is played with.
type GameType string

// Supported game types.
const (
	GameCoinFlip GameType = "coin_flip"
	GameDomino   GameType = "domino"
)

// Valid reports whether gt names a supported game type.
func (gt GameType) Valid() bool {
	return gt == GameCoinFlip || gt == GameDomino
}

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

// Match lifecycle states. Completed, cancelled and expired are terminal.
const (
	MatchWaiting   MatchStatus = "waiting"
	MatchActive    MatchStatus = "active"
	MatchCompleted MatchStatus = "completed"
	MatchCancelled MatchStatus = "cancelled"
	MatchExpired   MatchStatus = "expired"
)

// Terminal reports whether no further transitions are possible.
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCancelled || s == MatchExpired
}

// Match is a wager contract between two participants.
//
// A match is created in the waiting state with the creator's wager already
// escrowed. It becomes active when an opponent joins (and is debited),
// completed once settlement has run, expired when its join window lapses,
// or cancelled administratively.
type Match struct {
	ID          int64            `db:"id"`
	CreatorID   int64            `db:"creator_id"`
	OpponentID  *int64           `db:"opponent_id"`
	GameType    GameType         `db:"game_type"`
	BetAmount   decimal.Decimal  `db:"bet_amount"`
	Status      MatchStatus      `db:"status"`
	GameData    json.RawMessage  `db:"game_data"`
	WinnerID    *int64           `db:"winner_id"`
	Prize       *decimal.Decimal `db:"prize"`
	Rake        *decimal.Decimal `db:"rake"`
	ExpiresAt   *time.Time       `db:"expires_at"`
	StartedAt   *time.Time       `db:"started_at"`
	CompletedAt *time.Time       `db:"completed_at"`
	CreatedAt   time.Time        `db:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at"`
}

// HasParticipant reports whether userID is the creator or the joined opponent.
func (m *Match) HasParticipant(userID int64) bool {
	if m.CreatorID == userID {
		return true
	}
	return m.OpponentID != nil && *m.OpponentID == userID
}

// OtherParticipant returns the participant that is not userID.
// The second return is false when the match has no opponent yet or
// userID is not a participant.
func (m *Match) OtherParticipant(userID int64) (int64, bool) {
	if m.OpponentID == nil {
		return 0, false
	}
	switch userID {
	case m.CreatorID:
		return *m.OpponentID, true
	case *m.OpponentID:
		return m.CreatorID, true
	}
	return 0, false
}

// Expired reports whether the match's join window has lapsed at now.
func (m *Match) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}
