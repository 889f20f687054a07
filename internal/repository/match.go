package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"telegram-wager-bot/internal/model"
)

// MatchRepository handles match record persistence. The opaque game_data
// blob is owned by the game engines; this layer only stores and returns it.
type MatchRepository struct {
	db DBTX
}

// NewMatchRepository creates a new MatchRepository instance.
func NewMatchRepository(db DBTX) *MatchRepository {
	return &MatchRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *MatchRepository) WithTx(tx pgx.Tx) *MatchRepository {
	return &MatchRepository{db: tx}
}

const matchColumns = `id, creator_id, opponent_id, game_type, bet_amount::text, status,
	game_data, winner_id, prize::text, rake::text, expires_at, started_at, completed_at,
	created_at, updated_at`

func scanMatch(row pgx.Row) (*model.Match, error) {
	var (
		m           model.Match
		bet         string
		prize, rake *string
	)
	err := row.Scan(
		&m.ID,
		&m.CreatorID,
		&m.OpponentID,
		&m.GameType,
		&bet,
		&m.Status,
		&m.GameData,
		&m.WinnerID,
		&prize,
		&rake,
		&m.ExpiresAt,
		&m.StartedAt,
		&m.CompletedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.BetAmount, err = decimal.NewFromString(bet); err != nil {
		return nil, fmt.Errorf("failed to parse bet_amount %q: %w", bet, err)
	}
	if prize != nil {
		d, err := decimal.NewFromString(*prize)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prize %q: %w", *prize, err)
		}
		m.Prize = &d
	}
	if rake != nil {
		d, err := decimal.NewFromString(*rake)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rake %q: %w", *rake, err)
		}
		m.Rake = &d
	}
	return &m, nil
}

// Create persists a new match in the waiting state.
func (r *MatchRepository) Create(ctx context.Context, creatorID int64, gameType model.GameType, betAmount decimal.Decimal, expiresAt time.Time) (*model.Match, error) {
	const query = `
		INSERT INTO matches (creator_id, game_type, bet_amount, status, game_data, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, 'waiting', '{}', $4, NOW(), NOW())
		RETURNING ` + matchColumns

	m, err := scanMatch(r.db.QueryRow(ctx, query, creatorID, gameType, betAmount.String(), expiresAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	return m, nil
}

// GetByID retrieves a match by id.
// Returns ErrMatchNotFound if the match does not exist.
func (r *MatchRepository) GetByID(ctx context.Context, id int64) (*model.Match, error) {
	const query = `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	m, err := scanMatch(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

// FindAvailable lists waiting matches, newest first, optionally filtered
// by game type.
func (r *MatchRepository) FindAvailable(ctx context.Context, gameType *model.GameType, limit int) ([]*model.Match, error) {
	const query = `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE status = 'waiting' AND ($1::text IS NULL OR game_type = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	var gt *string
	if gameType != nil {
		s := string(*gameType)
		gt = &s
	}

	rows, err := r.db.Query(ctx, query, gt, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find available matches: %w", err)
	}
	defer rows.Close()

	var matches []*model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matches: %w", err)
	}

	return matches, nil
}

// CountOpenByUser counts a user's matches still in waiting or active state.
func (r *MatchRepository) CountOpenByUser(ctx context.Context, userID int64) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM matches
		WHERE (creator_id = $1 OR opponent_id = $1)
		  AND status IN ('waiting', 'active')
	`

	var count int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open matches: %w", err)
	}
	return count, nil
}

// UpdateStatus sets a match's status.
func (r *MatchRepository) UpdateStatus(ctx context.Context, id int64, status model.MatchStatus) error {
	const query = `
		UPDATE matches
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update match status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMatchNotFound
	}
	return nil
}

// UpdateGameData replaces the opaque game state blob.
func (r *MatchRepository) UpdateGameData(ctx context.Context, id int64, data json.RawMessage) error {
	const query = `
		UPDATE matches
		SET game_data = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, data)
	if err != nil {
		return fmt.Errorf("failed to update game data: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMatchNotFound
	}
	return nil
}

// AttachOpponent joins an opponent to a waiting match and activates it.
// The status predicate makes the transition conditional: if another join
// or an expiry sweep won the race, no row matches and ErrMatchNotJoinable
// is returned.
func (r *MatchRepository) AttachOpponent(ctx context.Context, id int64, opponentID int64) (*model.Match, error) {
	const query = `
		UPDATE matches
		SET opponent_id = $2, status = 'active', started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'waiting' AND opponent_id IS NULL
		RETURNING ` + matchColumns

	m, err := scanMatch(r.db.QueryRow(ctx, query, id, opponentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotJoinable
		}
		if isForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to attach opponent: %w", err)
	}
	return m, nil
}

// Complete finalizes a match with its settlement outcome. A nil winnerID
// records a tie/refund outcome.
func (r *MatchRepository) Complete(ctx context.Context, id int64, winnerID *int64, prize, rake decimal.Decimal) error {
	const query = `
		UPDATE matches
		SET status = 'completed', winner_id = $2, prize = $3::numeric, rake = $4::numeric,
		    completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, winnerID, prize.String(), rake.String())
	if err != nil {
		return fmt.Errorf("failed to complete match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMatchNotFound
	}
	return nil
}
