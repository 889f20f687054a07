package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"telegram-wager-bot/internal/game"
	"telegram-wager-bot/internal/game/coinflip"
	"telegram-wager-bot/internal/game/domino"
	"telegram-wager-bot/internal/model"
	"telegram-wager-bot/internal/pkg/db"
	"telegram-wager-bot/internal/pkg/lock"
	"telegram-wager-bot/internal/repository"
)

// Notifier delivers out-of-band messages to users, used to tell a match
// creator their match was joined. The transport layer implements it.
type Notifier interface {
	Notify(user *model.User, text string)
}

// MatchService orchestrates the match lifecycle: creation with escrow,
// joining, move submission, settlement and cancellation. Every balance
// mutation and its match-state transition commit in one database
// transaction; per-match and per-user keyed locks serialize racing
// submissions before they reach the database.
type MatchService struct {
	pool       *db.Pool
	userRepo   *repository.UserRepository
	txRepo     *repository.TransactionRepository
	matchRepo  *repository.MatchRepository
	matchLocks *lock.KeyedLock
	userLocks  *lock.KeyedLock

	limits         map[model.GameType]game.Limits
	joinTimeout    time.Duration
	maxOpenMatches int
	notifier       Notifier
}

// NewMatchService creates a new MatchService instance.
func NewMatchService(
	pool *db.Pool,
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
	matchRepo *repository.MatchRepository,
	matchLocks *lock.KeyedLock,
	userLocks *lock.KeyedLock,
	limits map[model.GameType]game.Limits,
	joinTimeout time.Duration,
	maxOpenMatches int,
) *MatchService {
	return &MatchService{
		pool:           pool,
		userRepo:       userRepo,
		txRepo:         txRepo,
		matchRepo:      matchRepo,
		matchLocks:     matchLocks,
		userLocks:      userLocks,
		limits:         limits,
		joinTimeout:    joinTimeout,
		maxOpenMatches: maxOpenMatches,
	}
}

// SetNotifier installs the join-notification sink. A nil notifier
// disables notifications.
func (s *MatchService) SetNotifier(n Notifier) {
	s.notifier = n
}

// matchLockTimeout bounds how long a submission waits on a match lock
// held by a racing operation before giving up.
const matchLockTimeout = 5 * time.Second

// withMatchLock runs fn while holding the match's lock. A lock still held
// after the timeout surfaces as lock.ErrLockTimeout so the caller can ask
// the user to retry instead of queueing indefinitely.
func (s *MatchService) withMatchLock(ctx context.Context, matchID int64, fn func() error) error {
	if !s.matchLocks.LockWithTimeout(ctx, matchID, matchLockTimeout) {
		return fmt.Errorf("match #%d: %w", matchID, lock.ErrLockTimeout)
	}
	defer s.matchLocks.Unlock(matchID)
	return fn()
}

// gameLimits returns the wagering limits for a game type.
func (s *MatchService) gameLimits(gt model.GameType) (game.Limits, error) {
	limits, ok := s.limits[gt]
	if !ok {
		return game.Limits{}, fmt.Errorf("%w: %q", ErrUnknownGame, gt)
	}
	return limits, nil
}

// CreateMatch opens a new match: the wager is validated, the creator's
// balance is checked and debited into escrow, and the match record is
// written, all in one transaction. The match waits for an opponent until
// the join window lapses.
func (s *MatchService) CreateMatch(ctx context.Context, creatorID int64, gameType model.GameType, bet decimal.Decimal) (*model.Match, error) {
	limits, err := s.gameLimits(gameType)
	if err != nil {
		return nil, err
	}
	if err := limits.ValidateBet(bet); err != nil {
		return nil, err
	}

	var match *model.Match
	err = s.userLocks.WithLock(creatorID, func() error {
		open, err := s.matchRepo.CountOpenByUser(ctx, creatorID)
		if err != nil {
			return err
		}
		if open >= s.maxOpenMatches {
			return fmt.Errorf("%w: limit is %d", ErrTooManyMatches, s.maxOpenMatches)
		}

		return s.pool.RunInTx(ctx, func(tx pgx.Tx) error {
			matches := s.matchRepo.WithTx(tx)
			m, err := matches.Create(ctx, creatorID, gameType, bet, time.Now().Add(s.joinTimeout))
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("wager escrow for match #%d", m.ID)
			if err := s.debit(ctx, tx, creatorID, bet, desc); err != nil {
				return err
			}
			match = m
			return nil
		})
	})
	if err != nil {
		return nil, s.mapLedgerErr(err, "failed to create match")
	}

	log.Info().
		Int64("match_id", match.ID).
		Int64("creator_id", creatorID).
		Str("game", string(gameType)).
		Str("bet", bet.StringFixed(2)).
		Msg("match created")

	return match, nil
}

// JoinMatch attaches an opponent to a waiting match, debits their wager
// into escrow and activates the match. A lapsed join window is handled
// here: the match flips to expired, the creator is refunded and
// ErrMatchExpired is returned. For dominoes the activation also deals the
// opening hands.
func (s *MatchService) JoinMatch(ctx context.Context, matchID, opponentID int64) (*model.Match, error) {
	var match *model.Match
	err := s.withMatchLock(ctx, matchID, func() error {
		m, err := s.getMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.CreatorID == opponentID {
			return ErrSelfJoin
		}
		if m.Status != model.MatchWaiting {
			return ErrMatchNotJoinable
		}
		if m.Expired(time.Now()) {
			if err := s.expire(ctx, m); err != nil {
				return err
			}
			return ErrMatchExpired
		}

		err = s.userLocks.WithLock(opponentID, func() error {
			return s.pool.RunInTx(ctx, func(tx pgx.Tx) error {
				matches := s.matchRepo.WithTx(tx)
				joined, err := matches.AttachOpponent(ctx, matchID, opponentID)
				if err != nil {
					return err
				}
				desc := fmt.Sprintf("wager escrow for match #%d", matchID)
				if err := s.debit(ctx, tx, opponentID, m.BetAmount, desc); err != nil {
					return err
				}

				if joined.GameType == model.GameDomino {
					limits, err := s.gameLimits(model.GameDomino)
					if err != nil {
						return err
					}
					players := []string{
						domino.PlayerKey(joined.CreatorID),
						domino.PlayerKey(opponentID),
					}
					eng, err := domino.New(m.BetAmount, limits, players)
					if err != nil {
						return err
					}
					data, err := eng.State().Marshal()
					if err != nil {
						return err
					}
					if err := matches.UpdateGameData(ctx, matchID, data); err != nil {
						return err
					}
					joined.GameData = data
				}

				match = joined
				return nil
			})
		})
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrMatchNotJoinable) {
			return nil, ErrMatchNotJoinable
		}
		return nil, s.mapLedgerErr(err, "failed to join match")
	}

	log.Info().
		Int64("match_id", match.ID).
		Int64("opponent_id", opponentID).
		Msg("match joined")

	s.notifyJoined(ctx, match, opponentID)
	return match, nil
}

// notifyJoined tells the creator their match started. Delivery failures
// are the notifier's problem; the join has already committed.
func (s *MatchService) notifyJoined(ctx context.Context, m *model.Match, opponentID int64) {
	if s.notifier == nil {
		return
	}
	creator, err := s.userRepo.GetByID(ctx, m.CreatorID)
	if err != nil {
		log.Warn().Err(err).Int64("match_id", m.ID).Msg("failed to load creator for join notification")
		return
	}
	text := fmt.Sprintf("Your match #%d was joined, the game is on. Wager: %s",
		m.ID, m.BetAmount.StringFixed(2))
	if opponent, err := s.userRepo.GetByID(ctx, opponentID); err == nil && opponent.Username != "" {
		text = fmt.Sprintf("@%s joined your match #%d, the game is on. Wager: %s",
			opponent.Username, m.ID, m.BetAmount.StringFixed(2))
	}
	s.notifier.Notify(creator, text)
}

// GetMatch retrieves a match by id.
func (s *MatchService) GetMatch(ctx context.Context, matchID int64) (*model.Match, error) {
	return s.getMatch(ctx, matchID)
}

// AvailableMatches lists joinable matches, newest first. Matches whose
// join window already lapsed are filtered out of the listing; their state
// transition happens lazily on the next join attempt.
func (s *MatchService) AvailableMatches(ctx context.Context, gameType *model.GameType, limit int) ([]*model.Match, error) {
	matches, err := s.matchRepo.FindAvailable(ctx, gameType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	now := time.Now()
	open := matches[:0]
	for _, m := range matches {
		if !m.Expired(now) {
			open = append(open, m)
		}
	}
	return open, nil
}

// CancelMatch withdraws a waiting match. Only the creator can cancel and
// only before an opponent joins; the escrowed wager is refunded in the
// same transaction that flips the status.
func (s *MatchService) CancelMatch(ctx context.Context, matchID, userID int64) (*model.Match, error) {
	var match *model.Match
	err := s.withMatchLock(ctx, matchID, func() error {
		m, err := s.getMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.CreatorID != userID {
			return ErrNotCreator
		}
		if m.Status != model.MatchWaiting {
			return ErrMatchNotWaiting
		}

		err = s.userLocks.WithLock(userID, func() error {
			return s.pool.RunInTx(ctx, func(tx pgx.Tx) error {
				matches := s.matchRepo.WithTx(tx)
				if err := matches.UpdateStatus(ctx, matchID, model.MatchCancelled); err != nil {
					return err
				}
				desc := fmt.Sprintf("refund: match #%d cancelled", matchID)
				return s.credit(ctx, tx, userID, m.BetAmount, model.TxTypeDeposit, desc)
			})
		})
		if err != nil {
			return err
		}
		m.Status = model.MatchCancelled
		match = m
		return nil
	})
	if err != nil {
		return nil, s.mapLedgerErr(err, "failed to cancel match")
	}

	log.Info().Int64("match_id", matchID).Msg("match cancelled")
	return match, nil
}

// CoinFlipMoveResult reports one coin flip submission. Resolved is false
// while the match still waits on the other participant's choice.
type CoinFlipMoveResult struct {
	Match    *model.Match
	Resolved bool
	Duel     *coinflip.DuelResult
	WinnerID int64
}

// MakeCoinFlipMove commits one participant's heads-or-tails choice. The
// first choice is stored; the second resolves the duel, settles the pot
// and completes the match in a single transaction.
func (s *MatchService) MakeCoinFlipMove(ctx context.Context, matchID, userID int64, choice coinflip.Choice) (*CoinFlipMoveResult, error) {
	if !choice.Valid() {
		return nil, fmt.Errorf("%w: %q", coinflip.ErrInvalidChoice, choice)
	}

	var result *CoinFlipMoveResult
	err := s.withMatchLock(ctx, matchID, func() error {
		m, err := s.activeMatch(ctx, matchID, userID, model.GameCoinFlip)
		if err != nil {
			return err
		}

		state, err := coinflip.UnmarshalDuelState(m.GameData)
		if err != nil {
			return err
		}
		if userID == m.CreatorID {
			if state.CreatorChoice.Valid() {
				return ErrChoiceAlreadyMade
			}
			state.CreatorChoice = choice
		} else {
			if state.OpponentChoice.Valid() {
				return ErrChoiceAlreadyMade
			}
			state.OpponentChoice = choice
		}

		data, err := state.Marshal()
		if err != nil {
			return err
		}

		if !state.Ready() {
			if err := s.matchRepo.UpdateGameData(ctx, matchID, data); err != nil {
				return err
			}
			m.GameData = data
			result = &CoinFlipMoveResult{Match: m}
			return nil
		}

		limits, err := s.gameLimits(model.GameCoinFlip)
		if err != nil {
			return err
		}
		flip, err := coinflip.New(m.BetAmount, limits)
		if err != nil {
			return err
		}
		duel, err := flip.ResolveDuel(state.CreatorChoice, state.OpponentChoice)
		if err != nil {
			return err
		}

		winnerID := *m.OpponentID
		if duel.CreatorWon {
			winnerID = m.CreatorID
		}
		if err := s.settle(ctx, m, data, &winnerID, duel.Settlement); err != nil {
			return err
		}

		m.GameData = data
		m.Status = model.MatchCompleted
		result = &CoinFlipMoveResult{
			Match:    m,
			Resolved: true,
			Duel:     duel,
			WinnerID: winnerID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DominoMoveResult reports one domino submission: the board as the mover
// sees it, and the outcome once the round has ended.
type DominoMoveResult struct {
	Match   *model.Match
	Board   string
	Over    bool
	Outcome *domino.Outcome
	// WinnerID is set when Over is true and the round was not a tie.
	WinnerID *int64
}

// MakeDominoMove applies one piece placement. Rule violations surface as
// the engine's own errors. A move that ends the round, by going out or by
// blocking the table, settles and completes the match in one transaction.
func (s *MatchService) MakeDominoMove(ctx context.Context, matchID, userID int64, pieceID string, side domino.Side) (*DominoMoveResult, error) {
	return s.dominoTurn(ctx, matchID, userID, func(eng *domino.Game, player string) error {
		return eng.MakeMove(player, pieceID, side)
	})
}

// PassDominoTurn passes the turn for a participant with no playable
// piece. A pass that completes the block condition ends and settles the
// round.
func (s *MatchService) PassDominoTurn(ctx context.Context, matchID, userID int64) (*DominoMoveResult, error) {
	return s.dominoTurn(ctx, matchID, userID, func(eng *domino.Game, player string) error {
		return eng.PassTurn(player)
	})
}

// dominoTurn loads the persisted round, applies one turn action and
// persists or settles the result.
func (s *MatchService) dominoTurn(ctx context.Context, matchID, userID int64, action func(eng *domino.Game, player string) error) (*DominoMoveResult, error) {
	var result *DominoMoveResult
	err := s.withMatchLock(ctx, matchID, func() error {
		m, err := s.activeMatch(ctx, matchID, userID, model.GameDomino)
		if err != nil {
			return err
		}

		limits, err := s.gameLimits(model.GameDomino)
		if err != nil {
			return err
		}
		state, err := domino.UnmarshalState(m.GameData)
		if err != nil {
			return err
		}
		eng, err := domino.FromState(state, m.BetAmount, limits)
		if err != nil {
			return err
		}

		player := domino.PlayerKey(userID)
		if err := action(eng, player); err != nil {
			return err
		}

		data, err := eng.State().Marshal()
		if err != nil {
			return err
		}

		if !eng.IsGameOver() {
			if err := s.matchRepo.UpdateGameData(ctx, matchID, data); err != nil {
				return err
			}
			m.GameData = data
			result = &DominoMoveResult{Match: m, Board: eng.Render(player)}
			return nil
		}

		outcome, err := eng.Winner()
		if err != nil {
			return err
		}

		var winnerID *int64
		if !outcome.Tie {
			id, err := strconv.ParseInt(outcome.Winner, 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt winner key %q: %w", outcome.Winner, err)
			}
			winnerID = &id
		}
		if err := s.settle(ctx, m, data, winnerID, outcome.Settlement); err != nil {
			return err
		}

		m.GameData = data
		m.Status = model.MatchCompleted
		result = &DominoMoveResult{
			Match:    m,
			Board:    eng.Render(player),
			Over:     true,
			Outcome:  outcome,
			WinnerID: winnerID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RenderDominoBoard renders the current round from one participant's
// point of view, without mutating anything.
func (s *MatchService) RenderDominoBoard(ctx context.Context, matchID, userID int64) (string, error) {
	m, err := s.activeMatch(ctx, matchID, userID, model.GameDomino)
	if err != nil {
		return "", err
	}

	limits, err := s.gameLimits(model.GameDomino)
	if err != nil {
		return "", err
	}
	state, err := domino.UnmarshalState(m.GameData)
	if err != nil {
		return "", err
	}
	eng, err := domino.FromState(state, m.BetAmount, limits)
	if err != nil {
		return "", err
	}
	return eng.Render(domino.PlayerKey(userID)), nil
}

// settle finalizes a decided or tied match: the final game state, the
// match completion row, the winner's payout and both audit records commit
// together. A tie refunds both wagers with zero rake.
func (s *MatchService) settle(ctx context.Context, m *model.Match, finalState []byte, winnerID *int64, st game.Settlement) error {
	opponentID := *m.OpponentID
	err := s.userLocks.WithLockPair(m.CreatorID, opponentID, func() error {
		return s.pool.RunInTx(ctx, func(tx pgx.Tx) error {
			matches := s.matchRepo.WithTx(tx)
			if err := matches.UpdateGameData(ctx, m.ID, finalState); err != nil {
				return err
			}
			if err := matches.Complete(ctx, m.ID, winnerID, st.Prize, st.Rake); err != nil {
				return err
			}

			if st.Refund {
				desc := fmt.Sprintf("refund: match #%d tied", m.ID)
				if err := s.credit(ctx, tx, m.CreatorID, m.BetAmount, model.TxTypeDeposit, desc); err != nil {
					return err
				}
				return s.credit(ctx, tx, opponentID, m.BetAmount, model.TxTypeDeposit, desc)
			}

			loserID, _ := m.OtherParticipant(*winnerID)
			winDesc := fmt.Sprintf("prize for match #%d", m.ID)
			if err := s.credit(ctx, tx, *winnerID, st.Prize, model.TxTypeBetWin, winDesc); err != nil {
				return err
			}
			return s.recordLoss(ctx, tx, loserID, m)
		})
	})
	if err != nil {
		return s.mapLedgerErr(err, "failed to settle match")
	}

	event := log.Info().
		Int64("match_id", m.ID).
		Str("prize", st.Prize.StringFixed(2)).
		Str("rake", st.Rake.StringFixed(2)).
		Bool("refund", st.Refund)
	if winnerID != nil {
		event = event.Int64("winner_id", *winnerID)
	}
	event.Msg("match settled")
	return nil
}

// debit moves amount out of a balance and writes the withdrawal record.
func (s *MatchService) debit(ctx context.Context, tx pgx.Tx, userID int64, amount decimal.Decimal, desc string) error {
	users := s.userRepo.WithTx(tx)
	txs := s.txRepo.WithTx(tx)

	before, after, err := users.AdjustBalance(ctx, userID, amount.Neg())
	if err != nil {
		return err
	}
	_, err = txs.Create(ctx, userID, model.TxTypeWithdrawal, amount.Neg(), before, after, &desc)
	return err
}

// credit moves amount into a balance and writes the audit record.
func (s *MatchService) credit(ctx context.Context, tx pgx.Tx, userID int64, amount decimal.Decimal, txType, desc string) error {
	users := s.userRepo.WithTx(tx)
	txs := s.txRepo.WithTx(tx)

	before, after, err := users.AdjustBalance(ctx, userID, amount)
	if err != nil {
		return err
	}
	_, err = txs.Create(ctx, userID, txType, amount, before, after, &desc)
	return err
}

// recordLoss writes the loser's audit record. The wager left the balance
// at escrow time, so this record moves no money: before equals after.
func (s *MatchService) recordLoss(ctx context.Context, tx pgx.Tx, loserID int64, m *model.Match) error {
	users := s.userRepo.WithTx(tx)
	txs := s.txRepo.WithTx(tx)

	loser, err := users.GetByID(ctx, loserID)
	if err != nil {
		return err
	}
	desc := fmt.Sprintf("wager lost in match #%d", m.ID)
	_, err = txs.Create(ctx, loserID, model.TxTypeBetLoss,
		m.BetAmount.Neg(), loser.Balance, loser.Balance, &desc)
	return err
}

// expire flips a lapsed waiting match to expired and refunds the
// creator's escrow, both in one transaction.
func (s *MatchService) expire(ctx context.Context, m *model.Match) error {
	err := s.userLocks.WithLock(m.CreatorID, func() error {
		return s.pool.RunInTx(ctx, func(tx pgx.Tx) error {
			matches := s.matchRepo.WithTx(tx)
			if err := matches.UpdateStatus(ctx, m.ID, model.MatchExpired); err != nil {
				return err
			}
			desc := fmt.Sprintf("refund: match #%d expired", m.ID)
			return s.credit(ctx, tx, m.CreatorID, m.BetAmount, model.TxTypeDeposit, desc)
		})
	})
	if err != nil {
		return s.mapLedgerErr(err, "failed to expire match")
	}

	log.Info().Int64("match_id", m.ID).Msg("match expired, creator refunded")
	return nil
}

// activeMatch loads a match and checks it is active, belongs to the given
// game and includes userID.
func (s *MatchService) activeMatch(ctx context.Context, matchID, userID int64, gt model.GameType) (*model.Match, error) {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if m.Status != model.MatchActive {
		return nil, ErrMatchNotActive
	}
	if m.GameType != gt {
		return nil, fmt.Errorf("%w: match #%d is %s", ErrWrongGame, m.ID, m.GameType)
	}
	return m, nil
}

// getMatch loads a match, mapping the repository's not-found error.
func (s *MatchService) getMatch(ctx context.Context, matchID int64) (*model.Match, error) {
	m, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repository.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

// mapLedgerErr converts repository sentinel errors to their service
// equivalents and wraps anything else.
func (s *MatchService) mapLedgerErr(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, ErrTooManyMatches),
		errors.Is(err, ErrMatchNotFound),
		errors.Is(err, ErrMatchExpired),
		errors.Is(err, ErrMatchNotJoinable),
		errors.Is(err, ErrSelfJoin),
		errors.Is(err, ErrNotCreator),
		errors.Is(err, ErrMatchNotWaiting):
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
