package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/game"
	"telegram-wager-bot/internal/game/coinflip"
	"telegram-wager-bot/internal/game/domino"
	"telegram-wager-bot/internal/model"
	"telegram-wager-bot/internal/pkg/lock"
	"telegram-wager-bot/internal/service"
)

// matchListLimit bounds the /matches listing.
const matchListLimit = 10

// MatchHandler handles the match lifecycle commands for both games.
type MatchHandler struct {
	accounts *service.AccountService
	matches  *service.MatchService
	registry *game.Registry
}

// NewMatchHandler creates a new MatchHandler.
func NewMatchHandler(accounts *service.AccountService, matches *service.MatchService, registry *game.Registry) *MatchHandler {
	return &MatchHandler{accounts: accounts, matches: matches, registry: registry}
}

// HandleFlip handles /flip <amount>: opens a coin flip match.
func (h *MatchHandler) HandleFlip(c tele.Context) error {
	return h.createMatch(c, model.GameCoinFlip, "/flip")
}

// HandleDomino handles /domino <amount>: opens a domino match.
func (h *MatchHandler) HandleDomino(c tele.Context) error {
	return h.createMatch(c, model.GameDomino, "/domino")
}

func (h *MatchHandler) createMatch(c tele.Context, gameType model.GameType, usage string) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply(fmt.Sprintf("❌ Usage: %s <amount>\nFor example: %s 50.00", usage, usage))
	}
	bet, err := decimal.NewFromString(args[0])
	if err != nil {
		return c.Reply("❌ Enter a valid wager amount")
	}

	if _, _, err := h.accounts.EnsureUser(ctx, sender.ID, senderName(sender), 0); err != nil {
		return c.Reply("❌ Something went wrong, try again later")
	}

	m, err := h.matches.CreateMatch(ctx, sender.ID, gameType, bet)
	if err != nil {
		return h.replyErr(c, err)
	}

	info, _ := h.registry.Get(gameType)
	return c.Reply(fmt.Sprintf(
		"🎲 %s match #%d created!\n💵 Wager: %s\nAnyone can take it with /join %d",
		info.Name, m.ID, m.BetAmount.StringFixed(2), m.ID))
}

// HandleMatches handles /matches [flip|domino]: lists open matches.
func (h *MatchHandler) HandleMatches(c tele.Context) error {
	ctx := context.Background()

	var filter *model.GameType
	if args := c.Args(); len(args) > 0 {
		gt, ok := parseGameArg(args[0])
		if !ok {
			return c.Reply("❌ Usage: /matches [flip|domino]")
		}
		filter = &gt
	}

	matches, err := h.matches.AvailableMatches(ctx, filter, matchListLimit)
	if err != nil {
		return c.Reply("❌ Failed to list matches")
	}
	if len(matches) == 0 {
		return c.Reply("📋 No open matches. Start one with /flip or /domino")
	}

	var b strings.Builder
	b.WriteString("📋 Open matches:\n")
	for _, m := range matches {
		name := string(m.GameType)
		if info, ok := h.registry.Get(m.GameType); ok {
			name = info.Name
		}
		b.WriteString(fmt.Sprintf("#%d  %s  wager %s  (join with /join %d)\n",
			m.ID, name, m.BetAmount.StringFixed(2), m.ID))
	}
	return c.Reply(b.String())
}

// parseGameArg maps a user-facing game name to its type.
func parseGameArg(s string) (model.GameType, bool) {
	switch strings.ToLower(s) {
	case "flip", "coinflip", "coin_flip":
		return model.GameCoinFlip, true
	case "domino", "dominoes":
		return model.GameDomino, true
	}
	return "", false
}

// HandleJoin handles /join <match_id>: takes the other side of a
// waiting match.
func (h *MatchHandler) HandleJoin(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	matchID, err := h.matchIDArg(c)
	if err != nil {
		return c.Reply("❌ Usage: /join <match_id>")
	}

	if _, _, err := h.accounts.EnsureUser(ctx, sender.ID, senderName(sender), 0); err != nil {
		return c.Reply("❌ Something went wrong, try again later")
	}

	m, err := h.matches.JoinMatch(ctx, matchID, sender.ID)
	if err != nil {
		return h.replyErr(c, err)
	}

	switch m.GameType {
	case model.GameCoinFlip:
		return c.Reply(fmt.Sprintf(
			"🪙 Match #%d is on! Both players now pick a side:\n/pick %d heads  or  /pick %d tails",
			m.ID, m.ID, m.ID))
	case model.GameDomino:
		board, err := h.matches.RenderDominoBoard(ctx, m.ID, sender.ID)
		if err != nil {
			return h.replyErr(c, err)
		}
		return c.Reply(fmt.Sprintf(
			"🁣 Match #%d is on! Hands are dealt.\nPlay with /move %d <piece> <left|right>\n\n%s",
			m.ID, m.ID, board))
	}
	return c.Reply(fmt.Sprintf("Match #%d is on!", m.ID))
}

// HandlePick handles /pick <match_id> <heads|tails> for coin flip duels.
func (h *MatchHandler) HandlePick(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ Usage: /pick <match_id> <heads|tails>")
	}
	matchID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Enter a valid match id")
	}
	choice, err := coinflip.ParseChoice(strings.ToLower(args[1]))
	if err != nil {
		return c.Reply("❌ Pick heads or tails")
	}

	result, err := h.matches.MakeCoinFlipMove(ctx, matchID, sender.ID, choice)
	if err != nil {
		return h.replyErr(c, err)
	}

	if !result.Resolved {
		return c.Reply(fmt.Sprintf("🪙 Choice locked in for match #%d. Waiting for the other player...", matchID))
	}

	duel := result.Duel
	var b strings.Builder
	fmt.Fprintf(&b, "🪙 Match #%d: the coin lands on %s!\n", matchID, duel.Outcome)
	if duel.TieBreak {
		b.WriteString("Both picked the same side, the match creator takes it.\n")
	}
	winner, err := h.accounts.GetUser(ctx, result.WinnerID)
	if err == nil {
		fmt.Fprintf(&b, "🏆 @%s wins %s (rake %s)",
			winner.Username,
			duel.Settlement.Prize.StringFixed(2),
			duel.Settlement.Rake.StringFixed(2))
	} else {
		fmt.Fprintf(&b, "🏆 Player %d wins %s", result.WinnerID, duel.Settlement.Prize.StringFixed(2))
	}
	return c.Reply(b.String())
}

// HandleMove handles /move <match_id> <piece_id> <left|right> for domino
// matches.
func (h *MatchHandler) HandleMove(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 3 {
		return c.Reply("❌ Usage: /move <match_id> <piece> <left|right>\nSee your pieces with /board <match_id>")
	}
	matchID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Enter a valid match id")
	}
	side := domino.Side(strings.ToLower(args[2]))
	if !side.Valid() {
		return c.Reply("❌ Side must be left or right")
	}

	result, err := h.matches.MakeDominoMove(ctx, matchID, sender.ID, args[1], side)
	if err != nil {
		return h.replyErr(c, err)
	}
	return h.replyDomino(ctx, c, result)
}

// HandlePass handles /pass <match_id> for a player with no playable piece.
func (h *MatchHandler) HandlePass(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	matchID, err := h.matchIDArg(c)
	if err != nil {
		return c.Reply("❌ Usage: /pass <match_id>")
	}

	result, err := h.matches.PassDominoTurn(ctx, matchID, sender.ID)
	if err != nil {
		return h.replyErr(c, err)
	}
	return h.replyDomino(ctx, c, result)
}

// HandleBoard handles /board <match_id>: shows the domino table from the
// sender's point of view.
func (h *MatchHandler) HandleBoard(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	matchID, err := h.matchIDArg(c)
	if err != nil {
		return c.Reply("❌ Usage: /board <match_id>")
	}

	board, err := h.matches.RenderDominoBoard(ctx, matchID, sender.ID)
	if err != nil {
		return h.replyErr(c, err)
	}
	return c.Reply(fmt.Sprintf("🁣 Match #%d\n%s", matchID, board))
}

// HandleCancel handles /cancel <match_id>: withdraws a waiting match.
func (h *MatchHandler) HandleCancel(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	matchID, err := h.matchIDArg(c)
	if err != nil {
		return c.Reply("❌ Usage: /cancel <match_id>")
	}

	m, err := h.matches.CancelMatch(ctx, matchID, sender.ID)
	if err != nil {
		return h.replyErr(c, err)
	}
	return c.Reply(fmt.Sprintf("✅ Match #%d cancelled, your wager of %s is back",
		m.ID, m.BetAmount.StringFixed(2)))
}

// replyDomino formats a domino turn result.
func (h *MatchHandler) replyDomino(ctx context.Context, c tele.Context, result *service.DominoMoveResult) error {
	if !result.Over {
		return c.Reply(fmt.Sprintf("🁣 Match #%d\n%s", result.Match.ID, result.Board))
	}

	out := result.Outcome
	var b strings.Builder
	fmt.Fprintf(&b, "🁣 Match #%d is over!\n", result.Match.ID)
	if out.Blocked {
		b.WriteString("The table is blocked, counting remaining pips.\n")
	}
	if out.Tie {
		b.WriteString("🤝 It's a tie, both wagers refunded.")
		return c.Reply(b.String())
	}

	if result.WinnerID != nil {
		if winner, err := h.accounts.GetUser(ctx, *result.WinnerID); err == nil {
			fmt.Fprintf(&b, "🏆 @%s wins %s (rake %s)",
				winner.Username,
				out.Settlement.Prize.StringFixed(2),
				out.Settlement.Rake.StringFixed(2))
			return c.Reply(b.String())
		}
		fmt.Fprintf(&b, "🏆 Player %d wins %s", *result.WinnerID, out.Settlement.Prize.StringFixed(2))
	}
	return c.Reply(b.String())
}

// matchIDArg parses a single match-id argument.
func (h *MatchHandler) matchIDArg(c tele.Context) (int64, error) {
	args := c.Args()
	if len(args) < 1 {
		return 0, fmt.Errorf("missing match id")
	}
	return strconv.ParseInt(args[0], 10, 64)
}

// replyErr maps service and engine errors to user-facing replies.
func (h *MatchHandler) replyErr(c tele.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInsufficientBalance):
		return c.Reply("❌ Not enough balance for that wager")
	case errors.Is(err, service.ErrTooManyMatches):
		return c.Reply("❌ You have too many open matches, finish or cancel one first")
	case errors.Is(err, service.ErrMatchNotFound):
		return c.Reply("❌ No such match")
	case errors.Is(err, service.ErrMatchExpired):
		return c.Reply("⏰ That match expired, the creator got their wager back")
	case errors.Is(err, service.ErrMatchNotJoinable):
		return c.Reply("❌ That match is no longer open")
	case errors.Is(err, service.ErrSelfJoin):
		return c.Reply("❌ You cannot join your own match")
	case errors.Is(err, service.ErrNotParticipant):
		return c.Reply("❌ You are not part of that match")
	case errors.Is(err, service.ErrNotCreator):
		return c.Reply("❌ Only the match creator can do that")
	case errors.Is(err, service.ErrMatchNotWaiting):
		return c.Reply("❌ The match already started")
	case errors.Is(err, service.ErrMatchNotActive):
		return c.Reply("❌ The match is not active")
	case errors.Is(err, service.ErrChoiceAlreadyMade):
		return c.Reply("❌ You already picked a side for this match")
	case errors.Is(err, service.ErrWrongGame):
		return c.Reply("❌ Wrong command for this match's game")
	case errors.Is(err, lock.ErrLockTimeout):
		return c.Reply("⏳ The match is busy with another action, try again")
	case errors.Is(err, game.ErrBetTooLow),
		errors.Is(err, game.ErrBetTooHigh),
		errors.Is(err, game.ErrBetInvalid):
		return c.Reply(fmt.Sprintf("❌ %s", err))
	case errors.Is(err, coinflip.ErrInvalidChoice):
		return c.Reply("❌ Pick heads or tails")
	case errors.Is(err, domino.ErrNotYourTurn):
		return c.Reply("⏳ Not your turn yet")
	case errors.Is(err, domino.ErrPieceNotInHand):
		return c.Reply("❌ That piece is not in your hand, check /board")
	case errors.Is(err, domino.ErrPieceDoesNotFit):
		return c.Reply("❌ That piece does not fit there")
	case errors.Is(err, domino.ErrHasLegalMove):
		return c.Reply("❌ You still have a playable piece")
	case errors.Is(err, domino.ErrInvalidSide):
		return c.Reply("❌ Side must be left or right")
	}
	return c.Reply("❌ Something went wrong, try again later")
}
