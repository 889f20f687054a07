// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/model"
	"telegram-wager-bot/internal/service"
)

// historyLimit bounds the /history listing.
const historyLimit = 10

// topLimit bounds the /top listing.
const topLimit = 10

// AccountHandler handles account commands: registration, balance,
// history and the leaderboard.
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// senderName picks a display name for the sender.
func senderName(sender *tele.User) string {
	if sender.Username != "" {
		return sender.Username
	}
	return sender.FirstName
}

// ensure registers the sender on first contact and refreshes their
// username and chat id.
func (h *AccountHandler) ensure(ctx context.Context, c tele.Context) (*model.User, bool, error) {
	sender := c.Sender()
	var chatID int64
	if chat := c.Chat(); chat != nil && chat.Type == tele.ChatPrivate {
		chatID = chat.ID
	}
	return h.accounts.EnsureUser(ctx, sender.ID, senderName(sender), chatID)
}

// HandleStart handles the /start command.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	if c.Sender() == nil {
		return nil
	}

	user, created, err := h.ensure(ctx, c)
	if err != nil {
		return c.Reply("❌ Something went wrong, try again later")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"👋 Welcome, @%s! Your account is ready.\n"+
				"💰 Balance: %s\n"+
				"Create a match with /flip <amount> or /domino <amount>.",
			user.Username, user.Balance.StringFixed(2)))
	}
	return c.Reply(fmt.Sprintf("👋 Welcome back, @%s!\n💰 Balance: %s",
		user.Username, user.Balance.StringFixed(2)))
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	if c.Sender() == nil {
		return nil
	}

	user, _, err := h.ensure(ctx, c)
	if err != nil {
		return c.Reply("❌ Failed to get balance")
	}
	return c.Reply(fmt.Sprintf("💰 @%s balance: %s", user.Username, user.Balance.StringFixed(2)))
}

// HandleHistory handles the /history command, listing recent
// transactions newest first.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	txs, err := h.accounts.GetTransactions(ctx, sender.ID, historyLimit)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return c.Reply("❌ No account yet, send /start first")
		}
		return c.Reply("❌ Failed to get history")
	}
	if len(txs) == 0 {
		return c.Reply("📋 No transactions yet")
	}

	var b strings.Builder
	b.WriteString("📋 Recent transactions:\n")
	for _, tx := range txs {
		line := fmt.Sprintf("%s  %s %s  (balance %s)",
			tx.CreatedAt.Format("01-02 15:04"),
			txTypeLabel(tx.Type),
			tx.Amount.StringFixed(2),
			tx.BalanceAfter.StringFixed(2))
		if tx.Description != nil {
			line += "  " + *tx.Description
		}
		b.WriteString(line + "\n")
	}
	return c.Reply(b.String())
}

// txTypeLabel maps a transaction type to its display label.
func txTypeLabel(txType string) string {
	switch txType {
	case model.TxTypeDeposit:
		return "➕ deposit"
	case model.TxTypeWithdrawal:
		return "➖ withdrawal"
	case model.TxTypeBetWin:
		return "🏆 win"
	case model.TxTypeBetLoss:
		return "💸 loss"
	}
	return txType
}

// HandleTop handles the /top command.
func (h *AccountHandler) HandleTop(c tele.Context) error {
	ctx := context.Background()

	users, err := h.accounts.GetTopUsers(ctx, topLimit)
	if err != nil {
		return c.Reply("❌ Failed to get leaderboard")
	}
	if len(users) == 0 {
		return c.Reply("🏆 No players yet")
	}

	var b strings.Builder
	b.WriteString("🏆 Top balances:\n")
	for i, user := range users {
		b.WriteString(fmt.Sprintf("%d. @%s: %s\n", i+1, user.Username, user.Balance.StringFixed(2)))
	}
	return c.Reply(b.String())
}
