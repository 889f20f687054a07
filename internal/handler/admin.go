package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/service"
)

// AdminHandler handles admin balance commands. The admin check itself is
// middleware; these handlers assume an authorized sender.
type AdminHandler struct {
	accounts *service.AccountService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accounts *service.AccountService) *AdminHandler {
	return &AdminHandler{accounts: accounts}
}

// parseUserAmount parses "<user_id> <amount>" command arguments.
func parseUserAmount(args []string) (int64, decimal.Decimal, error) {
	if len(args) < 2 {
		return 0, decimal.Zero, fmt.Errorf("need user id and amount")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("invalid user id %q", args[0])
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return 0, decimal.Zero, fmt.Errorf("invalid amount %q", args[1])
	}
	return userID, amount, nil
}

// HandleDeposit handles /admin_add <user_id> <amount>.
func (h *AdminHandler) HandleDeposit(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	userID, amount, err := parseUserAmount(c.Args())
	if err != nil {
		return c.Reply("❌ Usage: /admin_add <user_id> <amount>")
	}

	desc := fmt.Sprintf("admin deposit by %d", sender.ID)
	user, err := h.accounts.Deposit(ctx, userID, amount, desc)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return c.Reply("❌ User not found")
		}
		return c.Reply("❌ Deposit failed")
	}
	return c.Reply(fmt.Sprintf("✅ Added %s to @%s, balance is now %s",
		amount.StringFixed(2), user.Username, user.Balance.StringFixed(2)))
}

// HandleWithdraw handles /admin_sub <user_id> <amount>.
func (h *AdminHandler) HandleWithdraw(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	userID, amount, err := parseUserAmount(c.Args())
	if err != nil {
		return c.Reply("❌ Usage: /admin_sub <user_id> <amount>")
	}

	desc := fmt.Sprintf("admin withdrawal by %d", sender.ID)
	user, err := h.accounts.Withdraw(ctx, userID, amount, desc)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			return c.Reply("❌ User not found")
		case errors.Is(err, service.ErrInsufficientBalance):
			return c.Reply("❌ Balance too low for that withdrawal")
		}
		return c.Reply("❌ Withdrawal failed")
	}
	return c.Reply(fmt.Sprintf("✅ Removed %s from @%s, balance is now %s",
		amount.StringFixed(2), user.Username, user.Balance.StringFixed(2)))
}
