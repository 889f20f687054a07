package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-wager-bot/internal/config"
	"telegram-wager-bot/internal/game"
	"telegram-wager-bot/internal/handler"
	"telegram-wager-bot/internal/model"
	"telegram-wager-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	accountService *service.AccountService
	matchService   *service.MatchService
	gameRegistry   *game.Registry

	accountHandler *handler.AccountHandler
	matchHandler   *handler.MatchHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config         *config.Config
	AccountService *service.AccountService
	MatchService   *service.MatchService
	GameRegistry   *game.Registry
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		accountService: deps.AccountService,
		matchService:   deps.MatchService,
		gameRegistry:   deps.GameRegistry,
	}

	b.accountHandler = handler.NewAccountHandler(deps.AccountService)
	b.matchHandler = handler.NewMatchHandler(deps.AccountService, deps.MatchService, deps.GameRegistry)
	b.adminHandler = handler.NewAdminHandler(deps.AccountService)

	// Match creators learn about joins through their private chat.
	deps.MatchService.SetNotifier(b)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	// Account
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/history", b.accountHandler.HandleHistory)
	b.bot.Handle("/top", b.accountHandler.HandleTop)

	// Matches
	b.bot.Handle("/flip", b.matchHandler.HandleFlip)
	b.bot.Handle("/domino", b.matchHandler.HandleDomino)
	b.bot.Handle("/matches", b.matchHandler.HandleMatches)
	b.bot.Handle("/join", b.matchHandler.HandleJoin)
	b.bot.Handle("/pick", b.matchHandler.HandlePick)
	b.bot.Handle("/move", b.matchHandler.HandleMove)
	b.bot.Handle("/pass", b.matchHandler.HandlePass)
	b.bot.Handle("/board", b.matchHandler.HandleBoard)
	b.bot.Handle("/cancel", b.matchHandler.HandleCancel)

	// Admin (with admin middleware)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/admin_add", b.adminHandler.HandleDeposit)
	adminGroup.Handle("/admin_sub", b.adminHandler.HandleWithdraw)
}

// Notify implements service.Notifier: the message goes to the user's
// private chat when one is known. Users without a recorded private chat
// simply miss the notification.
func (b *Bot) Notify(user *model.User, text string) {
	if user == nil || user.ChatID == 0 {
		return
	}
	_, err := b.bot.Send(&tele.Chat{ID: user.ChatID}, text)
	if err != nil {
		log.Debug().Err(err).Int64("user_id", user.TelegramID).Msg("failed to deliver notification")
	}
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
