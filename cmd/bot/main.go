// Package main is the entry point for the Telegram wager bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"telegram-wager-bot/internal/bot"
	"telegram-wager-bot/internal/config"
	"telegram-wager-bot/internal/game"
	"telegram-wager-bot/internal/game/domino"
	"telegram-wager-bot/internal/model"
	"telegram-wager-bot/internal/pkg/db"
	"telegram-wager-bot/internal/pkg/lock"
	"telegram-wager-bot/internal/repository"
	"telegram-wager-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	matchRepo := repository.NewMatchRepository(dbPool.Pool)

	// Initialize keyed locks
	userLocks := lock.NewKeyedLock()
	matchLocks := lock.NewKeyedLock()

	// Wagering limits per game type
	minBet, err := cfg.Games.MinBetAmount()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid minimum bet")
	}
	maxBet, err := cfg.Games.MaxBetAmount()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid maximum bet")
	}
	limits := map[model.GameType]game.Limits{
		model.GameCoinFlip: {
			MinBet:      minBet,
			MaxBet:      maxBet,
			RakePercent: decimal.NewFromFloat(cfg.Games.CoinFlip.RakePercent),
		},
		model.GameDomino: {
			MinBet:      minBet,
			MaxBet:      maxBet,
			RakePercent: decimal.NewFromFloat(cfg.Games.Domino.RakePercent),
		},
	}

	// Initialize services
	accountService := service.NewAccountService(dbPool, userRepo, txRepo, userLocks)
	matchService := service.NewMatchService(
		dbPool,
		userRepo,
		txRepo,
		matchRepo,
		matchLocks,
		userLocks,
		limits,
		cfg.Games.JoinTimeout(),
		cfg.Games.MaxOpenMatches,
	)

	// Initialize game registry and register games
	gameRegistry := game.NewRegistry()
	if err := gameRegistry.Register(game.Info{
		Type:        model.GameCoinFlip,
		Name:        "Coin Flip",
		Description: "Heads or tails, winner takes the pot less rake",
		MinPlayers:  2,
		MaxPlayers:  2,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register coin flip")
	}
	if err := gameRegistry.Register(game.Info{
		Type:        model.GameDomino,
		Name:        "Dominoes",
		Description: "Double-six blocking dominoes",
		MinPlayers:  domino.MinPlayers,
		MaxPlayers:  domino.MaxPlayers,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register dominoes")
	}

	// Create bot dependencies
	deps := &bot.Dependencies{
		Config:         cfg,
		AccountService: accountService,
		MatchService:   matchService,
		GameRegistry:   gameRegistry,
	}

	// Initialize bot
	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create users table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			chat_id BIGINT NOT NULL DEFAULT 0,
			balance NUMERIC(12, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_balance ON users(balance DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: Create transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			type VARCHAR(50) NOT NULL,
			amount NUMERIC(12, 2) NOT NULL,
			balance_before NUMERIC(12, 2) NOT NULL,
			balance_after NUMERIC(12, 2) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(type, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	// Migration 3: Create matches table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS matches (
			id BIGSERIAL PRIMARY KEY,
			creator_id BIGINT NOT NULL REFERENCES users(telegram_id),
			opponent_id BIGINT REFERENCES users(telegram_id),
			game_type VARCHAR(20) NOT NULL,
			bet_amount NUMERIC(12, 2) NOT NULL CHECK (bet_amount > 0),
			status VARCHAR(20) NOT NULL DEFAULT 'waiting',
			game_data JSONB NOT NULL DEFAULT '{}',
			winner_id BIGINT,
			prize NUMERIC(12, 2),
			rake NUMERIC(12, 2),
			expires_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_matches_status_created ON matches(status, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_matches_creator ON matches(creator_id);
		CREATE INDEX IF NOT EXISTS idx_matches_opponent ON matches(opponent_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: matches table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
