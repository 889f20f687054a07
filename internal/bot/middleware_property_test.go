// Package bot provides the Telegram bot initialization, middleware and
// handler registration. Property tests for the admin and whitelist
// checks the middleware is built on.
package bot

import (
	"testing"

	"pgregory.net/rapid"

	"telegram-wager-bot/internal/config"
)

// A user is an admin exactly when their id is in the configured list.
func TestAdminCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numAdmins := rapid.IntRange(1, 10).Draw(t, "numAdmins")
		adminIDs := make([]int64, numAdmins)
		for i := range adminIDs {
			adminIDs[i] = rapid.Int64Range(1, 1000000000).Draw(t, "adminID")
		}

		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}
		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		expected := false
		for _, id := range adminIDs {
			if id == userID {
				expected = true
				break
			}
		}

		if got := cfg.IsAdmin(userID); got != expected {
			t.Fatalf("IsAdmin(%d) = %v, want %v (admins %v)", userID, got, expected, adminIDs)
		}
	})
}

// Every configured admin is always recognized.
func TestAdminCheckKnownAdminProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numAdmins := rapid.IntRange(1, 10).Draw(t, "numAdmins")
		adminIDs := make([]int64, numAdmins)
		for i := range adminIDs {
			adminIDs[i] = rapid.Int64Range(1, 1000000000).Draw(t, "adminID")
		}

		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}
		idx := rapid.IntRange(0, numAdmins-1).Draw(t, "idx")

		if !cfg.IsAdmin(adminIDs[idx]) {
			t.Fatalf("known admin %d not recognized (admins %v)", adminIDs[idx], adminIDs)
		}
	})
}

// A chat is allowed exactly when it is whitelisted.
func TestWhitelistCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numChats := rapid.IntRange(1, 10).Draw(t, "numChats")
		chatIDs := make([]int64, numChats)
		for i := range chatIDs {
			// Group chat ids are negative on Telegram.
			chatIDs[i] = -rapid.Int64Range(1, 1000000000).Draw(t, "chatID")
		}

		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chatIDs}}
		testChatID := -rapid.Int64Range(1, 1000000000).Draw(t, "testChatID")

		expected := false
		for _, id := range chatIDs {
			if id == testChatID {
				expected = true
				break
			}
		}

		if got := cfg.IsChatAllowed(testChatID); got != expected {
			t.Fatalf("IsChatAllowed(%d) = %v, want %v (whitelist %v)", testChatID, got, expected, chatIDs)
		}
	})
}

// An empty whitelist opens the bot to every chat.
func TestEmptyWhitelistAllowsAllProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: []int64{}}}
		chatID := -rapid.Int64Range(1, 1000000000).Draw(t, "chatID")

		if !cfg.IsChatAllowed(chatID) {
			t.Fatalf("chat %d blocked with empty whitelist", chatID)
		}
	})
}

// A user seen in a whitelisted group gains private-chat access.
func TestPrivateUserCacheProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		AllowPrivateUser(userID)
		if !IsPrivateUserAllowed(userID) {
			t.Fatalf("user %d not allowed after caching", userID)
		}
	})
}
