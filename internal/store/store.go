// Package store persists autostock subscriptions and known bot users,
// either in the shared Supabase tables or in a local SQLite file.
package store

import (
	"context"
	"time"
)

// User is one row of the bot_users table.
type User struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastSeen  time.Time `json:"last_seen"`
}

// SubscriptionStore is the user_autostocks table: which user tracks which item.
type SubscriptionStore interface {
	// ListItems returns the items a user is subscribed to.
	ListItems(ctx context.Context, userID int64) ([]string, error)

	// ListSubscribers returns every user subscribed to the item. Backends
	// page through large result sets internally.
	ListSubscribers(ctx context.Context, item string) ([]int64, error)

	// Add subscribes a user to an item. Adding twice leaves one row.
	Add(ctx context.Context, userID int64, item string) error

	// Remove unsubscribes a user from an item. Removing a missing row is not
	// an error.
	Remove(ctx context.Context, userID int64, item string) error

	// PurgeUser drops the user and all their subscriptions. Used when sends
	// report the user blocked the bot.
	PurgeUser(ctx context.Context, userID int64) error
}

// UserStore is the bot_users table.
type UserStore interface {
	// UpsertUser records a user sighting, updating last_seen.
	UpsertUser(ctx context.Context, u User) error

	// ListUserIDs returns every known user id (the /broadcast audience).
	ListUserIDs(ctx context.Context) ([]int64, error)

	// Counts returns the number of known users and total subscriptions.
	Counts(ctx context.Context) (users, subscriptions int, err error)
}

// Store is a full backend.
type Store interface {
	SubscriptionStore
	UserStore
	Close() error
}
