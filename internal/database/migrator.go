// Package database provides MongoDB connection and schema (index) management.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Proton-105/clicker-social/internal/repository/mongostore"
	"github.com/Proton-105/clicker-social/pkg/config"
)

// Connect opens a client for cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, nil
}

// Migration is one idempotent index definition on a collection.
type Migration struct {
	Name       string
	Collection string
	Index      mongo.IndexModel
}

// Migrations lists the indexes the services rely on, in application order.
func Migrations() []Migration {
	return []Migration{
		{
			Name:       "users_username_lower",
			Collection: mongostore.CollUsers,
			Index:      mongo.IndexModel{Keys: bson.D{{Key: "usernameLower", Value: 1}}},
		},
		{
			Name:       "users_username",
			Collection: mongostore.CollUsers,
			Index:      mongo.IndexModel{Keys: bson.D{{Key: "username", Value: 1}}},
		},
		{
			Name:       "users_profile_name",
			Collection: mongostore.CollUsers,
			Index:      mongo.IndexModel{Keys: bson.D{{Key: "profileName", Value: 1}}},
		},
		{
			Name:       "users_email",
			Collection: mongostore.CollUsers,
			Index: mongo.IndexModel{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
		},
		{
			Name:       "clans_slug",
			Collection: mongostore.CollClans,
			Index:      mongo.IndexModel{Keys: bson.D{{Key: "slug", Value: 1}}},
		},
		{
			Name:       "clans_chat_clan_timestamp",
			Collection: mongostore.CollClanChat,
			Index:      mongo.IndexModel{Keys: bson.D{{Key: "clanId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		{
			Name:       "messages_to_created",
			Collection: mongostore.CollMessages,
			Index:      mongo.IndexModel{Keys: bson.D{{Key: "to", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		{
			Name:       "notifications_to_created",
			Collection: mongostore.CollNotifications,
			Index:      mongo.IndexModel{Keys: bson.D{{Key: "to", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		{
			Name:       "moderation_at",
			Collection: mongostore.CollModeration,
			Index:      mongo.IndexModel{Keys: bson.D{{Key: "at", Value: 1}}},
		},
	}
}

// Migrator applies index migrations in order. Creating an existing index is a no-op.
type Migrator struct {
	db  *mongo.Database
	log *slog.Logger
}

// NewMigrator constructs a Migrator that logs through the provided logger instance.
func NewMigrator(db *mongo.Database, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}

	return &Migrator{
		db:  db,
		log: log,
	}
}

// Apply creates every index in migrations, stopping at the first failure.
func (m *Migrator) Apply(ctx context.Context, migrations []Migration) error {
	baseLog := m.log.With(slog.String("database", m.db.Name()))

	if len(migrations) == 0 {
		baseLog.Info("no migrations to apply")
		return nil
	}

	for _, mig := range migrations {
		scopedLog := baseLog.With(
			slog.String("migration", mig.Name),
			slog.String("collection", mig.Collection),
		)

		index := mig.Index
		if index.Options == nil {
			index.Options = options.Index()
		}
		index.Options.SetName(mig.Name)

		if _, err := m.db.Collection(mig.Collection).Indexes().CreateOne(ctx, index); err != nil {
			scopedLog.Error("migration failed", slog.Any("error", err))
			return fmt.Errorf("apply migration %q: %w", mig.Name, err)
		}

		scopedLog.Debug("migration applied")
	}

	baseLog.Info("migrations applied", slog.Int("count", len(migrations)))
	return nil
}

// HealthCheck pings the primary.
type HealthCheck struct {
	client *mongo.Client
}

func NewHealthCheck(client *mongo.Client) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) HealthCheck(ctx context.Context) error {
	if h == nil || h.client == nil {
		return mongo.ErrClientDisconnected
	}
	return h.client.Ping(ctx, nil)
}
