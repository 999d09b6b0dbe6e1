// Package mongostore implements repository.Store on MongoDB. Transactions
// require a replica set or sharded cluster.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/Proton-105/clicker-social/internal/domain"
	"github.com/Proton-105/clicker-social/internal/repository"
)

const (
	CollUsers         = "users"
	CollClans         = "clans"
	CollClanChat      = "clans_chat"
	CollMessages      = "messages"
	CollNotifications = "notifications"
	CollModeration    = "moderation_logs"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *slog.Logger
}

var _ repository.Store = (*Store)(nil)

func New(client *mongo.Client, database string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		client: client,
		db:     client.Database(database),
		log:    log,
	}
}

func (s *Store) Database() *mongo.Database {
	return s.db
}

// RunTransaction executes fn in a snapshot/majority transaction. The driver
// re-runs fn on transient transaction errors.
func (s *Store) RunTransaction(ctx context.Context, fn repository.TxFunc) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &tx{db: s.db})
	}, opts)
	return err
}

func (s *Store) Users() repository.UserRepository {
	return &userRepository{coll: s.db.Collection(CollUsers), log: s.log}
}

func (s *Store) Clans() repository.ClanRepository {
	return &clanRepository{coll: s.db.Collection(CollClans)}
}

func (s *Store) Notifications() repository.NotificationRepository {
	return &notificationRepository{coll: s.db.Collection(CollNotifications)}
}

func (s *Store) Messages() repository.MessageRepository {
	return &messageRepository{coll: s.db.Collection(CollMessages)}
}

func (s *Store) ClanChat() repository.ChatRepository {
	return &chatRepository{coll: s.db.Collection(CollClanChat)}
}

func (s *Store) Moderation() repository.ModerationRepository {
	return &moderationRepository{coll: s.db.Collection(CollModeration)}
}

type tx struct {
	db *mongo.Database
}

func (t *tx) User(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	if err := t.db.Collection(CollUsers).FindOne(ctx, bson.M{"_id": username}).Decode(&u); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (t *tx) UpdateUser(ctx context.Context, username string, upd repository.UserUpdate) error {
	return updateUser(ctx, t.db.Collection(CollUsers), username, upd)
}

func (t *tx) Clan(ctx context.Context, id string) (*domain.Clan, error) {
	var c domain.Clan
	if err := t.db.Collection(CollClans).FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (t *tx) InsertClan(ctx context.Context, clan *domain.Clan) error {
	_, err := t.db.Collection(CollClans).InsertOne(ctx, clan)
	return translate(err)
}

func (t *tx) UpdateClan(ctx context.Context, id string, upd repository.ClanUpdate) error {
	doc := clanUpdateDoc(upd)
	if len(doc) == 0 {
		return nil
	}

	res, err := t.db.Collection(CollClans).UpdateOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteClan(ctx context.Context, id string) error {
	res, err := t.db.Collection(CollClans).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repository.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	default:
		return err
	}
}
