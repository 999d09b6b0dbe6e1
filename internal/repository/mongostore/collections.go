package mongostore

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Proton-105/clicker-social/internal/domain"
	"github.com/Proton-105/clicker-social/internal/repository"
)

type userRepository struct {
	coll *mongo.Collection
	log  *slog.Logger
}

func (r *userRepository) Get(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	if err := r.coll.FindOne(ctx, bson.M{"_id": username}).Decode(&u); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *userRepository) FindOne(ctx context.Context, field repository.UserField, value string) (*domain.User, error) {
	var u domain.User
	if err := r.coll.FindOne(ctx, bson.M{string(field): value}).Decode(&u); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *userRepository) FindByPrefix(ctx context.Context, field repository.UserField, prefix string, limit int) ([]domain.User, error) {
	filter := bson.M{string(field): bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().
		SetSort(bson.D{{Key: string(field), Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find users by prefix: %w", err)
	}

	var out []domain.User
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return out, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		if r.log != nil {
			r.log.Error("failed to create user", slog.String("username", user.ID), slog.Any("error", err))
		}
		return translate(err)
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, username string, upd repository.UserUpdate) error {
	return updateUser(ctx, r.coll, username, upd)
}

func (r *userRepository) SetProfile(ctx context.Context, username string, patch repository.ProfilePatch) error {
	set := bson.M{}
	if patch.ProfileName != nil {
		set["profileName"] = *patch.ProfileName
	}
	if patch.ProfileColor != nil {
		set["profileColor"] = *patch.ProfileColor
	}
	if len(set) == 0 {
		return nil
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": username}, bson.M{"$set": set})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func updateUser(ctx context.Context, coll *mongo.Collection, username string, upd repository.UserUpdate) error {
	doc := userUpdateDoc(upd)
	if len(doc) == 0 {
		return nil
	}

	res, err := coll.UpdateOne(ctx, bson.M{"_id": username}, doc)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// userUpdateDoc renders upd as update operators. Counters use $inc so
// concurrent writers compose instead of overwriting each other.
func userUpdateDoc(upd repository.UserUpdate) bson.M {
	set := bson.M{}
	unset := bson.M{}
	inc := bson.M{}

	if upd.LastDailyClaim != nil {
		set["lastDailyClaim"] = string(*upd.LastDailyClaim)
	}
	if upd.Streak != nil {
		set["streak"] = *upd.Streak
	}
	if upd.ClanID != nil {
		if *upd.ClanID == "" {
			unset["clanId"] = ""
		} else {
			set["clanId"] = *upd.ClanID
		}
	}
	if upd.BalanceDelta != 0 {
		inc["balance"] = upd.BalanceDelta
	}
	if upd.ClicksDelta != 0 {
		inc["clicks"] = upd.ClicksDelta
	}
	if upd.DailyClicksDelta != 0 {
		inc["dailyClicks"] = upd.DailyClicksDelta
	}
	if upd.SuspiciousDelta != 0 {
		inc["behavior.suspiciousEvents"] = upd.SuspiciousDelta
	}

	doc := bson.M{}
	if len(set) > 0 {
		doc["$set"] = set
	}
	if len(unset) > 0 {
		doc["$unset"] = unset
	}
	if len(inc) > 0 {
		doc["$inc"] = inc
	}
	if len(upd.AddToSet) > 0 {
		add := bson.M{}
		for field, values := range upd.AddToSet {
			add[string(field)] = bson.M{"$each": values}
		}
		doc["$addToSet"] = add
	}
	if len(upd.Pull) > 0 {
		pull := bson.M{}
		for field, values := range upd.Pull {
			pull[string(field)] = bson.M{"$in": values}
		}
		doc["$pull"] = pull
	}
	if len(upd.PushBoxes) > 0 {
		doc["$push"] = bson.M{"boxes": bson.M{"$each": upd.PushBoxes}}
	}

	return doc
}

func clanUpdateDoc(upd repository.ClanUpdate) bson.M {
	doc := bson.M{}
	if len(upd.AddMembers) > 0 {
		doc["$addToSet"] = bson.M{"members": bson.M{"$each": upd.AddMembers}}
	}
	if len(upd.RemoveMembers) > 0 {
		doc["$pull"] = bson.M{"members": bson.M{"$in": upd.RemoveMembers}}
	}
	if upd.Owner != nil {
		doc["$set"] = bson.M{"owner": *upd.Owner}
	}
	return doc
}

type clanRepository struct {
	coll *mongo.Collection
}

func (r *clanRepository) Get(ctx context.Context, id string) (*domain.Clan, error) {
	var c domain.Clan
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *clanRepository) SearchBySlug(ctx context.Context, prefix string, limit int) ([]domain.Clan, error) {
	filter := bson.M{"slug": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().SetSort(bson.D{{Key: "slug", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("search clans: %w", err)
	}

	var out []domain.Clan
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode clans: %w", err)
	}
	return out, nil
}

type notificationRepository struct {
	coll *mongo.Collection
}

func (r *notificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	_, err := r.coll.InsertOne(ctx, n)
	return translate(err)
}

func (r *notificationRepository) ListFor(ctx context.Context, to string, limit int) ([]domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{"to": to}, opts)
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}

	var out []domain.Notification
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return out, nil
}

type messageRepository struct {
	coll *mongo.Collection
}

func (r *messageRepository) Insert(ctx context.Context, m *domain.DirectMessage) error {
	_, err := r.coll.InsertOne(ctx, m)
	return translate(err)
}

func (r *messageRepository) ListFor(ctx context.Context, to string, limit int) ([]domain.DirectMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{"to": to}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}

	var out []domain.DirectMessage
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return out, nil
}

type chatRepository struct {
	coll *mongo.Collection
}

func (r *chatRepository) Insert(ctx context.Context, m *domain.ChatMessage) error {
	_, err := r.coll.InsertOne(ctx, m)
	return translate(err)
}

func (r *chatRepository) Last(ctx context.Context, clanID string, limit int) ([]domain.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{"clanId": clanID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find clan chat: %w", err)
	}

	var out []domain.ChatMessage
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode clan chat: %w", err)
	}

	slices.Reverse(out)
	return out, nil
}

type moderationRepository struct {
	coll *mongo.Collection
}

func (r *moderationRepository) Insert(ctx context.Context, e *domain.ModerationEntry) error {
	_, err := r.coll.InsertOne(ctx, e)
	return translate(err)
}

func (r *moderationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("delete moderation logs: %w", err)
	}
	return res.DeletedCount, nil
}
