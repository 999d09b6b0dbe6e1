package domain

import (
	"slices"
	"time"
)

type BoxKind string

const (
	BoxNormal BoxKind = "normal"
	BoxBig    BoxKind = "big"
)

func (k BoxKind) Valid() bool {
	return k == BoxNormal || k == BoxBig
}

// Box is an opened loot box kept in the user's history.
type Box struct {
	ID        string    `bson:"id" json:"id"`
	Kind      BoxKind   `bson:"kind" json:"kind"`
	Reward    float64   `bson:"reward" json:"reward"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

type Clan struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Slug      string    `bson:"slug" json:"slug"`
	Owner     string    `bson:"owner" json:"owner"`
	Members   []string  `bson:"members" json:"members"`
	Invites   []string  `bson:"invites" json:"invites"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

func (c *Clan) HasMember(username string) bool {
	return c != nil && slices.Contains(c.Members, username)
}

func (c *Clan) Clone() *Clan {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Members = slices.Clone(c.Members)
	cp.Invites = slices.Clone(c.Invites)
	return &cp
}

type NotificationType string

const (
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationFriendAccept  NotificationType = "friend_accept"
	NotificationClanJoin      NotificationType = "clan_join"
)

type Notification struct {
	ID        string           `bson:"_id" json:"id"`
	To        string           `bson:"to" json:"to"`
	From      string           `bson:"from" json:"from"`
	Type      NotificationType `bson:"type" json:"type"`
	Message   string           `bson:"message" json:"message"`
	CreatedAt time.Time        `bson:"createdAt" json:"createdAt"`
	Visible   bool             `bson:"visible" json:"visible"`
}

type DirectMessage struct {
	ID        string    `bson:"_id" json:"id"`
	From      string    `bson:"from" json:"from"`
	FromName  string    `bson:"fromName" json:"fromName"`
	To        string    `bson:"to" json:"to"`
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

type ChatMessage struct {
	ID        string    `bson:"_id" json:"id"`
	ClanID    string    `bson:"clanId" json:"clanId"`
	From      string    `bson:"from" json:"from"`
	FromName  string    `bson:"fromName" json:"fromName"`
	FromColor string    `bson:"fromColor" json:"fromColor"`
	Text      string    `bson:"text" json:"text"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// ModerationEntry is an append-only record of suspicious activity.
type ModerationEntry struct {
	ID   string         `bson:"_id" json:"id"`
	User string         `bson:"user" json:"user"`
	Type string         `bson:"type" json:"type"`
	Meta map[string]any `bson:"meta,omitempty" json:"meta,omitempty"`
	At   time.Time      `bson:"at" json:"at"`
}
