package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/Proton-105/clicker-social/internal/calendar"
)

// User is the per-player record. ID is the username and never changes.
type User struct {
	ID                     string           `bson:"_id" json:"id"`
	Username               string           `bson:"username" json:"username"`
	UsernameLower          string           `bson:"usernameLower" json:"-"`
	ProfileName            string           `bson:"profileName,omitempty" json:"profileName,omitempty"`
	ProfileColor           string           `bson:"profileColor,omitempty" json:"profileColor,omitempty"`
	Email                  string           `bson:"email,omitempty" json:"-"`
	Balance                float64          `bson:"balance" json:"balance"`
	Clicks                 int64            `bson:"clicks" json:"clicks"`
	DailyClicks            int64            `bson:"dailyClicks" json:"dailyClicks"`
	LastDailyClaim         calendar.DateKey `bson:"lastDailyClaim,omitempty" json:"lastDailyClaim,omitempty"`
	Streak                 int              `bson:"streak" json:"streak"`
	Behavior               Behavior         `bson:"behavior" json:"-"`
	LegacySuspicious       *int             `bson:"suspiciousEvents,omitempty" json:"-"`
	ShadowBanned           bool             `bson:"shadowBanned,omitempty" json:"-"`
	SoftBan                SoftBan          `bson:"softBan" json:"softBan"`
	Boxes                  []Box            `bson:"boxes,omitempty" json:"boxes"`
	Friends                []string         `bson:"friends,omitempty" json:"friends"`
	FriendRequestsSent     []string         `bson:"friendRequestsSent,omitempty" json:"friendRequestsSent"`
	FriendRequestsReceived []string         `bson:"friendRequestsReceived,omitempty" json:"friendRequestsReceived"`
	ClanID                 string           `bson:"clanId,omitempty" json:"clanId,omitempty"`
	CreatedAt              time.Time        `bson:"createdAt" json:"createdAt"`
}

// Behavior holds moderation counters written by the click-burst reporter.
type Behavior struct {
	SuspiciousEvents *int `bson:"suspiciousEvents,omitempty"`
}

type SoftBan struct {
	Active bool       `bson:"active" json:"active"`
	Until  *time.Time `bson:"until,omitempty" json:"until,omitempty"`
	Reason string     `bson:"reason,omitempty" json:"-"`
}

// NewUser returns a fresh record with zero balance and no claim history.
func NewUser(username, profileName string, now time.Time) *User {
	if profileName == "" {
		profileName = username
	}

	return &User{
		ID:            username,
		Username:      username,
		UsernameLower: strings.ToLower(username),
		ProfileName:   profileName,
		ProfileColor:  DefaultProfileColor,
		CreatedAt:     now.UTC(),
	}
}

// DefaultProfileColor is used when a player never picked one.
const DefaultProfileColor = "#00A3FF"

// SuspiciousEvents returns behavior.suspiciousEvents, falling back to the
// legacy top-level counter when the behavior counter is unset or zero.
// Negative values count as zero.
func (u *User) SuspiciousEvents() int {
	if u == nil {
		return 0
	}

	n := 0
	if u.Behavior.SuspiciousEvents != nil {
		n = *u.Behavior.SuspiciousEvents
	}
	if n == 0 && u.LegacySuspicious != nil {
		n = *u.LegacySuspicious
	}

	if n < 0 {
		return 0
	}
	return n
}

func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.ProfileName != "" {
		return u.ProfileName
	}
	return u.Username
}

func (u *User) Color() string {
	if u == nil || u.ProfileColor == "" {
		return DefaultProfileColor
	}
	return u.ProfileColor
}

func (u *User) IsFriend(username string) bool {
	return u != nil && slices.Contains(u.Friends, username)
}

func (u *User) HasIncomingRequest(from string) bool {
	return u != nil && slices.Contains(u.FriendRequestsReceived, from)
}

// Clone returns a deep copy safe to mutate independently of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}

	cp := *u
	cp.Boxes = slices.Clone(u.Boxes)
	cp.Friends = slices.Clone(u.Friends)
	cp.FriendRequestsSent = slices.Clone(u.FriendRequestsSent)
	cp.FriendRequestsReceived = slices.Clone(u.FriendRequestsReceived)
	if u.Behavior.SuspiciousEvents != nil {
		n := *u.Behavior.SuspiciousEvents
		cp.Behavior.SuspiciousEvents = &n
	}
	if u.LegacySuspicious != nil {
		n := *u.LegacySuspicious
		cp.LegacySuspicious = &n
	}
	if u.SoftBan.Until != nil {
		until := *u.SoftBan.Until
		cp.SoftBan.Until = &until
	}

	return &cp
}
