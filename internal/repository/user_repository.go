package repository

import (
	"context"
	"slices"

	"github.com/Proton-105/clicker-social/internal/calendar"
	"github.com/Proton-105/clicker-social/internal/domain"
)

// UserField names a user attribute used for exact-match lookups.
type UserField string

const (
	FieldUsername      UserField = "username"
	FieldUsernameLower UserField = "usernameLower"
	FieldProfileName   UserField = "profileName"
	FieldEmail         UserField = "email"
)

// ListField names one of the set-valued user attributes.
type ListField string

const (
	ListFriends          ListField = "friends"
	ListRequestsSent     ListField = "friendRequestsSent"
	ListRequestsReceived ListField = "friendRequestsReceived"
)

// UserRepository defines persistence operations for users outside transactions.
type UserRepository interface {
	Get(ctx context.Context, username string) (*domain.User, error)
	FindOne(ctx context.Context, field UserField, value string) (*domain.User, error)
	FindByPrefix(ctx context.Context, field UserField, prefix string, limit int) ([]domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, username string, upd UserUpdate) error
	SetProfile(ctx context.Context, username string, patch ProfilePatch) error
}

// ProfilePatch is a merge-write of non-contended profile fields. Nil fields are left untouched.
type ProfilePatch struct {
	ProfileName  *string
	ProfileColor *string
}

func (p ProfilePatch) IsZero() bool {
	return p.ProfileName == nil && p.ProfileColor == nil
}

// UserUpdate is a single atomic update of one user record. Counters are
// relative so concurrent writers never overwrite each other.
type UserUpdate struct {
	LastDailyClaim   *calendar.DateKey
	Streak           *int
	ClanID           *string // "" removes the field
	BalanceDelta     float64
	ClicksDelta      int64
	DailyClicksDelta int64
	SuspiciousDelta  int
	AddToSet         map[ListField][]string
	Pull             map[ListField][]string
	PushBoxes        []domain.Box
}

func (u *UserUpdate) AddTo(field ListField, values ...string) *UserUpdate {
	if u.AddToSet == nil {
		u.AddToSet = make(map[ListField][]string)
	}
	u.AddToSet[field] = append(u.AddToSet[field], values...)
	return u
}

func (u *UserUpdate) PullFrom(field ListField, values ...string) *UserUpdate {
	if u.Pull == nil {
		u.Pull = make(map[ListField][]string)
	}
	u.Pull[field] = append(u.Pull[field], values...)
	return u
}

func (u *UserUpdate) SetClan(id string) *UserUpdate {
	u.ClanID = &id
	return u
}

func (u *UserUpdate) ClearClan() *UserUpdate {
	empty := ""
	u.ClanID = &empty
	return u
}

func (u UserUpdate) IsZero() bool {
	return u.LastDailyClaim == nil && u.Streak == nil && u.ClanID == nil &&
		u.BalanceDelta == 0 && u.ClicksDelta == 0 && u.DailyClicksDelta == 0 &&
		u.SuspiciousDelta == 0 && len(u.AddToSet) == 0 && len(u.Pull) == 0 &&
		len(u.PushBoxes) == 0
}

// ApplyTo mirrors the store-side semantics of u on an in-memory record.
func (u UserUpdate) ApplyTo(rec *domain.User) {
	if u.LastDailyClaim != nil {
		rec.LastDailyClaim = *u.LastDailyClaim
	}
	if u.Streak != nil {
		rec.Streak = *u.Streak
	}
	if u.ClanID != nil {
		rec.ClanID = *u.ClanID
	}

	rec.Balance += u.BalanceDelta
	rec.Clicks += u.ClicksDelta
	rec.DailyClicks += u.DailyClicksDelta

	if u.SuspiciousDelta != 0 {
		n := u.SuspiciousDelta
		if rec.Behavior.SuspiciousEvents != nil {
			n += *rec.Behavior.SuspiciousEvents
		}
		rec.Behavior.SuspiciousEvents = &n
	}

	for field, values := range u.AddToSet {
		list := listOf(rec, field)
		*list = addToSet(*list, values)
	}
	for field, values := range u.Pull {
		list := listOf(rec, field)
		*list = pull(*list, values)
	}

	rec.Boxes = append(rec.Boxes, u.PushBoxes...)
}

func listOf(rec *domain.User, field ListField) *[]string {
	switch field {
	case ListFriends:
		return &rec.Friends
	case ListRequestsSent:
		return &rec.FriendRequestsSent
	case ListRequestsReceived:
		return &rec.FriendRequestsReceived
	default:
		panic("repository: unknown list field " + string(field))
	}
}

func addToSet(list, values []string) []string {
	for _, v := range values {
		if !slices.Contains(list, v) {
			list = append(list, v)
		}
	}
	return list
}

func pull(list, values []string) []string {
	if len(values) == 0 {
		return list
	}
	return slices.DeleteFunc(list, func(v string) bool {
		return slices.Contains(values, v)
	})
}
