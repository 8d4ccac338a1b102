package model

import (
	"time"
)

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"

	BadgeElite = "elite"
)

type User struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Username           string            `json:"username"`
	Email              string            `json:"email"`
	HashedPassword     string            `json:"-"` // Not exposed
	Provider           string            `json:"provider"`
	ProviderID         *string           `json:"-"`
	Avatar             string            `json:"avatar"`
	TotalSolved        int               `json:"totalSolved"`
	EasySolved         int               `json:"easySolved"`
	MediumSolved       int               `json:"mediumSolved"`
	HardSolved         int               `json:"hardSolved"`
	NotificationPrefs  NotificationPrefs `json:"notificationPrefs"`
	EarlyAccessUntil   *time.Time        `json:"earlyAccessUntil,omitempty"`
	FoundingBadgeLevel *string           `json:"foundingBadgeLevel,omitempty"`
	SharedAt           *time.Time        `json:"sharedAt,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// Aggregate returns the cached solve counters.
func (u *User) Aggregate() UserAggregate {
	return UserAggregate{
		TotalSolved:  u.TotalSolved,
		EasySolved:   u.EasySolved,
		MediumSolved: u.MediumSolved,
		HardSolved:   u.HardSolved,
	}
}

// PublicProfile strips account details for GET /users/{id}.
func (u *User) PublicProfile() PublicProfile {
	return PublicProfile{
		ID:           u.ID,
		Name:         u.Name,
		Username:     u.Username,
		Avatar:       u.Avatar,
		TotalSolved:  u.TotalSolved,
		EasySolved:   u.EasySolved,
		MediumSolved: u.MediumSolved,
		HardSolved:   u.HardSolved,
		CreatedAt:    u.CreatedAt,
	}
}

// UserAggregate holds the per-user solve counters. The ingestion path keeps
// TotalSolved == EasySolved + MediumSolved + HardSolved.
type UserAggregate struct {
	TotalSolved  int `json:"totalSolved"`
	EasySolved   int `json:"easySolved"`
	MediumSolved int `json:"mediumSolved"`
	HardSolved   int `json:"hardSolved"`
}

type PublicProfile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Avatar       string    `json:"avatar"`
	TotalSolved  int       `json:"totalSolved"`
	EasySolved   int       `json:"easySolved"`
	MediumSolved int       `json:"mediumSolved"`
	HardSolved   int       `json:"hardSolved"`
	CreatedAt    time.Time `json:"createdAt"`
}

type NotificationPrefs struct {
	Email     bool `json:"notifEmail"`
	Streak    bool `json:"notifStreak"`
	Announce  bool `json:"notifAnnounce"`
	Marketing bool `json:"notifMarketing"`
}

func DefaultNotificationPrefs() NotificationPrefs {
	return NotificationPrefs{Email: true, Streak: true, Announce: true, Marketing: false}
}
