package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Profile is a provider account polled by the sync loop.
type Profile struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"not null" json:"name"`
	ProviderType string       `gorm:"size:16;not null" json:"provider_type"`
	IsActive     bool         `gorm:"not null" json:"is_active"`
	LastSync     *time.Time   `json:"last_sync,omitempty"`

	PosUserID    string `gorm:"size:64" json:"pos_user_id,omitempty"`
	PosCashboxID string `gorm:"size:64" json:"pos_cashbox_id,omitempty"`

	ManualToken   string `json:"-"`
	LoginEmail    string `json:"login_email,omitempty"`
	LoginPhone    string `json:"login_phone,omitempty"`
	LoginPassword string `json:"-"`
	TotpSecret    string `json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// Key is the string form used in logs and billing events.
func (p Profile) Key() string {
	return p.ID.String()
}

func (p Profile) HasManualToken() bool {
	return strings.TrimSpace(p.ManualToken) != ""
}

// NormalizedTotpSecret strips whitespace users paste from authenticator apps.
func (p Profile) NormalizedTotpSecret() string {
	return strings.Join(strings.Fields(p.TotpSecret), "")
}

// HasLoginBundle reports whether auto-login can be attempted.
func (p Profile) HasLoginBundle() bool {
	if p.NormalizedTotpSecret() == "" || strings.TrimSpace(p.LoginPassword) == "" {
		return false
	}
	return strings.TrimSpace(p.LoginEmail) != "" || strings.TrimSpace(p.LoginPhone) != ""
}
