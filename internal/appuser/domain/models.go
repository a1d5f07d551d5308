package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role decides what an operator may do through the API.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleUser    Role = "User"
)

// ParseRole accepts any casing of a known role name.
func ParseRole(value string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "admin":
		return RoleAdmin, true
	case "manager":
		return RoleManager, true
	case "user":
		return RoleUser, true
	}
	return "", false
}

// AppUser is an operator account of the admin API.
type AppUser struct {
	ID                 snowflake.ID  `gorm:"primaryKey" json:"id"`
	Username           string        `gorm:"size:64;not null;uniqueIndex" json:"username"`
	DisplayName        string        `gorm:"size:128" json:"display_name,omitempty"`
	PasswordHash       string        `gorm:"not null" json:"-"`
	Role               Role          `gorm:"size:16;not null" json:"role"`
	IsActive           bool          `gorm:"not null" json:"is_active"`
	MustChangePassword bool          `gorm:"not null" json:"must_change_password"`
	LastLoginAt        *time.Time    `json:"last_login_at,omitempty"`
	CreatedBy          *snowflake.ID `json:"created_by,omitempty"`
	UpdatedBy          *snowflake.ID `json:"updated_by,omitempty"`
	CreatedAt          time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null" json:"updated_at"`
}

func (AppUser) TableName() string { return "app_users" }

// Subject is the casbin subject of the user.
func (u AppUser) Subject() string {
	return "user:" + u.ID.String()
}
