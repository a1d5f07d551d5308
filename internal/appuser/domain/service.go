package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	IsActive    *bool  `json:"is_active"`

	ActorID snowflake.ID `json:"-"`
}

type UpdateUserRequest struct {
	DisplayName *string `json:"display_name"`
	Role        *string `json:"role"`
	IsActive    *bool   `json:"is_active"`
	// Password resets the password and forces a change on next login.
	Password *string `json:"password"`

	ActorID snowflake.ID `json:"-"`
}

type Service interface {
	Authenticate(ctx context.Context, username, password string) (AppUser, error)
	Get(ctx context.Context, id string) (AppUser, error)
	List(ctx context.Context) ([]AppUser, error)
	Create(ctx context.Context, req CreateUserRequest) (AppUser, error)
	Update(ctx context.Context, id string, req UpdateUserRequest) (AppUser, error)
	ChangePassword(ctx context.Context, id string, current, next string) error
	Delete(ctx context.Context, id string) error
	EnsureAdmin(ctx context.Context) error
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidUsername    = errors.New("invalid_username")
	ErrInvalidPassword    = errors.New("invalid_password")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUserInactive       = errors.New("user_inactive")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrLastAdmin          = errors.New("last_active_admin")
	ErrNotFound           = errors.New("user_not_found")
)
