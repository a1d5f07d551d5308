package domain

import (
	"context"
	"errors"
)

type SaveProfileRequest struct {
	Name          string  `json:"name"`
	ProviderType  string  `json:"provider_type"`
	IsActive      *bool   `json:"is_active"`
	PosUserID     string  `json:"pos_user_id"`
	PosCashboxID  string  `json:"pos_cashbox_id"`
	ManualToken   *string `json:"manual_token"`
	LoginEmail    *string `json:"login_email"`
	LoginPhone    *string `json:"login_phone"`
	LoginPassword *string `json:"login_password"`
	TotpSecret    *string `json:"totp_secret"`
}

type Service interface {
	Create(ctx context.Context, req SaveProfileRequest) (Profile, error)
	Update(ctx context.Context, id string, req SaveProfileRequest) (Profile, error)
	Get(ctx context.Context, id string) (Profile, error)
	List(ctx context.Context) ([]Profile, error)
	ListActive(ctx context.Context) ([]Profile, error)
	MarkSynced(ctx context.Context, id string) error
	SaveToken(ctx context.Context, id string, token string) error
}

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidProvider = errors.New("invalid_provider_type")
	ErrNotFound        = errors.New("not_found")
)
