package authorization

import (
	"context"
	"errors"

	appuserdomain "github.com/smallbiznis/posbridge/internal/appuser/domain"
)

// Service decides whether an operator may perform an action.
type Service interface {
	Authorize(ctx context.Context, user appuserdomain.AppUser, object, action string) error
	Permissions(ctx context.Context, user appuserdomain.AppUser) ([]Permission, error)
}

// Permission is one object/action pair granted to a role.
type Permission struct {
	Object string `json:"object"`
	Action string `json:"action"`
}

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidActor = errors.New("invalid_actor")
)
