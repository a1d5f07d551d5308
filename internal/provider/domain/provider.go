package domain

import (
	"context"
	"errors"
	"fmt"

	posdomain "github.com/smallbiznis/posbridge/internal/pos/domain"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
)

var (
	// ErrUnsupported is returned when a provider lacks a capability.
	ErrUnsupported = errors.New("unsupported_operation")
	// ErrInvalidPayload marks provider responses that do not match the schema.
	ErrInvalidPayload = errors.New("invalid_provider_payload")
	ErrUnknownType    = errors.New("unknown_provider_type")
)

// Provider identifies a provider implementation. Capabilities are the
// optional interfaces below.
type Provider interface {
	Type() string
}

type TransferSource interface {
	FetchTransfers(ctx context.Context, baseURL, token, agentID string, r transferdomain.Range) ([]transferdomain.Transfer, error)
}

// CustomerLookup returns nil, nil when the provider has no match.
type CustomerLookup interface {
	FetchCustomer(ctx context.Context, baseURL, token, idNumber, phone string) (*posdomain.Customer, error)
}

type Authenticator interface {
	LoginWithEmail(ctx context.Context, baseURL, email, password, otp string) (string, error)
	LoginWithPhone(ctx context.Context, baseURL, phone, password, otp string) (string, error)
}

// AuthError reports rejected credentials or a login response without a token.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Auth failed. StatusCode=%d, Message=%s", e.StatusCode, e.Message)
	}
	return e.Message
}

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
