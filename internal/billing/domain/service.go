package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type RecordEventRequest struct {
	Kind       EventKind
	ProfileID  string
	Provider   string
	TransferID string
}

type Service interface {
	RecordEvent(ctx context.Context, req RecordEventRequest) error
	// RecordEventTx appends the event through tx so it commits or rolls
	// back with the caller's state change.
	RecordEventTx(ctx context.Context, tx *gorm.DB, req RecordEventRequest) error
	GetCurrentPeriodSummary(ctx context.Context) (PeriodSummary, error)
	GetPeriodSummary(ctx context.Context, periodKey string) (PeriodSummary, error)
	CloseCurrentPeriod(ctx context.Context) (Period, error)
	ListClosedPeriods(ctx context.Context) ([]Period, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	GetTariffs(ctx context.Context) (Tariffs, error)
	SaveTariffs(ctx context.Context, tariffs Tariffs) (Tariffs, error)
	RenderStatement(ctx context.Context, periodKey string) ([]byte, error)
}

var (
	ErrInvalidKind      = errors.New("invalid_event_kind")
	ErrInvalidProfile   = errors.New("invalid_profile")
	ErrInvalidPeriodKey = errors.New("invalid_period_key")
	ErrNegativePrice    = errors.New("negative_price")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrPeriodNotClosed  = errors.New("period_not_closed")
)
