package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventTransfer EventKind = "Transfer"
	EventAddToPos EventKind = "AddToPos"
	EventCustomer EventKind = "Customer"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventTransfer, EventAddToPos, EventCustomer:
		return true
	default:
		return false
	}
}

// Event is an append-only billable fact.
type Event struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Kind       EventKind    `gorm:"size:16;not null;index:idx_billing_events_kind_ts,priority:1" json:"kind"`
	ProfileID  string       `gorm:"size:64;not null;index" json:"profile_id"`
	Provider   string       `gorm:"size:16;not null" json:"provider"`
	TransferID string       `gorm:"size:128" json:"transfer_id,omitempty"`
	OccurredAt time.Time    `gorm:"not null;index:idx_billing_events_kind_ts,priority:2" json:"occurred_at"`
}

func (Event) TableName() string { return "billing_events" }

const tariffsRowID = 1

// Tariffs is the single effective price row.
type Tariffs struct {
	ID            int             `gorm:"primaryKey;autoIncrement:false" json:"-"`
	TransferPrice decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"transfer_price"`
	AddToPosPrice decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"add_to_pos_price"`
	CustomerPrice decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"customer_price"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

func (Tariffs) TableName() string { return "billing_tariffs" }

// DefaultTariffs applies when no row was saved yet.
func DefaultTariffs() Tariffs {
	return Tariffs{
		ID:            tariffsRowID,
		TransferPrice: decimal.Zero,
		AddToPosPrice: decimal.Zero,
		CustomerPrice: decimal.Zero,
		Currency:      "USD",
	}
}

// PeriodSummary is a read-time projection of events times current tariffs.
type PeriodSummary struct {
	PeriodKey     string          `json:"period_key"`
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	TransferCount int64           `json:"transfer_count"`
	AddToPosCount int64           `json:"add_to_pos_count"`
	CustomerCount int64           `json:"customer_count"`
	Tariffs       Tariffs         `json:"tariffs"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
}

// Period is an immutable closed snapshot, unique per period key.
type Period struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	PeriodKey     string          `gorm:"size:7;not null;uniqueIndex" json:"period_key"`
	FromUTC       time.Time       `gorm:"not null" json:"from_utc"`
	ToUTC         time.Time       `gorm:"not null" json:"to_utc"`
	TransferCount int64           `gorm:"not null" json:"transfer_count"`
	AddToPosCount int64           `gorm:"not null" json:"add_to_pos_count"`
	CustomerCount int64           `gorm:"not null" json:"customer_count"`
	TransferPrice decimal.Decimal `gorm:"type:numeric(18,6);not null;default:0" json:"transfer_price"`
	AddToPosPrice decimal.Decimal `gorm:"type:numeric(18,6);not null;default:0" json:"add_to_pos_price"`
	CustomerPrice decimal.Decimal `gorm:"type:numeric(18,6);not null;default:0" json:"customer_price"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	IsClosed      bool            `gorm:"not null" json:"is_closed"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

func (Period) TableName() string { return "billing_periods" }

type EventFilter struct {
	From      *time.Time
	To        *time.Time
	Kind      EventKind
	ProfileID string
	Provider  string
	Limit     int
}

// KindCounts holds event counts per kind for a time range.
type KindCounts map[EventKind]int64
