package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transfer mirrors one provider-reported money transfer. The POS linkage
// fields are owned by the normalize and add-to-pos stages.
type Transfer struct {
	TransactionID   string          `gorm:"primaryKey;size:128" json:"transaction_id"`
	ProfileID       string          `gorm:"size:64;not null;index:idx_transfers_profile_date,priority:1" json:"profile_id"`
	ReservationCode string          `gorm:"size:128" json:"reservation_code"`
	OccurredAt      time.Time       `gorm:"not null;index:idx_transfers_profile_date,priority:2" json:"occurred_at"`
	SenderName      string          `json:"sender_name"`
	TellerName      string          `json:"teller_name"`
	AgentName       string          `json:"agent_name"`
	SentAmount      decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"sent_amount"`
	FeeAmount       decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"fee_amount"`
	ExtraAmount     decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"extra_amount"`
	PosAmount       decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"pos_amount"`
	Currency        string          `gorm:"size:3" json:"currency"`
	AgentID         string          `gorm:"size:64" json:"agent_id"`
	SenderIDType    string          `gorm:"size:32" json:"sender_id_type"`
	SenderIDNumber  string          `gorm:"size:64" json:"sender_id_number"`
	SenderPhone     string          `gorm:"size:32" json:"sender_phone"`
	TransferType    string          `gorm:"size:32" json:"transfer_type"`
	Status          string          `gorm:"size:32" json:"status"`
	Nationality     string          `gorm:"size:64" json:"nationality"`

	PosCustomerID *snowflake.ID `json:"pos_customer_id,omitempty"`
	IsNewCustomer bool          `gorm:"not null" json:"is_new_customer"`
	IsAddedToPos  bool          `gorm:"not null;index" json:"is_added_to_pos"`
	ErrorMessage  *string       `json:"error_message,omitempty"`

	CreatedAtUTC time.Time  `gorm:"column:created_at_utc;not null" json:"created_at_utc"`
	UpdatedAtUTC *time.Time `gorm:"column:updated_at_utc" json:"updated_at_utc,omitempty"`
}

func (Transfer) TableName() string { return "transfers" }

func (t Transfer) NeedsNormalization() bool {
	return t.PosCustomerID == nil || *t.PosCustomerID == 0
}

// Range is an inclusive time window.
type Range struct {
	Start time.Time
	End   time.Time
}

type Repository interface {
	Exists(ctx context.Context, db *gorm.DB, transactionID string) (bool, error)
	// Upsert writes provider fields and leaves POS linkage untouched on conflict.
	Upsert(ctx context.Context, db *gorm.DB, transfer *Transfer, now time.Time) error
	ListByRange(ctx context.Context, db *gorm.DB, profileID string, r Range) ([]Transfer, error)
	ListPendingForPos(ctx context.Context, db *gorm.DB, profileID string) ([]Transfer, error)
	LinkCustomer(ctx context.Context, db *gorm.DB, transactionID string, customerID snowflake.ID, isNew bool, now time.Time) error
	SetError(ctx context.Context, db *gorm.DB, transactionID string, message string, now time.Time) error
	// MarkAddedToPos only succeeds for transfers with a linked customer.
	MarkAddedToPos(ctx context.Context, db *gorm.DB, transactionID string, now time.Time) (bool, error)
}
