package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Customer struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	Phone     string       `gorm:"size:32;index" json:"phone"`
	IDNumber  string       `gorm:"size:64;index" json:"id_number"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Customer) TableName() string { return "pos_customers" }

// Operation is a posted POS ledger line for one transfer.
type Operation struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	TransferID    string          `gorm:"size:128;not null;uniqueIndex" json:"transfer_id"`
	CustomerID    snowflake.ID    `gorm:"not null;index" json:"customer_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"amount"`
	CurrencyRefID string          `gorm:"size:64;not null" json:"currency_ref_id"`
	UserID        string          `gorm:"size:64;not null" json:"user_id"`
	CashboxID     string          `gorm:"size:64;not null" json:"cashbox_id"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

func (Operation) TableName() string { return "pos_operations" }

type Repository interface {
	FindCustomerByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindCustomerByIDNumber(ctx context.Context, db *gorm.DB, idNumber string) (*Customer, error)
	FindCustomerByPhone(ctx context.Context, db *gorm.DB, phone string) (*Customer, error)
	InsertCustomer(ctx context.Context, db *gorm.DB, customer *Customer) error
	InsertOperation(ctx context.Context, db *gorm.DB, op *Operation) error
}
