package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/pos/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const customerColumns = `id, first_name, last_name, phone, id_number, created_at`

func (r *repo) FindCustomerByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindCustomerByIDNumber(ctx context.Context, db *gorm.DB, idNumber string) (*domain.Customer, error) {
	idNumber = strings.TrimSpace(idNumber)
	if idNumber == "" {
		return nil, nil
	}
	return r.findOne(ctx, db, `id_number = ?`, idNumber)
}

func (r *repo) FindCustomerByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, nil
	}
	return r.findOne(ctx, db, `phone = ?`, phone)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg interface{}) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM pos_customers WHERE `+where+` ORDER BY id LIMIT 1`,
		arg,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) InsertCustomer(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pos_customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		customer.ID,
		customer.FirstName,
		customer.LastName,
		customer.Phone,
		customer.IDNumber,
		customer.CreatedAt,
	).Error
}

func (r *repo) InsertOperation(ctx context.Context, db *gorm.DB, op *domain.Operation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pos_operations (id, transfer_id, customer_id, amount, currency_ref_id, user_id, cashbox_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID,
		op.TransferID,
		op.CustomerID,
		op.Amount,
		op.CurrencyRefID,
		op.UserID,
		op.CashboxID,
		op.CreatedAt,
	).Error
}
