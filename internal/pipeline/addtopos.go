package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	billingdomain "github.com/smallbiznis/posbridge/internal/billing/domain"
	"github.com/smallbiznis/posbridge/internal/config"
	"github.com/smallbiznis/posbridge/internal/observability/logger"
	"github.com/smallbiznis/posbridge/internal/observability/tracing"
	posdomain "github.com/smallbiznis/posbridge/internal/pos/domain"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
	"github.com/smallbiznis/posbridge/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const addToPosErrorPrefix = "Add to POS error"

var (
	errNoCustomer      = errors.New("transfer has no linked customer")
	errCustomerMissing = errors.New("linked customer not found")
	errNotMarked       = errors.New("transfer was not marked as added")
	errUnknownCurrency = errors.New("unsupported currency")
)

// posTarget is the resolved POS binding for one add-to-pos call.
type posTarget struct {
	userID    string
	cashboxID string
	pos       config.POSSettings
}

// AddPendingToPos posts a POS operation for every pending transfer of the
// profile that has a linked customer. Blank overrides fall back to the
// profile binding, then to the global POS settings.
func (s *Service) AddPendingToPos(ctx context.Context, profile profiledomain.Profile, userIDOverride, cashboxIDOverride string) error {
	ctx = stageContext(ctx, profile, logger.OpAddToPos)
	ctx, span := tracing.StartSpan(ctx, "pipeline", "pipeline.add_to_pos",
		attribute.String("profile_id", profile.Key()),
		attribute.String("provider", profile.ProviderType),
	)
	defer span.End()
	log := s.logger(ctx)

	settings := s.settings.Get()
	target := posTarget{
		userID:    firstNonBlank(userIDOverride, profile.PosUserID, settings.POS.UserID),
		cashboxID: firstNonBlank(cashboxIDOverride, profile.PosCashboxID, settings.POS.CashboxID),
		pos:       settings.POS,
	}
	if err := target.validate(); err != nil {
		log.Warn("Add to POS skipped: "+err.Error(), zap.Error(err))
		return err
	}

	pending, err := s.transfers.ListPendingForPos(ctx, s.db, profile.Key())
	if err != nil {
		return fmt.Errorf("list pending transfers: %w", err)
	}

	var success, skipped int
	for _, t := range pending {
		err := s.addOne(ctx, profile, target, t)
		if err == nil {
			success++
			continue
		}
		if isLedgerError(err) {
			return err
		}
		skipped++

		switch {
		case errors.Is(err, errNoCustomer), errors.Is(err, errCustomerMissing):
			log.Warn("Skipping transfer "+t.TransactionID+": "+err.Error(), zap.String("transaction_id", t.TransactionID))
		default:
			s.metrics.RecordItemError(ctx, "add_to_pos")
			log.Error("Add to POS failed for transfer "+t.TransactionID,
				zap.String("transaction_id", t.TransactionID),
				zap.Error(err),
			)
			if setErr := s.transfers.SetError(ctx, s.db, t.TransactionID, itemError(addToPosErrorPrefix, err), s.clock.Now()); setErr != nil {
				log.Error("Failed to record add to POS error", zap.String("transaction_id", t.TransactionID), zap.Error(setErr))
			}
		}
	}

	log.Info(fmt.Sprintf("Add to POS finished: total=%d, success=%d, failedOrSkipped=%d", len(pending), success, skipped),
		zap.Int("total", len(pending)),
		zap.Int("success", success),
		zap.Int("failed_or_skipped", skipped),
	)
	return nil
}

func (t posTarget) validate() error {
	var missing []string
	if strings.TrimSpace(t.userID) == "" {
		missing = append(missing, "user id")
	}
	if strings.TrimSpace(t.cashboxID) == "" {
		missing = append(missing, "cashbox id")
	}
	if strings.TrimSpace(t.pos.CurrencyUSDID) == "" {
		missing = append(missing, "USD currency id")
	}
	if strings.TrimSpace(t.pos.CurrencyEURID) == "" {
		missing = append(missing, "EUR currency id")
	}
	if strings.TrimSpace(t.pos.CurrencyILSID) == "" {
		missing = append(missing, "ILS currency id")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// currencyRef maps a transfer currency to the POS currency reference.
// Unrecognized codes use the USD mapping unless the policy rejects them.
func (t posTarget) currencyRef(currency string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "ILS":
		return t.pos.CurrencyILSID, nil
	case "EUR":
		return t.pos.CurrencyEURID, nil
	case "USD":
		return t.pos.CurrencyUSDID, nil
	}
	if t.pos.UnknownCurrency == config.UnknownCurrencyReject {
		return "", fmt.Errorf("%w %q", errUnknownCurrency, currency)
	}
	return t.pos.CurrencyUSDID, nil
}

func (s *Service) addOne(ctx context.Context, profile profiledomain.Profile, target posTarget, t transferdomain.Transfer) error {
	if t.NeedsNormalization() {
		return errNoCustomer
	}
	customer, err := s.pos.FindCustomerByID(ctx, s.db, *t.PosCustomerID)
	if err != nil {
		return err
	}
	if customer == nil {
		return errCustomerMissing
	}
	currencyRef, err := target.currencyRef(t.Currency)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		op := posdomain.Operation{
			ID:            s.genID.Generate(),
			TransferID:    t.TransactionID,
			CustomerID:    customer.ID,
			Amount:        t.PosAmount,
			CurrencyRefID: currencyRef,
			UserID:        target.userID,
			CashboxID:     target.cashboxID,
			CreatedAt:     now,
		}
		// A stored operation means an earlier run posted it but did not
		// get to mark the transfer.
		err := tx.Transaction(func(sp *gorm.DB) error {
			return s.pos.InsertOperation(ctx, sp, &op)
		})
		if err != nil && !db.IsDuplicateKeyErr(err) {
			return err
		}
		marked, err := s.transfers.MarkAddedToPos(ctx, tx, t.TransactionID, now)
		if err != nil {
			return err
		}
		if !marked {
			return errNotMarked
		}
		return s.record(ctx, tx, billingdomain.EventAddToPos, profile, t.TransactionID)
	})
	if err != nil {
		return err
	}

	s.metrics.RecordPosOperation(ctx, t.Currency)
	return nil
}
