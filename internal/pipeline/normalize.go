package pipeline

import (
	"context"
	"fmt"
	"strings"

	billingdomain "github.com/smallbiznis/posbridge/internal/billing/domain"
	"github.com/smallbiznis/posbridge/internal/observability/logger"
	"github.com/smallbiznis/posbridge/internal/observability/tracing"
	posdomain "github.com/smallbiznis/posbridge/internal/pos/domain"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	providerdomain "github.com/smallbiznis/posbridge/internal/provider/domain"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	msgCustomerNotFound  = "Customer not found"
	normalizeErrorPrefix = "Normalize error"
)

type normalizeOutcome int

const (
	outcomeLinked normalizeOutcome = iota
	outcomeCreated
	outcomeNotFound
)

type normalizeRun struct {
	profile   profiledomain.Profile
	baseURL   string
	token     string
	lookup    providerdomain.CustomerLookup
	lookupErr error
}

// NormalizeForProfile links every transfer in r that has no POS customer,
// matching locally by id number then phone, and otherwise creating the
// customer from the provider's record. One failing transfer never stops the
// batch; its error is stored on the transfer.
func (s *Service) NormalizeForProfile(ctx context.Context, r transferdomain.Range, profile profiledomain.Profile, token string) error {
	ctx = stageContext(ctx, profile, logger.OpNormalize)
	ctx, span := tracing.StartSpan(ctx, "pipeline", "pipeline.normalize",
		attribute.String("profile_id", profile.Key()),
		attribute.String("provider", profile.ProviderType),
	)
	defer span.End()
	log := s.logger(ctx)

	if err := requireToken(token); err != nil {
		return err
	}

	settings := s.settings.Get()
	run := normalizeRun{
		profile: profile,
		baseURL: settings.Providers.BaseURL(profile.ProviderType),
		token:   token,
	}
	run.lookup, run.lookupErr = s.providers.CustomerLookup(profile.ProviderType)

	transfers, err := s.transfers.ListByRange(ctx, s.db, profile.Key(), r)
	if err != nil {
		return fmt.Errorf("list transfers: %w", err)
	}

	var linked, created, notFound, failed int
	for _, t := range transfers {
		if !t.NeedsNormalization() {
			continue
		}

		outcome, err := s.normalizeOne(ctx, run, t)
		if err != nil {
			if isLedgerError(err) {
				return err
			}
			failed++
			s.metrics.RecordItemError(ctx, "normalize")
			log.Error("Normalize failed for transfer "+t.TransactionID,
				zap.String("transaction_id", t.TransactionID),
				zap.Error(err),
			)
			if setErr := s.transfers.SetError(ctx, s.db, t.TransactionID, itemError(normalizeErrorPrefix, err), s.clock.Now()); setErr != nil {
				log.Error("Failed to record normalize error", zap.String("transaction_id", t.TransactionID), zap.Error(setErr))
			}
			continue
		}

		switch outcome {
		case outcomeLinked:
			linked++
		case outcomeCreated:
			created++
		case outcomeNotFound:
			notFound++
		}
	}

	log.Info(fmt.Sprintf("Normalize finished: linked=%d, created=%d, notFound=%d, failed=%d", linked, created, notFound, failed),
		zap.Int("linked", linked),
		zap.Int("created", created),
		zap.Int("not_found", notFound),
		zap.Int("failed", failed),
	)
	return nil
}

func (s *Service) normalizeOne(ctx context.Context, run normalizeRun, t transferdomain.Transfer) (normalizeOutcome, error) {
	existing, err := s.findLocalCustomer(ctx, t)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if err := s.transfers.LinkCustomer(ctx, s.db, t.TransactionID, existing.ID, false, s.clock.Now()); err != nil {
			return 0, err
		}
		return outcomeLinked, nil
	}

	if run.lookupErr != nil {
		return 0, run.lookupErr
	}
	remote, err := run.lookup.FetchCustomer(ctx, run.baseURL, run.token, t.SenderIDNumber, t.SenderPhone)
	if err != nil {
		return 0, err
	}
	if remote == nil {
		if err := s.transfers.SetError(ctx, s.db, t.TransactionID, msgCustomerNotFound, s.clock.Now()); err != nil {
			return 0, err
		}
		return outcomeNotFound, nil
	}

	customer := posdomain.Customer{
		ID:        s.genID.Generate(),
		FirstName: strings.TrimSpace(remote.FirstName),
		LastName:  strings.TrimSpace(remote.LastName),
		Phone:     firstNonBlank(remote.Phone, t.SenderPhone),
		IDNumber:  firstNonBlank(remote.IDNumber, t.SenderIDNumber),
		CreatedAt: s.clock.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.pos.InsertCustomer(ctx, tx, &customer); err != nil {
			return err
		}
		if err := s.transfers.LinkCustomer(ctx, tx, t.TransactionID, customer.ID, true, s.clock.Now()); err != nil {
			return err
		}
		return s.record(ctx, tx, billingdomain.EventCustomer, run.profile, t.TransactionID)
	})
	if err != nil {
		return 0, err
	}
	return outcomeCreated, nil
}

func (s *Service) findLocalCustomer(ctx context.Context, t transferdomain.Transfer) (*posdomain.Customer, error) {
	customer, err := s.pos.FindCustomerByIDNumber(ctx, s.db, t.SenderIDNumber)
	if err != nil || customer != nil {
		return customer, err
	}
	return s.pos.FindCustomerByPhone(ctx, s.db, t.SenderPhone)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
