package pipeline

import (
	"context"
	"fmt"
	"time"

	billingdomain "github.com/smallbiznis/posbridge/internal/billing/domain"
	"github.com/smallbiznis/posbridge/internal/observability/logger"
	"github.com/smallbiznis/posbridge/internal/observability/tracing"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FetchForProfile pulls transfers in r from the provider, upserts them and
// records a Transfer billing event for each one not seen before. It returns
// the stored transfers in r.
func (s *Service) FetchForProfile(ctx context.Context, r transferdomain.Range, profile profiledomain.Profile, token string) ([]transferdomain.Transfer, error) {
	ctx = stageContext(ctx, profile, logger.OpFetch)
	ctx, span := tracing.StartSpan(ctx, "pipeline", "pipeline.fetch",
		attribute.String("profile_id", profile.Key()),
		attribute.String("provider", profile.ProviderType),
	)
	defer span.End()
	log := s.logger(ctx)

	if err := requireToken(token); err != nil {
		return nil, err
	}

	settings := s.settings.Get()
	baseURL := settings.Providers.BaseURL(profile.ProviderType)
	info := s.decoder.Decode(token)
	if info.AgentID == "" {
		log.Warn("Token carries no agent id; fetching without agent scope")
	}

	source, err := s.providers.TransferSource(profile.ProviderType)
	if err != nil {
		return nil, err
	}
	fetched, err := source.FetchTransfers(ctx, baseURL, token, info.AgentID, r)
	if err != nil {
		return nil, fmt.Errorf("fetch transfers: %w", err)
	}

	now := s.clock.Now().UTC()
	fresh := 0
	for i := range fetched {
		t := &fetched[i]
		t.ProfileID = profile.Key()
		if t.CreatedAtUTC.IsZero() {
			t.CreatedAtUTC = now
		}

		isNew, err := s.storeFetched(ctx, profile, t, now)
		if err != nil {
			return nil, err
		}
		if isNew {
			fresh++
		}
	}

	s.metrics.RecordTransfersFetched(ctx, profile.ProviderType, len(fetched), fresh)
	log.Info(fmt.Sprintf("Fetched %d transfers (%d new)", len(fetched), fresh),
		zap.Int("fetched", len(fetched)),
		zap.Int("new", fresh),
		zap.Time("range_start", r.Start),
		zap.Time("range_end", r.End),
	)

	return s.transfers.ListByRange(ctx, s.db, profile.Key(), r)
}

// storeFetched upserts t and, when it was not stored before, appends its
// Transfer event in the same transaction.
func (s *Service) storeFetched(ctx context.Context, profile profiledomain.Profile, t *transferdomain.Transfer, now time.Time) (bool, error) {
	var isNew bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.transfers.Exists(ctx, tx, t.TransactionID)
		if err != nil {
			return fmt.Errorf("check transfer %s: %w", t.TransactionID, err)
		}
		if err := s.transfers.Upsert(ctx, tx, t, now); err != nil {
			return fmt.Errorf("upsert transfer %s: %w", t.TransactionID, err)
		}
		if exists {
			return nil
		}
		isNew = true
		return s.record(ctx, tx, billingdomain.EventTransfer, profile, t.TransactionID)
	})
	if err != nil {
		return false, err
	}
	return isNew, nil
}
