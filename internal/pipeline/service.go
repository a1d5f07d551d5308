// Package pipeline implements the fetch, normalize and add-to-pos stages
// run for one profile.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/auth/tokendecoder"
	billingdomain "github.com/smallbiznis/posbridge/internal/billing/domain"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	obscontext "github.com/smallbiznis/posbridge/internal/observability/context"
	"github.com/smallbiznis/posbridge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/posbridge/internal/observability/metrics"
	posdomain "github.com/smallbiznis/posbridge/internal/pos/domain"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	providerdomain "github.com/smallbiznis/posbridge/internal/provider/domain"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrMissingToken = errors.New("missing_token")

// ConfigError stops add-to-pos when POS mappings are incomplete.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "POS configuration incomplete: missing " + strings.Join(e.Missing, ", ")
}

// LedgerError wraps a failed billing write. It aborts the running stage.
type LedgerError struct {
	Err error
}

func (e *LedgerError) Error() string { return "billing ledger: " + e.Err.Error() }

func (e *LedgerError) Unwrap() error { return e.Err }

// ProviderResolver finds provider capabilities by provider type.
type ProviderResolver interface {
	TransferSource(providerType string) (providerdomain.TransferSource, error)
	CustomerLookup(providerType string) (providerdomain.CustomerLookup, error)
}

// BillingRecorder appends billable events inside the caller's transaction.
type BillingRecorder interface {
	RecordEventTx(ctx context.Context, tx *gorm.DB, req billingdomain.RecordEventRequest) error
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Settings  config.SettingsProvider
	Transfers transferdomain.Repository
	Pos       posdomain.Repository
	Providers ProviderResolver
	Billing   BillingRecorder
	Decoder   *tokendecoder.Decoder
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	settings  config.SettingsProvider
	transfers transferdomain.Repository
	pos       posdomain.Repository
	providers ProviderResolver
	billing   BillingRecorder
	decoder   *tokendecoder.Decoder
	metrics   *obsmetrics.Metrics
}

func New(p Params) *Service {
	decoder := p.Decoder
	if decoder == nil {
		decoder = tokendecoder.New()
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("pipeline"),
		genID:     p.GenID,
		clock:     p.Clock,
		settings:  p.Settings,
		transfers: p.Transfers,
		pos:       p.Pos,
		providers: p.Providers,
		billing:   p.Billing,
		decoder:   decoder,
		metrics:   p.Metrics,
	}
}

// stageContext tags ctx with the profile and, unless the caller already set
// one, the interactive operation label.
func stageContext(ctx context.Context, profile profiledomain.Profile, operation string) context.Context {
	ctx = obscontext.WithProfileID(ctx, profile.Key())
	if obscontext.OperationFromContext(ctx) == "" {
		ctx = obscontext.WithOperation(ctx, operation)
	}
	return ctx
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.log)
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, kind billingdomain.EventKind, profile profiledomain.Profile, transferID string) error {
	err := s.billing.RecordEventTx(ctx, tx, billingdomain.RecordEventRequest{
		Kind:       kind,
		ProfileID:  profile.Key(),
		Provider:   profile.ProviderType,
		TransferID: transferID,
	})
	if err != nil {
		return &LedgerError{Err: err}
	}
	return nil
}

func requireToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrMissingToken
	}
	return nil
}

func isLedgerError(err error) bool {
	var le *LedgerError
	return errors.As(err, &le)
}

func itemError(prefix string, err error) string {
	return fmt.Sprintf("%s: %v", prefix, err)
}
