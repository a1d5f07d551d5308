package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/posbridge/internal/billing/domain"
	"github.com/smallbiznis/posbridge/internal/clock"
	obsmetrics "github.com/smallbiznis/posbridge/internal/observability/metrics"
	"github.com/smallbiznis/posbridge/internal/providers/pdf"
	"github.com/smallbiznis/posbridge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	PDF     pdf.Provider        `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	clock   clock.Clock
	pdf     pdf.Provider
	metrics *obsmetrics.Metrics

	closeMu    sync.Mutex
	closeLocks map[string]*sync.Mutex
}

func New(p Params) domain.Service {
	renderer := p.PDF
	if renderer == nil {
		renderer = pdf.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		pdf:        renderer,
		metrics:    p.Metrics,
		closeLocks: make(map[string]*sync.Mutex),
	}
}

// RecordEvent appends a billable fact. Storage errors are returned to the
// caller so the triggering operation fails with it.
func (s *Service) RecordEvent(ctx context.Context, req domain.RecordEventRequest) error {
	return s.RecordEventTx(ctx, s.db, req)
}

func (s *Service) RecordEventTx(ctx context.Context, tx *gorm.DB, req domain.RecordEventRequest) error {
	if tx == nil {
		tx = s.db
	}
	if !req.Kind.Valid() {
		return domain.ErrInvalidKind
	}
	profileID := strings.TrimSpace(req.ProfileID)
	if profileID == "" {
		return domain.ErrInvalidProfile
	}

	event := domain.Event{
		ID:         s.genID.Generate(),
		Kind:       req.Kind,
		ProfileID:  profileID,
		Provider:   strings.ToUpper(strings.TrimSpace(req.Provider)),
		TransferID: strings.TrimSpace(req.TransferID),
		OccurredAt: s.clock.Now().UTC(),
	}
	if err := s.repo.InsertEvent(ctx, tx, &event); err != nil {
		return fmt.Errorf("record %s billing event: %w", req.Kind, err)
	}
	s.metrics.RecordBillingEvent(ctx, string(event.Kind), event.Provider)
	return nil
}

func (s *Service) GetCurrentPeriodSummary(ctx context.Context) (domain.PeriodSummary, error) {
	return s.GetPeriodSummary(ctx, domain.PeriodKey(s.clock.Now()))
}

func (s *Service) GetPeriodSummary(ctx context.Context, periodKey string) (domain.PeriodSummary, error) {
	from, next, err := domain.PeriodBounds(periodKey)
	if err != nil {
		return domain.PeriodSummary{}, err
	}
	tariffs, err := s.GetTariffs(ctx)
	if err != nil {
		return domain.PeriodSummary{}, err
	}
	counts, err := s.repo.CountEvents(ctx, s.db, from, next)
	if err != nil {
		return domain.PeriodSummary{}, err
	}
	return summarize(from.Format("2006-01"), from, next, counts, tariffs), nil
}

func summarize(key string, from, next time.Time, counts domain.KindCounts, tariffs domain.Tariffs) domain.PeriodSummary {
	transfers := counts[domain.EventTransfer]
	addToPos := counts[domain.EventAddToPos]
	customers := counts[domain.EventCustomer]

	total := tariffs.TransferPrice.Mul(decimal.NewFromInt(transfers)).
		Add(tariffs.AddToPosPrice.Mul(decimal.NewFromInt(addToPos))).
		Add(tariffs.CustomerPrice.Mul(decimal.NewFromInt(customers)))

	return domain.PeriodSummary{
		PeriodKey:     key,
		From:          from,
		To:            domain.LastMillisecond(next),
		TransferCount: transfers,
		AddToPosCount: addToPos,
		CustomerCount: customers,
		Tariffs:       tariffs,
		TotalAmount:   total,
		Currency:      tariffs.Currency,
	}
}

// CloseCurrentPeriod snapshots the current month once. Later calls return
// the stored snapshot untouched.
func (s *Service) CloseCurrentPeriod(ctx context.Context) (domain.Period, error) {
	key := domain.PeriodKey(s.clock.Now())

	lock := s.periodLock(key)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.repo.FindPeriodByKey(ctx, s.db, key)
	if err != nil {
		return domain.Period{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	summary, err := s.GetPeriodSummary(ctx, key)
	if err != nil {
		return domain.Period{}, err
	}

	period := domain.Period{
		ID:            s.genID.Generate(),
		PeriodKey:     summary.PeriodKey,
		FromUTC:       summary.From,
		ToUTC:         summary.To,
		TransferCount: summary.TransferCount,
		AddToPosCount: summary.AddToPosCount,
		CustomerCount: summary.CustomerCount,
		TransferPrice: summary.Tariffs.TransferPrice,
		AddToPosPrice: summary.Tariffs.AddToPosPrice,
		CustomerPrice: summary.Tariffs.CustomerPrice,
		Amount:        summary.TotalAmount,
		Currency:      summary.Currency,
		IsClosed:      true,
		CreatedAt:     s.clock.Now().UTC(),
	}
	if err := s.repo.InsertPeriod(ctx, s.db, &period); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return domain.Period{}, fmt.Errorf("close period %s: %w", key, err)
		}
		stored, findErr := s.repo.FindPeriodByKey(ctx, s.db, key)
		if findErr != nil {
			return domain.Period{}, findErr
		}
		if stored == nil {
			return domain.Period{}, fmt.Errorf("close period %s: %w", key, err)
		}
		return *stored, nil
	}

	s.log.Info("billing period closed",
		zap.String("period_key", period.PeriodKey),
		zap.Int64("transfer_count", period.TransferCount),
		zap.Int64("add_to_pos_count", period.AddToPosCount),
		zap.Int64("customer_count", period.CustomerCount),
		zap.String("amount", period.Amount.String()),
		zap.String("currency", period.Currency),
	)
	return period, nil
}

func (s *Service) periodLock(key string) *sync.Mutex {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	lock, ok := s.closeLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.closeLocks[key] = lock
	}
	return lock
}

func (s *Service) ListClosedPeriods(ctx context.Context) ([]domain.Period, error) {
	return s.repo.ListPeriods(ctx, s.db)
}

func (s *Service) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	filter.Provider = strings.ToUpper(strings.TrimSpace(filter.Provider))
	return s.repo.ListEvents(ctx, s.db, filter)
}

func (s *Service) GetTariffs(ctx context.Context) (domain.Tariffs, error) {
	stored, err := s.repo.GetTariffs(ctx, s.db)
	if err != nil {
		return domain.Tariffs{}, err
	}
	if stored == nil {
		return domain.DefaultTariffs(), nil
	}
	return *stored, nil
}

// SaveTariffs replaces the effective row. Closed periods keep their amounts.
func (s *Service) SaveTariffs(ctx context.Context, tariffs domain.Tariffs) (domain.Tariffs, error) {
	if tariffs.TransferPrice.IsNegative() || tariffs.AddToPosPrice.IsNegative() || tariffs.CustomerPrice.IsNegative() {
		return domain.Tariffs{}, domain.ErrNegativePrice
	}
	currency := strings.ToUpper(strings.TrimSpace(tariffs.Currency))
	if len(currency) != 3 {
		return domain.Tariffs{}, domain.ErrInvalidCurrency
	}

	row := domain.DefaultTariffs()
	row.TransferPrice = tariffs.TransferPrice
	row.AddToPosPrice = tariffs.AddToPosPrice
	row.CustomerPrice = tariffs.CustomerPrice
	row.Currency = currency
	row.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.SaveTariffs(ctx, s.db, &row); err != nil {
		return domain.Tariffs{}, err
	}
	return row, nil
}

// RenderStatement renders a PDF for a closed period.
func (s *Service) RenderStatement(ctx context.Context, periodKey string) ([]byte, error) {
	if _, _, err := domain.PeriodBounds(periodKey); err != nil {
		return nil, err
	}
	period, err := s.repo.FindPeriodByKey(ctx, s.db, strings.TrimSpace(periodKey))
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, domain.ErrPeriodNotClosed
	}

	data := pdf.StatementData{
		Issuer:    "posbridge",
		PeriodKey: period.PeriodKey,
		From:      period.FromUTC.Format("2006-01-02"),
		To:        period.ToUTC.Format("2006-01-02"),
		ClosedAt:  period.CreatedAt.UTC().Format("2006-01-02 15:04 MST"),
		Currency:  period.Currency,
		Lines: []pdf.StatementLine{
			statementLine("Transfers fetched", period.TransferCount, period.TransferPrice),
			statementLine("Operations added to POS", period.AddToPosCount, period.AddToPosPrice),
			statementLine("Customers created", period.CustomerCount, period.CustomerPrice),
		},
		Total: period.Amount.StringFixed(2),
	}

	reader, err := s.pdf.GenerateStatement(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("render statement %s: %w", period.PeriodKey, err)
	}
	return io.ReadAll(reader)
}

// statementLine prices one row with the tariff captured at close time.
func statementLine(description string, qty int64, unitPrice decimal.Decimal) pdf.StatementLine {
	return pdf.StatementLine{
		Description: description,
		Qty:         qty,
		UnitPrice:   unitPrice.StringFixed(4),
		Amount:      unitPrice.Mul(decimal.NewFromInt(qty)).StringFixed(2),
	}
}
