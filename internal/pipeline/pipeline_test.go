package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/posbridge/internal/billing/domain"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	posdomain "github.com/smallbiznis/posbridge/internal/pos/domain"
	posrepository "github.com/smallbiznis/posbridge/internal/pos/repository"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	providerdomain "github.com/smallbiznis/posbridge/internal/provider/domain"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
	transferrepository "github.com/smallbiznis/posbridge/internal/transfer/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeProvider struct {
	transfers   []transferdomain.Transfer
	customers   map[string]*posdomain.Customer
	lookupFails map[string]error
	agentIDs    []string
	noLookup    bool
}

func (f *fakeProvider) Type() string { return "STB" }

func (f *fakeProvider) FetchTransfers(ctx context.Context, baseURL, token, agentID string, r transferdomain.Range) ([]transferdomain.Transfer, error) {
	f.agentIDs = append(f.agentIDs, agentID)
	return append([]transferdomain.Transfer(nil), f.transfers...), nil
}

func (f *fakeProvider) FetchCustomer(ctx context.Context, baseURL, token, idNumber, phone string) (*posdomain.Customer, error) {
	if err := f.lookupFails[idNumber]; err != nil {
		return nil, err
	}
	if c, ok := f.customers[idNumber]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeProvider) TransferSource(string) (providerdomain.TransferSource, error) {
	return f, nil
}

func (f *fakeProvider) CustomerLookup(string) (providerdomain.CustomerLookup, error) {
	if f.noLookup {
		return nil, providerdomain.ErrUnsupported
	}
	return f, nil
}

type fakeLedger struct {
	mu     sync.Mutex
	events []billingdomain.RecordEventRequest
	err    error
}

func (l *fakeLedger) RecordEventTx(ctx context.Context, tx *gorm.DB, req billingdomain.RecordEventRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, req)
	return nil
}

func (l *fakeLedger) count(kind billingdomain.EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	provider *fakeProvider
	ledger   *fakeLedger
	settings config.Settings
	clock    *clock.FakeClock
}

func newFixture(t *testing.T, mutate func(*config.Settings)) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&transferdomain.Transfer{}, &posdomain.Customer{}, &posdomain.Operation{}))

	settings := config.DefaultSettings()
	settings.Providers.FallbackBaseURL = "https://stb.example"
	settings.POS.CurrencyUSDID = "cur-usd"
	settings.POS.CurrencyEURID = "cur-eur"
	settings.POS.CurrencyILSID = "cur-ils"
	settings.POS.UserID = "user-1"
	settings.POS.CashboxID = "box-1"
	if mutate != nil {
		mutate(&settings)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	f := &fixture{
		db:       db,
		provider: &fakeProvider{customers: map[string]*posdomain.Customer{}, lookupFails: map[string]error{}},
		ledger:   &fakeLedger{},
		settings: settings,
		clock:    clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.svc = New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     f.clock,
		Settings:  config.NewStaticSettings(settings),
		Transfers: transferrepository.Provide(),
		Pos:       posrepository.Provide(),
		Providers: f.provider,
		Billing:   f.ledger,
	})
	return f
}

func testToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":   "u1",
		"accounts": []interface{}{map[string]interface{}{"connectedEntityId": "agent-1"}},
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	return token
}

var (
	testProfile = profiledomain.Profile{ID: 1, Name: "Main", ProviderType: "STB", IsActive: true}
	marchFirst  = transferdomain.Range{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC),
	}
)

func transferAt(id string, hour int, idNumber, phone, currency string) transferdomain.Transfer {
	return transferdomain.Transfer{
		TransactionID:  id,
		OccurredAt:     time.Date(2024, 3, 1, hour, 0, 0, 0, time.UTC),
		SentAmount:     decimal.NewFromInt(100),
		FeeAmount:      decimal.NewFromInt(5),
		ExtraAmount:    decimal.Zero,
		PosAmount:      decimal.NewFromInt(105),
		Currency:       currency,
		SenderIDNumber: idNumber,
		SenderPhone:    phone,
	}
}

func (f *fixture) seedTransfer(t *testing.T, tr transferdomain.Transfer) {
	t.Helper()
	tr.ProfileID = testProfile.Key()
	tr.CreatedAtUTC = f.clock.Now()
	require.NoError(t, transferrepository.Provide().Upsert(context.Background(), f.db, &tr, f.clock.Now()))
}

func (f *fixture) seedCustomer(t *testing.T, id snowflake.ID, idNumber, phone string) {
	t.Helper()
	require.NoError(t, posrepository.Provide().InsertCustomer(context.Background(), f.db, &posdomain.Customer{
		ID:        id,
		FirstName: "Local",
		IDNumber:  idNumber,
		Phone:     phone,
		CreatedAt: f.clock.Now(),
	}))
}

func (f *fixture) heal() {
	f.ledger.mu.Lock()
	defer f.ledger.mu.Unlock()
	f.ledger.err = nil
}

func (f *fixture) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) transfer(t *testing.T, id string) transferdomain.Transfer {
	t.Helper()
	var tr transferdomain.Transfer
	require.NoError(t, f.db.First(&tr, "transaction_id = ?", id).Error)
	return tr
}

var errBoom = errors.New("boom")
