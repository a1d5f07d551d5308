package pipeline

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/posbridge/internal/billing/domain"
	posdomain "github.com/smallbiznis/posbridge/internal/pos/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLinksLocalCustomerWithoutEvent(t *testing.T) {
	f := newFixture(t, nil)
	f.seedCustomer(t, snowflake.ID(500), "ID-1", "")
	f.seedCustomer(t, snowflake.ID(501), "", "0501")
	f.seedTransfer(t, transferAt("T1", 8, "ID-1", "", "USD"))
	f.seedTransfer(t, transferAt("T2", 9, "ID-X", "0501", "USD"))

	require.NoError(t, f.svc.NormalizeForProfile(context.Background(), marchFirst, testProfile, testToken(t)))

	t1 := f.transfer(t, "T1")
	require.NotNil(t, t1.PosCustomerID)
	assert.Equal(t, snowflake.ID(500), *t1.PosCustomerID)
	assert.False(t, t1.IsNewCustomer)

	t2 := f.transfer(t, "T2")
	require.NotNil(t, t2.PosCustomerID)
	assert.Equal(t, snowflake.ID(501), *t2.PosCustomerID)

	assert.Equal(t, 0, f.ledger.count(billingdomain.EventCustomer))
}

func TestNormalizeCreatesCustomerFromProvider(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.customers["ID-2"] = &posdomain.Customer{FirstName: " Dana ", LastName: "Levi", IDNumber: "ID-2"}
	f.seedTransfer(t, transferAt("T1", 8, "ID-2", "0502", "USD"))

	require.NoError(t, f.svc.NormalizeForProfile(context.Background(), marchFirst, testProfile, testToken(t)))

	t1 := f.transfer(t, "T1")
	require.NotNil(t, t1.PosCustomerID)
	assert.True(t, t1.IsNewCustomer)
	assert.Nil(t, t1.ErrorMessage)

	var stored posdomain.Customer
	require.NoError(t, f.db.First(&stored, "id = ?", int64(*t1.PosCustomerID)).Error)
	assert.Equal(t, "Dana", stored.FirstName)
	assert.Equal(t, "0502", stored.Phone)
	assert.Equal(t, 1, f.ledger.count(billingdomain.EventCustomer))
}

func TestNormalizeIsolatesItemFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.lookupFails["ID-BAD"] = errBoom
	f.provider.customers["ID-OK"] = &posdomain.Customer{FirstName: "Ok", IDNumber: "ID-OK"}
	f.seedTransfer(t, transferAt("T1", 8, "ID-BAD", "", "USD"))
	f.seedTransfer(t, transferAt("T2", 9, "ID-NONE", "", "USD"))
	f.seedTransfer(t, transferAt("T3", 10, "ID-OK", "", "USD"))

	require.NoError(t, f.svc.NormalizeForProfile(context.Background(), marchFirst, testProfile, testToken(t)))

	t1 := f.transfer(t, "T1")
	assert.Nil(t, t1.PosCustomerID)
	require.NotNil(t, t1.ErrorMessage)
	assert.Equal(t, "Normalize error: boom", *t1.ErrorMessage)

	t2 := f.transfer(t, "T2")
	assert.Nil(t, t2.PosCustomerID)
	require.NotNil(t, t2.ErrorMessage)
	assert.Equal(t, msgCustomerNotFound, *t2.ErrorMessage)

	t3 := f.transfer(t, "T3")
	assert.NotNil(t, t3.PosCustomerID)
	assert.Equal(t, 1, f.ledger.count(billingdomain.EventCustomer))
}

func TestNormalizeWithoutLookupRecordsError(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.noLookup = true
	f.seedTransfer(t, transferAt("T1", 8, "ID-1", "", "USD"))

	require.NoError(t, f.svc.NormalizeForProfile(context.Background(), marchFirst, testProfile, testToken(t)))

	t1 := f.transfer(t, "T1")
	require.NotNil(t, t1.ErrorMessage)
	assert.Contains(t, *t1.ErrorMessage, "unsupported_operation")
}

func TestNormalizeAbortsOnLedgerFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.err = errBoom
	f.provider.customers["ID-1"] = &posdomain.Customer{FirstName: "A", IDNumber: "ID-1"}
	f.provider.customers["ID-2"] = &posdomain.Customer{FirstName: "B", IDNumber: "ID-2"}
	f.seedTransfer(t, transferAt("T1", 8, "ID-1", "", "USD"))
	f.seedTransfer(t, transferAt("T2", 9, "ID-2", "", "USD"))

	err := f.svc.NormalizeForProfile(context.Background(), marchFirst, testProfile, testToken(t))
	var ledgerErr *LedgerError
	require.ErrorAs(t, err, &ledgerErr)
	// the failing transfer's customer and link roll back with its event
	assert.Nil(t, f.transfer(t, "T1").PosCustomerID)
	assert.Nil(t, f.transfer(t, "T2").PosCustomerID)
	assert.Zero(t, f.countRows(t, &posdomain.Customer{}))

	f.heal()
	require.NoError(t, f.svc.NormalizeForProfile(context.Background(), marchFirst, testProfile, testToken(t)))
	assert.NotNil(t, f.transfer(t, "T1").PosCustomerID)
	assert.NotNil(t, f.transfer(t, "T2").PosCustomerID)
	assert.EqualValues(t, 2, f.countRows(t, &posdomain.Customer{}))
	assert.Equal(t, 2, f.ledger.count(billingdomain.EventCustomer))
}

func TestNormalizeRequiresToken(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.svc.NormalizeForProfile(context.Background(), marchFirst, testProfile, ""), ErrMissingToken)
}
