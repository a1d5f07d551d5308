package stb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	"github.com/smallbiznis/posbridge/internal/provider/domain"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return New(Params{
		Settings: config.NewStaticSettings(config.DefaultSettings()),
		Clock:    clock.NewFakeClock(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)),
	})
}

func TestFetchTransfersMapsReport(t *testing.T) {
	var got reportRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, reportPath, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"reportData":[{
			"transactionId":"TX1","reservationCode":"R1","date":"2024-03-01T08:15:00Z",
			"sender":"Dana","tellerName":"Ofer","amountSent":"100.50","transactionFee":"4.50",
			"sendCurrency":"ils","userIdType":"ID","userIdNumber":" 123 ","senderPhoneNumber":"0501234567",
			"type":"SEND","status":"PAID"}]}`))
	}))
	defer srv.Close()

	rg := transferdomain.Range{
		Start: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	transfers, err := newTestClient().FetchTransfers(context.Background(), srv.URL+"/", "tok", "agent-9", rg)
	require.NoError(t, err)
	require.Len(t, transfers, 1)

	assert.Equal(t, []string{"agent-9"}, got.Agents)
	assert.Equal(t, "2024-02-29 00:00:00", got.StartDate)
	assert.Equal(t, "DESC", got.SortDirection)

	tr := transfers[0]
	assert.Equal(t, "TX1", tr.TransactionID)
	assert.Equal(t, "ILS", tr.Currency)
	assert.Equal(t, "123", tr.SenderIDNumber)
	assert.Equal(t, "agent-9", tr.AgentID)
	assert.True(t, tr.PosAmount.Equal(decimal.RequireFromString("105")))
	assert.True(t, tr.OccurredAt.Equal(time.Date(2024, 3, 1, 8, 15, 0, 0, time.UTC)))
}

func TestFetchTransfersRejectsUnexpectedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient().FetchTransfers(context.Background(), srv.URL, "tok", "a", transferdomain.Range{})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestFetchCustomer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req queryOrgRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, origin, req.Origin)
		if req.QueryType == queryTypePhone {
			_, _ = w.Write([]byte(`{"status":"SUCCESS","result":{"firstName":"Dana","lastName":"Levi","phoneNumber":"050","idNumber":"123"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"NOT_FOUND"}`))
	}))
	defer srv.Close()

	client := newTestClient()
	customer, err := client.FetchCustomer(context.Background(), srv.URL, "tok", "123", "050")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "Levi", customer.LastName)

	customer, err = client.FetchCustomer(context.Background(), srv.URL, "tok", "123", "")
	require.NoError(t, err)
	assert.Nil(t, customer)
}

func TestLogin(t *testing.T) {
	responses := map[string]string{
		"ok@example.com":  `{"statusCode":0,"token":"jwt"}`,
		"bad@example.com": `{"statusCode":401,"message":"Wrong password"}`,
		"nil@example.com": `{"statusCode":0}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2024-03-01T09:30:00Z", req.TimeSend)
		assert.Equal(t, "654321", req.VerificationCode)
		_, _ = w.Write([]byte(responses[req.Email]))
	}))
	defer srv.Close()

	client := newTestClient()
	token, err := client.LoginWithEmail(context.Background(), srv.URL, "ok@example.com", "pw", "654321")
	require.NoError(t, err)
	assert.Equal(t, "jwt", token)

	_, err = client.LoginWithEmail(context.Background(), srv.URL, "bad@example.com", "pw", "654321")
	require.True(t, domain.IsAuthError(err))
	assert.Equal(t, "Auth failed. StatusCode=401, Message=Wrong password", err.Error())

	_, err = client.LoginWithEmail(context.Background(), srv.URL, "nil@example.com", "pw", "654321")
	assert.True(t, domain.IsAuthError(err))
}

func TestNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient().LoginWithPhone(context.Background(), srv.URL, "050", "pw", "1")
	require.Error(t, err)
	assert.False(t, domain.IsAuthError(err))
}
