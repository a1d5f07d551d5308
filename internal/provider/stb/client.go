package stb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	posdomain "github.com/smallbiznis/posbridge/internal/pos/domain"
	"github.com/smallbiznis/posbridge/internal/provider/domain"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
	"go.uber.org/fx"
)

const (
	reportPath   = "/report/transactionReport"
	queryOrgPath = "/user/queryOrg"
	loginPath    = "/unAuth/login"

	origin          = "DASHBOARD"
	rangeLayout     = "2006-01-02 15:04:00"
	timeSendLayout  = "2006-01-02T15:04:05Z"
	statusSuccess   = "SUCCESS"
	queryTypePhone  = "PHONE"
	queryTypeID     = "ID"
	defaultTimeout  = 30 * time.Second
	maxErrorPreview = 256
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

type Params struct {
	fx.In

	Settings config.SettingsProvider
	Clock    clock.Clock
}

// Client talks to the STB dashboard API.
type Client struct {
	http     *resty.Client
	settings config.SettingsProvider
	clock    clock.Clock
}

func New(p Params) *Client {
	return &Client{
		http: resty.New().
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		settings: p.Settings,
		clock:    p.Clock,
	}
}

func (c *Client) Type() string { return config.ProviderSTB }

func (c *Client) FetchTransfers(ctx context.Context, baseURL, token, agentID string, r transferdomain.Range) ([]transferdomain.Transfer, error) {
	payload := reportRequest{
		Agents:        []string{agentID},
		FullResult:    false,
		StartDate:     r.Start.UTC().Format(rangeLayout),
		EndDate:       r.End.UTC().Format(rangeLayout),
		SortField:     "DATE",
		SortDirection: "DESC",
		PageNum:       0,
	}

	var out reportResponse
	if err := c.post(ctx, baseURL, reportPath, token, payload, &out); err != nil {
		return nil, err
	}
	if out.ReportData == nil {
		return nil, fmt.Errorf("stb report: missing reportData: %w", domain.ErrInvalidPayload)
	}

	transfers := make([]transferdomain.Transfer, 0, len(*out.ReportData))
	for _, row := range *out.ReportData {
		t, err := toTransfer(row, agentID)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, nil
}

func toTransfer(row reportRow, agentID string) (transferdomain.Transfer, error) {
	id := strings.TrimSpace(row.TransactionID)
	if id == "" {
		return transferdomain.Transfer{}, fmt.Errorf("stb report: row without transactionId: %w", domain.ErrInvalidPayload)
	}
	occurred, err := parseDate(row.Date)
	if err != nil {
		return transferdomain.Transfer{}, fmt.Errorf("stb report: transaction %s date %q: %w", id, row.Date, domain.ErrInvalidPayload)
	}

	extra := decimal.Zero
	return transferdomain.Transfer{
		TransactionID:   id,
		ReservationCode: row.ReservationCode,
		OccurredAt:      occurred,
		SenderName:      row.Sender,
		TellerName:      row.TellerName,
		SentAmount:      row.AmountSent,
		FeeAmount:       row.TransactionFee,
		ExtraAmount:     extra,
		PosAmount:       row.AmountSent.Add(row.TransactionFee).Add(extra),
		Currency:        strings.ToUpper(strings.TrimSpace(row.SendCurrency)),
		AgentID:         agentID,
		SenderIDType:    row.UserIDType,
		SenderIDNumber:  strings.TrimSpace(row.UserIDNumber),
		SenderPhone:     strings.TrimSpace(row.SenderPhoneNumber),
		TransferType:    row.Type,
		Status:          row.Status,
		Nationality:     row.Nationality,
	}, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// FetchCustomer queries by phone when present, otherwise by id number.
func (c *Client) FetchCustomer(ctx context.Context, baseURL, token, idNumber, phone string) (*posdomain.Customer, error) {
	phone = strings.TrimSpace(phone)
	idNumber = strings.TrimSpace(idNumber)
	query, queryType := phone, queryTypePhone
	if phone == "" {
		query, queryType = idNumber, queryTypeID
	}
	if query == "" {
		return nil, nil
	}

	payload := queryOrgRequest{
		CustomerActionRequiredReasons: true,
		Query:                         query,
		QueryType:                     queryType,
		Origin:                        origin,
	}
	var out queryOrgResponse
	if err := c.post(ctx, baseURL, queryOrgPath, token, payload, &out); err != nil {
		return nil, err
	}
	if out.Status != statusSuccess {
		return nil, nil
	}
	if out.Result == nil {
		return nil, fmt.Errorf("stb queryOrg: missing result: %w", domain.ErrInvalidPayload)
	}
	return &posdomain.Customer{
		FirstName: out.Result.FirstName,
		LastName:  out.Result.LastName,
		Phone:     strings.TrimSpace(out.Result.PhoneNumber),
		IDNumber:  strings.TrimSpace(out.Result.IDNumber),
	}, nil
}

func (c *Client) LoginWithEmail(ctx context.Context, baseURL, email, password, otp string) (string, error) {
	return c.login(ctx, baseURL, loginRequest{Email: email, Password: password, VerificationCode: otp})
}

func (c *Client) LoginWithPhone(ctx context.Context, baseURL, phone, password, otp string) (string, error) {
	return c.login(ctx, baseURL, loginRequest{PhoneNumber: phone, Password: password, VerificationCode: otp})
}

func (c *Client) login(ctx context.Context, baseURL string, payload loginRequest) (string, error) {
	payload.Origin = origin
	payload.TimeSend = c.clock.Now().UTC().Format(timeSendLayout)

	var out loginResponse
	if err := c.post(ctx, baseURL, loginPath, "", payload, &out); err != nil {
		return "", err
	}
	if out.StatusCode != 0 {
		message := out.Message
		if message == "" {
			message = "Provider error"
		}
		return "", &domain.AuthError{StatusCode: out.StatusCode, Message: message}
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", &domain.AuthError{Message: "Auth response did not contain a token."}
	}
	return out.Token, nil
}

func (c *Client) post(ctx context.Context, baseURL, path, token string, payload, out interface{}) error {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return fmt.Errorf("stb %s: base url is not configured", path)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req := c.http.R().SetContext(ctx).SetBody(payload)
	if token != "" {
		req.SetAuthToken(token)
	}
	resp, err := req.Post(base + path)
	if err != nil {
		return fmt.Errorf("stb %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("stb %s: unexpected status %d: %s", path, resp.StatusCode(), preview(resp.Body()))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("stb %s: %v: %w", path, err, domain.ErrInvalidPayload)
	}
	return nil
}

func (c *Client) timeout() time.Duration {
	if c.settings == nil {
		return defaultTimeout
	}
	if t := c.settings.Get().Providers.STB.Timeout; t > 0 {
		return t
	}
	return defaultTimeout
}

func preview(body []byte) string {
	if len(body) > maxErrorPreview {
		body = body[:maxErrorPreview]
	}
	return string(body)
}
