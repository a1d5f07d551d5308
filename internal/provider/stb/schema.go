package stb

import "github.com/shopspring/decimal"

type reportRequest struct {
	Agents        []string `json:"agents"`
	FullResult    bool     `json:"fullResult"`
	StartDate     string   `json:"startDate"`
	EndDate       string   `json:"endDate"`
	SortField     string   `json:"sortField"`
	SortDirection string   `json:"sortDirection"`
	PageNum       int      `json:"pageNum"`
}

type reportResponse struct {
	ReportData *[]reportRow `json:"reportData"`
}

type reportRow struct {
	TransactionID     string          `json:"transactionId"`
	ReservationCode   string          `json:"reservationCode"`
	Date              string          `json:"date"`
	Sender            string          `json:"sender"`
	TellerName        string          `json:"tellerName"`
	AmountSent        decimal.Decimal `json:"amountSent"`
	TransactionFee    decimal.Decimal `json:"transactionFee"`
	SendCurrency      string          `json:"sendCurrency"`
	UserIDType        string          `json:"userIdType"`
	UserIDNumber      string          `json:"userIdNumber"`
	SenderPhoneNumber string          `json:"senderPhoneNumber"`
	Type              string          `json:"type"`
	Status            string          `json:"status"`
	Nationality       string          `json:"nationality"`
}

type queryOrgRequest struct {
	CustomerActionRequiredReasons bool   `json:"customerActionRequiredReasons"`
	Query                         string `json:"query"`
	QueryType                     string `json:"queryType"`
	Origin                        string `json:"origin"`
}

type queryOrgResponse struct {
	Status string          `json:"status"`
	Result *queryOrgResult `json:"result"`
}

type queryOrgResult struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	IDNumber    string `json:"idNumber"`
}

type loginRequest struct {
	Email            string `json:"email,omitempty"`
	PhoneNumber      string `json:"phoneNumber,omitempty"`
	Password         string `json:"password"`
	Origin           string `json:"origin"`
	TimeSend         string `json:"timeSend"`
	VerificationCode string `json:"verificationCode"`
}

type loginResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Token      string `json:"token"`
}
