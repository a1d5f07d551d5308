package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/posbridge/internal/billing/domain"
)

const maxEventLimit = 1000

type tariffsRequest struct {
	TransferPrice decimal.Decimal `json:"transfer_price"`
	AddToPosPrice decimal.Decimal `json:"add_to_pos_price"`
	CustomerPrice decimal.Decimal `json:"customer_price"`
	Currency      string          `json:"currency"`
}

func (s *Server) GetCurrentBillingSummary(c *gin.Context) {
	summary, err := s.billingSvc.GetCurrentPeriodSummary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetBillingSummary(c *gin.Context) {
	summary, err := s.billingSvc.GetPeriodSummary(c.Request.Context(), c.Param("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetTariffs(c *gin.Context) {
	tariffs, err := s.billingSvc.GetTariffs(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tariffs})
}

func (s *Server) SaveTariffs(c *gin.Context) {
	var req tariffsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tariffs, err := s.billingSvc.SaveTariffs(c.Request.Context(), billingdomain.Tariffs{
		TransferPrice: req.TransferPrice,
		AddToPosPrice: req.AddToPosPrice,
		CustomerPrice: req.CustomerPrice,
		Currency:      req.Currency,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tariffs})
}

// ListBillingEvents filters by from (inclusive), to (exclusive; a bare date
// covers that whole day), kind, profile_id and provider.
func (s *Server) ListBillingEvents(c *gin.Context) {
	from, err := parseOptionalTime(c.Query("from"), false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_time", "invalid from"))
		return
	}
	to, err := parseOptionalTime(c.Query("to"), false)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_time", "invalid to"))
		return
	}
	if to != nil && isDateOnly(c.Query("to")) {
		next := to.Add(24 * time.Hour)
		to = &next
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_integer", "invalid limit"))
		return
	}
	if limit == 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := s.billingSvc.ListEvents(c.Request.Context(), billingdomain.EventFilter{
		From:      from,
		To:        to,
		Kind:      billingdomain.EventKind(strings.TrimSpace(c.Query("kind"))),
		ProfileID: strings.TrimSpace(c.Query("profile_id")),
		Provider:  c.Query("provider"),
		Limit:     limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if events == nil {
		events = []billingdomain.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (s *Server) ListBillingPeriods(c *gin.Context) {
	periods, err := s.billingSvc.ListClosedPeriods(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if periods == nil {
		periods = []billingdomain.Period{}
	}
	c.JSON(http.StatusOK, gin.H{"data": periods})
}

// CloseBillingPeriod is idempotent per month: repeated calls return the
// snapshot taken first.
func (s *Server) CloseBillingPeriod(c *gin.Context) {
	period, err := s.billingSvc.CloseCurrentPeriod(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": period})
}

func (s *Server) DownloadStatement(c *gin.Context) {
	key := strings.TrimSpace(c.Param("period"))
	body, err := s.billingSvc.RenderStatement(c.Request.Context(), key)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%s.pdf"`, key))
	c.Data(http.StatusOK, "application/pdf", body)
}

func isDateOnly(value string) bool {
	_, err := time.Parse(dateOnlyLayout, strings.TrimSpace(value))
	return err == nil
}
