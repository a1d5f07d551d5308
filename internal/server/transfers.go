package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/posbridge/internal/clock"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
)

// ListTransfers returns the stored transfers of one profile, newest first.
// The range defaults to the current UTC day; both ends are inclusive.
func (s *Server) ListTransfers(c *gin.Context) {
	profileID := strings.TrimSpace(c.Query("profile_id"))
	if profileID == "" {
		AbortWithError(c, newValidationError("profile_id", "required", "profile_id is required"))
		return
	}

	from, err := parseOptionalTime(c.Query("from"), false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_time", "invalid from"))
		return
	}
	to, err := parseOptionalTime(c.Query("to"), true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_time", "invalid to"))
		return
	}

	today := clock.Today(s.clock)
	rg := transferdomain.Range{
		Start: today,
		End:   today.Add(24*time.Hour - time.Nanosecond),
	}
	if from != nil {
		rg.Start = *from
	}
	if to != nil {
		rg.End = *to
	}
	if rg.End.Before(rg.Start) {
		AbortWithError(c, newValidationError("to", "invalid_range", "to must not be before from"))
		return
	}

	ctx := c.Request.Context()
	profile, err := s.profileSvc.Get(ctx, profileID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	transfers, err := s.transfers.ListByRange(ctx, profile.Key(), rg)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if transfers == nil {
		transfers = []transferdomain.Transfer{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data": transfers,
		"range": gin.H{
			"from": rg.Start,
			"to":   rg.End,
		},
	})
}
