package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	"github.com/smallbiznis/posbridge/internal/scheduler"
	"go.uber.org/zap"
)

// profileResponse never carries credentials, only whether they are set.
type profileResponse struct {
	profiledomain.Profile
	HasManualToken bool `json:"has_manual_token"`
	CanAutoLogin   bool `json:"can_auto_login"`
}

func newProfileResponse(p profiledomain.Profile) profileResponse {
	return profileResponse{
		Profile:        p,
		HasManualToken: p.HasManualToken(),
		CanAutoLogin:   p.HasLoginBundle(),
	}
}

type loginRequest struct {
	Otp string `json:"otp"`
}

type syncResponse struct {
	ProfileID   string `json:"profile_id"`
	FetchMs     int64  `json:"fetch_ms"`
	NormalizeMs int64  `json:"normalize_ms"`
	AddToPosMs  int64  `json:"add_to_pos_ms"`
	TotalMs     int64  `json:"total_ms"`
}

func newSyncResponse(profileID string, perf scheduler.PerfRecord) syncResponse {
	return syncResponse{
		ProfileID:   profileID,
		FetchMs:     perf.Fetch.Milliseconds(),
		NormalizeMs: perf.Normalize.Milliseconds(),
		AddToPosMs:  perf.AddToPos.Milliseconds(),
		TotalMs:     perf.Total.Milliseconds(),
	}
}

func (s *Server) ListProfiles(c *gin.Context) {
	profiles, err := s.profileSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		resp = append(resp, newProfileResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProfile(c *gin.Context) {
	profile, err := s.profileSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newProfileResponse(profile)})
}

func (s *Server) CreateProfile(c *gin.Context) {
	var req profiledomain.SaveProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	profile, err := s.profileSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": newProfileResponse(profile)})
}

func (s *Server) UpdateProfile(c *gin.Context) {
	var req profiledomain.SaveProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	profile, err := s.profileSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newProfileResponse(profile)})
}

// LoginProfile exchanges an operator-supplied OTP for a provider token. The
// token is stored on the profile and never echoed back.
func (s *Server) LoginProfile(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Otp) == "" {
		AbortWithError(c, newValidationError("otp", "required", "verification code is required"))
		return
	}

	ctx := c.Request.Context()
	profile, err := s.profileSvc.Get(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if _, err := s.login.LoginWithUserProvidedOtp(ctx, profile, req.Otp); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"profile_id":   profile.Key(),
		"logged_in":    true,
		"logged_in_at": s.clock.Now().UTC().Format(time.RFC3339),
	}})
}

func (s *Server) SyncProfile(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	perf, err := s.sync.RunProfileNow(c.Request.Context(), id)
	if err != nil {
		s.log.Warn("manual sync failed", zap.String("profile_id", id), zap.Error(err))
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newSyncResponse(id, perf)})
}
