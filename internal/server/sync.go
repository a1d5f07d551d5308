package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/posbridge/internal/synchealth"
)

// GetSyncHealth aggregates the log stream per profile. lookback is optional
// and falls back to the configured window.
func (s *Server) GetSyncHealth(c *gin.Context) {
	lookback, err := parseOptionalDuration(c.Query("lookback"))
	if err != nil {
		AbortWithError(c, newValidationError("lookback", "invalid_duration", "invalid lookback"))
		return
	}

	health, err := s.health.Snapshot(c.Request.Context(), lookback)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if health == nil {
		health = []synchealth.ProfileHealth{}
	}
	c.JSON(http.StatusOK, gin.H{"data": health})
}

func (s *Server) GetSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"running": s.sync.Running()}})
}

func (s *Server) StartSync(c *gin.Context) {
	s.sync.Start()
	s.log.Info("sync start requested")
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"running": s.sync.Running()}})
}

// StopSync returns once the loop has been asked to exit; stages already in
// flight keep running to completion.
func (s *Server) StopSync(c *gin.Context) {
	s.sync.Stop()
	s.log.Info("sync stop requested")
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"running": s.sync.Running()}})
}
