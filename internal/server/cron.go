package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CleanupBookings triggers one sweep run and reports its summary. Per-item
// failures are part of the summary, not an error response.
func (s *Server) CleanupBookings(c *gin.Context) {
	summary, err := s.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		s.log.Warn("cron sweep finished with failures", zap.Error(err))
	}
	c.JSON(http.StatusOK, summary)
}
