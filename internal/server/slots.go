package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ListOfferingSlots returns the upcoming slots that still have capacity.
func (s *Server) ListOfferingSlots(c *gin.Context) {
	offeringID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	slots, err := s.slotRepo.ListAvailable(c.Request.Context(), s.db, offeringID, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
