package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/mentorlane/mentorlane/internal/booking/domain"
	"github.com/mentorlane/mentorlane/internal/identity"
)

func (s *Server) CreateBooking(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req bookingdomain.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.LearnerID = caller.UserID

	resp, err := s.bookingSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetBooking(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	bookingID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.GetByID(c.Request.Context(), bookingID, caller.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// ListBookings returns the caller's bookings. Experts see their incoming
// sessions via ?role=expert; the default view is the learner side.
func (s *Server) ListBookings(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	req := bookingdomain.ListRequest{
		UserID: caller.UserID,
		Status: bookingdomain.Status(strings.TrimSpace(c.Query("status"))),
		Limit:  queryInt(c, "limit", 20),
		Offset: queryInt(c, "offset", 0),
	}

	var (
		bookings []bookingdomain.Booking
		err      error
	)
	if strings.EqualFold(c.Query("role"), identity.RoleExpert) {
		bookings, err = s.bookingSvc.ListByExpert(c.Request.Context(), req)
	} else {
		bookings, err = s.bookingSvc.ListByLearner(c.Request.Context(), req)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (s *Server) ApproveBooking(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	bookingID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body struct {
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.bookingSvc.Approve(c.Request.Context(), bookingdomain.ApproveRequest{
		BookingID:  bookingID,
		ApproverID: caller.UserID,
		Notes:      body.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) DeclineBooking(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	bookingID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body struct {
		Reason string `json:"reason"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	booking, err := s.bookingSvc.Decline(c.Request.Context(), bookingdomain.DeclineRequest{
		BookingID:  bookingID,
		DeclinerID: caller.UserID,
		Reason:     body.Reason,
		Notes:      body.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

func (s *Server) CancelBooking(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	bookingID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.bookingSvc.Cancel(c.Request.Context(), bookingdomain.CancelRequest{
		BookingID:   bookingID,
		CancellerID: caller.UserID,
		Reason:      body.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CompleteBooking(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	bookingID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.Complete(c.Request.Context(), bookingID, caller.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

func (s *Server) GetCancellationPolicy(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	bookingID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	breakdown, err := s.bookingSvc.PreviewCancellation(c.Request.Context(), bookingID, caller.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refund": breakdown})
}

func pathID(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, newValidationError(name, "invalid_id", "invalid identifier")
	}
	return id, nil
}
