package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// twilioStatus reconciles a Twilio status callback. It always answers 200 so
// Twilio does not retry; failures are logged.
func (s *Server) twilioStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.PostForm("MessageSid")
		status := c.PostForm("MessageStatus")
		if sid == "" || status == "" {
			s.log.Warn().Str("sid", sid).Str("status", status).Msg("Incomplete status callback")
			c.Status(http.StatusOK)
			return
		}
		if _, err := s.deps.Status.HandleTwilio(c.Request.Context(), sid, status, c.PostForm("ErrorMessage")); err != nil {
			s.log.Error().Err(err).Str("sid", sid).Msg("Failed to process status callback")
		}
		c.Status(http.StatusOK)
	}
}
