package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"secret-santa/internal/assignment"
	"secret-santa/internal/notify"
	"secret-santa/internal/queue"
	"secret-santa/internal/storage"
	"secret-santa/internal/wishlist"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, assignment.ErrNotFound),
		errors.Is(err, assignment.ErrRuleNotFound),
		errors.Is(err, wishlist.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, assignment.ErrNoCandidates),
		errors.Is(err, assignment.ErrUnsatisfiable),
		errors.Is(err, assignment.ErrInvalidState),
		errors.Is(err, assignment.ErrDuplicate),
		errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, assignment.ErrValidation),
		errors.Is(err, wishlist.ErrInvalid),
		errors.Is(err, notify.ErrInvalidType),
		errors.Is(err, queue.ErrValidation),
		errors.Is(err, storage.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, wishlist.ErrForbidden),
		errors.Is(err, wishlist.ErrNotPicked):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error body. Unmapped errors are logged and
// hidden from the client.
func (s *Server) fail(c *gin.Context, err error) {
	s.failWith(c, err, err.Error())
}

func (s *Server) failWith(c *gin.Context, err error, message string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("request_id", c.GetString(keyRequestID)).Str("path", c.FullPath()).Msg("Request failed")
		message = "Internal server error"
	}
	c.JSON(status, gin.H{"success": false, "message": message})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
}
