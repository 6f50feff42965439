package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"secret-santa/internal/assignment"
	"secret-santa/internal/models"
	"secret-santa/internal/storage"
)

type loginRequest struct {
	FirstName   string `json:"first_name" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
}

// login identifies a participant by first name and the last four digits of
// their phone number. The returned id is sent back as X-Participant-ID.
func (s *Server) login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		lastFour := storage.LastFour(req.PhoneNumber)
		if len(lastFour) != 4 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Phone number must contain at least 4 digits"})
			return
		}

		p, err := s.deps.Store.FindByLogin(c.Request.Context(), strings.TrimSpace(req.FirstName), lastFour)
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid name or phone number"})
			return
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		s.log.Info().Int64("participant_id", p.ID).Msg("Participant logged in")
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"participant": gin.H{
				"id":         p.ID,
				"first_name": p.FirstName,
				"has_picked": p.HasPicked,
			},
		})
	}
}

func (s *Server) registerParticipantRoutes(g *gin.RouterGroup) {
	g.POST("/draw", s.draw())
	g.GET("/assignment", s.getAssignment())
	g.GET("/can-pick", s.canPick())
}

func (s *Server) draw() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.deps.Engine.Draw(c.Request.Context(), caller(c).ID)
		if err != nil {
			s.failWith(c, err, assignment.Reason(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"recipient":      res.Recipient,
			"already_picked": res.AlreadyPicked,
			"picked_at":      res.PickedAt,
		})
	}
}

func (s *Server) getAssignment() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := s.deps.Engine.GetAssignment(c.Request.Context(), caller(c).ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

func (s *Server) canPick() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := s.deps.Engine.CanPick(c.Request.Context(), caller(c).ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

func (s *Server) registerNotificationRoutes(g *gin.RouterGroup) {
	g.GET("/preferences", s.getPreferences())
	g.PUT("/preferences", s.updatePreferences())
	g.POST("/test", s.sendTest())
	g.GET("/history", s.history())
}

func (s *Server) getPreferences() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "preferences": caller(c).Preferences})
	}
}

func (s *Server) updatePreferences() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.PreferencesUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if req.Empty() {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No preferences to update"})
			return
		}
		p := caller(c)
		prefs := req.Apply(p.Preferences)
		if err := s.deps.Store.UpdatePreferences(c.Request.Context(), p.ID, prefs); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "preferences": prefs})
	}
}

func (s *Server) sendTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := s.deps.Notify.SendTest(c.Request.Context(), caller(c).ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "queue_id": id, "message": "Test message queued"})
	}
}

func (s *Server) history() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := caller(c).ID
		logs, err := s.deps.Queue.Logs(c.Request.Context(), &id, queryInt(c, "limit", 20))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "logs": logs})
	}
}
