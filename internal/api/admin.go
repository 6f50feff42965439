package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"secret-santa/internal/models"
	"secret-santa/internal/notify"
)

func (s *Server) registerAdminRoutes(g *gin.RouterGroup) {
	g.GET("/participants", s.listParticipants())
	g.POST("/participants", s.addParticipant())
	g.POST("/participants/import", s.importParticipants())
	g.PUT("/participants/:id", s.updateParticipant())
	g.DELETE("/participants/:id", s.removeParticipant())

	g.GET("/exclusions", s.listExclusions())
	g.GET("/exclusions/stats", s.exclusionStats())
	g.POST("/exclusions", s.addExclusion())
	g.DELETE("/exclusions/:id", s.removeExclusion())
	g.POST("/family-group", s.addFamilyGroup())

	g.GET("/status", s.gameStatus())
	g.GET("/validate", s.validateGame())
	g.POST("/reset-assignments", s.resetAssignments())
	g.POST("/reset-all", s.resetAll())
	g.GET("/export", s.export())

	n := g.Group("/notifications")
	n.POST("/send-all", s.sendAll())
	n.POST("/reminder", s.sendReminder())
	n.GET("/logs", s.deliveryLogs())
	n.GET("/queue", s.queueEntries())
	n.DELETE("/queue/:id", s.cancelPending())
	n.GET("/stats", s.queueStats())
	n.GET("/templates", s.templates())
	n.POST("/process", s.processQueue())
	n.POST("/cleanup", s.cleanupQueue())
}

type participantRequest struct {
	FirstName   string `json:"first_name" binding:"required,max=50"`
	PhoneNumber string `json:"phone_number" binding:"required"`
}

func (r participantRequest) normalize() (string, string, bool) {
	name := strings.TrimSpace(r.FirstName)
	phone := strings.TrimSpace(r.PhoneNumber)
	return name, phone, name != "" && digitCount(phone) >= 7
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func (s *Server) listParticipants() gin.HandlerFunc {
	return func(c *gin.Context) {
		ps, err := s.deps.Store.ListParticipants(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "participants": ps})
	}
}

func (s *Server) addParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req participantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		name, phone, ok := req.normalize()
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "A first name and a valid phone number are required"})
			return
		}
		p, err := s.deps.Store.AddParticipant(c.Request.Context(), name, phone)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.log.Info().Int64("participant_id", p.ID).Msg("Participant added")
		c.JSON(http.StatusCreated, gin.H{"success": true, "participant": p})
	}
}

func (s *Server) updateParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req participantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		name, phone, ok := req.normalize()
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "A first name and a valid phone number are required"})
			return
		}
		ctx := c.Request.Context()
		if err := s.deps.Store.UpdateParticipant(ctx, id, name, phone); err != nil {
			s.fail(c, err)
			return
		}
		p, err := s.deps.Store.GetParticipant(ctx, id)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "participant": p})
	}
}

func (s *Server) removeParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		if err := s.deps.Engine.RemoveParticipant(c.Request.Context(), id); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (s *Server) listExclusions() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var (
			rules []models.ExclusionRule
			err   error
		)
		if raw := c.Query("participant_id"); raw != "" {
			id, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				badRequest(c, perr)
				return
			}
			rules, err = s.deps.Exclusions.For(ctx, id)
		} else {
			rules, err = s.deps.Exclusions.List(ctx)
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "exclusions": rules})
	}
}

func (s *Server) exclusionStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := s.deps.Exclusions.Stats(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
	}
}

type exclusionRequest struct {
	ParticipantID         int64  `json:"participant_id" binding:"required"`
	ExcludedParticipantID int64  `json:"excluded_participant_id" binding:"required"`
	Reason                string `json:"reason"`
}

func (s *Server) addExclusion() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req exclusionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		id, err := s.deps.Exclusions.Add(c.Request.Context(), req.ParticipantID, req.ExcludedParticipantID, req.Reason)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
	}
}

func (s *Server) removeExclusion() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		if err := s.deps.Exclusions.Remove(c.Request.Context(), id); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type familyGroupRequest struct {
	ParticipantIDs []int64 `json:"participant_ids" binding:"required"`
	Reason         string  `json:"reason"`
}

func (s *Server) addFamilyGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req familyGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		added, err := s.deps.Exclusions.AddFamilyGroup(c.Request.Context(), req.ParticipantIDs, req.Reason)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "added": added})
	}
}

func (s *Server) gameStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := s.deps.Engine.Status(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
	}
}

func (s *Server) validateGame() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := s.deps.Engine.Validate(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "validation": v})
	}
}

func (s *Server) resetAssignments() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.deps.Engine.ResetAssignments(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "reset": n})
	}
}

type resetAllRequest struct {
	Confirm bool `json:"confirm"`
}

// resetAll wipes the game. The body must carry {"confirm": true}.
func (s *Server) resetAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resetAllRequest
		_ = c.ShouldBindJSON(&req)
		if !req.Confirm {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Reset must be confirmed"})
			return
		}
		if err := s.deps.Engine.ResetAll(c.Request.Context()); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type sendAllRequest struct {
	Type          models.MessageType `json:"type" binding:"required"`
	DaysRemaining int                `json:"days_remaining"`
}

func (s *Server) sendAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendAllRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := s.deps.Notify.Broadcast(c.Request.Context(), req.Type, req.DaysRemaining)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "queued": res.Queued, "total": res.Total})
	}
}

type reminderRequest struct {
	Type          string `json:"type" binding:"required,oneof=shopping wishlist"`
	DaysRemaining int    `json:"days_remaining"`
}

func (s *Server) sendReminder() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reminderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		t := models.MessageWishlistReminder
		if req.Type == "shopping" {
			t = models.MessageShoppingReminder
		}
		res, err := s.deps.Notify.Broadcast(c.Request.Context(), t, req.DaysRemaining)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "queued": res.Queued, "total": res.Total})
	}
}

func (s *Server) deliveryLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		var participantID *int64
		if raw := c.Query("participant_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				badRequest(c, err)
				return
			}
			participantID = &id
		}
		logs, err := s.deps.Queue.Logs(c.Request.Context(), participantID, queryInt(c, "limit", 50))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "logs": logs})
	}
}

func (s *Server) queueEntries() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := s.deps.Queue.Entries(c.Request.Context(), queryInt(c, "limit", 50))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "queue": entries})
	}
}

// cancelPending drops unsent messages for one participant, optionally only
// those of ?type=.
func (s *Server) cancelPending() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		n, err := s.deps.Queue.CancelPending(c.Request.Context(), id, models.MessageType(c.Query("type")))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "cancelled": n})
	}
}

func (s *Server) queueStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		queueStats, err := s.deps.Queue.Stats(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		delivery, err := s.deps.Queue.DeliveryStats(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "queue": queueStats, "delivery": delivery})
	}
}

type templatePreview struct {
	Type     models.MessageType `json:"type"`
	Priority int                `json:"priority"`
	Body     string             `json:"body"`
	Length   int                `json:"length"`
	Segments int                `json:"segments"`
}

func (s *Server) templates() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := s.deps.Notify.Templates()
		samples := []struct {
			typ  models.MessageType
			body string
		}{
			{models.MessageGameStart, t.GameStart()},
			{models.MessageAssignment, t.Assignment("Alex")},
			{models.MessageWishlistUpdate, t.WishlistUpdate("Alex")},
			{models.MessageWishlistReminder, t.WishlistReminder()},
			{models.MessageShoppingReminder, t.ShoppingReminder("Alex", 7)},
			{models.MessageExchangeDay, t.ExchangeDay("Alex")},
			{models.MessageTest, t.Test("Alex")},
		}
		previews := make([]templatePreview, 0, len(samples))
		for _, sample := range samples {
			previews = append(previews, templatePreview{
				Type:     sample.typ,
				Priority: notify.Priority(sample.typ),
				Body:     sample.body,
				Length:   len([]rune(sample.body)),
				Segments: notify.Segments(sample.body),
			})
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "templates": previews})
	}
}

type processRequest struct {
	BatchSize int `json:"batch_size"`
}

// processQueue drains the queue now instead of waiting for the next tick.
func (s *Server) processQueue() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req processRequest
		_ = c.ShouldBindJSON(&req)
		if req.BatchSize <= 0 {
			req.BatchSize = s.deps.BatchSize
		}
		res, err := s.deps.Queue.ProcessQueue(c.Request.Context(), req.BatchSize)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
	}
}

type cleanupRequest struct {
	Days int `json:"days"`
}

func (s *Server) cleanupQueue() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cleanupRequest
		_ = c.ShouldBindJSON(&req)
		n, err := s.deps.Queue.Cleanup(c.Request.Context(), req.Days)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
	}
}
