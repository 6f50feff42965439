package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"secret-santa/internal/assignment"
	"secret-santa/internal/handler"
	"secret-santa/internal/models"
	"secret-santa/internal/notify"
	"secret-santa/internal/queue"
	"secret-santa/internal/wishlist"
)

// Store is the participant surface the HTTP layer reads and writes directly.
type Store interface {
	AddParticipant(ctx context.Context, firstName, phone string) (*models.Participant, error)
	UpdateParticipant(ctx context.Context, id int64, firstName, phone string) error
	GetParticipant(ctx context.Context, id int64) (*models.Participant, error)
	ListParticipants(ctx context.Context) ([]models.Participant, error)
	FindByLogin(ctx context.Context, firstName, lastFour string) (*models.Participant, error)
	UpdatePreferences(ctx context.Context, id int64, p models.Preferences) error
	Ping(ctx context.Context) error
}

type Deps struct {
	Store      Store
	Engine     *assignment.Engine
	Exclusions *assignment.Exclusions
	Wishlist   *wishlist.Service
	Notify     *notify.Service
	Queue      *queue.Queue
	Status     *handler.StatusHandler
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	// AdminToken empty disables the admin routes.
	AdminToken string
	// BatchSize is used by the process-now admin route.
	BatchSize int
}

// Server holds the route handlers.
type Server struct {
	deps Deps
	log  zerolog.Logger
}

func NewServer(deps Deps, log zerolog.Logger) *Server {
	return &Server{
		deps: deps,
		log:  log.With().Str("component", "HTTP").Logger(),
	}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(s.log))

	r.GET("/health", s.health())
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	api := r.Group("/api")
	api.POST("/auth/login", s.login())
	api.POST("/webhooks/twilio/status", s.twilioStatus())

	participant := api.Group("", requireParticipant(s.deps.Store))
	s.registerParticipantRoutes(participant.Group("/participant"))
	s.registerWishlistRoutes(participant.Group("/wishlist"))
	s.registerNotificationRoutes(participant.Group("/notifications"))

	admin := api.Group("/admin", requireAdmin(s.deps.AdminToken))
	s.registerAdminRoutes(admin)

	return r
}

func (s *Server) health() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
			s.log.Error().Err(err).Msg("Health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	}
}
