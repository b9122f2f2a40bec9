// Package api exposes the exploitation core over HTTP: campaign exploit
// endpoints (adaptive SSE stream and one-shot), control endpoints
// (pause/resume/cancel/status), and health.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aspexa/automa/pkg/adaptive"
	"github.com/aspexa/automa/pkg/config"
	"github.com/aspexa/automa/pkg/control"
	"github.com/aspexa/automa/pkg/events"
	"github.com/aspexa/automa/pkg/models"
	"github.com/aspexa/automa/pkg/storage"
	"github.com/aspexa/automa/pkg/version"
)

// Runner executes exploitation runs. Implemented by adaptive.Loop.
type Runner interface {
	Run(ctx context.Context, req adaptive.Request, stream *events.Stream) (*models.ExploitResult, error)
	RunOnce(ctx context.Context, req adaptive.Request, stream *events.Stream) (*models.ExploitResult, error)
}

// Server is the HTTP gateway.
type Server struct {
	cfg        *config.Config
	runner     Runner
	plane      *control.Plane
	campaigns  storage.CampaignStore
	blueprints storage.BlueprintStore
	results    storage.ResultStore
	log        *slog.Logger

	httpServer *http.Server
}

// NewServer creates the gateway over its collaborators.
func NewServer(cfg *config.Config, runner Runner, plane *control.Plane, campaigns storage.CampaignStore, blueprints storage.BlueprintStore, results storage.ResultStore) *Server {
	return &Server{
		cfg:        cfg,
		runner:     runner,
		plane:      plane,
		campaigns:  campaigns,
		blueprints: blueprints,
		results:    results,
		log:        slog.With("component", "api"),
	}
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.Health)

	v1 := r.Group("/api/v1", bearerAuth(s.cfg.Server.AuthToken))
	campaigns := v1.Group("/campaigns/:id")
	campaigns.POST("/exploit/adaptive", s.StartAdaptive)
	campaigns.POST("/exploit/oneshot", s.StartOneShot)
	campaigns.POST("/pause", s.PauseCampaign)
	campaigns.POST("/resume", s.ResumeCampaign)
	campaigns.POST("/cancel", s.CancelCampaign)
	campaigns.GET("/status", s.CampaignStatus)
	return r
}

// Start begins serving on addr. Blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Health handles GET /health.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"version":           version.Full(),
		"campaigns_running": len(s.plane.Running()),
	})
}
