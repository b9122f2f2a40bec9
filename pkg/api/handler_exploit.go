package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aspexa/automa/pkg/adaptive"
	"github.com/aspexa/automa/pkg/events"
	"github.com/aspexa/automa/pkg/models"
	"github.com/aspexa/automa/pkg/recon"
	"github.com/aspexa/automa/pkg/storage"
)

// StartAdaptive handles POST /api/v1/campaigns/:id/exploit/adaptive. The
// run starts in the background and its event stream is relayed to the
// client as SSE. A dropped client does not stop the run; the control plane
// owns the campaign's lifecycle.
func (s *Server) StartAdaptive(c *gin.Context) {
	req, ok := s.prepare(c)
	if !ok {
		return
	}
	if _, err := s.plane.Status(req.CampaignID); err == nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "campaign is already running"})
		return
	}

	stream := events.NewStream()
	go func() {
		if _, err := s.runner.Run(context.Background(), req, stream); err != nil {
			s.log.Error("Adaptive run failed",
				"campaign_id", req.CampaignID,
				"error", err)
		}
	}()

	s.streamSSE(c, req.CampaignID, stream)
}

// StartOneShot handles POST /api/v1/campaigns/:id/exploit/oneshot and
// returns the result synchronously.
func (s *Server) StartOneShot(c *gin.Context) {
	req, ok := s.prepare(c)
	if !ok {
		return
	}

	result, err := s.runner.RunOnce(c.Request.Context(), req, nil)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// prepare loads the campaign, binds and clamps the request body, and
// resolves recon intel, the safety policy, and the objective. A request
// without an objective falls back to the campaign's probe findings.
func (s *Server) prepare(c *gin.Context) (adaptive.Request, bool) {
	campaign, err := s.campaigns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return adaptive.Request{}, false
	}

	var body exploitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return adaptive.Request{}, false
	}
	body.clamp(s.cfg.Exploit)

	bp := s.loadBlueprint(c.Request.Context(), campaign)
	var intel *models.ReconIntelligence
	if bp != nil {
		extracted := recon.Extract(bp)
		intel = &extracted
	}

	if body.Objective == "" {
		if !s.deriveObjective(c, campaign, &body) {
			return adaptive.Request{}, false
		}
	}

	req := body.toLoopRequest(campaign, s.cfg.Exploit, intel)
	switch {
	case body.Policy != nil:
		req.Policy = *body.Policy
	case bp != nil && bp.Policy != nil:
		req.Policy = *bp.Policy
	}
	return req, true
}

// loadBlueprint fetches the campaign's recon blueprint. Missing blueprints
// degrade to nil.
func (s *Server) loadBlueprint(ctx context.Context, campaign *models.Campaign) *models.ReconBlueprint {
	if campaign.ReconScanID == "" || s.blueprints == nil {
		return nil
	}
	bp, err := s.blueprints.Load(ctx, campaign.ReconScanID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("Blueprint load failed, continuing without intel",
				"campaign_id", campaign.ID,
				"recon_scan_id", campaign.ReconScanID,
				"error", err)
		}
		return nil
	}
	return bp
}

// deriveObjective fills the objective and category from the campaign's
// probe findings, preferring the most severe cluster. Fails the request
// when the campaign has no findings to fall back on.
func (s *Server) deriveObjective(c *gin.Context, campaign *models.Campaign, body *exploitRequest) bool {
	if campaign.ProbeScanID == "" || s.results == nil {
		s.abortWithError(c, models.ValidationErrorf("objective is required when the campaign has no probe findings"))
		return false
	}
	clusters, err := s.results.LoadClusters(c.Request.Context(), campaign.ProbeScanID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.abortWithError(c, models.ValidationErrorf("objective is required: no probe findings recorded for scan %s", campaign.ProbeScanID))
			return false
		}
		s.abortWithError(c, err)
		return false
	}
	if len(clusters) == 0 {
		s.abortWithError(c, models.ValidationErrorf("objective is required: probe scan %s found no vulnerabilities", campaign.ProbeScanID))
		return false
	}

	lead := leadCluster(clusters)
	body.Objective = categoryObjectives[lead.Category]
	if body.Objective == "" {
		body.Objective = "Exploit the " + string(lead.Category) + " weakness the probe phase surfaced"
	}
	body.ObjectiveCategory = string(lead.Category)
	s.log.Info("Objective derived from probe findings",
		"campaign_id", campaign.ID,
		"probe_scan_id", campaign.ProbeScanID,
		"category", lead.Category,
		"severity", lead.Severity)
	return true
}

// streamSSE relays campaign events until the stream closes or the client
// disconnects, with heartbeats on idle.
func (s *Server) streamSSE(c *gin.Context, campaignID string, stream *events.Stream) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	keepalive := s.cfg.Server.SSEKeepalive
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()
	clientGone := c.Request.Context().Done()

	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ticker.C:
			c.SSEvent(string(events.TypeHeartbeat), events.New(campaignID, events.TypeHeartbeat))
			return true
		case <-clientGone:
			s.log.Info("SSE client disconnected, run continues",
				"campaign_id", campaignID)
			return false
		}
	})
}
