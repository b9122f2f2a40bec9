package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aspexa/automa/pkg/models"
)

// PauseCampaign handles POST /api/v1/campaigns/:id/pause.
func (s *Server) PauseCampaign(c *gin.Context) {
	if err := s.plane.Pause(c.Param("id")); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

// ResumeCampaign handles POST /api/v1/campaigns/:id/resume.
func (s *Server) ResumeCampaign(c *gin.Context) {
	if err := s.plane.Resume(c.Param("id")); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

// CancelCampaign handles POST /api/v1/campaigns/:id/cancel.
func (s *Server) CancelCampaign(c *gin.Context) {
	if err := s.plane.Cancel(c.Param("id")); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// CampaignStatus handles GET /api/v1/campaigns/:id/status. A running
// campaign returns its live snapshot; otherwise the stored campaign record
// answers.
func (s *Server) CampaignStatus(c *gin.Context) {
	id := c.Param("id")

	if snapshot, err := s.plane.Status(id); err == nil {
		c.JSON(http.StatusOK, gin.H{"running": true, "snapshot": snapshot})
		return
	} else if !errors.Is(err, models.ErrCampaignNotFound) {
		s.abortWithError(c, err)
		return
	}

	campaign, err := s.campaigns.Get(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"running":     false,
		"campaign_id": campaign.ID,
		"stage":       campaign.Stage,
	})
}
