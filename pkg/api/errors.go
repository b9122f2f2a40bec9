package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aspexa/automa/pkg/models"
	"github.com/aspexa/automa/pkg/storage"
)

// abortWithError maps domain errors to HTTP responses.
func (s *Server) abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrCampaignNotFound), errors.Is(err, storage.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.log.Error("Unexpected handler error", "path", c.Request.URL.Path, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
