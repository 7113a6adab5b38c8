package composer

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ravedigest/ravedigest/pkg/digest"
)

// Register mounts the on-demand compose route.
func (s *Service) Register(r gin.IRouter) {
	r.POST("/compose", s.composeHandler)
}

func (s *Service) composeHandler(c *gin.Context) {
	d, err := s.Compose(c.Request.Context())
	switch {
	case errors.Is(err, digest.ErrNoArticles):
		c.Status(http.StatusNoContent)
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{
			"digest_id": d.ID,
			"title":     d.Title,
			"summary":   d.Summary,
			"url":       d.URL,
			"source":    d.Source,
		})
	}
}
