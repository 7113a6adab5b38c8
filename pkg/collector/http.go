package collector

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Register mounts the collection route on the service router.
func (s *Service) Register(r gin.IRouter) {
	r.GET("/collect/rss", s.collectHandler)
}

// collectHandler handles GET /collect/rss.
func (s *Service) collectHandler(c *gin.Context) {
	report, err := s.CollectRSS(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
