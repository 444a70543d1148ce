package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) HandleListPlans(c *gin.Context) {
	plans, err := s.plans.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}
