package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/docuflow/billing/internal/events"
)

func (s *Server) HandleGetCredits(c *gin.Context) {
	userID, err := parseUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID.String(),
		"credits": balance,
	})
}

func (s *Server) HandleListTransactions(c *gin.Context) {
	userID, err := parseUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	items, err := s.ledger.ListTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": items})
}

type consumeCreditRequest struct {
	ReferenceID string `json:"reference_id"`
}

// HandleConsumeCredit spends one credit for a generated document.
func (s *Server) HandleConsumeCredit(c *gin.Context) {
	userID, err := parseUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req consumeCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.ledger.ConsumeCredit(c.Request.Context(), userID, req.ReferenceID); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.dispatcher != nil {
		s.dispatcher.Publish(events.Event{
			Type:        events.TypeCreditsConsumed,
			UserID:      userID,
			ReferenceID: strings.TrimSpace(req.ReferenceID),
		})
	}

	balance, err := s.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": userID.String(),
		"credits": balance,
	})
}

func parseUserID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("user_id"))
	userID, err := snowflake.ParseString(raw)
	if err != nil || userID == 0 {
		return 0, ErrInvalidRequest
	}
	return userID, nil
}
