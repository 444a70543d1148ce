package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	auditdomain "github.com/docuflow/billing/internal/audit/domain"
)

func (s *Server) HandleListAuditEvents(c *gin.Context) {
	filter := auditdomain.ListFilter{
		EventType: strings.TrimSpace(c.Query("event_type")),
	}

	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.UserID = &userID
	}
	if raw := strings.TrimSpace(c.Query("start_at")); raw != "" {
		startAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.StartAt = &startAt
	}
	if raw := strings.TrimSpace(c.Query("end_at")); raw != "" {
		endAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.EndAt = &endAt
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.Limit = limit
	}

	items, err := s.audit.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_events": items})
}

// HandleReconcileLedger compares the denormalized balance against the sum of
// the transaction log for one user.
func (s *Server) HandleReconcileLedger(c *gin.Context) {
	userID, err := parseUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.ledger.Reconcile(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
