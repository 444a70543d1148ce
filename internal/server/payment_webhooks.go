package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	gatewaydomain "github.com/docuflow/billing/internal/gateway/domain"
)

// HandlePaymentWebhook ingests one gateway delivery. A duplicate or ignored
// event answers 200 so the gateway stops retrying; a verification failure
// answers 401 so a misconfigured secret shows up in the gateway's delivery
// log instead of being silently swallowed.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	gateway := strings.TrimSpace(c.Param("gateway"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.WebhookTimeout)
	defer cancel()

	outcome, err := s.webhookSvc.IngestWebhook(ctx, gateway, payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		AbortWithError(c, err)
		return
	}

	if outcome.Duplicate {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleGetPaymentRecord looks up one stored payment record by its gateway key.
func (s *Server) HandleGetPaymentRecord(c *gin.Context) {
	gateway := strings.TrimSpace(c.Param("gateway"))
	paymentID := strings.TrimSpace(c.Param("payment_id"))
	if gateway == "" || paymentID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.paymentSvc.FindRecord(c.Request.Context(), gateway, paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}
