package audit

import (
	"context"

	auditdomain "github.com/docuflow/billing/internal/audit/domain"
	"github.com/docuflow/billing/internal/events"
)

// EventHandler persists every dispatched billing event into the audit trail.
type EventHandler struct {
	audit auditdomain.Service
}

func NewEventHandler(audit auditdomain.Service) *EventHandler {
	return &EventHandler{audit: audit}
}

func (h *EventHandler) Name() string { return "audit" }

func (h *EventHandler) Handle(ctx context.Context, event events.Event) error {
	userID := event.UserID
	var userRef = &userID
	if userID == 0 {
		userRef = nil
	}
	return h.audit.Record(ctx, userRef, string(event.Type), event.Gateway, event.ReferenceID, event.Metadata)
}
