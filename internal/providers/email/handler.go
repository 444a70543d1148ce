package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/docuflow/billing/internal/account/domain"
	"github.com/docuflow/billing/internal/events"
)

// EventHandler mails the affected user about settled, failed and refunded
// payments. Delivery is best effort; a bounce never touches the ledger.
type EventHandler struct {
	db       *gorm.DB
	log      *zap.Logger
	provider Provider
}

func NewEventHandler(db *gorm.DB, log *zap.Logger, provider Provider) *EventHandler {
	return &EventHandler{
		db:       db,
		log:      log.Named("email.handler"),
		provider: provider,
	}
}

func (h *EventHandler) Name() string { return "email" }

func (h *EventHandler) Handle(ctx context.Context, event events.Event) error {
	subject, body := composeMessage(event)
	if subject == "" || event.UserID == 0 {
		return nil
	}

	var account accountdomain.UserAccount
	err := h.db.WithContext(ctx).Raw(
		`SELECT id, email FROM user_accounts WHERE id = ? LIMIT 1`,
		event.UserID,
	).Scan(&account).Error
	if err != nil {
		return err
	}
	if account.Email == "" {
		return nil
	}

	return h.provider.Send(ctx, []string{account.Email}, subject, body)
}

func composeMessage(event events.Event) (string, string) {
	switch event.Type {
	case events.TypePaymentSettled:
		return "Your Docuflow payment was received",
			fmt.Sprintf("<p>We received your payment (reference %s). Your account has been updated.</p>", event.ReferenceID)
	case events.TypePaymentFailed:
		return "Your Docuflow payment failed",
			fmt.Sprintf("<p>Your payment (reference %s) could not be processed. Please check your payment method.</p>", event.ReferenceID)
	case events.TypePaymentRefunded:
		return "Your Docuflow payment was refunded",
			fmt.Sprintf("<p>Your payment (reference %s) was refunded.</p>", event.ReferenceID)
	default:
		return "", ""
	}
}
