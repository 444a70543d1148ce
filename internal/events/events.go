// Package events delivers post-commit side effects. Publishing never blocks
// the payment transaction: events are buffered and handled by a background
// worker, and a handler failure is logged, never propagated back to the
// webhook path.
package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypePaymentSettled      Type = "payment.settled"
	TypePaymentPending      Type = "payment.pending"
	TypePaymentFailed       Type = "payment.failed"
	TypePaymentUnmatched    Type = "payment.unmatched"
	TypePaymentRefunded     Type = "payment.refunded"
	TypeSubscriptionChanged Type = "subscription.changed"
	TypeCreditsConsumed     Type = "credits.consumed"
)

type Event struct {
	Type        Type
	UserID      snowflake.ID
	Gateway     string
	ReferenceID string
	Metadata    map[string]any
	OccurredAt  time.Time
}
