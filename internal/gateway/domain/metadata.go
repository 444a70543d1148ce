package domain

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Checkout metadata keys. Both gateways echo back whatever the checkout
// session attached, so the keys are ours, not theirs.
const (
	MetaUserID   = "user_id"
	MetaKind     = "kind"
	MetaCredits  = "credits"
	MetaPlanSlug = "plan_slug"
)

// ApplyMetadata fills the routing fields of d from the raw metadata bag.
// Gateways deliver metadata values as strings or JSON numbers depending on
// how the checkout was created, so both forms are accepted.
func ApplyMetadata(d *PaymentDetails, meta map[string]any) error {
	if d == nil {
		return ErrInvalidMetadata
	}
	d.Metadata = meta
	if len(meta) == 0 {
		return ErrInvalidMetadata
	}

	rawUser, err := metaInt64(meta, MetaUserID)
	if err != nil || rawUser <= 0 {
		return ErrInvalidMetadata
	}
	d.UserID = snowflake.ID(rawUser)

	switch Kind(metaString(meta, MetaKind)) {
	case KindSubscription:
		d.Kind = KindSubscription
		d.PlanSlug = metaString(meta, MetaPlanSlug)
		if d.PlanSlug == "" {
			return ErrInvalidMetadata
		}
	case KindCreditPurchase:
		d.Kind = KindCreditPurchase
		credits, err := metaInt64(meta, MetaCredits)
		if err != nil || credits <= 0 {
			return ErrInvalidMetadata
		}
		d.Credits = credits
	case KindOneTime:
		d.Kind = KindOneTime
		if credits, err := metaInt64(meta, MetaCredits); err == nil && credits > 0 {
			d.Credits = credits
		}
	default:
		return ErrInvalidMetadata
	}
	return nil
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func metaInt64(meta map[string]any, key string) (int64, error) {
	v, ok := meta[key]
	if !ok {
		return 0, ErrInvalidMetadata
	}
	switch t := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, ErrInvalidMetadata
		}
		return n, nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, ErrInvalidMetadata
		}
		return n, nil
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	default:
		return 0, ErrInvalidMetadata
	}
}
