package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/billing/internal/gateway/domain"
)

func TestApplyMetadata(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]any
		want domain.PaymentDetails
	}{
		{
			name: "subscription with string values",
			meta: map[string]any{
				"user_id":   "1234567890",
				"kind":      "subscription",
				"plan_slug": "pro",
			},
			want: domain.PaymentDetails{
				UserID:   snowflake.ID(1234567890),
				Kind:     domain.KindSubscription,
				PlanSlug: "pro",
			},
		},
		{
			name: "credit purchase with json numbers",
			meta: map[string]any{
				"user_id": json.Number("1234567890"),
				"kind":    "credit_purchase",
				"credits": json.Number("50"),
			},
			want: domain.PaymentDetails{
				UserID:  snowflake.ID(1234567890),
				Kind:    domain.KindCreditPurchase,
				Credits: 50,
			},
		},
		{
			name: "one time with float credits",
			meta: map[string]any{
				"user_id": float64(42),
				"kind":    "one_time",
				"credits": float64(10),
			},
			want: domain.PaymentDetails{
				UserID:  snowflake.ID(42),
				Kind:    domain.KindOneTime,
				Credits: 10,
			},
		},
		{
			name: "one time without credits",
			meta: map[string]any{
				"user_id": "42",
				"kind":    "one_time",
			},
			want: domain.PaymentDetails{
				UserID: snowflake.ID(42),
				Kind:   domain.KindOneTime,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var details domain.PaymentDetails
			require.NoError(t, domain.ApplyMetadata(&details, tt.meta))
			require.Equal(t, tt.want.UserID, details.UserID)
			require.Equal(t, tt.want.Kind, details.Kind)
			require.Equal(t, tt.want.Credits, details.Credits)
			require.Equal(t, tt.want.PlanSlug, details.PlanSlug)
		})
	}
}

func TestApplyMetadataRejections(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]any
	}{
		{"empty metadata", map[string]any{}},
		{"missing user", map[string]any{"kind": "one_time"}},
		{"zero user", map[string]any{"user_id": "0", "kind": "one_time"}},
		{"unparseable user", map[string]any{"user_id": "abc", "kind": "one_time"}},
		{"unknown kind", map[string]any{"user_id": "42", "kind": "donation"}},
		{"subscription without plan", map[string]any{"user_id": "42", "kind": "subscription"}},
		{"purchase without credits", map[string]any{"user_id": "42", "kind": "credit_purchase"}},
		{"purchase with zero credits", map[string]any{"user_id": "42", "kind": "credit_purchase", "credits": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var details domain.PaymentDetails
			err := domain.ApplyMetadata(&details, tt.meta)
			require.ErrorIs(t, err, domain.ErrInvalidMetadata)
		})
	}
}
