package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	accountdomain "github.com/docuflow/billing/internal/account/domain"
	"github.com/docuflow/billing/internal/events"
	gatewaydomain "github.com/docuflow/billing/internal/gateway/domain"
	"github.com/docuflow/billing/internal/idempotency"
	ledgerdomain "github.com/docuflow/billing/internal/ledger/domain"
	obsmetrics "github.com/docuflow/billing/internal/observability/metrics"
	paymentdomain "github.com/docuflow/billing/internal/payment/domain"
	plandomain "github.com/docuflow/billing/internal/plan/domain"
	subscriptiondomain "github.com/docuflow/billing/internal/subscription/domain"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          paymentdomain.Repository
	Ledger        ledgerdomain.Service
	Plans         plandomain.Service
	Subscriptions subscriptiondomain.Service
	Cache         *idempotency.Cache  `optional:"true"`
	Dispatcher    *events.Dispatcher  `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          paymentdomain.Repository
	ledger        ledgerdomain.Service
	plans         plandomain.Service
	subscriptions subscriptiondomain.Service
	cache         *idempotency.Cache
	dispatcher    *events.Dispatcher
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		ledger:        p.Ledger,
		plans:         p.Plans,
		subscriptions: p.Subscriptions,
		cache:         p.Cache,
		dispatcher:    p.Dispatcher,
		obsMetrics:    p.ObsMetrics,
	}
}

// Reconcile folds one authoritative payment state into the local records.
// It is safe to call any number of times with the same details: the record
// claim decides whether this call applies account mutations.
func (s *Service) Reconcile(ctx context.Context, details *gatewaydomain.PaymentDetails) (paymentdomain.Outcome, error) {
	if details == nil {
		return paymentdomain.Outcome{}, gatewaydomain.ErrInvalidEvent
	}
	gateway := strings.ToLower(strings.TrimSpace(details.Gateway))
	gatewayPaymentID := strings.TrimSpace(details.GatewayPaymentID)
	if gateway == "" {
		return paymentdomain.Outcome{}, paymentdomain.ErrInvalidGateway
	}
	if gatewayPaymentID == "" {
		return paymentdomain.Outcome{}, gatewaydomain.ErrInvalidEvent
	}
	if details.UserID == 0 {
		return paymentdomain.Outcome{}, gatewaydomain.ErrInvalidMetadata
	}

	switch details.Status {
	case gatewaydomain.StatusApproved:
		return s.settleApproved(ctx, gateway, gatewayPaymentID, details)
	case gatewaydomain.StatusPending:
		return s.recordUnsettled(ctx, gateway, gatewayPaymentID, details, paymentdomain.StatusPending)
	case gatewaydomain.StatusFailed:
		return s.recordUnsettled(ctx, gateway, gatewayPaymentID, details, paymentdomain.StatusFailed)
	case gatewaydomain.StatusRefunded:
		return s.settleRefund(ctx, gateway, gatewayPaymentID, details)
	default:
		return paymentdomain.Outcome{}, gatewaydomain.ErrInvalidEvent
	}
}

// settleApproved claims the record as paid and applies the grant inside one
// transaction. Exactly one caller ever wins the claim; everyone else gets a
// duplicate outcome, including concurrent redeliveries.
func (s *Service) settleApproved(ctx context.Context, gateway, gatewayPaymentID string, details *gatewaydomain.PaymentDetails) (paymentdomain.Outcome, error) {
	reference := referenceKey(gateway, gatewayPaymentID)
	var unmatched string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := s.newRecord(gateway, gatewayPaymentID, details, paymentdomain.StatusPaid)
		inserted, err := s.repo.Insert(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			claimed, err := s.repo.ClaimPaid(ctx, tx, gateway, gatewayPaymentID)
			if err != nil {
				return err
			}
			if !claimed {
				return paymentdomain.ErrAlreadySettled
			}
		}

		unmatched, err = s.grantInTx(ctx, tx, details, reference)
		return err
	})

	if errors.Is(err, paymentdomain.ErrAlreadySettled) {
		s.cache.MarkSettled(ctx, gateway, gatewayPaymentID)
		s.recordMetric(ctx, gateway, "duplicate")
		return paymentdomain.Outcome{Status: paymentdomain.StatusPaid, Duplicate: true}, nil
	}
	if err != nil {
		return paymentdomain.Outcome{}, err
	}

	s.cache.MarkSettled(ctx, gateway, gatewayPaymentID)
	s.recordMetric(ctx, gateway, string(paymentdomain.StatusPaid))

	if unmatched != "" {
		s.publish(events.TypePaymentUnmatched, details, gateway, reference, map[string]any{
			"reason":    unmatched,
			"plan_slug": details.PlanSlug,
		})
	} else {
		s.publish(events.TypePaymentSettled, details, gateway, reference, map[string]any{
			"kind":     string(details.Kind),
			"amount":   details.Amount.String(),
			"currency": details.Currency,
		})
	}
	return paymentdomain.Outcome{Status: paymentdomain.StatusPaid, Applied: true}, nil
}

// grantInTx applies what the payment bought. A grant that cannot be matched
// to a plan or an account returns a non-empty reason instead of an error: the
// payment stays recorded as paid and the grant is left for manual resolution.
func (s *Service) grantInTx(ctx context.Context, tx *gorm.DB, details *gatewaydomain.PaymentDetails, reference string) (string, error) {
	switch details.Kind {
	case gatewaydomain.KindSubscription:
		plan, err := s.plans.FindBySlug(ctx, details.PlanSlug)
		if err != nil {
			if errors.Is(err, plandomain.ErrPlanNotFound) || errors.Is(err, plandomain.ErrInvalidSlug) {
				s.log.Error("approved payment references unknown plan",
					zap.String("reference_id", reference),
					zap.String("plan_slug", details.PlanSlug),
				)
				return "unknown_plan", nil
			}
			return "", err
		}
		if err := s.subscriptions.ActivateInTx(ctx, tx, details.UserID, plan.ID); err != nil {
			return s.unmatchedAccount(err, reference, details.UserID)
		}
		if plan.CreditsIncluded > 0 {
			err := s.ledger.ApplyCreditInTx(ctx, tx, details.UserID, plan.CreditsIncluded,
				ledgerdomain.TypeBonus, fmt.Sprintf("%s plan credits", plan.Slug), reference)
			if err != nil {
				return "", err
			}
		}
		if err := s.subscriptions.LinkGatewayCustomerInTx(ctx, tx, details.UserID, details.Gateway, details.GatewayCustomerID); err != nil {
			return "", err
		}
		return "", nil

	case gatewaydomain.KindCreditPurchase:
		err := s.ledger.ApplyCreditInTx(ctx, tx, details.UserID, details.Credits,
			ledgerdomain.TypePurchase, "credit purchase", reference)
		if err != nil {
			return s.unmatchedAccount(err, reference, details.UserID)
		}
		return "", nil

	case gatewaydomain.KindOneTime:
		if details.Credits > 0 {
			err := s.ledger.ApplyCreditInTx(ctx, tx, details.UserID, details.Credits,
				ledgerdomain.TypePurchase, "one-time purchase", reference)
			if err != nil {
				return s.unmatchedAccount(err, reference, details.UserID)
			}
		}
		return "", nil

	default:
		return "", gatewaydomain.ErrInvalidMetadata
	}
}

// unmatchedAccount downgrades a missing-account failure to an unmatched grant
// so the paid record survives the transaction; any other error propagates and
// rolls it back.
func (s *Service) unmatchedAccount(err error, reference string, userID snowflake.ID) (string, error) {
	if !errors.Is(err, accountdomain.ErrAccountNotFound) {
		return "", err
	}
	s.log.Error("approved payment references unknown account",
		zap.String("reference_id", reference),
		zap.String("user_id", userID.String()),
	)
	return "unknown_account", nil
}

func (s *Service) recordUnsettled(ctx context.Context, gateway, gatewayPaymentID string, details *gatewaydomain.PaymentDetails, status paymentdomain.Status) (paymentdomain.Outcome, error) {
	var applied bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := s.newRecord(gateway, gatewayPaymentID, details, status)
		inserted, err := s.repo.Insert(ctx, tx, record)
		if err != nil {
			return err
		}
		if inserted {
			applied = true
			return nil
		}
		changed, err := s.repo.UpdateStatusIfNotSettled(ctx, tx, gateway, gatewayPaymentID, status)
		if err != nil {
			return err
		}
		applied = changed
		return nil
	})
	if err != nil {
		return paymentdomain.Outcome{}, err
	}

	s.recordMetric(ctx, gateway, string(status))
	if applied {
		reference := referenceKey(gateway, gatewayPaymentID)
		eventType := events.TypePaymentPending
		if status == paymentdomain.StatusFailed {
			eventType = events.TypePaymentFailed
		}
		s.publish(eventType, details, gateway, reference, map[string]any{
			"kind": string(details.Kind),
		})
	}
	return paymentdomain.Outcome{Status: status, Applied: applied, Duplicate: !applied}, nil
}

// settleRefund flips a paid record to refunded and appends the offsetting
// ledger entry sized by what the payment originally granted. The balance may
// go negative; the trail stays consistent.
func (s *Service) settleRefund(ctx context.Context, gateway, gatewayPaymentID string, details *gatewaydomain.PaymentDetails) (paymentdomain.Outcome, error) {
	reference := referenceKey(gateway, gatewayPaymentID)
	var applied bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.repo.MarkRefunded(ctx, tx, gateway, gatewayPaymentID)
		if err != nil {
			return err
		}
		if !claimed {
			// Never paid locally: keep the refunded state on record, but there
			// is nothing to claw back.
			record := s.newRecord(gateway, gatewayPaymentID, details, paymentdomain.StatusRefunded)
			inserted, err := s.repo.Insert(ctx, tx, record)
			if err != nil {
				return err
			}
			if !inserted {
				changed, err := s.repo.UpdateStatusIfNotSettled(ctx, tx, gateway, gatewayPaymentID, paymentdomain.StatusRefunded)
				if err != nil {
					return err
				}
				if !changed {
					return paymentdomain.ErrAlreadySettled
				}
			}
			applied = true
			return nil
		}

		applied = true
		granted, err := s.ledger.CreditsByReference(ctx, tx, reference)
		if err != nil {
			return err
		}
		if granted > 0 {
			return s.ledger.ApplyCreditInTx(ctx, tx, details.UserID, -granted,
				ledgerdomain.TypeRefund, "refund", reference)
		}
		return nil
	})

	if errors.Is(err, paymentdomain.ErrAlreadySettled) {
		s.recordMetric(ctx, gateway, "duplicate")
		return paymentdomain.Outcome{Status: paymentdomain.StatusRefunded, Duplicate: true}, nil
	}
	if err != nil {
		return paymentdomain.Outcome{}, err
	}

	s.cache.MarkSettled(ctx, gateway, gatewayPaymentID)
	s.recordMetric(ctx, gateway, string(paymentdomain.StatusRefunded))
	s.publish(events.TypePaymentRefunded, details, gateway, reference, map[string]any{
		"kind": string(details.Kind),
	})
	return paymentdomain.Outcome{Status: paymentdomain.StatusRefunded, Applied: applied}, nil
}

// AlreadySettled answers the fast-path duplicate check without touching the
// claim logic: cache first, then the records table.
func (s *Service) AlreadySettled(ctx context.Context, gateway, gatewayPaymentID string) (bool, error) {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	gatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	if s.cache.IsSettled(ctx, gateway, gatewayPaymentID) {
		return true, nil
	}
	return s.repo.HasSettled(ctx, s.db, gateway, gatewayPaymentID)
}

// FindRecord exposes stored records for the admin lookup endpoint.
func (s *Service) FindRecord(ctx context.Context, gateway, gatewayPaymentID string) (*paymentdomain.PaymentRecord, error) {
	return s.repo.FindByKey(ctx, s.db, strings.ToLower(strings.TrimSpace(gateway)), strings.TrimSpace(gatewayPaymentID))
}

func (s *Service) newRecord(gateway, gatewayPaymentID string, details *gatewaydomain.PaymentDetails, status paymentdomain.Status) *paymentdomain.PaymentRecord {
	now := time.Now().UTC()
	metadata := map[string]any{}
	for key, value := range details.Metadata {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	return &paymentdomain.PaymentRecord{
		ID:               s.genID.Generate(),
		Gateway:          gateway,
		GatewayPaymentID: gatewayPaymentID,
		UserID:           details.UserID,
		Kind:             string(details.Kind),
		Status:           status,
		Amount:           details.Amount,
		Currency:         details.Currency,
		Metadata:         datatypes.JSONMap(metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (s *Service) publish(eventType events.Type, details *gatewaydomain.PaymentDetails, gateway, reference string, metadata map[string]any) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(events.Event{
		Type:        eventType,
		UserID:      details.UserID,
		Gateway:     gateway,
		ReferenceID: reference,
		Metadata:    metadata,
	})
}

func (s *Service) recordMetric(ctx context.Context, gateway, status string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, gateway, status)
	}
}

func referenceKey(gateway, gatewayPaymentID string) string {
	return fmt.Sprintf("%s:%s", gateway, gatewayPaymentID)
}
