package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	accountdomain "github.com/docuflow/billing/internal/account/domain"
	gatewaydomain "github.com/docuflow/billing/internal/gateway/domain"
	ledgerdomain "github.com/docuflow/billing/internal/ledger/domain"
	ledgerservice "github.com/docuflow/billing/internal/ledger/service"
	"github.com/docuflow/billing/internal/migration"
	paymentdomain "github.com/docuflow/billing/internal/payment/domain"
	paymentrepo "github.com/docuflow/billing/internal/payment/repository"
	paymentservice "github.com/docuflow/billing/internal/payment/service"
	plandomain "github.com/docuflow/billing/internal/plan/domain"
	planservice "github.com/docuflow/billing/internal/plan/service"
	subscriptionservice "github.com/docuflow/billing/internal/subscription/service"
)

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	ledger ledgerdomain.Service
	svc    *paymentservice.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_payment_%d?mode=memory&cache=shared&_busy_timeout=5000", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migration.RunMigrations(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
	planSvc := planservice.NewService(planservice.Params{
		DB:  db,
		Log: zap.NewNop(),
	})
	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Repo:          paymentrepo.Provide(),
		Ledger:        ledgerSvc,
		Plans:         planSvc,
		Subscriptions: subscriptionSvc,
	})

	return &fixture{db: db, node: node, ledger: ledgerSvc, svc: paymentSvc}
}

func (f *fixture) seedAccount(t *testing.T) snowflake.ID {
	t.Helper()

	account := accountdomain.UserAccount{
		ID:                 f.node.Generate(),
		Email:              "user@example.com",
		SubscriptionStatus: accountdomain.SubscriptionStatusNone,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := f.db.Create(&account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account.ID
}

func (f *fixture) seedPlan(t *testing.T, planSlug string, credits int64) snowflake.ID {
	t.Helper()

	plan := plandomain.Plan{
		ID:              f.node.Generate(),
		Slug:            planSlug,
		Name:            planSlug,
		CreditsIncluded: credits,
		PriceMonthly:    decimal.New(1200, -2),
		PriceAnnual:     decimal.New(12000, -2),
		CreatedAt:       time.Now().UTC(),
	}
	if err := f.db.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan.ID
}

func creditPurchase(userID snowflake.ID, gatewayPaymentID string, credits int64, status gatewaydomain.Status) *gatewaydomain.PaymentDetails {
	return &gatewaydomain.PaymentDetails{
		Gateway:          "stripe",
		GatewayPaymentID: gatewayPaymentID,
		Status:           status,
		Amount:           decimal.New(2500, -2),
		Currency:         "USD",
		UserID:           userID,
		Kind:             gatewaydomain.KindCreditPurchase,
		Credits:          credits,
	}
}

func (f *fixture) balance(t *testing.T, userID snowflake.ID) int64 {
	t.Helper()
	balance, err := f.ledger.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return balance
}

func TestReconcileApprovedGrantsOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	userID := f.seedAccount(t)
	details := creditPurchase(userID, "pi_1", 50, gatewaydomain.StatusApproved)

	outcome, err := f.svc.Reconcile(ctx, details)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !outcome.Applied || outcome.Status != paymentdomain.StatusPaid {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if got := f.balance(t, userID); got != 50 {
		t.Fatalf("expected balance 50, got %d", got)
	}

	// Redelivery: same payment, no second grant.
	outcome, err = f.svc.Reconcile(ctx, details)
	if err != nil {
		t.Fatalf("reconcile replay: %v", err)
	}
	if !outcome.Duplicate || outcome.Applied {
		t.Fatalf("expected duplicate outcome, got %+v", outcome)
	}
	if got := f.balance(t, userID); got != 50 {
		t.Fatalf("replay changed balance: %d", got)
	}
}

func TestReconcilePendingThenApproved(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	userID := f.seedAccount(t)

	outcome, err := f.svc.Reconcile(ctx, creditPurchase(userID, "pi_2", 50, gatewaydomain.StatusPending))
	if err != nil {
		t.Fatalf("reconcile pending: %v", err)
	}
	if outcome.Status != paymentdomain.StatusPending || !outcome.Applied {
		t.Fatalf("unexpected pending outcome: %+v", outcome)
	}
	if got := f.balance(t, userID); got != 0 {
		t.Fatalf("pending payment granted credits: %d", got)
	}

	outcome, err = f.svc.Reconcile(ctx, creditPurchase(userID, "pi_2", 50, gatewaydomain.StatusApproved))
	if err != nil {
		t.Fatalf("reconcile approved: %v", err)
	}
	if outcome.Status != paymentdomain.StatusPaid || !outcome.Applied {
		t.Fatalf("unexpected approved outcome: %+v", outcome)
	}
	if got := f.balance(t, userID); got != 50 {
		t.Fatalf("expected balance 50, got %d", got)
	}
}

func TestReconcileFailedThenApproved(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	userID := f.seedAccount(t)

	if _, err := f.svc.Reconcile(ctx, creditPurchase(userID, "pi_3", 25, gatewaydomain.StatusFailed)); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if got := f.balance(t, userID); got != 0 {
		t.Fatalf("failed payment granted credits: %d", got)
	}

	outcome, err := f.svc.Reconcile(ctx, creditPurchase(userID, "pi_3", 25, gatewaydomain.StatusApproved))
	if err != nil {
		t.Fatalf("reconcile approved: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("retry after failure should settle, got %+v", outcome)
	}
	if got := f.balance(t, userID); got != 25 {
		t.Fatalf("expected balance 25, got %d", got)
	}
}

func TestReconcileSubscriptionActivatesPlan(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	userID := f.seedAccount(t)
	planID := f.seedPlan(t, "pro", 100)

	details := &gatewaydomain.PaymentDetails{
		Gateway:           "mercadopago",
		GatewayPaymentID:  "987654",
		Status:            gatewaydomain.StatusApproved,
		Amount:            decimal.New(4990, -2),
		Currency:          "ARS",
		UserID:            userID,
		Kind:              gatewaydomain.KindSubscription,
		PlanSlug:          "pro",
		GatewayCustomerID: "cus_mp_1",
	}

	outcome, err := f.svc.Reconcile(ctx, details)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	var account accountdomain.UserAccount
	if err := f.db.First(&account, "id = ?", userID).Error; err != nil {
		t.Fatalf("load account: %v", err)
	}
	if account.PlanID == nil || *account.PlanID != planID {
		t.Fatalf("plan not activated: %+v", account)
	}
	if account.SubscriptionStatus != accountdomain.SubscriptionStatusActive {
		t.Fatalf("expected active subscription, got %s", account.SubscriptionStatus)
	}
	if got := f.balance(t, userID); got != 100 {
		t.Fatalf("expected plan credits 100, got %d", got)
	}

	var link accountdomain.GatewayCustomer
	if err := f.db.First(&link, "gateway = ? AND gateway_customer_id = ?", "mercadopago", "cus_mp_1").Error; err != nil {
		t.Fatalf("gateway customer not linked: %v", err)
	}
	if link.UserID != userID {
		t.Fatalf("link points at wrong user: %+v", link)
	}
}

func TestReconcileUnknownPlanStillRecordsPayment(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	userID := f.seedAccount(t)

	details := &gatewaydomain.PaymentDetails{
		Gateway:          "stripe",
		GatewayPaymentID: "pi_5",
		Status:           gatewaydomain.StatusApproved,
		Amount:           decimal.New(1200, -2),
		Currency:         "USD",
		UserID:           userID,
		Kind:             gatewaydomain.KindSubscription,
		PlanSlug:         "does-not-exist",
	}

	outcome, err := f.svc.Reconcile(ctx, details)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	record, err := f.svc.FindRecord(ctx, "stripe", "pi_5")
	if err != nil {
		t.Fatalf("find record: %v", err)
	}
	if record.Status != paymentdomain.StatusPaid {
		t.Fatalf("expected paid record, got %s", record.Status)
	}
	if got := f.balance(t, userID); got != 0 {
		t.Fatalf("unknown plan must not grant credits, got %d", got)
	}
}

func TestReconcileUnknownUserStillRecordsPayment(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	// No account row exists for this user id.
	ghostID := f.node.Generate()

	outcome, err := f.svc.Reconcile(ctx, creditPurchase(ghostID, "pi_ghost", 50, gatewaydomain.StatusApproved))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	record, err := f.svc.FindRecord(ctx, "stripe", "pi_ghost")
	if err != nil {
		t.Fatalf("find record: %v", err)
	}
	if record.Status != paymentdomain.StatusPaid {
		t.Fatalf("expected paid record, got %s", record.Status)
	}

	var entries int64
	if err := f.db.Model(&ledgerdomain.CreditTransaction{}).
		Where("user_id = ?", ghostID).
		Count(&entries).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if entries != 0 {
		t.Fatalf("unknown account must not get ledger entries, got %d", entries)
	}
}

func TestReconcileRefundOffsetsGrantedCredits(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	userID := f.seedAccount(t)

	if _, err := f.svc.Reconcile(ctx, creditPurchase(userID, "pi_6", 50, gatewaydomain.StatusApproved)); err != nil {
		t.Fatalf("reconcile approved: %v", err)
	}
	if got := f.balance(t, userID); got != 50 {
		t.Fatalf("expected 50 credits, got %d", got)
	}

	outcome, err := f.svc.Reconcile(ctx, creditPurchase(userID, "pi_6", 50, gatewaydomain.StatusRefunded))
	if err != nil {
		t.Fatalf("reconcile refund: %v", err)
	}
	if !outcome.Applied || outcome.Status != paymentdomain.StatusRefunded {
		t.Fatalf("unexpected refund outcome: %+v", outcome)
	}
	if got := f.balance(t, userID); got != 0 {
		t.Fatalf("expected offset balance 0, got %d", got)
	}

	// Replaying the refund must not offset twice.
	outcome, err = f.svc.Reconcile(ctx, creditPurchase(userID, "pi_6", 50, gatewaydomain.StatusRefunded))
	if err != nil {
		t.Fatalf("reconcile refund replay: %v", err)
	}
	if !outcome.Duplicate {
		t.Fatalf("expected duplicate refund outcome, got %+v", outcome)
	}
	if got := f.balance(t, userID); got != 0 {
		t.Fatalf("refund replay changed balance: %d", got)
	}

	items, err := f.ledger.ListTransactions(ctx, userID, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected grant + refund entries, got %d", len(items))
	}
}
