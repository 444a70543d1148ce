package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	accountdomain "github.com/docuflow/billing/internal/account/domain"
	ledgerdomain "github.com/docuflow/billing/internal/ledger/domain"
	ledgerservice "github.com/docuflow/billing/internal/ledger/service"
	"github.com/docuflow/billing/internal/migration"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_ledger_%d?mode=memory&cache=shared&_busy_timeout=5000", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migration.RunMigrations(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newLedger(t *testing.T, db *gorm.DB) (ledgerdomain.Service, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
	return svc, node
}

func seedAccount(t *testing.T, db *gorm.DB, node *snowflake.Node, credits int64) snowflake.ID {
	t.Helper()

	account := accountdomain.UserAccount{
		ID:                 node.Generate(),
		Email:              "user@example.com",
		Credits:            credits,
		SubscriptionStatus: accountdomain.SubscriptionStatusNone,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account.ID
}

func TestApplyCreditUpdatesBalanceAndLog(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newLedger(t, db)
	userID := seedAccount(t, db, node, 0)

	if err := svc.ApplyCredit(ctx, userID, 50, ledgerdomain.TypePurchase, "credit purchase", "stripe:pi_1"); err != nil {
		t.Fatalf("apply credit: %v", err)
	}

	balance, err := svc.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 50 {
		t.Fatalf("expected balance 50, got %d", balance)
	}

	items, err := svc.ListTransactions(ctx, userID, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(items))
	}
	if items[0].Amount != 50 || items[0].Type != ledgerdomain.TypePurchase {
		t.Fatalf("unexpected transaction: %+v", items[0])
	}
}

func TestApplyCreditValidation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newLedger(t, db)
	userID := seedAccount(t, db, node, 0)

	tests := []struct {
		name   string
		amount int64
		txType ledgerdomain.TransactionType
		want   error
	}{
		{"purchase must be positive", -5, ledgerdomain.TypePurchase, ledgerdomain.ErrInvalidAmount},
		{"bonus must be positive", 0, ledgerdomain.TypeBonus, ledgerdomain.ErrInvalidAmount},
		{"refund must be negative", 5, ledgerdomain.TypeRefund, ledgerdomain.ErrInvalidAmount},
		{"consumption not accepted here", 1, ledgerdomain.TypeConsumption, ledgerdomain.ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ApplyCredit(ctx, userID, tt.amount, tt.txType, "x", "ref")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := svc.ApplyCredit(ctx, userID, 10, ledgerdomain.TypePurchase, "x", "  "); !errors.Is(err, ledgerdomain.ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", err)
	}
	if err := svc.ApplyCredit(ctx, node.Generate(), 10, ledgerdomain.TypePurchase, "x", "ref"); !errors.Is(err, accountdomain.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestConsumeCredit(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newLedger(t, db)
	userID := seedAccount(t, db, node, 1)

	if err := svc.ConsumeCredit(ctx, userID, "doc_1"); err != nil {
		t.Fatalf("consume credit: %v", err)
	}
	if err := svc.ConsumeCredit(ctx, userID, "doc_2"); !errors.Is(err, ledgerdomain.ErrInsufficientCredits) {
		t.Fatalf("expected insufficient credits, got %v", err)
	}

	balance, err := svc.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

// Concurrent grants for the same user must not lose an update: the balance
// mutation is a storage-level increment.
func TestConcurrentApplyCredit(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newLedger(t, db)
	userID := seedAccount(t, db, node, 0)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := svc.ApplyCredit(ctx, userID, 10, ledgerdomain.TypePurchase, "grant", "ref_a"); err != nil {
			t.Errorf("apply 10: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := svc.ApplyCredit(ctx, userID, 5, ledgerdomain.TypePurchase, "grant", "ref_b"); err != nil {
			t.Errorf("apply 5: %v", err)
		}
	}()
	wg.Wait()

	balance, err := svc.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 15 {
		t.Fatalf("expected balance 15, got %d", balance)
	}

	result, err := svc.Reconcile(ctx, userID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !result.Consistent {
		t.Fatalf("expected consistent ledger, got balance=%d sum=%d", result.Balance, result.LedgerSum)
	}
}

func TestCreditsByReference(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newLedger(t, db)
	userID := seedAccount(t, db, node, 0)

	if err := svc.ApplyCredit(ctx, userID, 100, ledgerdomain.TypeBonus, "plan credits", "stripe:pi_9"); err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	if err := svc.ConsumeCredit(ctx, userID, "doc_1"); err != nil {
		t.Fatalf("consume: %v", err)
	}

	granted, err := svc.CreditsByReference(ctx, nil, "stripe:pi_9")
	if err != nil {
		t.Fatalf("credits by reference: %v", err)
	}
	if granted != 100 {
		t.Fatalf("expected 100 granted for reference, got %d", granted)
	}
}

func TestReconcileDetectsDivergence(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newLedger(t, db)
	userID := seedAccount(t, db, node, 0)

	if err := svc.ApplyCredit(ctx, userID, 20, ledgerdomain.TypePurchase, "x", "ref"); err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	// Corrupt the denormalized balance behind the ledger's back.
	if err := db.Exec(`UPDATE user_accounts SET credits = 99 WHERE id = ?`, userID).Error; err != nil {
		t.Fatalf("corrupt balance: %v", err)
	}

	result, err := svc.Reconcile(ctx, userID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Consistent {
		t.Fatalf("expected divergence to be reported")
	}
	if result.Balance != 99 || result.LedgerSum != 20 {
		t.Fatalf("unexpected reconcile result: %+v", result)
	}
}
