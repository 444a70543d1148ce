// Package migration creates the billing schema on startup so the service is
// usable out of the box for local and self-hosted environments.
package migration

import (
	"errors"

	"gorm.io/gorm"

	accountdomain "github.com/docuflow/billing/internal/account/domain"
	auditdomain "github.com/docuflow/billing/internal/audit/domain"
	ledgerdomain "github.com/docuflow/billing/internal/ledger/domain"
	paymentdomain "github.com/docuflow/billing/internal/payment/domain"
	plandomain "github.com/docuflow/billing/internal/plan/domain"
)

func RunMigrations(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	return conn.AutoMigrate(
		&plandomain.Plan{},
		&accountdomain.UserAccount{},
		&accountdomain.GatewayCustomer{},
		&paymentdomain.PaymentRecord{},
		&ledgerdomain.CreditTransaction{},
		&auditdomain.AuditEvent{},
	)
}
