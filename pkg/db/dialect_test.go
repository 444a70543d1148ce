package db_test

import (
	"errors"
	"testing"

	"github.com/docuflow/billing/internal/config"
	"github.com/docuflow/billing/pkg/db"
	"gorm.io/gorm"
)

func TestDialectSelection(t *testing.T) {
	if _, err := db.Dialect(config.Config{DBType: "postgres", DBName: "billing"}); err != nil {
		t.Fatalf("postgres dialect: %v", err)
	}
	if _, err := db.Dialect(config.Config{DBType: "sqlite", DBName: "file::memory:"}); err != nil {
		t.Fatalf("sqlite dialect: %v", err)
	}
}

func TestDialectRejectsUnsupportedType(t *testing.T) {
	// The idempotent inserts use ON CONFLICT, so dialects that cannot
	// parse it must be refused at startup.
	for _, dbType := range []string{"mysql", "oracle", ""} {
		if _, err := db.Dialect(config.Config{DBType: dbType}); err == nil {
			t.Fatalf("expected error for db type %q", dbType)
		}
	}
}

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{gorm.ErrDuplicatedKey, true},
		{errors.New(`duplicate key value violates unique constraint "idx_gateway_payment"`), true},
		{errors.New("UNIQUE constraint failed: payment_records.gateway_payment_id"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := db.IsDuplicateKeyErr(tc.err); got != tc.want {
			t.Fatalf("IsDuplicateKeyErr(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
