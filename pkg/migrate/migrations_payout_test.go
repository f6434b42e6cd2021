package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alikhafaji/mazadpay-backend/pkg/migrate"
)

func TestCoreMigrationContainsPayoutConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_init_core_schema.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no core schema migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE payout_permissions",
		"CONSTRAINT uq_payout_permissions_transaction_id UNIQUE (transaction_id)",
		"CREATE TYPE permission_status AS ENUM ('withheld', 'locked', 'cleared', 'blocked', 'paid')",
		"CREATE TYPE debt_status AS ENUM ('pending', 'escalated', 'resolved')",
		"WHERE permission_status = 'withheld'",
		"DROP TABLE payout_permissions",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir invalid: %v", err)
	}
}
