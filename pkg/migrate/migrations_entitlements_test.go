package migrate_test

import (
	"strings"
	"testing"

	"github.com/tunecrate/tunecrate-backend/pkg/migrate"
)

func TestEntitlementsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_entitlements.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS entitlements",
		"CONSTRAINT entitlements_reference_key UNIQUE (reference)",
		"CHECK (item_type IN ('song', 'album'))",
		"CHECK (status IN ('pending', 'completed', 'failed'))",
		"FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS entitlements",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEntitlementsMigrationEnforcesSingleCompletedRow(t *testing.T) {
	content := readMigration(t, "*_create_entitlements.sql")

	if !strings.Contains(content, "CREATE UNIQUE INDEX IF NOT EXISTS idx_entitlements_completed_user_item") {
		t.Fatal("missing partial unique index on completed entitlements")
	}
	if !strings.Contains(content, "WHERE status = 'completed'") {
		t.Fatal("unique index must be scoped to completed rows")
	}
}

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir failed validation: %v", err)
	}
}
