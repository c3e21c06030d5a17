package entitlements

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
	"github.com/tunecrate/tunecrate-backend/pkg/pagination"
)

func setupEntitlementsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS entitlements (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  item_type TEXT NOT NULL,
  reference TEXT NOT NULL UNIQUE,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL DEFAULT 'NGN',
  status TEXT NOT NULL DEFAULT 'pending',
  purchased_at DATETIME,
  notification_sent INTEGER NOT NULL DEFAULT 0,
  revoked_at DATETIME,
  revoked_by TEXT,
  revoke_reason TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func pendingRow(reference string) *models.Entitlement {
	return &models.Entitlement{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ItemID:    uuid.New(),
		ItemType:  enums.AssetKindSong,
		Reference: reference,
		Amount:    decimal.NewFromInt(1500),
		Currency:  enums.CurrencyNGN,
	}
}

func TestRepositoryCreatePendingForcesStatus(t *testing.T) {
	repo := NewRepository(setupEntitlementsTestDB(t))
	ctx := context.Background()

	row := pendingRow("tc_create")
	row.Status = enums.EntitlementStatusCompleted

	created, err := repo.CreatePending(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, enums.EntitlementStatusPending, created.Status)

	loaded, err := repo.FindByReference(ctx, "tc_create")
	require.NoError(t, err)
	assert.Equal(t, enums.EntitlementStatusPending, loaded.Status)
	assert.Equal(t, row.UserID, loaded.UserID)
}

func TestRepositoryMarkCompletedAppliesOnce(t *testing.T) {
	repo := NewRepository(setupEntitlementsTestDB(t))
	ctx := context.Background()

	_, err := repo.CreatePending(ctx, pendingRow("tc_once"))
	require.NoError(t, err)

	paidAt := time.Now().UTC().Truncate(time.Second)
	applied, row, err := repo.MarkCompleted(ctx, "tc_once", paidAt)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, enums.EntitlementStatusCompleted, row.Status)
	require.NotNil(t, row.PurchasedAt)

	// a second confirmation loses the state guard but still reads the row
	applied, row, err = repo.MarkCompleted(ctx, "tc_once", paidAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, enums.EntitlementStatusCompleted, row.Status)
	assert.Equal(t, paidAt, row.PurchasedAt.UTC().Truncate(time.Second))
}

func TestRepositoryMarkFailedLeavesCompletedAlone(t *testing.T) {
	repo := NewRepository(setupEntitlementsTestDB(t))
	ctx := context.Background()

	_, err := repo.CreatePending(ctx, pendingRow("tc_fail"))
	require.NoError(t, err)

	applied, _, err := repo.MarkCompleted(ctx, "tc_fail", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, applied)

	failed, err := repo.MarkFailed(ctx, "tc_fail")
	require.NoError(t, err)
	assert.False(t, failed)

	row, err := repo.FindByReference(ctx, "tc_fail")
	require.NoError(t, err)
	assert.Equal(t, enums.EntitlementStatusCompleted, row.Status)
}

func TestRepositoryRevokeRequiresCompleted(t *testing.T) {
	repo := NewRepository(setupEntitlementsTestDB(t))
	ctx := context.Background()

	created, err := repo.CreatePending(ctx, pendingRow("tc_revoke"))
	require.NoError(t, err)

	admin := uuid.New()
	modified, err := repo.Revoke(ctx, created.UserID, created.ItemID, admin, "chargeback", time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, modified, "pending rows are not revocable")

	_, _, err = repo.MarkCompleted(ctx, "tc_revoke", time.Now().UTC())
	require.NoError(t, err)

	modified, err = repo.Revoke(ctx, created.UserID, created.ItemID, admin, "chargeback", time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, modified)

	row, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EntitlementStatusFailed, row.Status)
	require.NotNil(t, row.RevokedBy)
	assert.Equal(t, admin, *row.RevokedBy)
	require.NotNil(t, row.RevokeReason)
	assert.Equal(t, "chargeback", *row.RevokeReason)
	assert.NotNil(t, row.RevokedAt)
}

func TestRepositoryDeletePendingOnlyRemovesPending(t *testing.T) {
	repo := NewRepository(setupEntitlementsTestDB(t))
	ctx := context.Background()

	created, err := repo.CreatePending(ctx, pendingRow("tc_discard"))
	require.NoError(t, err)

	deleted, err := repo.DeletePending(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	settled, err := repo.CreatePending(ctx, pendingRow("tc_keep"))
	require.NoError(t, err)
	_, _, err = repo.MarkCompleted(ctx, "tc_keep", time.Now().UTC())
	require.NoError(t, err)

	deleted, err = repo.DeletePending(ctx, settled.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "completed rows are never deleted")

	row, err := repo.FindByID(ctx, settled.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EntitlementStatusCompleted, row.Status)
}

func TestRepositoryOwnershipChecks(t *testing.T) {
	repo := NewRepository(setupEntitlementsTestDB(t))
	ctx := context.Background()

	row := pendingRow("tc_own")
	_, err := repo.CreatePending(ctx, row)
	require.NoError(t, err)

	owned, err := repo.HasCompleted(ctx, row.UserID, row.ItemID)
	require.NoError(t, err)
	assert.False(t, owned, "pending rows do not grant ownership")

	_, _, err = repo.MarkCompleted(ctx, "tc_own", time.Now().UTC())
	require.NoError(t, err)

	owned, err = repo.HasCompleted(ctx, row.UserID, row.ItemID)
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = repo.HasCompletedForAnyItem(ctx, row.UserID, []uuid.UUID{uuid.New(), row.ItemID})
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = repo.HasCompletedForAnyItem(ctx, row.UserID, nil)
	require.NoError(t, err)
	assert.False(t, owned)

	owned, err = repo.HasCompleted(ctx, uuid.New(), row.ItemID)
	require.NoError(t, err)
	assert.False(t, owned, "ownership is per user")
}

func TestRepositoryListByUserKeysetPagination(t *testing.T) {
	repo := NewRepository(setupEntitlementsTestDB(t))
	ctx := context.Background()

	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 5; i++ {
		row := pendingRow("tc_list_" + string(rune('a'+i)))
		row.UserID = userID
		row.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := repo.CreatePending(ctx, row)
		require.NoError(t, err)
		if i < 3 {
			_, _, err = repo.MarkCompleted(ctx, row.Reference, time.Now().UTC())
			require.NoError(t, err)
		}
	}

	rows, err := repo.ListByUser(ctx, userID, listQuery{
		status: enums.EntitlementStatusCompleted,
		limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt), "newest first")

	next, err := repo.ListByUser(ctx, userID, listQuery{
		status: enums.EntitlementStatusCompleted,
		cursor: &pagination.Cursor{CreatedAt: rows[1].CreatedAt, ID: rows[1].ID},
		limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.True(t, rows[1].CreatedAt.After(next[0].CreatedAt))
}

func TestRepositoryMarkNotified(t *testing.T) {
	repo := NewRepository(setupEntitlementsTestDB(t))
	ctx := context.Background()

	created, err := repo.CreatePending(ctx, pendingRow("tc_notify"))
	require.NoError(t, err)
	assert.False(t, created.NotificationSent)

	require.NoError(t, repo.MarkNotified(ctx, created.ID))

	row, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, row.NotificationSent)
}
