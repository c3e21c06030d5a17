package entitlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
	"github.com/tunecrate/tunecrate-backend/pkg/pagination"
)

// Repository persists entitlement rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an entitlements repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type listQuery struct {
	status enums.EntitlementStatus
	cursor *pagination.Cursor
	limit  int
}

// CreatePending inserts a new pending entitlement row.
func (r *Repository) CreatePending(ctx context.Context, row *models.Entitlement) (*models.Entitlement, error) {
	row.Status = enums.EntitlementStatusPending
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// DeletePending removes a pending row outright. This is the compensation for
// a failed gateway initialize; rows that have progressed past pending are
// never deleted.
func (r *Repository) DeletePending(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, enums.EntitlementStatusPending).
		Delete(&models.Entitlement{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByID loads one entitlement.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Entitlement, error) {
	var row models.Entitlement
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByReference loads the entitlement keyed by its gateway payment reference.
func (r *Repository) FindByReference(ctx context.Context, reference string) (*models.Entitlement, error) {
	var row models.Entitlement
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkCompleted flips the referenced entitlement from pending to completed.
// The WHERE clause carries the state guard, so concurrent confirmations of the
// same reference apply the transition exactly once; applied reports whether
// this call won. The row is re-read afterwards either way.
func (r *Repository) MarkCompleted(ctx context.Context, reference string, paidAt time.Time) (bool, *models.Entitlement, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("reference = ? AND status = ?", reference, enums.EntitlementStatusPending).
		Updates(map[string]any{
			"status":       enums.EntitlementStatusCompleted,
			"purchased_at": paidAt,
		})
	if result.Error != nil {
		return false, nil, result.Error
	}

	row, err := r.FindByReference(ctx, reference)
	if err != nil {
		return false, nil, err
	}
	return result.RowsAffected > 0, row, nil
}

// MarkFailed flips the referenced entitlement from pending to failed. A row
// already completed is left untouched.
func (r *Repository) MarkFailed(ctx context.Context, reference string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("reference = ? AND status = ?", reference, enums.EntitlementStatusPending).
		Update("status", enums.EntitlementStatusFailed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Revoke forces the user's completed entitlements for the item to failed and
// stamps the audit columns. The state guard skips rows not completed; the
// modified count is returned for the caller's audit response.
func (r *Repository) Revoke(ctx context.Context, userID, itemID uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("user_id = ? AND item_id = ? AND status = ?", userID, itemID, enums.EntitlementStatusCompleted).
		Updates(map[string]any{
			"status":        enums.EntitlementStatusFailed,
			"revoked_at":    at,
			"revoked_by":    revokedBy,
			"revoke_reason": reason,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// MarkNotified records that the receipt for this entitlement went out.
func (r *Repository) MarkNotified(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("id = ?", id).
		Update("notification_sent", true).Error
}

// HasCompleted reports whether the user holds a completed entitlement for the
// exact item.
func (r *Repository) HasCompleted(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("user_id = ? AND item_id = ? AND status = ?", userID, itemID, enums.EntitlementStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasCompletedForAnyItem reports whether the user holds a completed
// entitlement for any of the given items.
func (r *Repository) HasCompletedForAnyItem(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (bool, error) {
	if len(itemIDs) == 0 {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("user_id = ? AND item_id IN ? AND status = ?", userID, itemIDs, enums.EntitlementStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByUser returns the user's entitlement rows matching the query, newest
// first with keyset pagination.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, opts listQuery) ([]models.Entitlement, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if opts.status != "" {
		query = query.Where("status = ?", opts.status)
	}
	if opts.cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID,
		)
	}

	var rows []models.Entitlement
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(opts.limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
