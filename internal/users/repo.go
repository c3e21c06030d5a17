package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/pkg/db"
	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
)

// Repository exposes user persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Identity is the subset of identity-token claims the repo needs to mirror
// a user locally.
type Identity struct {
	SubjectID string
	Email     string
	Role      enums.UserRole
}

// FindOrCreateBySubject loads the local mirror row for the identity subject,
// creating it on first sight. A concurrent insert losing the unique race is
// resolved by re-reading.
func (r *Repository) FindOrCreateBySubject(ctx context.Context, identity Identity) (*models.User, error) {
	subject := strings.TrimSpace(identity.SubjectID)
	if subject == "" {
		return nil, errors.New("subject id is required")
	}

	var user models.User
	err := r.db.WithContext(ctx).Where("subject_id = ?", subject).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	role := identity.Role
	if !role.IsValid() {
		role = enums.UserRoleUser
	}
	user = models.User{
		SubjectID: subject,
		Email:     identity.Email,
		Role:      role,
	}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			var existing models.User
			if findErr := r.db.WithContext(ctx).Where("subject_id = ?", subject).First(&existing).Error; findErr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindBySubject loads a user by their identity subject without creating one.
func (r *Repository) FindBySubject(ctx context.Context, subjectID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("subject_id = ?", subjectID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
