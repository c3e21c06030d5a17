package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tunecrate/tunecrate-backend/pkg/enums"
)

// User is a lazy local mirror of the identity-provider record, created on
// first purchase attempt. The role claim carried in request tokens stays
// authoritative; this row only caches it.
type User struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SubjectID    string         `gorm:"column:subject_id;not null;unique" json:"subject_id"`
	Email        string         `gorm:"column:email;not null" json:"email"`
	FirstName    string         `gorm:"column:first_name" json:"first_name"`
	LastName     string         `gorm:"column:last_name" json:"last_name"`
	Role         enums.UserRole `gorm:"column:role;not null;default:'user'" json:"role"`
	Entitlements []Entitlement  `gorm:"foreignKey:UserID" json:"entitlements,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
