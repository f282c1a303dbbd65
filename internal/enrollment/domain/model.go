// Package domain contains the course-access persistence model.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type EnrollmentStatus string

const (
	EnrollmentStatusActive EnrollmentStatus = "active"
)

// Enrollment is one row per (user, course). Repeat purchases replace the row
// in place with a freshly computed expiry; access is never stacked.
type Enrollment struct {
	ID        snowflake.ID     `gorm:"primaryKey"`
	UserID    string           `gorm:"type:text;not null;uniqueIndex:idx_enrollments_user_course"`
	CourseID  string           `gorm:"type:text;not null;uniqueIndex:idx_enrollments_user_course"`
	Status    EnrollmentStatus `gorm:"type:text;not null"`
	StartedAt time.Time        `gorm:"not null"`
	ExpiresAt *time.Time       `gorm:""` // nil means perpetual access
	CreatedAt time.Time        `gorm:"not null"`
	UpdatedAt time.Time        `gorm:"not null"`
}

// TableName sets the database table name.
func (Enrollment) TableName() string { return "enrollments" }

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, enrollment *Enrollment) error
	FindByUserCourse(ctx context.Context, db *gorm.DB, userID, courseID string) (*Enrollment, error)
}

// Service grants course access.
type Service interface {
	Grant(ctx context.Context, userID, courseID string, months int) error
}
