// Package domain contains the sellable-plan model referenced by subscription
// purchases.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Plan is one sellable subscription tier. Checkout metadata references plans
// either by id or by slug, so the slug is unique and lookup-normalized.
type Plan struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	Slug               string       `gorm:"type:text;not null;uniqueIndex"`
	Name               string       `gorm:"type:text;not null"`
	CourseAccessMonths int          `gorm:"not null;default:0"`
	CreatedAt          time.Time    `gorm:"not null"`
	UpdatedAt          time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

type Repository interface {
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Plan, error)
	Upsert(ctx context.Context, db *gorm.DB, plan *Plan) error
}
