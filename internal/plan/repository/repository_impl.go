package repository

import (
	"context"

	"github.com/buildacademy/paycore/internal/plan/domain"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// FindBySlug normalizes the requested slug before lookup so checkout metadata
// with stray casing or spacing still resolves.
func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, rawSlug string) (*domain.Plan, error) {
	var item domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, slug, name, course_access_months, created_at, updated_at
		 FROM plans
		 WHERE slug = ?
		 LIMIT 1`,
		slug.Make(rawSlug),
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	plan.Slug = slug.Make(plan.Slug)
	return db.WithContext(ctx).Exec(
		`INSERT INTO plans (id, slug, name, course_access_months, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			course_access_months = excluded.course_access_months,
			updated_at = excluded.updated_at`,
		plan.ID,
		plan.Slug,
		plan.Name,
		plan.CourseAccessMonths,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}
