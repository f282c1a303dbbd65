package repository

import (
	"context"

	"github.com/buildacademy/paycore/internal/enrollment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, enrollment *domain.Enrollment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO enrollments (
			id, user_id, course_id, status, started_at, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, course_id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		enrollment.ID,
		enrollment.UserID,
		enrollment.CourseID,
		enrollment.Status,
		enrollment.StartedAt,
		enrollment.ExpiresAt,
		enrollment.CreatedAt,
		enrollment.UpdatedAt,
	).Error
}

func (r *repo) FindByUserCourse(ctx context.Context, db *gorm.DB, userID, courseID string) (*domain.Enrollment, error) {
	var item domain.Enrollment
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, course_id, status, started_at, expires_at, created_at, updated_at
		 FROM enrollments
		 WHERE user_id = ? AND course_id = ?
		 LIMIT 1`,
		userID,
		courseID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
