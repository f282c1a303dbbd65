package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/buildacademy/paycore/internal/clock"
	enrollmentdomain "github.com/buildacademy/paycore/internal/enrollment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  enrollmentdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  enrollmentdomain.Repository
}

func NewService(p Params) enrollmentdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("enrollment.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Grant upserts access for (user, course). A positive months value bounds the
// access window from now; zero or negative means perpetual.
func (s *Service) Grant(ctx context.Context, userID, courseID string, months int) error {
	if userID == "" || courseID == "" {
		return errors.New("enrollment requires user and course")
	}

	now := s.clock.Now()
	enrollment := &enrollmentdomain.Enrollment{
		ID:        s.genID.Generate(),
		UserID:    userID,
		CourseID:  courseID,
		Status:    enrollmentdomain.EnrollmentStatusActive,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if months > 0 {
		expires := now.AddDate(0, months, 0)
		enrollment.ExpiresAt = &expires
	}

	if err := s.repo.Upsert(ctx, s.db, enrollment); err != nil {
		s.log.Error("enrollment upsert failed",
			zap.String("user_id", userID),
			zap.String("course_id", courseID),
			zap.Error(err),
		)
		return err
	}

	s.log.Info("course access granted",
		zap.String("user_id", userID),
		zap.String("course_id", courseID),
		zap.Int("months", months),
	)
	return nil
}
