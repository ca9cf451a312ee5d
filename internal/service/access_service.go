package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/repository"
)

// ErrResultForbidden indicates a student asked for another student's results.
var ErrResultForbidden = errors.New("results belong to another student")

// EnrollmentAccess decides whether a student may read the results of an enrollment.
type EnrollmentAccess interface {
	AuthorizeStudent(ctx context.Context, userID, enrollmentID uint) error
}

type enrollmentAccess struct {
	results repository.ResultRepository
}

// NewEnrollmentAccess constructs the ownership check used by student-facing routes.
func NewEnrollmentAccess(resultRepo repository.ResultRepository) EnrollmentAccess {
	return &enrollmentAccess{results: resultRepo}
}

func (a *enrollmentAccess) AuthorizeStudent(ctx context.Context, userID, enrollmentID uint) error {
	if userID == 0 {
		return ErrResultForbidden
	}

	enrollment, err := a.results.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEnrollmentNotFound
		}
		return err
	}

	if enrollment.StudentID != userID {
		return ErrResultForbidden
	}
	return nil
}
