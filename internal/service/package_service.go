package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/testbridge/exam-sync-api/internal/dto"
	"github.com/testbridge/exam-sync-api/internal/models"
	appErrors "github.com/testbridge/exam-sync-api/pkg/errors"
)

type packageEnrollmentRepository interface {
	ListRegistered(ctx context.Context, testCenterID, testID string) ([]models.Enrollment, error)
	MarkDownloaded(ctx context.Context, ids []string, packageID string, at time.Time) (int64, error)
}

type packageStudentReader interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Student, error)
}

type packageTestReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.TestDetail, error)
	ListQuestions(ctx context.Context, testID string) ([]models.Question, error)
}

type testCenterReader interface {
	FindByID(ctx context.Context, id string) (*models.TestCenter, error)
}

type syncMetrics interface {
	RecordPackageBuilt(enrollments int)
	RecordReconcileOutcome(success bool)
}

// PackageService assembles self-contained offline packages and advances the
// included enrollments to downloaded.
type PackageService struct {
	enrollments packageEnrollmentRepository
	students    packageStudentReader
	tests       packageTestReader
	centers     testCenterReader
	metrics     syncMetrics
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewPackageService constructs a PackageService.
func NewPackageService(enrollments packageEnrollmentRepository, students packageStudentReader, tests packageTestReader, centers testCenterReader, metrics syncMetrics, validate *validator.Validate, logger *zap.Logger) *PackageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PackageService{
		enrollments: enrollments,
		students:    students,
		tests:       tests,
		centers:     centers,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreatePackage builds a package for the (center, test) pair. Enrollments
// whose student reference cannot be resolved are skipped, not fatal. Zero
// remaining candidates is a not-found outcome, not an internal error. The
// call is intentionally not idempotent: included rows advance to downloaded,
// so an immediate second call finds nothing.
//
// Two concurrent calls for the same pair can both read the same registered
// set before either writes; the later bulk update wins on package_id and the
// earlier package becomes orphaned. That hazard is inherited from the source
// design and surfaces at upload time through the package integrity check.
func (s *PackageService) CreatePackage(ctx context.Context, req dto.CreatePackageRequest) (*models.Package, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "test_center_id and test_id are required")
	}

	center, err := s.centers.FindByID(ctx, req.TestCenterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "test center not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load test center")
	}

	test, err := s.tests.FindDetailByID(ctx, req.TestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "test not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load test")
	}

	candidates, err := s.enrollments.ListRegistered(ctx, center.ID, test.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	studentIDs := make([]string, 0, len(candidates))
	for _, e := range candidates {
		studentIDs = append(studentIDs, e.StudentID)
	}
	students, err := s.students.FindByIDs(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}

	var (
		included []models.PackageEnrollment
		ids      []string
		users    []models.PackageUser
		seen     = make(map[string]bool)
		skipped  int
	)
	for _, e := range candidates {
		student, ok := students[e.StudentID]
		if !ok {
			skipped++
			s.logger.Warn("skipping enrollment with dangling student reference",
				zap.String("enrollment_id", e.ID), zap.String("student_id", e.StudentID))
			continue
		}
		included = append(included, models.PackageEnrollment{
			EnrollmentID: e.ID,
			StudentID:    e.StudentID,
			TestID:       e.TestID,
			AccessCode:   e.AccessCode,
			ScheduledAt:  e.ScheduledAt,
		})
		ids = append(ids, e.ID)
		if !seen[student.ID] {
			seen[student.ID] = true
			users = append(users, models.PackageUser{
				ID:             student.ID,
				FullName:       student.FullName,
				Email:          student.Email,
				RegistrationNo: student.RegistrationNo,
				AvatarURL:      student.AvatarURL,
			})
		}
	}

	if len(included) == 0 {
		reason := fmt.Sprintf("no registered enrollments for test center %s and test %s", center.ID, test.ID)
		if skipped > 0 {
			reason = fmt.Sprintf("%s (%d skipped for unresolvable references)", reason, skipped)
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, reason)
	}

	questions, err := s.tests.ListQuestions(ctx, test.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}

	now := s.now()
	pkg := &models.Package{
		PackageID:    fmt.Sprintf("%s_%s_%d", center.ID, test.ID, now.UnixMilli()),
		TestCenterID: center.ID,
		Enrollments:  included,
		Users:        users,
		Test:         models.PackageTest{TestDetail: *test, Questions: questions},
		Metadata: models.PackageMetadata{
			TotalEnrollments:   len(included),
			TotalUsers:         len(users),
			TotalQuestions:     len(questions),
			SkippedEnrollments: skipped,
			GeneratedAt:        now,
			SchemaVersion:      models.PackageSchemaVersion,
		},
	}

	updated, err := s.enrollments.MarkDownloaded(ctx, ids, pkg.PackageID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark enrollments downloaded")
	}
	if updated != int64(len(ids)) {
		s.logger.Warn("bulk download update touched unexpected row count",
			zap.String("package_id", pkg.PackageID), zap.Int64("updated", updated), zap.Int("expected", len(ids)))
	}

	if s.metrics != nil {
		s.metrics.RecordPackageBuilt(len(included))
	}
	s.logger.Info("offline package created",
		zap.String("package_id", pkg.PackageID),
		zap.String("test_center_id", center.ID),
		zap.Int("enrollments", len(included)),
		zap.Int("skipped", skipped))

	return pkg, nil
}
