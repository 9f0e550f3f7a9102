package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/testbridge/exam-sync-api/internal/dto"
	"github.com/testbridge/exam-sync-api/internal/models"
	appErrors "github.com/testbridge/exam-sync-api/pkg/errors"
)

const errPackageMismatch = "Invalid enrollment or package mismatch"

type reconcileEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	SaveOfflineResult(ctx context.Context, id string, score *float64, answers types.JSONText, at time.Time) error
}

// ReconcileService matches offline-collected results back to their
// originating enrollments and package.
type ReconcileService struct {
	enrollments reconcileEnrollmentRepository
	metrics     syncMetrics
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewReconcileService constructs a ReconcileService.
func NewReconcileService(enrollments reconcileEnrollmentRepository, metrics syncMetrics, validate *validator.Validate, logger *zap.Logger) *ReconcileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{
		enrollments: enrollments,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile applies a batch of uploaded results. Each entry is processed
// independently: one malformed or mismatched result becomes a failure detail
// and never aborts the batch. Details keep the input order so offline clients
// can correlate. Re-uploading an enrollment overwrites the prior score and
// answers (last write wins).
func (s *ReconcileService) Reconcile(ctx context.Context, req dto.UploadResultsRequest) (*dto.ReconcileSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "package_id, test_center_id and results are required")
	}

	summary := &dto.ReconcileSummary{
		PackageID: req.PackageID,
		Total:     len(req.Results),
		Details:   make([]dto.ReconcileDetail, 0, len(req.Results)),
	}

	for _, result := range req.Results {
		detail := s.applyOne(ctx, req.PackageID, req.TestCenterID, result)
		if detail.Success {
			summary.Success++
		} else {
			summary.Failures++
		}
		if s.metrics != nil {
			s.metrics.RecordReconcileOutcome(detail.Success)
		}
		summary.Details = append(summary.Details, detail)
	}

	s.logger.Info("results reconciled",
		zap.String("package_id", req.PackageID),
		zap.String("test_center_id", req.TestCenterID),
		zap.Int("total", summary.Total),
		zap.Int("success", summary.Success),
		zap.Int("failures", summary.Failures))

	return summary, nil
}

func (s *ReconcileService) applyOne(ctx context.Context, packageID, testCenterID string, result dto.UploadResult) dto.ReconcileDetail {
	if missing := missingResultField(result); missing != "" {
		return dto.ReconcileDetail{EnrollmentID: result.EnrollmentID, Success: false, Error: missing + " missing"}
	}

	enrollment, err := s.enrollments.FindByID(ctx, result.EnrollmentID)
	if err != nil {
		return dto.ReconcileDetail{EnrollmentID: result.EnrollmentID, Success: false, Error: errPackageMismatch}
	}
	if enrollment.PackageID == nil || *enrollment.PackageID != packageID || enrollment.TestCenterID != testCenterID {
		return dto.ReconcileDetail{EnrollmentID: result.EnrollmentID, Success: false, Error: errPackageMismatch}
	}

	answers, err := json.Marshal(result.Answers)
	if err != nil {
		return dto.ReconcileDetail{EnrollmentID: result.EnrollmentID, Success: false, Error: err.Error()}
	}
	if err := s.enrollments.SaveOfflineResult(ctx, enrollment.ID, result.Score, types.JSONText(answers), s.now()); err != nil {
		s.logger.Error("failed to save offline result",
			zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		return dto.ReconcileDetail{EnrollmentID: result.EnrollmentID, Success: false, Error: err.Error()}
	}

	return dto.ReconcileDetail{EnrollmentID: result.EnrollmentID, Success: true}
}

// missingResultField checks the structural requirements in a fixed order and
// returns the name of the first missing field.
func missingResultField(result dto.UploadResult) string {
	switch {
	case result.EnrollmentID == "":
		return "enrollment_id"
	case result.StudentID == "":
		return "student_id"
	case result.TestID == "":
		return "test_id"
	case result.Answers == nil:
		return "answers"
	case result.StartedAt == nil:
		return "started_at"
	case result.EndedAt == nil:
		return "ended_at"
	}
	return ""
}
