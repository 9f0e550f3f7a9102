package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/testbridge/exam-sync-api/internal/dto"
	"github.com/testbridge/exam-sync-api/internal/models"
	"github.com/testbridge/exam-sync-api/pkg/config"
	appErrors "github.com/testbridge/exam-sync-api/pkg/errors"
)

type statusEnrollmentRepository interface {
	CountByStatus(ctx context.Context, testCenterID string, from, to *time.Time) ([]models.StatusCount, error)
	RecentPackageIDs(ctx context.Context, testCenterID string, limit int) ([]string, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Enrollment, error)
	UpdateStatusBulk(ctx context.Context, ids []string, status models.SyncStatus, at time.Time) (int64, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// StatusService aggregates a center's sync progress and owns the manual,
// audited status override.
type StatusService struct {
	enrollments statusEnrollmentRepository
	audit       auditWriter
	cache       *redis.Client
	metrics     cacheMetrics
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         config.SyncConfig
	now         func() time.Time
}

// NewStatusService constructs a StatusService. The redis client is optional;
// without it every report goes straight to the database.
func NewStatusService(enrollments statusEnrollmentRepository, audit auditWriter, cache *redis.Client, metrics cacheMetrics, validate *validator.Validate, cfg config.SyncConfig, logger *zap.Logger) *StatusService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusService{
		enrollments: enrollments,
		audit:       audit,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Report groups the center's enrollments by sync status within the window and
// surfaces the most recent package ids. Pure read; cache failures degrade to
// the database.
func (s *StatusService) Report(ctx context.Context, testCenterID string, from, to *time.Time) (*dto.StatusReport, error) {
	if testCenterID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "test_center_id is required")
	}

	cacheKey := statusCacheKey(testCenterID, from, to)
	if cached := s.fromCache(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	counts, err := s.enrollments.CountByStatus(ctx, testCenterID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate sync status")
	}
	recent, err := s.enrollments.RecentPackageIDs(ctx, testCenterID, s.cfg.RecentPackagesCap)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recent packages")
	}

	summary := map[models.SyncStatus]int{
		models.SyncStatusRegistered:      0,
		models.SyncStatusDownloaded:      0,
		models.SyncStatusTestTaken:       0,
		models.SyncStatusResultsUploaded: 0,
	}
	for _, c := range counts {
		summary[c.Status] = c.Count
	}
	if recent == nil {
		recent = []string{}
	}

	report := &dto.StatusReport{
		TestCenterID:   testCenterID,
		Period:         dto.StatusReportPeriod{From: from, To: to},
		Summary:        summary,
		RecentPackages: recent,
		GeneratedAt:    s.now(),
	}
	s.toCache(ctx, cacheKey, report)
	return report, nil
}

// SetStatus is the operator escape hatch: it bulk-applies any of the four
// statuses without enforcing the forward-only ordering, and records the
// previous values in the audit trail before writing.
func (s *StatusService) SetStatus(ctx context.Context, req dto.SetStatusRequest, actor *models.JWTClaims, ip, userAgent string) (int64, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "enrollment_ids and status are required")
	}
	if !models.ValidSyncStatus(req.Status) {
		return 0, appErrors.Clone(appErrors.ErrInvalidStatus, fmt.Sprintf("invalid sync status %q", req.Status))
	}

	previous, err := s.enrollments.ListByIDs(ctx, req.EnrollmentIDs)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if actor != nil && actor.Role == models.RoleCenterOperator {
		for _, e := range previous {
			if e.TestCenterID != actor.TestCenterID {
				return 0, appErrors.Clone(appErrors.ErrForbidden, "enrollment outside caller's test center")
			}
		}
	}

	type previousValue struct {
		EnrollmentID string            `json:"enrollment_id"`
		Status       models.SyncStatus `json:"status"`
		PackageID    *string           `json:"package_id,omitempty"`
	}
	old := make([]previousValue, 0, len(previous))
	for _, e := range previous {
		old = append(old, previousValue{EnrollmentID: e.ID, Status: e.SyncStatus, PackageID: e.PackageID})
	}
	oldValues, _ := json.Marshal(old)
	newValues, _ := json.Marshal(map[string]interface{}{"status": req.Status, "enrollment_ids": req.EnrollmentIDs})

	if s.audit != nil {
		var userID *string
		if actor != nil {
			userID = &actor.UserID
		}
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:    userID,
			Action:    models.AuditActionStatusOverride,
			Resource:  "enrollment_sync_status",
			OldValues: oldValues,
			NewValues: newValues,
			IPAddress: ip,
			UserAgent: userAgent,
		}); err != nil {
			s.logger.Warn("failed to write status override audit record", zap.Error(err))
		}
	}

	updated, err := s.enrollments.UpdateStatusBulk(ctx, req.EnrollmentIDs, req.Status, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update sync status")
	}
	s.logger.Info("manual sync status override applied",
		zap.String("status", string(req.Status)),
		zap.Int("requested", len(req.EnrollmentIDs)),
		zap.Int64("updated", updated))
	return updated, nil
}

func statusCacheKey(testCenterID string, from, to *time.Time) string {
	fromPart, toPart := int64(0), int64(0)
	if from != nil {
		fromPart = from.Unix()
	}
	if to != nil {
		toPart = to.Unix()
	}
	return fmt.Sprintf("sync:status:%s:%d:%d", testCenterID, fromPart, toPart)
}

func (s *StatusService) fromCache(ctx context.Context, key string) *dto.StatusReport {
	if s.cache == nil {
		return nil
	}
	start := time.Now()
	raw, err := s.cache.Get(ctx, key).Bytes()
	hit := err == nil
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit, time.Since(start))
	}
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("status cache read failed", zap.Error(err))
		}
		return nil
	}
	var report dto.StatusReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil
	}
	return &report
}

func (s *StatusService) toCache(ctx context.Context, key string, report *dto.StatusReport) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cfg.StatusCacheTTL).Err(); err != nil {
		s.logger.Warn("status cache write failed", zap.Error(err))
	}
}
