package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/testbridge/exam-sync-api/internal/dto"
	"github.com/testbridge/exam-sync-api/internal/models"
	appErrors "github.com/testbridge/exam-sync-api/pkg/errors"
)

type savedResult struct {
	score   *float64
	answers types.JSONText
}

type mockReconcileEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	saved       map[string]savedResult
	saveErr     map[string]error
}

func (m *mockReconcileEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReconcileEnrollmentRepo) SaveOfflineResult(ctx context.Context, id string, score *float64, answers types.JSONText, at time.Time) error {
	if err, ok := m.saveErr[id]; ok {
		return err
	}
	if m.saved == nil {
		m.saved = make(map[string]savedResult)
	}
	m.saved[id] = savedResult{score: score, answers: answers}
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func validUploadResult(enrollmentID string) dto.UploadResult {
	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return dto.UploadResult{
		EnrollmentID: enrollmentID,
		StudentID:    "s1",
		TestID:       "t1",
		Answers:      map[string]string{"q1": "2"},
		StartedAt:    timePtr(started),
		EndedAt:      timePtr(started.Add(time.Hour)),
		Score:        floatPtr(85),
	}
}

func newReconcileFixture() (*ReconcileService, *mockReconcileEnrollmentRepo, *mockSyncMetrics) {
	pkgID := "tc1_t1_1"
	repo := &mockReconcileEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", TestID: "t1", TestCenterID: "tc1", SyncStatus: models.SyncStatusDownloaded, PackageID: &pkgID},
		"e2": {ID: "e2", StudentID: "s2", TestID: "t1", TestCenterID: "tc1", SyncStatus: models.SyncStatusDownloaded, PackageID: &pkgID},
	}}
	metrics := &mockSyncMetrics{}
	svc := NewReconcileService(repo, metrics, validator.New(), zap.NewNop())
	return svc, repo, metrics
}

func TestReconcileServiceAppliesBatch(t *testing.T) {
	svc, repo, metrics := newReconcileFixture()

	req := dto.UploadResultsRequest{
		PackageID:    "tc1_t1_1",
		TestCenterID: "tc1",
		Results:      []dto.UploadResult{validUploadResult("e1"), validUploadResult("e2")},
	}
	summary, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 0, summary.Failures)
	require.Len(t, summary.Details, 2)
	assert.Equal(t, "e1", summary.Details[0].EnrollmentID)
	assert.Equal(t, "e2", summary.Details[1].EnrollmentID)
	assert.Equal(t, 85.0, *repo.saved["e1"].score)
	assert.JSONEq(t, `{"q1":"2"}`, string(repo.saved["e1"].answers))
	assert.Equal(t, []bool{true, true}, metrics.outcomes)
}

func TestReconcileServiceContinuesPastFailures(t *testing.T) {
	svc, repo, metrics := newReconcileFixture()

	bad := validUploadResult("unknown")
	req := dto.UploadResultsRequest{
		PackageID:    "tc1_t1_1",
		TestCenterID: "tc1",
		Results:      []dto.UploadResult{validUploadResult("e1"), bad, validUploadResult("e2")},
	}
	summary, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 1, summary.Failures)
	require.Len(t, summary.Details, 3)
	assert.True(t, summary.Details[0].Success)
	assert.False(t, summary.Details[1].Success)
	assert.Equal(t, "Invalid enrollment or package mismatch", summary.Details[1].Error)
	assert.True(t, summary.Details[2].Success)
	assert.Len(t, repo.saved, 2)
	assert.Equal(t, []bool{true, false, true}, metrics.outcomes)
}

func TestReconcileServicePackageMismatch(t *testing.T) {
	svc, repo, _ := newReconcileFixture()

	req := dto.UploadResultsRequest{
		PackageID:    "tc1_t1_999",
		TestCenterID: "tc1",
		Results:      []dto.UploadResult{validUploadResult("e1")},
	}
	summary, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, "Invalid enrollment or package mismatch", summary.Details[0].Error)
	assert.Empty(t, repo.saved)
}

func TestReconcileServiceCenterMismatch(t *testing.T) {
	svc, repo, _ := newReconcileFixture()

	req := dto.UploadResultsRequest{
		PackageID:    "tc1_t1_1",
		TestCenterID: "tc2",
		Results:      []dto.UploadResult{validUploadResult("e1")},
	}
	summary, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Invalid enrollment or package mismatch", summary.Details[0].Error)
	assert.Empty(t, repo.saved)
}

func TestReconcileServiceMissingFieldOrder(t *testing.T) {
	svc, _, _ := newReconcileFixture()

	cases := []struct {
		name   string
		mutate func(*dto.UploadResult)
		want   string
	}{
		{"enrollment id", func(r *dto.UploadResult) { r.EnrollmentID = "" }, "enrollment_id missing"},
		{"student id", func(r *dto.UploadResult) { r.StudentID = "" }, "student_id missing"},
		{"test id", func(r *dto.UploadResult) { r.TestID = "" }, "test_id missing"},
		{"answers", func(r *dto.UploadResult) { r.Answers = nil }, "answers missing"},
		{"started at", func(r *dto.UploadResult) { r.StartedAt = nil }, "started_at missing"},
		{"ended at", func(r *dto.UploadResult) { r.EndedAt = nil }, "ended_at missing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := validUploadResult("e1")
			tc.mutate(&result)
			req := dto.UploadResultsRequest{PackageID: "tc1_t1_1", TestCenterID: "tc1", Results: []dto.UploadResult{result}}
			summary, err := svc.Reconcile(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, summary.Details[0].Error)
		})
	}
}

func TestReconcileServiceFirstMissingFieldReported(t *testing.T) {
	svc, _, _ := newReconcileFixture()

	result := validUploadResult("e1")
	result.StudentID = ""
	result.Answers = nil
	req := dto.UploadResultsRequest{PackageID: "tc1_t1_1", TestCenterID: "tc1", Results: []dto.UploadResult{result}}
	summary, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "student_id missing", summary.Details[0].Error)
}

func TestReconcileServiceReuploadOverwrites(t *testing.T) {
	svc, repo, _ := newReconcileFixture()

	first := validUploadResult("e1")
	second := validUploadResult("e1")
	second.Score = floatPtr(92)
	second.Answers = map[string]string{"q1": "1"}

	for _, result := range []dto.UploadResult{first, second} {
		req := dto.UploadResultsRequest{PackageID: "tc1_t1_1", TestCenterID: "tc1", Results: []dto.UploadResult{result}}
		summary, err := svc.Reconcile(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, 1, summary.Success)
	}

	assert.Equal(t, 92.0, *repo.saved["e1"].score)
	assert.JSONEq(t, `{"q1":"1"}`, string(repo.saved["e1"].answers))
}

func TestReconcileServiceSaveErrorIsItemFailure(t *testing.T) {
	svc, repo, _ := newReconcileFixture()
	repo.saveErr = map[string]error{"e1": fmt.Errorf("connection reset")}

	req := dto.UploadResultsRequest{
		PackageID:    "tc1_t1_1",
		TestCenterID: "tc1",
		Results:      []dto.UploadResult{validUploadResult("e1"), validUploadResult("e2")},
	}
	summary, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, 1, summary.Success)
	assert.Contains(t, summary.Details[0].Error, "connection reset")
}

func TestReconcileServiceValidation(t *testing.T) {
	svc, _, _ := newReconcileFixture()

	_, err := svc.Reconcile(context.Background(), dto.UploadResultsRequest{TestCenterID: "tc1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
