package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/testbridge/exam-sync-api/internal/dto"
	"github.com/testbridge/exam-sync-api/internal/models"
	"github.com/testbridge/exam-sync-api/pkg/config"
)

// memEnrollmentStore backs the full download -> upload -> status flow with a
// single in-memory table so state changes made by one service are visible to
// the next.
type memEnrollmentStore struct {
	rows  map[string]*models.Enrollment
	order []string
}

func newMemEnrollmentStore(enrollments ...models.Enrollment) *memEnrollmentStore {
	s := &memEnrollmentStore{rows: make(map[string]*models.Enrollment)}
	for i := range enrollments {
		e := enrollments[i]
		s.rows[e.ID] = &e
		s.order = append(s.order, e.ID)
	}
	return s
}

func (s *memEnrollmentStore) ListRegistered(ctx context.Context, testCenterID, testID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, id := range s.order {
		e := s.rows[id]
		if e.SyncStatus == models.SyncStatusRegistered && e.TestCenterID == testCenterID && e.TestID == testID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memEnrollmentStore) MarkDownloaded(ctx context.Context, ids []string, packageID string, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		e, ok := s.rows[id]
		if !ok {
			continue
		}
		pkg, ts := packageID, at
		e.SyncStatus = models.SyncStatusDownloaded
		e.PackageID = &pkg
		e.DownloadedAt = &ts
		e.LastModified = &ts
		n++
	}
	return n, nil
}

func (s *memEnrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (s *memEnrollmentStore) SaveOfflineResult(ctx context.Context, id string, score *float64, answers types.JSONText, at time.Time) error {
	e, ok := s.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	ts := at
	e.SyncStatus = models.SyncStatusResultsUploaded
	e.OfflineScore = score
	e.OfflineAnswers = types.NullJSONText{JSONText: answers, Valid: true}
	e.ResultsUploadedAt = &ts
	e.LastModified = &ts
	return nil
}

func (s *memEnrollmentStore) CountByStatus(ctx context.Context, testCenterID string, from, to *time.Time) ([]models.StatusCount, error) {
	counts := make(map[models.SyncStatus]int)
	for _, e := range s.rows {
		if e.TestCenterID != testCenterID {
			continue
		}
		modified := e.CreatedAt
		if e.LastModified != nil {
			modified = *e.LastModified
		}
		if from != nil && modified.Before(*from) {
			continue
		}
		if to != nil && modified.After(*to) {
			continue
		}
		counts[e.SyncStatus]++
	}
	out := make([]models.StatusCount, 0, len(counts))
	for status, count := range counts {
		out = append(out, models.StatusCount{Status: status, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (s *memEnrollmentStore) RecentPackageIDs(ctx context.Context, testCenterID string, limit int) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, id := range s.order {
		e := s.rows[id]
		if e.TestCenterID != testCenterID || e.PackageID == nil || seen[*e.PackageID] {
			continue
		}
		seen[*e.PackageID] = true
		out = append(out, *e.PackageID)
	}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memEnrollmentStore) ListByIDs(ctx context.Context, ids []string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, id := range ids {
		if e, ok := s.rows[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memEnrollmentStore) UpdateStatusBulk(ctx context.Context, ids []string, status models.SyncStatus, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		e, ok := s.rows[id]
		if !ok {
			continue
		}
		ts := at
		e.SyncStatus = status
		e.LastModified = &ts
		n++
	}
	return n, nil
}

// Walks one center through a full offline cycle: package build, a partially
// bad upload, the corrected re-upload, then the status report.
func TestSyncFlowDownloadUploadReport(t *testing.T) {
	ctx := context.Background()
	store := newMemEnrollmentStore(
		models.Enrollment{ID: "e1", StudentID: "s1", TestID: "t1", TestCenterID: "tc1", AccessCode: "AC-1", SyncStatus: models.SyncStatusRegistered, CreatedAt: time.Now().UTC()},
		models.Enrollment{ID: "e2", StudentID: "s2", TestID: "t1", TestCenterID: "tc1", AccessCode: "AC-2", SyncStatus: models.SyncStatusRegistered, CreatedAt: time.Now().UTC()},
	)
	students := &mockPackageStudentReader{students: map[string]models.Student{
		"s1": {ID: "s1", FullName: "Ade Putra", Email: "ade@example.com", RegistrationNo: "R-001"},
		"s2": {ID: "s2", FullName: "Budi Santoso", Email: "budi@example.com", RegistrationNo: "R-002"},
	}}
	tests := &mockPackageTestReader{
		detail: &models.TestDetail{Test: models.Test{ID: "t1", SubjectID: "sub1", Title: "Math Final", DurationMinutes: 90, TotalMarks: 100}, SubjectName: "Mathematics"},
	}
	centers := &mockCenterReader{centers: map[string]models.TestCenter{"tc1": {ID: "tc1", Name: "Center One", Active: true}}}
	metrics := &mockSyncMetrics{}
	validate := validator.New()

	packages := NewPackageService(store, students, tests, centers, metrics, validate, zap.NewNop())
	reconciler := NewReconcileService(store, metrics, validate, zap.NewNop())
	statuses := NewStatusService(store, &mockAuditWriter{}, nil, nil, validate, config.SyncConfig{RecentPackagesCap: 10}, zap.NewNop())

	pkg, err := packages.CreatePackage(ctx, dto.CreatePackageRequest{TestCenterID: "tc1", TestID: "t1"})
	require.NoError(t, err)
	require.Len(t, pkg.Enrollments, 2)
	for _, id := range []string{"e1", "e2"} {
		e := store.rows[id]
		require.NotNil(t, e.PackageID)
		assert.Equal(t, pkg.PackageID, *e.PackageID)
		assert.Equal(t, models.SyncStatusDownloaded, e.SyncStatus)
	}

	started := time.Now().UTC().Add(-time.Hour)
	ended := started.Add(90 * time.Minute)
	score := 85.0
	summary, err := reconciler.Reconcile(ctx, dto.UploadResultsRequest{
		PackageID:    pkg.PackageID,
		TestCenterID: "tc1",
		Results: []dto.UploadResult{
			{EnrollmentID: "e1", StudentID: "s1", TestID: "t1", Answers: map[string]string{"q1": "2"}, StartedAt: &started, EndedAt: &ended, Score: &score},
			{EnrollmentID: "e2", StudentID: "s2", TestID: "t1", StartedAt: &started, EndedAt: &ended},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, "answers missing", summary.Details[1].Error)
	assert.Equal(t, models.SyncStatusDownloaded, store.rows["e2"].SyncStatus)

	// The center fixes the malformed entry and uploads it again.
	summary, err = reconciler.Reconcile(ctx, dto.UploadResultsRequest{
		PackageID:    pkg.PackageID,
		TestCenterID: "tc1",
		Results: []dto.UploadResult{
			{EnrollmentID: "e2", StudentID: "s2", TestID: "t1", Answers: map[string]string{"q1": "4"}, StartedAt: &started, EndedAt: &ended},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Success)

	report, err := statuses.Report(ctx, "tc1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary[models.SyncStatusResultsUploaded])
	assert.Equal(t, 0, report.Summary[models.SyncStatusRegistered])
	assert.Equal(t, 0, report.Summary[models.SyncStatusDownloaded])
	assert.Equal(t, []string{pkg.PackageID}, report.RecentPackages)
}
