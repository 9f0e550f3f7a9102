package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/testbridge/exam-sync-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func enrollmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "test_id", "student_id", "test_center_id", "access_code", "scheduled_at",
		"sync_status", "package_id", "downloaded_at", "results_uploaded_at", "offline_score", "offline_answers",
		"completed", "access_code_used", "last_modified", "created_at",
	})
}

func TestEnrollmentRepositoryListRegistered(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := enrollmentRows().
		AddRow("e1", "t1", "s1", "tc1", "AC-1", nil,
			models.SyncStatusRegistered, nil, nil, nil, nil, nil,
			false, false, nil, time.Now())
	mock.ExpectQuery(`SELECT (.+) FROM enrollments\s+WHERE test_center_id = \$1 AND test_id = \$2 AND sync_status = \$3`).
		WithArgs("tc1", "t1", models.SyncStatusRegistered).
		WillReturnRows(rows)

	enrollments, err := repo.ListRegistered(context.Background(), "tc1", "t1")
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, "e1", enrollments[0].ID)
	require.Equal(t, models.SyncStatusRegistered, enrollments[0].SyncStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkDownloaded(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE enrollments\s+SET sync_status = \$1, package_id = \$2, downloaded_at = \$3, last_modified = \$3\s+WHERE id = ANY\(\$4\)`).
		WithArgs(models.SyncStatusDownloaded, "tc1_t1_1", at, pq.Array([]string{"e1", "e2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	updated, err := repo.MarkDownloaded(context.Background(), []string{"e1", "e2"}, "tc1_t1_1", at)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkDownloadedEmpty(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	updated, err := repo.MarkDownloaded(context.Background(), nil, "tc1_t1_1", time.Now())
	require.NoError(t, err)
	require.Zero(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySaveOfflineResult(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	at := time.Date(2026, 3, 15, 17, 0, 0, 0, time.UTC)
	score := 85.0
	answers := []byte(`{"q1":"2"}`)
	mock.ExpectExec(`UPDATE enrollments\s+SET sync_status = \$1, completed = TRUE, access_code_used = TRUE`).
		WithArgs(models.SyncStatusResultsUploaded, at, &score, answers, "e1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveOfflineResult(context.Background(), "e1", &score, answers, at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"sync_status", "count"}).
		AddRow(models.SyncStatusRegistered, 5).
		AddRow(models.SyncStatusDownloaded, 3)
	mock.ExpectQuery(`SELECT sync_status, COUNT\(\*\) AS count FROM enrollments WHERE test_center_id = \$1 GROUP BY sync_status`).
		WithArgs("tc1").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), "tc1", nil, nil)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.Equal(t, models.SyncStatusRegistered, counts[0].Status)
	require.Equal(t, 5, counts[0].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountByStatusWindow(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"sync_status", "count"}).
		AddRow(models.SyncStatusResultsUploaded, 7)
	mock.ExpectQuery(`COALESCE\(last_modified, created_at\) >= \$2 AND COALESCE\(last_modified, created_at\) <= \$3 GROUP BY sync_status`).
		WithArgs("tc1", from, to).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), "tc1", &from, &to)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	require.Equal(t, 7, counts[0].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRecentPackageIDs(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"package_id"}).
		AddRow("tc1_t1_2").
		AddRow("tc1_t1_1")
	mock.ExpectQuery(`GROUP BY package_id ORDER BY MAX\(downloaded_at\) DESC NULLS LAST LIMIT \$2`).
		WithArgs("tc1", 5).
		WillReturnRows(rows)

	ids, err := repo.RecentPackageIDs(context.Background(), "tc1", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"tc1_t1_2", "tc1_t1_1"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatusBulk(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	at := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE enrollments SET sync_status = \$1, last_modified = \$2 WHERE id = ANY\(\$3\)`).
		WithArgs(models.SyncStatusRegistered, at, pq.Array([]string{"e1"})).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.UpdateStatusBulk(context.Background(), []string{"e1"}, models.SyncStatusRegistered, at)
	require.NoError(t, err)
	require.Equal(t, int64(1), updated)
	require.NoError(t, mock.ExpectationsWereMet())
}
