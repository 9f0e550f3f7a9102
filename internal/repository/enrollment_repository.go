package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/testbridge/exam-sync-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollment sync state.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, test_id, student_id, test_center_id, access_code, scheduled_at,
        sync_status, package_id, downloaded_at, results_uploaded_at, offline_score, offline_answers,
        completed, access_code_used, last_modified, created_at`

// ListRegistered returns the package candidates: enrollments still in the
// registered state for the given (center, test) pair.
func (r *EnrollmentRepository) ListRegistered(ctx context.Context, testCenterID, testID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments
        WHERE test_center_id = $1 AND test_id = $2 AND sync_status = $3
        ORDER BY created_at`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, testCenterID, testID, models.SyncStatusRegistered); err != nil {
		return nil, fmt.Errorf("list registered enrollments: %w", err)
	}
	return enrollments, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByIDs returns the enrollments matching the given ids.
func (r *EnrollmentRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Enrollment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = ANY($1)`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list enrollments by ids: %w", err)
	}
	return enrollments, nil
}

// MarkDownloaded advances the included enrollments to downloaded in a single
// bulk update, stamping the package id and download time.
func (r *EnrollmentRepository) MarkDownloaded(ctx context.Context, ids []string, packageID string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE enrollments
        SET sync_status = $1, package_id = $2, downloaded_at = $3, last_modified = $3
        WHERE id = ANY($4)`
	res, err := r.db.ExecContext(ctx, query, models.SyncStatusDownloaded, packageID, at, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("mark enrollments downloaded: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark enrollments downloaded: %w", err)
	}
	return updated, nil
}

// SaveOfflineResult folds one reconciled result into its enrollment.
// Re-uploads overwrite the previous score and answers.
func (r *EnrollmentRepository) SaveOfflineResult(ctx context.Context, id string, score *float64, answers types.JSONText, at time.Time) error {
	const query = `UPDATE enrollments
        SET sync_status = $1, completed = TRUE, access_code_used = TRUE,
            results_uploaded_at = $2, offline_score = $3, offline_answers = $4, last_modified = $2
        WHERE id = $5`
	if _, err := r.db.ExecContext(ctx, query, models.SyncStatusResultsUploaded, at, score, answers, id); err != nil {
		return fmt.Errorf("save offline result: %w", err)
	}
	return nil
}

// CountByStatus groups the center's enrollments by sync status within the
// window over last_modified, falling back to created_at for untouched rows.
func (r *EnrollmentRepository) CountByStatus(ctx context.Context, testCenterID string, from, to *time.Time) ([]models.StatusCount, error) {
	query := `SELECT sync_status, COUNT(*) AS count FROM enrollments WHERE test_center_id = $1`
	args := []interface{}{testCenterID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND COALESCE(last_modified, created_at) >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND COALESCE(last_modified, created_at) <= $%d", len(args))
	}
	query += " GROUP BY sync_status"
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count enrollments by status: %w", err)
	}
	return counts, nil
}

// RecentPackageIDs returns distinct package ids for a center ordered by the
// most recent download, capped at limit.
func (r *EnrollmentRepository) RecentPackageIDs(ctx context.Context, testCenterID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT package_id FROM enrollments
        WHERE test_center_id = $1 AND package_id IS NOT NULL
        GROUP BY package_id ORDER BY MAX(downloaded_at) DESC NULLS LAST LIMIT $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, testCenterID, limit); err != nil {
		return nil, fmt.Errorf("list recent packages: %w", err)
	}
	return ids, nil
}

// UpdateStatusBulk is the manual override: it applies the status to every id
// and stamps last_modified, without enforcing the forward-only ordering.
func (r *EnrollmentRepository) UpdateStatusBulk(ctx context.Context, ids []string, status models.SyncStatus, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE enrollments SET sync_status = $1, last_modified = $2 WHERE id = ANY($3)`
	res, err := r.db.ExecContext(ctx, query, status, at, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("bulk update sync status: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk update sync status: %w", err)
	}
	return updated, nil
}
