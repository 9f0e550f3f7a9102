package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/testbridge/exam-sync-api/internal/models"
)

// TestRepository reads published tests and their question sets.
type TestRepository struct {
	db *sqlx.DB
}

// NewTestRepository constructs the repository.
func NewTestRepository(db *sqlx.DB) *TestRepository {
	return &TestRepository{db: db}
}

// FindDetailByID returns a test with its subject populated.
func (r *TestRepository) FindDetailByID(ctx context.Context, id string) (*models.TestDetail, error) {
	const query = `SELECT t.id, t.subject_id, t.title, t.duration_minutes, t.total_marks, t.status, t.scheduled_at, t.created_at,
        s.name AS subject_name, s.code AS subject_code
        FROM tests t
        LEFT JOIN subjects s ON s.id = t.subject_id
        WHERE t.id = $1`
	var detail models.TestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListQuestions returns the test's questions in ordinal order.
func (r *TestRepository) ListQuestions(ctx context.Context, testID string) ([]models.Question, error) {
	const query = `SELECT id, test_id, ordinal, prompt, options, correct_option, marks, media_url
        FROM questions WHERE test_id = $1 ORDER BY ordinal`
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, testID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}
