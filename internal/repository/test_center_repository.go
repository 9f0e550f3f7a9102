package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/testbridge/exam-sync-api/internal/models"
)

// TestCenterRepository reads the test-center registry.
type TestCenterRepository struct {
	db *sqlx.DB
}

// NewTestCenterRepository constructs the repository.
func NewTestCenterRepository(db *sqlx.DB) *TestCenterRepository {
	return &TestCenterRepository{db: db}
}

// FindByID returns a test center by ID.
func (r *TestCenterRepository) FindByID(ctx context.Context, id string) (*models.TestCenter, error) {
	const query = `SELECT id, name, code, active, created_at FROM test_centers WHERE id = $1`
	var center models.TestCenter
	if err := r.db.GetContext(ctx, &center, query, id); err != nil {
		return nil, err
	}
	return &center, nil
}
