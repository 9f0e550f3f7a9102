package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Test is the published exam document a package snapshots. Authoring and its
// state machine live in the test-management system; this service reads only.
type Test struct {
	ID              string     `db:"id" json:"id"`
	SubjectID       string     `db:"subject_id" json:"subject_id"`
	Title           string     `db:"title" json:"title"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	TotalMarks      int        `db:"total_marks" json:"total_marks"`
	Status          string     `db:"status" json:"status"`
	ScheduledAt     *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// TestDetail enriches Test with its subject.
type TestDetail struct {
	Test
	SubjectName string `db:"subject_name" json:"subject_name"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
}

// Question is one item of a test. Options are stored as a jsonb array; media
// travels as URLs, never bytes.
type Question struct {
	ID            string         `db:"id" json:"id"`
	TestID        string         `db:"test_id" json:"test_id"`
	Ordinal       int            `db:"ordinal" json:"ordinal"`
	Prompt        string         `db:"prompt" json:"prompt"`
	Options       types.JSONText `db:"options" json:"options"`
	CorrectOption string         `db:"correct_option" json:"correct_option"`
	Marks         int            `db:"marks" json:"marks"`
	MediaURL      *string        `db:"media_url" json:"media_url,omitempty"`
}
