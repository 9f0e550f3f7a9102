package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// SyncStatus represents an enrollment's position in the offline lifecycle.
type SyncStatus string

// Sync statuses, in lifecycle order.
const (
	SyncStatusRegistered      SyncStatus = "registered"
	SyncStatusDownloaded      SyncStatus = "downloaded"
	SyncStatusTestTaken       SyncStatus = "test_taken"
	SyncStatusResultsUploaded SyncStatus = "results_uploaded"
)

// ValidSyncStatus reports whether s is one of the enumerated statuses.
func ValidSyncStatus(s SyncStatus) bool {
	switch s {
	case SyncStatusRegistered, SyncStatusDownloaded, SyncStatusTestTaken, SyncStatusResultsUploaded:
		return true
	}
	return false
}

// automaticTransitions lists the forward edges this service takes on its own.
// The manual override endpoint deliberately bypasses this table.
var automaticTransitions = map[SyncStatus][]SyncStatus{
	SyncStatusRegistered:      {SyncStatusDownloaded},
	SyncStatusDownloaded:      {SyncStatusResultsUploaded},
	SyncStatusTestTaken:       {SyncStatusResultsUploaded},
	SyncStatusResultsUploaded: {SyncStatusResultsUploaded},
}

// CanTransition reports whether the automatic paths allow from -> to.
func CanTransition(from, to SyncStatus) bool {
	for _, next := range automaticTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Enrollment binds one student to one test at one test center and carries the
// offline sync progress. This service only ever mutates the sync fields.
type Enrollment struct {
	ID           string     `db:"id" json:"id"`
	TestID       string     `db:"test_id" json:"test_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	TestCenterID string     `db:"test_center_id" json:"test_center_id"`
	AccessCode   string     `db:"access_code" json:"access_code"`
	ScheduledAt  *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`

	SyncStatus        SyncStatus      `db:"sync_status" json:"sync_status"`
	PackageID         *string         `db:"package_id" json:"package_id,omitempty"`
	DownloadedAt      *time.Time      `db:"downloaded_at" json:"downloaded_at,omitempty"`
	ResultsUploadedAt *time.Time      `db:"results_uploaded_at" json:"results_uploaded_at,omitempty"`
	OfflineScore      *float64        `db:"offline_score" json:"offline_score,omitempty"`
	OfflineAnswers    types.NullJSONText `db:"offline_answers" json:"offline_answers,omitempty"`

	Completed      bool       `db:"completed" json:"completed"`
	AccessCodeUsed bool       `db:"access_code_used" json:"access_code_used"`
	LastModified   *time.Time `db:"last_modified" json:"last_modified,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// StatusCount is one grouped-count row of the status report.
type StatusCount struct {
	Status SyncStatus `db:"sync_status" json:"status"`
	Count  int        `db:"count" json:"count"`
}
