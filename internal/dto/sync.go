package dto

import (
	"time"

	"github.com/testbridge/exam-sync-api/internal/models"
)

// CreatePackageRequest asks for a fresh offline package for one (center, test) pair.
type CreatePackageRequest struct {
	TestCenterID string `json:"test_center_id" validate:"required"`
	TestID       string `json:"test_id" validate:"required"`
}

// CreatePackageResponse wraps the built package with its id and a message.
type CreatePackageResponse struct {
	PackageID string          `json:"package_id"`
	Message   string          `json:"message"`
	Data      *models.Package `json:"data"`
}

// ExportPackageRequest renders an already-built package into artifacts.
type ExportPackageRequest struct {
	PackageData *models.Package `json:"package_data" validate:"required"`
	Format      string          `json:"format" validate:"required"`
	Archive     bool            `json:"archive"`
}

// ExportPackageResponse maps filenames to rendered content. Binary artifacts
// (pdf) are base64 encoded; Instructions tells the operator how to load each
// artifact at the center.
type ExportPackageResponse struct {
	Format       string            `json:"format"`
	Files        map[string]string `json:"files"`
	Instructions string            `json:"instructions"`
	Downloads    map[string]string `json:"downloads,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
}

// UploadResult is one offline-collected result, one per student.
type UploadResult struct {
	EnrollmentID string            `json:"enrollment_id"`
	StudentID    string            `json:"student_id"`
	TestID       string            `json:"test_id"`
	Answers      map[string]string `json:"answers"`
	StartedAt    *time.Time        `json:"started_at"`
	EndedAt      *time.Time        `json:"ended_at"`
	Score        *float64          `json:"score"`
}

// UploadResultsRequest carries a batch of offline results for reconciliation.
type UploadResultsRequest struct {
	PackageID    string         `json:"package_id" validate:"required"`
	TestCenterID string         `json:"test_center_id" validate:"required"`
	Results      []UploadResult `json:"results" validate:"required"`
}

// ReconcileDetail reports the outcome for a single uploaded result, in the
// order the results arrived.
type ReconcileDetail struct {
	EnrollmentID string `json:"enrollment_id,omitempty"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// ReconcileSummary aggregates the per-item outcomes of one upload batch.
type ReconcileSummary struct {
	PackageID string            `json:"package_id"`
	Total     int               `json:"total"`
	Success   int               `json:"success"`
	Failures  int               `json:"failures"`
	Details   []ReconcileDetail `json:"details"`
}

// StatusReportPeriod echoes the requested aggregation window.
type StatusReportPeriod struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// StatusReport summarises a center's sync progress.
type StatusReport struct {
	TestCenterID   string                    `json:"test_center_id"`
	Period         StatusReportPeriod        `json:"period"`
	Summary        map[models.SyncStatus]int `json:"summary"`
	RecentPackages []string                  `json:"recent_packages"`
	GeneratedAt    time.Time                 `json:"generated_at"`
}

// SetStatusRequest is the manual, audited override of enrollment sync status.
type SetStatusRequest struct {
	EnrollmentIDs []string          `json:"enrollment_ids" validate:"required,min=1"`
	Status        models.SyncStatus `json:"status" validate:"required"`
}

// SetStatusResponse reports how many rows the override touched.
type SetStatusResponse struct {
	Updated int `json:"updated"`
}
