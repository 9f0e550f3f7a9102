package models

import "time"

// PackageEnrollment is the minimal enrollment projection shipped offline.
type PackageEnrollment struct {
	EnrollmentID string     `json:"enrollment_id"`
	StudentID    string     `json:"student_id"`
	TestID       string     `json:"test_id"`
	AccessCode   string     `json:"access_code"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
}

// PackageUser is the student projection the offline client needs for login
// screens and result attribution.
type PackageUser struct {
	ID             string  `json:"id"`
	FullName       string  `json:"full_name"`
	Email          string  `json:"email"`
	RegistrationNo string  `json:"registration_no"`
	AvatarURL      *string `json:"avatar_url,omitempty"`
}

// PackageTest embeds the test with its subject and full question set.
type PackageTest struct {
	TestDetail
	Questions []Question `json:"questions"`
}

// PackageMetadata carries counts and offline-database setup hints.
type PackageMetadata struct {
	TotalEnrollments   int       `json:"total_enrollments"`
	TotalUsers         int       `json:"total_users"`
	TotalQuestions     int       `json:"total_questions"`
	SkippedEnrollments int       `json:"skipped_enrollments"`
	GeneratedAt        time.Time `json:"generated_at"`
	SchemaVersion      int       `json:"schema_version"`
}

// Package is the point-in-time bundle handed to a test center. It is never
// persisted as its own row; the generated id is stamped onto each included
// enrollment and that stamp is the only server-side trace.
type Package struct {
	PackageID    string              `json:"package_id"`
	TestCenterID string              `json:"test_center_id"`
	Enrollments  []PackageEnrollment `json:"enrollments"`
	Users        []PackageUser       `json:"users"`
	Test         PackageTest         `json:"test"`
	Metadata     PackageMetadata     `json:"metadata"`
}

// PackageSchemaVersion identifies the bundle layout offline clients parse.
const PackageSchemaVersion = 1
