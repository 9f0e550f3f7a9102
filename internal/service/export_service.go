package service

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/testbridge/exam-sync-api/internal/dto"
	"github.com/testbridge/exam-sync-api/internal/models"
	appErrors "github.com/testbridge/exam-sync-api/pkg/errors"
	"github.com/testbridge/exam-sync-api/pkg/export"
	"github.com/testbridge/exam-sync-api/pkg/storage"
)

// Export formats accepted by the exporter.
const (
	ExportFormatJSON = "json"
	ExportFormatCSV  = "csv"
	ExportFormatSQL  = "sql"
	ExportFormatPDF  = "pdf"
)

type bundleStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes exporter behaviour.
type ExportConfig struct {
	APIPrefix string
}

// ExportService renders an in-memory package into transportable artifacts.
// Rendering is pure: exporting the same package twice produces byte-identical
// files and never touches enrollment state. Archiving to disk is opt-in.
type ExportService struct {
	storage bundleStorage
	signer  *storage.BundleSigner
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(store bundleStorage, signer *storage.BundleSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{storage: store, signer: signer, csv: csv, pdf: pdf, logger: logger, cfg: cfg}
}

// Export renders the package in the requested format.
func (s *ExportService) Export(req dto.ExportPackageRequest) (*dto.ExportPackageResponse, error) {
	if req.PackageData == nil || req.Format == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "package_data and format are required")
	}
	pkg := req.PackageData

	var (
		resp *dto.ExportPackageResponse
		err  error
	)
	switch req.Format {
	case ExportFormatJSON:
		resp, err = s.exportJSON(pkg)
	case ExportFormatCSV:
		resp, err = s.exportCSV(pkg)
	case ExportFormatSQL:
		resp, err = s.exportSQL(pkg)
	case ExportFormatPDF:
		resp, err = s.exportPDF(pkg)
	default:
		return nil, appErrors.Clone(appErrors.ErrUnknownFormat, fmt.Sprintf("unsupported export format %q", req.Format))
	}
	if err != nil {
		return nil, err
	}

	if req.Archive {
		if archiveErr := s.archive(pkg.PackageID, resp); archiveErr != nil {
			s.logger.Warn("failed to archive export bundle",
				zap.String("package_id", pkg.PackageID), zap.Error(archiveErr))
		}
	}
	return resp, nil
}

// ParseToken validates a bundle download token.
func (s *ExportService) ParseToken(token string) (packageID, relPath string, expiresAt time.Time, err error) {
	if s.signer == nil {
		return "", "", time.Time{}, fmt.Errorf("bundle downloads disabled")
	}
	return s.signer.Verify(token)
}

// Open returns a handle to an archived bundle file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("bundle storage disabled")
	}
	return s.storage.Open(relPath)
}

func (s *ExportService) exportJSON(pkg *models.Package) (*dto.ExportPackageResponse, error) {
	payload, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render package json")
	}
	filename := fmt.Sprintf("package_%s.json", pkg.PackageID)
	return &dto.ExportPackageResponse{
		Format:       ExportFormatJSON,
		Files:        map[string]string{filename: string(payload)},
		Instructions: "Copy the JSON file to the test center machine and load it through the offline client's import screen.",
	}, nil
}

func (s *ExportService) exportCSV(pkg *models.Package) (*dto.ExportPackageResponse, error) {
	files := make(map[string]string)
	for name, dataset := range packageDatasets(pkg) {
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to render %s", name))
		}
		files[name] = string(payload)
	}
	files["import.sh"] = csvImportScript(pkg.PackageID)
	return &dto.ExportPackageResponse{
		Format:       ExportFormatCSV,
		Files:        files,
		Instructions: "Place all files in one directory on the center machine and run `sh import.sh <offline-db-name>` to bulk-load the collections with psql \\copy.",
	}, nil
}

func (s *ExportService) exportSQL(pkg *models.Package) (*dto.ExportPackageResponse, error) {
	script := sqlImportScript(pkg)
	manifest, err := json.MarshalIndent(map[string]interface{}{
		"package_id":  pkg.PackageID,
		"schema":      pkg.Metadata.SchemaVersion,
		"collections": map[string]int{"enrollments": len(pkg.Enrollments), "users": len(pkg.Users), "questions": len(pkg.Test.Questions), "tests": 1},
		"files":       []string{fmt.Sprintf("import_%s.sql", pkg.PackageID)},
	}, "", "  ")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render manifest")
	}
	return &dto.ExportPackageResponse{
		Format: ExportFormatSQL,
		Files: map[string]string{
			fmt.Sprintf("import_%s.sql", pkg.PackageID): script,
			"manifest.json": string(manifest),
		},
		Instructions: "Execute the SQL script directly against the offline database (`psql -d <offline-db-name> -f import_<id>.sql`); manifest.json lists expected row counts for verification.",
	}, nil
}

func (s *ExportService) exportPDF(pkg *models.Package) (*dto.ExportPackageResponse, error) {
	users := make(map[string]models.PackageUser, len(pkg.Users))
	for _, u := range pkg.Users {
		users[u.ID] = u
	}
	rows := make([]map[string]string, 0, len(pkg.Enrollments))
	for _, e := range pkg.Enrollments {
		u := users[e.StudentID]
		rows = append(rows, map[string]string{
			"Student":         u.FullName,
			"Registration No": u.RegistrationNo,
			"Access Code":     e.AccessCode,
			"Scheduled":       formatScheduled(e.ScheduledAt),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Registration No", "Access Code", "Scheduled"},
		Rows:    rows,
	}
	payload, err := s.pdf.Render(dataset, fmt.Sprintf("Access Codes %s", pkg.PackageID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render access code sheet")
	}
	filename := fmt.Sprintf("access_codes_%s.pdf", pkg.PackageID)
	return &dto.ExportPackageResponse{
		Format:       ExportFormatPDF,
		Files:        map[string]string{filename: base64.StdEncoding.EncodeToString(payload)},
		Instructions: "The PDF is base64 encoded; decode it and print one access-code sheet per center room. Codes are single use.",
	}, nil
}

func (s *ExportService) archive(packageID string, resp *dto.ExportPackageResponse) error {
	if s.storage == nil || s.signer == nil {
		return fmt.Errorf("bundle storage not configured")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")

	names := make([]string, 0, len(resp.Files))
	for name := range resp.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	downloads := make(map[string]string, len(names))
	var expiresAt time.Time
	for _, name := range names {
		content := []byte(resp.Files[name])
		if strings.HasSuffix(name, ".pdf") {
			decoded, err := base64.StdEncoding.DecodeString(resp.Files[name])
			if err != nil {
				return fmt.Errorf("decode pdf artifact: %w", err)
			}
			content = decoded
		}
		relPath, err := s.storage.Save(fmt.Sprintf("%s/%s", packageID, name), content)
		if err != nil {
			return err
		}
		token, exp, err := s.signer.Sign(packageID, relPath)
		if err != nil {
			return err
		}
		downloads[name] = fmt.Sprintf("%s/sync/export/%s", prefix, token)
		expiresAt = exp
	}
	resp.Downloads = downloads
	resp.ExpiresAt = &expiresAt
	return nil
}

// packageDatasets maps each logical collection onto a tabular dataset.
func packageDatasets(pkg *models.Package) map[string]export.Dataset {
	enrollmentRows := make([]map[string]string, 0, len(pkg.Enrollments))
	for _, e := range pkg.Enrollments {
		enrollmentRows = append(enrollmentRows, map[string]string{
			"enrollment_id": e.EnrollmentID,
			"student_id":    e.StudentID,
			"test_id":       e.TestID,
			"access_code":   e.AccessCode,
			"scheduled_at":  formatScheduled(e.ScheduledAt),
		})
	}

	userRows := make([]map[string]string, 0, len(pkg.Users))
	for _, u := range pkg.Users {
		avatar := ""
		if u.AvatarURL != nil {
			avatar = *u.AvatarURL
		}
		userRows = append(userRows, map[string]string{
			"id":              u.ID,
			"full_name":       u.FullName,
			"email":           u.Email,
			"registration_no": u.RegistrationNo,
			"avatar_url":      avatar,
		})
	}

	questionRows := make([]map[string]string, 0, len(pkg.Test.Questions))
	for _, q := range pkg.Test.Questions {
		media := ""
		if q.MediaURL != nil {
			media = *q.MediaURL
		}
		questionRows = append(questionRows, map[string]string{
			"id":             q.ID,
			"test_id":        q.TestID,
			"ordinal":        fmt.Sprintf("%d", q.Ordinal),
			"prompt":         q.Prompt,
			"options":        string(q.Options),
			"correct_option": q.CorrectOption,
			"marks":          fmt.Sprintf("%d", q.Marks),
			"media_url":      media,
		})
	}

	testRow := map[string]string{
		"id":               pkg.Test.ID,
		"subject_id":       pkg.Test.SubjectID,
		"subject_name":     pkg.Test.SubjectName,
		"title":            pkg.Test.Title,
		"duration_minutes": fmt.Sprintf("%d", pkg.Test.DurationMinutes),
		"total_marks":      fmt.Sprintf("%d", pkg.Test.TotalMarks),
	}

	return map[string]export.Dataset{
		"enrollments.csv": {
			Headers: []string{"enrollment_id", "student_id", "test_id", "access_code", "scheduled_at"},
			Rows:    enrollmentRows,
		},
		"users.csv": {
			Headers: []string{"id", "full_name", "email", "registration_no", "avatar_url"},
			Rows:    userRows,
		},
		"questions.csv": {
			Headers: []string{"id", "test_id", "ordinal", "prompt", "options", "correct_option", "marks", "media_url"},
			Rows:    questionRows,
		},
		"test.csv": {
			Headers: []string{"id", "subject_id", "subject_name", "title", "duration_minutes", "total_marks"},
			Rows:    []map[string]string{testRow},
		},
	}
}

func csvImportScript(packageID string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString(fmt.Sprintf("# Offline bulk import for package %s\n", packageID))
	b.WriteString("DB=\"${1:?usage: import.sh <offline-db-name>}\"\n")
	for _, table := range []string{"users", "test", "questions", "enrollments"} {
		b.WriteString(fmt.Sprintf("psql -d \"$DB\" -c \"\\copy offline_%s FROM '%s.csv' WITH (FORMAT csv, HEADER true)\"\n", table, table))
	}
	return b.String()
}

func sqlImportScript(pkg *models.Package) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("-- Offline import for package %s\n", pkg.PackageID))
	b.WriteString("BEGIN;\n")

	b.WriteString(fmt.Sprintf("INSERT INTO offline_test (id, subject_id, subject_name, title, duration_minutes, total_marks) VALUES (%s, %s, %s, %s, %d, %d);\n",
		sqlQuote(pkg.Test.ID), sqlQuote(pkg.Test.SubjectID), sqlQuote(pkg.Test.SubjectName), sqlQuote(pkg.Test.Title), pkg.Test.DurationMinutes, pkg.Test.TotalMarks))

	for _, u := range pkg.Users {
		avatar := "NULL"
		if u.AvatarURL != nil {
			avatar = sqlQuote(*u.AvatarURL)
		}
		b.WriteString(fmt.Sprintf("INSERT INTO offline_users (id, full_name, email, registration_no, avatar_url) VALUES (%s, %s, %s, %s, %s);\n",
			sqlQuote(u.ID), sqlQuote(u.FullName), sqlQuote(u.Email), sqlQuote(u.RegistrationNo), avatar))
	}

	for _, q := range pkg.Test.Questions {
		media := "NULL"
		if q.MediaURL != nil {
			media = sqlQuote(*q.MediaURL)
		}
		b.WriteString(fmt.Sprintf("INSERT INTO offline_questions (id, test_id, ordinal, prompt, options, correct_option, marks, media_url) VALUES (%s, %s, %d, %s, %s, %s, %d, %s);\n",
			sqlQuote(q.ID), sqlQuote(q.TestID), q.Ordinal, sqlQuote(q.Prompt), sqlQuote(string(q.Options)), sqlQuote(q.CorrectOption), q.Marks, media))
	}

	for _, e := range pkg.Enrollments {
		scheduled := "NULL"
		if e.ScheduledAt != nil {
			scheduled = sqlQuote(e.ScheduledAt.UTC().Format(time.RFC3339))
		}
		b.WriteString(fmt.Sprintf("INSERT INTO offline_enrollments (enrollment_id, student_id, test_id, access_code, scheduled_at, package_id) VALUES (%s, %s, %s, %s, %s, %s);\n",
			sqlQuote(e.EnrollmentID), sqlQuote(e.StudentID), sqlQuote(e.TestID), sqlQuote(e.AccessCode), scheduled, sqlQuote(pkg.PackageID)))
	}

	b.WriteString("COMMIT;\n")
	return b.String()
}

func sqlQuote(raw string) string {
	return "'" + strings.ReplaceAll(raw, "'", "''") + "'"
}

func formatScheduled(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
