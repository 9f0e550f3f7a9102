package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/testbridge/exam-sync-api/internal/dto"
	"github.com/testbridge/exam-sync-api/internal/middleware"
	"github.com/testbridge/exam-sync-api/internal/service"
	appErrors "github.com/testbridge/exam-sync-api/pkg/errors"
	"github.com/testbridge/exam-sync-api/pkg/response"
)

// SyncHandler exposes the offline synchronization endpoints.
type SyncHandler struct {
	packages  *service.PackageService
	exporter  *service.ExportService
	reconcile *service.ReconcileService
	status    *service.StatusService
}

// NewSyncHandler constructs SyncHandler.
func NewSyncHandler(packages *service.PackageService, exporter *service.ExportService, reconcile *service.ReconcileService, status *service.StatusService) *SyncHandler {
	return &SyncHandler{packages: packages, exporter: exporter, reconcile: reconcile, status: status}
}

// DownloadUsers godoc
// @Summary Build an offline package for a test center and test
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body dto.CreatePackageRequest true "Package request"
// @Success 200 {object} response.Envelope
// @Router /sync/download-users [post]
func (h *SyncHandler) DownloadUsers(c *gin.Context) {
	var req dto.CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); !claims.CanAccessCenter(req.TestCenterID) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "test center not owned by caller"))
		return
	}

	pkg, err := h.packages.CreatePackage(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, pkg.PackageID)
	response.OK(c, dto.CreatePackageResponse{
		PackageID: pkg.PackageID,
		Message:   fmt.Sprintf("package with %d enrollments ready for download", pkg.Metadata.TotalEnrollments),
		Data:      pkg,
	})
}

// DownloadTests godoc
// @Summary Informational stub; test data travels inside the download package
// @Tags Sync
// @Produce json
// @Param packageId path string true "Package ID"
// @Success 200 {object} response.Envelope
// @Router /sync/download-tests/{packageId} [get]
func (h *SyncHandler) DownloadTests(c *gin.Context) {
	response.OK(c, gin.H{
		"package_id": c.Param("packageId"),
		"message":    "test data is embedded in the download package; no separate test download is required",
	})
}

// ExportPackage godoc
// @Summary Render a built package into transportable artifacts
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body dto.ExportPackageRequest true "Export request"
// @Success 200 {object} response.Envelope
// @Router /sync/export-package [post]
func (h *SyncHandler) ExportPackage(c *gin.Context) {
	var req dto.ExportPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.PackageData != nil {
		if claims := claimsFromContext(c); !claims.CanAccessCenter(req.PackageData.TestCenterID) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "test center not owned by caller"))
			return
		}
	}

	result, err := h.exporter.Export(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// DownloadBundle godoc
// @Summary Stream an archived export artifact by signed token
// @Tags Sync
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /sync/export/{token} [get]
func (h *SyncHandler) DownloadBundle(c *gin.Context) {
	_, relPath, _, err := h.exporter.ParseToken(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token"))
		return
	}
	file, err := h.exporter.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "bundle file not found"))
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(relPath)))
	c.File(file.Name())
}

// UploadResults godoc
// @Summary Reconcile a batch of offline-collected results
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body dto.UploadResultsRequest true "Upload batch"
// @Success 200 {object} response.Envelope
// @Router /sync/upload-results [post]
func (h *SyncHandler) UploadResults(c *gin.Context) {
	var req dto.UploadResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); !claims.CanAccessCenter(req.TestCenterID) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "test center not owned by caller"))
		return
	}

	summary, err := h.reconcile.Reconcile(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	// Individual failures are data, not protocol errors: always 200 here.
	middleware.SetAuditResource(c, req.PackageID)
	response.OK(c, summary)
}

// Status godoc
// @Summary Aggregate a center's enrollment sync progress
// @Tags Sync
// @Produce json
// @Param testCenterId path string true "Test center ID"
// @Param from query string false "Window start (RFC3339)"
// @Param to query string false "Window end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /sync/status/{testCenterId} [get]
func (h *SyncHandler) Status(c *gin.Context) {
	testCenterID := c.Param("testCenterId")
	if claims := claimsFromContext(c); !claims.CanAccessCenter(testCenterID) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "test center not owned by caller"))
		return
	}

	from, err := parseTimeQuery(c.Query("from"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339"))
		return
	}
	to, err := parseTimeQuery(c.Query("to"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339"))
		return
	}

	report, err := h.status.Report(c.Request.Context(), testCenterID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// SetStatus godoc
// @Summary Manually override enrollment sync status (audited)
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body dto.SetStatusRequest true "Override payload"
// @Success 200 {object} response.Envelope
// @Router /sync/status [put]
func (h *SyncHandler) SetStatus(c *gin.Context) {
	var req dto.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	updated, err := h.status.SetStatus(c.Request.Context(), req, claimsFromContext(c), c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.SetStatusResponse{Updated: int(updated)})
}

func parseTimeQuery(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
