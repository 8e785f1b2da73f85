// File upload HTTP handlers.
//
// This file exposes REST endpoints for file uploads:
//   - POST /upload  (multipart upload, MIME allow-list, size cap)
//   - GET  /files   (upload history)
//
// Uploaded files are written to a local directory under a random name and
// served back by the router as static content at /uploads/. The handler only
// does transport work; metadata bookkeeping lives in FileService.
package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/plankdev/plank-ai-backend/internal/domain"
	"github.com/plankdev/plank-ai-backend/internal/http/middleware"
)

// defaultMaxUploadBytes caps multipart uploads at 50 MiB.
const defaultMaxUploadBytes = 50 << 20

// allowedUploadTypes is the MIME allow-list for uploads. Prefix entries
// (trailing slash) match a whole top-level type.
var allowedUploadTypes = []string{
	"image/",
	"audio/",
	"video/",
	"text/",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/zip",
	"application/x-zip-compressed",
	"application/vnd.android.package-archive",
}

// uploadTypeAllowed checks the declared MIME type against the allow-list.
func uploadTypeAllowed(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	for _, allowed := range allowedUploadTypes {
		if strings.HasSuffix(allowed, "/") {
			if strings.HasPrefix(mt, allowed) {
				return true
			}
			continue
		}
		if mt == allowed {
			return true
		}
	}
	return false
}

// UploadResponse describes a stored upload.
type UploadResponse struct {
	File *domain.UploadedFile `json:"file"`
	// URL is the public path the file is served from.
	URL string `json:"url"`
}

// ListFilesResponse wraps the user's upload history.
type ListFilesResponse struct {
	Files []domain.UploadedFile `json:"files"`
}

// Upload godoc
// @ID          uploadFile
// @Summary     Upload a file
// @Description Accepts a multipart upload (field name "file"), stores it locally under a random name,
// @Description and records its metadata. Allowed types: images, audio, video, text, PDF, Word, ZIP, APK. Max 50 MiB.
// @Tags        Files
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       file       formData  file  true  "File to upload"
//
// @Success     201  {object}  handlers.UploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing, oversized, or disallowed file"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /upload [post]
func (h *Handlers) Upload(c *gin.Context) {
	maxBytes := h.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}

	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'file' required")
		return
	}
	if fh.Size > maxBytes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file exceeds the 50 MiB limit")
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if !uploadTypeAllowed(mimeType) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file type not allowed")
		return
	}

	// Random disk name; the original extension is kept for static serving.
	storedName := uuid.NewString() + strings.ToLower(filepath.Ext(fh.Filename))
	dst := filepath.Join(h.UploadDir, storedName)
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Str("file", fh.Filename).Msg("upload: save failed")
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, "could not store file")
		return
	}

	rec, err := h.fileSvc.Record(c.Request.Context(), userID(c), storedName, fh.Filename, mimeType, fh.Size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, err.Error())
		return
	}

	ok(c, http.StatusCreated, UploadResponse{File: rec, URL: h.fileSvc.URL(storedName)})
}

// ListFiles godoc
// @ID          listFiles
// @Summary     List the user's uploads
// @Description Returns the user's upload history, most recent first.
// @Tags        Files
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object}  handlers.ListFilesResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /files [get]
func (h *Handlers) ListFiles(c *gin.Context) {
	items, err := h.fileSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListFilesResponse{Files: items})
}
