// File Upload Handler - multipart image uploads into the artifact store
package handlers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"datalabel-backend/internal/clients"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxUploadBytes = 5 * 1024 * 1024

var validImageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp"}

// FileUploadHandler handles file upload operations
type FileUploadHandler struct {
	artifacts clients.ArtifactStore
	gateway   string
	logger    *logrus.Logger
}

// NewFileUploadHandler creates a new FileUploadHandler
func NewFileUploadHandler(artifacts clients.ArtifactStore, gateway string, logger *logrus.Logger) *FileUploadHandler {
	return &FileUploadHandler{artifacts: artifacts, gateway: gateway, logger: logger}
}

// UploadImageHandler stores a task image and returns its content address.
// The reference is passed as artifact_reference when creating a task.
// POST /api/artifacts
func (h *FileUploadHandler) UploadImageHandler(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "ValidationError", "No file uploaded", gin.H{"file": "required"})
		return
	}

	if !isValidImageType(file.Filename) {
		respondWithError(c, http.StatusBadRequest, "ValidationError",
			"Invalid file type. Only jpg, jpeg, png, gif, svg, webp are allowed", gin.H{"file": "unsupported type"})
		return
	}
	if file.Size > maxUploadBytes {
		respondWithError(c, http.StatusBadRequest, "ValidationError", "File size exceeds 5MB limit", gin.H{"file": "too large"})
		return
	}

	src, err := file.Open()
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "ValidationError", "Failed to open uploaded file", nil)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "ValidationError", "Failed to read uploaded file", nil)
		return
	}
	if len(data) > maxUploadBytes {
		respondWithError(c, http.StatusBadRequest, "ValidationError", "File size exceeds 5MB limit", gin.H{"file": "too large"})
		return
	}

	ref, err := h.artifacts.Put(c.Request.Context(), filepath.Base(file.Filename), data)
	if err != nil {
		respondWithAppError(c, h.logger, "store upload", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"filename":  file.Filename,
		"size":      len(data),
		"reference": ref,
	}).Info("📤 Artifact uploaded")

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"artifact_reference": ref,
			"url":                clients.GatewayURL(h.gateway, ref),
			"size":               len(data),
		},
	})
}

func isValidImageType(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, validExt := range validImageExts {
		if ext == validExt {
			return true
		}
	}
	return false
}
