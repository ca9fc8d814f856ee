package drive

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// maxUploadSize bounds multipart rule sheet uploads
const maxUploadSize = 10 << 20

type Handler struct {
	importer   *RuleImporter
	service    *Service
	downloader *Downloader
	folderID   string
}

// NewHandler serves rule imports. service may be nil when no drive
// credentials are configured; the drive endpoints then answer 503.
func NewHandler(importer *RuleImporter, service *Service, folderID string) *Handler {
	h := &Handler{importer: importer, service: service, folderID: folderID}
	if service != nil {
		h.downloader = NewDownloader(service)
	}
	return h
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/formula_rules/import", h.ImportUpload)
	rg.POST("/formula_rules/import/drive", h.ImportDrive)
	rg.GET("/drive/files", h.ListFiles)
}

// ImportUpload imports the sheet sent as the "file" form field
func (h *Handler) ImportUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read uploaded file"})
		return
	}
	defer f.Close()

	result, err := h.importer.Import(c.Request.Context(), fileHeader.Filename, f)
	if err != nil {
		respondImportError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ImportDrive downloads every sheet of a drive folder and imports them
func (h *Handler) ImportDrive(c *gin.Context) {
	if h.downloader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "google drive is not configured"})
		return
	}
	ctx := c.Request.Context()

	folderID, ok := h.resolveFolder(c)
	if !ok {
		return
	}

	dir, err := os.MkdirTemp("", "rule-sheets-*")
	if err != nil {
		log.Error().Err(err).Msg("drive: create temp dir failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	defer os.RemoveAll(dir)

	paths, err := h.downloader.DownloadFolderCSV(ctx, DownloadOptions{FolderID: folderID, DownloadDir: dir})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if len(paths) == 0 {
		c.JSON(http.StatusOK, &ImportResult{Failed: make([]RowError, 0)})
		return
	}

	result, err := h.importer.ImportFiles(ctx, paths)
	if err != nil {
		respondImportError(c, err, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListFiles(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "google drive is not configured"})
		return
	}
	folderID, ok := h.resolveFolder(c)
	if !ok {
		return
	}

	files, err := h.service.ListFiles(c.Request.Context(), folderID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, files)
}

// resolveFolder picks the folder from ?path=, then ?folderId=, then the configured default
func (h *Handler) resolveFolder(c *gin.Context) (string, bool) {
	if path := c.Query("path"); path != "" {
		id, err := h.service.FindFolderByPath(c.Request.Context(), path)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return "", false
		}
		return id, true
	}
	folderID := c.DefaultQuery("folderId", h.folderID)
	if folderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "folderId or path is required"})
		return "", false
	}
	return folderID, true
}

// respondImportError answers 422 for malformed sheets and a logged 500 otherwise
func respondImportError(c *gin.Context, err error, partial *ImportResult) {
	if !IsSheetError(err) {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("rule import failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	body := gin.H{"error": err.Error()}
	if partial != nil {
		body["result"] = partial
	}
	c.JSON(http.StatusUnprocessableEntity, body)
}
