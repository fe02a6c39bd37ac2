package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blobvault/blobvault/internal/common"
	"github.com/blobvault/blobvault/internal/server/services"
)

// writeError maps service errors onto stable codes and HTTP statuses.
// Quota rejections include the numbers the caller needs to render a
// meaningful message.
func (s *Server) writeError(c *gin.Context, err error) {
	var validationErr *common.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "validation_failed",
			"message": validationErr.Error(),
			"field":   validationErr.Field,
		})
		return
	}

	var quotaErr *common.QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.JSON(http.StatusConflict, gin.H{
			"code":            "quota_exceeded",
			"message":         quotaErr.Error(),
			"used_bytes":      quotaErr.UsedBytes,
			"limit_bytes":     quotaErr.LimitBytes,
			"requested_bytes": quotaErr.RequestedBytes,
		})
		return
	}

	switch {
	case errors.Is(err, common.ErrNothingToCommit):
		c.JSON(http.StatusNotFound, gin.H{"code": "nothing_to_commit", "message": err.Error()})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "message": err.Error()})
	case errors.Is(err, common.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "message": err.Error()})
	default:
		var storeErr *common.ExternalStoreError
		if errors.As(err, &storeErr) {
			c.JSON(http.StatusBadGateway, gin.H{"code": "external_store_error", "message": storeErr.Error()})
			return
		}
		s.logger.Error(c.Request.Context(), "internal error", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal", "message": "internal error"})
	}
}

type presignRequest struct {
	FileName    string  `json:"file_name" binding:"required"`
	ContentType string  `json:"content_type" binding:"required"`
	SizeBytes   int64   `json:"size_bytes" binding:"required"`
	Visibility  string  `json:"visibility"`
	FolderID    *string `json:"folder_id"`
}

func (s *Server) requestUploadHandler(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_failed", "message": err.Error()})
		return
	}

	grant, err := s.uploads.RequestUpload(c.Request.Context(), callerFrom(c), services.UploadRequest{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		Public:      req.Visibility == "public",
		FolderID:    req.FolderID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, grant)
}

type commitRequest struct {
	ObjectKeys []string `json:"object_keys" binding:"required"`
}

func (s *Server) commitUploadsHandler(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_failed", "message": err.Error()})
		return
	}

	committed, err := s.uploads.CommitUploads(c.Request.Context(), req.ObjectKeys)
	if err != nil {
		s.writeError(c, err)
		return
	}

	keys := make([]string, 0, len(committed))
	for _, u := range committed {
		keys = append(keys, u.ObjectKey)
	}
	c.JSON(http.StatusOK, gin.H{"committed": keys})
}

func (s *Server) listUploadsHandler(c *gin.Context) {
	result, err := s.uploads.ListUploads(c.Request.Context(), callerFrom(c), 0)
	if err != nil {
		s.writeError(c, err)
		return
	}

	type uploadItem struct {
		ID          string  `json:"id"`
		ObjectKey   string  `json:"object_key"`
		ContentType string  `json:"content_type"`
		SizeBytes   int64   `json:"size_bytes"`
		FolderID    *string `json:"folder_id,omitempty"`
	}
	items := make([]uploadItem, 0, len(result))
	for _, u := range result {
		items = append(items, uploadItem{
			ID:          u.ID,
			ObjectKey:   u.ObjectKey,
			ContentType: u.ContentType,
			SizeBytes:   u.SizeBytes,
			FolderID:    u.FolderID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"uploads": items})
}

func (s *Server) downloadURLHandler(c *gin.Context) {
	key := c.Query("object_key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_failed", "message": "object_key is required"})
		return
	}

	url, err := s.uploads.DownloadURL(c.Request.Context(), callerFrom(c), key)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"download_url": url})
}

func (s *Server) deleteUploadHandler(c *gin.Context) {
	key := c.Query("object_key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_failed", "message": "object_key is required"})
		return
	}

	if err := s.uploads.DeleteUpload(c.Request.Context(), callerFrom(c), key); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{})
}

type batchDeleteRequest struct {
	ObjectKeys []string `json:"object_keys" binding:"required"`
}

func (s *Server) deleteUploadsBatchHandler(c *gin.Context) {
	var req batchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_failed", "message": err.Error()})
		return
	}

	result := s.uploads.DeleteUploadsBatch(c.Request.Context(), callerFrom(c), req.ObjectKeys)
	c.JSON(http.StatusOK, result)
}

func (s *Server) getUsageHandler(c *gin.Context) {
	caller := callerFrom(c)
	if caller.TenantID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_failed", "message": "no active tenant"})
		return
	}

	usage, err := s.uploads.GetUsage(c.Request.Context(), *caller.TenantID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, usage)
}

func (s *Server) runCleanupHandler(c *gin.Context) {
	result, err := s.uploads.RunCleanupPass(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type createFolderRequest struct {
	Name     string  `json:"name" binding:"required"`
	ParentID *string `json:"parent_id"`
}

func (s *Server) createFolderHandler(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_failed", "message": err.Error()})
		return
	}

	folder, err := s.folders.CreateFolder(c.Request.Context(), callerFrom(c), req.Name, req.ParentID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": folder.ID, "name": folder.Name, "parent_id": folder.ParentID})
}

func (s *Server) listFoldersHandler(c *gin.Context) {
	result, err := s.folders.ListFolders(c.Request.Context(), callerFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	type folderItem struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		ParentID *string `json:"parent_id,omitempty"`
	}
	items := make([]folderItem, 0, len(result))
	for _, f := range result {
		items = append(items, folderItem{ID: f.ID, Name: f.Name, ParentID: f.ParentID})
	}
	c.JSON(http.StatusOK, gin.H{"folders": items})
}

func (s *Server) deleteFolderHandler(c *gin.Context) {
	if err := s.folders.DeleteFolder(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
