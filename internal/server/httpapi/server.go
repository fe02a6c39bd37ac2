// Package httpapi exposes the upload lifecycle operations over HTTP. It is
// transport only: request decoding, authorization context extraction, and
// error-to-status mapping. All logic lives in the services package.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blobvault/blobvault/internal/logging"
	"github.com/blobvault/blobvault/internal/server/services"
)

type Server struct {
	address   string
	uploads   *services.UploadService
	folders   *services.FolderService
	logger    logging.Logger
	jwtSecret []byte
}

func NewServer(address string, l logging.Logger, us *services.UploadService, fs *services.FolderService, secretKey string) *Server {
	return &Server{
		address:   address,
		logger:    l.With("module", "http_server"),
		uploads:   us,
		folders:   fs,
		jwtSecret: []byte(secretKey),
	}
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	authGroup := r.Group("/api")
	authGroup.Use(s.authMiddleware())

	authGroup.POST("/uploads/presign", s.requestUploadHandler)
	authGroup.POST("/uploads/commit", s.commitUploadsHandler)
	authGroup.GET("/uploads", s.listUploadsHandler)
	authGroup.GET("/uploads/download-url", s.downloadURLHandler)
	authGroup.DELETE("/uploads", s.deleteUploadHandler)
	authGroup.POST("/uploads/batch-delete", s.deleteUploadsBatchHandler)
	authGroup.GET("/usage", s.getUsageHandler)

	authGroup.POST("/folders", s.createFolderHandler)
	authGroup.GET("/folders", s.listFoldersHandler)
	authGroup.DELETE("/folders/:id", s.deleteFolderHandler)

	// invoked by the external scheduler, not by end users
	authGroup.POST("/internal/cleanup", s.runCleanupHandler)

	return r
}

// Run starts the HTTP server and shuts it down gracefully when ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.router(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
