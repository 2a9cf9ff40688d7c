package main

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jhalstead/skiff/cmd/skiff/middleware"
	"github.com/jhalstead/skiff/internal/gate"
	"github.com/jhalstead/skiff/internal/history"
	"github.com/jhalstead/skiff/internal/storage"
	"github.com/jhalstead/skiff/internal/upload"
	"github.com/jhalstead/skiff/pkg/config"
)

func setupRouter(cfg *config.Config, g *gate.Gate, sm *upload.SessionManager, st *storage.LocalStorage, ledger *history.Ledger) *gin.Engine {
	if zerolog.GlobalLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "healthy",
			"service":         "skiff",
			"active_sessions": sm.Active(),
			"time":            time.Now().UTC(),
		})
	})

	// The secret query and verification are never gated, so a fresh
	// client can always find out whether it needs to prompt.
	api := router.Group("/api")
	{
		api.GET("/secret-required", handleSecretRequired(g))
		api.POST("/verify-secret", handleVerifySecret(g))
		api.GET("/transfers", middleware.GateMiddleware(g), handleTransfers(ledger))
	}

	policy := upload.SizePolicy{MaxBytes: cfg.Upload.MaxBytes()}

	up := router.Group("/upload")
	up.Use(middleware.GateMiddleware(g))
	{
		up.POST("", handleDirectUpload(st, sm, policy, ledgerRecorder(ledger)))
		up.POST("/init", handleUploadInit(sm))
		up.POST("/chunk/:uploadId", handleUploadChunk(sm))
		up.POST("/cancel/:uploadId", handleUploadCancel(sm))
		up.GET("/status/:uploadId", handleUploadStatus(sm))
	}

	// Static client. The main page redirects to the login view when
	// the gate is active and no valid credential is present.
	webDir := cfg.Web.Dir
	router.GET("/", func(c *gin.Context) {
		if g.Required() && !middleware.HasCredential(c, g) {
			c.Redirect(http.StatusFound, "/login.html")
			return
		}
		c.File(filepath.Join(webDir, "index.html"))
	})
	router.StaticFile("/login.html", filepath.Join(webDir, "login.html"))

	return router
}

// ledgerRecorder converts a possibly-nil ledger into a Recorder
// without producing a non-nil interface around a nil pointer.
func ledgerRecorder(ledger *history.Ledger) upload.Recorder {
	if ledger == nil {
		return nil
	}
	return ledger
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-Upload-Secret, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
