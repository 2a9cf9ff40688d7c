package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jhalstead/skiff/cmd/skiff/middleware"
	"github.com/jhalstead/skiff/internal/gate"
	"github.com/jhalstead/skiff/internal/history"
	"github.com/jhalstead/skiff/internal/storage"
	"github.com/jhalstead/skiff/internal/upload"
)

type initRequest struct {
	Filename string  `json:"filename" binding:"required"`
	FileSize *uint64 `json:"fileSize" binding:"required"`
}

type verifyRequest struct {
	Secret string `json:"secret"`
}

func handleUploadInit(sm *upload.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req initRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "filename and fileSize required"})
			return
		}

		session, err := sm.Start(req.Filename, *req.FileSize)
		if err != nil {
			var sizeErr *upload.SizeExceededError
			var busyErr *upload.DestinationBusyError
			switch {
			case errors.As(err, &sizeErr):
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{
					"error":     "file too large",
					"limit":     sizeErr.Limit,
					"limitInMB": sizeErr.Limit / (1024 * 1024),
				})
			case errors.As(err, &busyErr):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, storage.ErrInvalidName):
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
			default:
				log.Error().Err(err).Str("filename", req.Filename).Msg("failed to start upload session")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start upload"})
			}
			return
		}

		if session.DeclaredSize == 0 {
			c.JSON(http.StatusOK, gin.H{
				"uploadId":  session.ID,
				"completed": true,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"uploadId": session.ID})
	}
}

func handleUploadChunk(sm *upload.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		uploadID := c.Param("uploadId")

		received, progress, err := sm.AppendChunk(uploadID, c.Request.Body)
		if err != nil {
			if errors.Is(err, upload.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write chunk"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"bytesReceived": received,
			"progress":      progress,
		})
	}
}

func handleUploadCancel(sm *upload.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sm.Cancel(c.Param("uploadId"))
		c.JSON(http.StatusOK, gin.H{"message": "upload cancelled"})
	}
}

func handleUploadStatus(sm *upload.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		progress, err := sm.Status(c.Param("uploadId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found"})
			return
		}
		c.JSON(http.StatusOK, progress)
	}
}

// handleDirectUpload accepts a whole file as a multipart form in one
// request, for clients that do not need resumability.
func handleDirectUpload(st *storage.LocalStorage, sm *upload.SessionManager, policy upload.SizePolicy, recorder upload.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()

		// The multipart filename is base-name only; an explicit form
		// field lets clients keep directory structure.
		name := c.PostForm("filename")
		if name == "" {
			name = header.Filename
		}

		if header.Size > 0 {
			if err := policy.Admit(uint64(header.Size)); err != nil {
				var sizeErr *upload.SizeExceededError
				if errors.As(err, &sizeErr) {
					c.JSON(http.StatusRequestEntityTooLarge, gin.H{
						"error":     "file too large",
						"limit":     sizeErr.Limit,
						"limitInMB": sizeErr.Limit / (1024 * 1024),
					})
					return
				}
			}
		}

		path, err := st.Resolve(name)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidName) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve destination"})
			return
		}

		if sm.Claimed(path) {
			c.JSON(http.StatusConflict, gin.H{"error": "destination is claimed by another upload"})
			return
		}

		_, written, err := st.Store(name, file)
		if err != nil {
			log.Error().Err(err).Str("filename", name).Msg("direct upload failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
			return
		}

		if recorder != nil {
			recorder.RecordTransfer(uuid.New().String(), name, path, uint64(written), upload.StatusCompleted)
		}

		c.JSON(http.StatusOK, gin.H{
			"filename": name,
			"size":     written,
		})
	}
}

func handleVerifySecret(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "secret required"})
			return
		}

		if !g.Required() {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		if !g.Verify(req.Secret) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false})
			return
		}

		token, err := g.IssueToken()
		if err != nil {
			log.Error().Err(err).Msg("failed to issue credential token")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue credential"})
			return
		}

		c.SetCookie(middleware.CookieName, token, int(g.TokenTTL().Seconds()), "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func handleSecretRequired(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"required": g.Required(),
			"length":   g.SecretLength(),
		})
	}
}

func handleTransfers(ledger *history.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ledger == nil {
			c.JSON(http.StatusOK, []history.Transfer{})
			return
		}

		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}

		transfers, err := ledger.Recent(limit)
		if err != nil {
			log.Error().Err(err).Msg("failed to list transfers")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transfers"})
			return
		}

		c.JSON(http.StatusOK, transfers)
	}
}
