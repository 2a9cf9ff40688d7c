// End-to-end test of the upload pipeline: session manager, local
// storage and transfer ledger wired together the way cmd/skiff wires
// them.
package e2e_test

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhalstead/skiff/internal/gate"
	"github.com/jhalstead/skiff/internal/history"
	"github.com/jhalstead/skiff/internal/storage"
	"github.com/jhalstead/skiff/internal/upload"
)

func setupPipeline(t *testing.T) (*upload.SessionManager, *storage.LocalStorage, *history.Ledger) {
	t.Helper()

	st, err := storage.New(t.TempDir())
	require.NoError(t, err)

	ledger, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	sm := upload.NewSessionManager(st, upload.SizePolicy{MaxBytes: 64 * 1024 * 1024}, ledger)
	t.Cleanup(sm.Close)

	return sm, st, ledger
}

func TestChunkedUploadEndToEnd(t *testing.T) {
	sm, st, ledger := setupPipeline(t)

	const totalSize = 5 * 1024 * 1024
	const chunkSize = 512 * 1024

	payload := make([]byte, totalSize)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	session, err := sm.Start("media/video.mp4", totalSize)
	require.NoError(t, err)

	lastProgress := 0
	for offset := 0; offset < totalSize; offset += chunkSize {
		end := offset + chunkSize
		if end > totalSize {
			end = totalSize
		}
		received, progress, err := sm.AppendChunk(session.ID, bytes.NewReader(payload[offset:end]))
		require.NoError(t, err)
		assert.Equal(t, uint64(end), received)
		assert.GreaterOrEqual(t, progress, lastProgress)
		lastProgress = progress
	}
	assert.Equal(t, 100, lastProgress)
	assert.Equal(t, 0, sm.Active())

	stored, err := os.ReadFile(filepath.Join(st.Root(), "media", "video.mp4"))
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	transfers, err := ledger.Recent(10)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, session.ID, transfers[0].UploadID)
	assert.Equal(t, "media/video.mp4", transfers[0].Name)
	assert.Equal(t, uint64(totalSize), transfers[0].Size)
	assert.Equal(t, upload.StatusCompleted, transfers[0].Status)
}

func TestInterruptedUploadEndToEnd(t *testing.T) {
	sm, st, ledger := setupPipeline(t)

	session, err := sm.Start("docs/draft.pdf", 1024*1024)
	require.NoError(t, err)

	_, _, err = sm.AppendChunk(session.ID, bytes.NewReader(make([]byte, 128*1024)))
	require.NoError(t, err)

	// The partial file is visible on disk mid-transfer.
	info, err := os.Stat(filepath.Join(st.Root(), "docs", "draft.pdf"))
	require.NoError(t, err)
	assert.Equal(t, int64(128*1024), info.Size())

	sm.Cancel(session.ID)

	_, err = os.Stat(filepath.Join(st.Root(), "docs", "draft.pdf"))
	assert.True(t, os.IsNotExist(err))

	transfers, err := ledger.Recent(10)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, upload.StatusCancelled, transfers[0].Status)
	assert.Equal(t, uint64(128*1024), transfers[0].Size)

	// The destination is reusable after cancellation.
	_, err = sm.Start("docs/draft.pdf", 2048)
	assert.NoError(t, err)
}

func TestGatedPipelineEndToEnd(t *testing.T) {
	sm, _, _ := setupPipeline(t)

	g := gate.New("upload pin: 4242", 4, 12, "e2e-token-secret", time.Hour)
	require.True(t, g.Required())
	assert.Equal(t, 4, g.SecretLength())

	// A client that fails verification never reaches the manager.
	require.False(t, g.Verify("0000"))

	// A verified client gets a token and uploads normally.
	require.True(t, g.Verify("4242"))
	token, err := g.IssueToken()
	require.NoError(t, err)
	require.NoError(t, g.ValidateToken(token))

	session, err := sm.Start("gated.bin", 16)
	require.NoError(t, err)
	received, progress, err := sm.AppendChunk(session.ID, bytes.NewReader(make([]byte, 16)))
	require.NoError(t, err)
	assert.Equal(t, uint64(16), received)
	assert.Equal(t, 100, progress)
}
