package history

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "history.db")
	ledger, err := Open(path)
	require.NoError(t, err)
	defer ledger.Close()

	transfers, err := ledger.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestRecordAndRecent(t *testing.T) {
	ledger := openTestLedger(t)

	ledger.RecordTransfer("id-1", "a.txt", "/uploads/a.txt", 10, "completed")
	ledger.RecordTransfer("id-2", "b.txt", "/uploads/b.txt", 20, "cancelled")
	ledger.RecordTransfer("id-3", "c.txt", "/uploads/c.txt", 30, "completed")

	transfers, err := ledger.Recent(10)
	require.NoError(t, err)
	require.Len(t, transfers, 3)

	// Newest first.
	assert.Equal(t, "id-3", transfers[0].UploadID)
	assert.Equal(t, "id-1", transfers[2].UploadID)
	assert.Equal(t, uint64(20), transfers[1].Size)
	assert.Equal(t, "cancelled", transfers[1].Status)
}

func TestRecentRespectsLimit(t *testing.T) {
	ledger := openTestLedger(t)

	for i := 0; i < 5; i++ {
		ledger.RecordTransfer(fmt.Sprintf("id-%d", i), "f.txt", "/uploads/f.txt", uint64(i), "completed")
	}

	transfers, err := ledger.Recent(2)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	assert.Equal(t, "id-4", transfers[0].UploadID)
	assert.Equal(t, "id-3", transfers[1].UploadID)
}
