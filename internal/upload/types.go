package upload

import (
	"os"
	"sync"
	"time"

	"github.com/jhalstead/skiff/internal/storage"
)

// Transfer outcomes recorded in the ledger.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Recorder receives finished transfers. Implementations must not block
// the upload path; recording failures are theirs to log.
type Recorder interface {
	RecordTransfer(uploadID, name, path string, size uint64, status string)
}

// UploadSession represents one in-flight chunked file transfer. The
// session exclusively owns its sink from creation until completion or
// cancellation.
type UploadSession struct {
	ID            string
	Name          string
	Path          string
	DeclaredSize  uint64
	BytesReceived uint64

	sink       *os.File
	lastUpdate time.Time
	closed     bool
	mu         sync.Mutex
}

// Progress is a point-in-time view of a session.
type Progress struct {
	Name          string `json:"filename"`
	DeclaredSize  uint64 `json:"fileSize"`
	BytesReceived uint64 `json:"bytesReceived"`
	Percent       int    `json:"progress"`
}

// SessionManager owns the table of live upload sessions. The table
// lock guards insert/remove and the destination claims; each session's
// own mutex serializes sink writes. A goroutine holding a session lock
// never waits on the table lock.
type SessionManager struct {
	sessions map[string]*UploadSession
	claimed  map[string]string // destination path -> session id
	storage  *storage.LocalStorage
	policy   SizePolicy
	recorder Recorder

	mu   sync.RWMutex
	stop chan struct{}
	once sync.Once
}
