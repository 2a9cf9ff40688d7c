package upload

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jhalstead/skiff/internal/storage"
)

// NewSessionManager creates a session manager backed by the given
// storage. recorder may be nil when no ledger is configured.
func NewSessionManager(st *storage.LocalStorage, policy SizePolicy, recorder Recorder) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*UploadSession),
		claimed:  make(map[string]string),
		storage:  st,
		policy:   policy,
		recorder: recorder,
		stop:     make(chan struct{}),
	}
}

// Start admits a declared upload, reserves its destination, opens the
// sink and registers a new session. A zero declared size is treated as
// immediately complete: the empty file is created and closed and no
// session is registered.
func (sm *SessionManager) Start(name string, declaredSize uint64) (*UploadSession, error) {
	if err := sm.policy.Admit(declaredSize); err != nil {
		return nil, err
	}

	path, err := sm.storage.Resolve(name)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()

	// Check-and-reserve the destination so two sessions can never hold
	// a sink to the same path.
	sm.mu.Lock()
	if _, busy := sm.claimed[path]; busy {
		sm.mu.Unlock()
		return nil, &DestinationBusyError{Name: name}
	}
	sm.claimed[path] = sessionID
	sm.mu.Unlock()

	sink, err := sm.storage.OpenSink(path)
	if err != nil {
		sm.mu.Lock()
		delete(sm.claimed, path)
		sm.mu.Unlock()
		return nil, err
	}

	session := &UploadSession{
		ID:           sessionID,
		Name:         name,
		Path:         path,
		DeclaredSize: declaredSize,
		sink:         sink,
		lastUpdate:   time.Now(),
	}

	if declaredSize == 0 {
		sink.Close()
		session.closed = true
		sm.mu.Lock()
		delete(sm.claimed, path)
		sm.mu.Unlock()
		if sm.recorder != nil {
			sm.recorder.RecordTransfer(sessionID, name, path, 0, StatusCompleted)
		}
		log.Info().
			Str("session_id", sessionID).
			Str("filename", name).
			Msg("zero-size upload completed on init")
		return session, nil
	}

	sm.mu.Lock()
	sm.sessions[sessionID] = session
	sm.mu.Unlock()

	log.Info().
		Str("session_id", sessionID).
		Str("filename", name).
		Uint64("declared_size", declaredSize).
		Msg("started upload session")

	return session, nil
}

// AppendChunk writes the next ordered chunk to the session's sink and
// advances its byte counter. When the counter reaches the declared
// size the sink is flushed and closed and the session is retired in
// the same call. Returns the updated byte count and progress percent.
func (sm *SessionManager) AppendChunk(sessionID string, chunk io.Reader) (uint64, int, error) {
	sm.mu.RLock()
	session := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if session == nil {
		return 0, 0, ErrSessionNotFound
	}

	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return 0, 0, ErrSessionNotFound
	}

	written, err := io.Copy(session.sink, chunk)
	session.BytesReceived += uint64(written)
	session.lastUpdate = time.Now()
	received := session.BytesReceived

	if err != nil {
		// The session stays live so the client can retry or cancel.
		session.mu.Unlock()
		log.Error().Err(err).
			Str("session_id", sessionID).
			Uint64("bytes_received", received).
			Msg("chunk write failed")
		return received, progressOf(received, session.DeclaredSize), fmt.Errorf("failed to write chunk: %w", err)
	}

	done := received >= session.DeclaredSize
	if done {
		if err := session.sink.Sync(); err != nil {
			session.mu.Unlock()
			return received, progressOf(received, session.DeclaredSize), fmt.Errorf("failed to sync destination file: %w", err)
		}
		if err := session.sink.Close(); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to close destination file")
		}
		session.closed = true
	}
	session.mu.Unlock()

	if done {
		sm.retire(session)
		if sm.recorder != nil {
			sm.recorder.RecordTransfer(session.ID, session.Name, session.Path, received, StatusCompleted)
		}
		log.Info().
			Str("session_id", sessionID).
			Str("filename", session.Name).
			Uint64("size", received).
			Msg("completed upload session")
		return received, 100, nil
	}

	log.Debug().
		Str("session_id", sessionID).
		Int64("chunk_size", written).
		Uint64("bytes_received", received).
		Msg("appended chunk to upload session")

	return received, progressOf(received, session.DeclaredSize), nil
}

// Cancel closes the session's sink, deletes the partial file
// best-effort and retires the session. Cancelling an unknown id is a
// no-op so client cleanup stays idempotent.
func (sm *SessionManager) Cancel(sessionID string) {
	sm.mu.Lock()
	session := sm.sessions[sessionID]
	if session != nil {
		delete(sm.sessions, sessionID)
		delete(sm.claimed, session.Path)
	}
	sm.mu.Unlock()

	if session == nil {
		log.Debug().Str("session_id", sessionID).Msg("cancel for unknown upload session")
		return
	}

	session.mu.Lock()
	if session.closed {
		// Lost a race with completion; the file is final, leave it.
		session.mu.Unlock()
		return
	}
	session.sink.Close()
	session.closed = true
	received := session.BytesReceived
	session.mu.Unlock()

	if err := sm.storage.Remove(session.Path); err != nil {
		log.Warn().Err(err).
			Str("session_id", sessionID).
			Str("filename", session.Name).
			Msg("failed to delete partial file")
	}

	if sm.recorder != nil {
		sm.recorder.RecordTransfer(session.ID, session.Name, session.Path, received, StatusCancelled)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("filename", session.Name).
		Uint64("bytes_received", received).
		Msg("cancelled upload session")
}

// Status reports the current progress of a live session.
func (sm *SessionManager) Status(sessionID string) (Progress, error) {
	sm.mu.RLock()
	session := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if session == nil {
		return Progress{}, ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.closed {
		return Progress{}, ErrSessionNotFound
	}
	return Progress{
		Name:          session.Name,
		DeclaredSize:  session.DeclaredSize,
		BytesReceived: session.BytesReceived,
		Percent:       progressOf(session.BytesReceived, session.DeclaredSize),
	}, nil
}

// Active returns the number of live sessions.
func (sm *SessionManager) Active() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Claimed reports whether a resolved destination path is held by a
// live session.
func (sm *SessionManager) Claimed(path string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, busy := sm.claimed[path]
	return busy
}

// StartReaper launches the background sweep that cancels sessions idle
// past ttl. Stop it with Close.
func (sm *SessionManager) StartReaper(interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sm.sweepIdle(ttl)
			case <-sm.stop:
				return
			}
		}
	}()
}

// Close stops the reaper. Live sessions are left to their clients.
func (sm *SessionManager) Close() {
	sm.once.Do(func() { close(sm.stop) })
}

// sweepIdle cancels every session whose last chunk arrived before the
// ttl cutoff.
func (sm *SessionManager) sweepIdle(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)

	sm.mu.RLock()
	var expired []string
	for sessionID, session := range sm.sessions {
		session.mu.Lock()
		idle := session.lastUpdate.Before(cutoff)
		session.mu.Unlock()
		if idle {
			expired = append(expired, sessionID)
		}
	}
	sm.mu.RUnlock()

	for _, sessionID := range expired {
		sm.Cancel(sessionID)
		log.Info().Str("session_id", sessionID).Msg("reaped idle upload session")
	}

	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("reaped idle upload sessions")
	}
}

// retire removes a finished session from the table and releases its
// destination claim. Safe to call for an already-removed session.
func (sm *SessionManager) retire(session *UploadSession) {
	sm.mu.Lock()
	if _, ok := sm.sessions[session.ID]; ok {
		delete(sm.sessions, session.ID)
		delete(sm.claimed, session.Path)
	}
	sm.mu.Unlock()
}

// progressOf computes a rounded integer percentage. Callers guarantee
// declared is nonzero.
func progressOf(received, declared uint64) int {
	if received >= declared {
		return 100
	}
	return int(math.Round(float64(received) / float64(declared) * 100))
}
