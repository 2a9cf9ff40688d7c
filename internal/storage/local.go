package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrInvalidName is returned when a declared filename would resolve
// outside the upload root.
var ErrInvalidName = errors.New("invalid file name")

// LocalStorage maps declared filenames to destination paths under a
// single upload root on the local filesystem.
type LocalStorage struct {
	root string
}

// New creates a local storage rooted at root, creating the directory
// if needed. A failure here is fatal for the caller: without a writable
// root the server cannot accept any uploads.
func New(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		log.Error().Err(err).Str("root", root).Msg("failed to create upload root")
		return nil, fmt.Errorf("failed to create upload root: %w", err)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload root: %w", err)
	}

	log.Info().Str("root", abs).Msg("upload root initialized")
	return &LocalStorage{root: abs}, nil
}

// Root returns the absolute upload root directory.
func (ls *LocalStorage) Root() string {
	return ls.root
}

// Resolve maps a declared filename (slash-separated, possibly with
// subdirectories) to an absolute destination path under the root,
// creating intermediate directories. Names that would escape the root
// are rejected with ErrInvalidName.
func (ls *LocalStorage) Resolve(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") {
		return "", ErrInvalidName
	}

	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", ErrInvalidName
	}

	full := filepath.Join(ls.root, clean)
	if full != ls.root && !strings.HasPrefix(full, ls.root+string(filepath.Separator)) {
		return "", ErrInvalidName
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("name", name).Str("dir", dir).Msg("failed to create destination directory")
		return "", fmt.Errorf("failed to create destination directory: %w", err)
	}

	return full, nil
}

// OpenSink opens an exclusive write handle for a resolved destination
// path. An existing file at the path is truncated.
func (ls *LocalStorage) OpenSink(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to open destination file")
		return nil, fmt.Errorf("failed to open destination file: %w", err)
	}
	return f, nil
}

// Remove deletes a destination file. A missing file is not an error so
// cleanup stays idempotent.
func (ls *LocalStorage) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("file already deleted or does not exist")
			return nil
		}
		log.Error().Err(err).Str("path", path).Msg("failed to delete file")
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Store streams content to the destination resolved from name in a
// single shot, used by the whole-file upload path. Returns the resolved
// path and the number of bytes written.
func (ls *LocalStorage) Store(name string, content io.Reader) (string, int64, error) {
	startTime := time.Now()

	path, err := ls.Resolve(name)
	if err != nil {
		return "", 0, err
	}

	sink, err := ls.OpenSink(path)
	if err != nil {
		return "", 0, err
	}

	written, err := io.Copy(sink, content)
	if err != nil {
		sink.Close()
		os.Remove(path)
		log.Error().Err(err).Str("name", name).Msg("failed to write content")
		return "", 0, fmt.Errorf("failed to write content: %w", err)
	}

	if err := sink.Sync(); err != nil {
		sink.Close()
		return "", 0, fmt.Errorf("failed to sync file: %w", err)
	}

	if err := sink.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close file: %w", err)
	}

	log.Info().
		Str("name", name).
		Int64("bytes_written", written).
		Dur("duration", time.Since(startTime)).
		Msg("file stored")

	return path, written, nil
}
