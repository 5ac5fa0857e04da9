package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cvperfect/SessionService/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	indexDirName = "email-index"
	fileExt      = ".json"
)

// FileStore keeps one JSON file per session in a root directory and one
// file per email hash in its email-index/ subdirectory:
//
//	.sessions/
//	  cs_test_a1b2c3.json
//	  email-index/
//	    5d41402abc4b2a76.json
//
// Directories are created lazily on the first write. Files are written to
// a temp file in the same directory and renamed into place, so a reader
// never sees a partially written session.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at dir. Nothing is touched on disk
// until the first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Root returns the session directory.
func (f *FileStore) Root() string {
	return f.root
}

// Ping verifies that the root directory is usable. A root that does not
// exist yet is healthy; it will be created on the first save.
func (f *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(f.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat session directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("session path %s is not a directory", f.root)
	}
	return nil
}

// Close is a no-op; FileStore holds no open handles.
func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) sessionPath(sessionID string) (string, error) {
	if err := checkFileKey(sessionID); err != nil {
		return "", err
	}
	return filepath.Join(f.root, sessionID+fileExt), nil
}

func (f *FileStore) indexPath(emailHash string) (string, error) {
	if err := checkFileKey(emailHash); err != nil {
		return "", err
	}
	return filepath.Join(f.root, indexDirName, emailHash+fileExt), nil
}

// checkFileKey rejects keys that would escape the store directory.
func checkFileKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}

// SaveSession atomically replaces the session file.
func (f *FileStore) SaveSession(ctx context.Context, session *models.Session) error {
	path, err := f.sessionPath(session.SessionID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession reads a session file. Returns ErrNotFound if absent.
func (f *FileStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	path, err := f.sessionPath(sessionID)
	if err != nil {
		return nil, err
	}

	var session models.Session
	if err := readJSON(path, &session); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// DeleteSession removes a session file; a missing file is not an error.
func (f *FileStore) DeleteSession(ctx context.Context, sessionID string) error {
	path, err := f.sessionPath(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListSessions reads every session file in the root directory. Unreadable
// or undecodable files are logged and skipped; leftover temp files and the
// index directory are ignored.
func (f *FileStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session
	err := forEachJSON(ctx, f.root, func(path string) {
		var session models.Session
		if err := readJSON(path, &session); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable session file")
			return
		}
		sessions = append(sessions, &session)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// SetEmailIndex atomically writes the entry file named after the hash.
func (f *FileStore) SetEmailIndex(ctx context.Context, entry *models.EmailIndexEntry) error {
	path, err := f.indexPath(entry.EmailHash)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode email index: %w", err)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to set email index: %w", err)
	}
	return nil
}

// GetEmailIndex returns the entry for a hash or ErrNotFound.
func (f *FileStore) GetEmailIndex(ctx context.Context, emailHash string) (*models.EmailIndexEntry, error) {
	path, err := f.indexPath(emailHash)
	if err != nil {
		return nil, err
	}

	var entry models.EmailIndexEntry
	if err := readJSON(path, &entry); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("email index %s: %w", emailHash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get email index: %w", err)
	}
	return &entry, nil
}

// DeleteEmailIndex removes the entry file; a missing file is not an error.
func (f *FileStore) DeleteEmailIndex(ctx context.Context, emailHash string) error {
	path, err := f.indexPath(emailHash)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete email index: %w", err)
	}
	return nil
}

// ListEmailIndexes returns every entry. Corrupted files are returned with
// only EmailHash set so cleanup removes them as orphans.
func (f *FileStore) ListEmailIndexes(ctx context.Context) ([]*models.EmailIndexEntry, error) {
	var entries []*models.EmailIndexEntry
	err := forEachJSON(ctx, filepath.Join(f.root, indexDirName), func(path string) {
		var entry models.EmailIndexEntry
		if err := readJSON(path, &entry); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Corrupted email index file")
			entry = models.EmailIndexEntry{}
		}
		entry.EmailHash = strings.TrimSuffix(filepath.Base(path), fileExt)
		entries = append(entries, &entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list email indexes: %w", err)
	}
	return entries, nil
}

// forEachJSON calls fn for every *.json regular file directly inside dir.
// A missing dir yields nothing.
func forEachJSON(ctx context.Context, dir string, fn func(path string)) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != fileExt || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fn(filepath.Join(dir, e.Name()))
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeFileAtomic writes data to a hidden temp file next to path, syncs it
// and renames it over path. Parent directories are created as needed.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
