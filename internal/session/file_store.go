package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonathan/b2b-content-agent/internal/types"
)

const filePrefix = "session_"

// FileStore keeps one JSON document per session in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("session directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the session directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the snapshot path for a session id.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, filePrefix+id+".json")
}

// Save writes the session to a temp file in the same directory, syncs it and
// renames it over the previous snapshot.
func (s *FileStore) Save(ctx context.Context, sess *types.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidID(sess.ID) {
		return fmt.Errorf("invalid session id %q", sess.ID)
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+filePrefix+sess.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write session %s: %w", sess.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync session %s: %w", sess.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session %s: %w", sess.ID, err)
	}
	if err := os.Rename(tmpPath, s.Path(sess.ID)); err != nil {
		return fmt.Errorf("failed to replace session %s: %w", sess.ID, err)
	}
	tmpPath = ""
	return nil
}

// Load reads and validates a session snapshot.
func (s *FileStore) Load(ctx context.Context, id string) (*types.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}

	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	return Decode(id, data)
}

// List summarizes every stored session, most recently updated first. Sessions
// that fail validation are listed with Error set.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".json")
		sess, err := s.Load(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[SESSION] %s unreadable: %v", id, err)
			out = append(out, Summary{ID: id, Error: err.Error()})
			continue
		}
		out = append(out, summarize(sess))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}
