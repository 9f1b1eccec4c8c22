package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/evidenced/internal/sanitize"
	"go.uber.org/zap"
)

// TurnStore persists a session's turn sequence across restarts. Load runs
// at session start; Flush runs after each completed turn.
type TurnStore interface {
	Load(ctx context.Context, sessionID string) ([]Turn, error)
	Flush(ctx context.Context, sessionID string, turns []Turn) error
}

// FileStore keeps one JSONL file per session, one turn per line.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// path maps a session ID to its history file. IDs are sanitized so callers
// cannot escape the store directory.
func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sanitize.Identifier(sessionID)+".jsonl")
}

// Load reads a session's turn sequence. A missing file yields an empty
// history, not an error.
func (s *FileStore) Load(_ context.Context, sessionID string) ([]Turn, error) {
	f, err := os.Open(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	defer f.Close()

	var turns []Turn
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var turn Turn
		if err := json.Unmarshal(scanner.Bytes(), &turn); err != nil {
			return nil, fmt.Errorf("parsing history line %d: %w", line, err)
		}
		turns = append(turns, turn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	s.logger.Debug("session history loaded",
		zap.String("session_id", sessionID),
		zap.Int("turns", len(turns)),
	)
	return turns, nil
}

// Flush writes the full turn sequence atomically: a temp file in the same
// directory is renamed over the target so readers never see a partial
// history.
func (s *FileStore) Flush(_ context.Context, sessionID string, turns []Turn) error {
	target := s.path(sessionID)

	tmp, err := os.CreateTemp(s.dir, ".flush-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, turn := range turns {
		if err := enc.Encode(turn); err != nil {
			tmp.Close()
			return fmt.Errorf("encoding turn: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing turns: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("replacing history: %w", err)
	}
	return nil
}
