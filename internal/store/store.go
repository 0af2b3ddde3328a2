package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	compilesFile = "compiles.json"
	uploadsFile  = "uploads.json"
	monitorsFile = "monitors.json"
	cleanupsFile = "cleanups.json"
)

// Store manages persistence of operation records and serial captures.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates a Store rooted at the given directory (typically .benchlab/).
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

func (s *Store) historyDir() string {
	return filepath.Join(s.root, "history")
}

func (s *Store) logsDir() string {
	return filepath.Join(s.root, "logs")
}

// AddCompile appends a compile record.
func (s *Store) AddCompile(r CompileRecord) error {
	return s.appendRecord(compilesFile, r)
}

// AddUpload appends an upload record.
func (s *Store) AddUpload(r UploadRecord) error {
	return s.appendRecord(uploadsFile, r)
}

// AddMonitor appends a monitor record.
func (s *Store) AddMonitor(r MonitorRecord) error {
	return s.appendRecord(monitorsFile, r)
}

// AddCleanup appends a cleanup record.
func (s *Store) AddCleanup(r CleanupRecord) error {
	return s.appendRecord(cleanupsFile, r)
}

// Compiles returns all compile records.
func (s *Store) Compiles() ([]CompileRecord, error) {
	var records []CompileRecord
	err := s.loadRecords(compilesFile, &records)
	return records, err
}

// Uploads returns all upload records.
func (s *Store) Uploads() ([]UploadRecord, error) {
	var records []UploadRecord
	err := s.loadRecords(uploadsFile, &records)
	return records, err
}

// Monitors returns all monitor records.
func (s *Store) Monitors() ([]MonitorRecord, error) {
	var records []MonitorRecord
	err := s.loadRecords(monitorsFile, &records)
	return records, err
}

// Cleanups returns all cleanup records.
func (s *Store) Cleanups() ([]CleanupRecord, error) {
	var records []CleanupRecord
	err := s.loadRecords(cleanupsFile, &records)
	return records, err
}

// History loads every record kind.
func (s *Store) History() (History, error) {
	var h History
	var err error
	if h.Compiles, err = s.Compiles(); err != nil {
		return h, err
	}
	if h.Uploads, err = s.Uploads(); err != nil {
		return h, err
	}
	if h.Monitors, err = s.Monitors(); err != nil {
		return h, err
	}
	h.Cleanups, err = s.Cleanups()
	return h, err
}

// LogsDir returns the path to the logs directory, creating it if needed.
func (s *Store) LogsDir() (string, error) {
	dir := s.logsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// SaveCapture writes serial output to logs/<board>-<timestamp>.log and
// returns the file path.
func (s *Store) SaveCapture(board string, at time.Time, output string) (string, error) {
	dir, err := s.LogsDir()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.log", sanitize(board), at.UTC().Format("20060102T150405.000"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

func (s *Store) appendRecord(filename string, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.historyDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(dir, filename)

	// Read existing records
	var records []json.RawMessage
	if data, err := os.ReadFile(path); err == nil {
		json.Unmarshal(data, &records)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	records = append(records, raw)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) loadRecords(filename string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.historyDir(), filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, dest)
}
