// Package examples serves the example sketches offered in the editor.
package examples

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/buckleypaul/benchlab/internal/logging"
)

// CommonsDir holds the sketches shared by every board.
const CommonsDir = "Commons"

// DefaultName is the display name of the example selected by default.
const DefaultName = "New Sketch"

// ErrNotFound is returned for example files that do not exist.
var ErrNotFound = errors.New("example not found")

// Example is one sketch file.
type Example struct {
	File    string `json:"file"`
	Name    string `json:"name"`
	Default bool   `json:"default,omitempty"`
}

// DisplayName turns New_Sketch.ino into "New Sketch".
func DisplayName(file string) string {
	return strings.ReplaceAll(strings.TrimSuffix(file, ".ino"), "_", " ")
}

// Catalog lists examples from <root>/<board> and <root>/Commons. Listings
// are cached until the directory tree changes.
type Catalog struct {
	root   string
	logger *logging.Logger

	mu    sync.RWMutex
	cache map[string][]Example

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// New creates a catalog over root.
func New(root string, logger *logging.Logger) *Catalog {
	return &Catalog{
		root:   root,
		logger: logging.OrNop(logger).WithComponent("examples"),
		cache:  make(map[string][]Example),
	}
}

// List returns the examples available to a board, sorted by file name. A
// file in the board directory shadows a Commons file of the same name.
func (c *Catalog) List(board string) ([]Example, error) {
	c.mu.RLock()
	cached, ok := c.cache[board]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	seen := make(map[string]bool)
	var list []Example
	for _, dir := range c.dirs(board) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("list examples: %w", err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".ino") || seen[name] {
				continue
			}
			seen[name] = true
			display := DisplayName(name)
			list = append(list, Example{File: name, Name: display, Default: display == DefaultName})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].File < list[j].File })

	c.mu.Lock()
	c.cache[board] = list
	c.mu.Unlock()
	return list, nil
}

// Read returns the source of one example.
func (c *Catalog) Read(board, file string) (string, error) {
	if file == "" || filepath.Base(file) != file || !strings.HasSuffix(file, ".ino") || strings.HasPrefix(file, ".") {
		return "", fmt.Errorf("%w: %q", ErrNotFound, file)
	}
	for _, dir := range c.dirs(board) {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, file)
}

func (c *Catalog) dirs(board string) []string {
	var dirs []string
	if board != "" && filepath.Base(board) == board && board != CommonsDir && !strings.HasPrefix(board, ".") {
		dirs = append(dirs, filepath.Join(c.root, board))
	}
	return append(dirs, filepath.Join(c.root, CommonsDir))
}

// Invalidate drops every cached listing.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string][]Example)
	c.mu.Unlock()
}

// Watch invalidates the cache whenever a file below root changes. It is a
// no-op if root does not exist.
func (c *Catalog) Watch() error {
	if _, err := os.Stat(c.root); os.IsNotExist(err) {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(c.root); err != nil {
		watcher.Close()
		return err
	}
	entries, _ := os.ReadDir(c.root)
	for _, e := range entries {
		if e.IsDir() {
			_ = watcher.Add(filepath.Join(c.root, e.Name()))
		}
	}

	c.watcher = watcher
	c.stopCh = make(chan struct{})
	go c.watchLoop()
	return nil
}

// Close stops watching.
func (c *Catalog) Close() error {
	if c.watcher == nil {
		return nil
	}
	close(c.stopCh)
	return c.watcher.Close()
}

func (c *Catalog) watchLoop() {
	// Editors write a file in several steps; coalesce them.
	debounce := time.NewTimer(0)
	<-debounce.C

	for {
		select {
		case <-c.stopCh:
			return

		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = c.watcher.Add(event.Name)
				}
			}
			debounce.Reset(50 * time.Millisecond)

		case <-debounce.C:
			c.Invalidate()
			c.logger.Debug("examples changed, cache cleared")

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("examples watcher error", "error", err)
		}
	}
}
