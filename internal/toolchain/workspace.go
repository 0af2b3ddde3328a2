package toolchain

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/buckleypaul/benchlab/internal/board"
)

// SketchName is the fixed name of the scratch sketch compiled for each board.
const SketchName = "temp_sketch"

// ArtifactExtensions lists the binary formats arduino-cli produces that the
// uploader accepts, in preference order.
var ArtifactExtensions = []string{".hex", ".bin", ".uf2"}

// Workspace is the on-disk layout of a lab session:
//
//	<root>/compilations/<board>/{build,cache,temp_sketch}
//	<root>/compilations/precompiled/stop.<platform>.hex
//
// Each board owns its own directories, so builds for different boards never
// share mutable state.
type Workspace struct {
	Root string
}

// WorkspaceHealth reports what is missing before a session can run.
type WorkspaceHealth struct {
	Tools                []ToolCheck
	MissingStopArtifacts []string // platforms without a stop artifact
	Writable             bool
}

// OK reports whether every required tool, every stop artifact and a writable
// root are present.
func (h WorkspaceHealth) OK() bool {
	if !h.Writable || len(h.MissingStopArtifacts) > 0 {
		return false
	}
	for _, t := range h.Tools {
		if t.Required && !t.OK() {
			return false
		}
	}
	return true
}

// CompilationsDir returns <root>/compilations.
func (w Workspace) CompilationsDir() string {
	return filepath.Join(w.Root, "compilations")
}

// BoardDir returns the directory owned by one board.
func (w Workspace) BoardDir(id string) string {
	return filepath.Join(w.CompilationsDir(), id)
}

// BuildDir returns the board's build output directory.
func (w Workspace) BuildDir(id string) string {
	return filepath.Join(w.BoardDir(id), "build")
}

// CacheDir returns the board's core cache directory.
func (w Workspace) CacheDir(id string) string {
	return filepath.Join(w.BoardDir(id), "cache")
}

// SketchDir returns the board's scratch sketch directory.
func (w Workspace) SketchDir(id string) string {
	return filepath.Join(w.BoardDir(id), SketchName)
}

// SketchFile returns the scratch sketch source file.
func (w Workspace) SketchFile(id string) string {
	return filepath.Join(w.SketchDir(id), SketchName+".ino")
}

// PrecompiledDir returns the directory holding the stop firmware.
func (w Workspace) PrecompiledDir() string {
	return filepath.Join(w.CompilationsDir(), "precompiled")
}

// ExamplesDir returns the directory with the example sketches.
func (w Workspace) ExamplesDir() string {
	return filepath.Join(w.Root, "examples")
}

// StopArtifact returns the shared stop firmware for a platform, trying each
// known extension. ok is false when none exists.
func (w Workspace) StopArtifact(cfg board.Config) (path string, ok bool) {
	return findArtifact(w.PrecompiledDir(), "stop."+cfg.Platform())
}

// BuildArtifact returns the binary produced by the last compile of a board.
func (w Workspace) BuildArtifact(id string) (path string, ok bool) {
	return findArtifact(w.BuildDir(id), SketchName+".ino")
}

func findArtifact(dir, base string) (string, bool) {
	for _, ext := range ArtifactExtensions {
		p := filepath.Join(dir, base+ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return filepath.Join(dir, base+ArtifactExtensions[0]), false
}

// Prepare creates the per-board directories.
func (w Workspace) Prepare(ids []string) error {
	for _, id := range ids {
		for _, dir := range []string{w.BuildDir(id), w.CacheDir(id), w.SketchDir(id)} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("prepare %s: %w", id, err)
			}
		}
	}
	return os.MkdirAll(w.PrecompiledDir(), 0o755)
}

// CheckHealth checks tools, stop artifacts and that the root is writable.
func (w Workspace) CheckHealth(env *Env, boards []board.Config) WorkspaceHealth {
	health := WorkspaceHealth{Tools: Preflight(env)}

	seen := make(map[string]bool)
	for _, b := range boards {
		platform := b.Platform()
		if seen[platform] {
			continue
		}
		seen[platform] = true
		if _, ok := w.StopArtifact(b); !ok {
			health.MissingStopArtifacts = append(health.MissingStopArtifacts, platform)
		}
	}

	if err := os.MkdirAll(w.Root, 0o755); err == nil {
		f, err := os.CreateTemp(w.Root, ".write-check-*")
		if err == nil {
			name := f.Name()
			f.Close()
			os.Remove(name)
			health.Writable = true
		}
	}
	return health
}
