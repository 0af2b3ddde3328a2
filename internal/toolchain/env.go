package toolchain

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Tool names used by the gateway.
const (
	ToolArduinoCLI = "arduino-cli"
	ToolUhubctl    = "uhubctl"
	ToolDmesg      = "dmesg"
)

// Env holds the environment external tools run with.
// A nil *Env runs tools from the parent PATH with the parent environment.
type Env struct {
	tools   map[string]string
	environ []string
	dir     string
}

// NewEnv builds an Env. Tool lookup order for each tool:
// explicit override in tools → binDir → system PATH.
// binDir, when set, is also prepended to PATH for child processes.
// vars are extra KEY=VALUE pairs appended to the environment.
func NewEnv(binDir string, tools map[string]string, vars map[string]string) *Env {
	e := &Env{tools: make(map[string]string)}

	base := os.Environ()
	if binDir != "" {
		base = buildEnvWithPath(base, binDir)
	}
	if len(vars) > 0 {
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			base = setEnv(base, k, vars[k])
		}
	}
	e.environ = base

	for _, name := range []string{ToolArduinoCLI, ToolUhubctl, ToolDmesg} {
		if p := tools[name]; p != "" {
			e.tools[name] = p
			continue
		}
		if binDir == "" {
			continue
		}
		candidate := filepath.Join(binDir, exeName(name))
		if _, err := os.Stat(candidate); err == nil {
			e.tools[name] = candidate
		}
	}
	return e
}

// SetDir sets the working directory for child processes.
func (e *Env) SetDir(dir string) {
	if e != nil {
		e.dir = dir
	}
}

// Resolve returns the executable to run for a tool name.
func (e *Env) Resolve(name string) string {
	if e == nil {
		return name
	}
	if p, ok := e.tools[name]; ok {
		return p
	}
	return name
}

// LookPath reports where a tool would be found, or an error when it is
// not installed.
func (e *Env) LookPath(name string) (string, error) {
	return exec.LookPath(e.Resolve(name))
}

// Environ returns the environment for child processes. Nil means inherit.
func (e *Env) Environ() []string {
	if e == nil {
		return nil
	}
	return e.environ
}

// exeName returns the executable file name for the current OS.
func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// buildEnvWithPath returns a copy of env with binDir prepended to PATH.
func buildEnvWithPath(env []string, binDir string) []string {
	result := make([]string, 0, len(env)+1)
	pathSet := false

	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			result = append(result, "PATH="+binDir+string(os.PathListSeparator)+e[5:])
			pathSet = true
		} else {
			result = append(result, e)
		}
	}

	if !pathSet {
		result = append(result, "PATH="+binDir)
	}
	return result
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// apply sets the environment and working directory on an exec.Cmd.
func (e *Env) apply(cmd *exec.Cmd) {
	if e == nil {
		return
	}
	if e.environ != nil {
		cmd.Env = e.environ
	}
	if e.dir != "" {
		cmd.Dir = e.dir
	}
}
