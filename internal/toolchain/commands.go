package toolchain

import (
	"fmt"
	"strconv"
)

// CompileArgs returns the arduino-cli arguments that build sketchDir for
// fqbn with isolated build and cache directories.
func CompileArgs(fqbn, buildDir, cacheDir, sketchDir string) []string {
	return []string{
		"compile",
		"--fqbn", fqbn,
		"--build-cache-path", cacheDir,
		"--build-path", buildDir,
		sketchDir,
	}
}

// UploadArgs returns the arduino-cli arguments that flash artifact to the
// device at devicePath.
func UploadArgs(devicePath, fqbn, artifact string) []string {
	return []string{
		"upload",
		"-p", devicePath,
		"--fqbn", fqbn,
		"--input-file", artifact,
	}
}

// MonitorArgs returns the arduino-cli arguments for a quiet serial monitor.
func MonitorArgs(devicePath string, baudRate int) []string {
	return []string{
		"monitor",
		"-p", devicePath,
		"--quiet",
		"--config", "baudrate=" + strconv.Itoa(baudRate),
	}
}

// BoardListArgs returns the arduino-cli arguments listing attached boards.
func BoardListArgs() []string {
	return []string{"board", "list"}
}

// PowerCycleArgs returns the uhubctl arguments that power-cycle every port
// of hub, keeping power off for delaySeconds.
func PowerCycleArgs(hub string, delaySeconds int) []string {
	return []string{"-a", "cycle", "-l", hub, "-d", strconv.Itoa(delaySeconds)}
}

// ToolCheck is the outcome of looking up one external tool.
type ToolCheck struct {
	Name     string
	Path     string
	Required bool
	Err      error
}

// OK reports whether the tool was found.
func (c ToolCheck) OK() bool { return c.Err == nil }

func (c ToolCheck) String() string {
	if c.OK() {
		return fmt.Sprintf("%s: %s", c.Name, c.Path)
	}
	return fmt.Sprintf("%s: not found (%v)", c.Name, c.Err)
}

// Preflight looks up every tool the lab shells out to.
func Preflight(env *Env) []ToolCheck {
	tools := []struct {
		name     string
		required bool
	}{
		{ToolArduinoCLI, true},
		{ToolDmesg, true},
		{ToolUhubctl, false},
	}
	checks := make([]ToolCheck, 0, len(tools))
	for _, t := range tools {
		p, err := env.LookPath(t.name)
		checks = append(checks, ToolCheck{Name: t.name, Path: p, Required: t.required, Err: err})
	}
	return checks
}
