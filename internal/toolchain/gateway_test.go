package toolchain

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/buckleypaul/benchlab/internal/board"
)

// buildArtifactOnCompile mimics arduino-cli writing the hex into --build-path.
func buildArtifactOnCompile(t *testing.T) func(string, []string) {
	return func(name string, args []string) {
		if len(args) == 0 || args[0] != "compile" {
			return
		}
		for i, a := range args {
			if a == "--build-path" && i+1 < len(args) {
				writeFile(t, filepath.Join(args[i+1], SketchName+".ino.hex"), ":00000001FF\n")
			}
		}
	}
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestCompileWritesSketchIntoPerBoardDirs(t *testing.T) {
	ws := Workspace{Root: t.TempDir()}
	runner := &fakeRunner{onRun: buildArtifactOnCompile(t)}
	g := NewGateway(testRegistry(t, nil), ws, nil, WithRunner(runner))

	res, err := g.Compile(context.Background(), "Board_2", "void setup(){}\nvoid loop(){}\n")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected clean compile, got %+v", res)
	}

	src, err := os.ReadFile(ws.SketchFile("Board_2"))
	if err != nil {
		t.Fatalf("sketch not written: %v", err)
	}
	if !strings.Contains(string(src), "void loop") {
		t.Fatalf("unexpected sketch content %q", src)
	}

	call := runner.lastCall(t)
	if call.name != ToolArduinoCLI {
		t.Errorf("tool = %s, want %s", call.name, ToolArduinoCLI)
	}
	if got := argValue(call.args, "--fqbn"); got != "arduino:avr:uno" {
		t.Errorf("fqbn = %q", got)
	}
	if got := argValue(call.args, "--build-path"); got != ws.BuildDir("Board_2") {
		t.Errorf("build path = %q, want %q", got, ws.BuildDir("Board_2"))
	}
	if got := argValue(call.args, "--build-cache-path"); got != ws.CacheDir("Board_2") {
		t.Errorf("cache path = %q, want %q", got, ws.CacheDir("Board_2"))
	}
	if last := call.args[len(call.args)-1]; last != ws.SketchDir("Board_2") {
		t.Errorf("sketch dir = %q", last)
	}
}

func TestCompileDiagnosticsAreNotErrors(t *testing.T) {
	ws := Workspace{Root: t.TempDir()}
	runner := &fakeRunner{result: Result{
		Stderr:   "temp_sketch.ino:3:1: error: expected ';' before '}' token\n",
		ExitCode: 1,
	}}
	g := NewGateway(testRegistry(t, nil), ws, nil, WithRunner(runner))

	res, err := g.Compile(context.Background(), "Board_1", "void loop(){ int x }")
	if err != nil {
		t.Fatalf("diagnostics must not be an error: %v", err)
	}
	if res.OK() {
		t.Fatal("expected failed compile")
	}
	if !strings.Contains(res.Errors, "expected ';'") {
		t.Fatalf("diagnostics not passed through verbatim: %q", res.Errors)
	}
	if _, err := g.ResolveArtifact("Board_1", TargetUser); !errors.Is(err, ErrArtifactMissing) {
		t.Fatalf("failed compile must not provide a user artifact, got %v", err)
	}
}

func TestCompileNonZeroExitWithoutStderr(t *testing.T) {
	runner := &fakeRunner{result: Result{ExitCode: 2}}
	g := NewGateway(testRegistry(t, nil), Workspace{Root: t.TempDir()}, nil, WithRunner(runner))

	res, err := g.Compile(context.Background(), "Board_1", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Errors, "exited with status 2") {
		t.Fatalf("expected synthesized diagnostic, got %q", res.Errors)
	}
}

func TestCompileToolMissing(t *testing.T) {
	runner := &fakeRunner{
		result: Result{Stderr: "exec: \"arduino-cli\": executable file not found in $PATH\n", ExitCode: -1},
		err:    ErrToolInvocationFailed,
	}
	g := NewGateway(testRegistry(t, nil), Workspace{Root: t.TempDir()}, nil, WithRunner(runner))

	res, err := g.Compile(context.Background(), "Board_1", "")
	if !errors.Is(err, ErrToolInvocationFailed) {
		t.Fatalf("expected ErrToolInvocationFailed, got %v", err)
	}
	if !res.ToolFailed || res.Errors == "" {
		t.Fatalf("expected flagged result with text, got %+v", res)
	}
}

func TestCompileUnknownBoard(t *testing.T) {
	g := NewGateway(testRegistry(t, nil), Workspace{Root: t.TempDir()}, nil, WithRunner(&fakeRunner{}))
	if _, err := g.Compile(context.Background(), "Board_9", ""); !errors.Is(err, board.ErrUnknownBoard) {
		t.Fatalf("expected ErrUnknownBoard, got %v", err)
	}
}

func TestUploadStopUsesSharedArtifact(t *testing.T) {
	ws := Workspace{Root: t.TempDir()}
	stop := filepath.Join(ws.PrecompiledDir(), "stop.arduino.avr.uno.hex")
	writeFile(t, stop, ":00000001FF\n")

	runner := &fakeRunner{onRun: buildArtifactOnCompile(t)}
	g := NewGateway(testRegistry(t, nil), ws, nil, WithRunner(runner))

	// A prior compile must not change what stop resolves to.
	if _, err := g.Compile(context.Background(), "Board_1", "void loop(){}"); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"Board_1", "Board_2"} {
		res, err := g.Upload(context.Background(), id, TargetStop)
		if err != nil {
			t.Fatalf("Upload(%s): %v", id, err)
		}
		if res.Artifact != stop {
			t.Errorf("%s stop artifact = %q, want %q", id, res.Artifact, stop)
		}
		call := runner.lastCall(t)
		if got := argValue(call.args, "--input-file"); got != stop {
			t.Errorf("%s uploaded %q", id, got)
		}
	}
}

func TestUploadUserUsesOwnBuild(t *testing.T) {
	ws := Workspace{Root: t.TempDir()}
	runner := &fakeRunner{onRun: buildArtifactOnCompile(t)}
	g := NewGateway(testRegistry(t, nil), ws, nil, WithRunner(runner))

	for _, id := range []string{"Board_1", "Board_2"} {
		if _, err := g.Compile(context.Background(), id, "void loop(){}"); err != nil {
			t.Fatal(err)
		}
	}

	for _, id := range []string{"Board_1", "Board_2"} {
		res, err := g.Upload(context.Background(), id, TargetUser)
		if err != nil {
			t.Fatalf("Upload(%s): %v", id, err)
		}
		want := filepath.Join(ws.BuildDir(id), SketchName+".ino.hex")
		if res.Artifact != want {
			t.Errorf("%s user artifact = %q, want %q", id, res.Artifact, want)
		}
	}
}

func TestUploadUserWithoutCompileReportsDiagnostic(t *testing.T) {
	runner := &fakeRunner{}
	g := NewGateway(testRegistry(t, nil), Workspace{Root: t.TempDir()}, nil, WithRunner(runner))

	res, err := g.Upload(context.Background(), "Board_1", TargetUser)
	if err != nil {
		t.Fatalf("missing artifact is a diagnostic, not an error: %v", err)
	}
	if res.OK() || !strings.Contains(res.Errors, "no successful compilation") {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("uploader must not run without an artifact")
	}
}

func TestUploadRefreshesDeviceHandle(t *testing.T) {
	ws := Workspace{Root: t.TempDir()}
	writeFile(t, filepath.Join(ws.PrecompiledDir(), "stop.arduino.avr.uno.hex"), "x")

	res := &fakeResolver{handles: map[string]string{"Board_1": "ttyACM0", "Board_2": "ttyACM1"}}
	runner := &fakeRunner{}
	g := NewGateway(testRegistry(t, res), ws, nil, WithRunner(runner))

	res.set("Board_1", "ttyACM4")
	out, err := g.Upload(context.Background(), "Board_1", TargetStop)
	if err != nil {
		t.Fatal(err)
	}
	if out.Device != "/dev/ttyACM4" {
		t.Fatalf("device = %q, want re-resolved /dev/ttyACM4", out.Device)
	}
	if got := argValue(runner.lastCall(t).args, "-p"); got != "/dev/ttyACM4" {
		t.Fatalf("uploader got port %q", got)
	}
}

func TestMonitorCaptureUsesCurrentHandle(t *testing.T) {
	res := &fakeResolver{handles: map[string]string{"Board_1": "ttyACM7", "Board_2": "ttyACM1"}}
	term := &fakeTerminal{feed: func(w *io.PipeWriter) {
		w.Write([]byte("Hello from UNO\n"))
		w.Close()
	}}
	g := NewGateway(testRegistry(t, res), Workspace{Root: t.TempDir()}, nil, WithTerminal(term))

	out, err := g.MonitorCapture(context.Background(), "Board_1", 9600, time.Second)
	if err != nil {
		t.Fatalf("MonitorCapture: %v", err)
	}
	if out.Output != "Hello from UNO\n" {
		t.Fatalf("output = %q", out.Output)
	}
	if out.TimedOut {
		t.Fatal("tool exited on its own; capture should not be marked timed out")
	}
	spec := term.specs[0]
	if spec.Device != "/dev/ttyACM7" || spec.BaudRate != 9600 {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if got := argValue(spec.Args, "--config"); got != "baudrate=9600" {
		t.Fatalf("monitor args %v", spec.Args)
	}
}

func TestPowerCycleArgs(t *testing.T) {
	runner := &fakeRunner{}
	g := NewGateway(testRegistry(t, nil), Workspace{Root: t.TempDir()}, nil, WithRunner(runner), WithPowerHub("1-1", 2))
	if _, err := g.PowerCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	call := runner.lastCall(t)
	if call.name != ToolUhubctl || strings.Join(call.args, " ") != "-a cycle -l 1-1 -d 2" {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestParseTarget(t *testing.T) {
	if got, err := ParseTarget(" Stop "); err != nil || got != TargetStop {
		t.Fatalf("ParseTarget(stop) = %q, %v", got, err)
	}
	if got, err := ParseTarget("user"); err != nil || got != TargetUser {
		t.Fatalf("ParseTarget(user) = %q, %v", got, err)
	}
	if _, err := ParseTarget("reboot"); err == nil {
		t.Fatal("expected error for unknown target")
	}
}
