//go:build integration

package integration

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/toolchain"
)

const blink = `void setup() {
  pinMode(LED_BUILTIN, OUTPUT);
}

void loop() {
  digitalWrite(LED_BUILTIN, HIGH);
  delay(500);
  digitalWrite(LED_BUILTIN, LOW);
  delay(500);
}
`

// fqbn returns the board to compile for from the environment, or skips the
// test if it is not set.
func fqbn(t *testing.T) string {
	t.Helper()
	v := os.Getenv("BENCHLAB_FQBN")
	if v == "" {
		t.Skip("BENCHLAB_FQBN not set; skipping integration tests")
	}
	return v
}

// gateway builds a gateway around one fake-attached board so compiles can run
// against the real arduino-cli without hardware.
func gateway(t *testing.T, fqbn string) *toolchain.Gateway {
	t.Helper()
	b := board.Board{
		Config:       board.Config{ID: "Board_1", Name: "bench", FQBN: fqbn, USBPort: "2"},
		SerialNumber: "integration",
		Handle:       "ttyACM0",
	}
	registry, err := board.NewRegistry([]board.Board{b}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ws := toolchain.Workspace{Root: t.TempDir()}
	if err := ws.Prepare(registry.IDs()); err != nil {
		t.Fatal(err)
	}
	env := toolchain.NewEnv(os.Getenv("BENCHLAB_BIN_DIR"), nil, nil)
	return toolchain.NewGateway(registry, ws, env)
}

// TestIntegrationCompileBlink compiles a known-good sketch with the real
// arduino-cli and expects no diagnostics.
func TestIntegrationCompileBlink(t *testing.T) {
	g := gateway(t, fqbn(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := g.Compile(ctx, "Board_1", blink)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	t.Logf("arduino-cli output:\n%s", res.Output)
	if !res.OK() {
		t.Fatalf("compile failed with exit code %d:\n%s", res.ExitCode, res.Errors)
	}

	artifact, err := g.ResolveArtifact("Board_1", toolchain.TargetUser)
	if err != nil {
		t.Fatalf("ResolveArtifact: %v", err)
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("artifact %s: %v", artifact, err)
	}
}

// TestIntegrationCompileSyntaxError expects arduino-cli diagnostics to be
// returned as data rather than an error.
func TestIntegrationCompileSyntaxError(t *testing.T) {
	g := gateway(t, fqbn(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := g.Compile(ctx, "Board_1", strings.Replace(blink, "OUTPUT);", "OUTPUT)", 1))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.OK() {
		t.Fatal("expected diagnostics for a broken sketch")
	}
	if res.Errors == "" {
		t.Fatal("expected non-empty error text")
	}
}

// TestIntegrationListAttached runs arduino-cli board list. It only checks that
// the tool answers; the bench may have nothing plugged in.
func TestIntegrationListAttached(t *testing.T) {
	fqbn(t)
	env := toolchain.NewEnv(os.Getenv("BENCHLAB_BIN_DIR"), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	boards, err := toolchain.ListAttached(ctx, toolchain.OSRunner{Env: env})
	if err != nil {
		t.Fatalf("ListAttached: %v", err)
	}
	t.Logf("attached boards: %+v", boards)
}
