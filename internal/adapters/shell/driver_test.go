//go:build unix

package shell_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/oxbridge/internal/adapters/cargo"
	"go.trai.ch/oxbridge/internal/adapters/shell"
	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
	"go.trai.ch/oxbridge/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

const hostTriple = "x86_64-unknown-linux-gnu"

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-cargo")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o700)) //nolint:gosec // test driver must be executable
	return path
}

func newDriver(t *testing.T) *shell.Driver {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	return shell.NewDriver(log, cargo.NewDecoder())
}

func newPlan(program, targetDir string, env ...string) *domain.InvocationPlan {
	return &domain.InvocationPlan{
		Package:      "greet",
		ManifestPath: "/src/greet/Cargo.toml",
		Program:      program,
		Args:         []string{"build", "--target", "aarch64-unknown-linux-gnu"},
		Env:          env,
		Dir:          filepath.Dir(targetDir),
		TargetDir:    targetDir,
		Namespace:    domain.NamespaceTarget,
		TargetTriple: "aarch64-unknown-linux-gnu",
		HostTriple:   hostTriple,
		CacheKey:     "target-0000000000000001",
	}
}

func TestDriver_Run_StreamsEvents(t *testing.T) {
	targetDir := filepath.Join(t.TempDir(), "target")
	program := writeScript(t, `
[ "$1" = "build" ] || exit 9
echo "   Compiling greet v0.1.0" >&2
echo '{"reason":"compiler-artifact","package_id":"greet 0.1.0 (path+file:///src/greet)","target":{"kind":["staticlib"],"name":"greet"},"filenames":["`+targetDir+`/aarch64-unknown-linux-gnu/debug/libgreet.a"]}'
echo '{"reason":"compiler-artifact","package_id":"greet 0.1.0 (path+file:///src/greet)","target":{"kind":["bin"],"name":"greet-gen"},"filenames":["`+targetDir+`/debug/greet-gen"],"executable":"`+targetDir+`/debug/greet-gen"}'
printf '{"reason":"compiler-message","package_id":"greet 0.1.0 (path+file:///src/greet)","message":{"message":"%s","level":"note","rendered":null}}\n' "$GREETING"
echo '{"reason":"build-finished","success":true}'
`)
	driver := newDriver(t)

	var streamed []domain.Event
	report, err := driver.Run(context.Background(), newPlan(program, targetDir, "GREETING=$HOME"), func(ev domain.Event) {
		streamed = append(streamed, ev)
	})
	require.NoError(t, err)

	assert.Equal(t, report.Events, streamed)
	assert.Equal(t, 0, report.ExitCode)
	assert.Equal(t, []string{"   Compiling greet v0.1.0"}, report.StderrTail)

	arts := report.Artifacts()
	require.Len(t, arts, 2)
	assert.Equal(t, "aarch64-unknown-linux-gnu", arts[0].Triple)
	assert.Equal(t, domain.KindStaticLibrary, arts[0].Kind)
	assert.Equal(t, hostTriple, arts[1].Triple, "build-script tools land outside the triple directory")

	diags := report.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, "$HOME", diags[0].Message, "overrides are passed without shell expansion")
}

func TestDriver_Run_StderrGoesToVertexOnly(t *testing.T) {
	targetDir := filepath.Join(t.TempDir(), "target")
	program := writeScript(t, `
echo "   Compiling greet v0.1.0" >&2
echo "    Finished dev profile" >&2
echo '{"reason":"build-finished","success":true}'
`)

	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	driver := shell.NewDriver(log, cargo.NewDecoder())

	var stderr bytes.Buffer
	vertex := mocks.NewMockVertex(ctrl)
	vertex.EXPECT().Stderr().Return(&stderr)
	ctx := ports.ContextWithVertex(context.Background(), vertex)

	report, err := driver.Run(ctx, newPlan(program, targetDir), nil)
	require.NoError(t, err)

	assert.Equal(t, "   Compiling greet v0.1.0\n    Finished dev profile\n", stderr.String())
	assert.Equal(t, []string{"   Compiling greet v0.1.0", "    Finished dev profile"}, report.StderrTail)
}

func TestDriver_Run_Failure(t *testing.T) {
	targetDir := filepath.Join(t.TempDir(), "target")
	program := writeScript(t, `
echo '{"reason":"compiler-message","package_id":"greet 0.1.0 (path+file:///src/greet)","message":{"message":"unused import","level":"warning","rendered":null}}'
echo '{"reason":"compiler-message","package_id":"greet 0.1.0 (path+file:///src/greet)","message":{"message":"undefined symbol","level":"error","rendered":null}}'
echo '{"reason":"build-finished","success":false}'
echo "error: could not compile greet" >&2
exit 1
`)
	driver := newDriver(t)

	report, err := driver.Run(context.Background(), newPlan(program, targetDir), nil)
	require.ErrorIs(t, err, domain.ErrDriverFailed)
	require.NotNil(t, report)

	var derr *domain.DriverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 1, derr.ExitCode)
	assert.Equal(t, []string{"undefined symbol"}, derr.Diagnostics)
	assert.Equal(t, "target-0000000000000001", derr.CacheKey)
	assert.Equal(t, program, derr.Argv[0])
}

func TestDriver_Run_FailureFallsBackToStderr(t *testing.T) {
	targetDir := filepath.Join(t.TempDir(), "target")
	program := writeScript(t, `
echo "error: failed to parse manifest" >&2
exit 101
`)
	driver := newDriver(t)

	_, err := driver.Run(context.Background(), newPlan(program, targetDir), nil)

	var derr *domain.DriverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 101, derr.ExitCode)
	assert.Equal(t, []string{"error: failed to parse manifest"}, derr.Diagnostics)
}

func TestDriver_Run_FinishedUnsuccessfully(t *testing.T) {
	targetDir := filepath.Join(t.TempDir(), "target")
	program := writeScript(t, `echo '{"reason":"build-finished","success":false}'`)
	driver := newDriver(t)

	_, err := driver.Run(context.Background(), newPlan(program, targetDir), nil)
	assert.ErrorIs(t, err, domain.ErrDriverFailed)
}

func TestDriver_Run_Unavailable(t *testing.T) {
	targetDir := filepath.Join(t.TempDir(), "target")
	driver := newDriver(t)

	plan := newPlan("oxbridge-missing-cargo", targetDir, "PATH="+t.TempDir())
	_, err := driver.Run(context.Background(), plan, nil)
	require.ErrorIs(t, err, domain.ErrDriverUnavailable)
}

func TestDriver_Run_Timeout(t *testing.T) {
	targetDir := filepath.Join(t.TempDir(), "target")
	program := writeScript(t, "sleep 30\n")
	driver := newDriver(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := driver.Run(ctx, newPlan(program, targetDir), nil)
	require.ErrorIs(t, err, domain.ErrDriverTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestDriver_Run_Cancelled(t *testing.T) {
	targetDir := filepath.Join(t.TempDir(), "target")
	program := writeScript(t, `
echo '{"reason":"compiler-message","package_id":"greet 0.1.0 (path+file:///src/greet)","message":{"message":"started","level":"note","rendered":null}}'
sleep 30
`)
	driver := newDriver(t)

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	_, err := driver.Run(ctx, newPlan(program, targetDir), func(domain.Event) {
		cancel(domain.ErrCancelledByHost)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCancelledByHost))

	var derr *domain.DriverError
	assert.False(t, errors.As(err, &derr), "cancellation is not a driver failure")
}
