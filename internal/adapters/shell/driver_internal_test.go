package shell

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/oxbridge/internal/core/domain"
)

func TestResolveEnvironment(t *testing.T) {
	got := resolveEnvironment(
		[]string{"PATH=/usr/bin", "HOME=/home/dev", "CARGO_TERM_COLOR=always"},
		[]string{"CARGO_TERM_COLOR=never", "RUSTFLAGS=-C target-cpu=native"},
	)
	assert.Equal(t, []string{
		"CARGO_TERM_COLOR=never",
		"HOME=/home/dev",
		"PATH=/usr/bin",
		"RUSTFLAGS=-C target-cpu=native",
	}, got)
}

func TestLookPath(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "cargo")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o700)) //nolint:gosec // must be executable
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain"), nil, 0o600))

	got, err := lookPath("cargo", []string{"PATH=" + dir})
	require.NoError(t, err)
	assert.Equal(t, exe, got)

	_, err = lookPath("plain", []string{"PATH=" + dir})
	assert.Error(t, err)

	_, err = lookPath("cargo", []string{"HOME=/"})
	assert.ErrorContains(t, err, "PATH is not set")
}

func TestAttributeTriple(t *testing.T) {
	plan := &domain.InvocationPlan{
		TargetDir:    "/ws/target/oxbridge/target",
		TargetTriple: "/specs/thumbv7em-custom.json",
		HostTriple:   "x86_64-unknown-linux-gnu",
	}

	ev := attributeTriple(domain.ArtifactEvent{Path: "/ws/target/oxbridge/target/thumbv7em-custom/release/libfw.a"}, plan)
	assert.Equal(t, "/specs/thumbv7em-custom.json", ev.(domain.ArtifactEvent).Triple)

	ev = attributeTriple(domain.ArtifactEvent{Path: "/ws/target/oxbridge/target/release/build/fw-1/out/gen"}, plan)
	assert.Equal(t, "x86_64-unknown-linux-gnu", ev.(domain.ArtifactEvent).Triple)

	ev = attributeTriple(domain.ArtifactEvent{Path: "/elsewhere/libfw.a", Triple: "explicit"}, plan)
	assert.Equal(t, "explicit", ev.(domain.ArtifactEvent).Triple)

	diag := domain.DiagnosticEvent{Message: "untouched"}
	assert.Equal(t, diag, attributeTriple(diag, plan))
}

func TestTailBuffer(t *testing.T) {
	tail := newTailBuffer(2)
	_, _ = tail.Write([]byte("one\ntw"))
	_, _ = tail.Write([]byte("o\nthree\nfou"))
	assert.Equal(t, []string{"three", "fou"}, tail.Lines())
}

func TestScope_RunsCleanupsInReverse(t *testing.T) {
	var order []int
	sc := &scope{}
	sc.add(func() { order = append(order, 1) })
	sc.add(func() { order = append(order, 2) })
	sc.close()
	sc.close()
	assert.Equal(t, []int{2, 1}, order)
}
