package cargo_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/oxbridge/internal/adapters/cargo"
	"go.trai.ch/oxbridge/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func TestHostTripleFor(t *testing.T) {
	tests := []struct {
		goos, goarch, want string
	}{
		{"linux", "amd64", "x86_64-unknown-linux-gnu"},
		{"linux", "arm64", "aarch64-unknown-linux-gnu"},
		{"linux", "arm", "armv7-unknown-linux-gnueabihf"},
		{"darwin", "arm64", "aarch64-apple-darwin"},
		{"windows", "amd64", "x86_64-pc-windows-msvc"},
		{"freebsd", "amd64", "x86_64-unknown-freebsd"},
		{"android", "arm64", "aarch64-linux-android"},
		{"netbsd", "riscv64", "riscv64gc-unknown-netbsd"},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			assert.Equal(t, tt.want, cargo.HostTripleFor(tt.goos, tt.goarch))
		})
	}
}

func TestParseHostTriple(t *testing.T) {
	out := []byte("rustc 1.80.0 (051478957 2024-07-21)\nbinary: rustc\nhost: aarch64-apple-darwin\nrelease: 1.80.0\n")
	assert.Equal(t, "aarch64-apple-darwin", cargo.ParseHostTriple(out))
	assert.Empty(t, cargo.ParseHostTriple([]byte("garbage")))
}

func TestToolchain_FallsBackWithoutCompiler(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any()).Times(1)

	tc := cargo.NewToolchain(filepath.Join(t.TempDir(), "no-such-rustc"), log)

	got, err := tc.Toolchain()
	assert.NoError(t, err)
	assert.NotEmpty(t, got.HostTriple)

	_, ok := got.Resolve("")
	assert.True(t, ok)
	_, ok = got.Resolve("wasm32-unknown-unknown")
	assert.True(t, ok)

	// A second call is answered from the first query.
	again, err := tc.Toolchain()
	assert.NoError(t, err)
	assert.Equal(t, got.HostTriple, again.HostTriple)
}
