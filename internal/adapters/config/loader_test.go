package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/oxbridge/internal/adapters/config"
	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func createFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, domain.DirPerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), domain.FilePerm))
}

func newLoader(t *testing.T) *config.Loader {
	t.Helper()
	ctrl := gomock.NewController(t)
	return config.NewLoader(mocks.NewMockLogger(ctrl))
}

func TestLoader_Load(t *testing.T) {
	rootDir := t.TempDir()
	createFile(t, rootDir, domain.ConfigFileName, `
version: "1"
driver: /opt/cargo/bin/cargo
jobs: 2
imports:
  greet:
    path: ./greet
    profile: release
    target: aarch64-unknown-linux-gnu
    features: [loud, color]
    noDefaultFeatures: true
    flags: ["-C", "opt-level=3"]
    environment:
      GREETING: hello
    linker: aarch64-linux-gnu-gcc
    targetDir: out
    timeout: 90s
  codegen:
    path: tools/codegen
    package: codegen-cli
    host: true
    profile: dist
`)

	project, err := newLoader(t).Load(rootDir)
	require.NoError(t, err)

	assert.Equal(t, rootDir, project.Root)
	assert.Equal(t, "/opt/cargo/bin/cargo", project.Driver)
	assert.Equal(t, 2, project.Jobs)
	require.Len(t, project.Imports, 2)

	// Imports are ordered by name.
	codegen, greet := project.Imports[0], project.Imports[1]

	assert.Equal(t, "codegen", codegen.Name)
	assert.Equal(t, filepath.Join(rootDir, "tools", "codegen"), codegen.ManifestDir)
	assert.Equal(t, "codegen-cli", codegen.Package)
	assert.True(t, codegen.Config.HostTool)
	assert.Equal(t, domain.Custom("dist"), codegen.Config.Profile)
	assert.Zero(t, codegen.Timeout)
	assert.Nil(t, codegen.Config.Environment)

	assert.Equal(t, "greet", greet.Name)
	assert.Equal(t, filepath.Join(rootDir, "greet"), greet.ManifestDir)
	assert.Equal(t, 90*time.Second, greet.Timeout)
	assert.Equal(t, domain.BuildConfiguration{
		Profile:           domain.Release(),
		TargetTriple:      "aarch64-unknown-linux-gnu",
		Features:          []string{"loud", "color"},
		NoDefaultFeatures: true,
		Flags:             []string{"-C", "opt-level=3"},
		Environment:       map[string]string{"GREETING": "hello"},
		Linker:            "aarch64-linux-gnu-gcc",
		TargetDir:         filepath.Join(rootDir, "out"),
	}, greet.Config)

	imp, ok := project.Import("greet")
	require.True(t, ok)
	assert.Equal(t, greet.ManifestDir, imp.ManifestDir)
}

func TestLoader_Defaults(t *testing.T) {
	rootDir := t.TempDir()
	createFile(t, rootDir, domain.ConfigFileName, "imports:\n  greet:\n    path: .\n")

	project, err := newLoader(t).Load(rootDir)
	require.NoError(t, err)

	assert.Empty(t, project.Driver)
	assert.Equal(t, runtime.NumCPU(), project.Jobs)
	require.Len(t, project.Imports, 1)
	assert.Equal(t, rootDir, project.Imports[0].ManifestDir)
	assert.Equal(t, domain.Debug(), project.Imports[0].Config.Profile)
	assert.Empty(t, project.Imports[0].Config.TargetDir)
}

func TestLoader_Discovery(t *testing.T) {
	rootDir := t.TempDir()
	createFile(t, rootDir, domain.ConfigFileName, "root: build\nimports:\n  greet:\n    path: greet\n")

	nested := filepath.Join(rootDir, "greet", "src", "bin")
	require.NoError(t, os.MkdirAll(nested, domain.DirPerm))

	project, err := newLoader(t).Load(nested)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(rootDir, "build"), project.Root)
	assert.Equal(t, filepath.Join(rootDir, "greet"), project.Imports[0].ManifestDir)
}

func TestLoader_NotFound(t *testing.T) {
	_, err := newLoader(t).Load(t.TempDir())
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestLoader_EnvFile(t *testing.T) {
	rootDir := t.TempDir()
	createFile(t, rootDir, "greet.env", "GREETING=hi\nRUST_LOG=debug\n# comment\nexport EXTRA=\"quoted value\"\n")
	createFile(t, rootDir, domain.ConfigFileName, `
imports:
  greet:
    path: greet
    envFile: greet.env
    environment:
      GREETING: hello
`)

	project, err := newLoader(t).Load(rootDir)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"GREETING": "hello",
		"RUST_LOG": "debug",
		"EXTRA":    "quoted value",
	}, project.Imports[0].Config.Environment)
}

func TestLoader_HostToolTargetWarns(t *testing.T) {
	rootDir := t.TempDir()
	createFile(t, rootDir, domain.ConfigFileName, `
imports:
  codegen:
    path: codegen
    host: true
    target: wasm32-unknown-unknown
`)

	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn("'target' of import codegen is ignored because it is a host tool").Times(1)

	_, err := config.NewLoader(log).Load(rootDir)
	require.NoError(t, err)
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "invalid yaml",
			content: "imports: [",
			wantErr: domain.ErrConfigParseFailed,
		},
		{
			name:    "unknown field",
			content: "imports:\n  greet:\n    path: greet\n    feature: [x]\n",
			wantErr: domain.ErrConfigParseFailed,
		},
		{
			name:    "missing path",
			content: "imports:\n  greet:\n    package: greet\n",
			wantErr: domain.ErrConfigParseFailed,
		},
		{
			name:    "empty import",
			content: "imports:\n  greet:\n",
			wantErr: domain.ErrConfigParseFailed,
		},
		{
			name:    "invalid import name",
			content: "imports:\n  \"greet lib\":\n    path: greet\n",
			wantErr: domain.ErrConfigParseFailed,
		},
		{
			name:    "invalid timeout",
			content: "imports:\n  greet:\n    path: greet\n    timeout: soon\n",
			wantErr: domain.ErrConfigParseFailed,
		},
		{
			name:    "negative jobs",
			content: "jobs: -1\n",
			wantErr: domain.ErrConfigParseFailed,
		},
		{
			name:    "missing env file",
			content: "imports:\n  greet:\n    path: greet\n    envFile: missing.env\n",
			wantErr: domain.ErrEnvFileReadFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootDir := t.TempDir()
			createFile(t, rootDir, domain.ConfigFileName, tt.content)

			_, err := newLoader(t).Load(rootDir)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
