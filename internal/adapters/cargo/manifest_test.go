package cargo_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/oxbridge/internal/adapters/cargo"
	"go.trai.ch/oxbridge/internal/core/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestReader_SinglePackage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), `
[package]
name = "greet"
version = "0.1.0"

[lib]
crate-type = ["cdylib", "staticlib"]

[[bin]]
name = "greet-cli"
path = "src/cli.rs"
required-features = ["cli"]

[features]
default = []
cli = ["dep:clap"]

[dependencies]
clap = { version = "4", optional = true }
serde = { version = "1", optional = true }
log = "0.4"

[profile.dist]
inherits = "release"
`)
	writeFile(t, filepath.Join(dir, "src", "lib.rs"), "")
	writeFile(t, filepath.Join(dir, "src", "main.rs"), "")

	ws, err := cargo.NewReader().Read(dir)
	require.NoError(t, err)

	pkg, err := ws.Select("")
	require.NoError(t, err)

	assert.Equal(t, "greet", pkg.Name)
	assert.Equal(t, filepath.Join(dir, "Cargo.toml"), pkg.ManifestPath)
	assert.Equal(t, dir, pkg.Dir)
	assert.Equal(t, dir, pkg.WorkspaceRoot)
	assert.Contains(t, pkg.Profiles, "dist")
	assert.Contains(t, pkg.Profiles, "release")

	require.Len(t, pkg.Artifacts, 4)
	assert.Equal(t, domain.ArtifactDeclaration{Kind: domain.KindSharedLibrary, Name: "greet"}, pkg.Artifacts[0])
	assert.Equal(t, domain.ArtifactDeclaration{Kind: domain.KindStaticLibrary, Name: "greet"}, pkg.Artifacts[1])
	assert.Equal(t, domain.ArtifactDeclaration{Kind: domain.KindExecutable, Name: "greet"}, pkg.Artifacts[2])
	assert.Equal(t, "greet-cli", pkg.Artifacts[3].Name)
	assert.Equal(t, domain.Atom("cli"), pkg.Artifacts[3].Requires)

	assert.True(t, pkg.HasFeature("cli"))
	assert.True(t, pkg.HasFeature("serde"), "optional dependency creates an implicit feature")
	assert.False(t, pkg.HasFeature("clap"), "dep: reference suppresses the implicit feature")
	assert.False(t, pkg.HasFeature("log"))
}

func TestReader_AutoDiscoveredLibraryName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), "[package]\nname = \"greet-core\"\n")
	writeFile(t, filepath.Join(dir, "src", "lib.rs"), "")
	writeFile(t, filepath.Join(dir, "src", "bin", "tool.rs"), "")

	ws, err := cargo.NewReader().Read(dir)
	require.NoError(t, err)
	pkg, ok := ws.Package("greet-core")
	require.True(t, ok)

	assert.Equal(t, []domain.ArtifactDeclaration{
		{Kind: domain.KindObjectOnly, Name: "greet_core"},
		{Kind: domain.KindExecutable, Name: "tool"},
	}, pkg.Artifacts)
}

func TestReader_MetadataPredicates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), `
[package]
name = "greet"

[[bin]]
name = "greet-tui"
required-features = ["tui"]

[features]
tui = []
color = []
no-color = []

[package.metadata.oxbridge.required-features]
greet-tui = "any(color, not(no-color))"
`)

	ws, err := cargo.NewReader().Read(dir)
	require.NoError(t, err)
	pkg, _ := ws.Package("greet")
	require.Len(t, pkg.Artifacts, 1)

	pred := pkg.Artifacts[0].Requires
	assert.True(t, pred.Eval(domain.NewFeatureSet("tui")))
	assert.False(t, pred.Eval(domain.NewFeatureSet("tui", "no-color")))
	assert.True(t, pred.Eval(domain.NewFeatureSet("tui", "no-color", "color")))
	assert.False(t, pred.Eval(domain.NewFeatureSet("color")))
}

func TestReader_Workspace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), `
[workspace]
members = ["crates/*"]
exclude = ["crates/skip"]

[profile.ci]
inherits = "dev"
`)
	writeFile(t, filepath.Join(dir, "crates", "b", "Cargo.toml"), "[package]\nname = \"b\"\n")
	writeFile(t, filepath.Join(dir, "crates", "a", "Cargo.toml"), "[package]\nname = \"a\"\n")
	writeFile(t, filepath.Join(dir, "crates", "skip", "Cargo.toml"), "[package]\nname = \"skip\"\n")
	writeFile(t, filepath.Join(dir, "crates", "README.md"), "not a member")

	ws, err := cargo.NewReader().Read(dir)
	require.NoError(t, err)

	var names []string
	for p := range ws.Packages() {
		names = append(names, p.Name)
		assert.Equal(t, dir, p.WorkspaceRoot)
		assert.Contains(t, p.Profiles, "ci")
	}
	assert.Equal(t, []string{"a", "b"}, names)

	_, err = ws.Select("")
	assert.ErrorContains(t, err, domain.ErrPackageRequired.Error())
}

func TestReader_PathDependencies(t *testing.T) {
	dir := t.TempDir()
	shared := t.TempDir()

	writeFile(t, filepath.Join(dir, "Cargo.toml"), `
[workspace]
members = ["app", "core"]

[workspace.dependencies]
core = { path = "core" }
`)
	writeFile(t, filepath.Join(dir, "app", "Cargo.toml"), `
[package]
name = "app"

[dependencies]
core = { workspace = true }
serde = "1"
log = { version = "0.4" }

[build-dependencies]
gen = { path = "../tools/gen" }

[target.'cfg(unix)'.dependencies]
sys = { path = "../sys" }

[dev-dependencies]
testkit = { path = "../testkit" }
`)
	writeFile(t, filepath.Join(dir, "core", "Cargo.toml"), `
[package]
name = "core"

[dependencies]
shared = { path = "`+shared+`" }
`)
	writeFile(t, filepath.Join(dir, "tools", "gen", "Cargo.toml"), "[package]\nname = \"gen\"\n")
	writeFile(t, filepath.Join(dir, "sys", "Cargo.toml"), "[package]\nname = \"sys\"\n")
	writeFile(t, filepath.Join(shared, "Cargo.toml"), `
[package]
name = "shared"

[dependencies]
app = { path = "`+filepath.Join(dir, "app")+`" }
`)

	ws, err := cargo.NewReader().Read(dir)
	require.NoError(t, err)

	app, ok := ws.Package("app")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "core"),
		filepath.Join(dir, "sys"),
		filepath.Join(dir, "tools", "gen"),
		shared,
	}, app.PathDependencies)
	assert.True(t, slices.IsSorted(app.PathDependencies))

	// Followed transitively, without listing the package itself.
	core, ok := ws.Package("core")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{
		shared,
		filepath.Join(dir, "app"),
		filepath.Join(dir, "sys"),
		filepath.Join(dir, "tools", "gen"),
	}, core.PathDependencies)
}

func TestReader_MemberFindsParentWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), "[workspace]\nmembers = [\"greet\"]\n\n[profile.dist]\ninherits = \"release\"\n")
	writeFile(t, filepath.Join(dir, "greet", "Cargo.toml"), "[package]\nname = \"greet\"\n")

	ws, err := cargo.NewReader().Read(filepath.Join(dir, "greet"))
	require.NoError(t, err)
	pkg, err := ws.Select("")
	require.NoError(t, err)

	assert.Equal(t, dir, pkg.WorkspaceRoot)
	assert.Contains(t, pkg.Profiles, "dist")
}

func TestReader_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		dir := t.TempDir()
		_, err := cargo.NewReader().Read(dir)
		require.ErrorIs(t, err, domain.ErrManifestNotFound)

		var merr *domain.ManifestError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, filepath.Join(dir, "Cargo.toml"), merr.Path)
	})

	t.Run("missing member", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "Cargo.toml"), "[workspace]\nmembers = [\"gone\"]\n")
		_, err := cargo.NewReader().Read(dir)
		require.ErrorIs(t, err, domain.ErrManifestNotFound)
	})

	t.Run("parse error carries position", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "Cargo.toml"), "[package]\nname = \"greet\"\nversion = = \"1\"\n")
		_, err := cargo.NewReader().Read(dir)
		require.ErrorIs(t, err, domain.ErrManifestParse)

		var merr *domain.ManifestError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, 3, merr.Line)
		assert.Positive(t, merr.Column)
	})

	t.Run("missing package name", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "Cargo.toml"), "[package]\nversion = \"1\"\n")
		_, err := cargo.NewReader().Read(dir)
		require.ErrorIs(t, err, domain.ErrManifestParse)
	})

	t.Run("workspace cycle", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "Cargo.toml"), "[workspace]\nmembers = [\"inner\"]\n")
		writeFile(t, filepath.Join(dir, "inner", "Cargo.toml"), "[package]\nname = \"inner\"\n\n[workspace]\nmembers = [\"..\"]\n")

		_, err := cargo.NewReader().Read(dir)
		require.ErrorIs(t, err, domain.ErrWorkspaceCycle)

		var merr *domain.ManifestError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, []string{
			filepath.Join(dir, "Cargo.toml"),
			filepath.Join(dir, "inner", "Cargo.toml"),
			filepath.Join(dir, "Cargo.toml"),
		}, merr.Cycle)
	})
}

func TestReader_RereadsOnlyWhenModified(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "Cargo.toml")
	writeFile(t, manifest, "[package]\nname = \"first\"\n")

	reader := cargo.NewReader()
	ws, err := reader.Read(dir)
	require.NoError(t, err)
	_, ok := ws.Package("first")
	require.True(t, ok)

	writeFile(t, manifest, "[package]\nname = \"second-name\"\n")
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(manifest, later, later))

	ws, err = reader.Read(dir)
	require.NoError(t, err)
	_, ok = ws.Package("second-name")
	assert.True(t, ok)
}
