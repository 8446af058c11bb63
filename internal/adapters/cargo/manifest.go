// Package cargo adapts Cargo manifests, toolchains and machine-readable build output.
package cargo

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pelletier/go-toml/v2"
	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

const manifestCacheSize = 256

var builtinProfiles = []string{"bench", "dev", "release", "test"}

var _ ports.ManifestReader = (*Reader)(nil)

// cargoManifest is the subset of Cargo.toml the bridge understands.
type cargoManifest struct {
	Package           *packageSection            `toml:"package"`
	Lib               *libSection                `toml:"lib"`
	Bin               []binSection               `toml:"bin"`
	Features          map[string][]string        `toml:"features"`
	Dependencies      map[string]any             `toml:"dependencies"`
	BuildDependencies map[string]any             `toml:"build-dependencies"`
	Target            map[string]platformSection `toml:"target"`
	Workspace         *workspaceSection          `toml:"workspace"`
	Profile           map[string]any             `toml:"profile"`
}

// platformSection is a [target.'cfg(...)'] table.
type platformSection struct {
	Dependencies      map[string]any `toml:"dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

type packageSection struct {
	Name      string `toml:"name"`
	Workspace string `toml:"workspace"`
	Autobins  *bool  `toml:"autobins"`
	Autolib   *bool  `toml:"autolib"`
	Metadata  struct {
		Oxbridge struct {
			RequiredFeatures map[string]string `toml:"required-features"`
		} `toml:"oxbridge"`
	} `toml:"metadata"`
}

type libSection struct {
	Name      string   `toml:"name"`
	Path      string   `toml:"path"`
	CrateType []string `toml:"crate-type"`
	ProcMacro bool     `toml:"proc-macro"`
}

type binSection struct {
	Name             string   `toml:"name"`
	Path             string   `toml:"path"`
	RequiredFeatures []string `toml:"required-features"`
}

type workspaceSection struct {
	Members      []string       `toml:"members"`
	Exclude      []string       `toml:"exclude"`
	Dependencies map[string]any `toml:"dependencies"`
}

type cachedManifest struct {
	mod      domain.ModTime
	manifest *cargoManifest
}

// Reader implements ports.ManifestReader for Cargo.toml files.
type Reader struct {
	cache *lru.Cache[string, cachedManifest]
}

// NewReader creates a Reader with a bounded cache of parsed manifests.
func NewReader() *Reader {
	cache, _ := lru.New[string, cachedManifest](manifestCacheSize)
	return &Reader{cache: cache}
}

// Read parses the manifest in dir and every workspace member reachable from it.
func (r *Reader) Read(dir string) (*domain.Workspace, error) {
	rootPath := filepath.Join(filepath.Clean(dir), domain.ManifestFileName)
	root, mod, err := r.load(rootPath)
	if err != nil {
		return nil, err
	}

	wsRoot, wsManifest := filepath.Dir(rootPath), root
	if root.Workspace == nil {
		if parentPath, parent, ok := r.findWorkspaceRoot(rootPath, root); ok {
			wsRoot, wsManifest = filepath.Dir(parentPath), parent
		}
	}

	c := &collector{
		reader:   r,
		ws:       domain.NewWorkspace(rootPath),
		wsRoot:   wsRoot,
		profiles: profileNames(wsManifest),
		seen:     make(map[string]bool),
	}
	if err := c.collect(rootPath, root, mod); err != nil {
		return nil, err
	}
	if err := c.ws.Validate(); err != nil {
		return nil, err
	}
	return c.ws, nil
}

// load returns the parsed manifest at path, re-reading it only when its modification fingerprint changed.
func (r *Reader) load(path string) (*cargoManifest, domain.ModTime, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ModTime{}, &domain.ManifestError{Kind: domain.ErrManifestNotFound, Path: path}
		}
		return nil, domain.ModTime{}, &domain.ManifestError{Kind: domain.ErrManifestNotFound, Path: path, Err: err}
	}
	mod := domain.ModTime{ModTime: info.ModTime(), Size: info.Size()}

	if cached, ok := r.cache.Get(path); ok && cached.mod.Equal(mod) {
		return cached.manifest, mod, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // Path is the manifest the caller asked for
	if err != nil {
		return nil, mod, &domain.ManifestError{Kind: domain.ErrManifestNotFound, Path: path, Err: err}
	}

	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		perr := &domain.ManifestError{Kind: domain.ErrManifestParse, Path: path, Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, mod, perr
	}

	r.cache.Add(path, cachedManifest{mod: mod, manifest: &m})
	return &m, mod, nil
}

// findWorkspaceRoot locates the workspace a standalone package manifest belongs to,
// either through package.workspace or by searching parent directories.
func (r *Reader) findWorkspaceRoot(path string, m *cargoManifest) (string, *cargoManifest, bool) {
	pkgDir := filepath.Dir(path)
	if m.Package != nil && m.Package.Workspace != "" {
		candidate := filepath.Join(pkgDir, m.Package.Workspace, domain.ManifestFileName)
		parent, _, err := r.load(candidate)
		if err == nil && parent.Workspace != nil {
			return candidate, parent, true
		}
		return "", nil, false
	}

	for dir := filepath.Dir(pkgDir); ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, domain.ManifestFileName)
		if parent, _, err := r.load(candidate); err == nil && parent.Workspace != nil {
			members, err := memberDirs(dir, parent.Workspace)
			if err == nil && slices.Contains(members, pkgDir) {
				return candidate, parent, true
			}
			return "", nil, false
		}
		if dir == filepath.Dir(dir) {
			return "", nil, false
		}
	}
}

type collector struct {
	reader   *Reader
	ws       *domain.Workspace
	wsRoot   string
	profiles []string
	seen     map[string]bool
}

func (c *collector) collect(path string, m *cargoManifest, mod domain.ModTime) error {
	if c.seen[path] {
		return nil
	}
	c.seen[path] = true

	if m.Package != nil {
		pkg, err := c.toPackage(path, m, mod)
		if err != nil {
			return err
		}
		if err := c.ws.AddPackage(pkg); err != nil {
			return err
		}
	} else if m.Workspace == nil {
		return &domain.ManifestError{
			Kind: domain.ErrManifestParse,
			Path: path,
			Err:  zerr.New("manifest declares neither [package] nor [workspace]"),
		}
	}

	if m.Workspace == nil {
		return nil
	}

	dir := filepath.Dir(path)
	members, err := memberDirs(dir, m.Workspace)
	if err != nil {
		return &domain.ManifestError{Kind: domain.ErrManifestParse, Path: path, Err: err}
	}

	manifests := make([]string, 0, len(members))
	for _, member := range members {
		if member == dir {
			continue
		}
		manifests = append(manifests, filepath.Join(member, domain.ManifestFileName))
	}
	c.ws.AddMembers(path, manifests)

	for _, memberPath := range manifests {
		member, memberMod, err := c.reader.load(memberPath)
		if err != nil {
			return err
		}
		if err := c.collect(memberPath, member, memberMod); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) toPackage(path string, m *cargoManifest, mod domain.ModTime) (*domain.PackageManifest, error) {
	if m.Package.Name == "" {
		return nil, &domain.ManifestError{
			Kind: domain.ErrManifestParse,
			Path: path,
			Err:  zerr.New("package.name is required"),
		}
	}

	pkgDir := filepath.Dir(path)
	decls, err := declarations(pkgDir, m)
	if err != nil {
		return nil, &domain.ManifestError{Kind: domain.ErrManifestParse, Path: path, Err: err}
	}

	return &domain.PackageManifest{
		Name:             m.Package.Name,
		ManifestPath:     path,
		Dir:              pkgDir,
		Artifacts:        decls,
		Features:         featureTable(m),
		WorkspaceRoot:    c.wsRoot,
		Profiles:         c.profiles,
		PathDependencies: c.reader.pathDependencies(path, m),
		Fingerprint:      mod,
	}, nil
}

// memberDirs expands the workspace member globs of the manifest in dir, minus excluded paths.
func memberDirs(dir string, w *workspaceSection) ([]string, error) {
	var out []string
	for _, pattern := range w.Members {
		full := filepath.Join(dir, pattern)
		matches, err := filepath.Glob(full)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
			matches = []string{full}
		}
		for _, match := range matches {
			if info, err := os.Stat(match); err == nil && !info.IsDir() {
				continue
			}
			if excluded(dir, match, w.Exclude) {
				continue
			}
			out = append(out, match)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func excluded(dir, member string, exclude []string) bool {
	for _, e := range exclude {
		ex := filepath.Join(dir, e)
		if member == ex || strings.HasPrefix(member, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func profileNames(m *cargoManifest) []string {
	names := slices.Clone(builtinProfiles)
	for name := range m.Profile {
		names = append(names, name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// featureTable returns the declared features plus the implicit ones optional dependencies create.
func featureTable(m *cargoManifest) map[string][]string {
	table := make(map[string][]string, len(m.Features))
	explicitDeps := make(map[string]bool)
	for name, implied := range m.Features {
		table[name] = slices.Clone(implied)
		for _, entry := range implied {
			if dep, ok := strings.CutPrefix(entry, "dep:"); ok {
				explicitDeps[dep] = true
			}
		}
	}

	for _, deps := range []map[string]any{m.Dependencies, m.BuildDependencies} {
		for name, spec := range deps {
			if !isOptional(spec) || explicitDeps[name] {
				continue
			}
			if _, declared := table[name]; !declared {
				table[name] = []string{"dep:" + name}
			}
		}
	}
	return table
}

func isOptional(spec any) bool {
	table, ok := spec.(map[string]any)
	if !ok {
		return false
	}
	optional, _ := table["optional"].(bool)
	return optional
}

// pathDependencies returns the directories of every package the manifest at path reaches
// through path dependencies and build-dependencies, sorted. Dependencies whose manifest
// cannot be read are still listed but not followed.
func (r *Reader) pathDependencies(path string, m *cargoManifest) []string {
	seen := map[string]bool{filepath.Dir(path): true}
	var out []string

	var visit func(path string, m *cargoManifest)
	visit = func(path string, m *cargoManifest) {
		for _, dir := range r.directPathDependencies(path, m) {
			if seen[dir] {
				continue
			}
			seen[dir] = true
			out = append(out, dir)

			depPath := filepath.Join(dir, domain.ManifestFileName)
			dep, _, err := r.load(depPath)
			if err != nil {
				continue
			}
			visit(depPath, dep)
		}
	}
	visit(path, m)

	slices.Sort(out)
	return out
}

func (r *Reader) directPathDependencies(path string, m *cargoManifest) []string {
	tables := []map[string]any{m.Dependencies, m.BuildDependencies}
	for _, platform := range m.Target {
		tables = append(tables, platform.Dependencies, platform.BuildDependencies)
	}

	var (
		out       []string
		inherited bool
		wsDir     string
		wsDeps    map[string]any
	)
	for _, table := range tables {
		for name, spec := range table {
			dep, ok := spec.(map[string]any)
			if !ok {
				continue
			}
			if p, ok := dep["path"].(string); ok {
				out = append(out, resolvePath(filepath.Dir(path), p))
				continue
			}
			if fromWorkspace, _ := dep["workspace"].(bool); !fromWorkspace {
				continue
			}
			if !inherited {
				wsDir, wsDeps = r.workspaceDependencies(path, m)
				inherited = true
			}
			if wsDep, ok := wsDeps[name].(map[string]any); ok {
				if p, ok := wsDep["path"].(string); ok {
					out = append(out, resolvePath(wsDir, p))
				}
			}
		}
	}
	return out
}

// workspaceDependencies returns the [workspace.dependencies] table the manifest at path
// inherits from, and the directory its paths are relative to.
func (r *Reader) workspaceDependencies(path string, m *cargoManifest) (string, map[string]any) {
	if m.Workspace != nil {
		return filepath.Dir(path), m.Workspace.Dependencies
	}
	if rootPath, root, ok := r.findWorkspaceRoot(path, m); ok {
		return filepath.Dir(rootPath), root.Workspace.Dependencies
	}
	return "", nil
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}
