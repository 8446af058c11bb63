package domain

import (
	"iter"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.trai.ch/zerr"
)

// ErrDuplicatePackage is returned when two workspace members declare the same package name.
var ErrDuplicatePackage = zerr.New("duplicate package name in workspace")

// ModTime is the modification fingerprint of a manifest file.
type ModTime struct {
	ModTime time.Time
	Size    int64
}

// Equal reports whether both fingerprints describe the same file state.
func (m ModTime) Equal(o ModTime) bool {
	return m.Size == o.Size && m.ModTime.Equal(o.ModTime)
}

// PackageManifest is the parsed description of one foreign package.
// It is immutable once produced by the manifest reader.
type PackageManifest struct {
	Name         string
	ManifestPath string
	Dir          string
	Artifacts    []ArtifactDeclaration
	// Features maps every declared feature to the entries it enables.
	Features map[string][]string
	// WorkspaceRoot is the directory of the workspace manifest the package belongs to.
	WorkspaceRoot string
	// Profiles lists the profile names the workspace knows, built-in and custom.
	Profiles []string
	// PathDependencies lists the directories of the packages it depends on by path,
	// directly or through another path dependency, sorted. Dev-dependencies are not included.
	PathDependencies []string
	Fingerprint      ModTime
}

// HasFeature reports whether name is declared by the package.
func (m *PackageManifest) HasFeature(name string) bool {
	_, ok := m.Features[name]
	return ok
}

// ExpandFeatures returns the closure of requested features over the package's feature table.
// The "default" feature is included when the table declares it and noDefault is not set.
// Entries that name dependencies ("dep:x", "x/y", "x?/y") are not features of this package.
func (m *PackageManifest) ExpandFeatures(requested []string, noDefault bool) FeatureSet {
	enabled := make(FeatureSet)
	queue := slices.Clone(requested)
	if !noDefault && m.HasFeature("default") {
		queue = append(queue, "default")
	}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if enabled.Has(f) || !m.HasFeature(f) {
			continue
		}
		enabled[f] = struct{}{}
		for _, implied := range m.Features[f] {
			if strings.HasPrefix(implied, "dep:") || strings.Contains(implied, "/") {
				continue
			}
			queue = append(queue, implied)
		}
	}
	return enabled
}

// Workspace is the set of packages reachable from one root manifest.
type Workspace struct {
	RootManifest string
	packages     map[string]*PackageManifest
	byManifest   map[string]string
	members      map[string][]string
	order        []string
}

// NewWorkspace creates an empty workspace rooted at rootManifest.
func NewWorkspace(rootManifest string) *Workspace {
	return &Workspace{
		RootManifest: rootManifest,
		packages:     make(map[string]*PackageManifest),
		byManifest:   make(map[string]string),
		members:      make(map[string][]string),
	}
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return filepath.Dir(w.RootManifest)
}

// AddPackage adds a parsed package. Package names must be unique.
func (w *Workspace) AddPackage(p *PackageManifest) error {
	if existing, ok := w.packages[p.Name]; ok {
		err := zerr.With(ErrDuplicatePackage, "package", p.Name)
		err = zerr.With(err, "first", existing.ManifestPath)
		return zerr.With(err, "second", p.ManifestPath)
	}
	w.packages[p.Name] = p
	w.byManifest[p.ManifestPath] = p.Name
	return nil
}

// AddMembers records that manifest lists members as workspace members.
func (w *Workspace) AddMembers(manifest string, members []string) {
	w.members[manifest] = append(w.members[manifest], members...)
}

// Validate checks membership for cycles and fixes the package order:
// members come before the workspace manifests that list them.
func (w *Workspace) Validate() error {
	manifests := make([]string, 0, len(w.members)+len(w.byManifest))
	for m := range w.members {
		manifests = append(manifests, m)
	}
	for m := range w.byManifest {
		if _, ok := w.members[m]; !ok {
			manifests = append(manifests, m)
		}
	}
	slices.Sort(manifests)

	w.order = w.order[:0]
	visited := make(map[string]int) // 0: unvisited, 1: visiting, 2: visited
	var path []string

	var visit func(m string) error
	visit = func(m string) error {
		visited[m] = 1
		path = append(path, m)

		for _, member := range w.members[m] {
			if visited[member] == 1 {
				return buildCycleError(path, member)
			}
			if visited[member] == 0 {
				if err := visit(member); err != nil {
					return err
				}
			}
		}

		visited[m] = 2
		path = path[:len(path)-1]
		if name, ok := w.byManifest[m]; ok {
			w.order = append(w.order, name)
		}
		return nil
	}

	for _, m := range manifests {
		if visited[m] == 0 {
			if err := visit(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildCycleError(path []string, member string) error {
	start := slices.Index(path, member)
	cycle := slices.Clone(path[start:])
	cycle = append(cycle, member)
	return &ManifestError{Kind: ErrWorkspaceCycle, Path: member, Cycle: cycle}
}

// Package returns the package with the given name.
func (w *Workspace) Package(name string) (*PackageManifest, bool) {
	p, ok := w.packages[name]
	return p, ok
}

// Packages yields packages in validated order.
func (w *Workspace) Packages() iter.Seq[*PackageManifest] {
	return func(yield func(*PackageManifest) bool) {
		for _, name := range w.order {
			if !yield(w.packages[name]) {
				return
			}
		}
	}
}

// Len returns the number of packages.
func (w *Workspace) Len() int {
	return len(w.packages)
}

// Select returns the named package, or the default one when name is empty:
// the root manifest's package, else the only package of the workspace.
func (w *Workspace) Select(name string) (*PackageManifest, error) {
	if name != "" {
		p, ok := w.packages[name]
		if !ok {
			return nil, zerr.With(zerr.With(ErrPackageNotFound, "package", name), "workspace", w.RootManifest)
		}
		return p, nil
	}
	if rootName, ok := w.byManifest[w.RootManifest]; ok {
		return w.packages[rootName], nil
	}
	if len(w.packages) == 1 {
		for _, p := range w.packages {
			return p, nil
		}
	}
	if len(w.packages) == 0 {
		return nil, zerr.With(ErrPackageNotFound, "workspace", w.RootManifest)
	}
	return nil, zerr.With(ErrPackageRequired, "workspace", w.RootManifest)
}
