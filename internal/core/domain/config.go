package domain

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ProfileKind selects the optimisation profile of a build.
type ProfileKind uint8

const (
	// ProfileDebug is the unoptimised development profile.
	ProfileDebug ProfileKind = iota
	// ProfileRelease is the optimised profile.
	ProfileRelease
	// ProfileCustom is a profile defined by the workspace.
	ProfileCustom
)

// Profile is a build profile. The zero value is the debug profile.
type Profile struct {
	Kind ProfileKind
	Name string
}

// Debug returns the debug profile.
func Debug() Profile { return Profile{Kind: ProfileDebug} }

// Release returns the release profile.
func Release() Profile { return Profile{Kind: ProfileRelease} }

// Custom returns a workspace-defined profile.
func Custom(name string) Profile { return Profile{Kind: ProfileCustom, Name: name} }

// ParseProfile maps a profile name to a Profile. "dev" and "debug" are the debug profile.
func ParseProfile(name string) Profile {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "debug", "dev":
		return Debug()
	case "release":
		return Release()
	default:
		return Custom(name)
	}
}

// String returns the profile name.
func (p Profile) String() string {
	switch p.Kind {
	case ProfileDebug:
		return "debug"
	case ProfileRelease:
		return "release"
	default:
		return p.Name
	}
}

// BuildConfiguration determines one driver invocation for a package.
type BuildConfiguration struct {
	Profile Profile
	// TargetTriple is the platform to build for. Empty means the host.
	TargetTriple      string
	Features          []string
	NoDefaultFeatures bool
	// Flags are passed to the compiler in order.
	Flags []string
	// Environment overrides are passed to the driver verbatim.
	Environment map[string]string
	// HostTool builds for the host platform even when cross compiling.
	HostTool bool
	// Linker is the cross linker for TargetTriple, if any.
	Linker string
	// TargetDir is the absolute output root. Empty selects the workspace default.
	TargetDir string
}

// CanonicalFeatures returns the requested features sorted and de-duplicated.
func (c BuildConfiguration) CanonicalFeatures() []string {
	out := slices.Clone(c.Features)
	slices.Sort(out)
	return slices.Compact(out)
}

// Clone returns a copy that shares no slices or maps with c.
func (c BuildConfiguration) Clone() BuildConfiguration {
	c.Features = slices.Clone(c.Features)
	c.Flags = slices.Clone(c.Flags)
	c.Environment = maps.Clone(c.Environment)
	return c
}

// Equal reports structural equality. Feature order is not significant, flag order is.
func (c BuildConfiguration) Equal(o BuildConfiguration) bool {
	return c.Profile == o.Profile &&
		c.TargetTriple == o.TargetTriple &&
		slices.Equal(c.CanonicalFeatures(), o.CanonicalFeatures()) &&
		c.NoDefaultFeatures == o.NoDefaultFeatures &&
		slices.Equal(c.Flags, o.Flags) &&
		maps.Equal(c.Environment, o.Environment) &&
		c.HostTool == o.HostTool &&
		c.Linker == o.Linker &&
		c.TargetDir == o.TargetDir
}

// Toolchain describes what the installed driver can build for.
type Toolchain struct {
	HostTriple string
	Targets    map[string]struct{}
}

// Resolve validates triple. Empty means the host. Custom target specifications
// given as absolute paths to a ".json" file are accepted as-is.
func (t Toolchain) Resolve(triple string) (string, bool) {
	if triple == "" {
		return t.HostTriple, t.HostTriple != ""
	}
	if strings.HasSuffix(triple, ".json") && filepath.IsAbs(triple) {
		return triple, true
	}
	if triple == t.HostTriple {
		return triple, true
	}
	_, ok := t.Targets[triple]
	return triple, ok
}

// Import is one package a project brings into its build graph.
type Import struct {
	Name        string
	ManifestDir string
	Package     string
	Config      BuildConfiguration
	// Timeout bounds a single driver run. Zero means no deadline.
	Timeout time.Duration
}

// Project is the loaded project configuration.
type Project struct {
	Root string
	// Driver is the build driver program.
	Driver  string
	Jobs    int
	Imports []Import
}

// Import returns the import with the given name.
func (p *Project) Import(name string) (Import, bool) {
	for _, imp := range p.Imports {
		if imp.Name == name {
			return imp, true
		}
	}
	return Import{}, false
}
