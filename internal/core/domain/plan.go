package domain

import "strings"

// Namespace separates host-tool builds from target builds.
type Namespace string

const (
	// NamespaceTarget holds builds for the configured target platform.
	NamespaceTarget Namespace = "target"
	// NamespaceHost holds builds of tools that run on the build machine.
	NamespaceHost Namespace = "host"
)

// Fingerprint is the content digest of one input file.
type Fingerprint struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
}

// InvocationPlan is the fully-determined driver invocation for one package and configuration.
type InvocationPlan struct {
	Package      string
	ManifestPath string
	Program      string
	Args         []string
	// Env holds the overrides as sorted KEY=VALUE entries.
	Env          []string
	Dir          string
	TargetDir    string
	Namespace    Namespace
	Profile      Profile
	TargetTriple string
	HostTriple   string
	// Features is the enabled feature closure, sorted.
	Features     []string
	Fingerprints []Fingerprint
	CacheKey     string
}

// Argv returns the program followed by its arguments.
func (p *InvocationPlan) Argv() []string {
	return append([]string{p.Program}, p.Args...)
}

// EnabledFeatures returns the enabled feature closure as a set.
func (p *InvocationPlan) EnabledFeatures() FeatureSet {
	return NewFeatureSet(p.Features...)
}

// Unit returns the identity of the build unit the plan belongs to.
func (p *InvocationPlan) Unit() UnitID {
	return UnitID{
		ManifestPath: p.ManifestPath,
		Package:      p.Package,
		Triple:       p.TargetTriple,
		Host:         p.Namespace == NamespaceHost,
	}
}

// InputPaths returns the manifest followed by every fingerprinted input.
func (p *InvocationPlan) InputPaths() []string {
	out := make([]string, 0, len(p.Fingerprints)+1)
	out = append(out, p.ManifestPath)
	for _, fp := range p.Fingerprints {
		if fp.Path != p.ManifestPath {
			out = append(out, fp.Path)
		}
	}
	return out
}

// UnitID identifies the nodes one driver invocation produces, independent of its configuration.
type UnitID struct {
	ManifestPath string
	Package      string
	Triple       string
	Host         bool
}

func (u UnitID) String() string {
	var b strings.Builder
	b.WriteString(u.Package)
	b.WriteByte('@')
	b.WriteString(u.Triple)
	if u.Host {
		b.WriteString("+host")
	}
	b.WriteString(" (")
	b.WriteString(u.ManifestPath)
	b.WriteByte(')')
	return b.String()
}
