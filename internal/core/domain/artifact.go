package domain

import "strings"

// ArtifactKind classifies what a build produces for the native side of the graph.
type ArtifactKind uint8

const (
	// KindStaticLibrary is an archive linked into native targets.
	KindStaticLibrary ArtifactKind = iota + 1
	// KindSharedLibrary is a dynamically loaded library.
	KindSharedLibrary
	// KindExecutable is a runnable program.
	KindExecutable
	// KindObjectOnly is a foreign-only library that native targets cannot link directly.
	KindObjectOnly
)

// String returns the string representation of the ArtifactKind.
func (k ArtifactKind) String() string {
	switch k {
	case KindStaticLibrary:
		return "static-library"
	case KindSharedLibrary:
		return "shared-library"
	case KindExecutable:
		return "executable"
	case KindObjectOnly:
		return "object-only"
	default:
		return "unknown"
	}
}

// ParseArtifactKind converts a kind name back into an ArtifactKind.
// It returns false for unknown names.
func ParseArtifactKind(s string) (ArtifactKind, bool) {
	switch strings.ToLower(s) {
	case "static-library", "static":
		return KindStaticLibrary, true
	case "shared-library", "shared":
		return KindSharedLibrary, true
	case "executable", "bin":
		return KindExecutable, true
	case "object-only", "object":
		return KindObjectOnly, true
	default:
		return 0, false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ArtifactKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ArtifactKind) UnmarshalText(text []byte) error {
	parsed, ok := ParseArtifactKind(string(text))
	if !ok {
		return ErrStoreUnmarshalFailed
	}
	*k = parsed
	return nil
}

// ArtifactDeclaration is an artifact a manifest says its package can produce.
type ArtifactDeclaration struct {
	Kind ArtifactKind
	Name string
	// Requires gates the declaration on enabled features. The zero value always holds.
	Requires Predicate
}

// ResolvedArtifact is a declaration matched to the file the driver produced for it.
type ResolvedArtifact struct {
	Package string       `json:"package"`
	Kind    ArtifactKind `json:"kind"`
	Name    string       `json:"name"`
	Path    string       `json:"path"`
	Triple  string       `json:"triple"`
	// LinkLibraries and LinkSearchPaths are native link requirements reported by build scripts.
	LinkLibraries   []string `json:"linkLibraries,omitempty"`
	LinkSearchPaths []string `json:"linkSearchPaths,omitempty"`
}

// ArtifactKey identifies a graph node. Host-tool builds never share a key with target builds.
type ArtifactKey struct {
	Package string
	Kind    ArtifactKind
	Name    string
	Triple  string
	Host    bool
}

// String renders the key as a stable node identifier.
func (k ArtifactKey) String() string {
	var b strings.Builder
	b.WriteString("oxbridge:")
	b.WriteString(k.Package)
	b.WriteByte(':')
	b.WriteString(k.Kind.String())
	b.WriteByte(':')
	b.WriteString(k.Name)
	b.WriteByte('@')
	b.WriteString(k.Triple)
	if k.Host {
		b.WriteString("+host")
	}
	return b.String()
}
