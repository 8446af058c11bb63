package domain

import (
	"fmt"
	"strings"

	"go.trai.ch/zerr"
)

var (
	// ErrManifestNotFound is returned when a directory does not contain a package manifest.
	ErrManifestNotFound = zerr.New("manifest not found")

	// ErrManifestParse is returned when a package manifest cannot be decoded.
	ErrManifestParse = zerr.New("failed to parse manifest")

	// ErrWorkspaceCycle is returned when workspace membership forms a cycle.
	ErrWorkspaceCycle = zerr.New("workspace membership cycle")

	// ErrInvalidConfiguration is returned when a build configuration cannot be planned.
	ErrInvalidConfiguration = zerr.New("invalid build configuration")

	// ErrDriverUnavailable is returned when the build driver cannot be started.
	ErrDriverUnavailable = zerr.New("build driver unavailable")

	// ErrDriverFailed is returned when the build driver exits unsuccessfully.
	ErrDriverFailed = zerr.New("build driver failed")

	// ErrDriverTimeout is returned when the build driver exceeds its deadline.
	ErrDriverTimeout = zerr.New("build driver timed out")

	// ErrArtifactMissing is returned when a declared artifact was not produced.
	ErrArtifactMissing = zerr.New("artifact missing")

	// ErrArtifactAmbiguous is returned when more than one produced artifact matches a declaration.
	ErrArtifactAmbiguous = zerr.New("artifact ambiguous")

	// ErrNodeNotFound is returned when no graph node matches a lookup.
	ErrNodeNotFound = zerr.New("graph node not found")

	// ErrPackageNotFound is returned when a requested package is not part of the workspace.
	ErrPackageNotFound = zerr.New("package not found in workspace")

	// ErrPackageRequired is returned when a workspace has several packages and none was selected.
	ErrPackageRequired = zerr.New("workspace has several packages, select one")

	// ErrRelativePath is returned when a path handed to the bridge is not absolute.
	ErrRelativePath = zerr.New("path must be absolute")

	// ErrInvalidPredicate is returned when a feature predicate expression cannot be parsed.
	ErrInvalidPredicate = zerr.New("invalid feature predicate")

	// ErrCancelledByHost is returned when the host graph cancels an in-flight build.
	ErrCancelledByHost = zerr.New("build cancelled by host")

	// ErrImportNotFound is returned when a requested import is not declared in the project.
	ErrImportNotFound = zerr.New("import not found")

	// ErrNoImports is returned when the project configures nothing to build.
	ErrNoImports = zerr.New("no imports configured")

	// ErrBuildFailed is returned when one or more imports failed to build.
	ErrBuildFailed = zerr.New("build failed")

	// ErrStoreCreateFailed is returned when the build record store directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create build record store directory")

	// ErrStoreReadFailed is returned when a build record cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read build record")

	// ErrStoreUnmarshalFailed is returned when a build record cannot be unmarshaled.
	ErrStoreUnmarshalFailed = zerr.New("failed to unmarshal build record")

	// ErrStoreMarshalFailed is returned when a build record cannot be marshaled.
	ErrStoreMarshalFailed = zerr.New("failed to marshal build record")

	// ErrStoreWriteFailed is returned when a build record cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write build record")

	// ErrConfigNotFound is returned when no project configuration file can be found.
	ErrConfigNotFound = zerr.New("could not find " + ConfigFileName)

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrEnvFileReadFailed is returned when an import's env file cannot be read.
	ErrEnvFileReadFailed = zerr.New("failed to read env file")

	// ErrFileHashFailed is returned when hashing a file fails.
	ErrFileHashFailed = zerr.New("failed to hash file content")

	// ErrWatcherFailed is returned when the file watcher cannot be started.
	ErrWatcherFailed = zerr.New("failed to start file watcher")
)

// ManifestError reports a manifest that could not be read, decoded, or linked into a workspace.
type ManifestError struct {
	// Kind is one of ErrManifestNotFound, ErrManifestParse or ErrWorkspaceCycle.
	Kind error
	// Path is the manifest file involved.
	Path string
	// Line and Column locate a parse error, 1-based. Zero when unknown.
	Line   int
	Column int
	// Cycle lists the manifest paths forming a workspace cycle, first entry repeated at the end.
	Cycle []string
	Err   error
}

func (e *ManifestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if len(e.Cycle) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Cycle, " -> "))
	} else if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ManifestError) Unwrap() []error {
	return unwrapPair(e.Kind, e.Err)
}

// ConfigError reports a build configuration rejected before any subprocess was started.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %q: %s", ErrInvalidConfiguration.Error(), e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfiguration
}

// DriverError reports a build driver invocation that did not complete successfully.
type DriverError struct {
	// Kind is one of ErrDriverUnavailable, ErrDriverFailed or ErrDriverTimeout.
	Kind     error
	CacheKey string
	Argv     []string
	Dir      string
	// ExitCode is the driver's exit status, -1 when it never exited normally.
	ExitCode int
	// Diagnostics holds the last diagnostics reported before the failure.
	Diagnostics []string
	Err         error
}

func (e *DriverError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Kind == ErrDriverFailed {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if len(e.Argv) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Argv, " "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	for _, d := range e.Diagnostics {
		b.WriteString("\n")
		b.WriteString(d)
	}
	return b.String()
}

func (e *DriverError) Unwrap() []error {
	return unwrapPair(e.Kind, e.Err)
}

// ArtifactError reports a declared artifact that could not be matched to exactly one produced file.
type ArtifactError struct {
	// Kind is one of ErrArtifactMissing, ErrArtifactAmbiguous or ErrNodeNotFound.
	Kind         error
	Package      string
	ArtifactKind ArtifactKind
	Name         string
	Triple       string
	// Candidates lists the paths that matched when the lookup was ambiguous.
	Candidates []string
}

func (e *ArtifactError) Error() string {
	msg := fmt.Sprintf("%s: %s %s %q for %s", e.Kind.Error(), e.Package, e.ArtifactKind, e.Name, e.Triple)
	if len(e.Candidates) > 0 {
		msg += " (" + strings.Join(e.Candidates, ", ") + ")"
	}
	return msg
}

func (e *ArtifactError) Unwrap() error {
	return e.Kind
}

func unwrapPair(kind, cause error) []error {
	if cause == nil {
		return []error{kind}
	}
	return []error{kind, cause}
}
