// Package planner turns a package and a build configuration into a fully-determined driver invocation.
package planner

import (
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/oxbridge/internal/core/domain"
)

// DefaultProgram is the build driver invoked when none is configured.
const DefaultProgram = "cargo"

// messageFormat makes the driver report on stdout in JSON and render diagnostics to stderr.
const messageFormat = "--message-format=json-render-diagnostics"

// Planner builds invocation plans. It performs no I/O.
type Planner struct {
	program string
}

// New creates a Planner for the given driver program.
func New(program string) *Planner {
	if program == "" {
		program = DefaultProgram
	}
	return &Planner{program: program}
}

// Plan validates cfg against the package and toolchain and returns the invocation that builds it.
// Equal inputs always produce an equal plan, including the cache key.
func (p *Planner) Plan(
	pkg *domain.PackageManifest,
	cfg domain.BuildConfiguration,
	toolchain domain.Toolchain,
	fingerprints []domain.Fingerprint,
) (*domain.InvocationPlan, error) {
	if !filepath.IsAbs(pkg.ManifestPath) {
		return nil, &domain.ConfigError{Field: "manifest", Value: pkg.ManifestPath, Reason: "path must be absolute"}
	}

	features := cfg.CanonicalFeatures()
	for _, f := range features {
		if !pkg.HasFeature(f) {
			return nil, &domain.ConfigError{Field: "feature", Value: f, Reason: "not declared by package " + pkg.Name}
		}
	}

	namespace := domain.NamespaceTarget
	triple, ok := toolchain.Resolve(cfg.TargetTriple)
	if cfg.HostTool {
		namespace = domain.NamespaceHost
		triple, ok = toolchain.Resolve("")
	}
	if !ok {
		return nil, &domain.ConfigError{Field: "target", Value: cfg.TargetTriple, Reason: "unknown target triple"}
	}

	if cfg.Profile.Kind == domain.ProfileCustom && !slices.Contains(pkg.Profiles, cfg.Profile.Name) {
		return nil, &domain.ConfigError{Field: "profile", Value: cfg.Profile.Name, Reason: "not defined by the workspace"}
	}

	targetRoot := cfg.TargetDir
	if targetRoot == "" {
		targetRoot = domain.DefaultTargetDir(workspaceRoot(pkg))
	}
	if !filepath.IsAbs(targetRoot) {
		return nil, &domain.ConfigError{Field: "target-dir", Value: targetRoot, Reason: "path must be absolute"}
	}
	targetDir := filepath.Join(targetRoot, string(namespace))

	env, err := environment(cfg, triple)
	if err != nil {
		return nil, err
	}

	args := []string{
		"build",
		"--manifest-path", pkg.ManifestPath,
		messageFormat,
		"--target", triple,
		"--target-dir", targetDir,
	}
	switch cfg.Profile.Kind {
	case domain.ProfileRelease:
		args = append(args, "--release")
	case domain.ProfileCustom:
		args = append(args, "--profile", cfg.Profile.Name)
	}
	if cfg.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	if len(features) > 0 {
		args = append(args, "--features", strings.Join(features, ","))
	}
	if len(cfg.Flags) > 0 {
		flags, err := json.Marshal(cfg.Flags)
		if err != nil {
			return nil, &domain.ConfigError{Field: "flags", Value: strings.Join(cfg.Flags, " "), Reason: err.Error()}
		}
		args = append(args, "--config", "build.rustflags="+string(flags))
	}

	plan := &domain.InvocationPlan{
		Package:      pkg.Name,
		ManifestPath: pkg.ManifestPath,
		Program:      p.program,
		Args:         args,
		Env:          env,
		Dir:          pkg.Dir,
		TargetDir:    targetDir,
		Namespace:    namespace,
		Profile:      cfg.Profile,
		TargetTriple: triple,
		HostTriple:   toolchain.HostTriple,
		Features:     pkg.ExpandFeatures(features, cfg.NoDefaultFeatures).Sorted(),
		Fingerprints: sortedFingerprints(fingerprints),
	}
	plan.CacheKey = cacheKey(plan)
	return plan, nil
}

func sortedFingerprints(fps []domain.Fingerprint) []domain.Fingerprint {
	out := slices.Clone(fps)
	slices.SortFunc(out, func(a, b domain.Fingerprint) int {
		return strings.Compare(a.Path, b.Path)
	})
	return out
}

func workspaceRoot(pkg *domain.PackageManifest) string {
	if pkg.WorkspaceRoot != "" {
		return pkg.WorkspaceRoot
	}
	return pkg.Dir
}

// environment returns the sorted KEY=VALUE overrides, including the cross linker variable.
func environment(cfg domain.BuildConfiguration, triple string) ([]string, error) {
	vars := make(map[string]string, len(cfg.Environment)+1)
	if cfg.Linker != "" && !cfg.HostTool {
		vars[LinkerVariable(triple)] = cfg.Linker
	}
	for k, v := range cfg.Environment {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return nil, &domain.ConfigError{Field: "environment", Value: k, Reason: "invalid variable name"}
		}
		if strings.ContainsRune(v, 0) {
			return nil, &domain.ConfigError{Field: "environment", Value: k, Reason: "value contains NUL"}
		}
		vars[k] = v
	}

	out := make([]string, 0, len(vars))
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		out = append(out, k+"="+vars[k])
	}
	return out, nil
}

// LinkerVariable returns the driver's environment variable that selects the linker for triple.
func LinkerVariable(triple string) string {
	name := triple
	if strings.HasSuffix(name, ".json") {
		name = strings.TrimSuffix(filepath.Base(name), ".json")
	}
	name = strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
	return "CARGO_TARGET_" + name + "_LINKER"
}

// cacheKey digests everything that can change the driver's output.
func cacheKey(plan *domain.InvocationPlan) string {
	h := xxhash.New()
	write := func(s string) {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}
	section := func() {
		_, _ = h.Write([]byte{0})
	}

	write(plan.Program)
	write(plan.ManifestPath)
	write(plan.Dir)
	section()
	for _, arg := range plan.Args {
		write(arg)
	}
	section()
	for _, kv := range plan.Env {
		write(kv)
	}
	section()
	for _, fp := range plan.Fingerprints {
		write(fp.Path)
		write(fp.Digest)
	}

	return fmt.Sprintf("%s-%016x", plan.Namespace, h.Sum64())
}
