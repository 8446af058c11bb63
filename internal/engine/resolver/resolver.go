// Package resolver matches the artifacts a package declares to the files a driver run produced.
package resolver

import (
	"errors"
	"slices"

	"go.trai.ch/oxbridge/internal/core/domain"
)

// Resolver matches declarations to artifact events. It performs no I/O.
type Resolver struct{}

// New creates a new Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve returns one artifact per declaration whose feature predicate holds for the plan.
// Each such declaration must match exactly one produced file for the plan's triple;
// every declaration that does not is reported, joined in declaration order.
func (r *Resolver) Resolve(
	report *domain.BuildReport,
	pkg *domain.PackageManifest,
	plan *domain.InvocationPlan,
) ([]domain.ResolvedArtifact, error) {
	enabled := plan.EnabledFeatures()
	events := report.Artifacts()
	libs, searchPaths := linkRequirements(report)

	var resolved []domain.ResolvedArtifact
	var errs []error
	for _, decl := range pkg.Artifacts {
		if !decl.Requires.Eval(enabled) {
			continue
		}

		candidates := matches(events, pkg.Name, decl, plan.TargetTriple)
		switch len(candidates) {
		case 0:
			errs = append(errs, artifactError(domain.ErrArtifactMissing, pkg.Name, decl, plan.TargetTriple, nil))
			continue
		case 1:
		default:
			errs = append(errs, artifactError(domain.ErrArtifactAmbiguous, pkg.Name, decl, plan.TargetTriple, candidates))
			continue
		}

		artifact := domain.ResolvedArtifact{
			Package: pkg.Name,
			Kind:    decl.Kind,
			Name:    decl.Name,
			Path:    candidates[0],
			Triple:  plan.TargetTriple,
		}
		if decl.Kind == domain.KindStaticLibrary {
			artifact.LinkLibraries = libs
			artifact.LinkSearchPaths = searchPaths
		}
		resolved = append(resolved, artifact)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return resolved, nil
}

// matches returns the distinct paths of events produced for decl.
func matches(events []domain.ArtifactEvent, pkg string, decl domain.ArtifactDeclaration, triple string) []string {
	var paths []string
	for _, ev := range events {
		if ev.Package != pkg || ev.Kind != decl.Kind || ev.Name != decl.Name || ev.Triple != triple {
			continue
		}
		if !slices.Contains(paths, ev.Path) {
			paths = append(paths, ev.Path)
		}
	}
	return paths
}

// linkRequirements collects the native libraries and search paths every build script of the run asked for.
// A static library bundles its dependencies, so their native requirements become its own.
func linkRequirements(report *domain.BuildReport) (libs, searchPaths []string) {
	for _, ev := range report.BuildScripts() {
		switch ev.Key {
		case "rustc-link-lib":
			if !slices.Contains(libs, ev.Value) {
				libs = append(libs, ev.Value)
			}
		case "rustc-link-search":
			if !slices.Contains(searchPaths, ev.Value) {
				searchPaths = append(searchPaths, ev.Value)
			}
		}
	}
	return libs, searchPaths
}

func artifactError(kind error, pkg string, decl domain.ArtifactDeclaration, triple string, candidates []string) error {
	return &domain.ArtifactError{
		Kind:         kind,
		Package:      pkg,
		ArtifactKind: decl.Kind,
		Name:         decl.Name,
		Triple:       triple,
		Candidates:   candidates,
	}
}
