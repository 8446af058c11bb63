package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/engine/resolver"
)

const triple = "x86_64-unknown-linux-gnu"

func greet() *domain.PackageManifest {
	return &domain.PackageManifest{
		Name: "greet",
		Artifacts: []domain.ArtifactDeclaration{
			{Kind: domain.KindStaticLibrary, Name: "greet"},
			{Kind: domain.KindExecutable, Name: "greet"},
			{Kind: domain.KindExecutable, Name: "greet-tui", Requires: domain.Atom("tui")},
		},
	}
}

func plan(features ...string) *domain.InvocationPlan {
	return &domain.InvocationPlan{Package: "greet", TargetTriple: triple, Features: features}
}

func artifact(kind domain.ArtifactKind, name, path string) domain.ArtifactEvent {
	return domain.ArtifactEvent{Package: "greet", Name: name, Kind: kind, Path: path, Triple: triple}
}

func TestResolve_GreetScenario(t *testing.T) {
	report := &domain.BuildReport{Events: []domain.Event{
		domain.BuildScriptEvent{Package: "openssl-sys", Key: "rustc-link-lib", Value: "ssl"},
		domain.BuildScriptEvent{Package: "openssl-sys", Key: "rustc-link-search", Value: "native=/usr/lib"},
		domain.BuildScriptEvent{Package: "greet", Key: "rustc-cfg", Value: "has_ssl"},
		artifact(domain.KindStaticLibrary, "greet", "/t/libgreet.a"),
		artifact(domain.KindExecutable, "greet", "/t/greet"),
		domain.FinishedEvent{Success: true},
	}}

	got, err := resolver.New().Resolve(report, greet(), plan())
	require.NoError(t, err)

	assert.Equal(t, []domain.ResolvedArtifact{
		{
			Package: "greet", Kind: domain.KindStaticLibrary, Name: "greet", Path: "/t/libgreet.a", Triple: triple,
			LinkLibraries: []string{"ssl"}, LinkSearchPaths: []string{"native=/usr/lib"},
		},
		{Package: "greet", Kind: domain.KindExecutable, Name: "greet", Path: "/t/greet", Triple: triple},
	}, got)
}

func TestResolve_FeatureGating(t *testing.T) {
	report := &domain.BuildReport{Events: []domain.Event{
		artifact(domain.KindStaticLibrary, "greet", "/t/libgreet.a"),
		artifact(domain.KindExecutable, "greet", "/t/greet"),
	}}

	got, err := resolver.New().Resolve(report, greet(), plan())
	require.NoError(t, err)
	assert.Len(t, got, 2, "unsatisfied declarations are skipped")

	_, err = resolver.New().Resolve(report, greet(), plan("tui"))
	require.ErrorIs(t, err, domain.ErrArtifactMissing)

	var aerr *domain.ArtifactError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "greet-tui", aerr.Name)
}

func TestResolve_Ambiguous(t *testing.T) {
	report := &domain.BuildReport{Events: []domain.Event{
		artifact(domain.KindStaticLibrary, "greet", "/t/libgreet.a"),
		artifact(domain.KindStaticLibrary, "greet", "/t/deps/libgreet.a"),
		artifact(domain.KindExecutable, "greet", "/t/greet"),
		artifact(domain.KindExecutable, "greet", "/t/greet"),
	}}

	_, err := resolver.New().Resolve(report, greet(), plan())
	require.ErrorIs(t, err, domain.ErrArtifactAmbiguous)
	assert.NotErrorIs(t, err, domain.ErrArtifactMissing, "the same path reported twice is one candidate")

	var aerr *domain.ArtifactError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, []string{"/t/libgreet.a", "/t/deps/libgreet.a"}, aerr.Candidates)
}

func TestResolve_IgnoresOtherTriplesAndPackages(t *testing.T) {
	other := artifact(domain.KindStaticLibrary, "greet", "/t/aarch64/libgreet.a")
	other.Triple = "aarch64-unknown-linux-gnu"
	dep := artifact(domain.KindStaticLibrary, "greet", "/t/libdep.a")
	dep.Package = "greet-sys"

	report := &domain.BuildReport{Events: []domain.Event{
		other, dep,
		artifact(domain.KindStaticLibrary, "greet", "/t/libgreet.a"),
		artifact(domain.KindExecutable, "greet", "/t/greet"),
	}}

	got, err := resolver.New().Resolve(report, greet(), plan())
	require.NoError(t, err)
	assert.Equal(t, "/t/libgreet.a", got[0].Path)
}

func TestResolve_ReportsEveryMissingDeclaration(t *testing.T) {
	_, err := resolver.New().Resolve(&domain.BuildReport{}, greet(), plan())
	require.ErrorIs(t, err, domain.ErrArtifactMissing)
	assert.ErrorContains(t, err, "static-library")
	assert.ErrorContains(t, err, "executable")
}
