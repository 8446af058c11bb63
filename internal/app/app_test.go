package app_test

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/oxbridge/internal/app"
	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
	"go.trai.ch/oxbridge/internal/core/ports/mocks"
	"go.trai.ch/oxbridge/internal/engine/bridge"
	"go.uber.org/mock/gomock"
)

const hostTriple = "x86_64-unknown-linux-gnu"

// fakeBridge answers requests without reading manifests or running a driver.
type fakeBridge struct {
	mu       sync.Mutex
	requests []bridge.Request
	fail     map[string]error
	broken   map[string]error
	affected []domain.UnitID
	deps     map[string][]string
	delay    time.Duration
	active   int
	peak     int
}

func (f *fakeBridge) Build(_ context.Context, req bridge.Request) (*bridge.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.active++
	f.peak = max(f.peak, f.active)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := f.fail[req.Name]; err != nil {
		return nil, err
	}
	if err := f.broken[req.Name]; err != nil {
		return nil, err
	}

	plan := planFor(req)
	return &bridge.Result{
		Plan:  plan,
		Nodes: []domain.GraphNode{{ID: 1, Key: domain.ArtifactKey{Package: req.Name}}},
	}, nil
}

func (f *fakeBridge) Plan(req bridge.Request) (*domain.InvocationPlan, *domain.PackageManifest, error) {
	if err := f.fail[req.Name]; err != nil {
		return nil, nil, err
	}
	return planFor(req), &domain.PackageManifest{Name: req.Name, PathDependencies: f.deps[req.Name]}, nil
}

func (f *fakeBridge) Affected([]string) []domain.UnitID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.affected
}

func (f *fakeBridge) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Name
	}
	return out
}

func planFor(req bridge.Request) *domain.InvocationPlan {
	ns := domain.NamespaceTarget
	if req.Config.HostTool {
		ns = domain.NamespaceHost
	}
	return &domain.InvocationPlan{
		Package:      req.Name,
		ManifestPath: filepath.Join(req.ManifestDir, domain.ManifestFileName),
		TargetDir:    filepath.Join(domain.DefaultTargetDir(req.ManifestDir), string(ns)),
		Namespace:    ns,
		TargetTriple: hostTriple,
		HostTriple:   hostTriple,
		CacheKey:     string(ns) + "-" + req.Name,
	}
}

func testProject(root string) *domain.Project {
	return &domain.Project{
		Root:   root,
		Driver: "/opt/cargo/bin/cargo",
		Jobs:   4,
		Imports: []domain.Import{
			{
				Name:        "codegen",
				ManifestDir: filepath.Join(root, "codegen"),
				Config:      domain.BuildConfiguration{Profile: domain.Release(), HostTool: true},
			},
			{
				Name:        "greet",
				ManifestDir: filepath.Join(root, "greet"),
				Package:     "greet",
				Timeout:     time.Minute,
				Config: domain.BuildConfiguration{
					Profile:     domain.Debug(),
					Features:    []string{"loud"},
					Environment: map[string]string{"GREETING": "hi"},
				},
			},
		},
	}
}

func newApp(t *testing.T, project *domain.Project, b app.Bridge) (*app.App, *mocks.MockWatcher) {
	t.Helper()

	ctrl := gomock.NewController(t)
	loader := mocks.NewMockConfigLoader(ctrl)
	loader.EXPECT().Load(".").Return(project, nil).AnyTimes()

	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Error(gomock.Any()).AnyTimes()

	w := mocks.NewMockWatcher(ctrl)
	return app.New(loader, b, w, log), w
}

func TestApp_Build(t *testing.T) {
	project := testProject("/ws")
	fb := &fakeBridge{}
	a, _ := newApp(t, project, fb)

	outcomes, err := a.Build(t.Context(), app.BuildOptions{})
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	assert.Equal(t, "codegen", outcomes[0].Import)
	assert.Equal(t, "greet", outcomes[1].Import)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		assert.Len(t, o.Result.Nodes, 1)
	}

	require.Len(t, fb.requests, 2)
	var greet bridge.Request
	for _, r := range fb.requests {
		if r.Name == "greet" {
			greet = r
		}
	}
	assert.Equal(t, bridge.Request{
		Name:        "greet",
		ManifestDir: "/ws/greet",
		Package:     "greet",
		Config:      project.Imports[1].Config,
		Program:     "/opt/cargo/bin/cargo",
		Timeout:     time.Minute,
		RecordRoot:  "/ws",
	}, greet)
}

func TestApp_Build_Overrides(t *testing.T) {
	project := testProject("/ws")
	fb := &fakeBridge{}
	a, _ := newApp(t, project, fb)

	_, err := a.Build(t.Context(), app.BuildOptions{
		Imports: []string{"greet", "greet"},
		Overrides: app.Overrides{
			Profile:           "release",
			Target:            "aarch64-unknown-linux-gnu",
			Features:          []string{"color"},
			NoDefaultFeatures: true,
			Host:              true,
		},
	})
	require.NoError(t, err)

	require.Len(t, fb.requests, 1)
	cfg := fb.requests[0].Config
	assert.Equal(t, domain.Release(), cfg.Profile)
	assert.Equal(t, "aarch64-unknown-linux-gnu", cfg.TargetTriple)
	assert.Equal(t, []string{"color"}, cfg.Features)
	assert.True(t, cfg.NoDefaultFeatures)
	assert.True(t, cfg.HostTool)

	// The loaded configuration is left alone.
	assert.Equal(t, []string{"loud"}, project.Imports[1].Config.Features)
	assert.False(t, project.Imports[1].Config.HostTool)
}

func TestApp_Build_Failure(t *testing.T) {
	driverErr := &domain.DriverError{Kind: domain.ErrDriverFailed, ExitCode: 1, Diagnostics: []string{"undefined symbol"}}
	fb := &fakeBridge{fail: map[string]error{"greet": driverErr}}
	a, _ := newApp(t, testProject("/ws"), fb)

	outcomes, err := a.Build(t.Context(), app.BuildOptions{})
	require.ErrorIs(t, err, domain.ErrBuildFailed)
	require.ErrorIs(t, err, domain.ErrDriverFailed)

	var got *domain.DriverError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 1, got.ExitCode)

	require.Len(t, outcomes, 2)
	require.NoError(t, outcomes[0].Err)
	require.Error(t, outcomes[1].Err)
	assert.Nil(t, outcomes[1].Result)
}

func TestApp_Build_Selection(t *testing.T) {
	t.Run("unknown import", func(t *testing.T) {
		a, _ := newApp(t, testProject("/ws"), &fakeBridge{})
		_, err := a.Build(t.Context(), app.BuildOptions{Imports: []string{"nope"}})
		require.ErrorIs(t, err, domain.ErrImportNotFound)
	})

	t.Run("no imports", func(t *testing.T) {
		a, _ := newApp(t, &domain.Project{Root: "/ws"}, &fakeBridge{})
		_, err := a.Build(t.Context(), app.BuildOptions{})
		require.ErrorIs(t, err, domain.ErrNoImports)
	})

	t.Run("config error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		loader := mocks.NewMockConfigLoader(ctrl)
		loader.EXPECT().Load("/elsewhere").Return(nil, domain.ErrConfigNotFound)

		a := app.New(loader, &fakeBridge{}, mocks.NewMockWatcher(ctrl), mocks.NewMockLogger(ctrl)).
			WithWorkingDir("/elsewhere")
		_, err := a.Build(t.Context(), app.BuildOptions{})
		require.ErrorIs(t, err, domain.ErrConfigNotFound)
	})
}

func TestApp_Build_JobsLimit(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		project := testProject("/ws")
		for _, name := range []string{"a", "b", "c", "d"} {
			project.Imports = append(project.Imports, domain.Import{Name: name, ManifestDir: "/ws/" + name})
		}

		fb := &fakeBridge{delay: time.Second}
		a, _ := newApp(t, project, fb)

		_, err := a.Build(t.Context(), app.BuildOptions{Jobs: 2})
		require.NoError(t, err)

		assert.Len(t, fb.requests, 6)
		assert.Equal(t, 2, fb.peak)
	})
}

func TestApp_Plan(t *testing.T) {
	fb := &fakeBridge{}
	a, _ := newApp(t, testProject("/ws"), fb)

	planned, err := a.Plan(t.Context(), []string{"greet"}, app.Overrides{Host: true})
	require.NoError(t, err)
	require.Len(t, planned, 1)
	assert.Equal(t, "greet", planned[0].Import)
	assert.Equal(t, domain.NamespaceHost, planned[0].Plan.Namespace)
	assert.Empty(t, fb.requests)

	fb.fail = map[string]error{"codegen": domain.ErrManifestNotFound}
	_, err = a.Plan(t.Context(), nil, app.Overrides{})
	require.ErrorIs(t, err, domain.ErrManifestNotFound)
}

func TestApp_Clean(t *testing.T) {
	root := t.TempDir()
	project := testProject(root)

	records := domain.DefaultStorePath(root)
	require.NoError(t, os.MkdirAll(records, domain.DirPerm))
	greetTarget := filepath.Join(domain.DefaultTargetDir(filepath.Join(root, "greet")), "target")
	require.NoError(t, os.MkdirAll(filepath.Join(greetTarget, hostTriple), domain.DirPerm))
	// Not owned by the bridge.
	cargoTarget := filepath.Join(root, "greet", "target", "debug")
	require.NoError(t, os.MkdirAll(cargoTarget, domain.DirPerm))

	a, _ := newApp(t, project, &fakeBridge{})

	require.NoError(t, a.Clean(t.Context(), app.CleanOptions{Records: true}))
	assert.NoDirExists(t, records)
	assert.DirExists(t, greetTarget)

	require.NoError(t, a.Clean(t.Context(), app.CleanOptions{Targets: true}))
	assert.NoDirExists(t, greetTarget)
	assert.DirExists(t, cargoTarget)
}

func TestApp_Clean_PlanFailure(t *testing.T) {
	fb := &fakeBridge{fail: map[string]error{"greet": domain.ErrManifestNotFound}}
	a, _ := newApp(t, testProject(t.TempDir()), fb)

	err := a.Clean(t.Context(), app.CleanOptions{Targets: true})
	require.ErrorIs(t, err, domain.ErrManifestNotFound)
}

// channelWatcher feeds a mock watcher from a channel.
func channelWatcher(events <-chan ports.WatchEvent) iter.Seq[ports.WatchEvent] {
	return func(yield func(ports.WatchEvent) bool) {
		for ev := range events {
			if !yield(ev) {
				return
			}
		}
	}
}

func TestApp_Watch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		project := testProject("/ws")
		greetUnit := planFor(bridge.Request{Name: "greet", ManifestDir: "/ws/greet"}).Unit()
		fb := &fakeBridge{fail: map[string]error{"codegen": errors.New("boom")}}
		a, w := newApp(t, project, fb)

		events := make(chan ports.WatchEvent)
		w.EXPECT().Start(gomock.Any(), "/ws/codegen", "/ws/greet").Return(nil)
		w.EXPECT().Events().Return(channelWatcher(events))
		w.EXPECT().Stop().Return(nil)

		var (
			mu     sync.Mutex
			rounds [][]string
		)
		done := make(chan error)
		go func() {
			done <- a.Watch(t.Context(), app.WatchOptions{
				Debounce: 100 * time.Millisecond,
				OnBuild: func(outcomes []app.Outcome, _ error) {
					mu.Lock()
					defer mu.Unlock()
					var names []string
					for _, o := range outcomes {
						names = append(names, o.Import)
					}
					rounds = append(rounds, names)
				},
			})
		}()
		synctest.Wait()

		// A source change inside a built unit rebuilds only its import.
		fb.mu.Lock()
		fb.affected = []domain.UnitID{greetUnit}
		fb.mu.Unlock()
		events <- ports.WatchEvent{Path: "/ws/greet/src/lib.rs", Operation: ports.OpWrite}
		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		// An import that never built is retried on any change below it.
		fb.mu.Lock()
		fb.affected = nil
		fb.mu.Unlock()
		events <- ports.WatchEvent{Path: "/ws/codegen/build.rs", Operation: ports.OpWrite}
		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		// Output written by the driver is not a change.
		events <- ports.WatchEvent{Path: "/ws/greet/target/oxbridge/target/libgreet.a", Operation: ports.OpCreate}
		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		close(events)
		require.NoError(t, <-done)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, [][]string{{"codegen", "greet"}, {"greet"}, {"codegen"}}, rounds)
		assert.Equal(t, []string{"greet", "codegen"}, fb.names()[2:])
	})
}

func TestApp_Watch_PathDependencies(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		project := testProject("/ws")
		fb := &fakeBridge{
			broken: map[string]error{"codegen": errors.New("boom")},
			deps: map[string][]string{
				"codegen": {"/shared/gen"},
				"greet":   {"/shared/util", "/ws/greet/vendor/fmt"},
			},
		}
		a, w := newApp(t, project, fb)

		events := make(chan ports.WatchEvent)
		w.EXPECT().Start(gomock.Any(), "/shared/gen", "/shared/util", "/ws/codegen", "/ws/greet").Return(nil)
		w.EXPECT().Events().Return(channelWatcher(events))
		w.EXPECT().Stop().Return(nil)

		done := make(chan error)
		go func() {
			done <- a.Watch(t.Context(), app.WatchOptions{Debounce: 100 * time.Millisecond})
		}()
		synctest.Wait()

		// codegen never built, so a change in its path dependency retries it.
		events <- ports.WatchEvent{Path: "/shared/gen/src/lib.rs", Operation: ports.OpWrite}
		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		// greet built, so it waits for the bridge to report its unit affected.
		events <- ports.WatchEvent{Path: "/shared/util/src/lib.rs", Operation: ports.OpWrite}
		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		close(events)
		require.NoError(t, <-done)
		assert.Equal(t, []string{"codegen"}, fb.names()[2:])
	})
}

func TestApp_Watch_StartFailure(t *testing.T) {
	a, w := newApp(t, testProject("/ws"), &fakeBridge{})
	w.EXPECT().Start(gomock.Any(), "/ws/codegen", "/ws/greet").Return(domain.ErrWatcherFailed)

	err := a.Watch(t.Context(), app.WatchOptions{})
	require.ErrorIs(t, err, domain.ErrWatcherFailed)
}
