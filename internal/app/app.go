// Package app implements the application layer for oxbridge.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
	"go.trai.ch/oxbridge/internal/engine/bridge"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Bridge is the build bridge as the application drives it.
type Bridge interface {
	Build(ctx context.Context, req bridge.Request) (*bridge.Result, error)
	Plan(req bridge.Request) (*domain.InvocationPlan, *domain.PackageManifest, error)
	Affected(paths []string) []domain.UnitID
}

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	bridge       Bridge
	watcher      ports.Watcher
	logger       ports.Logger
	cwd          string
}

// New creates a new App instance.
func New(loader ports.ConfigLoader, b Bridge, watcher ports.Watcher, log ports.Logger) *App {
	return &App{
		configLoader: loader,
		bridge:       b,
		watcher:      watcher,
		logger:       log,
		cwd:          ".",
	}
}

// WithWorkingDir makes the App look for its configuration from dir instead of the process working directory.
func (a *App) WithWorkingDir(dir string) *App {
	a.cwd = dir
	return a
}

// Overrides replace parts of every selected import's configuration for one invocation.
type Overrides struct {
	// Profile replaces the profile when not empty.
	Profile string
	// Target replaces the target triple when not empty.
	Target string
	// Features replaces the feature set when not nil.
	Features          []string
	NoDefaultFeatures bool
	// Host builds every selected import as a host tool.
	Host bool
}

// BuildOptions configuration for the Build method.
type BuildOptions struct {
	// Imports selects imports by name. Empty selects all of them.
	Imports   []string
	Overrides Overrides
	// Jobs bounds how many imports build at once. Zero uses the project setting.
	Jobs int
}

// Outcome is what happened to one import.
type Outcome struct {
	Import string
	Result *bridge.Result
	Err    error
}

// Build builds the selected imports concurrently and returns one outcome per import, in configuration order.
// It fails with domain.ErrBuildFailed, joined with every import's error, when any import failed.
func (a *App) Build(ctx context.Context, opts BuildOptions) ([]Outcome, error) {
	project, err := a.load()
	if err != nil {
		return nil, err
	}

	imports, err := selectImports(project, opts.Imports)
	if err != nil {
		return nil, err
	}

	jobs := project.Jobs
	if opts.Jobs > 0 {
		jobs = opts.Jobs
	}

	outcomes := a.buildImports(ctx, project, imports, opts.Overrides, jobs)
	return outcomes, outcomeErr(outcomes)
}

func (a *App) buildImports(
	ctx context.Context,
	project *domain.Project,
	imports []domain.Import,
	overrides Overrides,
	jobs int,
) []Outcome {
	outcomes := make([]Outcome, len(imports))

	var g errgroup.Group
	g.SetLimit(max(jobs, 1))
	for i, imp := range imports {
		g.Go(func() error {
			res, err := a.bridge.Build(ctx, request(project, imp, overrides))
			if err != nil {
				err = zerr.With(zerr.Wrap(err, "failed to build "+imp.Name), "import", imp.Name)
			} else {
				a.logger.Info(summary(imp.Name, res))
			}
			outcomes[i] = Outcome{Import: imp.Name, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// PlannedImport pairs an import with the invocation that would build it.
type PlannedImport struct {
	Import string
	Plan   *domain.InvocationPlan
}

// Plan returns the driver invocation of every selected import without running anything.
func (a *App) Plan(_ context.Context, names []string, overrides Overrides) ([]PlannedImport, error) {
	project, err := a.load()
	if err != nil {
		return nil, err
	}

	imports, err := selectImports(project, names)
	if err != nil {
		return nil, err
	}

	planned := make([]PlannedImport, 0, len(imports))
	for _, imp := range imports {
		plan, _, err := a.bridge.Plan(request(project, imp, overrides))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to plan "+imp.Name), "import", imp.Name)
		}
		planned = append(planned, PlannedImport{Import: imp.Name, Plan: plan})
	}
	return planned, nil
}

// CleanOptions configuration for the Clean method.
type CleanOptions struct {
	// Records removes the persisted build records.
	Records bool
	// Targets removes the directories the driver built into.
	Targets bool
}

// Clean removes persisted state based on the provided options.
func (a *App) Clean(_ context.Context, options CleanOptions) error {
	project, err := a.load()
	if err != nil {
		return err
	}

	var errs error

	remove := func(path string, name string) {
		a.logger.Info(fmt.Sprintf("removing %s...", name))
		if err := os.RemoveAll(path); err != nil {
			errs = errors.Join(errs, zerr.With(zerr.Wrap(err, "failed to remove "+name), "path", path))
			return
		}
		a.logger.Info(fmt.Sprintf("removed %s", name))
	}

	if options.Records {
		remove(domain.DefaultStorePath(project.Root), "build records")
	}

	if options.Targets {
		seen := make(map[string]bool)
		for _, imp := range project.Imports {
			for _, host := range []bool{false, true} {
				plan, _, err := a.bridge.Plan(request(project, imp, Overrides{Host: host}))
				if err != nil {
					errs = errors.Join(errs, zerr.With(zerr.Wrap(err, "failed to locate target directory"), "import", imp.Name))
					break
				}
				if seen[plan.TargetDir] {
					continue
				}
				seen[plan.TargetDir] = true
				if _, err := os.Stat(plan.TargetDir); errors.Is(err, os.ErrNotExist) {
					continue
				}
				remove(plan.TargetDir, "target directory "+plan.TargetDir)
			}
		}
	}

	return errs
}

func (a *App) load() (*domain.Project, error) {
	project, err := a.configLoader.Load(a.cwd)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return project, nil
}

func selectImports(project *domain.Project, names []string) ([]domain.Import, error) {
	if len(project.Imports) == 0 {
		return nil, domain.ErrNoImports
	}
	if len(names) == 0 {
		return project.Imports, nil
	}

	selected := make([]domain.Import, 0, len(names))
	for _, name := range names {
		imp, ok := project.Import(name)
		if !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrImportNotFound, "unknown import"), "import", name)
		}
		if !slices.ContainsFunc(selected, func(s domain.Import) bool { return s.Name == name }) {
			selected = append(selected, imp)
		}
	}
	return selected, nil
}

// request turns an import into a bridge request, applying overrides to a copy of its configuration.
func request(project *domain.Project, imp domain.Import, overrides Overrides) bridge.Request {
	cfg := imp.Config.Clone()
	if overrides.Profile != "" {
		cfg.Profile = domain.ParseProfile(overrides.Profile)
	}
	if overrides.Target != "" {
		cfg.TargetTriple = overrides.Target
	}
	if overrides.Features != nil {
		cfg.Features = slices.Clone(overrides.Features)
	}
	if overrides.NoDefaultFeatures {
		cfg.NoDefaultFeatures = true
	}
	if overrides.Host {
		cfg.HostTool = true
	}

	return bridge.Request{
		Name:        imp.Name,
		ManifestDir: imp.ManifestDir,
		Package:     imp.Package,
		Config:      cfg,
		Program:     project.Driver,
		Timeout:     imp.Timeout,
		RecordRoot:  project.Root,
	}
}

func summary(name string, res *bridge.Result) string {
	switch {
	case res.Cached:
		return fmt.Sprintf("%s: up to date (%d artifacts)", name, len(res.Nodes))
	case res.Shared:
		return fmt.Sprintf("%s: built by a concurrent request (%d artifacts)", name, len(res.Nodes))
	default:
		return fmt.Sprintf("%s: built %d artifacts", name, len(res.Nodes))
	}
}

func outcomeErr(outcomes []Outcome) error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{domain.ErrBuildFailed}, errs...)...)
}
