package app

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.trai.ch/oxbridge/internal/adapters/watcher" //nolint:depguard // Wired in app layer
	"go.trai.ch/oxbridge/internal/core/domain"
)

// WatchOptions configuration for the Watch method.
type WatchOptions struct {
	BuildOptions
	// Debounce is how long changes must settle before a rebuild. Zero uses watcher.DefaultDebounceWindow.
	Debounce time.Duration
	// OnBuild receives the outcomes of every build round, including the first one.
	// Failures are logged either way.
	OnBuild func(outcomes []Outcome, err error)
}

// Watch builds the selected imports, then rebuilds the ones whose inputs change until ctx is done.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	project, err := a.load()
	if err != nil {
		return err
	}

	imports, err := selectImports(project, opts.Imports)
	if err != nil {
		return err
	}

	jobs := project.Jobs
	if opts.Jobs > 0 {
		jobs = opts.Jobs
	}

	s := &watchSession{
		app:     a,
		project: project,
		imports: imports,
		opts:    opts,
		jobs:    jobs,
		owners:  make(map[domain.UnitID]string),
		outputs: make(map[string]struct{}),
		inputs:  make(map[string][]string, len(imports)),
	}
	for _, imp := range imports {
		s.inputs[imp.Name] = a.inputDirs(project, imp, opts.Overrides)
	}

	s.round(ctx, imports)

	if err := a.watcher.Start(ctx, watchRoots(s.inputs)...); err != nil {
		return err
	}
	defer func() { _ = a.watcher.Stop() }()

	window := opts.Debounce
	if window <= 0 {
		window = watcher.DefaultDebounceWindow
	}
	debouncer := watcher.NewDebouncer(window, func(paths []string) {
		s.changed(ctx, paths)
	})

	a.logger.Info(fmt.Sprintf("watching %d imports for changes", len(imports)))

	for event := range a.watcher.Events() {
		debouncer.Add(event.Path)
	}

	debouncer.Stop()
	// Wait for a round still in progress.
	s.mu.Lock()
	defer s.mu.Unlock()

	return nil
}

// watchSession tracks which import owns which unit across build rounds.
type watchSession struct {
	app     *App
	project *domain.Project
	imports []domain.Import
	opts    WatchOptions
	jobs    int

	mu sync.Mutex
	// owners maps each unit built so far to its import.
	owners map[domain.UnitID]string
	// outputs holds the target directories built into so far.
	outputs map[string]struct{}
	// inputs maps each import to its manifest directory and the directories of its path dependencies.
	inputs map[string][]string
}

func (s *watchSession) round(ctx context.Context, imports []domain.Import) {
	outcomes := s.app.buildImports(ctx, s.project, imports, s.opts.Overrides, s.jobs)
	for _, o := range outcomes {
		if o.Result == nil {
			continue
		}
		s.owners[o.Result.Plan.Unit()] = o.Import
		s.outputs[o.Result.Plan.TargetDir] = struct{}{}
	}

	err := outcomeErr(outcomes)
	if err != nil {
		s.app.logger.Error(err)
	}
	if s.opts.OnBuild != nil {
		s.opts.OnBuild(outcomes, err)
	}
}

func (s *watchSession) changed(ctx context.Context, paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	paths = slices.DeleteFunc(paths, func(p string) bool {
		for dir := range s.outputs {
			if within(dir, p) {
				return true
			}
		}
		return false
	})
	if len(paths) == 0 {
		return
	}

	affected := s.affected(paths)
	if len(affected) == 0 {
		return
	}

	names := make([]string, len(affected))
	for i, imp := range affected {
		names[i] = imp.Name
	}
	s.app.logger.Info("changes detected, rebuilding " + strings.Join(names, ", "))

	s.round(ctx, affected)
}

// affected returns the imports to rebuild for paths: those owning an affected unit,
// and those without any built unit whose input directories contain a changed path.
func (s *watchSession) affected(paths []string) []domain.Import {
	names := make(map[string]bool)
	for _, unit := range s.app.bridge.Affected(paths) {
		if name, ok := s.owners[unit]; ok {
			names[name] = true
		}
	}

	var out []domain.Import
	for _, imp := range s.imports {
		if names[imp.Name] {
			out = append(out, imp)
			continue
		}
		if s.owns(imp.Name) {
			continue
		}
		if slices.ContainsFunc(paths, func(p string) bool {
			return slices.ContainsFunc(s.inputs[imp.Name], func(dir string) bool { return within(dir, p) })
		}) {
			out = append(out, imp)
		}
	}
	return out
}

func (s *watchSession) owns(name string) bool {
	for _, owner := range s.owners {
		if owner == name {
			return true
		}
	}
	return false
}

// inputDirs returns the manifest directory of imp followed by the directories of its path dependencies.
// An import that cannot be planned only contributes its manifest directory.
func (a *App) inputDirs(project *domain.Project, imp domain.Import, overrides Overrides) []string {
	dirs := []string{imp.ManifestDir}
	if _, pkg, err := a.bridge.Plan(request(project, imp, overrides)); err == nil && pkg != nil {
		dirs = append(dirs, pkg.PathDependencies...)
	}
	return dirs
}

// watchRoots returns every input directory, without directories nested in another root.
func watchRoots(inputs map[string][]string) []string {
	var dirs []string
	for _, d := range inputs {
		dirs = append(dirs, d...)
	}
	slices.Sort(dirs)
	dirs = slices.Compact(dirs)

	var roots []string
	for _, dir := range dirs {
		if slices.ContainsFunc(roots, func(root string) bool { return within(root, dir) }) {
			continue
		}
		roots = append(roots, dir)
	}
	return roots
}

// within reports whether p is dir or below it.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
