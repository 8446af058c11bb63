// Package bridge builds foreign packages and registers their artifacts as nodes of the host build graph.
package bridge

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"time"

	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
	"go.trai.ch/oxbridge/internal/engine/binder"
	"go.trai.ch/oxbridge/internal/engine/planner"
	"go.trai.ch/oxbridge/internal/engine/resolver"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

// DefaultPollInterval is how often a running build asks the host graph whether to stop.
const DefaultPollInterval = 100 * time.Millisecond

// Request describes one package to build.
type Request struct {
	// Name labels the build in progress output. Empty uses the package name.
	Name string
	// ManifestDir is the absolute directory holding the package or workspace manifest.
	ManifestDir string
	// Package selects a workspace member. Empty selects the default package.
	Package string
	Config  domain.BuildConfiguration
	// Program is the driver program. Empty uses planner.DefaultProgram.
	Program string
	// Timeout bounds the driver run. Zero means no deadline.
	Timeout time.Duration
	// RecordRoot is the absolute directory build records are persisted below.
	// Empty disables reuse across sessions.
	RecordRoot string
}

// Result is the outcome of a successful build.
type Result struct {
	Plan  *domain.InvocationPlan
	Nodes []domain.GraphNode
	// Cached is set when the nodes were satisfied without running the driver.
	Cached bool
	// Shared is set when the result was produced by a concurrent request for the same plan.
	Shared bool
	// Report is what the driver reported. Nil when Cached.
	Report *domain.BuildReport
}

// Bridge turns build requests into driver runs and graph nodes.
// It is safe for concurrent use.
type Bridge struct {
	reader        ports.ManifestReader
	toolchain     ports.ToolchainProvider
	fingerprinter ports.Fingerprinter
	verifier      ports.Verifier
	driver        ports.Driver
	store         ports.BuildRecordStore
	telemetry     ports.Telemetry
	host          ports.HostGraph
	logger        ports.Logger

	resolver *resolver.Resolver
	binder   *binder.Binder

	flights      singleflight.Group
	callers      *flightCallers
	locks        *dirLocks
	pollInterval time.Duration
}

// New creates a new Bridge.
func New(
	reader ports.ManifestReader,
	toolchain ports.ToolchainProvider,
	fingerprinter ports.Fingerprinter,
	verifier ports.Verifier,
	driver ports.Driver,
	store ports.BuildRecordStore,
	telemetry ports.Telemetry,
	host ports.HostGraph,
	log ports.Logger,
) *Bridge {
	return &Bridge{
		reader:        reader,
		toolchain:     toolchain,
		fingerprinter: fingerprinter,
		verifier:      verifier,
		driver:        driver,
		store:         store,
		telemetry:     telemetry,
		host:          host,
		logger:        log,
		resolver:      resolver.New(),
		binder:        binder.New(host),
		callers:       newFlightCallers(),
		locks:         newDirLocks(),
		pollInterval:  DefaultPollInterval,
	}
}

// WithPollInterval changes how often the host graph is polled for cancellation.
func (b *Bridge) WithPollInterval(d time.Duration) *Bridge {
	b.pollInterval = d
	return b
}

// Plan reads the package and returns the invocation that would build it, without running anything.
func (b *Bridge) Plan(req Request) (*domain.InvocationPlan, *domain.PackageManifest, error) {
	if err := validatePaths(req); err != nil {
		return nil, nil, err
	}

	ws, err := b.reader.Read(req.ManifestDir)
	if err != nil {
		return nil, nil, err
	}
	pkg, err := ws.Select(req.Package)
	if err != nil {
		return nil, nil, err
	}

	toolchain, err := b.toolchain.Toolchain()
	if err != nil {
		return nil, nil, zerr.Wrap(err, "failed to query toolchain")
	}

	fingerprints, err := b.fingerprinter.Fingerprint(inputRoots(ws, pkg), inputIgnores(req, ws, pkg))
	if err != nil {
		return nil, nil, zerr.With(zerr.Wrap(err, "failed to fingerprint inputs"), "package", pkg.Name)
	}

	plan, err := planner.New(req.Program).Plan(pkg, req.Config, toolchain, fingerprints)
	if err != nil {
		return nil, nil, err
	}
	return plan, pkg, nil
}

// Build makes sure the requested package's artifacts are built for the current inputs
// and registered as graph nodes.
//
// A plan whose nodes are already fresh returns without running the driver.
// Concurrent requests for the same plan share one driver run, which is cancelled
// only once every one of them stopped waiting.
// A plan that failed before fails again with the same error until its inputs change.
func (b *Bridge) Build(ctx context.Context, req Request) (*Result, error) {
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}

	plan, pkg, err := b.Plan(req)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = pkg.Name
	}

	if res, done, err := b.settled(ctx, name, plan); done {
		return res, err
	}

	runCtx, leave := b.callers.join(ctx, plan.CacheKey)
	defer leave()

	ch := b.flights.DoChan(plan.CacheKey, func() (any, error) {
		return b.build(runCtx, name, req, pkg, plan)
	})

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		res.Nodes = slices.Clone(res.Nodes)
		res.Shared = r.Shared
		return &res, nil
	}
}

// settled answers a request from the binder's state alone, when it can.
func (b *Bridge) settled(ctx context.Context, name string, plan *domain.InvocationPlan) (*Result, bool, error) {
	unit := plan.Unit()
	decision, failure := b.binder.Check(unit, plan.CacheKey)
	switch decision {
	case binder.DecisionFresh:
		_, vertex := b.telemetry.Record(ctx, name)
		vertex.Cached()
		return &Result{Plan: plan, Nodes: b.binder.UnitNodes(unit), Cached: true}, true, nil
	case binder.DecisionFailed:
		return nil, true, failure
	default:
		return nil, false, nil
	}
}

func (b *Bridge) build(
	ctx context.Context,
	name string,
	req Request,
	pkg *domain.PackageManifest,
	plan *domain.InvocationPlan,
) (*Result, error) {
	if res, done, err := b.settled(ctx, name, plan); done {
		return res, err
	}

	release, err := b.locks.acquire(ctx, plan.TargetDir)
	if err != nil {
		return nil, err
	}
	defer release()

	if res := b.reuse(ctx, name, req.RecordRoot, plan); res != nil {
		return res, nil
	}

	unit := plan.Unit()
	b.binder.Begin(unit, plan.CacheKey)

	report, err := b.run(ctx, name, req.Timeout, plan)
	if err != nil {
		var driverErr *domain.DriverError
		if errors.As(err, &driverErr) {
			b.binder.Fail(unit, plan.CacheKey, err)
		} else {
			b.binder.Reset(unit)
		}
		return nil, err
	}

	artifacts, err := b.resolver.Resolve(report, pkg, plan)
	if err == nil {
		err = b.verify(artifacts)
	}
	if err != nil {
		b.binder.Fail(unit, plan.CacheKey, err)
		return nil, err
	}

	nodes, err := b.binder.Bind(unit, plan.CacheKey, plan.InputPaths(), artifacts)
	if err != nil {
		b.binder.Reset(unit)
		return nil, err
	}

	b.persist(req.RecordRoot, plan, artifacts)

	return &Result{Plan: plan, Nodes: nodes, Report: report}, nil
}

// reuse binds the artifacts of a persisted record when every one of them is still on disk.
func (b *Bridge) reuse(ctx context.Context, name, root string, plan *domain.InvocationPlan) *Result {
	if root == "" {
		return nil
	}

	record, err := b.store.Get(root, plan.CacheKey)
	if err != nil {
		b.logger.Warn("ignoring unreadable build record: " + err.Error())
		return nil
	}
	if record == nil {
		return nil
	}

	if err := b.verify(record.Artifacts); err != nil {
		return nil
	}

	nodes, err := b.binder.Bind(plan.Unit(), plan.CacheKey, plan.InputPaths(), record.Artifacts)
	if err != nil {
		return nil
	}

	_, vertex := b.telemetry.Record(ctx, name)
	vertex.Cached()
	return &Result{Plan: plan, Nodes: nodes, Cached: true}
}

func (b *Bridge) persist(root string, plan *domain.InvocationPlan, artifacts []domain.ResolvedArtifact) {
	if root == "" {
		return
	}

	record := domain.BuildRecord{
		CacheKey:  plan.CacheKey,
		Package:   plan.Package,
		Manifest:  plan.ManifestPath,
		Triple:    plan.TargetTriple,
		Host:      plan.Namespace == domain.NamespaceHost,
		Artifacts: artifacts,
		Timestamp: time.Now(),
	}
	if err := b.store.Put(root, record); err != nil {
		b.logger.Warn("failed to persist build record: " + err.Error())
	}
}

// run executes the driver for plan, bounded by timeout and stopped when the host cancels.
func (b *Bridge) run(
	ctx context.Context,
	name string,
	timeout time.Duration,
	plan *domain.InvocationPlan,
) (report *domain.BuildReport, err error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}

	stop := b.watchHost(runCtx, cancel)
	defer stop()

	runCtx, vertex := b.telemetry.Record(runCtx, name)
	defer func() { vertex.Complete(err) }()

	return b.driver.Run(runCtx, plan, func(ev domain.Event) {
		if d, ok := ev.(domain.DiagnosticEvent); ok {
			msg := d.Rendered
			if msg == "" {
				msg = d.Message
			}
			vertex.Log(d.Severity.LogLevel(), msg)
		}
	})
}

// watchHost polls the host graph and cancels ctx with ErrCancelledByHost once it asks to stop.
func (b *Bridge) watchHost(ctx context.Context, cancel context.CancelCauseFunc) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if b.host.IsCancelled() {
					cancel(domain.ErrCancelledByHost)
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

func (b *Bridge) verify(artifacts []domain.ResolvedArtifact) error {
	paths := make([]string, 0, len(artifacts))
	for _, art := range artifacts {
		paths = append(paths, art.Path)
	}

	missing, err := b.verifier.Missing(paths)
	if err != nil {
		return zerr.Wrap(err, "failed to verify artifacts")
	}

	var errs []error
	for _, art := range artifacts {
		if slices.Contains(missing, art.Path) {
			errs = append(errs, &domain.ArtifactError{
				Kind:         domain.ErrArtifactMissing,
				Package:      art.Package,
				ArtifactKind: art.Kind,
				Name:         art.Name,
				Triple:       art.Triple,
				Candidates:   []string{art.Path},
			})
		}
	}
	return errors.Join(errs...)
}

// Node returns the unique node for an artifact of kind built from pkg for triple.
func (b *Bridge) Node(pkg string, kind domain.ArtifactKind, triple string) (domain.GraphNode, error) {
	return b.binder.Node(pkg, kind, triple)
}

// NodeFor returns the unique node for an artifact of kind built from pkg for triple,
// as a host tool when host is set and as a target build otherwise.
func (b *Bridge) NodeFor(pkg string, kind domain.ArtifactKind, triple string, host bool) (domain.GraphNode, error) {
	return b.binder.NodeFor(pkg, kind, triple, host)
}

// Nodes returns every node of pkg. An empty pkg returns all nodes.
func (b *Bridge) Nodes(pkg string) []domain.GraphNode {
	return b.binder.Nodes(pkg)
}

// Affected returns the units whose inputs include one of paths.
func (b *Bridge) Affected(paths []string) []domain.UnitID {
	return b.binder.Affected(paths)
}

func validatePaths(req Request) error {
	for _, p := range []string{req.ManifestDir, req.RecordRoot, req.Config.TargetDir} {
		if p != "" && !filepath.IsAbs(p) {
			return zerr.With(zerr.Wrap(domain.ErrRelativePath, "invalid build request"), "path", p)
		}
	}
	if req.ManifestDir == "" {
		return zerr.Wrap(domain.ErrRelativePath, "invalid build request")
	}
	return nil
}

// inputRoots are the files and directories whose content decides the cache key.
func inputRoots(ws *domain.Workspace, pkg *domain.PackageManifest) []string {
	roots := []string{pkg.Dir, ws.RootManifest}
	if pkg.WorkspaceRoot != "" {
		roots = append(roots, filepath.Join(pkg.WorkspaceRoot, domain.LockFileName))
	}
	return append(roots, pkg.PathDependencies...)
}

// inputIgnores are the absolute directories below the input roots that hold build output or bridge state.
func inputIgnores(req Request, ws *domain.Workspace, pkg *domain.PackageManifest) []string {
	dirs := []string{pkg.Dir, ws.Root()}
	if pkg.WorkspaceRoot != "" {
		dirs = append(dirs, pkg.WorkspaceRoot)
	}
	dirs = append(dirs, pkg.PathDependencies...)

	ignores := make([]string, 0, 2*len(dirs)+2)
	for _, dir := range dirs {
		ignores = append(ignores, filepath.Join(dir, domain.TargetDirName), filepath.Join(dir, domain.StateDirName))
	}
	if req.RecordRoot != "" {
		ignores = append(ignores, filepath.Join(req.RecordRoot, domain.StateDirName))
	}
	if req.Config.TargetDir != "" {
		ignores = append(ignores, filepath.Clean(req.Config.TargetDir))
	}

	slices.Sort(ignores)
	return slices.Compact(ignores)
}
