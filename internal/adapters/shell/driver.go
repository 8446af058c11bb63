// Package shell provides the subprocess adapter that runs the build driver.
package shell

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
)

const (
	// stderrTailLines is the number of diagnostic stream lines kept for error reports.
	stderrTailLines = 20
	// maxReportedDiagnostics bounds the diagnostics attached to a DriverError.
	maxReportedDiagnostics = 20
	// waitDelay bounds how long Wait blocks on output pipes after the driver exited or was killed.
	waitDelay = 5 * time.Second
)

var _ ports.Driver = (*Driver)(nil)

// Driver implements ports.Driver using os/exec.
type Driver struct {
	logger  ports.Logger
	decoder ports.EventDecoder
}

// NewDriver creates a new Driver.
func NewDriver(logger ports.Logger, decoder ports.EventDecoder) *Driver {
	return &Driver{
		logger:  logger,
		decoder: decoder,
	}
}

// Run executes the plan's driver invocation in its own process group.
//
// The environment is the inherited process environment with the plan's overrides applied on top.
// Events are decoded from stdout as they arrive and forwarded to sink before Run returns.
// Stderr is streamed to the vertex carried by ctx, and its tail is kept for error reports.
func (d *Driver) Run(ctx context.Context, plan *domain.InvocationPlan, sink domain.EventSink) (*domain.BuildReport, error) {
	env := resolveEnvironment(os.Environ(), plan.Env)

	executable := plan.Program
	if !strings.ContainsRune(executable, filepath.Separator) {
		lp, err := lookPath(executable, env)
		if err != nil {
			return nil, d.driverError(plan, domain.ErrDriverUnavailable, -1, nil, err)
		}
		executable = lp
	}

	cmd := exec.Command(executable, plan.Args...) //nolint:gosec // planned driver invocation
	// Preserve the program name as invoked.
	cmd.Args[0] = plan.Program
	cmd.Dir = plan.Dir
	cmd.Env = env
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	tail := newTailBuffer(stderrTailLines)
	stderr := []io.Writer{tail}
	if vertex, ok := ports.VertexFromContext(ctx); ok {
		stderr = append(stderr, vertex.Stderr())
	}
	cmd.Stderr = io.MultiWriter(stderr...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, d.driverError(plan, domain.ErrDriverUnavailable, -1, nil, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, d.driverError(plan, domain.ErrDriverUnavailable, -1, nil, err)
	}

	sc := &scope{}
	defer sc.close()

	proc := &process{cmd: cmd}
	sc.add(proc.release)

	// Cancellation kills the whole process group; the decoder then sees EOF.
	stop := context.AfterFunc(ctx, proc.kill)
	sc.add(func() { stop() })

	report := &domain.BuildReport{}
	for ev, err := range d.decoder.Decode(stdout) {
		if err != nil {
			d.logger.Warn(err.Error())
			continue
		}
		ev = attributeTriple(ev, plan)
		report.Events = append(report.Events, ev)
		if sink != nil {
			sink(ev)
		}
	}

	waitErr := proc.wait()
	report.StderrTail = tail.Lines()

	if ctxErr := ctx.Err(); ctxErr != nil {
		report.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return report, d.driverError(plan, domain.ErrDriverTimeout, -1, nil, ctxErr)
		}
		return report, context.Cause(ctx)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			report.ExitCode = -1
			return report, d.driverError(plan, domain.ErrDriverFailed, -1, failureDiagnostics(report), waitErr)
		}
		report.ExitCode = exitErr.ExitCode()
		return report, d.driverError(plan, domain.ErrDriverFailed, report.ExitCode, failureDiagnostics(report), nil)
	}

	if finished, ok := report.Finished(); ok && !finished.Success {
		return report, d.driverError(plan, domain.ErrDriverFailed, report.ExitCode, failureDiagnostics(report), nil)
	}

	return report, nil
}

func (d *Driver) driverError(plan *domain.InvocationPlan, kind error, exitCode int, diagnostics []string, cause error) error {
	return &domain.DriverError{
		Kind:        kind,
		CacheKey:    plan.CacheKey,
		Argv:        plan.Argv(),
		Dir:         plan.Dir,
		ExitCode:    exitCode,
		Diagnostics: diagnostics,
		Err:         cause,
	}
}

// failureDiagnostics returns the last error diagnostics, or the stderr tail when the driver reported none.
func failureDiagnostics(report *domain.BuildReport) []string {
	var out []string
	for _, diag := range report.Diagnostics() {
		if diag.Severity == domain.SeverityError {
			out = append(out, diag.Message)
		}
	}
	if len(out) > maxReportedDiagnostics {
		out = out[len(out)-maxReportedDiagnostics:]
	}
	if len(out) == 0 {
		out = report.StderrTail
	}
	return out
}

// attributeTriple fills in the platform of an artifact event that did not name one.
// With an explicit --target the driver places target artifacts below <target-dir>/<triple>/;
// everything else was built for the host.
func attributeTriple(ev domain.Event, plan *domain.InvocationPlan) domain.Event {
	art, ok := ev.(domain.ArtifactEvent)
	if !ok || art.Triple != "" {
		return ev
	}

	art.Triple = plan.HostTriple
	rel, err := filepath.Rel(plan.TargetDir, art.Path)
	if err == nil {
		first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
		if first == tripleDirName(plan.TargetTriple) {
			art.Triple = plan.TargetTriple
		}
	}
	return art
}

// tripleDirName is the directory the driver uses for a triple. Custom target specs use the file stem.
func tripleDirName(triple string) string {
	if strings.HasSuffix(triple, ".json") {
		return strings.TrimSuffix(filepath.Base(triple), ".json")
	}
	return triple
}

// process guards a started command so it is waited on exactly once.
type process struct {
	cmd     *exec.Cmd
	waited  bool
	waitErr error
}

func (p *process) wait() error {
	if !p.waited {
		p.waited = true
		p.waitErr = p.cmd.Wait()
	}
	return p.waitErr
}

func (p *process) kill() {
	if err := killProcessGroup(p.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
	}
}

// release kills and reaps the driver unless it was already waited on.
func (p *process) release() {
	if p.waited {
		return
	}
	p.kill()
	_ = p.wait()
}

// scope runs registered cleanups in reverse order when closed.
type scope struct {
	cleanups []func()
}

func (s *scope) add(fn func()) {
	s.cleanups = append(s.cleanups, fn)
}

func (s *scope) close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
}
