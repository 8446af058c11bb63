package domain

// Event is one typed message from the build driver's machine-readable stream.
type Event interface {
	isEvent()
}

// ArtifactEvent reports a file the driver produced.
type ArtifactEvent struct {
	Package string
	Name    string
	Kind    ArtifactKind
	Path    string
	// Triple is the platform the file was built for. Empty when the driver did not say.
	Triple string
	// Fresh is set when the driver reused the file without rebuilding it.
	Fresh bool
}

// BuildScriptEvent reports one key-value output of a package's build script.
type BuildScriptEvent struct {
	Package string
	Key     string
	Value   string
}

// Severity classifies a diagnostic.
type Severity string

const (
	// SeverityError marks an error diagnostic.
	SeverityError Severity = "error"
	// SeverityWarning marks a warning diagnostic.
	SeverityWarning Severity = "warning"
	// SeverityNote marks an informational diagnostic.
	SeverityNote Severity = "note"
)

// LogLevel maps the severity onto a log level.
func (s Severity) LogLevel() LogLevel {
	switch s {
	case SeverityError:
		return LogLevelError
	case SeverityWarning:
		return LogLevelWarn
	default:
		return LogLevelInfo
	}
}

// DiagnosticEvent reports a compiler message.
type DiagnosticEvent struct {
	Package  string
	Severity Severity
	Message  string
	// Rendered is the human-readable form, when the driver provides one.
	Rendered string
}

// FinishedEvent reports the driver's own verdict on the build.
type FinishedEvent struct {
	Success bool
}

func (ArtifactEvent) isEvent()    {}
func (BuildScriptEvent) isEvent() {}
func (DiagnosticEvent) isEvent()  {}
func (FinishedEvent) isEvent()    {}

// EventSink receives events as the driver emits them.
type EventSink func(Event)

// BuildReport is everything one driver invocation reported.
type BuildReport struct {
	Events   []Event
	ExitCode int
	// StderrTail holds the last lines the driver wrote to its diagnostic stream.
	StderrTail []string
}

// Artifacts returns the artifact events in emission order.
func (r *BuildReport) Artifacts() []ArtifactEvent {
	var out []ArtifactEvent
	for _, e := range r.Events {
		if a, ok := e.(ArtifactEvent); ok {
			out = append(out, a)
		}
	}
	return out
}

// Diagnostics returns the diagnostic events in emission order.
func (r *BuildReport) Diagnostics() []DiagnosticEvent {
	var out []DiagnosticEvent
	for _, e := range r.Events {
		if d, ok := e.(DiagnosticEvent); ok {
			out = append(out, d)
		}
	}
	return out
}

// BuildScripts returns the build script events in emission order.
func (r *BuildReport) BuildScripts() []BuildScriptEvent {
	var out []BuildScriptEvent
	for _, e := range r.Events {
		if b, ok := e.(BuildScriptEvent); ok {
			out = append(out, b)
		}
	}
	return out
}

// Finished returns the driver's verdict, if it reported one.
func (r *BuildReport) Finished() (FinishedEvent, bool) {
	for i := len(r.Events) - 1; i >= 0; i-- {
		if f, ok := r.Events[i].(FinishedEvent); ok {
			return f, true
		}
	}
	return FinishedEvent{}, false
}
