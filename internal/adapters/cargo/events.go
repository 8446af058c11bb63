package cargo

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"iter"
	"path"
	"slices"
	"strings"

	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

const maxMessageSize = 16 << 20

var _ ports.EventDecoder = (*Decoder)(nil)

// skippedKinds are targets that never become graph nodes.
var skippedKinds = []string{"custom-build", "proc-macro", "test", "bench", "example"}

// message is one line of `--message-format=json` output.
type message struct {
	Reason     string          `json:"reason"`
	PackageID  string          `json:"package_id"`
	Target     *messageTarget  `json:"target"`
	Profile    *messageProfile `json:"profile"`
	Filenames  []string        `json:"filenames"`
	Executable *string         `json:"executable"`
	Fresh      bool            `json:"fresh"`

	// TargetTriple is not emitted by Cargo itself; wrappers may add it.
	TargetTriple string `json:"target_triple"`

	Message *compilerMessage `json:"message"`

	LinkedLibs  []string    `json:"linked_libs"`
	LinkedPaths []string    `json:"linked_paths"`
	Cfgs        []string    `json:"cfgs"`
	Env         [][2]string `json:"env"`
	OutDir      string      `json:"out_dir"`

	Success *bool `json:"success"`
}

type messageTarget struct {
	Name       string   `json:"name"`
	Kind       []string `json:"kind"`
	CrateTypes []string `json:"crate_types"`
}

type messageProfile struct {
	Test bool `json:"test"`
}

type compilerMessage struct {
	Message  string  `json:"message"`
	Level    string  `json:"level"`
	Rendered *string `json:"rendered"`
}

// Decoder implements ports.EventDecoder for Cargo's JSON message stream.
type Decoder struct{}

// NewDecoder creates a new Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode yields events as lines arrive on r.
// Lines that are not JSON objects are ignored; malformed objects yield an error and decoding continues.
func (d *Decoder) Decode(r io.Reader) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 || line[0] != '{' {
				continue
			}

			var msg message
			if err := json.Unmarshal(line, &msg); err != nil {
				if !yield(nil, zerr.With(zerr.Wrap(err, "malformed driver message"), "line", string(line))) {
					return
				}
				continue
			}

			for _, ev := range msg.events() {
				if !yield(ev, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, zerr.Wrap(err, "failed to read driver output"))
		}
	}
}

func (m *message) events() []domain.Event {
	switch m.Reason {
	case "compiler-artifact":
		return m.artifactEvents()
	case "build-script-executed":
		return m.buildScriptEvents()
	case "compiler-message":
		if m.Message == nil {
			return nil
		}
		ev := domain.DiagnosticEvent{
			Package:  packageName(m.PackageID),
			Severity: severity(m.Message.Level),
			Message:  m.Message.Message,
		}
		if m.Message.Rendered != nil {
			ev.Rendered = *m.Message.Rendered
		}
		return []domain.Event{ev}
	case "build-finished":
		return []domain.Event{domain.FinishedEvent{Success: m.Success != nil && *m.Success}}
	default:
		return nil
	}
}

func (m *message) artifactEvents() []domain.Event {
	if m.Target == nil || (m.Profile != nil && m.Profile.Test) {
		return nil
	}
	for _, k := range m.Target.Kind {
		if slices.Contains(skippedKinds, k) {
			return nil
		}
	}

	pkg := packageName(m.PackageID)
	isBin := slices.Contains(m.Target.Kind, "bin")

	var out []domain.Event
	emit := func(kind domain.ArtifactKind, file string) {
		out = append(out, domain.ArtifactEvent{
			Package: pkg,
			Name:    m.Target.Name,
			Kind:    kind,
			Path:    file,
			Triple:  m.TargetTriple,
			Fresh:   m.Fresh,
		})
	}

	if isBin {
		if m.Executable != nil && *m.Executable != "" {
			emit(domain.KindExecutable, *m.Executable)
			return out
		}
		for _, f := range m.Filenames {
			if !isDebugInfo(f) {
				emit(domain.KindExecutable, f)
			}
		}
		return out
	}

	for _, f := range m.Filenames {
		if kind, ok := classifyLibrary(f); ok {
			emit(kind, f)
		}
	}
	return out
}

func (m *message) buildScriptEvents() []domain.Event {
	pkg := packageName(m.PackageID)
	var out []domain.Event
	add := func(key, value string) {
		out = append(out, domain.BuildScriptEvent{Package: pkg, Key: key, Value: value})
	}
	for _, lib := range m.LinkedLibs {
		add("rustc-link-lib", lib)
	}
	for _, p := range m.LinkedPaths {
		add("rustc-link-search", p)
	}
	for _, cfg := range m.Cfgs {
		add("rustc-cfg", cfg)
	}
	for _, kv := range m.Env {
		add("rustc-env", kv[0]+"="+kv[1])
	}
	if m.OutDir != "" {
		add("out-dir", m.OutDir)
	}
	return out
}

// classifyLibrary maps a library output file onto an artifact kind by its extension.
func classifyLibrary(file string) (domain.ArtifactKind, bool) {
	name := strings.ToLower(path.Base(strings.ReplaceAll(file, "\\", "/")))
	switch {
	case strings.HasSuffix(name, ".dll.lib"), strings.HasSuffix(name, ".dll.a"):
		return 0, false
	case strings.HasSuffix(name, ".rlib"):
		return domain.KindObjectOnly, true
	case strings.HasSuffix(name, ".a"), strings.HasSuffix(name, ".lib"):
		return domain.KindStaticLibrary, true
	case strings.HasSuffix(name, ".so"), strings.HasSuffix(name, ".dylib"), strings.HasSuffix(name, ".dll"):
		return domain.KindSharedLibrary, true
	default:
		return 0, false
	}
}

func isDebugInfo(file string) bool {
	for _, ext := range []string{".pdb", ".dwp", ".d", ".dSYM"} {
		if strings.HasSuffix(file, ext) {
			return true
		}
	}
	return false
}

func severity(level string) domain.Severity {
	switch {
	case strings.HasPrefix(level, "error"):
		return domain.SeverityError
	case level == "warning":
		return domain.SeverityWarning
	default:
		return domain.SeverityNote
	}
}

// packageName extracts the package name from both package ID formats:
// "greet 0.1.0 (path+file:///src/greet)" and "path+file:///src/greet#0.1.0"
// or "registry+https://github.com/rust-lang/crates.io-index#serde@1.0.0".
func packageName(id string) string {
	source, fragment, ok := strings.Cut(id, "#")
	if !ok || strings.Contains(id, " (") {
		name, _, _ := strings.Cut(id, " ")
		return name
	}
	if name, _, ok := strings.Cut(fragment, "@"); ok {
		return name
	}
	source = strings.TrimRight(source, "/")
	if i := strings.IndexByte(source, '?'); i >= 0 {
		source = source[:i]
	}
	return path.Base(source)
}
