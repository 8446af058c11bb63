package cargo

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
)

const toolchainQueryTimeout = 10 * time.Second

var _ ports.ToolchainProvider = (*Toolchain)(nil)

// knownTargets is used when the compiler cannot be asked for its target list.
var knownTargets = []string{
	"aarch64-apple-darwin",
	"aarch64-apple-ios",
	"aarch64-linux-android",
	"aarch64-pc-windows-msvc",
	"aarch64-unknown-linux-gnu",
	"aarch64-unknown-linux-musl",
	"arm-unknown-linux-gnueabihf",
	"armv7-linux-androideabi",
	"armv7-unknown-linux-gnueabihf",
	"i686-pc-windows-msvc",
	"i686-unknown-linux-gnu",
	"riscv64gc-unknown-linux-gnu",
	"thumbv7em-none-eabihf",
	"wasm32-unknown-unknown",
	"wasm32-wasip1",
	"x86_64-apple-darwin",
	"x86_64-linux-android",
	"x86_64-pc-windows-gnu",
	"x86_64-pc-windows-msvc",
	"x86_64-unknown-freebsd",
	"x86_64-unknown-linux-gnu",
	"x86_64-unknown-linux-musl",
}

// Toolchain implements ports.ToolchainProvider by asking rustc once per process.
type Toolchain struct {
	rustc  string
	logger ports.Logger

	once   sync.Once
	result domain.Toolchain
}

// NewToolchain creates a provider that queries the given compiler program.
func NewToolchain(rustc string, logger ports.Logger) *Toolchain {
	return &Toolchain{rustc: rustc, logger: logger}
}

// Toolchain returns the host triple and the installable targets.
// When the compiler is unavailable it falls back to the Go runtime's platform and a built-in target list.
func (t *Toolchain) Toolchain() (domain.Toolchain, error) {
	t.once.Do(func() {
		t.result = t.query()
	})
	return t.result, nil
}

func (t *Toolchain) query() domain.Toolchain {
	ctx, cancel := context.WithTimeout(context.Background(), toolchainQueryTimeout)
	defer cancel()

	tc := domain.Toolchain{Targets: make(map[string]struct{})}

	if out, err := exec.CommandContext(ctx, t.rustc, "-vV").Output(); err == nil { //nolint:gosec // configured compiler
		tc.HostTriple = parseHostTriple(out)
	} else if t.logger != nil {
		t.logger.Warn("could not query " + t.rustc + " for the host platform, using the runtime platform")
	}
	if tc.HostTriple == "" {
		tc.HostTriple = HostTripleFor(runtime.GOOS, runtime.GOARCH)
	}

	if out, err := exec.CommandContext(ctx, t.rustc, "--print", "target-list").Output(); err == nil { //nolint:gosec // configured compiler
		for _, line := range strings.Split(string(out), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				tc.Targets[line] = struct{}{}
			}
		}
	}
	if len(tc.Targets) == 0 {
		for _, target := range knownTargets {
			tc.Targets[target] = struct{}{}
		}
	}
	tc.Targets[tc.HostTriple] = struct{}{}
	return tc
}

func parseHostTriple(versionOutput []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(versionOutput))
	for scanner.Scan() {
		if host, ok := strings.CutPrefix(scanner.Text(), "host: "); ok {
			return strings.TrimSpace(host)
		}
	}
	return ""
}

// HostTripleFor maps a Go platform onto the matching target triple.
func HostTripleFor(goos, goarch string) string {
	arch := map[string]string{
		"amd64":   "x86_64",
		"arm64":   "aarch64",
		"386":     "i686",
		"arm":     "armv7",
		"riscv64": "riscv64gc",
	}[goarch]
	if arch == "" {
		arch = goarch
	}

	switch goos {
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	case "freebsd":
		return arch + "-unknown-freebsd"
	case "android":
		return arch + "-linux-android"
	case "linux":
		if arch == "armv7" {
			return "armv7-unknown-linux-gnueabihf"
		}
		return arch + "-unknown-linux-gnu"
	default:
		return arch + "-unknown-" + goos
	}
}
