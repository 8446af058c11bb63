package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.trai.ch/oxbridge/internal/app"
	"go.trai.ch/zerr"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", formatText, "Output format: text or json")
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case formatText, formatJSON:
		return format, nil
	default:
		return "", zerr.With(zerr.New("unknown output format"), "format", format)
	}
}

type nodeView struct {
	ID              string   `json:"id"`
	Kind            string   `json:"kind"`
	Name            string   `json:"name"`
	Triple          string   `json:"triple"`
	Host            bool     `json:"host,omitempty"`
	Path            string   `json:"path"`
	LinkLibraries   []string `json:"linkLibraries,omitempty"`
	LinkSearchPaths []string `json:"linkSearchPaths,omitempty"`
}

type outcomeView struct {
	Import   string     `json:"import"`
	Status   string     `json:"status"`
	CacheKey string     `json:"cacheKey,omitempty"`
	Nodes    []nodeView `json:"nodes,omitempty"`
	Error    string     `json:"error,omitempty"`
}

func viewOutcome(o app.Outcome) outcomeView {
	v := outcomeView{Import: o.Import}
	switch {
	case o.Err != nil:
		v.Status = "failed"
		v.Error = o.Err.Error()
		return v
	case o.Result.Cached:
		v.Status = "cached"
	case o.Result.Shared:
		v.Status = "shared"
	default:
		v.Status = "built"
	}

	v.CacheKey = o.Result.Plan.CacheKey
	for _, n := range o.Result.Nodes {
		v.Nodes = append(v.Nodes, nodeView{
			ID:              n.Key.String(),
			Kind:            n.Key.Kind.String(),
			Name:            n.Key.Name,
			Triple:          n.Key.Triple,
			Host:            n.Key.Host,
			Path:            n.Artifact.Path,
			LinkLibraries:   n.Artifact.LinkLibraries,
			LinkSearchPaths: n.Artifact.LinkSearchPaths,
		})
	}
	return v
}

func renderOutcomes(w io.Writer, format string, outcomes []app.Outcome) error {
	views := make([]outcomeView, len(outcomes))
	for i, o := range outcomes {
		views[i] = viewOutcome(o)
	}

	if format == formatJSON {
		return writeJSON(w, views)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "IMPORT\tSTATUS\tNODE\tPATH")
	for _, v := range views {
		if len(v.Nodes) == 0 {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t-\t-\n", v.Import, v.Status)
			continue
		}
		for _, n := range v.Nodes {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Import, v.Status, n.ID, n.Path)
		}
	}
	return tw.Flush()
}

type planView struct {
	Import     string   `json:"import"`
	Namespace  string   `json:"namespace"`
	Triple     string   `json:"triple"`
	HostTriple string   `json:"hostTriple"`
	Profile    string   `json:"profile"`
	Features   []string `json:"features"`
	Dir        string   `json:"dir"`
	TargetDir  string   `json:"targetDir"`
	Argv       []string `json:"argv"`
	Env        []string `json:"env"`
	CacheKey   string   `json:"cacheKey"`
}

func renderPlans(w io.Writer, format string, planned []app.PlannedImport) error {
	views := make([]planView, len(planned))
	for i, p := range planned {
		views[i] = planView{
			Import:     p.Import,
			Namespace:  string(p.Plan.Namespace),
			Triple:     p.Plan.TargetTriple,
			HostTriple: p.Plan.HostTriple,
			Profile:    p.Plan.Profile.String(),
			Features:   nonNil(p.Plan.Features),
			Dir:        p.Plan.Dir,
			TargetDir:  p.Plan.TargetDir,
			Argv:       p.Plan.Argv(),
			Env:        nonNil(p.Plan.Env),
			CacheKey:   p.Plan.CacheKey,
		}
	}

	if format == formatJSON {
		return writeJSON(w, views)
	}

	for i, v := range views {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		_, _ = fmt.Fprintf(w, "# %s: %s build for %s, cache key %s\n", v.Import, v.Namespace, v.Triple, v.CacheKey)
		_, _ = fmt.Fprintln(w, commandLine(v))
	}
	return nil
}

// commandLine renders a plan as a shell command that reproduces the invocation.
func commandLine(v planView) string {
	parts := []string{"cd", shellQuote(v.Dir), "&&"}
	if len(v.Env) > 0 {
		parts = append(parts, "env")
		for _, kv := range v.Env {
			parts = append(parts, shellQuote(kv))
		}
	}
	for _, arg := range v.Argv {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
