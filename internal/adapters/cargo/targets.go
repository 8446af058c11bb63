package cargo

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/zerr"
)

// crateKind maps a crate type onto the artifact kind native consumers see.
func crateKind(crateType string) (domain.ArtifactKind, bool) {
	switch crateType {
	case "staticlib":
		return domain.KindStaticLibrary, true
	case "cdylib", "dylib":
		return domain.KindSharedLibrary, true
	case "lib", "rlib":
		return domain.KindObjectOnly, true
	case "bin":
		return domain.KindExecutable, true
	default:
		return 0, false
	}
}

// libName returns the crate name of a package's library target.
func libName(pkg string) string {
	return strings.ReplaceAll(pkg, "-", "_")
}

// declarations lists the artifacts a manifest can produce, library kinds first, then binaries by name.
func declarations(pkgDir string, m *cargoManifest) ([]domain.ArtifactDeclaration, error) {
	var decls []domain.ArtifactDeclaration
	pkg := m.Package

	autolib := pkg.Autolib == nil || *pkg.Autolib
	hasLib := m.Lib != nil || (autolib && fileExists(filepath.Join(pkgDir, "src", "lib.rs")))
	if hasLib && (m.Lib == nil || !m.Lib.ProcMacro) {
		name := libName(pkg.Name)
		crateTypes := []string{"lib"}
		if m.Lib != nil {
			if m.Lib.Name != "" {
				name = m.Lib.Name
			}
			if len(m.Lib.CrateType) > 0 {
				crateTypes = m.Lib.CrateType
			}
		}
		for _, ct := range crateTypes {
			kind, ok := crateKind(ct)
			if !ok || kind == domain.KindExecutable {
				continue
			}
			if slices.ContainsFunc(decls, func(d domain.ArtifactDeclaration) bool { return d.Kind == kind }) {
				continue
			}
			decls = append(decls, domain.ArtifactDeclaration{Kind: kind, Name: name})
		}
	}

	bins := make(map[string]domain.Predicate)
	autobins := pkg.Autobins == nil || *pkg.Autobins
	if autobins {
		for _, name := range discoverBins(pkgDir, pkg.Name) {
			bins[name] = domain.Predicate{}
		}
	}
	for _, b := range m.Bin {
		name := b.Name
		if name == "" {
			name = pkg.Name
		}
		bins[name] = domain.RequireFeatures(b.RequiredFeatures)
	}

	names := make([]string, 0, len(bins))
	for name := range bins {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		decls = append(decls, domain.ArtifactDeclaration{Kind: domain.KindExecutable, Name: name, Requires: bins[name]})
	}

	for name, expr := range pkg.Metadata.Oxbridge.RequiredFeatures {
		extra, err := domain.ParsePredicate(expr)
		if err != nil {
			return nil, zerr.With(err, "artifact", name)
		}
		matched := false
		for i := range decls {
			if decls[i].Name != name {
				continue
			}
			matched = true
			if decls[i].Requires.IsAlways() {
				decls[i].Requires = extra
			} else {
				decls[i].Requires = domain.All(decls[i].Requires, extra)
			}
		}
		if !matched {
			return nil, zerr.With(zerr.New("required-features names an unknown artifact"), "artifact", name)
		}
	}

	return decls, nil
}

// discoverBins finds the binaries Cargo infers from the source layout.
func discoverBins(pkgDir, pkgName string) []string {
	var names []string
	if fileExists(filepath.Join(pkgDir, "src", "main.rs")) {
		names = append(names, pkgName)
	}

	entries, err := os.ReadDir(filepath.Join(pkgDir, "src", "bin"))
	if err != nil {
		return names
	}
	for _, e := range entries {
		switch {
		case !e.IsDir() && strings.HasSuffix(e.Name(), ".rs"):
			names = append(names, strings.TrimSuffix(e.Name(), ".rs"))
		case e.IsDir() && fileExists(filepath.Join(pkgDir, "src", "bin", e.Name(), "main.rs")):
			names = append(names, e.Name())
		}
	}
	return names
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
