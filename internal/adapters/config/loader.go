// Package config provides the configuration loader for oxbridge.
package config

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.ConfigLoader = (*Loader)(nil)

var validImportNameRegex = regexp.MustCompile("^[a-zA-Z0-9_-]+$")

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load finds oxbridge.yaml in cwd or the nearest parent directory and returns the project it describes.
func (l *Loader) Load(cwd string) (*domain.Project, error) {
	cwd, err := filepath.Abs(cwd)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve working directory")
	}

	configPath, err := findConfiguration(cwd)
	if err != nil {
		return nil, err
	}

	var oxfile Oxfile
	if err := readAndUnmarshalYAML(configPath, &oxfile); err != nil {
		return nil, zerr.With(err, "file", configPath)
	}

	configDir := filepath.Dir(configPath)
	project := &domain.Project{
		Root:   resolvePath(configDir, oxfile.Root),
		Driver: oxfile.Driver,
		Jobs:   oxfile.Jobs,
	}
	if project.Root == "" {
		project.Root = configDir
	}

	if project.Jobs < 0 {
		return nil, zerr.With(zerr.Wrap(domain.ErrConfigParseFailed, "jobs must not be negative"), "jobs", project.Jobs)
	}
	if project.Jobs == 0 {
		project.Jobs = runtime.NumCPU()
	}

	names := make([]string, 0, len(oxfile.Imports))
	for name := range oxfile.Imports {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		imp, err := l.buildImport(configDir, name, oxfile.Imports[name])
		if err != nil {
			return nil, zerr.With(err, "import", name)
		}
		project.Imports = append(project.Imports, imp)
	}

	return project, nil
}

func findConfiguration(cwd string) (string, error) {
	currentDir := cwd
	for {
		candidate := filepath.Join(currentDir, domain.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	return "", zerr.With(zerr.Wrap(domain.ErrConfigNotFound, "no configuration"), "cwd", cwd)
}

func (l *Loader) buildImport(configDir, name string, dto *ImportDTO) (domain.Import, error) {
	if !validImportNameRegex.MatchString(name) {
		return domain.Import{}, zerr.Wrap(domain.ErrConfigParseFailed, "invalid import name "+name)
	}
	if dto == nil || dto.Path == "" {
		return domain.Import{}, zerr.Wrap(domain.ErrConfigParseFailed, "import needs a path")
	}

	if dto.Host && dto.Target != "" {
		l.Logger.Warn(fmt.Sprintf("'target' of import %s is ignored because it is a host tool", name))
	}

	env, err := loadEnvironment(configDir, dto)
	if err != nil {
		return domain.Import{}, err
	}

	var timeout time.Duration
	if dto.Timeout != "" {
		timeout, err = time.ParseDuration(dto.Timeout)
		if err != nil || timeout < 0 {
			return domain.Import{}, zerr.With(zerr.Wrap(domain.ErrConfigParseFailed, "invalid timeout"), "timeout", dto.Timeout)
		}
	}

	return domain.Import{
		Name:        name,
		ManifestDir: resolvePath(configDir, dto.Path),
		Package:     dto.Package,
		Timeout:     timeout,
		Config: domain.BuildConfiguration{
			Profile:           domain.ParseProfile(dto.Profile),
			TargetTriple:      dto.Target,
			Features:          slices.Clone(dto.Features),
			NoDefaultFeatures: dto.NoDefaultFeatures,
			Flags:             slices.Clone(dto.Flags),
			Environment:       env,
			HostTool:          dto.Host,
			Linker:            dto.Linker,
			TargetDir:         resolvePath(configDir, dto.TargetDir),
		},
	}, nil
}

// loadEnvironment merges the import's env file with its inline environment. Inline entries win.
func loadEnvironment(configDir string, dto *ImportDTO) (map[string]string, error) {
	env := make(map[string]string)

	if dto.EnvFile != "" {
		path := resolvePath(configDir, dto.EnvFile)
		fileEnv, err := godotenv.Read(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrEnvFileReadFailed, err.Error()), "file", path)
		}
		maps.Copy(env, fileEnv)
	}

	maps.Copy(env, dto.Environment)

	if len(env) == 0 {
		return nil, nil
	}
	return env, nil
}

// resolvePath makes p absolute against dir. Empty stays empty.
func resolvePath(dir, p string) string {
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(dir, p))
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is found by walking up from the working directory
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	decoder := yaml.NewDecoder(bytes.NewReader(configFile))
	decoder.KnownFields(true)
	if parseErr := decoder.Decode(target); parseErr != nil {
		return zerr.Wrap(domain.ErrConfigParseFailed, parseErr.Error())
	}

	return nil
}
