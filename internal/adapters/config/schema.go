package config

// Oxfile represents the structure of the oxbridge.yaml configuration file.
type Oxfile struct {
	Version string `yaml:"version"`
	// Root is the project root, relative to the config file. Build records live below it.
	Root string `yaml:"root"`
	// Driver is the build driver program.
	Driver  string                `yaml:"driver"`
	Jobs    int                   `yaml:"jobs"`
	Imports map[string]*ImportDTO `yaml:"imports"`
}

// ImportDTO represents one imported package in the configuration.
type ImportDTO struct {
	Path              string            `yaml:"path"`
	Package           string            `yaml:"package"`
	Profile           string            `yaml:"profile"`
	Target            string            `yaml:"target"`
	Features          []string          `yaml:"features"`
	NoDefaultFeatures bool              `yaml:"noDefaultFeatures"`
	Flags             []string          `yaml:"flags"`
	Environment       map[string]string `yaml:"environment"`
	EnvFile           string            `yaml:"envFile"`
	Host              bool              `yaml:"host"`
	Linker            string            `yaml:"linker"`
	TargetDir         string            `yaml:"targetDir"`
	Timeout           string            `yaml:"timeout"`
}
