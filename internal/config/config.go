// Package config loads fountain.yaml, the per-project settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"fountain/internal/fault"
)

// FileName is the configuration file looked up in the project root.
const FileName = "fountain.yaml"

// Config holds all project settings. Relative paths are resolved against
// Root.
type Config struct {
	// Root is the project root; set by Load, never read from YAML.
	Root string `yaml:"-"`

	// WorkDir holds caches and generated trees (default "work").
	WorkDir string `yaml:"work_dir"`

	// PatchesDir is the patch-set root (default "patches").
	PatchesDir string `yaml:"patches_dir"`

	// PatchedDir is the working tree the patches produce (default "patched").
	PatchedDir string `yaml:"patched_dir"`

	// ForkDir is the fork repository (default "TacoSpigot").
	ForkDir string `yaml:"fork_dir"`

	// ForkSourceDir holds the fork's server sources; blacklisted classes
	// must not appear here.
	ForkSourceDir string `yaml:"fork_source_dir"`

	// ForkJar is the jar the fork build produces.
	ForkJar string `yaml:"fork_jar"`

	// BuildDataDir holds the decompile error report and blacklist
	// (default "buildData").
	BuildDataDir string `yaml:"build_data_dir"`

	// MinecraftVersion pins the upstream version. When empty it is read
	// from VersionInfo.
	MinecraftVersion string `yaml:"minecraft_version"`

	// VersionInfo is a JSON file carrying "minecraftVersion".
	VersionInfo string `yaml:"version_info"`

	// MappedJar is the upstream server jar; "{version}" is substituted.
	MappedJar string `yaml:"mapped_jar"`

	// MCPVersion selects the mapping set applied to the decompiled tree.
	MCPVersion string `yaml:"mcp_version"`

	Diff      DiffConfig      `yaml:"diff"`
	Merger    string          `yaml:"merger"`
	Blacklist BlacklistConfig `yaml:"blacklist"`
	Decompile DecompileConfig `yaml:"decompile"`
	Tools     ToolsConfig     `yaml:"tools"`
}

// DiffConfig configures patch regeneration.
type DiffConfig struct {
	// Context is the number of context lines (default 5). A pointer so an
	// explicit 0 survives defaulting.
	Context *int `yaml:"context"`

	// Implementation names the diff engine; empty picks the fastest
	// available.
	Implementation string `yaml:"implementation"`
}

// BlacklistConfig configures which decompiled classes are dropped.
type BlacklistConfig struct {
	File       string   `yaml:"file"`
	Scope      string   `yaml:"scope"`
	Additional []string `yaml:"additional"`
}

// DecompileConfig configures class extraction.
type DecompileConfig struct {
	Include []string `yaml:"include"`
}

// ToolsConfig holds argv templates for external collaborators. Templates
// may reference {placeholders} filled in by the setup stage running them.
// Empty build and clean commands are derived from the fork's build system.
type ToolsConfig struct {
	BuildFork        []string `yaml:"build_fork"`
	CleanFork        []string `yaml:"clean_fork"`
	Unshade          []string `yaml:"unshade"`
	Decompile        []string `yaml:"decompile"`
	RangeExtract     []string `yaml:"range_extract"`
	GenerateMappings []string `yaml:"generate_mappings"`
	ApplyMappings    []string `yaml:"apply_mappings"`
	DependencyTree   []string `yaml:"dependency_tree"`
}

var (
	defaultUnshade = []string{
		"java", "-jar", "work/jars/SpecialSource.jar",
		"-i", "{input}", "-o", "{output}", "-m", "{mappings}",
	}
	defaultDecompile = []string{
		"java", "-jar", "work/forgeflower.jar",
		"-din=1", "-rbr=1", "-dgs=1", "-asc=1", "-rsy=1", "-iec=1", "-jvn=1",
		"{classes}", "{output}",
	}
	defaultRangeExtract = []string{
		"java", "-cp", "work/jars/SuperSrg.jar", "net.techcable.supersrg.RangeExtractor",
		"-cp", "{classpath}", "{sources}", "{output}",
	}
	defaultGenerateMappings = []string{
		"supersrg", "generate_minecraft", "--mcp", "{mcp_version}", "{version}", "{cache}", "spigot2mcp-onlyobf",
	}
	defaultApplyMappings = []string{
		"supersrg", "apply_range", "{range_map}", "{mappings}", "{sources}", "{output}",
	}
	defaultDependencyTree = []string{"mvn", "dependency:tree", "-B"}
)

// Default returns the settings used when no file is present.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.WorkDir == "" {
		c.WorkDir = "work"
	}
	if c.PatchesDir == "" {
		c.PatchesDir = "patches"
	}
	if c.PatchedDir == "" {
		c.PatchedDir = "patched"
	}
	if c.ForkDir == "" {
		c.ForkDir = "TacoSpigot"
	}
	if c.ForkSourceDir == "" {
		c.ForkSourceDir = filepath.Join(c.ForkDir, "TacoSpigot-Server", "src", "main", "java")
	}
	if c.ForkJar == "" {
		c.ForkJar = filepath.Join(c.ForkDir, "build", "TacoSpigot-illegal.jar")
	}
	if c.BuildDataDir == "" {
		c.BuildDataDir = "buildData"
	}
	if c.VersionInfo == "" {
		c.VersionInfo = filepath.Join(c.ForkDir, "Paper", "work", "BuildData", "info.json")
	}
	if c.MappedJar == "" {
		c.MappedJar = filepath.Join(c.ForkDir, "Paper", "work", "{version}", "{version}-mapped.jar")
	}
	if c.Diff.Context == nil {
		n := 5
		c.Diff.Context = &n
	}
	if c.Blacklist.File == "" {
		c.Blacklist.File = filepath.Join(c.BuildDataDir, "decompile_blacklist.json")
	}
	if len(c.Tools.Unshade) == 0 {
		c.Tools.Unshade = defaultUnshade
	}
	if len(c.Tools.Decompile) == 0 {
		c.Tools.Decompile = defaultDecompile
	}
	if len(c.Tools.RangeExtract) == 0 {
		c.Tools.RangeExtract = defaultRangeExtract
	}
	if len(c.Tools.GenerateMappings) == 0 {
		c.Tools.GenerateMappings = defaultGenerateMappings
	}
	if len(c.Tools.ApplyMappings) == 0 {
		c.Tools.ApplyMappings = defaultApplyMappings
	}
	if len(c.Tools.DependencyTree) == 0 {
		c.Tools.DependencyTree = defaultDependencyTree
	}
}

// Load reads the file at path. A missing file yields defaults unless
// required is set. Root becomes the file's directory.
func Load(path string, required bool) (Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !required:
		c := Default()
		c.Root = filepath.Dir(abs)
		return c, nil
	case err != nil:
		return Config{}, &fault.ConfigError{Op: "load config", Path: path, Err: err}
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, &fault.ConfigError{Op: "load config", Path: path, Err: fmt.Errorf("parsing: %w", err)}
	}
	cfg.applyDefaults()
	cfg.Root = filepath.Dir(abs)
	if err := cfg.Validate(); err != nil {
		return Config{}, &fault.ConfigError{Op: "load config", Path: path, Err: err}
	}
	return cfg, nil
}

// Path resolves a configured path against Root.
func (c Config) Path(p string) string {
	if filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

// ContextLines returns the configured diff context.
func (c Config) ContextLines() int {
	if c.Diff.Context == nil {
		return 5
	}
	return *c.Diff.Context
}
