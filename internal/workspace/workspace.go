// Package workspace carries the per-invocation state every command needs:
// configuration, logger, tool runner and lazily computed identities such as
// the fork commit and the upstream version.
package workspace

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"fountain/internal/cache"
	"fountain/internal/config"
	"fountain/internal/fault"
	"fountain/internal/gitio"
	"fountain/internal/tool"
)

// Context is created once per command. Accessors memoize their result for
// the lifetime of the invocation.
type Context struct {
	Config config.Config
	Log    *zap.Logger
	Runner tool.Runner

	commit  string
	version string
	store   *cache.Store
}

// New returns a context for cfg. A nil logger discards output; a nil runner
// executes real processes.
func New(cfg config.Config, log *zap.Logger, runner tool.Runner) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	if runner == nil {
		runner = tool.ExecRunner{Log: log}
	}
	return &Context{Config: cfg, Log: log, Runner: runner}
}

// Commit returns the fork's HEAD commit.
func (c *Context) Commit() (string, error) {
	if c.commit != "" {
		return c.commit, nil
	}
	commit, err := gitio.HeadCommit(c.ForkDir())
	if err != nil {
		return "", err
	}
	c.commit = commit
	return commit, nil
}

// Version returns the upstream version: the configured value, or the
// "minecraftVersion" field of the version info file.
func (c *Context) Version() (string, error) {
	if c.version != "" {
		return c.version, nil
	}
	if v := strings.TrimSpace(c.Config.MinecraftVersion); v != "" {
		c.version = v
		return v, nil
	}
	path := c.Config.Path(c.Config.VersionInfo)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fault.Configf("resolve version", path, "can't find version info and minecraft_version is not set")
	}
	if err != nil {
		return "", err
	}
	var info struct {
		MinecraftVersion string `json:"minecraftVersion"`
	}
	if err := json.Unmarshal(b, &info); err != nil {
		return "", &fault.ConfigError{Op: "resolve version", Path: path, Err: err}
	}
	if info.MinecraftVersion == "" {
		return "", fault.Configf("resolve version", path, "minecraftVersion missing")
	}
	c.version = info.MinecraftVersion
	return c.version, nil
}

// Cache returns the stage cache store.
func (c *Context) Cache() *cache.Store {
	if c.store == nil {
		c.store = cache.NewStore(filepath.Join(c.WorkDir(), cache.FileName))
	}
	return c.store
}

func (c *Context) WorkDir() string    { return c.Config.Path(c.Config.WorkDir) }
func (c *Context) Patches() string    { return c.Config.Path(c.Config.PatchesDir) }
func (c *Context) Patched() string    { return c.Config.Path(c.Config.PatchedDir) }
func (c *Context) ForkDir() string    { return c.Config.Path(c.Config.ForkDir) }
func (c *Context) ForkSource() string { return c.Config.Path(c.Config.ForkSourceDir) }
func (c *Context) ForkJar() string    { return c.Config.Path(c.Config.ForkJar) }
func (c *Context) Unpatched() string  { return filepath.Join(c.WorkDir(), "unpatched") }
func (c *Context) Unmapped() string   { return filepath.Join(c.WorkDir(), "unmapped") }
func (c *Context) Unfixed() string    { return filepath.Join(c.WorkDir(), "unfixed") }
func (c *Context) RangeMap() string   { return filepath.Join(c.WorkDir(), "rangeMap.dat") }

// UnshadedJar is the fork jar with the versioned package shading reversed.
func (c *Context) UnshadedJar() string {
	return filepath.Join(c.WorkDir(), "jars", filepath.Base(c.Config.ForkDir)+"-unshaded.jar")
}

// VersionDir holds the per-version extraction and decompile output.
func (c *Context) VersionDir(version string) string { return filepath.Join(c.WorkDir(), version) }

// Decompiled is the raw decompiler output for version.
func (c *Context) Decompiled(version string) string {
	return filepath.Join(c.VersionDir(version), "decompiled")
}

// MappedJar is the upstream server jar for version.
func (c *Context) MappedJar(version string) string {
	return c.Config.Path(strings.ReplaceAll(c.Config.MappedJar, "{version}", version))
}

// Mappings is the generated mapping file for the configured MCP version.
func (c *Context) Mappings() string {
	return filepath.Join(c.WorkDir(), "mappings", "spigot2mcp-onlyobf-"+c.Config.MCPVersion+".srg.dat")
}

func (c *Context) BlacklistFile() string { return c.Config.Path(c.Config.Blacklist.File) }

// Fixes holds the decompile fix patches applied to the unmapped tree.
func (c *Context) Fixes() string {
	return filepath.Join(c.Config.Path(c.Config.BuildDataDir), "fixes")
}

// ErrorsFile is the decompile error report the blacklist is rebuilt from.
func (c *Context) ErrorsFile() string {
	return filepath.Join(c.Config.Path(c.Config.BuildDataDir), "errors.json")
}
