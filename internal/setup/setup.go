// Package setup regenerates the unpatched baseline tree. Every expensive
// stage is keyed in the stage cache and skipped when its key and artifact
// are unchanged.
package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"fountain/internal/blacklist"
	"fountain/internal/cache"
	"fountain/internal/fault"
	"fountain/internal/jar"
	"fountain/internal/meta"
	"fountain/internal/tool"
	"fountain/internal/tree"
	"fountain/internal/workspace"
)

// Options configures Run.
type Options struct {
	// Force ignores every cached stage key.
	Force bool
}

type pipeline struct {
	ws    *workspace.Context
	log   *zap.Logger
	force bool
}

// Run builds the fork, decompiles the upstream jar and remaps it into the
// unpatched tree.
func Run(ctx context.Context, ws *workspace.Context, opt Options) error {
	p := &pipeline{ws: ws, log: ws.Log, force: opt.Force}
	if !tree.IsDir(ws.ForkDir()) {
		return fault.Configf("setup", ws.ForkDir(), "fork repository not found")
	}
	if err := os.MkdirAll(ws.WorkDir(), 0o755); err != nil {
		return err
	}
	commit, err := ws.Commit()
	if err != nil {
		return err
	}
	if err := p.buildFork(ctx, commit); err != nil {
		return err
	}
	if err := p.unshade(ctx, commit); err != nil {
		return err
	}
	version, err := ws.Version()
	if err != nil {
		return err
	}
	if err := p.decompile(ctx, version); err != nil {
		return err
	}
	return p.remap(ctx, version)
}

// cached runs build unless stage is reusable under key, then records key.
func (p *pipeline) cached(stage cache.Stage, key, artifact, label string, build func() error) error {
	if !p.force {
		ok, err := p.ws.Cache().Reusable(stage, key, artifact)
		if err != nil {
			return err
		}
		if ok {
			p.log.Info("reusing cached " + label)
			return nil
		}
	}
	if err := build(); err != nil {
		return err
	}
	return p.ws.Cache().Put(stage, key, nil)
}

// run expands template and executes it in dir (the project root when
// empty) with env appended to the environment.
func (p *pipeline) run(ctx context.Context, op string, template []string, vars map[string]string, dir string, env ...string) error {
	cmd, err := tool.Expand(template, vars)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = p.ws.Config.Root
	}
	cmd.Dir = dir
	cmd.Env = env
	_, err = tool.Check(ctx, p.ws.Runner, op, cmd)
	return err
}

func (p *pipeline) buildFork(ctx context.Context, commit string) error {
	return p.cached(cache.StageForkBuild, commit, p.ws.ForkJar(), "fork jar", func() error {
		info := meta.Detect(p.ws.ForkDir())
		build := p.ws.Config.Tools.BuildFork
		if len(build) == 0 {
			build = info.BuildCommand()
		}
		if len(build) == 0 {
			return fault.Configf("build fork", p.ws.ForkDir(), "unable to detect the fork's build system; set tools.build_fork")
		}
		if clean := p.cleanCommand(info); len(clean) > 0 {
			p.log.Info("---- Cleaning fork")
			if err := p.run(ctx, "clean fork", clean, nil, p.ws.ForkDir()); err != nil {
				return err
			}
		}
		p.log.Info("---- Compiling fork",
			zap.String("build", info.Build),
			zap.String("module", info.Module),
			zap.String("version", info.Version),
			zap.String("jdk", info.JDK))
		if err := p.run(ctx, "build fork", build, nil, p.ws.ForkDir()); err != nil {
			return err
		}
		if !tree.Exists(p.ws.ForkJar()) {
			return fault.Configf("build fork", p.ws.ForkJar(), "build finished without producing the fork jar")
		}
		return nil
	})
}

func (p *pipeline) cleanCommand(info meta.Info) []string {
	if len(p.ws.Config.Tools.CleanFork) > 0 {
		return p.ws.Config.Tools.CleanFork
	}
	return info.CleanCommand()
}

// unshade reverses the fork's versioned package shading so the range
// extractor sees plain server packages.
func (p *pipeline) unshade(ctx context.Context, commit string) error {
	out := p.ws.UnshadedJar()
	return p.cached(cache.StageUnshaded, commit, out, "unshaded fork jar", func() error {
		p.log.Info("---- Detecting NMS package versioning")
		sig, err := jar.PackageVersion(p.ws.ForkJar())
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		mappings, err := os.CreateTemp(p.ws.WorkDir(), "package-*.srg")
		if err != nil {
			return err
		}
		defer os.Remove(mappings.Name())
		fmt.Fprintf(mappings, "PK: net/minecraft/server/%s net/minecraft/server\n", sig)
		fmt.Fprintf(mappings, "PK: org/bukkit/craftbukkit/%s org/bukkit/craftbukkit\n", sig)
		if err := mappings.Close(); err != nil {
			return err
		}
		p.log.Info("---- Reversing fork version shading", zap.String("signature", sig))
		return p.run(ctx, "unshade fork jar", p.ws.Config.Tools.Unshade, map[string]string{
			"input":    p.ws.ForkJar(),
			"output":   out,
			"mappings": mappings.Name(),
		}, "")
	})
}

// decompile extracts the server classes of the upstream jar and decompiles
// them. Partial output is removed when the decompiler fails.
func (p *pipeline) decompile(ctx context.Context, version string) error {
	mapped := p.ws.MappedJar(version)
	if !tree.Exists(mapped) {
		return fault.Configf("decompile", mapped, "missing upstream jar for %s", version)
	}
	decompiled := p.ws.Decompiled(version)
	classes := filepath.Join(p.ws.VersionDir(version), "bin")
	return p.cached(cache.StageDecompile, version, decompiled, "decompiled sources", func() error {
		if err := tree.Remove(decompiled); err != nil {
			return err
		}
		if !tree.Exists(classes) {
			p.log.Info("---- Extracting class files", zap.String("version", version))
			n, err := jar.Extract(mapped, classes, p.ws.Config.Decompile.Include)
			if err != nil {
				_ = tree.Remove(classes)
				return err
			}
			p.log.Debug("extracted classes", zap.Int("files", n))
		}
		p.log.Info("---- Decompiling class files", zap.String("version", version))
		if err := os.MkdirAll(decompiled, 0o755); err != nil {
			return err
		}
		err := p.run(ctx, "decompile", p.ws.Config.Tools.Decompile, map[string]string{
			"classes": classes,
			"output":  decompiled,
			"version": version,
		}, "")
		if err != nil {
			_ = tree.Remove(decompiled)
			return err
		}
		return nil
	})
}

func (p *pipeline) filter() (blacklist.Filter, error) {
	persisted, err := blacklist.Load(p.ws.BlacklistFile())
	if err != nil {
		return blacklist.Filter{}, err
	}
	f := blacklist.Filter{
		Persisted:  persisted,
		Additional: p.ws.Config.Blacklist.Additional,
		Scope:      p.ws.Config.Blacklist.Scope,
		Log:        p.log,
	}
	if err := f.CheckFork(p.ws.ForkSource()); err != nil {
		return blacklist.Filter{}, err
	}
	return f, nil
}

// remap rebuilds the unmapped tree when its inputs changed, refreshes the
// range map and applies the mappings into the unpatched baseline.
func (p *pipeline) remap(ctx context.Context, version string) error {
	decompiled := p.ws.Decompiled(version)
	if !tree.IsDir(decompiled) {
		return fault.Configf("remap sources", decompiled, "couldn't find decompiled sources for %s", version)
	}
	f, err := p.filter()
	if err != nil {
		return err
	}
	if err := p.unmapped(decompiled, f, true); err != nil {
		return err
	}
	unmapped := p.ws.Unmapped()
	commit, err := p.ws.Commit()
	if err != nil {
		return err
	}

	rangeMap := p.ws.RangeMap()
	err = p.cached(cache.StageRangeMap, commit, rangeMap, "range map", func() error {
		p.log.Info("---- Regenerating range map")
		if err := tree.Remove(rangeMap); err != nil {
			return err
		}
		return p.run(ctx, "compute range map", p.ws.Config.Tools.RangeExtract, map[string]string{
			"classpath": p.ws.UnshadedJar(),
			"sources":   unmapped,
			"output":    rangeMap,
		}, "")
	})
	if err != nil {
		return err
	}

	mappings, err := p.mappings(ctx, version)
	if err != nil {
		return err
	}

	unpatched := p.ws.Unpatched()
	if tree.Exists(unpatched) {
		p.log.Info("---- Deleting existing unpatched sources")
		if err := tree.Remove(unpatched); err != nil {
			return err
		}
	}
	p.log.Info("---- Applying mappings")
	err = p.run(ctx, "apply mappings", p.ws.Config.Tools.ApplyMappings, map[string]string{
		"range_map": rangeMap,
		"mappings":  mappings,
		"sources":   unmapped,
		"output":    unpatched,
	}, "", "RUST_BACKTRACE=1")
	if err != nil {
		return err
	}
	if !tree.IsDir(unpatched) {
		return fault.Configf("apply mappings", unpatched, "mapping tool produced no sources")
	}
	p.log.Info("unpatched sources ready", zap.String("path", unpatched))
	return nil
}

// mappings returns the mapping file for the configured MCP version,
// generating it on first use.
func (p *pipeline) mappings(ctx context.Context, version string) (string, error) {
	mcp := p.ws.Config.MCPVersion
	if mcp == "" {
		return "", fault.Configf("apply mappings", "", "MCP version not specified (mcp_version)")
	}
	out := p.ws.Mappings()
	if tree.Exists(out) {
		return out, nil
	}
	p.log.Info("---- Regenerating mappings", zap.String("mcp", mcp))
	cacheDir := filepath.Join(filepath.Dir(out), "cache")
	generated := filepath.Join(cacheDir, "spigot2mcp-onlyobf.srg.dat")
	if err := tree.Remove(generated); err != nil {
		return "", err
	}
	err := p.run(ctx, "generate mappings", p.ws.Config.Tools.GenerateMappings, map[string]string{
		"mcp_version": mcp,
		"version":     version,
		"cache":       cacheDir,
	}, "")
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(generated)
	if err != nil {
		return "", fmt.Errorf("read generated mappings: %w", err)
	}
	if err := os.WriteFile(out, b, 0o644); err != nil {
		return "", err
	}
	return out, nil
}
