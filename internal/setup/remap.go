package setup

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"fountain/internal/apply"
	"fountain/internal/blacklist"
	"fountain/internal/cache"
	"fountain/internal/fault"
	"fountain/internal/patch"
	"fountain/internal/tree"
	"fountain/internal/workspace"
)

// Remap reruns the remapping stage on the existing decompiled sources:
// the unmapped tree is rebuilt if stale, then the range map and the
// unpatched baseline are regenerated.
func Remap(ctx context.Context, ws *workspace.Context, opt Options) error {
	p := &pipeline{ws: ws, log: ws.Log, force: opt.Force}
	version, err := ws.Version()
	if err != nil {
		return err
	}
	return p.remap(ctx, version)
}

// RestoreBlacklisted copies the decompiled files the blacklist removed back
// into work/unfixed and work/unmapped, keeping edits to the other files. It
// returns how many files were restored. The next setup with a blacklist
// rebuilds both trees.
func RestoreBlacklisted(ctx context.Context, ws *workspace.Context) (int, error) {
	version, err := ws.Version()
	if err != nil {
		return 0, err
	}
	decompiled := ws.Decompiled(version)
	if !tree.IsDir(decompiled) {
		return 0, fault.Configf("restore blacklisted", decompiled, "couldn't find decompiled sources for %s", version)
	}
	if !tree.IsDir(ws.Unmapped()) {
		return 0, fault.Configf("restore blacklisted", ws.Unmapped(), "couldn't find unmapped sources")
	}
	entries, err := tree.Walk(decompiled, tree.WalkOptions{})
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		rel := filepath.FromSlash(e.RelPath)
		if tree.Exists(filepath.Join(ws.Unmapped(), rel)) {
			continue
		}
		for _, root := range []string{ws.Unfixed(), ws.Unmapped()} {
			if err := tree.CopyFile(e.AbsPath, filepath.Join(root, rel)); err != nil {
				return restored, err
			}
		}
		ws.Log.Debug("restored", zap.String("path", e.RelPath))
		restored++
	}
	if restored == 0 {
		ws.Log.Info("no blacklisted files to restore")
		return 0, nil
	}
	p := &pipeline{ws: ws, log: ws.Log}
	key, err := p.unmappedKey(decompiled, blacklist.Filter{}, false)
	if err != nil {
		return restored, err
	}
	if err := ws.Cache().Put(cache.StageUnmapped, key, nil); err != nil {
		return restored, err
	}
	ws.Log.Info("restored blacklisted files", zap.Int("files", restored))
	return restored, nil
}

// unmapped rebuilds work/unfixed and work/unmapped from decompiled unless
// the cached key still matches. The key covers the decompiled tree, the fix
// patches and the active blacklist, so a rerun decompile or an edited list
// forces a rebuild while hand edits to an up to date tree survive.
func (p *pipeline) unmapped(decompiled string, f blacklist.Filter, respect bool) error {
	key, err := p.unmappedKey(decompiled, f, respect)
	if err != nil {
		return err
	}
	return p.cached(cache.StageUnmapped, key, p.ws.Unmapped(), "unmapped sources", func() error {
		return p.buildUnmapped(decompiled, f, respect)
	})
}

func (p *pipeline) unmappedKey(decompiled string, f blacklist.Filter, respect bool) (string, error) {
	src, err := tree.Fingerprint(decompiled)
	if err != nil {
		return "", err
	}
	var fixes string
	if tree.IsDir(p.ws.Fixes()) {
		if fixes, err = tree.Fingerprint(p.ws.Fixes()); err != nil {
			return "", err
		}
	}
	var ids, scope string
	if respect {
		ids, scope = strings.Join(f.IDs(), ","), f.Scope
	}
	return tree.Digest(src, fixes, ids, scope), nil
}

func (p *pipeline) buildUnmapped(decompiled string, f blacklist.Filter, respect bool) error {
	unfixed, unmapped := p.ws.Unfixed(), p.ws.Unmapped()
	// The range map describes the unmapped tree and goes stale with it.
	for _, dir := range []string{unfixed, unmapped, p.ws.RangeMap()} {
		if err := tree.Remove(dir); err != nil {
			return err
		}
	}
	p.log.Info("---- Copying decompiled sources")
	if err := os.MkdirAll(p.ws.WorkDir(), 0o755); err != nil {
		return err
	}
	if err := tree.Copy(decompiled, unfixed); err != nil {
		return err
	}
	if err := tree.Copy(unfixed, unmapped); err != nil {
		return err
	}
	fixes, err := patch.Load(p.ws.Fixes(), unfixed)
	if err != nil {
		return err
	}
	if fixes.Len() > 0 {
		p.log.Info("---- Applying decompile fixes", zap.Int("files", fixes.Len()))
		if err := apply.Strict(fixes, apply.Options{Baseline: unfixed, Output: unmapped, Quiet: true, Log: p.log}); err != nil {
			return err
		}
	}
	if !respect {
		return nil
	}
	for _, dir := range []string{unfixed, unmapped} {
		removed, err := f.Apply(dir)
		if err != nil {
			return err
		}
		if removed > 0 && dir == unmapped {
			p.log.Info("removed blacklisted files", zap.Int("files", removed))
		}
	}
	return nil
}
