package setup

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"fountain/internal/meta"
	"fountain/internal/tree"
	"fountain/internal/workspace"
)

// Clean removes generated trees and the fork's build output. With all set
// the stage cache document and the range map go too.
func Clean(ctx context.Context, ws *workspace.Context, all bool) error {
	ws.Log.Info("---- Cleaning generated sources")
	targets := []string{
		ws.Patched(),
		ws.Unmapped(),
		ws.Unfixed(),
		ws.Unpatched(),
	}
	info := meta.Detect(ws.ForkDir())
	if out := info.OutputDir(); out != "" {
		targets = append(targets, filepath.Join(ws.ForkDir(), out))
	}
	if within(ws.ForkDir(), ws.ForkJar()) {
		targets = append(targets, ws.ForkJar())
	}
	if v, err := ws.Version(); err == nil {
		targets = append(targets, ws.VersionDir(v))
	} else {
		ws.Log.Debug("skipping version directory", zap.Error(err))
	}
	if all {
		if err := ws.Cache().Remove(); err != nil {
			return err
		}
		targets = append(targets, ws.RangeMap())
	}
	for _, t := range targets {
		if !tree.Exists(t) {
			continue
		}
		ws.Log.Debug("removing", zap.String("path", t))
		if err := tree.Remove(t); err != nil {
			return err
		}
	}

	if !tree.IsDir(ws.ForkDir()) {
		return nil
	}
	p := &pipeline{ws: ws, log: ws.Log}
	clean := p.cleanCommand(info)
	if len(clean) == 0 {
		ws.Log.Warn("no clean command for the fork, skipping")
		return nil
	}
	ws.Log.Info("---- Cleaning fork")
	return p.run(ctx, "clean fork", clean, nil, ws.ForkDir())
}

// within reports whether path lies strictly below dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
