package setup

import (
	"context"

	"go.uber.org/zap"

	"fountain/internal/diff"
	"fountain/internal/regen"
	"fountain/internal/tree"
	"fountain/internal/workspace"
)

// FixOptions configures GenerateFixes.
type FixOptions struct {
	Context int
	Engine  diff.Engine
	Quiet   bool
}

// GenerateFixes records the hand edits made to work/unmapped as fix patches
// against work/unfixed. The previous fixes are replaced.
func GenerateFixes(ctx context.Context, ws *workspace.Context, opt FixOptions) (*regen.Summary, error) {
	fixes := ws.Fixes()
	if tree.Exists(fixes) {
		ws.Log.Info("---- Removing existing fixes")
		if err := tree.Remove(fixes); err != nil {
			return nil, err
		}
	}
	sum, err := regen.Run(ctx, regen.Options{
		Baseline:    ws.Unfixed(),
		Revised:     ws.Unmapped(),
		Patches:     fixes,
		ProjectRoot: ws.Config.Root,
		Context:     opt.Context,
		Engine:      opt.Engine,
		Quiet:       opt.Quiet,
		Log:         ws.Log,
	})
	if err != nil {
		return nil, err
	}
	ws.Log.Info("---- Fixes written", zap.Int("scanned", sum.Scanned), zap.Int("patches", len(sum.Written)))
	return sum, nil
}
