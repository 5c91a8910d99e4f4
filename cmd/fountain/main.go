// Command fountain maintains a server fork as a stack of patches against the
// decompiled upstream sources.
//
// Typical cycle:
//
//	fountain setup            # build the fork, decompile and remap upstream
//	fountain patch            # rebuild patched/ from work/unpatched + patches/
//	  ... edit patched/ ...
//	fountain diff             # regenerate patches/ from the edits
//	fountain wiggle           # fuzzy re-apply after an upstream update
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fountain/internal/apply"
	"fountain/internal/blacklist"
	"fountain/internal/config"
	"fountain/internal/diff"
	"fountain/internal/fault"
	"fountain/internal/logging"
	"fountain/internal/patch"
	"fountain/internal/regen"
	"fountain/internal/setup"
	"fountain/internal/tool"
	"fountain/internal/workspace"
)

// exitError carries a non-default exit status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// app holds what the commands share. ws is populated by the root's
// PersistentPreRunE once flags are parsed.
type app struct {
	configPath string
	verbose    bool

	runner    tool.Runner
	newLogger func(logging.Options) (*zap.Logger, error)

	ws *workspace.Context
}

func newApp() *app {
	return &app{newLogger: logging.New}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fountain",
		Short: "Maintain a server fork as a stack of patches",
		Long: `fountain rebuilds a patched working tree from the decompiled upstream
sources and a directory of unified diffs, and regenerates those diffs from
edits made in the working tree.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.FileName, "project configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output, including external commands")

	root.AddCommand(
		a.setupCmd(),
		a.patchCmd(),
		a.diffCmd(),
		a.wiggleCmd(),
		a.cleanCmd(),
		a.blacklistCmd(),
		a.classpathCmd(),
		a.remapCmd(),
		a.restoreCmd(),
		a.fixesCmd(),
		a.printErrorsCmd(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	log, err := a.newLogger(logging.Options{Verbose: a.verbose, Quiet: quiet})
	if err != nil {
		return err
	}
	a.ws = workspace.New(cfg, log, a.runner)
	log.Debug("loaded configuration", zap.String("root", cfg.Root))
	return nil
}

func (a *app) applyOptions(quiet bool) apply.Options {
	return apply.Options{
		Baseline: a.ws.Unpatched(),
		Output:   a.ws.Patched(),
		Quiet:    quiet,
		Log:      a.ws.Log,
	}
}

// loadPatches resets the working tree to the baseline and loads the set.
func (a *app) loadPatches(opt apply.Options) (*patch.Set, error) {
	if err := apply.Prepare(opt); err != nil {
		return nil, err
	}
	return patch.Load(a.ws.Patches(), opt.Baseline)
}

func (a *app) setupCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Build the fork and regenerate the unpatched sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setup.Run(cmd.Context(), a.ws, setup.Options{Force: force})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ignore every cached stage")
	return cmd
}

func (a *app) patchCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Apply the patches strictly to a fresh copy of the unpatched sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opt := a.applyOptions(quiet)
			set, err := a.loadPatches(opt)
			if err != nil {
				return err
			}
			return apply.Strict(set, opt)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report problems")
	return cmd
}

func (a *app) diffCmd() *cobra.Command {
	var (
		quiet bool
		lines int
		impl  string
	)
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Regenerate the patches from the patched sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.ws.Config
			engine, err := a.engine(cmd, &lines, impl)
			if err != nil {
				return err
			}
			sum, err := regen.Run(cmd.Context(), regen.Options{
				Baseline:    a.ws.Unpatched(),
				Revised:     a.ws.Patched(),
				Patches:     a.ws.Patches(),
				ProjectRoot: cfg.Root,
				Context:     lines,
				Engine:      engine,
				Quiet:       quiet,
				Log:         a.ws.Log,
			})
			if err != nil {
				return err
			}
			a.ws.Log.Info("---- Patches written", zap.Int("scanned", sum.Scanned), zap.Int("patches", len(sum.Written)))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report problems")
	diffFlags(cmd, &lines, &impl)
	return cmd
}

func diffFlags(cmd *cobra.Command, lines *int, impl *string) {
	cmd.Flags().IntVar(lines, "context", diff.DefaultContext, "lines of context around each hunk")
	cmd.Flags().StringVar(impl, "implementation", "", "diff engine ("+strings.Join(diff.Available(), ", ")+")")
}

// engine resolves the diff flags against the configuration. lines is
// replaced by the configured value unless --context was given.
func (a *app) engine(cmd *cobra.Command, lines *int, impl string) (diff.Engine, error) {
	cfg := a.ws.Config
	if !cmd.Flags().Changed("context") {
		*lines = cfg.ContextLines()
	}
	if *lines < 0 {
		return nil, fault.Configf(cmd.Name(), "", "--context must be >= 0 (got %d)", *lines)
	}
	if !cmd.Flags().Changed("implementation") {
		impl = cfg.Diff.Implementation
	}
	return diff.Create(impl, func(msg string) { a.ws.Log.Warn(msg) })
}

func (a *app) wiggleCmd() *cobra.Command {
	var (
		quiet  bool
		ignore bool
		merger string
	)
	cmd := &cobra.Command{
		Use:   "wiggle",
		Short: "Apply the patches with fuzzy merging, leaving conflicts for manual resolution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("merger") {
				merger = a.ws.Config.Merger
			}
			m, err := apply.SelectMerger(merger, a.ws.Runner, func(msg string) { a.ws.Log.Warn(msg) })
			if err != nil {
				return err
			}
			opt := apply.FuzzyOptions{Options: a.applyOptions(quiet), IgnoreUnresolved: ignore}
			set, err := a.loadPatches(opt.Options)
			if err != nil {
				return err
			}
			report, err := apply.Fuzzy(cmd.Context(), set, m, opt)
			if err != nil {
				return err
			}
			if report.HasUnresolved() {
				n := len(report.Unresolved())
				return &exitError{code: 2, err: fmt.Errorf("%d file(s) left with conflicts: %w", n, fault.ErrUnresolved)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report problems")
	cmd.Flags().BoolVar(&ignore, "ignore-unresolved", false, "keep going past files with unresolved conflicts")
	cmd.Flags().StringVar(&merger, "merger", "", "merge tool ("+apply.MergerWiggle+", "+apply.MergerInProcess+")")
	return cmd
}

func (a *app) cleanCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove generated sources and the fork's build output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setup.Clean(cmd.Context(), a.ws, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also drop the stage cache and range map")
	return cmd
}

func (a *app) blacklistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate-blacklist",
		Short: "Rebuild the decompile blacklist from the compile error report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.ws.Config
			f := blacklist.Filter{
				Additional: cfg.Blacklist.Additional,
				Scope:      cfg.Blacklist.Scope,
				Log:        a.ws.Log,
			}
			_, err := blacklist.Regenerate(a.ws.ErrorsFile(), a.ws.BlacklistFile(), f, a.ws.ForkSource())
			return err
		},
	}
}

func (a *app) classpathCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "classpath",
		Short: "Print the fork's compile classpath coordinates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cp, err := setup.Classpath(cmd.Context(), a.ws, force)
			if err != nil {
				return err
			}
			for _, c := range cp {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "recompute even if the fork commit is unchanged")
	return cmd
}

func (a *app) remapCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "remap-source",
		Short: "Regenerate the unpatched sources from the existing decompiled sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setup.Remap(cmd.Context(), a.ws, setup.Options{Force: force})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rebuild the unmapped sources and range map")
	return cmd
}

func (a *app) restoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore-blacklisted",
		Short: "Copy blacklisted decompiled files back into the unmapped sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := setup.RestoreBlacklisted(cmd.Context(), a.ws)
			return err
		},
	}
	cmd.Flags().BoolP("quiet", "q", false, "only report problems")
	return cmd
}

func (a *app) fixesCmd() *cobra.Command {
	var (
		quiet bool
		lines int
		impl  string
	)
	cmd := &cobra.Command{
		Use:   "generate-fixes",
		Short: "Record edits to the unmapped sources as decompile fix patches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := a.engine(cmd, &lines, impl)
			if err != nil {
				return err
			}
			_, err = setup.GenerateFixes(cmd.Context(), a.ws, setup.FixOptions{
				Context: lines,
				Engine:  engine,
				Quiet:   quiet,
			})
			return err
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report problems")
	diffFlags(cmd, &lines, &impl)
	return cmd
}

func (a *app) printErrorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print-errors CLASS",
		Short: "Print the reported compile errors of one decompiled class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !strings.HasSuffix(name, ".java") {
				name += ".java"
			}
			errs, err := blacklist.Errors(a.ws.ErrorsFile(), name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Found %d errors for %s\n", len(errs), name)
			for _, e := range errs {
				fmt.Fprintln(out, "ERROR:", e)
			}
			return nil
		},
	}
}

func run(a *app, args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if a.ws != nil {
		_ = a.ws.Log.Sync()
	}
	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, "fountain:", err)
	return exitCode(err)
}

func main() {
	os.Exit(run(newApp(), os.Args[1:], os.Stdout, os.Stderr))
}
