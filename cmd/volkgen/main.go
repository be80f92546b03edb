package main

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/leodido/volkgen"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build metadata injected via ldflags.
// When built without ldflags, these remain at their zero values and the
// version command omits them gracefully.
var (
	version = ""
	commit  = ""
	date    = ""
)

// Persistent flags, also readable from VOLKGEN_* environment variables.
const (
	flagSourceDir    = "source-dir"
	flagArchsFile    = "archs-file"
	flagMachinesFile = "machines-file"
	flagKernelsDir   = "kernels-dir"
	flagLogLevel     = "log-level"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

var errNoMode = errors.New("no mode given (see volkgen --help for the available modes)")

// app carries the state shared by every subcommand.
type app struct {
	v   *viper.Viper
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "volkgen",
		Short: "Build-time generator for SIMD kernel dispatch sources",
		Long: `volkgen reads the arch and machine declarations and the kernel headers of a
SIMD kernel library, answers build-system queries about compiler flags and
machines, and renders the dispatch source templates.

Inputs are located under the source tree (gen/archs.xml, gen/machines.xml,
kernels/volk). The tree is taken from --source-dir, VOLKGEN_SOURCE_DIR or
VOLK_SOURCE_DIR, three levels above the executable, or the nearest parent of
the working directory that contains gen/archs.xml.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(c *cobra.Command, args []string) error {
			return errNoMode
		},
	}

	pf := root.PersistentFlags()
	pf.String(flagSourceDir, "", "Source tree root")
	pf.String(flagArchsFile, "", "Arch declarations (default <source-dir>/"+volkgen.ArchsFileRel+")")
	pf.String(flagMachinesFile, "", "Machine declarations (default <source-dir>/"+volkgen.MachinesFileRel+")")
	pf.String(flagKernelsDir, "", "Kernel header directory (default <source-dir>/"+volkgen.KernelsDirRel+")")
	pf.String(flagLogLevel, "warn", "Diagnostics level (debug, info, warn, error)")
	if err := a.bind(pf); err != nil {
		panic(err)
	}

	root.AddCommand(archFlagsCmd(a))
	root.AddCommand(machinesCmd(a))
	root.AddCommand(machineFlagsCmd(a))
	root.AddCommand(renderCmd(a))
	root.AddCommand(kernelsCmd(a))
	root.AddCommand(registryCmd(a))
	root.AddCommand(probeCmd(a))
	root.AddCommand(versionCmd())

	return root
}

// bind makes the persistent flags fall back to the environment.
func (a *app) bind(fs *pflag.FlagSet) error {
	a.v.SetEnvPrefix("volkgen")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(fs); err != nil {
		return err
	}
	return a.v.BindEnv(flagSourceDir, "VOLKGEN_SOURCE_DIR", "VOLK_SOURCE_DIR")
}

func (a *app) setup() error {
	log, err := newLogger(a.v.GetString(flagLogLevel))
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

// newLogger builds a console logger on stderr.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	return cfg.Build()
}

// layout resolves the input locations. Explicit file flags win over the
// source tree, which is only searched for when something is missing.
func (a *app) layout(needKernels bool) (volkgen.Layout, error) {
	l := volkgen.Layout{
		ArchsFile:    a.v.GetString(flagArchsFile),
		MachinesFile: a.v.GetString(flagMachinesFile),
		KernelsDir:   a.v.GetString(flagKernelsDir),
	}
	if l.ArchsFile != "" && l.MachinesFile != "" && (!needKernels || l.KernelsDir != "") {
		return l, nil
	}

	root, err := volkgen.FindSourceRoot(a.v.GetString(flagSourceDir))
	if err != nil {
		return volkgen.Layout{}, err
	}
	std := volkgen.LayoutAt(root)
	l.Root = root
	l.ArchsFile = cmp.Or(l.ArchsFile, std.ArchsFile)
	l.MachinesFile = cmp.Or(l.MachinesFile, std.MachinesFile)
	l.KernelsDir = cmp.Or(l.KernelsDir, std.KernelsDir)
	a.log.Debug("source layout resolved",
		zap.String("root", l.Root),
		zap.String("archs", l.ArchsFile),
		zap.String("machines", l.MachinesFile),
		zap.String("kernels", l.KernelsDir))
	return l, nil
}

func (a *app) registry() (*volkgen.Registry, error) {
	l, err := a.layout(false)
	if err != nil {
		return nil, err
	}
	return volkgen.LoadRegistry(l.ArchsFile, l.MachinesFile, volkgen.WithLogger(a.log))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show tool version and host platform",
		RunE: func(c *cobra.Command, args []string) error {
			out := c.OutOrStdout()
			if version != "" {
				fmt.Fprintf(out, "volkgen %s", version)
				if commit != "" {
					fmt.Fprintf(out, " (%s)", commit)
				}
				if date != "" {
					fmt.Fprintf(out, " built %s", date)
				}
				fmt.Fprintln(out)
			} else {
				fmt.Fprintln(out, "volkgen (dev)")
			}

			h := volkgen.ProbeHost()
			fmt.Fprintf(out, "Platform: %s/%s\n", h.OS, h.Arch)
			return nil
		},
	}
}
