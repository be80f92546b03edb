package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/leodido/structcli"
	"github.com/leodido/volkgen"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// ArchFlagsOptions defines flags for the arch_flags subcommand.
type ArchFlagsOptions struct {
	Compiler string `flag:"compiler" flagshort:"c" flagdescr:"Compiler identifier (gnu, clang, msvc, ...)" flagrequired:"true"`
}

func (o *ArchFlagsOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func archFlagsCmd(a *app) *cobra.Command {
	opts := &ArchFlagsOptions{}

	cmd := &cobra.Command{
		Use:   "arch_flags",
		Short: "List the archs a compiler supports with their flags",
		Long: `List every arch the compiler can target, in declaration order.
Records are "name,flag,flag..." joined by ";".`,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), formatArchFlags(reg, opts.Compiler))
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func formatArchFlags(reg *volkgen.Registry, compiler string) string {
	var records []string
	for _, arch := range reg.SupportedArchs(compiler) {
		fields := append([]string{arch.Name}, arch.Flags(compiler)...)
		records = append(records, strings.Join(fields, ","))
	}
	return strings.Join(records, ";")
}

// MachinesOptions defines flags for the machines subcommand.
type MachinesOptions struct {
	Archs archList `flag:"archs" flagshort:"a" flagdescr:"Available archs, separated by ';' or ','" flagcustom:"true"`
	Host  bool     `flag:"host" flagdescr:"Add the archs detected on this host"`
}

func (o *MachinesOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *MachinesOptions) DefineArchs(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	fieldPtr := fieldValue.Addr().Interface().(*archList)
	*fieldPtr = nil
	return fieldPtr, descr
}

func (o *MachinesOptions) DecodeArchs(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}
	return parseArchList(s), nil
}

func machinesCmd(a *app) *cobra.Command {
	opts := &MachinesOptions{}

	cmd := &cobra.Command{
		Use:   "machines",
		Short: "List the machines buildable from a set of archs",
		Long: `List the machines whose archs are all available, joined by ";".
The available set comes from --archs, --host, or both.`,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			if len(opts.Archs) == 0 && !opts.Host {
				return errors.New("no archs specified (use --archs or --host)")
			}
			reg, err := a.registry()
			if err != nil {
				return err
			}

			set := volkgen.NewArchSet(opts.Archs...)
			if opts.Host {
				for name := range reg.HostArchSet(volkgen.ProbeHost()) {
					set[name] = struct{}{}
				}
			}
			fmt.Fprintln(c.OutOrStdout(), formatMachines(reg, set))
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func formatMachines(reg *volkgen.Registry, set volkgen.ArchSet) string {
	var names []string
	for _, m := range reg.MachinesFor(set) {
		names = append(names, m.Name)
	}
	return strings.Join(names, ";")
}

// MachineFlagsOptions defines flags for the machine_flags subcommand.
type MachineFlagsOptions struct {
	Machine  string `flag:"machine" flagshort:"m" flagdescr:"Machine name" flagrequired:"true"`
	Compiler string `flag:"compiler" flagshort:"c" flagdescr:"Compiler identifier (gnu, clang, msvc, ...)" flagrequired:"true"`
}

func (o *MachineFlagsOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func machineFlagsCmd(a *app) *cobra.Command {
	opts := &MachineFlagsOptions{}

	cmd := &cobra.Command{
		Use:   "machine_flags",
		Short: "Print the compiler flags of a machine",
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			flags, err := reg.MachineFlags(opts.Machine, opts.Compiler)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), strings.Join(flags, " "))
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// RenderOptions defines flags for the render subcommand.
type RenderOptions struct {
	Input  string `flag:"input" flagshort:"i" flagdescr:"Template to render" flagrequired:"true"`
	Output string `flag:"output" flagshort:"o" flagdescr:"Output file (default standard output)"`
	Strict bool   `flag:"strict" flagdescr:"Fail on dropped kernels and unknown template constructs"`
}

func (o *RenderOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func renderCmd(a *app) *cobra.Command {
	opts := &RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render [args...]",
		Short: "Render a template against the registry and kernel catalog",
		Long: `Render a template. Positional arguments are passed to the template,
where the first one usually selects the machine.

The output file is only written once rendering has succeeded.`,
		Args: cobra.ArbitraryArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			l, err := a.layout(true)
			if err != nil {
				return err
			}
			libOpts := []volkgen.Option{volkgen.WithLogger(a.log)}
			if opts.Strict {
				libOpts = append(libOpts, volkgen.WithStrict())
			}

			reg, err := volkgen.LoadRegistry(l.ArchsFile, l.MachinesFile, libOpts...)
			if err != nil {
				return err
			}
			cat, err := volkgen.BuildCatalog(l.KernelsDir, libOpts...)
			if err != nil {
				return err
			}
			tmpl, err := os.ReadFile(opts.Input)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}

			out, err := volkgen.NewEngine(reg, cat, libOpts...).Render(string(tmpl), args)
			if err != nil {
				return fmt.Errorf("render %s: %w", opts.Input, err)
			}

			if opts.Output == "" {
				_, err = fmt.Fprint(c.OutOrStdout(), out)
				return err
			}
			if err := os.WriteFile(opts.Output, []byte(out), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// FormatOptions defines the output format flag shared by listing subcommands.
type FormatOptions struct {
	Format outputFormat `flag:"format" flagshort:"f" flagdescr:"Output format (text, json, yaml)" flagcustom:"true"`
}

func (o *FormatOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *FormatOptions) DefineFormat(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	fieldPtr := fieldValue.Addr().Interface().(*outputFormat)
	return newFormatValue(fieldPtr), descr
}

func (o *FormatOptions) DecodeFormat(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}
	return parseFormat(s)
}

func kernelsCmd(a *app) *cobra.Command {
	opts := &FormatOptions{}

	cmd := &cobra.Command{
		Use:   "kernels",
		Short: "List the kernels recovered from the kernel headers",
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			l, err := a.layout(true)
			if err != nil {
				return err
			}
			cat, err := volkgen.BuildCatalog(l.KernelsDir, volkgen.WithLogger(a.log))
			if err != nil {
				return err
			}
			return writeFormatted(c.OutOrStdout(), opts.Format, cat, cat)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// archView is the serialized form of an arch.
type archView struct {
	Name        string              `json:"name" yaml:"name"`
	Alignment   int                 `json:"alignment" yaml:"alignment"`
	Environment string              `json:"environment,omitempty" yaml:"environment,omitempty"`
	Include     string              `json:"include,omitempty" yaml:"include,omitempty"`
	Flags       map[string][]string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Checks      []volkgen.Check     `json:"checks,omitempty" yaml:"checks,omitempty"`
}

type registryView struct {
	Archs    []archView         `json:"archs" yaml:"archs"`
	Machines []*volkgen.Machine `json:"machines" yaml:"machines"`
}

func newRegistryView(reg *volkgen.Registry) registryView {
	v := registryView{Machines: reg.Machines()}
	for _, arch := range reg.Archs() {
		av := archView{
			Name:        arch.Name,
			Alignment:   arch.Alignment,
			Environment: arch.Environment,
			Include:     arch.Include,
			Checks:      arch.Checks,
		}
		for _, compiler := range arch.Compilers() {
			if av.Flags == nil {
				av.Flags = map[string][]string{}
			}
			av.Flags[compiler] = arch.Flags(compiler)
		}
		v.Archs = append(v.Archs, av)
	}
	return v
}

func registryCmd(a *app) *cobra.Command {
	opts := &FormatOptions{}

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Show the archs and expanded machines",
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			return writeFormatted(c.OutOrStdout(), opts.Format, newRegistryView(reg), reg)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// probeReport is the host probe, with per-arch status when a registry is available.
type probeReport struct {
	Host  *volkgen.HostFeatures `json:"host" yaml:"host"`
	Archs []volkgen.ArchStatus  `json:"archs,omitempty" yaml:"archs,omitempty"`
}

func (p probeReport) String() string {
	s := p.Host.String()
	if len(p.Archs) > 0 {
		s += "\nRegistry archs:\n" + volkgen.FormatHostStatus(p.Archs)
	}
	return s
}

func probeCmd(a *app) *cobra.Command {
	opts := &FormatOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Detect the archs supported by this host",
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			report := probeReport{Host: volkgen.ProbeHost()}

			// The registry is optional here.
			if reg, err := a.registry(); err == nil {
				report.Archs = reg.HostStatus(report.Host)
			} else {
				a.log.Info("registry unavailable, reporting host only", zap.Error(err))
			}
			return writeFormatted(c.OutOrStdout(), opts.Format, report, report)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}
