package volkgen

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// ErrUnknownMachine is returned when a machine name is not in the registry.
var ErrUnknownMachine = errors.New("unknown machine")

// DeclError represents a fatal error in a declaration document.
type DeclError struct {
	Document string
	Element  string
	Field    string
	Err      error
}

func (e *DeclError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("%s: %s: invalid %s: %v", e.Document, e.Element, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: invalid %s: %v", e.Document, e.Field, e.Err)
}

func (e *DeclError) Unwrap() error {
	return e.Err
}

// Check is a compiler or CPU probe required by an [Arch].
type Check struct {
	Name   string   `json:"name" yaml:"name"`
	Params []string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Arch is a named capability (an ISA extension or ABI mode) with the
// compiler flags needed to target it.
type Arch struct {
	Name        string
	Environment string
	Include     string
	// Alignment is the required buffer alignment in bytes.
	Alignment int
	Checks    []Check

	// flags maps a lower-cased compiler identifier to its flags, in document order.
	flags map[string][]string
}

// IsSupported reports whether the compiler can target the arch.
// An arch without any flags is supported by every compiler.
func (a *Arch) IsSupported(compiler string) bool {
	if len(a.flags) == 0 {
		return true
	}
	_, ok := a.flags[strings.ToLower(compiler)]
	return ok
}

// Flags returns the compiler flags for the arch, or nil.
func (a *Arch) Flags(compiler string) []string {
	return a.flags[strings.ToLower(compiler)]
}

// Compilers returns the compilers that declare flags for the arch.
func (a *Arch) Compilers() []string {
	return sortedKeys(a.flags)
}

// Machine is a deployable bundle of archs.
type Machine struct {
	Name      string   `json:"name" yaml:"name"`
	ArchNames []string `json:"archs" yaml:"archs"`
	// Archs point into the owning [Registry].
	Archs     []*Arch `json:"-" yaml:"-"`
	Alignment int     `json:"alignment" yaml:"alignment"`
}

// HasArch reports whether the machine includes the named arch.
func (m *Machine) HasArch(name string) bool {
	return slices.Contains(m.ArchNames, name)
}

// Arg is one parameter of a kernel signature.
type Arg struct {
	Type string `json:"type" yaml:"type"`
	Name string `json:"name" yaml:"name"`
}

func (a Arg) String() string {
	return a.Type + " " + a.Name
}

// Impl is one capability-gated implementation of a kernel.
type Impl struct {
	// Name is the suffix after the kernel name, e.g. "generic" or "a_avx".
	Name string `json:"name" yaml:"name"`
	// Deps are lower-cased arch names, unique and sorted.
	Deps    []string `json:"deps" yaml:"deps"`
	Args    []Arg    `json:"args,omitempty" yaml:"args,omitempty"`
	Aligned bool     `json:"aligned" yaml:"aligned"`
}

// Kernel is a computational routine with one or more implementations.
type Kernel struct {
	Name          string  `json:"name" yaml:"name"`
	PointerName   string  `json:"pointer_name" yaml:"pointer_name"`
	Impls         []*Impl `json:"impls" yaml:"impls"`
	Args          []Arg   `json:"args" yaml:"args"`
	HasDispatcher bool    `json:"has_dispatcher" yaml:"has_dispatcher"`
}

// ArgList returns the full parameter list, e.g. "float* out, unsigned n".
func (k *Kernel) ArgList() string {
	parts := make([]string, 0, len(k.Args))
	for _, a := range k.Args {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// ArgTypes returns the comma-joined parameter types.
func (k *Kernel) ArgTypes() string {
	parts := make([]string, 0, len(k.Args))
	for _, a := range k.Args {
		parts = append(parts, a.Type)
	}
	return strings.Join(parts, ", ")
}

// ArgNames returns the comma-joined parameter names.
func (k *Kernel) ArgNames() string {
	parts := make([]string, 0, len(k.Args))
	for _, a := range k.Args {
		parts = append(parts, a.Name)
	}
	return strings.Join(parts, ", ")
}

// Impl returns the implementation with the given name, or nil.
func (k *Kernel) Impl(name string) *Impl {
	for _, impl := range k.Impls {
		if impl.Name == name {
			return impl
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
