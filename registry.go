package volkgen

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Registry holds the archs and machines built from the declaration documents.
// It is immutable once built and safe for concurrent readers.
type Registry struct {
	archs     []*Arch
	archIndex map[string]*Arch

	machines     []*Machine
	machineIndex map[string]*Machine
}

// LoadRegistry reads the arch and machine definition documents from disk.
func LoadRegistry(archsPath, machinesPath string, opts ...Option) (*Registry, error) {
	archDoc, err := os.ReadFile(archsPath)
	if err != nil {
		return nil, fmt.Errorf("read arch definitions: %w", err)
	}
	machineDoc, err := os.ReadFile(machinesPath)
	if err != nil {
		return nil, fmt.Errorf("read machine definitions: %w", err)
	}
	return parseRegistry(archsPath, string(archDoc), string(machineDoc), newOptions(opts))
}

// ParseRegistry builds a registry from in-memory documents.
func ParseRegistry(archDoc, machineDoc string, opts ...Option) (*Registry, error) {
	return parseRegistry("archs", archDoc, machineDoc, newOptions(opts))
}

func parseRegistry(archsName, archDoc, machineDoc string, o *options) (*Registry, error) {
	archs, err := parseArchs(archsName, archDoc)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		archIndex:    make(map[string]*Arch, len(archs)),
		machineIndex: map[string]*Machine{},
	}
	for _, a := range archs {
		if _, dup := r.archIndex[a.Name]; dup {
			o.logger.Warn("duplicate arch definition, later one wins", zap.String("arch", a.Name))
		}
		r.archs = append(r.archs, a)
		r.archIndex[a.Name] = a
	}

	for _, decl := range parseMachines(machineDoc) {
		for _, variant := range expandMachine(decl) {
			r.register(variant, o.logger)
		}
	}

	o.logger.Debug("registry loaded",
		zap.Int("archs", len(r.archs)),
		zap.Int("machines", len(r.machines)))
	return r, nil
}

// register validates a fully expanded machine and adds it.
// Variants naming an unknown arch, or no arch at all, are dropped.
func (r *Registry) register(decl machineDecl, log *zap.Logger) {
	m := &Machine{Name: decl.name, Alignment: 1}
	for _, name := range decl.archs {
		if name == "" {
			continue
		}
		arch, ok := r.archIndex[name]
		if !ok {
			log.Debug("dropping machine variant with unknown arch",
				zap.String("machine", decl.name),
				zap.String("arch", name))
			return
		}
		m.ArchNames = append(m.ArchNames, name)
		m.Archs = append(m.Archs, arch)
		m.Alignment = max(m.Alignment, arch.Alignment)
	}
	if len(m.Archs) == 0 {
		log.Debug("dropping machine variant without archs", zap.String("machine", decl.name))
		return
	}
	if _, dup := r.machineIndex[m.Name]; dup {
		log.Warn("duplicate machine, later one wins", zap.String("machine", m.Name))
	}
	r.machines = append(r.machines, m)
	r.machineIndex[m.Name] = m
}

// Archs returns all archs in declaration order.
func (r *Registry) Archs() []*Arch {
	return r.archs
}

// Arch returns the named arch.
func (r *Registry) Arch(name string) (*Arch, bool) {
	a, ok := r.archIndex[name]
	return a, ok
}

// Machines returns all machines in registration order.
func (r *Registry) Machines() []*Machine {
	return r.machines
}

// Machine returns the named machine.
func (r *Registry) Machine(name string) (*Machine, bool) {
	m, ok := r.machineIndex[name]
	return m, ok
}

// SupportedArchs returns the archs the compiler can target, in declaration order.
func (r *Registry) SupportedArchs(compiler string) []*Arch {
	var out []*Arch
	for _, a := range r.archs {
		if a.IsSupported(compiler) {
			out = append(out, a)
		}
	}
	return out
}

// MachinesFor returns the machines whose archs are all in set.
func (r *Registry) MachinesFor(set ArchSet) []*Machine {
	var out []*Machine
	for _, m := range r.machines {
		if set.ContainsAll(m.ArchNames) {
			out = append(out, m)
		}
	}
	return out
}

// MachineFlags concatenates the compiler flags of every arch of the machine,
// in the machine's arch order.
func (r *Registry) MachineFlags(machine, compiler string) ([]string, error) {
	m, ok := r.machineIndex[machine]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMachine, machine)
	}
	var flags []string
	for _, a := range m.Archs {
		flags = append(flags, a.Flags(compiler)...)
	}
	return flags, nil
}
