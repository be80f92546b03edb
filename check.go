package volkgen

import (
	"strings"

	"github.com/samber/lo"
)

// ArchSet is a set of arch names used to test implementation and machine requirements.
type ArchSet map[string]struct{}

// NewArchSet builds a set from arch names. Empty and blank names are ignored.
func NewArchSet(names ...string) ArchSet {
	set := make(ArchSet, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// ParseArchSet splits a ";" or "," separated list into a set.
func ParseArchSet(list string) ArchSet {
	return NewArchSet(strings.FieldsFunc(list, func(r rune) bool {
		return r == ';' || r == ','
	})...)
}

// Contains reports whether name is in the set.
func (s ArchSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// ContainsAll reports whether every name is in the set.
func (s ArchSet) ContainsAll(names []string) bool {
	for _, n := range names {
		if !s.Contains(n) {
			return false
		}
	}
	return true
}

// Names returns the set members sorted.
func (s ArchSet) Names() []string {
	return sortedKeys(s)
}

// SatisfiedBy reports whether every dependency of the implementation is in set.
func (i *Impl) SatisfiedBy(set ArchSet) bool {
	return set.ContainsAll(i.Deps)
}

// ImplsFor returns the implementations whose dependencies are all in set,
// in catalog order. No ranking is applied: choosing among them is left to
// the runtime dispatcher.
func (k *Kernel) ImplsFor(set ArchSet) []*Impl {
	return lo.Filter(k.Impls, func(impl *Impl, _ int) bool {
		return impl.SatisfiedBy(set)
	})
}

// MachineArchSet returns the arch names of the machine as a set.
func MachineArchSet(m *Machine) ArchSet {
	return NewArchSet(m.ArchNames...)
}
