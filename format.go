package volkgen

import (
	"fmt"
	"strings"
)

// String returns a human-readable summary of the registry.
func (r *Registry) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Archs (%d):\n", len(r.archs))
	for _, a := range r.archs {
		fmt.Fprintf(&b, "  %s: alignment %d", a.Name, a.Alignment)
		if compilers := a.Compilers(); len(compilers) > 0 {
			fmt.Fprintf(&b, ", compilers %s", strings.Join(compilers, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Machines (%d):\n", len(r.machines))
	for _, m := range r.machines {
		fmt.Fprintf(&b, "  %s: %s (alignment %d)\n", m.Name, strings.Join(m.ArchNames, " "), m.Alignment)
	}
	return b.String()
}

// String returns a human-readable summary of the catalog.
func (c *Catalog) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Kernels (%d):\n", len(c.Kernels))
	for _, k := range c.Kernels {
		fmt.Fprintf(&b, "  %s(%s)\n", k.Name, k.ArgList())
		for _, impl := range k.Impls {
			writeImpl(&b, "    ", impl)
		}
		if k.HasDispatcher {
			b.WriteString("    dispatcher\n")
		}
	}

	if len(c.Dropped) > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Dropped (%d):\n", len(c.Dropped))
		for _, d := range c.Dropped {
			fmt.Fprintf(&b, "  %s: %s\n", d.Kernel, d.Reason)
		}
	}
	return b.String()
}

// String returns a human-readable summary of the host probe.
func (h *HostFeatures) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Platform: %s/%s\n", h.OS, h.Arch)
	if h.KernelRelease != "" {
		fmt.Fprintf(&b, "Kernel: %s\n", h.KernelRelease)
	}
	if h.CPU != "" {
		fmt.Fprintf(&b, "CPU: %s\n", h.CPU)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Supported archs: %s\n", strings.Join(h.Supported, " "))
	return b.String()
}

// FormatHostStatus renders per-arch host support, one arch per line.
func FormatHostStatus(statuses []ArchStatus) string {
	var b strings.Builder
	for _, s := range statuses {
		writeStatus(&b, "  "+s.Name, s)
	}
	return b.String()
}

func writeImpl(b *strings.Builder, indent string, impl *Impl) {
	fmt.Fprintf(b, "%s%s", indent, impl.Name)
	if len(impl.Deps) > 0 {
		fmt.Fprintf(b, " [%s]", strings.Join(impl.Deps, " "))
	}
	if impl.Aligned {
		b.WriteString(" aligned")
	}
	b.WriteString("\n")
}

func writeStatus(b *strings.Builder, name string, s ArchStatus) {
	status := "no"
	switch {
	case !s.Known:
		status = "unknown"
	case s.Supported:
		status = "yes"
	}
	fmt.Fprintf(b, "%s: %s\n", name, status)
}
