package volkgen

import (
	"runtime"
	"slices"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// HostFeatures describes the machine volkgen runs on.
type HostFeatures struct {
	OS            string   `json:"os" yaml:"os"`
	Arch          string   `json:"arch" yaml:"arch"`
	KernelRelease string   `json:"kernel_release,omitempty" yaml:"kernel_release,omitempty"`
	CPU           string   `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	Supported     []string `json:"supported" yaml:"supported"`

	detectable map[string]archDetector
}

// Host features don't change at runtime, so the first probe is cached.
var (
	cachedHost *HostFeatures
	hostMu     sync.Mutex
)

// ProbeHost probes the running CPU and caches the result.
func ProbeHost() *HostFeatures {
	hostMu.Lock()
	defer hostMu.Unlock()

	if cachedHost == nil {
		cachedHost = probeHost(archDetectors)
	}
	return cachedHost
}

func probeHost(detectors map[string]archDetector) *HostFeatures {
	return &HostFeatures{
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		KernelRelease: kernelRelease(),
		CPU:           cpuid.CPU.BrandName,
		Supported:     detectArchs(detectors),
		detectable:    detectors,
	}
}

// Supports reports whether the host provides the arch. known is false when
// the arch cannot be detected at all.
func (h *HostFeatures) Supports(name string) (supported, known bool) {
	if _, ok := h.detectable[name]; !ok {
		return false, false
	}
	return slices.Contains(h.Supported, name), true
}

// ArchStatus is the host support of one registry arch.
type ArchStatus struct {
	Name      string `json:"name" yaml:"name"`
	Supported bool   `json:"supported" yaml:"supported"`
	Known     bool   `json:"known" yaml:"known"`
}

// HostStatus reports host support for every arch of the registry, in declaration order.
func (r *Registry) HostStatus(h *HostFeatures) []ArchStatus {
	out := make([]ArchStatus, 0, len(r.archs))
	for _, a := range r.archs {
		supported, known := h.Supports(a.Name)
		out = append(out, ArchStatus{Name: a.Name, Supported: supported, Known: known})
	}
	return out
}

// HostArchSet returns the registry archs the host is known to support.
func (r *Registry) HostArchSet(h *HostFeatures) ArchSet {
	set := ArchSet{}
	for _, s := range r.HostStatus(h) {
		if s.Known && s.Supported {
			set[s.Name] = struct{}{}
		}
	}
	return set
}
