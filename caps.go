package volkgen

import (
	"math/bits"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sys/cpu"
)

// archDetector reports whether the running CPU provides an arch.
type archDetector func() bool

func isX86() bool {
	return runtime.GOARCH == "amd64" || runtime.GOARCH == "386"
}

// archDetectors maps arch names to host checks. Archs missing here cannot be
// detected and are reported as unknown.
var archDetectors = map[string]archDetector{
	"generic": func() bool { return true },
	"32":      func() bool { return bits.UintSize == 32 },
	"64":      func() bool { return bits.UintSize == 64 },

	// x/sys/cpu does not expose MMX, SSE or SSE4a.
	"mmx":    func() bool { return cpuid.CPU.Supports(cpuid.MMX) },
	"sse":    func() bool { return cpuid.CPU.Supports(cpuid.SSE) },
	"sse4_a": func() bool { return cpuid.CPU.Supports(cpuid.SSE4A) },

	"sse2":     func() bool { return isX86() && cpu.X86.HasSSE2 },
	"sse3":     func() bool { return isX86() && cpu.X86.HasSSE3 },
	"ssse3":    func() bool { return isX86() && cpu.X86.HasSSSE3 },
	"sse4_1":   func() bool { return isX86() && cpu.X86.HasSSE41 },
	"sse4_2":   func() bool { return isX86() && cpu.X86.HasSSE42 },
	"popcount": func() bool { return isX86() && cpu.X86.HasPOPCNT },
	"avx":      func() bool { return isX86() && cpu.X86.HasAVX },
	"fma":      func() bool { return isX86() && cpu.X86.HasFMA },
	"avx2":     func() bool { return isX86() && cpu.X86.HasAVX2 },
	"avx512f":  func() bool { return isX86() && cpu.X86.HasAVX512F },
	"avx512cd": func() bool { return isX86() && cpu.X86.HasAVX512CD },

	"neon":   func() bool { return cpu.ARM64.HasASIMD || cpu.ARM.HasNEON },
	"neonv7": func() bool { return runtime.GOARCH == "arm" && cpu.ARM.HasNEON },
	"neonv8": func() bool { return runtime.GOARCH == "arm64" && cpu.ARM64.HasASIMD },
	"sve":    func() bool { return runtime.GOARCH == "arm64" && cpu.ARM64.HasSVE },

	"riscv64": func() bool { return runtime.GOARCH == "riscv64" },
}

// detectArchs runs every detector and returns the supported arch names.
func detectArchs(detectors map[string]archDetector) []string {
	var names []string
	for _, name := range sortedKeys(detectors) {
		if detectors[name]() {
			names = append(names, name)
		}
	}
	return names
}
