package volkgen

import (
	"strings"
	"testing"
)

func TestRegistry_String(t *testing.T) {
	out := mustRegistry(t).String()

	for _, want := range []string{
		"Archs (5):\n",
		"  generic: alignment 1\n",
		"  sse2: alignment 16, compilers clang, gnu, msvc\n",
		"Machines (7):\n",
		"  avx_64_fma: generic 64 sse2 avx fma (alignment 32)\n",
		"  sse2: generic sse2 (alignment 16)\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q\ngot:\n%s", want, out)
		}
	}
}

func TestCatalog_String(t *testing.T) {
	cat, err := BuildCatalogFS(testKernelFS())
	if err != nil {
		t.Fatalf("BuildCatalogFS() error = %v", err)
	}
	out := cat.String()

	for _, want := range []string{
		"Kernels (2):\n",
		"  volk_32f_copy(float* out, const float* in, unsigned n)\n    generic [generic]\n    a_avx [avx] aligned\n",
		"    u_avx_fma [avx fma]\n",
		"    dispatcher\n",
		"Dropped (1):\n  volk_8i_only_avx: no generic implementation\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q\ngot:\n%s", want, out)
		}
	}

	if strings.Contains((&Catalog{}).String(), "Dropped") {
		t.Error("empty catalog lists a Dropped section")
	}
}

func TestHostFeatures_String(t *testing.T) {
	h := &HostFeatures{OS: "linux", Arch: "amd64", CPU: "Test CPU", Supported: []string{"generic", "sse2"}}
	want := "Platform: linux/amd64\nCPU: Test CPU\n\nSupported archs: generic sse2\n"
	if got := h.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFormatHostStatus(t *testing.T) {
	got := FormatHostStatus([]ArchStatus{
		{Name: "generic", Supported: true, Known: true},
		{Name: "avx", Known: true},
		{Name: "neon"},
	})
	want := "  generic: yes\n  avx: no\n  neon: unknown\n"
	if got != want {
		t.Errorf("FormatHostStatus() = %q, want %q", got, want)
	}
}
