package volkgen

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func mustRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := ParseRegistry(testArchsDoc, testMachinesDoc)
	if err != nil {
		t.Fatalf("ParseRegistry() error = %v", err)
	}
	return reg
}

func machineNames(ms []*Machine) []string {
	var names []string
	for _, m := range ms {
		names = append(names, m.Name)
	}
	return names
}

func TestParseRegistry_Machines(t *testing.T) {
	reg := mustRegistry(t)

	want := []string{"generic", "sse2_64", "sse2", "avx_64_fma", "avx_64", "avx_fma", "avx"}
	if diff := cmp.Diff(want, machineNames(reg.Machines())); diff != "" {
		t.Fatalf("machines mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name      string
		archs     []string
		alignment int
	}{
		{"generic", []string{"generic"}, 1},
		{"sse2_64", []string{"generic", "64", "sse2"}, 16},
		{"sse2", []string{"generic", "sse2"}, 16},
		{"avx_64_fma", []string{"generic", "64", "sse2", "avx", "fma"}, 32},
		{"avx", []string{"generic", "sse2", "avx"}, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := reg.Machine(tt.name)
			if !ok {
				t.Fatalf("Machine(%q) not found", tt.name)
			}
			if diff := cmp.Diff(tt.archs, m.ArchNames); diff != "" {
				t.Errorf("ArchNames mismatch (-want +got):\n%s", diff)
			}
			if len(m.Archs) != len(m.ArchNames) {
				t.Errorf("len(Archs) = %d, want %d", len(m.Archs), len(m.ArchNames))
			}
			if m.Alignment != tt.alignment {
				t.Errorf("Alignment = %d, want %d", m.Alignment, tt.alignment)
			}
		})
	}

	if _, ok := reg.Machine("neon"); ok {
		t.Error("machine with an unknown arch was registered")
	}
}

func TestExpandMachine(t *testing.T) {
	tests := []struct {
		name  string
		archs []string
		want  []machineDecl
	}{
		{
			name:  "no alternation",
			archs: []string{"generic", "avx"},
			want:  []machineDecl{{"m", []string{"generic", "avx"}}},
		},
		{
			name:  "optional",
			archs: []string{"generic", "avx|"},
			want: []machineDecl{
				{"m_avx", []string{"generic", "avx"}},
				{"m", []string{"generic"}},
			},
		},
		{
			name:  "alternatives",
			archs: []string{"sse2|avx"},
			want: []machineDecl{
				{"m_sse2", []string{"sse2"}},
				{"m_avx", []string{"avx"}},
			},
		},
		{
			name:  "chained",
			archs: []string{"a|b", "|c"},
			want: []machineDecl{
				{"m_a", []string{"a"}},
				{"m_a_c", []string{"a", "c"}},
				{"m_b", []string{"b"}},
				{"m_b_c", []string{"b", "c"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expandMachine(machineDecl{name: "m", archs: tt.archs})
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(machineDecl{})); diff != "" {
				t.Errorf("expandMachine() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRegistry_ExpansionCrossProduct(t *testing.T) {
	// Three groups with 2, 3 and 2 branches: at most 12 variants, and fewer
	// because every "neon" branch is unresolved.
	machines := `<machines><machine name="m"><archs>generic 64| sse2|avx|neon fma|</archs></machine></machines>`
	reg, err := ParseRegistry(testArchsDoc, machines)
	if err != nil {
		t.Fatalf("ParseRegistry() error = %v", err)
	}

	n := len(reg.Machines())
	if n != 8 {
		t.Errorf("len(Machines()) = %d, want 8", n)
	}
	for _, m := range reg.Machines() {
		if len(m.Archs) == 0 {
			t.Errorf("machine %s has no archs", m.Name)
		}
		if strings.Contains(m.Name, "neon") {
			t.Errorf("machine %s references an unknown arch", m.Name)
		}
	}
}

func TestParseRegistry_EmptyVariantDropped(t *testing.T) {
	machines := `<machines><machine name="opt"><archs>sse2|</archs></machine></machines>`
	reg, err := ParseRegistry(testArchsDoc, machines)
	if err != nil {
		t.Fatalf("ParseRegistry() error = %v", err)
	}
	if diff := cmp.Diff([]string{"opt_sse2"}, machineNames(reg.Machines())); diff != "" {
		t.Errorf("machines mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRegistry_DuplicatesLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	archs := `<archs><arch name="a"><alignment>4</alignment></arch><arch name="a"><alignment>8</alignment></arch></archs>`
	machines := `<machines><machine name="m"><archs>a</archs></machine><machine name="m"><archs>a</archs></machine></machines>`

	reg, err := ParseRegistry(archs, machines, WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("ParseRegistry() error = %v", err)
	}

	a, _ := reg.Arch("a")
	if a.Alignment != 8 {
		t.Errorf("Arch(a).Alignment = %d, want the later definition's 8", a.Alignment)
	}
	if got := logs.FilterMessageSnippet("duplicate").Len(); got != 2 {
		t.Errorf("duplicate warnings = %d, want 2", got)
	}
}

func TestRegistry_SupportedArchs(t *testing.T) {
	reg := mustRegistry(t)

	tests := []struct {
		compiler string
		want     []string
	}{
		{"gnu", []string{"generic", "64", "sse2", "avx", "fma"}},
		{"Clang", []string{"generic", "64", "sse2", "avx"}},
		{"msvc", []string{"generic", "sse2"}},
		{"unknown", []string{"generic"}},
	}
	for _, tt := range tests {
		t.Run(tt.compiler, func(t *testing.T) {
			var got []string
			for _, a := range reg.SupportedArchs(tt.compiler) {
				got = append(got, a.Name)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SupportedArchs(%q) mismatch (-want +got):\n%s", tt.compiler, diff)
			}
		})
	}
}

func TestRegistry_MachinesFor(t *testing.T) {
	reg := mustRegistry(t)

	tests := []struct {
		archs string
		want  []string
	}{
		{"generic", []string{"generic"}},
		{"generic;sse2", []string{"generic", "sse2"}},
		{"generic;64;sse2;avx", []string{"generic", "sse2_64", "sse2", "avx_64", "avx"}},
		{"sse2;avx", nil},
	}
	for _, tt := range tests {
		t.Run(tt.archs, func(t *testing.T) {
			got := machineNames(reg.MachinesFor(ParseArchSet(tt.archs)))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MachinesFor(%q) mismatch (-want +got):\n%s", tt.archs, diff)
			}
		})
	}
}

func TestRegistry_MachineFlags(t *testing.T) {
	reg := mustRegistry(t)

	got, err := reg.MachineFlags("avx_64_fma", "GNU")
	if err != nil {
		t.Fatalf("MachineFlags() error = %v", err)
	}
	want := []string{"-m64", "-msse2", "-mavx", "-mfma", "-mno-fma4"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MachineFlags() mismatch (-want +got):\n%s", diff)
	}

	_, err = reg.MachineFlags("nope", "gnu")
	if !errors.Is(err, ErrUnknownMachine) {
		t.Errorf("MachineFlags(nope) error = %v, want ErrUnknownMachine", err)
	}
}

// Machine flags are the ordered concatenation of the flags of its archs.
func TestRegistry_MachineFlagsRoundTrip(t *testing.T) {
	reg := mustRegistry(t)

	for _, compiler := range []string{"gnu", "clang", "msvc"} {
		for _, m := range reg.Machines() {
			var want []string
			for _, name := range m.ArchNames {
				a, _ := reg.Arch(name)
				want = append(want, a.Flags(compiler)...)
			}
			got, err := reg.MachineFlags(m.Name, compiler)
			if err != nil {
				t.Fatalf("MachineFlags(%s, %s) error = %v", m.Name, compiler, err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("MachineFlags(%s, %s) mismatch (-want +got):\n%s", m.Name, compiler, diff)
			}
		}
	}
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	archsPath := filepath.Join(dir, "archs.xml")
	machinesPath := filepath.Join(dir, "machines.xml")
	if err := os.WriteFile(archsPath, []byte(testArchsDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(machinesPath, []byte(testMachinesDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadRegistry(archsPath, machinesPath)
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	if len(reg.Archs()) != 5 {
		t.Errorf("len(Archs()) = %d, want 5", len(reg.Archs()))
	}

	_, err = LoadRegistry(filepath.Join(dir, "missing.xml"), machinesPath)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadRegistry(missing) error = %v, want os.ErrNotExist", err)
	}
}
