package volkgen

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func TestSplitParams(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []Arg
		wantErr bool
	}{
		{
			name: "simple",
			in:   "(float* out, const float* in, unsigned int num_points)",
			want: []Arg{{"float*", "out"}, {"const float*", "in"}, {"unsigned int", "num_points"}},
		},
		{
			name: "trailing text ignored",
			in:   "(int a) { return; }",
			want: []Arg{{"int", "a"}},
		},
		{
			name: "nested parentheses",
			in:   "(int a, unsigned (b), char c)",
			want: []Arg{{"int", "a"}, {"char", "c"}},
		},
		{
			name: "void",
			in:   "(void)",
			want: nil,
		},
		{
			name:    "unterminated",
			in:      "(int a, int b",
			wantErr: true,
		},
		{
			name:    "missing list",
			in:      "int a",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitParams(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("splitParams(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("splitParams(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestImplParser_Parse(t *testing.T) {
	p := newImplParser("volk_k", DefaultGuardMarker, zap.NewNop())

	tests := []struct {
		name    string
		header  string
		body    string
		want    *Impl
		wantErr error
	}{
		{
			name:   "signature",
			header: "#ifdef LV_HAVE_SSE2",
			body:   "static inline void volk_k_a_sse2(int* out)\n{\n}\n",
			want:   &Impl{Name: "a_sse2", Deps: []string{"sse2"}, Args: []Arg{{"int*", "out"}}, Aligned: true},
		},
		{
			name:   "deps deduplicated and sorted",
			header: "#if LV_HAVE_SSE2 && LV_HAVE_AVX && LV_HAVE_SSE2",
			body:   "void volk_k_u_mix(int x) {}\n",
			want:   &Impl{Name: "u_mix", Deps: []string{"avx", "sse2"}, Args: []Arg{{"int", "x"}}},
		},
		{
			name:   "no signature falls back to first dep",
			header: "#ifdef LV_HAVE_ORC",
			body:   "extern void other_function(void);\n",
			want:   &Impl{Name: "orc", Deps: []string{"orc"}},
		},
		{
			name:    "nothing to name",
			header:  "#ifdef SOMETHING",
			body:    "int x;\n",
			wantErr: errNoSignature,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := guardSection{header: tt.header, body: tt.body}
			g.children = splitSections(tt.body, 1, zap.NewNop())

			got, err := p.parse(g)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
