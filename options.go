package volkgen

import "go.uber.org/zap"

const (
	// DefaultGuardMarker prefixes capability macros in kernel headers (LV_HAVE_AVX).
	DefaultGuardMarker = "LV_HAVE_"
	// DefaultFlagPrefix prefixes the arch bit constants emitted by templates (LV_AVX).
	DefaultFlagPrefix = "LV_"
	// DefaultKernelPrefix is the kernel name prefix replaced to form the pointer name.
	DefaultKernelPrefix = "volk_"
	// DefaultPointerPrefix replaces DefaultKernelPrefix in pointer names.
	DefaultPointerPrefix = "p_"
)

// options holds the configuration shared by registry, catalog and engine.
type options struct {
	logger        *zap.Logger
	strict        bool
	guardMarker   string
	flagPrefix    string
	kernelPrefix  string
	pointerPrefix string
	deprecated    []string
}

// Option configures registry loading, catalog building and rendering.
type Option func(*options)

// WithLogger sets the logger used for diagnostics. The default discards them.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStrict turns recoverable per-item problems (dropped kernels, unknown
// template statements and collections) into an aggregated error.
// Processing still runs to completion.
func WithStrict() Option {
	return func(o *options) {
		o.strict = true
	}
}

// WithGuardMarker sets the macro prefix that marks capability guards.
func WithGuardMarker(marker string) Option {
	return func(o *options) {
		o.guardMarker = marker
	}
}

// WithFlagPrefix sets the prefix of arch bit constants in rendered flag lists.
func WithFlagPrefix(prefix string) Option {
	return func(o *options) {
		o.flagPrefix = prefix
	}
}

// WithPointerName sets the kernel prefix and its replacement used to derive
// [Kernel.PointerName].
func WithPointerName(kernelPrefix, pointerPrefix string) Option {
	return func(o *options) {
		o.kernelPrefix = kernelPrefix
		o.pointerPrefix = pointerPrefix
	}
}

// WithDeprecatedKernels seeds the set tested by "in deprecated_kernels".
// Templates may also define the set themselves.
func WithDeprecatedKernels(names ...string) Option {
	return func(o *options) {
		o.deprecated = append(o.deprecated, names...)
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:        zap.NewNop(),
		guardMarker:   DefaultGuardMarker,
		flagPrefix:    DefaultFlagPrefix,
		kernelPrefix:  DefaultKernelPrefix,
		pointerPrefix: DefaultPointerPrefix,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
