// Package volkgen generates the dispatch sources of a SIMD kernel library at
// build time.
//
// It combines three inputs:
//   - a capability registry built from the arch and machine declaration
//     documents ([LoadRegistry], [ParseRegistry])
//   - a kernel catalog recovered from guarded implementation headers
//     ([BuildCatalog], [BuildCatalogFS])
//   - templates written in a small Mako-like language, rendered by an [Engine]
//
// # Registry
//
// Archs carry per-compiler flags, an alignment and optional checks. Machines
// name a list of archs; an entry such as "sse2|sse3" expands into every
// variant, and variants naming an unknown arch are dropped:
//
//	reg, err := volkgen.LoadRegistry("gen/archs.xml", "gen/machines.xml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	flags, err := reg.MachineFlags("avx2_64_mmx", "gnu")
//
// # Catalog
//
// Each header contributes one kernel. Implementations are recovered from
// LV_HAVE_* guards; a kernel without exactly one generic implementation is
// dropped. [Kernel.ImplsFor] selects the implementations a machine can run.
//
// # Templates
//
// The engine understands "%for", "%if", "${expr}" and "<% code %>" spans for
// the statements the dispatch templates use. Anything else renders as empty
// text, or fails the render with [WithStrict]:
//
//	eng := volkgen.NewEngine(reg, cat, volkgen.WithStrict())
//	out, err := eng.Render(tmpl, []string{"avx2_64_mmx"})
//
// # Diagnostics
//
// Library functions log through a [go.uber.org/zap.Logger] passed with
// [WithLogger]; the default discards everything.
package volkgen
