package volkgen

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	kernelExt      = ".h"
	genericImpl    = "generic"
	dispatcherImpl = "dispatcher"
)

// KernelError describes a kernel dropped from the catalog.
type KernelError struct {
	Kernel string `json:"kernel" yaml:"kernel"`
	Reason string `json:"reason" yaml:"reason"`
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("kernel %s: %s", e.Kernel, e.Reason)
}

// Catalog is the set of kernels recovered from a header directory.
type Catalog struct {
	Kernels []*Kernel `json:"kernels" yaml:"kernels"`
	// Dropped lists kernels that were skipped, in file order.
	Dropped []*KernelError `json:"dropped,omitempty" yaml:"dropped,omitempty"`
}

// Kernel returns the named kernel, or nil.
func (c *Catalog) Kernel(name string) *Kernel {
	for _, k := range c.Kernels {
		if k.Name == name {
			return k
		}
	}
	return nil
}

// BuildCatalog scans dir for kernel headers.
func BuildCatalog(dir string, opts ...Option) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("kernel directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("kernel directory %s: not a directory", dir)
	}
	return BuildCatalogFS(os.DirFS(dir), opts...)
}

// BuildCatalogFS scans the root of fsys for kernel headers, in sorted name order.
//
// Kernels without a generic implementation are dropped with a warning.
// With [WithStrict], the catalog is still returned together with an error
// aggregating every dropped kernel.
func BuildCatalogFS(fsys fs.FS, opts ...Option) (*Catalog, error) {
	o := newOptions(opts)

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read kernel directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if path.Ext(e.Name()) == kernelExt && isRegularFile(fsys, e) {
			files = append(files, e.Name())
		}
	}
	slices.Sort(files)

	cat := &Catalog{}
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read kernel %s: %w", file, err)
		}
		name := strings.TrimSuffix(file, kernelExt)
		kern, kerr := parseKernel(name, string(data), o)
		if kerr != nil {
			o.logger.Warn("skipping kernel", zap.String("kernel", name), zap.String("reason", kerr.Reason))
			cat.Dropped = append(cat.Dropped, kerr)
			continue
		}
		if kern == nil {
			continue
		}
		cat.Kernels = append(cat.Kernels, kern)
	}

	o.logger.Debug("kernel catalog built",
		zap.Int("kernels", len(cat.Kernels)),
		zap.Int("dropped", len(cat.Dropped)))

	if o.strict && len(cat.Dropped) > 0 {
		var errs error
		for _, d := range cat.Dropped {
			errs = multierr.Append(errs, d)
		}
		return cat, errs
	}
	return cat, nil
}

// isRegularFile reports whether e is a regular file, following symlinks.
func isRegularFile(fsys fs.FS, e fs.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := fs.Stat(fsys, e.Name())
	return err == nil && info.Mode().IsRegular()
}

// parseKernel recovers a kernel from header text. It returns nil, nil for a
// header without any implementation guard.
func parseKernel(name, code string, o *options) (*Kernel, *KernelError) {
	kern := &Kernel{
		Name:        name,
		PointerName: pointerName(name, o),
	}

	p := newImplParser(name, o.guardMarker, o.logger)
	candidates := 0
	for _, s := range splitSections(stripComments(code), 0, o.logger) {
		top, ok := s.(guardSection)
		if !ok || !strings.Contains(strings.ToLower(top.header), "ifndef") {
			continue
		}
		for _, sub := range top.children {
			g, ok := sub.(guardSection)
			if !ok || !strings.Contains(strings.ToLower(g.header), "if") || !strings.Contains(g.header, o.guardMarker) {
				continue
			}
			candidates++
			impl, err := p.parse(g)
			if err != nil {
				o.logger.Debug("skipping implementation",
					zap.String("kernel", name),
					zap.String("guard", strings.TrimSpace(g.header)),
					zap.Error(err))
				continue
			}
			kern.Impls = append(kern.Impls, impl)
		}
	}

	if len(kern.Impls) == 0 {
		if candidates > 0 {
			return nil, &KernelError{Kernel: name, Reason: "no parseable implementation"}
		}
		return nil, nil
	}
	switch n := lo.CountBy(kern.Impls, func(impl *Impl) bool { return impl.Name == genericImpl }); {
	case n == 0:
		return nil, &KernelError{Kernel: name, Reason: "no generic implementation"}
	case n > 1:
		return nil, &KernelError{Kernel: name, Reason: fmt.Sprintf("%d generic implementations", n)}
	}

	if i := slices.IndexFunc(kern.Impls, func(impl *Impl) bool { return impl.Name == dispatcherImpl }); i >= 0 {
		kern.HasDispatcher = true
		kern.Impls = slices.Delete(kern.Impls, i, i+1)
	}

	// The canonical signature is the first parsed implementation's, which
	// need not be the generic one.
	if len(kern.Impls) > 0 && len(kern.Impls[0].Args) > 0 {
		kern.Args = kern.Impls[0].Args
	}
	if g := kern.Impl(genericImpl); g != nil && !slices.Equal(g.Args, kern.Args) {
		o.logger.Warn("canonical arguments differ from generic implementation",
			zap.String("kernel", name),
			zap.String("canonical", kern.ArgList()),
			zap.String("generic", (&Kernel{Args: g.Args}).ArgList()))
	}

	return kern, nil
}

func pointerName(name string, o *options) string {
	if o.kernelPrefix != "" && strings.HasPrefix(name, o.kernelPrefix) {
		return o.pointerPrefix + strings.TrimPrefix(name, o.kernelPrefix)
	}
	return name
}
