package volkgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

type stmtKind int

const (
	stmtUnknown stmtKind = iota
	stmtSelectMachine
	stmtArchNames
	stmtResetParens
	stmtOpenParen
	stmtCloseParens
	stmtSelectImpls
	stmtArchFlagList
	stmtMachineName
	stmtKernelName
	stmtImplNames
	stmtImplDeps
	stmtImplAligned
	stmtImplFuncs
	stmtImplCount
	stmtArchCount
	stmtDeprecated
	stmtPlatform
)

// stmtShapes is searched in order; the first shape found in a code span
// decides what it does.
var stmtShapes = []struct {
	kind stmtKind
	re   *regexp.Regexp
}{
	{stmtSelectMachine, regexp.MustCompile(`this_machine\s*=\s*machine_dict\[args\[0\]\]`)},
	{stmtArchNames, regexp.MustCompile(`arch_names\s*=\s*this_machine\.arch_names`)},
	{stmtResetParens, regexp.MustCompile(`num_open_parens\s*=\s*0`)},
	{stmtOpenParen, regexp.MustCompile(`num_open_parens\s*\+=\s*1`)},
	{stmtCloseParens, regexp.MustCompile(`end_open_parens\s*=\s*'\)'\s*\*\s*num_open_parens`)},
	{stmtSelectImpls, regexp.MustCompile(`impls\s*=\s*kern\.get_impls\(arch_names\)`)},
	{stmtArchFlagList, regexp.MustCompile(`make_arch_have_list\s*=`)},
	{stmtMachineName, regexp.MustCompile(`this_machine_name\s*=`)},
	{stmtKernelName, regexp.MustCompile(`kern_name\s*=`)},
	{stmtImplNames, regexp.MustCompile(`make_impl_name_list\s*=`)},
	{stmtImplDeps, regexp.MustCompile(`make_impl_deps_list\s*=`)},
	{stmtImplAligned, regexp.MustCompile(`make_impl_align_list\s*=`)},
	{stmtImplFuncs, regexp.MustCompile(`make_impl_fcn_list\s*=`)},
	{stmtImplCount, regexp.MustCompile(`len_impls\s*=`)},
	{stmtArchCount, regexp.MustCompile(`len_archs\s*=\s*len\(archs\)`)},
	{stmtDeprecated, regexp.MustCompile(`deprecated_kernels`)},
	{stmtPlatform, regexp.MustCompile(`from\s+platform\s+import\s+system|system\(\)`)},
}

func classifyStmt(code string) stmtKind {
	for _, s := range stmtShapes {
		if s.re.MatchString(code) {
			return s.kind
		}
	}
	return stmtUnknown
}

var (
	deprecatedAssignRe = regexp.MustCompile(`deprecated_kernels\s*=`)
	quotedRe           = regexp.MustCompile(`'([^']*)'|"([^"]*)"`)
)

// exec runs a <% ... %> code span and returns the text it renders.
func (r *renderer) exec(code string) string {
	kind := classifyStmt(code)
	sc, st := &r.sc, &r.st

	switch kind {
	case stmtSelectMachine:
		if len(r.args) == 0 {
			r.log.Warn("machine selection without arguments")
			return ""
		}
		m, ok := r.eng.reg.Machine(r.args[0])
		if !ok {
			r.log.Warn("machine selection names an unknown machine", zap.String("machine", r.args[0]))
			return ""
		}
		sc.machine = m
	case stmtArchNames, stmtPlatform:
		// Arch names are read from the selected machine on use.
	case stmtResetParens:
		st.openParens = 0
	case stmtOpenParen:
		st.openParens++
	case stmtCloseParens:
		st.endParens = strings.Repeat(")", st.openParens)
	case stmtSelectImpls:
		if sc.kernel != nil && sc.machine != nil {
			st.impls = sc.kernel.ImplsFor(MachineArchSet(sc.machine))
		}
	case stmtArchFlagList:
		if sc.machine != nil {
			return strings.Join(lo.Map(sc.machine.ArchNames, func(name string, _ int) string {
				return r.archBit(name)
			}), " | ")
		}
	case stmtMachineName:
		if sc.machine != nil {
			return strconv.Quote(sc.machine.Name)
		}
	case stmtKernelName:
		if sc.kernel != nil {
			return strconv.Quote(sc.kernel.Name)
		}
	case stmtImplNames:
		return braced(lo.Map(st.impls, func(impl *Impl, _ int) string {
			return strconv.Quote(impl.Name)
		}))
	case stmtImplDeps:
		return braced(lo.Map(st.impls, func(impl *Impl, _ int) string {
			if len(impl.Deps) == 0 {
				return "0"
			}
			return strings.Join(lo.Map(impl.Deps, func(dep string, _ int) string {
				return r.archBit(dep)
			}), " | ")
		}))
	case stmtImplAligned:
		return braced(lo.Map(st.impls, func(impl *Impl, _ int) string {
			return strconv.FormatBool(impl.Aligned)
		}))
	case stmtImplFuncs:
		if sc.kernel != nil {
			return braced(lo.Map(st.impls, func(impl *Impl, _ int) string {
				return sc.kernel.Name + "_" + impl.Name
			}))
		}
	case stmtImplCount:
		return strconv.Itoa(len(st.impls))
	case stmtArchCount:
		sc.lenArchs = len(r.eng.reg.Archs())
	case stmtDeprecated:
		if deprecatedAssignRe.MatchString(code) {
			st.deprecated = parseQuoted(code[deprecatedAssignRe.FindStringIndex(code)[1]:])
		}
	default:
		if text := strings.TrimSpace(code); text != "" {
			r.log.Debug("unknown template statement", zap.String("statement", text))
			r.report.add("statement", text)
		}
	}
	return ""
}

// archBit renders the bit constant of an arch, e.g. "(1 << LV_AVX)".
func (r *renderer) archBit(name string) string {
	return fmt.Sprintf("(1 << %s%s)", r.eng.opts.flagPrefix, strings.ToUpper(name))
}

func braced(items []string) string {
	return "{" + strings.Join(items, ", ") + "}"
}

// parseQuoted collects the quoted strings of a literal list.
func parseQuoted(s string) ArchSet {
	var names []string
	for _, m := range quotedRe.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1]+m[2])
	}
	return NewArchSet(names...)
}
