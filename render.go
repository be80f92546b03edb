package volkgen

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Banner starts every rendered document.
const Banner = "/* this file was generated by volkgen template utils, do not edit! */"

// maxRenderDepth bounds the nesting of loop bodies rendered by child renderers.
const maxRenderDepth = 20

var (
	forEnumRe  = regexp.MustCompile(`^\s*%\s*for\s+(\w+)\s*,\s*(\w+)\s+in\s+enumerate\(([\w.]+)\)\s*:\s*$`)
	forTupleRe = regexp.MustCompile(`^\s*%\s*for\s+(\w+)\s*,\s*(\w+)\s+in\s+([\w.]+)\s*:\s*$`)
	forRe      = regexp.MustCompile(`^\s*%\s*for\s+(\w+)\s+in\s+([\w.]+)\s*:\s*$`)
	endforRe   = regexp.MustCompile(`^\s*%\s*endfor\s*$`)

	ifRe    = regexp.MustCompile(`^\s*%\s*if\s+(.+?)\s*:\s*$`)
	elifRe  = regexp.MustCompile(`^\s*%\s*elif\s+(.+?)\s*:\s*$`)
	elseRe  = regexp.MustCompile(`^\s*%\s*else\s*:\s*$`)
	endifRe = regexp.MustCompile(`^\s*%\s*endif\s*$`)

	codeSpanRe = regexp.MustCompile(`<%(.*?)%>`)
	varSpanRe  = regexp.MustCompile(`\$\{([^}]+)\}`)
)

// TemplateError reports a template construct that rendered as empty text.
type TemplateError struct {
	Construct string
	Text      string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("unknown template %s %q", e.Construct, e.Text)
}

// Engine renders templates against a registry and a kernel catalog.
//
// An Engine is not safe for concurrent use; create one per goroutine.
// Registry and catalog may be shared.
type Engine struct {
	reg  *Registry
	cat  *Catalog
	opts *options
	vars map[string]string
}

// NewEngine returns an engine over reg and cat. A nil catalog is treated as empty.
func NewEngine(reg *Registry, cat *Catalog, opts ...Option) *Engine {
	if reg == nil {
		reg = &Registry{}
	}
	if cat == nil {
		cat = &Catalog{}
	}
	return &Engine{
		reg:  reg,
		cat:  cat,
		opts: newOptions(opts),
		vars: map[string]string{},
	}
}

// SetVar defines a variable available to ${name} interpolation.
func (e *Engine) SetVar(name, value string) {
	e.vars[name] = value
}

// Render renders tmpl. The positional args are visible to statements such as
// "this_machine = machine_dict[args[0]]".
//
// Unknown statements and collections render as empty text. With [WithStrict]
// the full output is still returned, together with an error listing them.
func (e *Engine) Render(tmpl string, args []string) (string, error) {
	rep := &report{seen: map[TemplateError]struct{}{}}
	r := &renderer{
		eng:    e,
		log:    e.opts.logger,
		args:   args,
		report: rep,
		sc:     newScope(),
		st:     counters{deprecated: NewArchSet(e.opts.deprecated...)},
	}
	body := r.run(tmpl)
	out := "\n" + Banner + "\n\n" + body

	if e.opts.strict && len(rep.errs) > 0 {
		return out, multierr.Combine(rep.errs...)
	}
	return out, nil
}

// report collects unknown constructs across a render call tree.
type report struct {
	seen map[TemplateError]struct{}
	errs []error
}

func (rp *report) add(construct, text string) {
	te := TemplateError{Construct: construct, Text: text}
	if _, ok := rp.seen[te]; ok {
		return
	}
	rp.seen[te] = struct{}{}
	rp.errs = append(rp.errs, &te)
}

// counters is the mutable state a child renderer hands back to its parent.
type counters struct {
	openParens int
	endParens  string
	impls      []*Impl
	deprecated ArchSet
}

// loopFrame collects a loop body until its matching %endfor.
type loopFrame struct {
	vars       []string
	collection string
	enumerate  bool
	tuple      bool
	body       strings.Builder
	depth      int
	suppressed bool
}

// condFrame tracks one %if chain.
type condFrame struct {
	enclosing bool // the region around the chain emits output
	matched   bool // a branch has been taken
	active    bool // the current branch emits output
}

// codeSpan is a <% ... %> span spread over several lines.
type codeSpan struct {
	text       strings.Builder
	suppressed bool
}

type renderer struct {
	eng    *Engine
	log    *zap.Logger
	args   []string
	depth  int
	report *report

	sc scope
	st counters

	// Nested loops are rendered by child renderers, so at most one frame
	// collects at a time.
	loop  *loopFrame
	conds []*condFrame
	span  *codeSpan
}

func (r *renderer) run(tmpl string) string {
	var out strings.Builder
	for _, line := range splitLines(tmpl) {
		out.WriteString(r.line(line))
	}
	if r.loop != nil {
		r.log.Warn("unterminated loop dropped", zap.String("collection", r.loop.collection))
		r.loop = nil
	}
	if r.span != nil {
		r.log.Warn("unterminated code span dropped")
		r.span = nil
	}
	return out.String()
}

// splitLines splits on newlines; a trailing newline does not start a line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func (r *renderer) suppressed() bool {
	return len(r.conds) > 0 && !r.conds[len(r.conds)-1].active
}

func (r *renderer) line(line string) string {
	if r.span != nil {
		return r.continueSpan(line)
	}
	if r.loop != nil {
		return r.collect(line)
	}

	if start := strings.Index(line, "<%"); start >= 0 && !strings.Contains(line[start+2:], "%>") {
		r.span = &codeSpan{suppressed: r.suppressed()}
		r.span.text.WriteString(line[start+2:])
		r.span.text.WriteByte('\n')
		if r.span.suppressed {
			return ""
		}
		return line[:start]
	}

	if r.openLoop(line) {
		return ""
	}
	if handled := r.conditional(line); handled {
		return ""
	}
	if r.suppressed() {
		return ""
	}

	// Spans on a comment line still run.
	line = r.substitute(line, codeSpanRe, "code", r.exec)
	line = r.substitute(line, varSpanRe, "variable", r.eval)
	if strings.HasPrefix(line, "##") {
		return ""
	}
	return line + "\n"
}

func (r *renderer) continueSpan(line string) string {
	end := strings.Index(line, "%>")
	if end < 0 {
		r.span.text.WriteString(line)
		r.span.text.WriteByte('\n')
		return ""
	}
	r.span.text.WriteString(line[:end])
	span := r.span
	r.span = nil
	if span.suppressed {
		return ""
	}
	// Text after the closing marker is dropped.
	return r.exec(span.text.String())
}

// substitute replaces each span matched by re with fn of its first group,
// one span at a time, bounded by the line length.
func (r *renderer) substitute(line string, re *regexp.Regexp, what string, fn func(string) string) string {
	limit := len(line) + 100
	for n := 0; ; n++ {
		loc := re.FindStringSubmatchIndex(line)
		if loc == nil {
			return line
		}
		if n >= limit {
			r.log.Error("template substitution exceeded iteration limit",
				zap.String("span", what),
				zap.Int("limit", limit))
			return line
		}
		line = line[:loc[0]] + fn(line[loc[2]:loc[3]]) + line[loc[1]:]
	}
}

// openLoop starts a loop frame for a %for header.
func (r *renderer) openLoop(line string) bool {
	f := &loopFrame{depth: 1, suppressed: r.suppressed()}
	if m := forEnumRe.FindStringSubmatch(line); m != nil {
		f.vars, f.collection, f.enumerate = []string{m[1], m[2]}, m[3], true
	} else if m := forTupleRe.FindStringSubmatch(line); m != nil {
		f.vars, f.collection, f.tuple = []string{m[1], m[2]}, m[3], true
	} else if m := forRe.FindStringSubmatch(line); m != nil {
		f.vars, f.collection = []string{m[1]}, m[2]
	} else {
		return false
	}
	r.loop = f
	return true
}

func isLoopHeader(line string) bool {
	return forEnumRe.MatchString(line) || forTupleRe.MatchString(line) || forRe.MatchString(line)
}

// collect appends a line to the open loop body, or runs the loop when its
// %endfor arrives.
func (r *renderer) collect(line string) string {
	f := r.loop
	if endforRe.MatchString(line) {
		f.depth--
		if f.depth == 0 {
			r.loop = nil
			if f.suppressed {
				return ""
			}
			return r.iterate(f)
		}
	} else if isLoopHeader(line) {
		f.depth++
	}
	f.body.WriteString(line)
	f.body.WriteByte('\n')
	return ""
}

// conditional handles %if, %elif, %else and %endif lines.
func (r *renderer) conditional(line string) bool {
	if m := ifRe.FindStringSubmatch(line); m != nil {
		enclosing := !r.suppressed()
		f := &condFrame{enclosing: enclosing}
		if enclosing {
			f.active = r.condition(m[1])
			f.matched = f.active
		}
		r.conds = append(r.conds, f)
		return true
	}
	if len(r.conds) == 0 {
		return false
	}
	f := r.conds[len(r.conds)-1]

	if m := elifRe.FindStringSubmatch(line); m != nil {
		f.active = false
		if f.enclosing && !f.matched {
			f.active = r.condition(m[1])
			f.matched = f.active
		}
		return true
	}
	if elseRe.MatchString(line) {
		f.active = f.enclosing && !f.matched
		f.matched = true
		return true
	}
	if endifRe.MatchString(line) {
		r.conds = r.conds[:len(r.conds)-1]
		return true
	}
	return false
}

// child renders a loop body with its own scope and merges counters back.
func (r *renderer) child(body string, sc scope) string {
	if r.depth >= maxRenderDepth {
		r.log.Error("template render depth exceeded", zap.Int("max", maxRenderDepth))
		return ""
	}
	c := &renderer{
		eng:    r.eng,
		log:    r.log,
		args:   r.args,
		depth:  r.depth + 1,
		report: r.report,
		sc:     sc,
		st:     r.st,
	}
	out := c.run(body)
	r.st = c.st
	return out
}

// iterate renders the loop body once per element of the bound collection.
func (r *renderer) iterate(f *loopFrame) string {
	body := f.body.String()
	var out strings.Builder

	each := func(i int, sc scope) {
		if f.enumerate {
			sc = sc.withEnumIndex(i).bind(f.vars[0], nameIndex)
		}
		out.WriteString(r.child(body, sc))
	}
	entity := f.vars[len(f.vars)-1]

	head, attr, _ := strings.Cut(f.collection, ".")
	switch canon := r.sc.canonical(head); {
	case attr == "" && canon == "kernels":
		for i, k := range r.eng.cat.Kernels {
			each(i, r.sc.withKernel(k).bind(entity, nameKernel))
		}
	case attr == "" && canon == "archs":
		for i, a := range r.eng.reg.Archs() {
			each(i, r.sc.withArch(a).bind(entity, nameArch))
		}
	case attr == "" && canon == "machines":
		for i, m := range r.eng.reg.Machines() {
			each(i, r.sc.withMachine(m).bind(entity, nameMachine))
		}
	case attr == "archs" && (canon == nameThisMachine || canon == nameMachine):
		if r.sc.machine == nil {
			break
		}
		for i, a := range r.sc.machine.Archs {
			each(i, r.sc.withArch(a).bind(entity, nameArch))
		}
	case attr == "args" && canon == nameKernel:
		if r.sc.kernel == nil {
			break
		}
		for i := range r.sc.kernel.Args {
			sc := r.sc.withArgIndex(i)
			if f.tuple {
				sc = sc.bind(f.vars[0], nameArgType).bind(f.vars[1], nameArgName)
			}
			each(i, sc)
		}
	case attr == "checks" && canon == nameArch:
		if r.sc.arch == nil {
			break
		}
		for i := range r.sc.arch.Checks {
			each(i, r.sc.withCheckIndex(i).bind(entity, nameCheck))
		}
	default:
		r.log.Debug("unknown loop collection", zap.String("collection", f.collection))
		r.report.add("collection", f.collection)
	}
	return out.String()
}
