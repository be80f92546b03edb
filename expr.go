package volkgen

import (
	"maps"
	"regexp"
	"strconv"
	"strings"
)

// Canonical names of the entities a loop can bind. Loop variables are
// aliases of one of these.
const (
	nameKernel      = "kern"
	nameArch        = "arch"
	nameMachine     = "machine"
	nameThisMachine = "this_machine"
	nameArgType     = "arg_type"
	nameArgName     = "arg_name"
	nameCheck       = "check"
	nameIndex       = "i"
)

// scope is the set of bindings visible to a renderer. It is passed by value:
// a child renderer gets a copy and its changes never reach the parent.
type scope struct {
	kernel  *Kernel
	arch    *Arch
	machine *Machine

	argIndex   int
	checkIndex int
	enumIndex  int
	lenArchs   int

	// aliases maps loop variables to canonical names. Copied on write.
	aliases map[string]string
}

func newScope() scope {
	return scope{argIndex: -1, checkIndex: -1, enumIndex: -1}
}

func (s scope) withKernel(k *Kernel) scope   { s.kernel = k; return s }
func (s scope) withArch(a *Arch) scope       { s.arch = a; return s }
func (s scope) withMachine(m *Machine) scope { s.machine = m; return s }
func (s scope) withArgIndex(i int) scope     { s.argIndex = i; return s }
func (s scope) withCheckIndex(i int) scope   { s.checkIndex = i; return s }
func (s scope) withEnumIndex(i int) scope    { s.enumIndex = i; return s }

// bind makes alias refer to the canonical name.
func (s scope) bind(alias, canonical string) scope {
	if alias == canonical && s.aliases[alias] == "" {
		return s
	}
	aliases := maps.Clone(s.aliases)
	if aliases == nil {
		aliases = map[string]string{}
	}
	aliases[alias] = canonical
	s.aliases = aliases
	return s
}

func (s scope) canonical(name string) string {
	if c, ok := s.aliases[name]; ok {
		return c
	}
	return name
}

// normalize rewrites the leading identifier of a dotted expression to its
// canonical name, so "k.name" reads as "kern.name" inside "for k in kernels".
func (s scope) normalize(expr string) string {
	head, rest, dotted := strings.Cut(expr, ".")
	head = s.canonical(head)
	if dotted {
		return head + "." + rest
	}
	return head
}

var argRefRe = regexp.MustCompile(`^args\[(\d+)\]$`)

// eval resolves a ${...} expression. Unresolvable expressions are empty.
func (r *renderer) eval(expr string) string {
	expr = strings.TrimSpace(expr)
	if v, ok := r.eng.vars[expr]; ok {
		return v
	}
	e := r.sc.normalize(expr)
	if v, ok := r.eng.vars[e]; ok {
		return v
	}
	if v, ok := r.evalBinding(e); ok {
		return v
	}

	switch e {
	case "end_open_parens":
		return r.st.endParens
	case nameIndex:
		if r.sc.enumIndex >= 0 {
			return strconv.Itoa(r.sc.enumIndex)
		}
	case "len_archs":
		if r.sc.lenArchs > 0 {
			return strconv.Itoa(r.sc.lenArchs)
		}
	case "len_impls":
		return strconv.Itoa(len(r.st.impls))
	}
	if m := argRefRe.FindStringSubmatch(e); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n < len(r.args) {
			return r.args[n]
		}
	}
	return ""
}

// evalBinding resolves attributes of the current loop bindings.
func (r *renderer) evalBinding(e string) (string, bool) {
	sc := r.sc
	if k := sc.kernel; k != nil {
		switch e {
		case "kern.name":
			return k.Name, true
		case "kern.pname":
			return k.PointerName, true
		case "kern.arglist_full":
			return k.ArgList(), true
		case "kern.arglist_names":
			return k.ArgNames(), true
		case "kern.arglist_types":
			return k.ArgTypes(), true
		case "kern.has_dispatcher":
			if k.HasDispatcher {
				return "1", true
			}
			return "", true
		}
		if sc.argIndex >= 0 && sc.argIndex < len(k.Args) {
			switch e {
			case nameArgType:
				return k.Args[sc.argIndex].Type, true
			case nameArgName:
				return k.Args[sc.argIndex].Name, true
			}
		}
	}
	if a := sc.arch; a != nil {
		switch e {
		case "arch.name":
			return a.Name, true
		case "arch.name.upper()":
			return strings.ToUpper(a.Name), true
		case "arch.alignment":
			return strconv.Itoa(a.Alignment), true
		case "arch.environment":
			return a.Environment, true
		case "arch.include":
			return a.Include, true
		}
		if sc.checkIndex >= 0 && sc.checkIndex < len(a.Checks) {
			c := a.Checks[sc.checkIndex]
			switch e {
			case nameCheck, "check.name":
				return c.Name, true
			case "params", "check.params":
				return strings.Join(c.Params, ", "), true
			}
		}
	}
	if m := sc.machine; m != nil {
		switch e {
		case "this_machine.name", "machine.name":
			return m.Name, true
		case "this_machine.name.upper()", "machine.name.upper()":
			return strings.ToUpper(m.Name), true
		case "this_machine.alignment", "machine.alignment":
			return strconv.Itoa(m.Alignment), true
		}
	}
	return "", false
}

var (
	sliceEqRe    = regexp.MustCompile(`^(\w+(?:\.\w+)*)\[:(\d+)\]\s*==\s*["']([^"']*)["']$`)
	compareRe    = regexp.MustCompile(`^([\w.()\[\]]+)\s*(==|!=)\s*["']([^"']*)["']$`)
	membershipRe = regexp.MustCompile(`^["']([^"']*)["']\s+in\s+([\w.()]+)$`)
	inSetRe      = regexp.MustCompile(`^([\w.()]+)\s+in\s+([\w.]+)$`)
)

// condition evaluates the expression of an %if or %elif.
func (r *renderer) condition(c string) bool {
	c = strings.TrimSpace(c)
	if l, rest, ok := strings.Cut(c, " or "); ok {
		return r.condition(l) || r.condition(rest)
	}
	if l, rest, ok := strings.Cut(c, " and "); ok {
		return r.condition(l) && r.condition(rest)
	}
	if rest, ok := strings.CutPrefix(c, "not "); ok {
		return !r.condition(rest)
	}
	if strings.HasPrefix(c, "(") && strings.HasSuffix(c, ")") {
		return r.condition(c[1 : len(c)-1])
	}

	if m := sliceEqRe.FindStringSubmatch(c); m != nil {
		v := r.eval(m[1])
		n, _ := strconv.Atoi(m[2])
		return v[:min(n, len(v))] == m[3]
	}
	if m := compareRe.FindStringSubmatch(c); m != nil {
		eq := r.eval(m[1]) == m[3]
		return eq == (m[2] == "==")
	}
	if m := membershipRe.FindStringSubmatch(c); m != nil {
		if in, ok := r.member(m[1], r.sc.normalize(m[2])); ok {
			return in
		}
		return strings.Contains(r.eval(m[2]), m[1])
	}
	if m := inSetRe.FindStringSubmatch(c); m != nil {
		in, _ := r.member(r.eval(m[1]), r.sc.normalize(m[2]))
		return in
	}
	return truthy(r.eval(c))
}

// member tests item against a named collection. ok is false when the
// collection is not one the engine knows.
func (r *renderer) member(item, collection string) (in, ok bool) {
	switch collection {
	case "deprecated_kernels":
		return r.st.deprecated.Contains(item), true
	case "this_machine.arch_names", "machine.arch_names", "arch_names":
		return r.sc.machine != nil && r.sc.machine.HasArch(item), true
	}
	return false, false
}

func truthy(v string) bool {
	return v != "" && v != "0" && v != "false" && v != "False"
}
