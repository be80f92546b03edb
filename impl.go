package volkgen

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// errNoSignature is returned when neither a signature nor a dependency names the implementation.
var errNoSignature = errors.New("no implementation signature")

// implParser recovers implementations of one kernel from its guarded sections.
type implParser struct {
	kernel string
	depRe  *regexp.Regexp
	nameRe *regexp.Regexp
	log    *zap.Logger
}

func newImplParser(kernel, marker string, log *zap.Logger) *implParser {
	k := regexp.QuoteMeta(kernel)
	return &implParser{
		kernel: kernel,
		depRe:  regexp.MustCompile(regexp.QuoteMeta(marker) + `(\w+)`),
		nameRe: regexp.MustCompile(k + `_(\w+)\s*\(`),
		log:    log,
	}
}

// deps returns the lower-cased, unique, sorted capability names in a guard header.
func (p *implParser) deps(header string) []string {
	var deps []string
	for _, m := range p.depRe.FindAllStringSubmatch(header, -1) {
		deps = append(deps, strings.ToLower(m[1]))
	}
	deps = lo.Uniq(deps)
	slices.Sort(deps)
	return deps
}

// parse builds an implementation from a candidate guard section.
func (p *implParser) parse(g guardSection) (*Impl, error) {
	impl := &Impl{Deps: p.deps(g.header)}

	body := flattenSections(g.children, 0, p.log)
	pre := body
	if brace := strings.IndexByte(body, '{'); brace >= 0 {
		pre = body[:brace]
	}

	loc := p.nameRe.FindStringSubmatchIndex(pre)
	switch {
	case loc != nil:
		impl.Name = pre[loc[2]:loc[3]]
		// loc[1] is just past the opening parenthesis.
		args, err := splitParams(pre[loc[1]-1:])
		if err != nil {
			return nil, fmt.Errorf("%s_%s: %w", p.kernel, impl.Name, err)
		}
		impl.Args = args
	case len(impl.Deps) > 0:
		impl.Name = impl.Deps[0]
	default:
		return nil, errNoSignature
	}

	impl.Aligned = strings.HasPrefix(impl.Name, "a_")
	return impl, nil
}

// splitParams parses the parenthesised list at the start of s into arguments,
// splitting on commas outside nested parentheses.
func splitParams(s string) ([]Arg, error) {
	if s == "" || s[0] != '(' {
		return nil, errors.New("missing parameter list")
	}

	var (
		parts []string
		depth int
		start = 1
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				parts = append(parts, s[start:i])
				return parseParams(parts), nil
			}
		case ',':
			if depth == 1 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return nil, errors.New("unterminated parameter list")
}

func parseParams(parts []string) []Arg {
	var args []Arg
	for _, part := range parts {
		if arg, ok := parseParam(part); ok {
			args = append(args, arg)
		}
	}
	return args
}

// parseParam splits "const float* in" into type "const float*" and name "in".
// A parameter without a leading type, such as "void", is rejected.
func parseParam(param string) (Arg, bool) {
	param = strings.TrimSpace(param)
	end := len(param)
	start := end
	for start > 0 && isIdentByte(param[start-1]) {
		start--
	}
	if start == end {
		return Arg{}, false
	}
	typ := strings.TrimSpace(param[:start])
	if typ == "" {
		return Arg{}, false
	}
	return Arg{Type: typ, Name: param[start:end]}, true
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
