package volkgen

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// maxGuardDepth bounds the nesting of conditional sections.
const maxGuardDepth = 50

// stripComments removes C and C++ comments. Comment markers inside string
// and character literals are kept.
func stripComments(code string) string {
	var b strings.Builder
	b.Grow(len(code))

	var (
		lineComment  bool
		blockComment bool
		quote        byte
	)
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case lineComment:
			if c == '\n' {
				lineComment = false
				b.WriteByte(c)
			}
		case blockComment:
			if c == '*' && i+1 < len(code) && code[i+1] == '/' {
				blockComment = false
				i++
			}
		case quote != 0:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(code) {
				i++
				b.WriteByte(code[i])
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case c == '/' && i+1 < len(code) && code[i+1] == '/':
			lineComment = true
			i++
		case c == '/' && i+1 < len(code) && code[i+1] == '*':
			blockComment = true
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// section is a node of the conditional-compilation tree: either plain text
// or a guarded span with its header line and child sections.
type section interface {
	flatten(depth int, log *zap.Logger) string
}

type textSection struct {
	body string
}

type guardSection struct {
	header   string
	body     string
	children []section
}

func (s textSection) flatten(int, *zap.Logger) string {
	return s.body
}

// flatten inlines the guarded text without its directive lines.
func (s guardSection) flatten(depth int, log *zap.Logger) string {
	return flattenSections(s.children, depth+1, log)
}

func flattenSections(sections []section, depth int, log *zap.Logger) string {
	if depth > maxGuardDepth {
		log.Warn("conditional section nesting too deep, truncating", zap.Int("depth", depth))
		return ""
	}
	var b strings.Builder
	for _, s := range sections {
		b.WriteString(s.flatten(depth, log))
	}
	return b.String()
}

var directiveRe = regexp.MustCompile(`^\s*#\s*(\w+)`)

type directiveKind int

const (
	directiveNone directiveKind = iota
	directiveIf
	directiveElse
	directiveEnd
)

func classifyDirective(line string) directiveKind {
	m := directiveRe.FindStringSubmatch(line)
	if m == nil {
		return directiveNone
	}
	switch m[1] {
	case "if", "ifdef", "ifndef":
		return directiveIf
	case "else", "elif":
		return directiveElse
	case "endif":
		return directiveEnd
	}
	return directiveNone
}

// splitSections partitions code at guard depth one. Lines nested deeper stay
// in the body of their enclosing section, which is split again recursively.
func splitSections(code string, depth int, log *zap.Logger) []section {
	if depth > maxGuardDepth {
		log.Warn("conditional section nesting too deep, stopping", zap.Int("depth", depth))
		return nil
	}

	var (
		sections []section
		current  strings.Builder
		header   string
		guarded  bool
		level    int
	)
	flush := func() {
		body := current.String()
		current.Reset()
		if strings.TrimSpace(body) == "" {
			return
		}
		if !guarded {
			sections = append(sections, textSection{body: body})
			return
		}
		sections = append(sections, guardSection{header: header, body: body})
	}

	for _, line := range splitLines(code) {
		kind := classifyDirective(line)
		switch kind {
		case directiveIf:
			level++
		case directiveEnd:
			level--
		}

		switch {
		case level == 1 && (kind == directiveIf || kind == directiveElse):
			flush()
			header, guarded = line, true
			continue
		case level == 0 && kind == directiveEnd:
			flush()
			header, guarded = "", false
			continue
		}

		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	for i, s := range sections {
		if g, ok := s.(guardSection); ok {
			g.children = splitSections(g.body, depth+1, log)
			sections[i] = g
		}
	}
	return sections
}
