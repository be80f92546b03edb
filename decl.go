package volkgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// childTags is the only vocabulary recognised below a top-level element.
var childTags = []string{"flag", "check", "param", "alignment", "environment", "include", "archs"}

var attrRe = regexp.MustCompile(`(\w+)\s*=\s*"([^"]*)"`)

// element is a tag found by literal search in a declaration document.
type element struct {
	tag      string
	attrs    map[string]string
	text     string
	children []element
}

func (e element) attr(name string) string {
	return e.attrs[name]
}

// machineDecl is a machine before alternation expansion.
type machineDecl struct {
	name  string
	archs []string
}

// stripMarkupComments removes <!-- ... --> comments.
// An unterminated comment drops the rest of the document.
func stripMarkupComments(doc string) string {
	var b strings.Builder
	for {
		start := strings.Index(doc, "<!--")
		if start < 0 {
			b.WriteString(doc)
			break
		}
		b.WriteString(doc[:start])
		end := strings.Index(doc[start:], "-->")
		if end < 0 {
			break
		}
		doc = doc[start+end+len("-->"):]
	}
	return b.String()
}

// findOpenTag returns the index of the next "<tag" whose name ends there.
func findOpenTag(doc, tag string, from int) int {
	open := "<" + tag
	for from <= len(doc) {
		i := strings.Index(doc[from:], open)
		if i < 0 {
			return -1
		}
		pos := from + i
		next := pos + len(open)
		if next >= len(doc) {
			return -1
		}
		switch doc[next] {
		case ' ', '\t', '\r', '\n', '>', '/':
			return pos
		}
		from = next
	}
	return -1
}

// parseElements collects every tag element in doc, with its children from childTags.
func parseElements(doc, tag string) []element {
	var elements []element
	closeTag := "</" + tag + ">"

	pos := 0
	for {
		pos = findOpenTag(doc, tag, pos)
		if pos < 0 {
			break
		}
		tagEnd := strings.IndexByte(doc[pos:], '>')
		if tagEnd < 0 {
			break
		}
		tagEnd += pos

		elem := element{tag: tag, attrs: map[string]string{}}
		for _, m := range attrRe.FindAllStringSubmatch(doc[pos:tagEnd+1], -1) {
			elem.attrs[m[1]] = m[2]
		}

		if doc[tagEnd-1] == '/' {
			elements = append(elements, elem)
			pos = tagEnd + 1
			continue
		}

		closePos := strings.Index(doc[tagEnd:], closeTag)
		if closePos < 0 {
			pos = tagEnd + 1
			continue
		}
		closePos += tagEnd

		inner := doc[tagEnd+1 : closePos]
		elem.text = strings.TrimSpace(inner)
		for _, child := range childTags {
			elem.children = append(elem.children, parseElements(inner, child)...)
		}

		elements = append(elements, elem)
		pos = closePos + len(closeTag)
	}

	return elements
}

// parseArchs parses an arch definition document.
func parseArchs(name, doc string) ([]*Arch, error) {
	var archs []*Arch
	for _, elem := range parseElements(stripMarkupComments(doc), "arch") {
		arch := &Arch{Name: elem.attr("name"), Alignment: 1}
		if arch.Name == "" {
			continue
		}

		for _, child := range elem.children {
			switch child.tag {
			case "flag":
				compiler := strings.ToLower(child.attr("compiler"))
				if compiler == "" || child.text == "" {
					continue
				}
				if arch.flags == nil {
					arch.flags = map[string][]string{}
				}
				arch.flags[compiler] = append(arch.flags[compiler], child.text)
			case "check":
				checkName := child.attr("name")
				if checkName == "" {
					continue
				}
				c := Check{Name: checkName}
				for _, p := range child.children {
					if p.tag == "param" && p.text != "" {
						c.Params = append(c.Params, p.text)
					}
				}
				arch.Checks = append(arch.Checks, c)
			case "alignment":
				n, err := strconv.Atoi(child.text)
				if err != nil {
					return nil, &DeclError{
						Document: name,
						Element:  fmt.Sprintf("arch %q", arch.Name),
						Field:    "alignment",
						Err:      err,
					}
				}
				arch.Alignment = n
			case "environment":
				arch.Environment = child.text
			case "include":
				arch.Include = child.text
			}
		}

		archs = append(archs, arch)
	}
	return archs, nil
}

// parseMachines parses a machine definition document into raw declarations.
// Arch lists may still contain alternations.
func parseMachines(doc string) []machineDecl {
	var decls []machineDecl
	for _, elem := range parseElements(stripMarkupComments(doc), "machine") {
		name := elem.attr("name")
		if name == "" {
			continue
		}
		var archs []string
		for _, child := range elem.children {
			if child.tag == "archs" {
				archs = strings.Fields(child.text)
				break
			}
		}
		decls = append(decls, machineDecl{name: name, archs: archs})
	}
	return decls
}
