package volkgen

import "strings"

// alternationMarker separates the branches of an optional or alternative arch.
const alternationMarker = "|"

// expandMachine resolves alternations in a machine declaration.
//
// The first token containing the marker is split into parts. A non-empty
// part yields a variant named name_part with the token replaced by the part;
// an empty part yields a variant with the same name and the token removed.
// Expansion recurses until no token contains the marker, so chained
// alternations produce their cross product in declaration order.
func expandMachine(decl machineDecl) []machineDecl {
	for i, tok := range decl.archs {
		if !strings.Contains(tok, alternationMarker) {
			continue
		}

		var out []machineDecl
		for _, part := range strings.Split(tok, alternationMarker) {
			archs := make([]string, 0, len(decl.archs))
			archs = append(archs, decl.archs[:i]...)
			name := decl.name
			if part != "" {
				archs = append(archs, part)
				name += "_" + part
			}
			archs = append(archs, decl.archs[i+1:]...)
			out = append(out, expandMachine(machineDecl{name: name, archs: archs})...)
		}
		return out
	}
	return []machineDecl{decl}
}
