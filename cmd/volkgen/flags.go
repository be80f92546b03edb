package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/leodido/volkgen"
	"github.com/thediveo/enumflag/v2"
	"gopkg.in/yaml.v3"
)

// outputFormat selects how listing commands print their results.
type outputFormat enumflag.Flag

const (
	formatText outputFormat = iota
	formatJSON
	formatYAML
)

var formatIdentifiers = map[outputFormat][]string{
	formatText: {"text"},
	formatJSON: {"json"},
	formatYAML: {"yaml", "yml"},
}

func newFormatValue(f *outputFormat) *enumflag.EnumFlagValue[outputFormat] {
	return enumflag.New(f, "format", formatIdentifiers, enumflag.EnumCaseInsensitive)
}

func parseFormat(input string) (outputFormat, error) {
	var f outputFormat
	if err := newFormatValue(&f).Set(strings.TrimSpace(input)); err != nil {
		return formatText, fmt.Errorf("unknown format: %q (available: text, json, yaml)", input)
	}
	return f, nil
}

// writeFormatted prints v as JSON or YAML, or text otherwise.
func writeFormatted(w io.Writer, f outputFormat, v any, text fmt.Stringer) error {
	switch f {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	_, err := fmt.Fprint(w, text)
	return err
}

// archList is a flag value collecting arch names separated by ";" or ",".
// Repeated flags accumulate.
type archList []string

func (l *archList) String() string {
	return strings.Join(*l, ";")
}

func (l *archList) Set(input string) error {
	*l = append(*l, parseArchList(input)...)
	return nil
}

func (l *archList) Type() string {
	return "archs"
}

func parseArchList(input string) archList {
	return archList(volkgen.ParseArchSet(input).Names())
}
