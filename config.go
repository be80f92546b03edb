package volkgen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoSourceTree is returned when no source tree with declaration documents is found.
var ErrNoSourceTree = errors.New("no source tree found")

// Paths of the inputs relative to a source tree root.
const (
	ArchsFileRel    = "gen/archs.xml"
	MachinesFileRel = "gen/machines.xml"
	KernelsDirRel   = "kernels/volk"
)

// maxSearchDepth bounds the upward search from the working directory.
const maxSearchDepth = 20

// Layout locates the generator inputs.
type Layout struct {
	Root         string `json:"root" yaml:"root"`
	ArchsFile    string `json:"archs_file" yaml:"archs_file"`
	MachinesFile string `json:"machines_file" yaml:"machines_file"`
	KernelsDir   string `json:"kernels_dir" yaml:"kernels_dir"`
}

// LayoutAt returns the standard layout under root.
func LayoutAt(root string) Layout {
	return Layout{
		Root:         root,
		ArchsFile:    filepath.Join(root, ArchsFileRel),
		MachinesFile: filepath.Join(root, MachinesFileRel),
		KernelsDir:   filepath.Join(root, KernelsDirRel),
	}
}

// FindSourceRoot locates the source tree. It tries in priority order:
//  1. dir, when non-empty (typically from a flag or the environment)
//  2. three levels above the running executable
//  3. the working directory and its parents
func FindSourceRoot(dir string) (string, error) {
	if dir != "" {
		if !isSourceRoot(dir) {
			return "", fmt.Errorf("%w: %s has no %s", ErrNoSourceTree, dir, ArchsFileRel)
		}
		return dir, nil
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(exe, "..", "..", ".."))
	}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, ancestors(wd, maxSearchDepth)...)
	}
	return findSourceRoot(candidates)
}

func findSourceRoot(candidates []string) (string, error) {
	for _, c := range candidates {
		if isSourceRoot(c) {
			return filepath.Clean(c), nil
		}
	}
	return "", ErrNoSourceTree
}

// ancestors returns dir followed by at most limit of its parents.
func ancestors(dir string, limit int) []string {
	dirs := []string{dir}
	for range limit {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dirs = append(dirs, parent)
		dir = parent
	}
	return dirs
}

func isSourceRoot(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ArchsFileRel))
	return err == nil && info.Mode().IsRegular()
}
