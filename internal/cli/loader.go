package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ordokr/LMS/internal/compiler"
	"github.com/ordokr/LMS/internal/ir"
)

// LoadRules compiles the rules in path, which is a .cue file or a directory
// whose .cue files are compiled in name order. Every file is compiled even
// after one fails so all compile errors are reported together.
func LoadRules(path string) ([]ir.SyncRule, []error) {
	files, err := FindCUEFiles(path)
	if err != nil {
		return nil, []error{err}
	}

	var (
		rules []ir.SyncRule
		errs  []error
	)
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fileRules, err := compiler.ParseRulesFile(f, string(src))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, fileRules...)
	}
	return rules, errs
}

// FindCUEFiles returns path itself when it is a file, or the .cue files
// directly inside it, sorted.
func FindCUEFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	matches, err := filepath.Glob(filepath.Join(path, "*.cue"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no .cue files in %s", path)
	}
	sort.Strings(matches)
	return matches, nil
}
