package symbol

import (
	"path/filepath"
	"strings"
)

// Filter is a deny list of wildcard patterns (shell-glob syntax,
// via path/filepath.Match) applied to a module's file name. A module
// matching any pattern is excluded from debug-info loading and always
// resolves to a generic symbol, short-circuiting the resolver chain.
type Filter struct {
	patterns []string
}

// NewFilter creates a filter from the configured wildcard patterns.
func NewFilter(patterns []string) *Filter {
	return &Filter{patterns: patterns}
}

// Excluded reports whether fileName matches any configured pattern.
// path/filepath.Match's own syntax-error case is treated as a non-match: a
// malformed configured pattern should never make symbolization of an
// unrelated module fail.
func (f *Filter) Excluded(fileName string) bool {
	base := BaseName(fileName)
	for _, p := range f.patterns {
		if ok, err := filepath.Match(p, base); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(p, fileName); err == nil && ok {
			return true
		}
	}
	return false
}

// BaseName extracts the final path component of fileName, splitting on
// either slash style. path/filepath.Base only understands the host OS's
// separator, but a module's recorded file name may be a Windows path (ETW
// traces) even when this process runs on Linux, or vice versa.
func BaseName(fileName string) string {
	if i := strings.LastIndexAny(fileName, `/\`); i >= 0 {
		return fileName[i+1:]
	}
	return fileName
}
