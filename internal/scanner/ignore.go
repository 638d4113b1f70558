package scanner

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/henrycmeen/dimo/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is read from the content root when present (gitignore syntax).
const IgnoreFileName = ".dimoignore"

var defaultIgnoreLines = []string{
	// OS-specific
	".DS_Store",
	"._*",
	"Thumbs.db",
	"desktop.ini",
	// dimo
	IgnoreFileName,
	"*.dimo.tmp.*",
}

// IgnoreList decides which paths under the content root are not content.
type IgnoreList struct {
	rules    *gitignore.GitIgnore
	globs    []string
	absPaths []string
}

// NewIgnoreList compiles the default rules, an optional ignore file in root,
// and extra doublestar globs. absPaths are skipped whenever the walk reaches them.
func NewIgnoreList(root string, globs []string, absPaths []string, logger *slog.Logger) (*IgnoreList, error) {
	for _, g := range globs {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid exclude pattern %q", g)
		}
	}

	ignorePath := filepath.Join(root, IgnoreFileName)
	var rules *gitignore.GitIgnore
	if utils.FileExists(ignorePath) {
		var err error
		rules, err = gitignore.CompileIgnoreFileAndLines(ignorePath, defaultIgnoreLines...)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ignorePath, err)
		}
		logger.Info("loaded ignore file", "path", ignorePath)
	} else {
		rules = gitignore.CompileIgnoreLines(defaultIgnoreLines...)
	}

	cleaned := make([]string, 0, len(absPaths))
	for _, p := range absPaths {
		if p != "" {
			cleaned = append(cleaned, realPath(p))
		}
	}

	return &IgnoreList{rules: rules, globs: globs, absPaths: cleaned}, nil
}

// ShouldIgnore reports whether relPath (slash separated) at absPath is excluded.
func (l *IgnoreList) ShouldIgnore(relPath, absPath string, isDir bool) bool {
	for _, p := range l.absPaths {
		if absPath == p {
			return true
		}
	}

	probe := relPath
	if isDir {
		probe = relPath + "/"
	}
	if l.rules.MatchesPath(probe) {
		return true
	}

	base := relPath
	if i := strings.LastIndexByte(relPath, '/'); i >= 0 {
		base = relPath[i+1:]
	}
	for _, g := range l.globs {
		if ok, _ := doublestar.Match(g, relPath); ok {
			return true
		}
		if !strings.Contains(g, "/") {
			if ok, _ := doublestar.Match(g, base); ok {
				return true
			}
		}
	}
	return false
}

// realPath resolves symlinks when the path exists so that comparisons with
// walked paths are stable.
func realPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return filepath.Clean(p)
}
