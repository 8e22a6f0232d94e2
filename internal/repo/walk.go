package repo

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/AlanVerbner/kit/pkg/types"
)

var skipDirs = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	"node_modules":  {},
	"__pycache__":   {},
	"venv":          {},
	".venv":         {},
	".tox":          {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
}

type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

func compilePatterns(patterns []string) ([]compiledPattern, error) {
	var out []compiledPattern
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, &types.ValidationError{Msg: "bad glob pattern " + p + ": " + err.Error()}
		}
		out = append(out, compiledPattern{pattern: p, glob: g})
	}
	return out, nil
}

func matchesAny(path string, patterns []compiledPattern) bool {
	for _, p := range patterns {
		if p.glob.Match(path) {
			return true
		}
	}
	return false
}

// walk discovers the repository's file tree in lexical path order. Directory
// entries are kept so the tree view can show structure; symlinks and hidden
// files are not followed. Include patterns, when present, restrict which
// regular files are returned; exclude patterns drop both files and whole
// directories.
func (r *Repository) walk() ([]types.FileInfo, error) {
	var gi *ignore.GitIgnore
	if r.cfg.RespectGitignore {
		gi = loadGitignore(r.root)
	}

	var entries []types.FileInfo
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are not fatal
		}
		if path == r.root {
			return nil
		}

		name := d.Name()
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if matchesAny(rel+"/", r.exclude) || matchesAny(rel, r.exclude) {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(rel) {
				return filepath.SkipDir
			}
			entries = append(entries, types.FileInfo{Path: rel, Name: name, IsDir: true})
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if matchesAny(rel, r.exclude) {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if len(r.include) > 0 && !matchesAny(rel, r.include) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, types.FileInfo{
			Path: rel,
			Name: name,
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
