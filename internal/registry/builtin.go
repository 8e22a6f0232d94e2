package registry

import (
	"embed"
	"fmt"
	"sort"
)

//go:embed queries/*/tags.scm
var builtinFS embed.FS

// builtinExtensions maps each built-in language to its file extensions.
var builtinExtensions = map[string][]string{
	"bash":       {".sh", ".bash"},
	"c":          {".c", ".h"},
	"go":         {".go"},
	"java":       {".java"},
	"javascript": {".js", ".jsx", ".mjs"},
	"python":     {".py"},
	"ruby":       {".rb"},
	"rust":       {".rs"},
	"terraform":  {".tf", ".hcl"},
	"tsx":        {".tsx"},
	"typescript": {".ts"},
}

// builtinDefinitions constructs fresh Language Definitions for every built-in
// language. Each call returns independent copies so a reset cannot observe
// mutations made through a previous snapshot.
func builtinDefinitions() map[string]*LanguageDefinition {
	defs := make(map[string]*LanguageDefinition, len(builtinExtensions))
	names := make([]string, 0, len(builtinExtensions))
	for name := range builtinExtensions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		origin := fmt.Sprintf("builtin/queries/%s/tags.scm", name)
		content, err := builtinFS.ReadFile(fmt.Sprintf("queries/%s/tags.scm", name))
		if err != nil {
			// Embedded files are fixed at compile time.
			panic(fmt.Sprintf("registry: missing builtin query for %s: %v", name, err))
		}
		exts := make([]string, len(builtinExtensions[name]))
		copy(exts, builtinExtensions[name])
		defs[name] = &LanguageDefinition{
			Name:       name,
			Extensions: exts,
			Sources: []QuerySource{
				{Origin: origin, Content: content},
			},
		}
	}
	return defs
}
