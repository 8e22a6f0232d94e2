package deps

import (
	"path"
	"strings"
)

// resolve maps a raw import target to a repository file. The second return
// is false when the target stays external. Resolution is purely lexical:
// candidate paths are checked against the indexed file set, never the disk.
func resolve(fromPath, target string, files map[string]struct{}) (string, bool) {
	switch path.Ext(fromPath) {
	case ".py":
		return resolvePython(fromPath, target, files)
	case ".js", ".jsx", ".mjs", ".ts", ".tsx":
		return resolveJS(fromPath, target, files)
	case ".c", ".h":
		return resolveInclude(fromPath, target, files)
	case ".tf", ".hcl":
		return resolveTerraform(fromPath, target, files)
	default:
		return target, false
	}
}

// resolvePython resolves dotted module paths. Leading dots walk up from the
// importing file's package, mirroring relative-import semantics.
func resolvePython(fromPath, target string, files map[string]struct{}) (string, bool) {
	base := ""
	name := target
	if strings.HasPrefix(name, ".") {
		dir := path.Dir(fromPath)
		for strings.HasPrefix(name, ".") {
			name = name[1:]
			if base != "" || dir == "." {
				dir = path.Dir(dir)
			}
			base = dir
		}
	}

	rel := strings.ReplaceAll(name, ".", "/")
	if base != "" && base != "." {
		rel = path.Join(base, rel)
	}

	for _, cand := range []string{rel + ".py", path.Join(rel, "__init__.py")} {
		cand = path.Clean(cand)
		if _, ok := files[cand]; ok {
			return cand, true
		}
	}
	return target, false
}

var jsSuffixes = []string{
	"", ".js", ".jsx", ".mjs", ".ts", ".tsx",
	"/index.js", "/index.jsx", "/index.ts", "/index.tsx",
}

func resolveJS(fromPath, target string, files map[string]struct{}) (string, bool) {
	if !strings.HasPrefix(target, "./") && !strings.HasPrefix(target, "../") {
		return target, false // bare specifier, package import
	}
	rel := path.Clean(path.Join(path.Dir(fromPath), target))
	for _, suffix := range jsSuffixes {
		cand := rel + suffix
		if _, ok := files[cand]; ok {
			return cand, true
		}
	}
	return target, false
}

// resolveTerraform resolves local module sources to the called module's
// entry file. Registry and remote sources stay external.
func resolveTerraform(fromPath, target string, files map[string]struct{}) (string, bool) {
	if !strings.HasPrefix(target, "./") && !strings.HasPrefix(target, "../") {
		return target, false
	}
	dir := path.Clean(path.Join(path.Dir(fromPath), target))
	if cand := path.Join(dir, "main.tf"); hasFile(files, cand) {
		return cand, true
	}
	best := ""
	for f := range files {
		if path.Dir(f) != dir || path.Ext(f) != ".tf" {
			continue
		}
		if best == "" || f < best {
			best = f
		}
	}
	if best != "" {
		return best, true
	}
	return target, false
}

func hasFile(files map[string]struct{}, p string) bool {
	_, ok := files[p]
	return ok
}

func resolveInclude(fromPath, target string, files map[string]struct{}) (string, bool) {
	if strings.HasPrefix(target, "<") {
		return strings.Trim(target, "<>"), false // system header
	}
	cand := path.Clean(path.Join(path.Dir(fromPath), target))
	if _, ok := files[cand]; ok {
		return cand, true
	}
	if _, ok := files[target]; ok {
		return target, true
	}
	return target, false
}
