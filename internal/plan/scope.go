package plan

import (
	"path"
	"strings"
)

// MaxScopeSegments bounds glob matching to a fixed number of path
// segments; this is the pinned decision for the spec's open question on
// scope-glob recursion (SPEC_FULL.md §D): no unbounded "**" descent, to
// keep matching cost and behavior predictable regardless of tree depth.
const MaxScopeSegments = 32

// InScope reports whether relPath (slash-separated, relative to the
// workspace root) matches any of the plan's declared scope globs. Each
// glob is matched segment-by-segment using path.Match semantics per
// segment, with "**" matching zero or more whole segments up to
// MaxScopeSegments.
func InScope(globs []string, relPath string) bool {
	target := splitSegments(relPath)
	for _, g := range globs {
		if matchGlob(globSegments(g), target) {
			return true
		}
	}
	return false
}

func splitSegments(p string) []string {
	p = strings.Trim(path.Clean(strings.TrimSpace(p)), "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}

// globSegments splits one scope glob entry into segments, expanding the
// bare-directory sugar: a trailing "/" (before cleaning strips it) means
// "this directory and everything under it", i.e. "src/" is shorthand for
// "src/**" (SPEC_FULL.md §D.3).
func globSegments(g string) []string {
	trimmed := strings.TrimSpace(g)
	isBareDir := trimmed != "" && strings.HasSuffix(trimmed, "/") && trimmed != "/"
	segs := splitSegments(g)
	if isBareDir {
		segs = append(segs, "**")
	}
	return segs
}

// matchGlob matches a glob's segments against a target path's segments.
// "**" consumes any number of segments (bounded by MaxScopeSegments total
// target segments); every other segment is matched with path.Match.
func matchGlob(globSegs, targetSegs []string) bool {
	if len(targetSegs) > MaxScopeSegments {
		targetSegs = targetSegs[:MaxScopeSegments]
	}
	return matchFrom(globSegs, targetSegs)
}

func matchFrom(glob, target []string) bool {
	if len(glob) == 0 {
		return len(target) == 0
	}
	head := glob[0]
	if head == "**" {
		if len(glob) == 1 {
			return true
		}
		for i := 0; i <= len(target); i++ {
			if matchFrom(glob[1:], target[i:]) {
				return true
			}
		}
		return false
	}
	if len(target) == 0 {
		return false
	}
	ok, err := path.Match(head, target[0])
	if err != nil || !ok {
		return false
	}
	return matchFrom(glob[1:], target[1:])
}
