// Package pattern implements ordered include/exclude path rule sets with
// gitignore-style evaluation: every rule is checked in source order and the
// last rule that matches a path decides the outcome. Paths that match no
// rule are excluded.
//
// Patterns are written as absolute filesystem paths (so authors can copy
// real paths directly) and support '*' (single segment), '**' (any depth),
// '?' and bracket classes. A pattern that names a directory selects the
// whole subtree under it, and a pattern without any slash matches its name
// at any depth, both as gitignore defines. A pattern without any wildcard
// is "explicit": it names one exact path, and its ancestor directories are
// recorded in an always-visit set so directory-walk pruning cannot
// short-circuit it.
package pattern

import (
	"fmt"
	"path"
	"strings"

	"github.com/snapvault/snapvault/pkg/util"
)

// Rule is a single compiled pattern line.
type Rule struct {
	// Negated is true if the line was prefixed with '!' (an exclude rule).
	Negated bool
	// Raw is the pattern body without the '!' prefix, as written.
	Raw string
	// Explicit is true iff the body contains no wildcard metacharacter.
	Explicit bool

	segments []string
	// anchored is true if the body contains a slash; an unanchored rule
	// matches its single segment at any depth.
	anchored bool
}

// Set is an immutable, ordered sequence of rules plus the always-visit
// prefix set derived from explicit include rules.
type Set struct {
	rules []Rule

	// alwaysVisit holds the normalized (no leading slash) paths of every
	// explicit include pattern and each of its ancestor segments.
	alwaysVisit map[string]struct{}
}

// PatternError reports a malformed pattern at compile time.
type PatternError struct {
	Line    int
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q (line %d): %v", e.Pattern, e.Line, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// normalize strips the leading separator and converts to forward slashes.
func normalize(p string) string {
	return strings.TrimPrefix(util.NormalizePath(p), "/")
}

// isExplicit reports whether a pattern body contains no wildcard metacharacter.
func isExplicit(body string) bool {
	return !strings.ContainsAny(body, "*?[")
}

// validateSegment checks a single pattern segment for unbalanced bracket
// expressions so malformed patterns fail at compile time, not during a walk.
func validateSegment(seg string) error {
	for i := 0; i < len(seg); i++ {
		switch seg[i] {
		case '\\':
			i++ // skip the escaped character
		case '[':
			j := i + 1
			if j < len(seg) && (seg[j] == '^' || seg[j] == '!') {
				j++
			}
			// The first ']' directly after the opening is a literal.
			if j < len(seg) && seg[j] == ']' {
				j++
			}
			for j < len(seg) && seg[j] != ']' {
				if seg[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(seg) {
				return fmt.Errorf("unbalanced bracket expression")
			}
			i = j
		}
	}
	return nil
}

// Compile parses pattern lines into a Set. Blank lines and lines starting
// with '#' are ignored; a '!' prefix marks an exclude rule. Source order is
// preserved.
func Compile(lines []string) (*Set, error) {
	set := &Set{
		alwaysVisit: make(map[string]struct{}),
	}

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		negated := strings.HasPrefix(line, "!")
		body := strings.TrimPrefix(line, "!")
		if body == "" {
			continue
		}

		segments := strings.Split(normalize(body), "/")
		for _, seg := range segments {
			if err := validateSegment(seg); err != nil {
				return nil, &PatternError{Line: i + 1, Pattern: line, Err: err}
			}
		}

		rule := Rule{
			Negated:  negated,
			Raw:      body,
			Explicit: isExplicit(body),
			segments: segments,
			anchored: strings.Contains(body, "/"),
		}
		set.rules = append(set.rules, rule)

		if rule.Explicit && !rule.Negated {
			rel := normalize(body)
			set.alwaysVisit[rel] = struct{}{}
			parts := strings.Split(rel, "/")
			for j := 1; j < len(parts); j++ {
				set.alwaysVisit[strings.Join(parts[:j], "/")] = struct{}{}
			}
		}
	}

	return set, nil
}

// CompileSplit builds a Set from separate include and exclude arrays,
// includes first, mirroring how the arrays are persisted in metadata.
func CompileSplit(includes, excludes []string) (*Set, error) {
	lines := make([]string, 0, len(includes)+len(excludes))
	lines = append(lines, includes...)
	for _, p := range excludes {
		lines = append(lines, "!"+p)
	}
	return Compile(lines)
}

// ParseText splits free-form pattern text (one pattern per line, '#'
// comments allowed) into include and exclude arrays.
func ParseText(text string) (includes, excludes []string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "!") {
			excludes = append(excludes, line[1:])
		} else {
			includes = append(includes, line)
		}
	}
	return includes, excludes
}

// Rules returns the compiled rules in source order.
func (s *Set) Rules() []Rule { return s.rules }

// Empty reports whether the set contains no rules.
func (s *Set) Empty() bool { return len(s.rules) == 0 }

// Split returns the pattern bodies partitioned into include and exclude
// arrays, preserving relative order within each.
func (s *Set) Split() (includes, excludes []string) {
	for _, r := range s.rules {
		if r.Negated {
			excludes = append(excludes, r.Raw)
		} else {
			includes = append(includes, r.Raw)
		}
	}
	return includes, excludes
}

// Matches evaluates every rule in order against the candidate path and
// returns the outcome of the last rule that matched. It never errors:
// malformed patterns were rejected at compile time.
func (s *Set) Matches(p string) bool {
	pathSegs := strings.Split(normalize(p), "/")

	matched := false
	for _, r := range s.rules {
		if r.matches(pathSegs) {
			matched = !r.Negated
		}
	}
	return matched
}

// matches evaluates one rule against the path segments. An unanchored rule
// matches its name against every path component, so a bare file or
// directory name applies at any depth.
func (r Rule) matches(pathSegs []string) bool {
	if !r.anchored {
		for _, seg := range pathSegs {
			if ok, err := path.Match(r.segments[0], seg); err == nil && ok {
				return true
			}
		}
		return false
	}
	return matchSegments(r.segments, pathSegs)
}

// AlwaysVisit reports whether the path is an explicit include pattern or an
// ancestor directory of one, and must therefore survive hidden-entry
// pruning during a walk.
func (s *Set) AlwaysVisit(p string) bool {
	_, ok := s.alwaysVisit[normalize(p)]
	return ok
}

// matchSegments matches pattern segments against path segments. '**' spans
// any number of segments; all other wildcards stay within one segment.
// A fully consumed pattern matches any remaining path segments: a pattern
// that names a directory selects everything under it.
func matchSegments(pat, pathSegs []string) bool {
	if len(pat) == 0 {
		return true
	}

	if pat[0] == "**" {
		if len(pat) == 1 {
			// A trailing '**' matches everything below, not the prefix itself.
			return len(pathSegs) >= 1
		}
		for i := 0; i <= len(pathSegs); i++ {
			if matchSegments(pat[1:], pathSegs[i:]) {
				return true
			}
		}
		return false
	}

	if len(pathSegs) == 0 {
		return false
	}

	ok, err := path.Match(pat[0], pathSegs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], pathSegs[1:])
}
