// Package pathoracle classifies home-relative paths as managed, ignored, or
// denied.
package pathoracle

import (
	"regexp"
	"strings"

	"github.com/hometree/hometree/internal/herror"
)

// StatDirFunc reports whether pattern, interpreted as a path relative to
// home, currently names a directory on disk. The oracle consults it at
// most once per configured pattern, during construction.
type StatDirFunc func(pattern string) bool

// matcher is a compiled set of glob patterns evaluated with OR semantics.
type matcher struct {
	regexes []*regexp.Regexp
}

func newMatcher(patterns []string) (*matcher, error) {
	m := &matcher{}
	for _, p := range patterns {
		re, err := regexp.Compile(globToRegex(p))
		if err != nil {
			return nil, herror.Wrap(herror.Configuration, err, "invalid glob pattern \""+p+"\"")
		}
		m.regexes = append(m.regexes, re)
	}
	return m, nil
}

func (m *matcher) matches(path string) bool {
	for _, re := range m.regexes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// normalizePattern applies the construction-time normalization rules:
//
//  1. Strip a leading "./".
//  2. A pattern containing glob metacharacters is preserved as-is.
//  3. A pattern already ending "/**" is preserved.
//  4. A pattern ending "/" becomes "{pattern}**".
//  5. A pattern that statDir reports as a directory becomes
//     "{pattern}/**"; otherwise it is preserved literally. When statDir is
//     nil, no directory inference happens at all — a bare pattern like
//     "config" is treated as a single file, never guessed at from its
//     lack of a dot-suffix.
func normalizePattern(pattern string, statDir StatDirFunc) string {
	pattern = strings.TrimPrefix(pattern, "./")

	if hasGlobMeta(pattern) {
		return pattern
	}

	if strings.HasSuffix(pattern, "/**") {
		return pattern
	}

	if strings.HasSuffix(pattern, "/") {
		return pattern + "**"
	}

	if statDir != nil && statDir(pattern) {
		return pattern + "/**"
	}

	return pattern
}

// Oracle decides, for any home-relative path, whether it falls under
// management.
type Oracle struct {
	paths  *matcher
	ignore *matcher
	deny   *matcher
}

// New builds an Oracle from the manage/ignore/deny pattern lists. statDir is
// consulted once per manage pattern to detect directory patterns; pass nil
// to skip filesystem consultation entirely (matching the "dot-less-suffix
// detection must not infer directory" requirement when the filesystem
// cannot or should not be touched, e.g. target-tree-only contexts).
func New(managePatterns, ignorePatterns, denyPatterns []string, statDir StatDirFunc) (*Oracle, error) {
	normalizedManage := make([]string, len(managePatterns))
	for i, p := range managePatterns {
		normalizedManage[i] = normalizePattern(p, statDir)
	}

	paths, err := newMatcher(normalizedManage)
	if err != nil {
		return nil, err
	}

	ignore, err := newMatcher(ignorePatterns)
	if err != nil {
		return nil, err
	}

	deny, err := newMatcher(denyPatterns)
	if err != nil {
		return nil, err
	}

	return &Oracle{paths: paths, ignore: ignore, deny: deny}, nil
}

// IsManaged reports whether r falls under management:
// paths.matches(r) ∧ ¬ignore.matches(r) ∧ ¬deny.matches(r).
func (o *Oracle) IsManaged(r string) bool {
	return o.paths.matches(r) && !o.ignore.matches(r) && !o.deny.matches(r)
}

// IsAllowed reports whether r is not excluded by ignore or deny, regardless
// of whether it is positively matched by the manage set.
func (o *Oracle) IsAllowed(r string) bool {
	return !o.ignore.matches(r) && !o.deny.matches(r)
}
