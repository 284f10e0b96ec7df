package pathoracle

// SimpleMatcher is a standalone compiled pattern set, exported for callers
// (the watch daemon's auto-add allowlist) that need glob matching without
// the manage/ignore/deny three-way structure of Oracle.
type SimpleMatcher struct {
	m *matcher
}

// NewSimpleMatcher compiles patterns with the same grammar Oracle uses, but
// without any directory-pattern normalization — callers pass patterns
// exactly as configured.
func NewSimpleMatcher(patterns []string) (*SimpleMatcher, error) {
	m, err := newMatcher(patterns)
	if err != nil {
		return nil, err
	}
	return &SimpleMatcher{m: m}, nil
}

// Matches reports whether path matches any compiled pattern. An empty
// pattern set never matches.
func (s *SimpleMatcher) Matches(path string) bool {
	if s == nil || s.m == nil {
		return false
	}
	return s.m.matches(path)
}
