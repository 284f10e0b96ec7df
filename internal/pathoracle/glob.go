package pathoracle

import (
	"regexp"
	"strings"
)

// globToRegex converts a gitignore-style glob pattern to an anchored regular
// expression string:
//
//   - "*" matches any run of characters except "/"
//   - "**" matches any run of characters including "/"
//   - "?" matches any single character except "/"
//   - "[abc]" matches any character in the set
func globToRegex(pattern string) string {
	result := escapeRegexChars(pattern)
	result = escapeUnclosedBrackets(result)

	// Globstar before single-star, via placeholders, so the literal "*"
	// replacement below doesn't re-touch text already converted.
	result = strings.ReplaceAll(result, "**/", "__GLOBSTAR_SLASH__")
	result = strings.ReplaceAll(result, "**", "__GLOBSTAR__")
	result = strings.ReplaceAll(result, "*", "[^/]*")
	result = strings.ReplaceAll(result, "?", "[^/]")
	result = strings.ReplaceAll(result, "__GLOBSTAR_SLASH__", "(.*/)?")
	result = strings.ReplaceAll(result, "__GLOBSTAR__", ".*")

	return "^" + result + "$"
}

// escapeRegexChars escapes regex metacharacters other than the glob
// wildcards * ? [ ] which are handled separately.
func escapeRegexChars(s string) string {
	specialChars := []string{".", "^", "$", "+", "{", "}", "(", ")", "|"}
	result := s
	for _, char := range specialChars {
		result = strings.ReplaceAll(result, char, "\\"+char)
	}
	return result
}

var unclosedBracketRegex = regexp.MustCompile(`\[([^\]]*?)$`)

// escapeUnclosedBrackets treats a bracket expression with no closing "]" as
// a literal "[", e.g. "[abc" -> "\[abc".
func escapeUnclosedBrackets(s string) string {
	return unclosedBracketRegex.ReplaceAllString(s, `\[$1`)
}

// hasGlobMeta reports whether s contains a glob metacharacter.
func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
