package watch

import (
	"strings"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/pathoracle"
	"github.com/hometree/hometree/internal/secrets"
)

// Kind is the watch event classification for a single changed path.
type Kind int

const (
	KindIgnore Kind = iota
	KindSecretPlaintext
	KindManaged
)

// ManagedDetail is populated when Kind is KindManaged.
type ManagedDetail struct {
	AutoAdd          bool
	IsAllowed        bool
	MatchesAllowlist bool
}

// Classified is the result of classifying one home-relative path.
type Classified struct {
	Kind    Kind
	Managed ManagedDetail
}

// IsTrackedFunc reports whether the revision backend already tracks path,
// used to decide whether a Managed event is a candidate for auto-add.
type IsTrackedFunc func(path string) bool

// Classify categorizes a single home-relative path for the watch loop:
//
//   - SecretPlaintext if r equals the plaintext path of some secret rule
//     (checked first, so a plaintext path forced into the ignore set by
//     config.Normalize is still correctly classified as a secret rather
//     than silently dropped).
//   - Ignore if r is a ciphertext sidecar, or not in the managed set.
//   - Managed{auto_add, is_allowed, matches_allowlist} otherwise.
func Classify(r string, oracle *pathoracle.Oracle, secretsMgr *secrets.Manager, wcfg config.WatchConfig,
	sidecarSuffix string, allowlist *pathoracle.SimpleMatcher, isTracked IsTrackedFunc,
) Classified {
	if secretsMgr != nil {
		if _, ok := secretsMgr.RuleForPlaintext(r); ok {
			return Classified{Kind: KindSecretPlaintext}
		}
	}

	if sidecarSuffix != "" && strings.HasSuffix(r, sidecarSuffix) {
		return Classified{Kind: KindIgnore}
	}

	if !oracle.IsManaged(r) {
		return Classified{Kind: KindIgnore}
	}

	autoAdd := wcfg.AutoAddNew && isTracked != nil && !isTracked(r)
	matchesAllowlist := allowlist.Matches(r)

	return Classified{
		Kind: KindManaged,
		Managed: ManagedDetail{
			AutoAdd:          autoAdd,
			IsAllowed:        oracle.IsAllowed(r),
			MatchesAllowlist: matchesAllowlist,
		},
	}
}
