package license

import (
	"strings"

	"golang.org/x/mod/semver"
)

// CompareVersions orders two client version strings semantically, so that
// "1.9" sorts before "1.10". Returns -1, 0, or +1. Strings that are not
// parseable as semantic versions fall back to lexicographic ordering.
func CompareVersions(a, b string) int {
	va, vb := normalizeVersion(a), normalizeVersion(b)
	if semver.IsValid(va) && semver.IsValid(vb) {
		return semver.Compare(va, vb)
	}
	return strings.Compare(a, b)
}

// normalizeVersion adds the "v" prefix golang.org/x/mod/semver requires
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
