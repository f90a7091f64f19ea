// Package semver compares dotted version strings for the operator CLI's
// update-check path.
package semver

import (
	goversion "github.com/coreos/go-semver/semver"
)

// IsNewer reports whether latest is a strictly newer semver version
// than current. Either string failing to parse as major.minor.patch
// counts as "not newer" rather than panicking — an update check should
// never crash the CLI over a malformed version string.
func IsNewer(latest, current string) bool {
	l, err := goversion.NewVersion(latest)
	if err != nil {
		return false
	}
	c, err := goversion.NewVersion(current)
	if err != nil {
		return false
	}
	return c.LessThan(*l)
}
