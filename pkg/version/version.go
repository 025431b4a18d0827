package version

import (
	"fmt"
	"strings"
)

// Latest is the placeholder used as upper bound of a sqVersions range that is
// still open.
const Latest = "LATEST"

// Truncate keeps the first three dot separated components of v. Shorter
// versions are returned unchanged, no padding is applied.
func Truncate(v string) string {
	split := strings.Split(v, ".")
	if len(split) > 3 {
		split = split[:3]
	}
	return strings.Join(split, ".")
}

// WildcardPatch replaces the last component of v with "*".
func WildcardPatch(v string) string {
	split := strings.Split(v, ".")
	split[len(split)-1] = "*"
	return strings.Join(split, ".")
}

func SQVersionsRange(minVersion, maxVersion string) string {
	if maxVersion == "" {
		maxVersion = Latest
	}
	return fmt.Sprintf("[%s,%s]", minVersion, maxVersion)
}
