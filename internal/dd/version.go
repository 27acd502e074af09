package dd

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// CompareVersions orders DD version strings. Releases compare semantically;
// development builds such as "3.38.1-13-gabc1234" sort after their base release,
// ordered by commit count. Strings that are not versions at all ("develop") sort
// after every release.
func CompareVersions(a, b string) int {
	baseA, devA := splitDev(a)
	baseB, devB := splitDev(b)
	va, vb := "v"+baseA, "v"+baseB
	okA, okB := semver.IsValid(va), semver.IsValid(vb)
	switch {
	case !okA && !okB:
		return strings.Compare(a, b)
	case !okA:
		return 1
	case !okB:
		return -1
	}
	if c := semver.Compare(va, vb); c != 0 {
		return c
	}
	switch {
	case devA == devB:
		return 0
	case devA == "":
		return -1
	case devB == "":
		return 1
	}
	na, errA := strconv.Atoi(strings.SplitN(devA, "-", 2)[0])
	nb, errB := strconv.Atoi(strings.SplitN(devB, "-", 2)[0])
	if errA == nil && errB == nil && na != nb {
		if na < nb {
			return -1
		}
		return 1
	}
	return strings.Compare(devA, devB)
}

func splitDev(v string) (base, dev string) {
	base, dev, _ = strings.Cut(v, "-")
	return base, dev
}

// SortVersions sorts versions in place, oldest first.
func SortVersions(versions []string) {
	slices.SortFunc(versions, CompareVersions)
}

// IsDevVersion reports whether v is a development build rather than a release.
func IsDevVersion(v string) bool {
	base, dev := splitDev(v)
	return dev != "" || !semver.IsValid("v"+base)
}
