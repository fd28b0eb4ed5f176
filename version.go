package upgrademgr

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	imageSuffixRe     = regexp.MustCompile(`(?i)\.(bin|spa|pkg)$`)
	versionRe         = regexp.MustCompile(`(\d+(?:\.\d+)+)`)
	filenameVersionRe = regexp.MustCompile(`(?:k9\.|universalk9\.)?(\d+\.\d+\.\d+[a-z]?)`)
)

// ParseVersion extracts the dotted numeric segments from a version string.
// Handles forms like "17.03.02", "17.3.2" and "16.12.05a"; trailing image
// suffixes are stripped first. Returns nil when no version pattern is found.
func ParseVersion(version string) []int {
	clean := imageSuffixRe.ReplaceAllString(version, "")
	m := versionRe.FindStringSubmatch(clean)
	if m == nil {
		return nil
	}
	parts := strings.Split(m[1], ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}

// CompareVersions orders two parsed versions segment-wise, padding the
// shorter one with zeros. Returns -1, 0 or 1.
func CompareVersions(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// ExtractVersionFromFilename pulls the release string out of an image
// filename, e.g. "cat9k_iosxe.17.09.04a.SPA.bin" yields "17.09.04a".
func ExtractVersionFromFilename(filename string) string {
	clean := imageSuffixRe.ReplaceAllString(filename, "")
	m := filenameVersionRe.FindStringSubmatch(clean)
	if m == nil {
		return ""
	}
	return m[1]
}
