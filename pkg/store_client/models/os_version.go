package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// OperatingSystemVersion is a major.minor.patch OS release, e.g. 17.4.1.
type OperatingSystemVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// ParseOSVersion accepts "17", "17.4" and "17.4.1".
func ParseOSVersion(raw string) (OperatingSystemVersion, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return OperatingSystemVersion{}, fmt.Errorf("empty os version")
	}
	parts := strings.Split(raw, ".")
	if len(parts) > 3 {
		return OperatingSystemVersion{}, fmt.Errorf("invalid os version %q", raw)
	}
	nums := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return OperatingSystemVersion{}, fmt.Errorf("invalid os version %q", raw)
		}
		nums[i] = n
	}
	return OperatingSystemVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v OperatingSystemVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v OperatingSystemVersion) semver() string {
	return "v" + v.String()
}

// Compare returns -1, 0 or +1.
func (v OperatingSystemVersion) Compare(other OperatingSystemVersion) int {
	return semver.Compare(v.semver(), other.semver())
}

// IsZero reports whether no OS version was configured.
func (v OperatingSystemVersion) IsZero() bool {
	return v == OperatingSystemVersion{}
}

var leadingVersion = regexp.MustCompile(`^\d+(\.\d+){0,2}`)

// CompareAppVersions orders two app version strings on their leading numeric
// part ("2.0b1" compares as "2.0"). ok is false when either side has no
// numeric prefix.
func CompareAppVersions(a, b string) (cmp int, ok bool) {
	ka, kb := appVersionKey(a), appVersionKey(b)
	if ka == "" || kb == "" {
		return 0, false
	}
	return semver.Compare(ka, kb), true
}

func appVersionKey(raw string) string {
	prefix := leadingVersion.FindString(strings.TrimPrefix(strings.TrimSpace(raw), "v"))
	if prefix == "" {
		return ""
	}
	parts := strings.Split(prefix, ".")
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ""
		}
		parts[i] = strconv.Itoa(n)
	}
	key := "v" + strings.Join(parts, ".")
	if !semver.IsValid(key) {
		return ""
	}
	return key
}
