// Package semver provides parsing, comparison and ordering of package
// version strings.
//
// A version consists of a dot-separated numeric release part and an
// optional prerelease label after the first hyphen ("1.2.0-beta2").
// Release components compare numerically, a missing trailing component
// counts as zero ("1.0" equals "1.0.0"), a stable release outranks any
// prerelease of the same release, and two prereleases compare by ordinal
// label comparison.
package semver

import (
	"fmt"
	"sort"
	"strings"
)

// Order selects the direction of Sort. Descending ("newest first") is the
// default used by the registry.
type Order int

const (
	Descending Order = iota
	Ascending
)

// Version is a parsed version string. Release components are kept as
// strings with leading zeros stripped so arbitrarily long numbers compare
// without overflow.
type Version struct {
	Raw     string
	Release []string
	Pre     string
}

// Parse splits raw into release components and an optional prerelease
// label. Non-numeric release components are rejected.
func Parse(raw string) (Version, error) {
	if raw == "" {
		return Version{}, fmt.Errorf("empty version string")
	}

	release, pre, _ := strings.Cut(raw, "-")

	parts := strings.Split(release, ".")
	components := make([]string, len(parts))
	for i, p := range parts {
		if p == "" {
			return Version{}, fmt.Errorf("version %q: empty release component", raw)
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return Version{}, fmt.Errorf("version %q: non-numeric release component %q", raw, p)
			}
		}
		components[i] = strings.TrimLeft(p, "0")
		if components[i] == "" {
			components[i] = "0"
		}
	}

	return Version{Raw: raw, Release: components, Pre: pre}, nil
}

// Compare returns -1, 0 or 1 when v orders before, equal to or after o.
func (v Version) Compare(o Version) int {
	n := len(v.Release)
	if len(o.Release) > n {
		n = len(o.Release)
	}

	for i := 0; i < n; i++ {
		if c := compareComponent(component(v.Release, i), component(o.Release, i)); c != 0 {
			return c
		}
	}

	// Equal release parts: stable outranks any prerelease.
	switch {
	case v.Pre == "" && o.Pre == "":
		return 0
	case v.Pre == "":
		return 1
	case o.Pre == "":
		return -1
	}
	return strings.Compare(v.Pre, o.Pre)
}

func component(release []string, i int) string {
	if i >= len(release) {
		return "0"
	}
	return release[i]
}

// compareComponent compares two zero-trimmed numeric strings: a longer
// number is larger, equal lengths compare lexicographically.
func compareComponent(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// Compare orders two raw version strings. An unparseable version orders
// below every parseable one; two unparseable versions compare by their raw
// strings so the order stays total.
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)

	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	}
	return strings.Compare(a, b)
}

// Sort returns a new slice with versions ordered per order. The input is
// never mutated and the sort is stable.
func Sort(versions []string, order Order) []string {
	sorted := make([]string, len(versions))
	copy(sorted, versions)

	sort.SliceStable(sorted, func(i, j int) bool {
		c := Compare(sorted[i], sorted[j])
		if order == Ascending {
			return c < 0
		}
		return c > 0
	})

	return sorted
}

// Latest returns the highest version of the list, reporting false for an
// empty list.
func Latest(versions []string) (string, bool) {
	if len(versions) == 0 {
		return "", false
	}

	latest := versions[0]
	for _, v := range versions[1:] {
		if Compare(v, latest) > 0 {
			latest = v
		}
	}
	return latest, true
}
