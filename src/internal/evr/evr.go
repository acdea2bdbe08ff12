// Package evr compares RPM-style epoch:version-release strings, the `evr`
// values spec.md §4.5 threads through depglob/limitjobs/limitjobs_arch and
// the transaction classifier's upgrade/downgrade decision (spec.md §4.7
// step 2). The comparison itself ("the checksum primitives... are out of
// scope" sibling concern for version ordering) is not named as an external
// collaborator by spec.md §1, so it is implemented here rather than
// delegated to the solver.
package evr

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// SplitNameEVR breaks a "name-ver-rel" or "name-ver" string on its last
// hyphen, mirroring the greedy-from-the-right splits spec.md §4.5's plain
// form uses for name-evr and name-ver-rel.
func SplitNameEVR(s string) (name, evr string, ok bool) {
	i := strings.LastIndex(s, "-")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// SplitNameVerRel splits on the two trailing hyphens, producing "ver-rel"
// as the evr half.
func SplitNameVerRel(s string) (name, evr string, ok bool) {
	i := strings.LastIndex(s, "-")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	j := strings.LastIndex(s[:i], "-")
	if j <= 0 {
		return "", "", false
	}
	return s[:j], s[j+1:], true
}

// parsed is an exploded epoch:version-release triple.
type parsed struct {
	epoch   int
	version string
	release string
}

func parse(evrStr string) parsed {
	p := parsed{}
	rest := evrStr
	if idx := strings.Index(rest, ":"); idx >= 0 {
		if n, err := strconv.Atoi(rest[:idx]); err == nil {
			p.epoch = n
		}
		rest = rest[idx+1:]
	}
	if idx := strings.LastIndex(rest, "-"); idx >= 0 {
		p.version = rest[:idx]
		p.release = rest[idx+1:]
	} else {
		p.version = rest
	}
	return p
}

// Compare orders two epoch:version-release strings. Epoch dominates; then
// version; then release. Version/release segments are compared first via
// semver when both sides parse cleanly (the common case for modern
// `major.minor.patch`-shaped packages), falling back to rpmvercmp-style
// segment comparison for the RPM tilde/alnum-run versions semver rejects.
func Compare(a, b string) int {
	pa, pb := parse(a), parse(b)
	if pa.epoch != pb.epoch {
		return sign(pa.epoch - pb.epoch)
	}
	if c := compareSegment(pa.version, pb.version); c != 0 {
		return c
	}
	return compareSegment(pa.release, pb.release)
}

// Equal reports whether a and b denote the same epoch:version-release.
func Equal(a, b string) bool { return Compare(a, b) == 0 }

func compareSegment(a, b string) int {
	if a == b {
		return 0
	}
	if va, err := semver.NewVersion(a); err == nil {
		if vb, err := semver.NewVersion(b); err == nil {
			return va.Compare(vb)
		}
	}
	return rpmVerCmp(a, b)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// rpmVerCmp implements the classic RPM version-compare algorithm: split both
// strings into alternating alpha/digit/tilde runs and compare run by run,
// numeric runs numerically, alpha runs lexically, with a bare tilde segment
// sorting before anything (including the empty string).
func rpmVerCmp(a, b string) int {
	for len(a) > 0 || len(b) > 0 {
		for len(a) > 0 && !isAlnum(a[0]) && a[0] != '~' {
			a = a[1:]
		}
		for len(b) > 0 && !isAlnum(b[0]) && b[0] != '~' {
			b = b[1:]
		}

		if strings.HasPrefix(a, "~") || strings.HasPrefix(b, "~") {
			if !strings.HasPrefix(a, "~") {
				return 1
			}
			if !strings.HasPrefix(b, "~") {
				return -1
			}
			a, b = a[1:], b[1:]
			continue
		}

		if len(a) == 0 || len(b) == 0 {
			break
		}

		var segA, segB string
		if isDigit(a[0]) {
			segA, a = takeWhile(a, isDigit)
			segB, b = takeWhile(b, isDigit)
			if segB == "" {
				return 1
			}
			segA = strings.TrimLeft(segA, "0")
			segB = strings.TrimLeft(segB, "0")
			if len(segA) != len(segB) {
				return sign(len(segA) - len(segB))
			}
		} else {
			segA, a = takeWhile(a, isAlpha)
			segB, b = takeWhile(b, isAlpha)
			if segB == "" {
				return -1
			}
		}
		if segA != segB {
			if segA < segB {
				return -1
			}
			return 1
		}
	}
	return sign(len(a) - len(b))
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isAlnum(c byte) bool { return isDigit(c) || isAlpha(c) }

func takeWhile(s string, pred func(byte) bool) (taken, rest string) {
	i := 0
	for i < len(s) && pred(s[i]) {
		i++
	}
	return s[:i], s[i:]
}
