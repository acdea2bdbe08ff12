package cookie

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"strings"
)

// Checksum is the declared-type checksum spec.md §4.2/§4.4 carries out of
// the repomd/susetags index (e.g. "sha256" over `primary.xml.gz`). It is
// the one named external-collaborator primitive spec.md §1 scopes out
// ("the checksum primitives... are out of scope"): Checksum only wraps
// crypto/sha256 and crypto/sha1 dispatch, it does not implement a digest
// algorithm itself.
type Checksum struct {
	Algo string // "sha256" (default) or "sha1"
	Hex  string
}

func (c Checksum) newHash() hash.Hash {
	switch strings.ToLower(c.Algo) {
	case "sha1":
		return sha1.New()
	default:
		return sha256.New()
	}
}

// Matches computes the checksum of r under c.Algo and compares it bytewise
// (case-insensitive hex) against c.Hex, per spec.md §4.2's "compute
// checksum of same type over the temp, compare bytewise".
func (c Checksum) Matches(r io.Reader) (bool, error) {
	h := c.newHash()
	if _, err := io.Copy(h, r); err != nil {
		return false, err
	}
	actual := hex.EncodeToString(h.Sum(nil))
	return strings.EqualFold(actual, c.Hex), nil
}

// Empty reports whether no checksum was declared (spec.md §4.2: "if exit=0
// and no checksum expected, return null" — this distinguishes that case
// from "no checksum provided" at the call site).
func (c Checksum) Empty() bool { return c.Hex == "" }
