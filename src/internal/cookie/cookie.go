// Package cookie implements the 32-byte repository identity fingerprints
// described in spec.md §3 ("Cookie"): stat-cookies (fingerprinting the
// system RPM database file), content-cookies (fingerprinting an index
// stream such as repomd.xml), and extcookies (tying a primary cache to its
// extensions across rewrites).
//
// Cookies are raw byte buffers, never strings — spec.md §9 calls out that
// treating them as UTF-8 text is the kind of latent bug this rewrite must
// avoid.
package cookie

import (
	"crypto/sha256"
	"io"
	"os"
)

const Size = 32

// Cookie is an opaque 32-byte content fingerprint.
type Cookie [Size]byte

// IsZero reports whether c has never been set (the initial state of a
// repository record's cookie field, and the permanent state of @commandline,
// which spec.md §3 says "has no cookie (never cached)").
func (c Cookie) IsZero() bool {
	return c == Cookie{}
}

// Equal does a plain byte-for-byte comparison; cookie mismatches are an
// expected outcome per spec.md §7, never an error.
func (c Cookie) Equal(other Cookie) bool {
	return c == other
}

func fromSum(sum [sha256.Size]byte) Cookie {
	var c Cookie
	copy(c[:], sum[:])
	return c
}

// Stat computes the stat-cookie of path per spec.md §3: SHA-256 of the
// literal "1.1" followed by decimal device, inode, size, and mtime. It is
// used to fingerprint /var/lib/rpm/Packages for the @System repository.
func Stat(path string) (Cookie, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Cookie{}, err
	}
	return StatInfo(info)
}

// StatInfo computes the stat-cookie from an already-obtained os.FileInfo,
// letting callers that already stat'd the file (e.g. the refresh-decision
// check) avoid a second syscall. The device/inode components come from the
// platform-specific raw Sys() value; see cookie_unix.go / cookie_other.go.
func StatInfo(info os.FileInfo) (Cookie, error) {
	h := sha256.New()
	h.Write([]byte("1.1"))
	dev, ino := statDevIno(info)
	writeDecimal(h, dev)
	writeDecimal(h, ino)
	writeDecimal(h, uint64(info.Size()))
	writeDecimal(h, uint64(info.ModTime().Unix()))
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return fromSum(sum), nil
}

// Content computes the content-cookie of an index stream per spec.md §3:
// SHA-256 of the entire stream (e.g. repomd.xml or content).
func Content(r io.Reader) (Cookie, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Cookie{}, err
	}
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return fromSum(sum), nil
}

// Ext derives the extcookie shared by all extensions of a repository, per
// spec.md §3: the stat-cookie of the cache file at write time, XORed with
// the primary cookie, with the first byte coerced to 0x01 if the XOR would
// otherwise produce 0x00. Unlike the original implementation's in-place
// mutation of an (in that language) immutable byte string — spec.md §9
// calls this out as a latent bug — this always returns a new value.
func Ext(cacheFileStat Cookie, primary Cookie) Cookie {
	var out Cookie
	for i := range out {
		out[i] = cacheFileStat[i] ^ primary[i]
	}
	if out[0] == 0x00 {
		out[0] = 0x01
	}
	return out
}

func writeDecimal(w io.Writer, v uint64) {
	// decimal ASCII form, matching the reference implementation's str(int)
	var buf [20]byte
	i := len(buf)
	if v == 0 {
		i--
		buf[i] = '0'
	}
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	w.Write(buf[i:])
}
