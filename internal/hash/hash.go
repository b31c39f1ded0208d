// Package hash provides the deterministic string hash used to derive
// stable feed and item identifiers from URLs. Storage keys depend on
// it, so stability across runs and platforms is a correctness
// requirement, not a performance nicety.
package hash

import (
	"strconv"
)

// Sum computes a 32-bit rolling hash of s and returns its absolute
// value in base-36. Non-cryptographic; collisions between distinct
// URLs are accepted as a low-probability risk.
func Sum(s string) string {
	var h int32
	for _, b := range []byte(s) {
		h = h*31 + int32(b)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}
