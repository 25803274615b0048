// Package sip implements the low-level, protocol-agnostic pieces of the
// tinySIP core: URI decomposition (AddrSpec), route sets, generic header
// parameter lists, and the random-token generators RFC 3261 requires for
// branches, tags, and cnonces.
package sip

import "strings"

// TinySIPBranchPrefix is the magic cookie plus tinySIP's own discriminator,
// prepended to every Via branch this engine generates.
const TinySIPBranchPrefix = "z9hG4bKMZJ-"

// GenerateBranch returns a fresh Via branch value, regenerated per transaction.
func GenerateBranch() string {
	sb := &strings.Builder{}
	sb.Grow(len(TinySIPBranchPrefix) + 9)
	sb.WriteString(TinySIPBranchPrefix)
	RandStringBytesMask(sb, 9)
	return sb.String()
}

// GenerateTagN returns a random base62 tag/cnonce of n characters.
func GenerateTagN(n int) string {
	sb := &strings.Builder{}
	RandStringBytesMask(sb, n)
	return sb.String()
}
