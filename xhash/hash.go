// Package xhash implements the domain-separated hash primitives shared by
// every consensus component: snapshot leaves and Merkle nodes, RANDAO
// commitments/reveals, and leader eligibility. A single construction backs
// all of them: cSHAKE256 keyed by a domain tag, which is the SHA-3-family
// "keyed-hash/MAC parameterized by tag and context" spec.md §4.B calls
// for, rather than ad-hoc concatenation into a plain hash. The PQ hint
// envelope's transcript/KDF/fingerprint tags are also defined here, but
// package hint derives that material with HKDF-SHA256, not with Sum.
package xhash

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Size is the width of every digest produced by this package.
const Size = 32

// Domain tags, verbatim from spec.md §4.B.
const (
	TagWeightLeaf     = "WGT.v1"
	TagMerkleNode     = "MRK.v1"
	TagRandaoCommit   = "RND.COMMIT"
	TagRandaoMix      = "RND.MIX"
	TagEligibility    = "ELIG"
	TagEligSeed       = "ELIG_SEED"
	TagHintTranscript = "QH.TR"
	TagHintAEADKey    = "QH.K"
	TagHintAEADNonce  = "QH.N"
	TagHintFinger     = "QH.FP"
	TagHintHybrid     = "QH.HYBRID"
)

// Sum hashes the concatenation of parts under the given domain tag using
// cSHAKE256 with the tag as the customization string, and writes Size
// bytes of output.
func Sum(tag string, parts ...[]byte) [Size]byte {
	h := sha3.NewCShake256(nil, []byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	var out [Size]byte
	h.Read(out[:])
	return out
}

// SumN hashes like Sum but returns n bytes of output instead of Size.
func SumN(tag string, n int, parts ...[]byte) []byte {
	h := sha3.NewCShake256(nil, []byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	out := make([]byte, n)
	h.Read(out)
	return out
}

// LE8 encodes a uint64 as 8 little-endian bytes, used for every LE8 field
// mentioned in spec.md (epoch, slot, stake_q, trust_q).
func LE8(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// Leaf computes H(WGT.v1 || who || stake_q(LE8) || trust_q(LE8)).
func Leaf(who [32]byte, stakeQ, trustQ uint64) [Size]byte {
	return Sum(TagWeightLeaf, who[:], LE8(stakeQ), LE8(trustQ))
}

// Node computes H(MRK.v1 || left || right).
func Node(left, right [Size]byte) [Size]byte {
	return Sum(TagMerkleNode, left[:], right[:])
}

// EmptyLeaves is the domain-separated digest used for the empty-snapshot
// Merkle root (spec.md §4.E step 6: "not zeroes").
func EmptyLeaves() [Size]byte {
	return Sum(TagMerkleNode + ".empty")
}

// Commit computes H(RND.COMMIT || epoch(LE8) || who || preimage).
func Commit(epoch uint64, who [32]byte, preimage [32]byte) [Size]byte {
	return Sum(TagRandaoCommit, LE8(epoch), who[:], preimage[:])
}

// Mix computes H(RND.MIX || prev || who || preimage), folding one reveal
// into the running beacon accumulator.
func Mix(prev [Size]byte, who [32]byte, preimage [32]byte) [Size]byte {
	return Sum(TagRandaoMix, prev[:], who[:], preimage[:])
}

// Eligibility computes H(ELIG || beacon || slot(LE8) || who), the 32-byte
// eligibility value y_v used by the probabilistic sortition variant.
func Eligibility(beacon [Size]byte, slot uint64, who [32]byte) [Size]byte {
	return Sum(TagEligibility, beacon[:], LE8(slot), who[:])
}

// EligSeed derives the per-slot seed used by value(e, slot):
// H(ELIG_SEED || base || slot(LE8)).
func EligSeed(base [Size]byte, slot uint64) [Size]byte {
	return Sum(TagEligSeed, base[:], LE8(slot))
}
