// Package shamir splits and recovers the wallet master seed (§4.J) as
// M-of-N shards over GF(256), per spec.md §4.K.
//
// No repo in the example pack implements secret sharing directly, so this
// is conventional byte-wise Shamir arithmetic — the same irreducible
// polynomial (x^8+x^4+x^3+x+1, 0x11B) and table-free multiply/divide/pow
// every open-source Go Shamir implementation uses (e.g. HashiCorp Vault's
// shamir package). The optional per-shard password wrap reuses
// wallet.DeriveKEK/wallet.NewAEAD so shard files follow the same
// AEAD/KDF conventions as the keyfile they protect.
package shamir

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/robertrobercik2000-sudo/pqtrust/wallet"
)

// ErrInvalidThreshold is returned when m/n fall outside spec.md §4.K's
// 2 ≤ m ≤ n ≤ 8 bound.
var ErrInvalidThreshold = errors.New("shamir: m/n out of range (require 2 <= m <= n <= 8)")

// ErrNotEnoughShards is returned when Recover is given fewer than m shards.
var ErrNotEnoughShards = errors.New("shamir: not enough shards to recover")

// ErrWalletIDMismatch is returned when the supplied shards do not all
// share the same wallet_id.
var ErrWalletIDMismatch = errors.New("shamir: shard wallet_id mismatch")

// ErrDuplicateIndex is returned when two supplied shards carry the same
// index.
var ErrDuplicateIndex = errors.New("shamir: duplicate shard index")

// ErrShardCorrupt covers malformed or tampered shard payloads, including
// AEAD verification failure on a password-wrapped shard.
var ErrShardCorrupt = errors.New("shamir: shard corrupt or wrong password")

const seedSize = 32

// Shard is spec.md's Shard record: an M-of-N share of a 32-byte master
// seed, optionally wrapped in AEAD under a per-shard password.
type Shard struct {
	M        uint8
	N        uint8
	Index    uint8 // 1..N, the GF(256) evaluation point x=Index
	WalletID uuid.UUID
	Payload  []byte // 32 raw share bytes, or an AEAD-sealed wrapper

	Wrapped bool
	Salt    [16]byte
	Nonce   []byte
}

// Split partitions seed into n shards requiring any m to reconstruct.
func Split(seed [32]byte, walletID uuid.UUID, m, n int) ([]Shard, error) {
	if m < 2 || n < m || n > 8 {
		return nil, ErrInvalidThreshold
	}

	coeffs := make([][]byte, seedSize)
	for i := 0; i < seedSize; i++ {
		c := make([]byte, m-1)
		if _, err := rand.Read(c); err != nil {
			return nil, fmt.Errorf("shamir: generate coefficients: %w", err)
		}
		coeffs[i] = c
	}

	shards := make([]Shard, n)
	for idx := 1; idx <= n; idx++ {
		payload := make([]byte, seedSize)
		x := byte(idx)
		for i := 0; i < seedSize; i++ {
			payload[i] = evalPoly(seed[i], coeffs[i], x)
		}
		shards[idx-1] = Shard{
			M:        uint8(m),
			N:        uint8(n),
			Index:    byte(idx),
			WalletID: walletID,
			Payload:  payload,
		}
	}
	return shards, nil
}

// evalPoly evaluates f(x) = secret + c[0]*x + c[1]*x^2 + ... over GF(256).
func evalPoly(secret byte, coeffs []byte, x byte) byte {
	result := secret
	xPow := byte(1)
	for _, c := range coeffs {
		xPow = gfMul(xPow, x)
		result ^= gfMul(c, xPow)
	}
	return result
}

// Recover reconstructs the master seed from m or more shards sharing the
// same wallet_id, via Lagrange interpolation at x=0.
func Recover(shards []Shard) ([32]byte, error) {
	var seed [32]byte
	if len(shards) == 0 {
		return seed, ErrNotEnoughShards
	}

	walletID := shards[0].WalletID
	m := int(shards[0].M)
	seen := make(map[byte]bool, len(shards))
	for _, s := range shards {
		if s.WalletID != walletID {
			return seed, ErrWalletIDMismatch
		}
		if seen[s.Index] {
			return seed, ErrDuplicateIndex
		}
		seen[s.Index] = true
		if len(s.Payload) != seedSize {
			return seed, ErrShardCorrupt
		}
	}
	if len(shards) < m {
		return seed, ErrNotEnoughShards
	}
	use := shards[:m]

	for i := 0; i < seedSize; i++ {
		points := make([]byte, m)
		ys := make([]byte, m)
		for j, s := range use {
			points[j] = s.Index
			ys[j] = s.Payload[i]
		}
		seed[i] = lagrangeInterpolateZero(points, ys)
	}
	return seed, nil
}

// lagrangeInterpolateZero evaluates the unique degree-(len(xs)-1)
// polynomial through (xs[i], ys[i]) at x=0.
func lagrangeInterpolateZero(xs, ys []byte) byte {
	var result byte
	for i := range xs {
		num := byte(1)
		den := byte(1)
		for j := range xs {
			if i == j {
				continue
			}
			num = gfMul(num, xs[j])
			den = gfMul(den, xs[i]^xs[j])
		}
		term := gfMul(ys[i], gfDiv(num, den))
		result ^= term
	}
	return result
}

// gfMul multiplies two elements of GF(2^8) under the AES/Rijndael
// reduction polynomial x^8+x^4+x^3+x+1 (0x11B).
func gfMul(a, b byte) byte {
	var p byte
	for i := 0; i < 8 && a != 0 && b != 0; i++ {
		if b&1 != 0 {
			p ^= a
		}
		hi := a & 0x80
		a <<= 1
		if hi != 0 {
			a ^= 0x1B
		}
		b >>= 1
	}
	return p
}

// gfPow computes a^n in GF(2^8) via repeated squaring.
func gfPow(a byte, n int) byte {
	result := byte(1)
	base := a
	for n > 0 {
		if n&1 != 0 {
			result = gfMul(result, base)
		}
		base = gfMul(base, base)
		n >>= 1
	}
	return result
}

// gfDiv computes a/b in GF(2^8); every nonzero element has order 255, so
// the inverse of b is b^254.
func gfDiv(a, b byte) byte {
	if b == 0 {
		panic("shamir: division by zero in GF(256)")
	}
	if a == 0 {
		return 0
	}
	return gfMul(a, gfPow(b, 254))
}

// Wrap seals shard.Payload under password using the wallet package's
// Argon2id KEK derivation and AEAD, so a recovered shard file requires
// both physical possession and a per-shard password.
func Wrap(s *Shard, password []byte, alg wallet.AEADAlg) error {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return fmt.Errorf("shamir: generate salt: %w", err)
	}
	kdf := wallet.KDFParams{
		MemoryKiB: wallet.DefaultArgonMemoryKiB,
		Time:      wallet.DefaultArgonTime,
		Threads:   wallet.DefaultArgonThreads,
		Salt:      salt,
	}
	kek := wallet.DeriveKEK(password, nil, kdf)
	aead, err := wallet.NewAEAD(alg, kek)
	if err != nil {
		return fmt.Errorf("shamir: init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("shamir: generate nonce: %w", err)
	}
	aad := shardAAD(s)
	s.Payload = aead.Seal(nil, nonce, s.Payload, aad)
	s.Wrapped = true
	s.Salt = salt
	s.Nonce = nonce
	return nil
}

// Unwrap reverses Wrap, returning a shard with Payload replaced by the
// recovered 32-byte share.
func Unwrap(s Shard, password []byte, alg wallet.AEADAlg) (Shard, error) {
	if !s.Wrapped {
		return s, nil
	}
	kdf := wallet.KDFParams{
		MemoryKiB: wallet.DefaultArgonMemoryKiB,
		Time:      wallet.DefaultArgonTime,
		Threads:   wallet.DefaultArgonThreads,
		Salt:      s.Salt,
	}
	kek := wallet.DeriveKEK(password, nil, kdf)
	aead, err := wallet.NewAEAD(alg, kek)
	if err != nil {
		return Shard{}, ErrShardCorrupt
	}
	aad := shardAAD(&s)
	plaintext, err := aead.Open(nil, s.Nonce, s.Payload, aad)
	if err != nil {
		return Shard{}, ErrShardCorrupt
	}
	out := s
	out.Payload = plaintext
	out.Wrapped = false
	return out, nil
}

func shardAAD(s *Shard) []byte {
	id, _ := s.WalletID.MarshalBinary()
	aad := make([]byte, 0, len(id)+3)
	aad = append(aad, s.M, s.N, s.Index)
	aad = append(aad, id...)
	return aad
}

// Encode serializes s to its self-describing on-disk record: m, n,
// index, wallet_id, wrapped flag, salt, length-prefixed nonce, and
// length-prefixed payload. Mismatched wallet_id is checked at Recover
// time, not here.
func Encode(s Shard) []byte {
	id, _ := s.WalletID.MarshalBinary()
	buf := make([]byte, 0, 3+16+1+16+4+len(s.Nonce)+4+len(s.Payload))
	buf = append(buf, s.M, s.N, s.Index)
	buf = append(buf, id...)
	if s.Wrapped {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, s.Salt[:]...)
	buf = append(buf, le32(uint32(len(s.Nonce)))...)
	buf = append(buf, s.Nonce...)
	buf = append(buf, le32(uint32(len(s.Payload)))...)
	buf = append(buf, s.Payload...)
	return buf
}

// Decode reverses Encode.
func Decode(raw []byte) (Shard, error) {
	const fixedLen = 3 + 16 + 1 + 16
	if len(raw) < fixedLen+4 {
		return Shard{}, ErrShardCorrupt
	}
	var s Shard
	pos := 0
	s.M, s.N, s.Index = raw[0], raw[1], raw[2]
	pos = 3
	if err := s.WalletID.UnmarshalBinary(raw[pos : pos+16]); err != nil {
		return Shard{}, ErrShardCorrupt
	}
	pos += 16
	s.Wrapped = raw[pos] == 1
	pos++
	copy(s.Salt[:], raw[pos:pos+16])
	pos += 16

	if pos+4 > len(raw) {
		return Shard{}, ErrShardCorrupt
	}
	nonceLen := int(leUint32(raw[pos:]))
	pos += 4
	if pos+nonceLen > len(raw) {
		return Shard{}, ErrShardCorrupt
	}
	s.Nonce = raw[pos : pos+nonceLen]
	pos += nonceLen

	if pos+4 > len(raw) {
		return Shard{}, ErrShardCorrupt
	}
	payloadLen := int(leUint32(raw[pos:]))
	pos += 4
	if pos+payloadLen > len(raw) {
		return Shard{}, ErrShardCorrupt
	}
	s.Payload = raw[pos : pos+payloadLen]
	return s, nil
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
