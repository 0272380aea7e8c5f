// Package pqcrypto is a thin wrapper around the lattice signature, lattice
// KEM, and classical Diffie-Hellman primitives the hint envelope (§4.I)
// and wallet key store (§4.J) build on.
//
// Grounded on luxfi-consensus/ringtail/ringtail.go: a "stub that forwards
// to the actual implementation" package aliasing types and re-exporting
// functions from an external crypto module (`rt "github.com/luxfi/crypto/ringtail"`).
// We follow the identical shape but point it at github.com/cloudflare/circl,
// a real and fetchable post-quantum crypto library, instead of hand-rolling
// lattice arithmetic.
package pqcrypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/curve25519"
)

// ErrVerifyFailed is the opaque signature-verification failure, returned
// instead of any lower-level CIRCL error per spec.md §7's "opaque
// rejection" requirement for cryptographic failures.
var ErrVerifyFailed = errors.New("pqcrypto: signature verification failed")

// SignPublicKey / SignPrivateKey are the sender's long-lived lattice
// signature keypair (ML-DSA / Dilithium mode3).
type SignPublicKey = mode3.PublicKey
type SignPrivateKey = mode3.PrivateKey

// LatticeKeyGen generates a fresh lattice signature keypair.
func LatticeKeyGen() (*SignPublicKey, *SignPrivateKey, error) {
	return LatticeKeyGenFrom(rand.Reader)
}

// LatticeKeyGenFrom generates a lattice signature keypair from the given
// randomness source. Wallet identity derivation passes a deterministic
// keyed stream here instead of crypto/rand so the same master seed always
// reproduces the same keys (spec.md §4.J step 2).
func LatticeKeyGenFrom(src io.Reader) (*SignPublicKey, *SignPrivateKey, error) {
	pk, sk, err := mode3.GenerateKey(src)
	if err != nil {
		return nil, nil, fmt.Errorf("pqcrypto: lattice keygen: %w", err)
	}
	return pk, sk, nil
}

// LatticeSign produces a detached signature over msg.
func LatticeSign(sk *SignPrivateKey, msg []byte) []byte {
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(sk, msg, sig)
	return sig
}

// LatticeVerify reports whether sig is a valid signature over msg under
// pk. Callers MUST pass the signer's own public key — never the
// verifier's — see hint.Open's doc comment for the anti-spoofing
// requirement this backs.
func LatticeVerify(pk *SignPublicKey, msg, sig []byte) bool {
	return mode3.Verify(pk, msg, sig)
}

// MarshalSignPublicKey / UnmarshalSignPublicKey round-trip a signature
// public key to its wire form.
func MarshalSignPublicKey(pk *SignPublicKey) ([]byte, error) {
	return pk.MarshalBinary()
}

func UnmarshalSignPublicKey(b []byte) (*SignPublicKey, error) {
	pk := new(SignPublicKey)
	if err := pk.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("pqcrypto: unmarshal sign public key: %w", err)
	}
	return pk, nil
}

// kemScheme is the ML-KEM / Kyber768 instance used for all hybrid
// encapsulation in this module.
var kemScheme = kyber768.Scheme()

// KEMPublicKey / KEMPrivateKey are the recipient's long-lived lattice KEM
// keypair.
type KEMPublicKey = kem.PublicKey
type KEMPrivateKey = kem.PrivateKey

// KEMKeyGen generates a fresh lattice KEM keypair.
func KEMKeyGen() (KEMPublicKey, KEMPrivateKey, error) {
	pk, sk, err := kemScheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("pqcrypto: kem keygen: %w", err)
	}
	return pk, sk, nil
}

// KEMSeedSize is the seed length KEMKeyGenFromSeed requires.
func KEMSeedSize() int {
	return kemScheme.SeedSize()
}

// KEMKeyGenFromSeed deterministically derives a lattice KEM keypair from
// a fixed-length seed. Wallet identity derivation uses this (rather than
// KEMKeyGen's internal crypto/rand draw) so the same master seed always
// reproduces the same KEM keys (spec.md §4.J step 2).
func KEMKeyGenFromSeed(seed []byte) (KEMPublicKey, KEMPrivateKey) {
	return kemScheme.DeriveKeyPair(seed)
}

// KEMEncapsulate runs lattice KEM encapsulation against recipientPK,
// returning the ciphertext to send and the shared secret to derive keys
// from.
func KEMEncapsulate(recipientPK KEMPublicKey) (ciphertext, sharedSecret []byte, err error) {
	ct, ss, err := kemScheme.Encapsulate(recipientPK)
	if err != nil {
		return nil, nil, fmt.Errorf("pqcrypto: kem encapsulate: %w", err)
	}
	return ct, ss, nil
}

// KEMDecapsulate recovers the shared secret from ciphertext using sk.
func KEMDecapsulate(sk KEMPrivateKey, ciphertext []byte) ([]byte, error) {
	ss, err := kemScheme.Decapsulate(sk, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("pqcrypto: kem decapsulate: %w", err)
	}
	return ss, nil
}

// MarshalKEMPublicKey / UnmarshalKEMPublicKey round-trip a KEM public key.
func MarshalKEMPublicKey(pk KEMPublicKey) ([]byte, error) {
	return pk.MarshalBinary()
}

func UnmarshalKEMPublicKey(b []byte) (KEMPublicKey, error) {
	pk, err := kemScheme.UnmarshalBinaryPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("pqcrypto: unmarshal kem public key: %w", err)
	}
	return pk, nil
}

// DHKeyPair is a classical X25519 keypair, mirroring
// qzmq.KeyPair.X25519Private/Public.
type DHKeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// DHKeyGen generates an ephemeral X25519 keypair.
func DHKeyGen() (*DHKeyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("pqcrypto: dh keygen: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("pqcrypto: dh public key: %w", err)
	}
	kp := &DHKeyPair{Private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// DHKeyPairFromSeed deterministically derives an X25519 keypair from a
// 32-byte seed, used by wallet identity derivation for the classical
// scan/spend keypair.
func DHKeyPairFromSeed(seed [32]byte) (*DHKeyPair, error) {
	priv := seed
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("pqcrypto: dh public key: %w", err)
	}
	kp := &DHKeyPair{Private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// DH computes the X25519 shared secret between sk and peerPublic.
func DH(sk [32]byte, peerPublic [32]byte) ([]byte, error) {
	shared, err := curve25519.X25519(sk[:], peerPublic[:])
	if err != nil {
		return nil, fmt.Errorf("pqcrypto: dh: %w", err)
	}
	return shared, nil
}
