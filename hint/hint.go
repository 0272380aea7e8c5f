// Package hint implements the one-shot post-quantum hint envelope of
// spec.md §3/§4.I: a hybrid lattice-KEM + classical-DH + lattice-signature
// authenticated, encrypted message tied to a named output commitment.
//
// Grounded almost directly on luxfi-consensus/qzmq/qzmq.go and
// qzmq/messages.go: hybrid classical+lattice key agreement, HKDF-derived
// AEAD key/nonce, length-prefixed wire messages. Adapted from a 1-RTT
// session handshake to a one-shot envelope — no round trip, the
// transcript is signed rather than negotiated.
package hint

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/robertrobercik2000-sudo/pqtrust/pqcrypto"
	"github.com/robertrobercik2000-sudo/pqtrust/xhash"
)

// ErrInvalidHint is the single opaque rejection spec.md §4.I/§7 requires:
// stale timestamp, wrong epoch, KEM decapsulation failure, signature
// failure, AEAD tag failure, or any tampered field all collapse to this
// one error so a scanner learns nothing about which check failed.
var ErrInvalidHint = errors.New("hint: invalid hint envelope")

// DefaultMaxSkewSecs is spec.md's default max_skew_secs.
const DefaultMaxSkewSecs = 7200

// Envelope is spec.md's HintEnvelope.
type Envelope struct {
	Version     uint8
	Epoch       uint64
	Timestamp   int64
	COut        [32]byte
	SenderSigPK []byte
	KEMCt       []byte
	EphDHPK     [32]byte
	SignedMsg   []byte
	Ciphertext  []byte
}

func kdf(secret, tag []byte, ctx []byte, out []byte) {
	r := hkdf.New(sha256.New, secret, nil, append(append([]byte{}, tag...), ctx...))
	if _, err := io.ReadFull(r, out); err != nil {
		panic("hint: hkdf read failed: " + err.Error())
	}
}

func le8(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func le8i(v int64) []byte {
	return le8(uint64(v))
}

func buildTranscript(epoch uint64, timestamp int64, cOut [32]byte, kemCt []byte, ephPK [32]byte, senderSigPK []byte) []byte {
	tr := make([]byte, 32)
	parts := [][]byte{le8(epoch), le8i(timestamp), cOut[:], kemCt, ephPK[:], senderSigPK}
	kdf(bytesJoin(parts), []byte(xhash.TagHintTranscript), nil, tr)
	return tr
}

func bytesJoin(parts [][]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Send builds an Envelope carrying payload, addressed to the recipient's
// KEM/DH public keys, authenticated under the sender's lattice signature
// keypair, per spec.md §4.I steps 1-8.
func Send(
	epoch uint64,
	timestamp int64,
	cOut [32]byte,
	recipientKEMPK pqcrypto.KEMPublicKey,
	recipientDHPK [32]byte,
	senderSigPK *pqcrypto.SignPublicKey,
	senderSigSK *pqcrypto.SignPrivateKey,
	payload []byte,
) (*Envelope, error) {
	ephKP, err := pqcrypto.DHKeyGen()
	if err != nil {
		return nil, err
	}
	dh, err := pqcrypto.DH(ephKP.Private, recipientDHPK)
	if err != nil {
		return nil, err
	}

	kemCt, ssKEM, err := pqcrypto.KEMEncapsulate(recipientKEMPK)
	if err != nil {
		return nil, err
	}

	ssH := make([]byte, 32)
	kdf(append(append([]byte{}, ssKEM...), dh...), []byte(xhash.TagHintHybrid), cOut[:], ssH)

	aeadKey := make([]byte, chacha20poly1305.KeySize)
	kdf(ssH, []byte(xhash.TagHintAEADKey), nil, aeadKey)
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	kdf(ssH, []byte(xhash.TagHintAEADNonce), nil, nonce)

	senderPKBytes, err := pqcrypto.MarshalSignPublicKey(senderSigPK)
	if err != nil {
		return nil, err
	}

	tr := buildTranscript(epoch, timestamp, cOut, kemCt, ephKP.Public, senderPKBytes)
	signedMsg := pqcrypto.LatticeSign(senderSigSK, tr)

	aead, err := chacha20poly1305.NewX(aeadKey)
	if err != nil {
		return nil, err
	}
	aad := append(append([]byte{}, tr...), senderPKBytes...)
	ciphertext := aead.Seal(nil, nonce, payload, aad)

	return &Envelope{
		Version:     1,
		Epoch:       epoch,
		Timestamp:   timestamp,
		COut:        cOut,
		SenderSigPK: senderPKBytes,
		KEMCt:       kemCt,
		EphDHPK:     ephKP.Public,
		SignedMsg:   signedMsg,
		Ciphertext:  ciphertext,
	}, nil
}

// Open verifies and decrypts env, returning the payload and the verified
// sender public key. Verification reads sender_sig_pk FROM THE ENVELOPE
// and never from any key the receiver already holds — authenticating
// against the receiver's own key instead would be a complete
// authentication bypass (a forger could simply re-sign with a key the
// receiver trusts for someone else).
func Open(
	env *Envelope,
	now int64,
	maxSkewSecs int64,
	currentEpoch, previousEpoch uint64,
	recipientKEMSK pqcrypto.KEMPrivateKey,
	recipientDHSK [32]byte,
) (payload []byte, senderSigPK *pqcrypto.SignPublicKey, err error) {
	skew := now - env.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkewSecs {
		return nil, nil, ErrInvalidHint
	}
	if env.Epoch != currentEpoch && env.Epoch != previousEpoch {
		return nil, nil, ErrInvalidHint
	}

	ssKEM, err := pqcrypto.KEMDecapsulate(recipientKEMSK, env.KEMCt)
	if err != nil {
		return nil, nil, ErrInvalidHint
	}
	dh, err := pqcrypto.DH(recipientDHSK, env.EphDHPK)
	if err != nil {
		return nil, nil, ErrInvalidHint
	}

	ssH := make([]byte, 32)
	kdf(append(append([]byte{}, ssKEM...), dh...), []byte(xhash.TagHintHybrid), env.COut[:], ssH)

	aeadKey := make([]byte, chacha20poly1305.KeySize)
	kdf(ssH, []byte(xhash.TagHintAEADKey), nil, aeadKey)
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	kdf(ssH, []byte(xhash.TagHintAEADNonce), nil, nonce)

	tr := buildTranscript(env.Epoch, env.Timestamp, env.COut, env.KEMCt, env.EphDHPK, env.SenderSigPK)

	pk, err := pqcrypto.UnmarshalSignPublicKey(env.SenderSigPK)
	if err != nil {
		return nil, nil, ErrInvalidHint
	}
	if !pqcrypto.LatticeVerify(pk, tr, env.SignedMsg) {
		return nil, nil, ErrInvalidHint
	}

	aead, err := chacha20poly1305.NewX(aeadKey)
	if err != nil {
		return nil, nil, ErrInvalidHint
	}
	aad := append(append([]byte{}, tr...), env.SenderSigPK...)
	plaintext, err := aead.Open(nil, nonce, env.Ciphertext, aad)
	if err != nil {
		return nil, nil, ErrInvalidHint
	}

	return plaintext, pk, nil
}

// Fingerprint16 computes fp16(envelope) = first 16 bytes of
// KDF(tr, tag=QH.FP), used by scanners to bloom-filter candidate hints
// before attempting a full Open.
func Fingerprint16(env *Envelope) [16]byte {
	tr := buildTranscript(env.Epoch, env.Timestamp, env.COut, env.KEMCt, env.EphDHPK, env.SenderSigPK)
	var fp [16]byte
	kdf(tr, []byte(xhash.TagHintFinger), nil, fp[:])
	return fp
}
