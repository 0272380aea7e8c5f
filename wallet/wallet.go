// Package wallet implements the versioned, atomically-written PQ wallet
// keyfile of spec.md §3/§4.J: a master seed, deterministically derived
// identity keys, wrapped under a password-derived key with an AEAD and an
// optional OS-local pepper.
//
// Grounded almost directly on luxfi-consensus/ringtail/keys.go's
// GenerateKeyPair/SaveKeyPair/LoadKeyPair/GetOrCreateKeyPair:
// os.MkdirAll(dir, 0700) + os.WriteFile(path, data, 0600) is precisely the
// "create pepper file on first use, read-only thereafter, OS-local
// directory, 0600 permissions" shape spec.md §4.J/§5 calls for, generalized
// from a bare keypair file to a full versioned AEAD keyfile with atomic
// rename.
//
// The AlgAESGCM option is conventional AES-256-GCM, not the
// nonce-misuse-resistant AES-GCM-SIV construction. Every keyfile write
// (Create, CreateFromSeed, Rekey) derives its key under a fresh random salt
// and seals once under a fresh random nonce, so no nonce is reused under
// one key.
package wallet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
	"crypto/sha256"
	"io"

	"github.com/robertrobercik2000-sudo/pqtrust/pqcrypto"
)

// ErrUnlockFailed is the single opaque failure for Unlock: wrong
// password, corrupt file, tampered header or ciphertext all collapse to
// this one error (spec.md §4.J: "a single 'unlock failed' error without
// revealing which step").
var ErrUnlockFailed = errors.New("wallet: unlock failed")

// ErrKeyfileExists is returned by Create when the target path already
// exists — the format requires creation to fail rather than overwrite.
var ErrKeyfileExists = errors.New("wallet: keyfile already exists")

// ErrUnsupportedVersion is returned for any keyfile version this build
// does not recognize; unknown versions are rejected outright, no
// best-effort parsing.
var ErrUnsupportedVersion = errors.New("wallet: unsupported keyfile version")

const (
	// CurrentVersion is the only keyfile version this package writes.
	CurrentVersion uint8 = 1

	// DefaultPadBlock is spec.md's default padding block size.
	DefaultPadBlock = 1024

	// Argon2id defaults from spec.md §4.J.
	DefaultArgonMemoryKiB = 512 * 1024
	DefaultArgonTime      = 3
	DefaultArgonThreads   = 1

	saltSize = 16
)

// AEADAlg selects the wallet's content-encryption algorithm.
type AEADAlg uint8

const (
	// AlgAESGCM implements spec.md's "AES-GCM-SIV" option as conventional
	// AES-256-GCM with a fresh random nonce per encryption (see the
	// package doc comment).
	AlgAESGCM AEADAlg = iota
	// AlgXChaCha20Poly1305 implements spec.md's XChaCha20-Poly1305 option.
	AlgXChaCha20Poly1305
)

// PepperMode selects whether a secondary OS-local secret is mixed into
// the key-encryption-key derivation.
type PepperMode uint8

const (
	PepperNone PepperMode = iota
	PepperOSLocal
)

// KDFParams holds the Argon2id tuning parameters persisted in the
// keyfile header and covered by AAD.
type KDFParams struct {
	MemoryKiB uint32
	Time      uint32
	Threads   uint8
	Salt      [saltSize]byte
}

// IdentityKeys is the private material derived from the master seed:
// lattice signature, lattice KEM, and a classical scan/spend pair.
type IdentityKeys struct {
	SignPK *pqcrypto.SignPublicKey
	SignSK *pqcrypto.SignPrivateKey
	KEMPK  pqcrypto.KEMPublicKey
	KEMSK  pqcrypto.KEMPrivateKey
	ScanPK [32]byte
	ScanSK [32]byte
}

// KeyFile is the in-memory form of the on-disk wallet container.
type KeyFile struct {
	Version    uint8
	WalletID   uuid.UUID
	KDF        KDFParams
	AEAD       AEADAlg
	Pepper     PepperMode
	PadBlock   uint32
	Nonce      []byte
	Ciphertext []byte
}

var (
	tagSeedSign = []byte("WALLET.SEED.SIGN")
	tagSeedKEM  = []byte("WALLET.SEED.KEM")
	tagSeedScan = []byte("WALLET.SEED.SCAN")
)

func deriveSeedMaterial(seed [32]byte, tag []byte, out []byte) {
	r := hkdf.New(sha256.New, seed[:], nil, tag)
	if _, err := io.ReadFull(r, out); err != nil {
		panic("wallet: hkdf read failed: " + err.Error())
	}
}

// seedStream returns an unbounded deterministic byte stream keyed by seed
// and tag, used to drive key-generation APIs that read a variable, a
// priori unknown amount of randomness (e.g. pqcrypto.LatticeKeyGenFrom).
func seedStream(seed [32]byte, tag []byte) io.Reader {
	h := sha3.NewCShake256(nil, tag)
	h.Write(seed[:])
	return h
}

// DeriveIdentity deterministically derives the lattice signature, lattice
// KEM and classical scan/spend keypairs from a 32-byte master seed, per
// spec.md §4.J step 2's "domain-separated derivation tags". The same seed
// always reproduces the same three keypairs.
func DeriveIdentity(seed [32]byte) (*IdentityKeys, error) {
	signPK, signSK, err := pqcrypto.LatticeKeyGenFrom(seedStream(seed, tagSeedSign))
	if err != nil {
		return nil, fmt.Errorf("wallet: derive sign identity: %w", err)
	}

	kemSeed := make([]byte, pqcrypto.KEMSeedSize())
	deriveSeedMaterial(seed, tagSeedKEM, kemSeed)
	kemPK, kemSK := pqcrypto.KEMKeyGenFromSeed(kemSeed)

	var scanSeed [32]byte
	deriveSeedMaterial(seed, tagSeedScan, scanSeed[:])
	scanKP, err := pqcrypto.DHKeyPairFromSeed(scanSeed)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive scan identity: %w", err)
	}

	return &IdentityKeys{
		SignPK: signPK,
		SignSK: signSK,
		KEMPK:  kemPK,
		KEMSK:  kemSK,
		ScanPK: scanKP.Public,
		ScanSK: scanKP.Private,
	}, nil
}

// padPKCS pads data to a multiple of blockSize using ISO/IEC 7816-4 padding
// (a single 0x80 terminator followed by zero bytes). A single trailing
// length byte, as plain PKCS#7 uses, only encodes pad lengths up to 255 and
// cannot represent the 1024-byte default block; this terminator scheme has
// no such ceiling.
func padPKCS(data []byte, blockSize int) []byte {
	out := make([]byte, len(data), len(data)+blockSize)
	copy(out, data)
	out = append(out, 0x80)
	for len(out)%blockSize != 0 {
		out = append(out, 0x00)
	}
	return out
}

func unpadPKCS(data []byte) ([]byte, error) {
	i := len(data) - 1
	for i >= 0 && data[i] == 0x00 {
		i--
	}
	if i < 0 || data[i] != 0x80 {
		return nil, errors.New("wallet: invalid padding")
	}
	return data[:i], nil
}

func pepperPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("wallet: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "pqtrust", "pepper"), nil
}

// readOrCreatePepper implements spec.md §4.J step 4 / §5's shared-resource
// policy: the pepper file is created exclusively on first use and read
// thereafter, tolerating concurrent readers.
func readOrCreatePepper() ([]byte, error) {
	path, err := pepperPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("wallet: create pepper dir: %w", err)
	}

	pepper := make([]byte, 32)
	if _, err := rand.Read(pepper); err != nil {
		return nil, fmt.Errorf("wallet: generate pepper: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err == nil {
		defer f.Close()
		if _, err := f.Write(pepper); err != nil {
			return nil, fmt.Errorf("wallet: write pepper: %w", err)
		}
		return pepper, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("wallet: create pepper: %w", err)
	}
	existing, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: read pepper: %w", err)
	}
	return existing, nil
}

// DeriveKEK runs Argon2id over password‖pepper under kdf's tuning
// parameters. Exported so the shamir package can wrap per-shard payloads
// under the same key-derivation convention as the wallet keyfile.
func DeriveKEK(password, pepper []byte, kdf KDFParams) []byte {
	return argon2.IDKey(append(append([]byte{}, password...), pepper...), kdf.Salt[:], kdf.Time, kdf.MemoryKiB, kdf.Threads, 32)
}

func headerAAD(kf *KeyFile) []byte {
	var buf bytes.Buffer
	buf.WriteByte(kf.Version)
	walletIDBytes, _ := kf.WalletID.MarshalBinary()
	buf.Write(walletIDBytes)
	binary.Write(&buf, binary.LittleEndian, kf.KDF.MemoryKiB)
	binary.Write(&buf, binary.LittleEndian, kf.KDF.Time)
	buf.WriteByte(kf.KDF.Threads)
	buf.Write(kf.KDF.Salt[:])
	buf.WriteByte(byte(kf.AEAD))
	buf.WriteByte(byte(kf.Pepper))
	binary.Write(&buf, binary.LittleEndian, kf.PadBlock)
	return buf.Bytes()
}

// NewAEAD constructs the cipher.AEAD for alg. Exported for the shamir
// package's optional per-shard password wrap.
func NewAEAD(alg AEADAlg, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AlgAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case AlgXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("wallet: unknown aead algorithm %d", alg)
	}
}

// Create generates a fresh master seed, derives identity keys, wraps the
// padded 32-byte master seed under password (plus pepper per mode), and
// atomically writes path. The derived keys are not stored; Unlock
// re-derives them from the seed. Fails if path already exists.
func Create(path string, password []byte, alg AEADAlg, pepperMode PepperMode, padBlock uint32) (*KeyFile, *IdentityKeys, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, nil, fmt.Errorf("wallet: generate seed: %w", err)
	}
	return CreateFromSeed(path, seed, password, alg, pepperMode, padBlock)
}

// CreateFromSeed is Create with an existing 32-byte master seed, used by
// shamir-based recovery (spec.md §4.K / scenario S6) to rebuild a wallet
// keyfile identical in its derived identity to the original.
func CreateFromSeed(path string, seed [32]byte, password []byte, alg AEADAlg, pepperMode PepperMode, padBlock uint32) (*KeyFile, *IdentityKeys, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, nil, ErrKeyfileExists
	} else if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("wallet: stat %s: %w", path, err)
	}

	identity, err := DeriveIdentity(seed)
	if err != nil {
		return nil, nil, err
	}

	if padBlock == 0 {
		padBlock = DefaultPadBlock
	}
	plaintext := padPKCS(seed[:], int(padBlock))

	var pepper []byte
	if pepperMode == PepperOSLocal {
		pepper, err = readOrCreatePepper()
		if err != nil {
			return nil, nil, err
		}
	}

	var salt [saltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, nil, fmt.Errorf("wallet: generate salt: %w", err)
	}
	kdf := KDFParams{
		MemoryKiB: DefaultArgonMemoryKiB,
		Time:      DefaultArgonTime,
		Threads:   DefaultArgonThreads,
		Salt:      salt,
	}

	kf := &KeyFile{
		Version:  CurrentVersion,
		WalletID: uuid.New(),
		KDF:      kdf,
		AEAD:     alg,
		Pepper:   pepperMode,
		PadBlock: padBlock,
	}

	kek := DeriveKEK(password, pepper, kdf)
	aead, err := NewAEAD(alg, kek)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("wallet: generate nonce: %w", err)
	}
	kf.Nonce = nonce
	aad := headerAAD(kf)
	kf.Ciphertext = aead.Seal(nil, nonce, plaintext, aad)

	if err := writeAtomic(path, encodeKeyFile(kf)); err != nil {
		return nil, nil, err
	}

	return kf, identity, nil
}

// Unlock reverses Create: it decrypts path under password, recovering the
// master seed and re-deriving the identity keys. A failure to read path is
// returned wrapped, and a keyfile whose version byte is not CurrentVersion
// returns ErrUnsupportedVersion; every other failure (decoding, pepper,
// decryption, padding, key derivation) returns ErrUnlockFailed alone
// (spec.md §4.J: "without revealing which step").
func Unlock(path string, password []byte) (*KeyFile, *IdentityKeys, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: read %s: %w", path, err)
	}
	kf, err := decodeKeyFile(raw)
	if err != nil {
		return nil, nil, ErrUnlockFailed
	}
	if kf.Version != CurrentVersion {
		return nil, nil, ErrUnsupportedVersion
	}

	var pepper []byte
	if kf.Pepper == PepperOSLocal {
		pepper, err = readOrCreatePepper()
		if err != nil {
			return nil, nil, ErrUnlockFailed
		}
	}

	kek := DeriveKEK(password, pepper, kf.KDF)
	aead, err := NewAEAD(kf.AEAD, kek)
	if err != nil {
		return nil, nil, ErrUnlockFailed
	}
	aad := headerAAD(kf)
	plaintext, err := aead.Open(nil, kf.Nonce, kf.Ciphertext, aad)
	if err != nil {
		return nil, nil, ErrUnlockFailed
	}

	unpadded, err := unpadPKCS(plaintext)
	if err != nil {
		return nil, nil, ErrUnlockFailed
	}
	if len(unpadded) != 32 {
		return nil, nil, ErrUnlockFailed
	}
	var seed [32]byte
	copy(seed[:], unpadded)

	identity, err := DeriveIdentity(seed)
	if err != nil {
		return nil, nil, ErrUnlockFailed
	}
	return kf, identity, nil
}

// Rekey unlocks path under oldPassword and replaces it, via writeAtomic's
// temp-file-and-rename, with a keyfile wrapped under newPassword with a
// fresh salt and nonce, preserving the master seed and wallet ID.
func Rekey(path string, oldPassword, newPassword []byte) (*KeyFile, error) {
	kf, identity, err := Unlock(path, oldPassword)
	if err != nil {
		return nil, err
	}
	_ = identity // identity is re-derivable; Rekey only needs the seed path below

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrUnlockFailed
	}
	oldKF, err := decodeKeyFile(raw)
	if err != nil {
		return nil, ErrUnlockFailed
	}

	var pepper []byte
	if oldKF.Pepper == PepperOSLocal {
		pepper, err = readOrCreatePepper()
		if err != nil {
			return nil, ErrUnlockFailed
		}
	}
	oldKEK := DeriveKEK(oldPassword, pepper, oldKF.KDF)
	oldAEAD, err := NewAEAD(oldKF.AEAD, oldKEK)
	if err != nil {
		return nil, ErrUnlockFailed
	}
	plaintext, err := oldAEAD.Open(nil, oldKF.Nonce, oldKF.Ciphertext, headerAAD(oldKF))
	if err != nil {
		return nil, ErrUnlockFailed
	}

	var salt [saltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, fmt.Errorf("wallet: generate salt: %w", err)
	}
	newKF := &KeyFile{
		Version:  CurrentVersion,
		WalletID: kf.WalletID,
		KDF:      KDFParams{MemoryKiB: DefaultArgonMemoryKiB, Time: DefaultArgonTime, Threads: DefaultArgonThreads, Salt: salt},
		AEAD:     oldKF.AEAD,
		Pepper:   oldKF.Pepper,
		PadBlock: oldKF.PadBlock,
	}
	newKEK := DeriveKEK(newPassword, pepper, newKF.KDF)
	newAEADCipher, err := NewAEAD(newKF.AEAD, newKEK)
	if err != nil {
		return nil, fmt.Errorf("wallet: init aead: %w", err)
	}
	nonce := make([]byte, newAEADCipher.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("wallet: generate nonce: %w", err)
	}
	newKF.Nonce = nonce
	newKF.Ciphertext = newAEADCipher.Seal(nil, nonce, plaintext, headerAAD(newKF))

	if err := writeAtomic(path, encodeKeyFile(newKF)); err != nil {
		return nil, err
	}
	return newKF, nil
}

// ExportPublic returns the safe-to-share public keys for identity.
func ExportPublic(identity *IdentityKeys) (signPK, kemPK []byte, scanPK [32]byte, err error) {
	signPKBytes, err := pqcrypto.MarshalSignPublicKey(identity.SignPK)
	if err != nil {
		return nil, nil, [32]byte{}, err
	}
	kemPKBytes, err := pqcrypto.MarshalKEMPublicKey(identity.KEMPK)
	if err != nil {
		return nil, nil, [32]byte{}, err
	}
	return signPKBytes, kemPKBytes, identity.ScanPK, nil
}

// ExportPrivate returns the raw 32-byte master seed, gated by the caller
// on an explicit out-path flag and a second password confirmation per
// spec.md §4.J's "Export" step — this function performs no such gating
// itself, it is the CLI layer's responsibility to require it.
func ExportPrivate(path string, password []byte) ([32]byte, error) {
	_, _, err := Unlock(path, password)
	if err != nil {
		return [32]byte{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, ErrUnlockFailed
	}
	kf, err := decodeKeyFile(raw)
	if err != nil {
		return [32]byte{}, ErrUnlockFailed
	}
	var pepper []byte
	if kf.Pepper == PepperOSLocal {
		pepper, err = readOrCreatePepper()
		if err != nil {
			return [32]byte{}, ErrUnlockFailed
		}
	}
	kek := DeriveKEK(password, pepper, kf.KDF)
	aead, err := NewAEAD(kf.AEAD, kek)
	if err != nil {
		return [32]byte{}, ErrUnlockFailed
	}
	plaintext, err := aead.Open(nil, kf.Nonce, kf.Ciphertext, headerAAD(kf))
	if err != nil {
		return [32]byte{}, ErrUnlockFailed
	}
	unpadded, err := unpadPKCS(plaintext)
	if err != nil || len(unpadded) != 32 {
		return [32]byte{}, ErrUnlockFailed
	}
	var seed [32]byte
	copy(seed[:], unpadded)
	return seed, nil
}

// writeAtomic implements spec.md §4.J step 7 / §5: write to a temp file
// in the same directory, fsync, rename over the target, fsync the
// containing directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".wallet-tmp-*")
	if err != nil {
		return fmt.Errorf("wallet: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("wallet: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("wallet: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("wallet: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("wallet: rename into place: %w", err)
	}
	dirHandle, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("wallet: open dir for fsync: %w", err)
	}
	defer dirHandle.Close()
	if err := dirHandle.Sync(); err != nil {
		return fmt.Errorf("wallet: fsync dir: %w", err)
	}
	return nil
}

func encodeKeyFile(kf *KeyFile) []byte {
	var buf bytes.Buffer
	buf.Write(headerAAD(kf))
	var nonceLen, ctLen [4]byte
	binary.LittleEndian.PutUint32(nonceLen[:], uint32(len(kf.Nonce)))
	binary.LittleEndian.PutUint32(ctLen[:], uint32(len(kf.Ciphertext)))
	buf.Write(nonceLen[:])
	buf.Write(kf.Nonce)
	buf.Write(ctLen[:])
	buf.Write(kf.Ciphertext)
	return buf.Bytes()
}

func decodeKeyFile(raw []byte) (*KeyFile, error) {
	// header: version(1) wallet_id(16) mem(4) time(4) threads(1) salt(16) aead(1) pepper(1) pad(4) = 48 bytes
	const headerLen = 1 + 16 + 4 + 4 + 1 + saltSize + 1 + 1 + 4
	if len(raw) < headerLen+8 {
		return nil, errors.New("wallet: truncated keyfile")
	}
	kf := &KeyFile{}
	pos := 0
	kf.Version = raw[pos]
	pos++
	if err := kf.WalletID.UnmarshalBinary(raw[pos : pos+16]); err != nil {
		return nil, fmt.Errorf("wallet: decode wallet id: %w", err)
	}
	pos += 16
	kf.KDF.MemoryKiB = binary.LittleEndian.Uint32(raw[pos:])
	pos += 4
	kf.KDF.Time = binary.LittleEndian.Uint32(raw[pos:])
	pos += 4
	kf.KDF.Threads = raw[pos]
	pos++
	copy(kf.KDF.Salt[:], raw[pos:pos+saltSize])
	pos += saltSize
	kf.AEAD = AEADAlg(raw[pos])
	pos++
	kf.Pepper = PepperMode(raw[pos])
	pos++
	kf.PadBlock = binary.LittleEndian.Uint32(raw[pos:])
	pos += 4

	if pos+4 > len(raw) {
		return nil, errors.New("wallet: truncated nonce length")
	}
	nonceLen := int(binary.LittleEndian.Uint32(raw[pos:]))
	pos += 4
	if pos+nonceLen > len(raw) {
		return nil, errors.New("wallet: truncated nonce")
	}
	kf.Nonce = raw[pos : pos+nonceLen]
	pos += nonceLen

	if pos+4 > len(raw) {
		return nil, errors.New("wallet: truncated ciphertext length")
	}
	ctLen := int(binary.LittleEndian.Uint32(raw[pos:]))
	pos += 4
	if pos+ctLen > len(raw) {
		return nil, errors.New("wallet: truncated ciphertext")
	}
	kf.Ciphertext = raw[pos : pos+ctLen]

	return kf, nil
}
