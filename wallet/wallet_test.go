package wallet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempKeyfilePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "wallet.key")
}

func TestCreateUnlockRoundTrip(t *testing.T) {
	path := tempKeyfilePath(t)
	password := []byte("correct horse battery staple")

	kf, identity, err := Create(path, password, AlgXChaCha20Poly1305, PepperNone, DefaultPadBlock)
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, kf.Version)

	_, identity2, err := Unlock(path, password)
	require.NoError(t, err)
	require.True(t, identity.SignPK.Equal(identity2.SignPK))
	require.Equal(t, identity.ScanPK, identity2.ScanPK)
	require.Equal(t, identity.ScanSK, identity2.ScanSK)
}

func TestCreateFailsIfPathExists(t *testing.T) {
	path := tempKeyfilePath(t)
	password := []byte("p")

	_, _, err := Create(path, password, AlgAESGCM, PepperNone, DefaultPadBlock)
	require.NoError(t, err)

	_, _, err = Create(path, password, AlgAESGCM, PepperNone, DefaultPadBlock)
	require.ErrorIs(t, err, ErrKeyfileExists)
}

func TestUnlockRejectsWrongPassword(t *testing.T) {
	path := tempKeyfilePath(t)
	_, _, err := Create(path, []byte("right-password"), AlgAESGCM, PepperNone, DefaultPadBlock)
	require.NoError(t, err)

	_, _, err = Unlock(path, []byte("wrong-password"))
	require.ErrorIs(t, err, ErrUnlockFailed)
}

func TestUnlockRejectsTamperedCiphertext(t *testing.T) {
	path := tempKeyfilePath(t)
	password := []byte("pw")
	_, _, err := Create(path, password, AlgAESGCM, PepperNone, DefaultPadBlock)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0600))

	_, _, err = Unlock(path, password)
	require.ErrorIs(t, err, ErrUnlockFailed)
}

func TestUnlockRejectsTamperedHeader(t *testing.T) {
	path := tempKeyfilePath(t)
	password := []byte("pw")
	_, _, err := Create(path, password, AlgAESGCM, PepperNone, DefaultPadBlock)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[0] = 0xFF // corrupt version byte inside the AAD-covered header
	require.NoError(t, os.WriteFile(path, raw, 0600))

	_, _, err = Unlock(path, password)
	require.Error(t, err)
}

func TestUnlockRejectsUnsupportedVersion(t *testing.T) {
	path := tempKeyfilePath(t)
	password := []byte("pw")
	kf, _, err := Create(path, password, AlgAESGCM, PepperNone, DefaultPadBlock)
	require.NoError(t, err)
	_ = kf

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[0] = 99
	require.NoError(t, os.WriteFile(path, raw, 0600))

	_, _, err = Unlock(path, password)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestCreateUnlockWithOSLocalPepper(t *testing.T) {
	cfgDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgDir)

	path := tempKeyfilePath(t)
	password := []byte("pepper-password")

	_, identity, err := Create(path, password, AlgXChaCha20Poly1305, PepperOSLocal, DefaultPadBlock)
	require.NoError(t, err)

	pepperFile := filepath.Join(cfgDir, "pqtrust", "pepper")
	info, err := os.Stat(pepperFile)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, identity2, err := Unlock(path, password)
	require.NoError(t, err)
	require.Equal(t, identity.ScanSK, identity2.ScanSK)
}

func TestUnlockWithOSLocalPepperFailsIfPepperMissing(t *testing.T) {
	cfgDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgDir)

	path := tempKeyfilePath(t)
	password := []byte("pw")
	_, _, err := Create(path, password, AlgAESGCM, PepperOSLocal, DefaultPadBlock)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(cfgDir, "pqtrust", "pepper")))

	// a fresh pepper is minted on next read-or-create, so the old
	// ciphertext (wrapped under the original pepper) now fails to open.
	_, _, err = Unlock(path, password)
	require.ErrorIs(t, err, ErrUnlockFailed)
}

func TestRekeyPreservesMasterSeedAndWalletID(t *testing.T) {
	path := tempKeyfilePath(t)
	oldPassword := []byte("old-password")
	newPassword := []byte("new-password")

	kf, identity, err := Create(path, oldPassword, AlgAESGCM, PepperNone, DefaultPadBlock)
	require.NoError(t, err)

	newKF, err := Rekey(path, oldPassword, newPassword)
	require.NoError(t, err)
	require.Equal(t, kf.WalletID, newKF.WalletID)
	require.NotEqual(t, kf.KDF.Salt, newKF.KDF.Salt)
	require.NotEqual(t, kf.Nonce, newKF.Nonce)

	_, _, err = Unlock(path, oldPassword)
	require.ErrorIs(t, err, ErrUnlockFailed)

	_, identity2, err := Unlock(path, newPassword)
	require.NoError(t, err)
	require.True(t, identity.SignPK.Equal(identity2.SignPK))
	require.Equal(t, identity.ScanPK, identity2.ScanPK)
}

func TestExportPublicRoundTrip(t *testing.T) {
	path := tempKeyfilePath(t)
	password := []byte("pw")
	_, identity, err := Create(path, password, AlgAESGCM, PepperNone, DefaultPadBlock)
	require.NoError(t, err)

	signPK, kemPK, scanPK, err := ExportPublic(identity)
	require.NoError(t, err)
	require.NotEmpty(t, signPK)
	require.NotEmpty(t, kemPK)
	require.Equal(t, identity.ScanPK, scanPK)
}

func TestExportPrivateReturnsMasterSeedAndRejectsWrongPassword(t *testing.T) {
	path := tempKeyfilePath(t)
	password := []byte("pw")
	_, _, err := Create(path, password, AlgAESGCM, PepperNone, DefaultPadBlock)
	require.NoError(t, err)

	seed, err := ExportPrivate(path, password)
	require.NoError(t, err)
	require.NotEqual(t, [32]byte{}, seed)

	identityFromSeed, err := DeriveIdentity(seed)
	require.NoError(t, err)
	_, _, _, err = ExportPublic(identityFromSeed)
	require.NoError(t, err)

	_, err = ExportPrivate(path, []byte("wrong"))
	require.ErrorIs(t, err, ErrUnlockFailed)
}

func TestDeriveIdentityIsDeterministic(t *testing.T) {
	var seed [32]byte
	for i := range seed {
		seed[i] = byte(i)
	}

	a, err := DeriveIdentity(seed)
	require.NoError(t, err)
	b, err := DeriveIdentity(seed)
	require.NoError(t, err)

	require.True(t, a.SignPK.Equal(b.SignPK))
	require.Equal(t, a.ScanPK, b.ScanPK)
	require.Equal(t, a.ScanSK, b.ScanSK)

	signA, _, _, err := ExportPublic(a)
	require.NoError(t, err)
	signB, _, _, err := ExportPublic(b)
	require.NoError(t, err)
	require.Equal(t, signA, signB)
}

func TestDeriveIdentityDiffersAcrossSeeds(t *testing.T) {
	var seedA, seedB [32]byte
	seedB[0] = 1

	a, err := DeriveIdentity(seedA)
	require.NoError(t, err)
	b, err := DeriveIdentity(seedB)
	require.NoError(t, err)

	require.NotEqual(t, a.ScanPK, b.ScanPK)
	require.False(t, a.SignPK.Equal(b.SignPK))
}

func TestPadUnpadRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("x"),
		make([]byte, 1024),
		make([]byte, 1023),
		make([]byte, 1025),
	}
	for _, data := range cases {
		padded := padPKCS(data, DefaultPadBlock)
		require.Equal(t, 0, len(padded)%DefaultPadBlock)
		unpadded, err := unpadPKCS(padded)
		require.NoError(t, err)
		require.Equal(t, data, unpadded)
	}
}

func TestUnpadRejectsCorruptPadding(t *testing.T) {
	original := []byte("hello")
	padded := padPKCS(original, DefaultPadBlock)
	padded[len(original)] = 0x00 // clobber the 0x80 terminator
	_, err := unpadPKCS(padded)
	require.Error(t, err)
}
