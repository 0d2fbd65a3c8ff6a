package sign

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyFile(t *testing.T) string {
	t.Helper()
	entity, err := openpgp.NewEntity("sbomkit test", "", "test@example.com", &packet.Config{
		Algorithm: packet.PubKeyAlgoEdDSA,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivate(w, nil))
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "key.asc")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestSignAndVerify(t *testing.T) {
	signer, err := LoadSigner(newKeyFile(t), nil)
	require.NoError(t, err)
	assert.Len(t, signer.Fingerprint(), 40)

	doc := []byte("SPDXVersion: SPDX-2.0\nDataLicense: CC0-1.0\n")
	sig, err := signer.SignDetached(doc)
	require.NoError(t, err)
	assert.Contains(t, string(sig), "-----BEGIN PGP SIGNATURE-----")

	pub, err := signer.PublicKey()
	require.NoError(t, err)
	keyring, err := ReadKeyring(pub)
	require.NoError(t, err)

	entity, err := Verify(keyring, doc, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.entity.PrimaryKey.Fingerprint, entity.PrimaryKey.Fingerprint)

	_, err = Verify(keyring, append(doc, '!'), sig)
	assert.Error(t, err)
}

func TestLoadSigner_Errors(t *testing.T) {
	_, err := LoadSigner(filepath.Join(t.TempDir(), "missing.asc"), nil)
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.asc")
	require.NoError(t, os.WriteFile(garbage, []byte("not a key"), 0o600))
	_, err = LoadSigner(garbage, nil)
	assert.Error(t, err)
}
