package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	rendered := FormatAddress(raw)
	require.Contains(t, rendered, "drop1")

	parsed, err := ParseAddress(rendered)
	require.NoError(t, err)
	require.Equal(t, raw, parsed)

	parsed, err = ParseAddress(raw.Hex())
	require.NoError(t, err)
	require.Equal(t, raw, parsed)

	_, err = ParseAddress("0x1234")
	require.Error(t, err)
	_, err = ParseAddress("")
	require.Error(t, err)
}

func TestSignAndRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	digest := ethcrypto.Keccak256([]byte("payload"))

	sig, err := key.Sign(digest)
	require.NoError(t, err)
	signer, err := RecoverAddress(digest, sig)
	require.NoError(t, err)
	require.Equal(t, key.Address(), signer)

	_, err = RecoverAddress(digest, sig[:64])
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "operator.keystore")

	require.NoError(t, SaveToKeystore(path, key, "secret", WithLightKDF()))
	loaded, err := LoadFromKeystore(path, "secret")
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func keystoreScryptN(t *testing.T, path string) float64 {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Crypto struct {
			KDFParams map[string]interface{} `json:"kdfparams"`
		} `json:"crypto"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc.Crypto.KDFParams["n"].(float64)
}

func TestKeystoreUsesStandardScryptByDefault(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	dir := t.TempDir()

	standard := filepath.Join(dir, "standard.keystore")
	require.NoError(t, SaveToKeystore(standard, key, "secret"))
	require.Equal(t, float64(keystore.StandardScryptN), keystoreScryptN(t, standard))
	loaded, err := LoadFromKeystore(standard, "secret")
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())

	light := filepath.Join(dir, "light.keystore")
	require.NoError(t, SaveToKeystore(light, key, "secret", WithLightKDF()))
	require.Equal(t, float64(keystore.LightScryptN), keystoreScryptN(t, light))
}
