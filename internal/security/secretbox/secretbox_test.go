package secretbox_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendosri/firmador-sri/internal/security/secretbox"
)

const testMasterKey = "llave-maestra-de-prueba-no-usar-en-produccion"

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	codec, err := secretbox.New(testMasterKey)
	require.NoError(t, err)

	plain := "contraseña-del-p12-ñ-áéíóú"
	blob, err := codec.Encrypt(plain)
	require.NoError(t, err)
	assert.NotContains(t, blob, plain, "el blob nunca contiene el texto plano")
	assert.Contains(t, blob, "|", "formato base64(nonce)|base64(ciphertext)")

	got, err := codec.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

// TestEncrypt_NonceDistinto cada cifrado usa un nonce fresco: el mismo texto
// plano produce blobs distintos.
func TestEncrypt_NonceDistinto(t *testing.T) {
	codec, err := secretbox.New(testMasterKey)
	require.NoError(t, err)

	b1, err := codec.Encrypt("secreto")
	require.NoError(t, err)
	b2, err := codec.Encrypt("secreto")
	require.NoError(t, err)
	assert.NotEqual(t, b1, b2)
}

func TestDecrypt_BlobManipulado(t *testing.T) {
	codec, err := secretbox.New(testMasterKey)
	require.NoError(t, err)

	blob, err := codec.Encrypt("secreto")
	require.NoError(t, err)

	// Alterar un byte del ciphertext: GCM autentica y debe rechazarlo.
	parts := strings.SplitN(blob, "|", 2)
	require.Len(t, parts, 2)
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	ct[0] ^= 0x01
	tampered := parts[0] + "|" + base64.StdEncoding.EncodeToString(ct)

	_, err = codec.Decrypt(tampered)
	assert.ErrorIs(t, err, secretbox.ErrDecryptionFailed)
}

// TestDecrypt_LlaveMaestraRotada un blob cifrado con otra llave maestra falla
// determinísticamente, nunca devuelve basura.
func TestDecrypt_LlaveMaestraRotada(t *testing.T) {
	codecA, err := secretbox.New(testMasterKey)
	require.NoError(t, err)
	codecB, err := secretbox.New("otra-llave-maestra")
	require.NoError(t, err)

	blob, err := codecA.Encrypt("secreto")
	require.NoError(t, err)

	_, err = codecB.Decrypt(blob)
	assert.ErrorIs(t, err, secretbox.ErrDecryptionFailed)
}

func TestDecrypt_FormatoInvalido(t *testing.T) {
	codec, err := secretbox.New(testMasterKey)
	require.NoError(t, err)

	for _, blob := range []string{
		"",
		"sin-separador",
		"uno|dos|tres",
		"!!!no-base64!!!|AAAA",
		"AAAA|!!!no-base64!!!",
		"AAAA|AAAA", // nonce de 3 bytes, no 12
	} {
		_, err := codec.Decrypt(blob)
		assert.ErrorIs(t, err, secretbox.ErrDecryptionFailed, "blob %q", blob)
	}
}

func TestNew_LlaveMaestraVacia(t *testing.T) {
	_, err := secretbox.New("")
	assert.Error(t, err)
	_, err = secretbox.New("   ")
	assert.Error(t, err)
}
