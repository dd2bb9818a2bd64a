// Package secretbox cifra y descifra las contraseñas de los certificados en
// reposo. La llave AES-256 se deriva una sola vez de la llave maestra del
// proceso con PBKDF2-SHA256 (100.000 iteraciones, salt fijo de la aplicación).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	nonceSizeGCM = 12  // nonce AES-GCM recomendado (96 bits)
	keyLength    = 32  // 32 bytes => AES-256
	iterations   = 100_000
	sep          = "|" // base64(nonce)|base64(ciphertext)

	// salt fijo de la aplicación: cambiarlo invalida todas las contraseñas cifradas.
	derivationSalt = "firmador-sri/certificados/v1"
)

// ErrDecryptionFailed blob corrupto, manipulado, o llave maestra rotada.
var ErrDecryptionFailed = errors.New("secretbox: no se pudo descifrar el blob")

// Codec cifra/descifra con una llave derivada de la llave maestra.
// Se construye una vez en el composition root y se inyecta; no hay estado global.
type Codec struct {
	aead cipher.AEAD
}

// New deriva la llave simétrica desde la llave maestra y construye el Codec.
func New(masterKey string) (*Codec, error) {
	masterKey = strings.TrimSpace(masterKey)
	if masterKey == "" {
		return nil, fmt.Errorf("secretbox: llave maestra vacía")
	}
	key := pbkdf2.Key([]byte(masterKey), []byte(derivationSalt), iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: cipher.NewGCM: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt cifra plainText y devuelve base64(nonce)|base64(ciphertext).
func (c *Codec) Encrypt(plainText string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce random: %w", err)
	}

	ct := c.aead.Seal(nil, nonce, []byte(plainText), nil)

	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt descifra un blob producido por Encrypt. Un blob corrupto o cifrado
// con otra llave maestra falla determinísticamente con ErrDecryptionFailed.
func (c *Codec) Decrypt(cipherText string) (string, error) {
	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: formato inválido, esperado base64(nonce)|base64(ciphertext)", ErrDecryptionFailed)
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: decode nonce: %v", ErrDecryptionFailed, err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("%w: nonce de %d bytes, esperado %d", ErrDecryptionFailed, len(nonce), nonceSizeGCM)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", ErrDecryptionFailed, err)
	}

	plain, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		// GCM autentica: cualquier byte alterado termina aquí, nunca en basura.
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
