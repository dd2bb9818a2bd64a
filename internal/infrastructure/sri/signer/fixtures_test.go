package signer_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Material de prueba compartido: generar una llave RSA de 2048 bits por test es
// lento, así que se genera una sola vez para todo el paquete.
var (
	fixtureOnce sync.Once
	fixtureKey  *rsa.PrivateKey
	fixtureCert *x509.Certificate
	fixtureErr  error
)

const testP12Password = "test-pass"

func testKeyAndCert(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	fixtureOnce.Do(func() {
		fixtureKey, fixtureErr = rsa.GenerateKey(rand.Reader, 2048)
		if fixtureErr != nil {
			return
		}
		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(123456789),
			Subject: pkix.Name{
				CommonName:   "EMPRESA DE PRUEBA S.A.",
				Organization: []string{"EMPRESA DE PRUEBA"},
				Country:      []string{"EC"},
			},
			NotBefore:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			NotAfter:    time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC),
			KeyUsage:    x509.KeyUsageDigitalSignature,
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		}
		var der []byte
		der, fixtureErr = x509.CreateCertificate(rand.Reader, tmpl, tmpl, &fixtureKey.PublicKey, fixtureKey)
		if fixtureErr != nil {
			return
		}
		fixtureCert, fixtureErr = x509.ParseCertificate(der)
	})
	require.NoError(t, fixtureErr, "generar material de prueba")
	return fixtureKey, fixtureCert
}

// testP12 arma un contenedor PKCS#12 con cifrado legado (el formato que
// entregan las autoridades certificadoras ecuatorianas).
func testP12(t *testing.T) []byte {
	t.Helper()
	key, cert := testKeyAndCert(t)
	data, err := pkcs12.LegacyDES.Encode(key, cert, nil, testP12Password)
	require.NoError(t, err, "codificar P12 de prueba")
	return data
}
