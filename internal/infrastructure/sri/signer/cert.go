// Carga de material de firma desde contenedores PKCS#12 (.p12/.pfx).
//
// Algunos emisores (Security Data) entregan contenedores con DOS llaves
// privadas: la de firma y la de cifrado. El decodificador estándar rechaza esos
// contenedores, así que existe una ruta alterna que enumera todos los bags y
// selecciona la llave cuya mitad pública coincide con el certificado hoja.

package signer

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	legacypkcs12 "golang.org/x/crypto/pkcs12"
	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/vendosri/firmador-sri/internal/domain/entity"
)

// Errores del cargador de contenedores, uno por causa distinguible.
var (
	ErrEmptyContainer     = errors.New("signer: contenedor P12 vacío")
	ErrWrongPassword      = errors.New("signer: contraseña del contenedor incorrecta")
	ErrMalformedContainer = errors.New("signer: contenedor P12 malformado")
	ErrMissingPrivateKey  = errors.New("signer: el contenedor no incluye llave privada RSA")
	ErrMissingCertificate = errors.New("signer: el contenedor no incluye certificado hoja")
)

// P12Loader implementa la carga de contenedores. No cachea ni hace I/O: recibe
// los bytes y devuelve el material.
type P12Loader struct{}

// NewP12Loader crea el cargador.
func NewP12Loader() *P12Loader {
	return &P12Loader{}
}

// Load extrae llave privada, certificado hoja y cadena desde un contenedor P12.
func (l *P12Loader) Load(data []byte, password string) (*entity.KeyMaterial, error) {
	if len(data) == 0 {
		return nil, ErrEmptyContainer
	}

	priv, cert, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, ErrWrongPassword
		}
		// Contenedores con múltiples llaves (firma + cifrado): ruta alterna.
		if mat, errMulti := loadMultiKey(data, password); errMulti == nil {
			return mat, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}

	if cert == nil {
		return nil, ErrMissingCertificate
	}
	rsaKey, ok := priv.(*rsa.PrivateKey)
	if !ok || rsaKey == nil {
		return nil, ErrMissingPrivateKey
	}

	return &entity.KeyMaterial{
		PrivateKey:  rsaKey,
		Certificate: cert,
		Chain:       chain,
	}, nil
}

// loadMultiKey enumera todos los bags del contenedor vía PEM y elige la llave
// de FIRMA: la que corresponde a la mitad pública del certificado hoja.
func loadMultiKey(data []byte, password string) (*entity.KeyMaterial, error) {
	blocks, err := legacypkcs12.ToPEM(data, password)
	if err != nil {
		if errors.Is(err, legacypkcs12.ErrIncorrectPassword) {
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}

	var keys []*rsa.PrivateKey
	var certs []*x509.Certificate
	for _, b := range blocks {
		switch b.Type {
		case "PRIVATE KEY":
			if k := parseRSAPrivateKey(b.Bytes); k != nil {
				keys = append(keys, k)
			}
		case "CERTIFICATE":
			if c, err := x509.ParseCertificate(b.Bytes); err == nil {
				certs = append(certs, c)
			}
		}
	}
	if len(keys) == 0 {
		return nil, ErrMissingPrivateKey
	}
	if len(certs) == 0 {
		return nil, ErrMissingCertificate
	}

	// El certificado hoja es el que tiene llave privada acompañante.
	for _, key := range keys {
		for i, cert := range certs {
			pub, ok := cert.PublicKey.(*rsa.PublicKey)
			if !ok {
				continue
			}
			if pub.N.Cmp(key.N) == 0 && pub.E == key.E {
				chain := make([]*x509.Certificate, 0, len(certs)-1)
				chain = append(chain, certs[:i]...)
				chain = append(chain, certs[i+1:]...)
				return &entity.KeyMaterial{
					PrivateKey:  key,
					Certificate: cert,
					Chain:       chain,
				}, nil
			}
		}
	}
	return nil, ErrMissingCertificate
}

func parseRSAPrivateKey(der []byte) *rsa.PrivateKey {
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k
	}
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rsaKey, ok := k.(*rsa.PrivateKey); ok {
			return rsaKey
		}
	}
	return nil
}

// Info describe el certificado hoja del material cargado.
func Info(mat *entity.KeyMaterial) entity.CertificateInfo {
	cert := mat.Certificate
	return entity.CertificateInfo{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		SerialNumber: cert.SerialNumber.String(),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		Fingerprint:  Fingerprint(cert),
	}
}

// Fingerprint devuelve el SHA-256 hex del certificado DER.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// CertDigestAndIssuerSerial devuelve el digest SHA-256 del certificado (Base64),
// el nombre del emisor y el serial decimal, para la propiedad SigningCertificate.
func CertDigestAndIssuerSerial(cert *x509.Certificate) (digestB64 string, issuerName string, serial string) {
	sum := sha256.Sum256(cert.Raw)
	digestB64 = base64.StdEncoding.EncodeToString(sum[:])
	issuerName = cert.Issuer.String()
	serial = cert.SerialNumber.String()
	return digestB64, issuerName, serial
}
