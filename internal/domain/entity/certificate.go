package entity

import (
	"crypto/rsa"
	"crypto/x509"
	"time"
)

// Estados del certificado digital (deben coincidir con el CHECK de digital_certificates).
const (
	CertStatusActive   = "ACTIVE"
	CertStatusInactive = "INACTIVE"
	CertStatusExpired  = "EXPIRED"
	CertStatusRevoked  = "REVOKED"
)

// Ambientes SRI del certificado.
const (
	CertEnvironmentProduction = "PRODUCTION"
	CertEnvironmentTest       = "TEST"
)

// DigitalCertificate registro persistido del certificado de firma de una empresa.
// A lo sumo un registro ACTIVE por empresa (índice parcial único en la tabla).
type DigitalCertificate struct {
	ID           string
	CompanyID    string
	StoragePath  string // ruta relativa del .p12 dentro del almacén de contenedores
	PasswordEnc  string // contraseña cifrada con la llave maestra (secretbox)
	SubjectName  string
	IssuerName   string
	SerialNumber string
	ValidFrom    time.Time
	ValidTo      time.Time
	Status       string // ver constantes CertStatus*
	Fingerprint  string // SHA-256 hex del certificado DER
	Environment  string // PRODUCTION o TEST
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsExpired indica si la ventana de validez del registro ya pasó.
func (c *DigitalCertificate) IsExpired(now time.Time) bool {
	return now.After(c.ValidTo)
}

// IsUsable indica si el registro puede usarse para firmar en este instante:
// estado ACTIVE y dentro de [ValidFrom, ValidTo].
func (c *DigitalCertificate) IsUsable(now time.Time) bool {
	return c.Status == CertStatusActive && !now.Before(c.ValidFrom) && !now.After(c.ValidTo)
}

// DaysUntilExpiration días restantes de validez (0 si ya expiró).
func (c *DigitalCertificate) DaysUntilExpiration(now time.Time) int {
	if c.IsExpired(now) {
		return 0
	}
	return int(c.ValidTo.Sub(now).Hours() / 24)
}

// KeyMaterial material criptográfico extraído de un contenedor PKCS#12.
// Vive solo en memoria; nunca se persiste.
type KeyMaterial struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
	Chain       []*x509.Certificate
}

// CertificateInfo datos descriptivos del certificado hoja, para consulta.
type CertificateInfo struct {
	Subject      string
	Issuer       string
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
	Fingerprint  string // SHA-256 hex del DER
}

// Operaciones registradas en el log de uso de certificados.
const (
	UsageOpSignXML = "SIGN_XML"
	UsageOpGetCert = "GET_CERTIFICATE"
	UsageOpPreload = "PRELOAD"
)

// CertificateUsage registro de uso de un certificado (hook de auditoría).
type CertificateUsage struct {
	ID           string
	CompanyID    string
	Operation    string // ver constantes UsageOp*
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}
