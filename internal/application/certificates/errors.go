package certificates

import (
	"errors"
	"fmt"
)

// UnavailableKind causa específica por la que no hay certificado usable.
// Se conserva para logging/diagnóstico; el caller decide si reintenta.
type UnavailableKind string

const (
	KindRecordNotFound   UnavailableKind = "RECORD_NOT_FOUND"
	KindDecryptionFailed UnavailableKind = "DECRYPTION_FAILED"
	KindContainerParse   UnavailableKind = "CONTAINER_PARSE_FAILED"
	KindExpired          UnavailableKind = "CERTIFICATE_EXPIRED"
	KindMissingKeyOrCert UnavailableKind = "MISSING_KEY_OR_CERT"
)

// ErrCertificateUnavailable sentinel para errors.Is sobre cualquier fallo del
// camino de carga.
var ErrCertificateUnavailable = errors.New("certificado no disponible")

// CertificateUnavailableError fallo tipado del camino de carga: registro
// inexistente, contraseña indescifrable, contenedor inválido o vigencia vencida.
type CertificateUnavailableError struct {
	CompanyID string
	Kind      UnavailableKind
	Err       error
}

func (e *CertificateUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("certificado no disponible para empresa %s (%s): %v", e.CompanyID, e.Kind, e.Err)
	}
	return fmt.Sprintf("certificado no disponible para empresa %s (%s)", e.CompanyID, e.Kind)
}

func (e *CertificateUnavailableError) Unwrap() error { return e.Err }

// Is permite errors.Is(err, ErrCertificateUnavailable).
func (e *CertificateUnavailableError) Is(target error) bool {
	return target == ErrCertificateUnavailable
}

func unavailable(companyID string, kind UnavailableKind, err error) *CertificateUnavailableError {
	return &CertificateUnavailableError{CompanyID: companyID, Kind: kind, Err: err}
}

// SigningError la operación criptográfica de firma falló; nunca se devuelve un
// documento parcialmente firmado.
type SigningError struct {
	CompanyID string
	Err       error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("firma fallida para empresa %s: %v", e.CompanyID, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }
