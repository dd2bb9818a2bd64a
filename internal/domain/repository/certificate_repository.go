package repository

import (
	"context"

	"github.com/vendosri/firmador-sri/internal/domain/entity"
)

// CertificateRepository define el puerto de persistencia para los registros de
// certificados digitales (DIP). La implementación vive en infrastructure.
type CertificateRepository interface {
	// GetActiveByCompany devuelve el registro ACTIVE de la empresa, o nil si no existe.
	GetActiveByCompany(ctx context.Context, companyID string) (*entity.DigitalCertificate, error)
	Create(ctx context.Context, cert *entity.DigitalCertificate) error
	UpdateStatus(ctx context.Context, id, status string) error
	// ListActiveCompanyIDs devuelve las empresas con certificado ACTIVE (para precarga).
	ListActiveCompanyIDs(ctx context.Context) ([]string, error)
}

// UsageRecorder puerto del hook de registro de uso. Se invoca tras cada
// operación de firma/consulta; los errores del hook no deben bloquear la firma.
type UsageRecorder interface {
	Record(ctx context.Context, usage *entity.CertificateUsage) error
}

// ContainerStore puerto de lectura de los bytes del contenedor P12.
// El núcleo no hace I/O propio: delega la lectura en esta abstracción.
type ContainerStore interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}
