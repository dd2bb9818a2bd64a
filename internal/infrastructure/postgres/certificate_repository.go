package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendosri/firmador-sri/internal/domain/entity"
	"github.com/vendosri/firmador-sri/internal/domain/repository"
)

// Asegura que CertificateRepo implementa repository.CertificateRepository.
var _ repository.CertificateRepository = (*CertificateRepo)(nil)

// CertificateRepo implementación del puerto CertificateRepository sobre PostgreSQL.
type CertificateRepo struct {
	pool *pgxpool.Pool
}

// NewCertificateRepository construye el adaptador de persistencia para certificados.
func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepo {
	return &CertificateRepo{pool: pool}
}

const certColumns = `id, company_id, storage_path, password_enc, subject_name, issuer_name,
		serial_number, valid_from, valid_to, status, fingerprint, environment, created_at, updated_at`

// GetActiveByCompany devuelve el certificado ACTIVE de la empresa, o nil si no hay.
func (r *CertificateRepo) GetActiveByCompany(ctx context.Context, companyID string) (*entity.DigitalCertificate, error) {
	query := `
		SELECT ` + certColumns + `
		FROM digital_certificates
		WHERE company_id = $1 AND status = $2`
	var c entity.DigitalCertificate
	err := r.pool.QueryRow(ctx, query, companyID, entity.CertStatusActive).Scan(
		&c.ID, &c.CompanyID, &c.StoragePath, &c.PasswordEnc, &c.SubjectName, &c.IssuerName,
		&c.SerialNumber, &c.ValidFrom, &c.ValidTo, &c.Status, &c.Fingerprint, &c.Environment,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get certificado activo: %w", err)
	}
	return &c, nil
}

// Create persiste un nuevo registro de certificado. La unicidad de ACTIVE por
// empresa la garantiza el índice parcial único de la tabla.
func (r *CertificateRepo) Create(ctx context.Context, cert *entity.DigitalCertificate) error {
	query := `
		INSERT INTO digital_certificates (` + certColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.pool.Exec(ctx, query,
		cert.ID, cert.CompanyID, cert.StoragePath, cert.PasswordEnc, cert.SubjectName,
		cert.IssuerName, cert.SerialNumber, cert.ValidFrom, cert.ValidTo, cert.Status,
		cert.Fingerprint, cert.Environment, cert.CreatedAt, cert.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("la empresa %s ya tiene un certificado ACTIVE: %w", cert.CompanyID, err)
		}
		return fmt.Errorf("insert certificado: %w", err)
	}
	return nil
}

// UpdateStatus cambia el estado del registro (ACTIVE, INACTIVE, EXPIRED, REVOKED).
func (r *CertificateRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE digital_certificates SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update estado de certificado: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("certificado %s no existe", id)
	}
	return nil
}

// ListActiveCompanyIDs devuelve las empresas con certificado ACTIVE vigente (para precarga).
func (r *CertificateRepo) ListActiveCompanyIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT company_id FROM digital_certificates
		WHERE status = $1 AND valid_to > now()
		ORDER BY company_id`
	rows, err := r.pool.Query(ctx, query, entity.CertStatusActive)
	if err != nil {
		return nil, fmt.Errorf("listar certificados activos: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan company_id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
