package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendosri/firmador-sri/internal/domain/entity"
	"github.com/vendosri/firmador-sri/internal/domain/repository"
)

// Asegura que UsageLogRepo implementa repository.UsageRecorder.
var _ repository.UsageRecorder = (*UsageLogRepo)(nil)

// UsageLogRepo persiste el log de uso de certificados (hook de auditoría).
type UsageLogRepo struct {
	pool *pgxpool.Pool
}

// NewUsageLogRepository construye el adaptador del log de uso.
func NewUsageLogRepository(pool *pgxpool.Pool) *UsageLogRepo {
	return &UsageLogRepo{pool: pool}
}

// Record inserta un registro de uso. El servicio de firma ignora fallos de este
// hook (solo los loggea), así que no hay reintentos aquí.
func (r *UsageLogRepo) Record(ctx context.Context, usage *entity.CertificateUsage) error {
	query := `
		INSERT INTO certificate_usage_logs (id, company_id, operation, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query,
		usage.ID, usage.CompanyID, usage.Operation, usage.Success, usage.ErrorMessage, usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert log de uso: %w", err)
	}
	return nil
}
