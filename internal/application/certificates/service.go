// Servicio de firma: orquesta cache -> firma XAdES-BES -> hook de uso.

package certificates

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vendosri/firmador-sri/internal/domain/entity"
	"github.com/vendosri/firmador-sri/internal/domain/repository"
	"github.com/vendosri/firmador-sri/internal/metrics"
	"github.com/vendosri/firmador-sri/pkg/logger"
)

// Service expone las operaciones del núcleo hacia las capas externas.
type Service struct {
	cache    *Manager
	signer   Signer
	recorder repository.UsageRecorder // opcional; sus errores nunca bloquean la firma
	log      *logger.Logger
}

// NewService construye el servicio de firma.
func NewService(cache *Manager, signer Signer, recorder repository.UsageRecorder, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{cache: cache, signer: signer, recorder: recorder, log: log}
}

// Sign firma el documento XML con el certificado vigente de la empresa.
// Ningún fallo devuelve un documento parcialmente firmado.
func (s *Service) Sign(ctx context.Context, companyID string, xmlBytes []byte) ([]byte, error) {
	lease, err := s.cache.Acquire(ctx, companyID)
	if err != nil {
		s.recordUsage(ctx, companyID, entity.UsageOpSignXML, false, err)
		metrics.Signatures.WithLabelValues("error").Inc()
		return nil, err
	}
	defer lease.Release()

	signed, err := s.signer.Sign(xmlBytes, lease.Material)
	if err != nil {
		sigErr := &SigningError{CompanyID: companyID, Err: err}
		s.recordUsage(ctx, companyID, entity.UsageOpSignXML, false, sigErr)
		metrics.Signatures.WithLabelValues("error").Inc()
		return nil, sigErr
	}

	s.recordUsage(ctx, companyID, entity.UsageOpSignXML, true, nil)
	metrics.Signatures.WithLabelValues("ok").Inc()
	return signed, nil
}

// GetCertificateInfo devuelve los datos descriptivos del certificado vigente.
func (s *Service) GetCertificateInfo(ctx context.Context, companyID string) (entity.CertificateInfo, error) {
	lease, err := s.cache.Acquire(ctx, companyID)
	if err != nil {
		s.recordUsage(ctx, companyID, entity.UsageOpGetCert, false, err)
		return entity.CertificateInfo{}, err
	}
	defer lease.Release()

	s.recordUsage(ctx, companyID, entity.UsageOpGetCert, true, nil)
	return lease.Info, nil
}

// Invalidate descarta el material cacheado de la empresa (registro cambiado o eliminado).
func (s *Service) Invalidate(companyID string) {
	s.cache.Invalidate(companyID)
}

// EvictExpired remueve del cache los certificados vencidos; invocable por timer.
func (s *Service) EvictExpired() int {
	return s.cache.EvictExpired()
}

// Stats instantánea del cache.
func (s *Service) Stats() Stats {
	return s.cache.Stats()
}

// Preload calienta el cache para las empresas dadas (todas las activas si ids
// es nil). Devuelve cuántas cargaron y cuántas fallaron.
func (s *Service) Preload(ctx context.Context, companyIDs []string) (loaded, failed int) {
	ids := companyIDs
	if ids == nil {
		var err error
		ids, err = s.cache.repo.ListActiveCompanyIDs(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("listar empresas con certificado activo")
			return 0, 0
		}
	}

	for _, id := range ids {
		lease, err := s.cache.Acquire(ctx, id)
		if err != nil {
			failed++
			s.recordUsage(ctx, id, entity.UsageOpPreload, false, err)
			continue
		}
		lease.Release()
		loaded++
		s.recordUsage(ctx, id, entity.UsageOpPreload, true, nil)
	}
	s.log.Info().Int("loaded", loaded).Int("failed", failed).Msg("precarga de certificados completada")
	return loaded, failed
}

// recordUsage invoca el hook de uso. Síncrono pero nunca propaga fallos: si la
// persistencia del log está lenta o caída, la firma no se ve afectada.
func (s *Service) recordUsage(ctx context.Context, companyID, operation string, success bool, opErr error) {
	if s.recorder == nil {
		return
	}
	usage := &entity.CertificateUsage{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Operation: operation,
		Success:   success,
		CreatedAt: time.Now().UTC(),
	}
	if opErr != nil {
		usage.ErrorMessage = opErr.Error()
	}
	if err := s.recorder.Record(ctx, usage); err != nil {
		s.log.Warn().Str("company_id", companyID).Err(err).Msg("registrar uso de certificado")
	}
}
