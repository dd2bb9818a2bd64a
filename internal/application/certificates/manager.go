// Cache en memoria de material de firma por empresa. Instancia construida e
// inyectada desde el composition root; no hay estado global.
//
// Concurrencia: lecturas de entradas vigentes no serializan tras un lock
// global (RWMutex sobre el mapa + mutex por entrada); las cargas concurrentes
// para la misma empresa se deduplican con singleflight; la evicción nunca
// remueve una entrada con leases de firma en curso.

package certificates

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vendosri/firmador-sri/internal/domain/entity"
	"github.com/vendosri/firmador-sri/internal/domain/repository"
	"github.com/vendosri/firmador-sri/internal/infrastructure/sri/signer"
	"github.com/vendosri/firmador-sri/internal/metrics"
	"github.com/vendosri/firmador-sri/pkg/logger"
)

// Config parámetros del cache.
type Config struct {
	TTL     time.Duration // vigencia de una entrada desde su carga
	MaxSize int           // capacidad antes de la evicción LRU
}

// Manager resuelve y cachea el material de firma por empresa.
type Manager struct {
	repo   repository.CertificateRepository
	store  repository.ContainerStore
	codec  Decryptor
	loader ContainerLoader
	cfg    Config
	log    *logger.Logger

	now func() time.Time // inyectable en tests

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	sf      singleflight.Group

	hits       atomic.Int64
	misses     atomic.Int64
	loadErrors atomic.Int64
	overflows  atomic.Int64 // veces que la evicción no pudo bajar de capacidad
}

type cacheEntry struct {
	mu         sync.Mutex
	material   *entity.KeyMaterial
	record     *entity.DigitalCertificate
	info       entity.CertificateInfo
	loadedAt   time.Time
	lastUsed   time.Time
	usageCount int64
	refs       int // leases de firmas en curso; protege contra evicción
}

// Lease material de firma prestado a una operación en curso. Debe liberarse
// con Release al terminar la firma.
type Lease struct {
	CompanyID string
	Material  *entity.KeyMaterial
	Record    *entity.DigitalCertificate
	Info      entity.CertificateInfo

	entry    *cacheEntry
	released atomic.Bool
}

// Release devuelve el lease; idempotente.
func (l *Lease) Release() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	l.entry.mu.Lock()
	l.entry.refs--
	l.entry.mu.Unlock()
}

// NewManager construye el cache con sus colaboradores.
func NewManager(
	repo repository.CertificateRepository,
	store repository.ContainerStore,
	codec Decryptor,
	loader ContainerLoader,
	cfg Config,
	log *logger.Logger,
) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		repo:    repo,
		store:   store,
		codec:   codec,
		loader:  loader,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		entries: make(map[string]*cacheEntry),
	}
}

// Acquire devuelve un lease sobre el material vigente de la empresa, cargándolo
// si no está en cache. La vigencia (TTL, ventana del registro y del certificado)
// se verifica en CADA acceso, no solo al cargar.
func (m *Manager) Acquire(ctx context.Context, companyID string) (*Lease, error) {
	now := m.now()

	m.mu.RLock()
	e := m.entries[companyID]
	m.mu.RUnlock()

	if e != nil {
		if lease, ok := m.tryLease(companyID, e, now); ok {
			m.hits.Add(1)
			metrics.CertCacheHits.Inc()
			return lease, nil
		}
		// Entrada vencida: removerla antes de recargar.
		m.removeEntry(companyID, e)
	}

	m.misses.Add(1)
	metrics.CertCacheMisses.Inc()

	// Una sola carga por empresa aunque lleguen N llamadas concurrentes.
	result, err, _ := m.sf.Do(companyID, func() (interface{}, error) {
		return m.loadAndInsert(ctx, companyID)
	})
	if err != nil {
		return nil, err
	}
	loaded := result.(*cacheEntry)

	if lease, ok := m.tryLease(companyID, loaded, m.now()); ok {
		return lease, nil
	}
	// Cargado pero ya no usable (ventana vencida entre carga y uso).
	m.removeEntry(companyID, loaded)
	return nil, unavailable(companyID, KindExpired, errors.New("el certificado venció durante la carga"))
}

// tryLease valida la entrada y, si sigue vigente, registra el uso y toma un lease.
// La actualización de last-used/contador es atómica con la mutación de la entrada.
func (m *Manager) tryLease(companyID string, e *cacheEntry, now time.Time) (*Lease, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m.cfg.TTL > 0 && now.Sub(e.loadedAt) > m.cfg.TTL {
		return nil, false
	}
	if !e.record.IsUsable(now) || now.After(e.material.Certificate.NotAfter) {
		return nil, false
	}

	e.lastUsed = now
	e.usageCount++
	e.refs++
	return &Lease{
		CompanyID: companyID,
		Material:  e.material,
		Record:    e.record,
		Info:      e.info,
		entry:     e,
	}, true
}

// loadAndInsert ejecuta el camino de carga completo: registro -> descifrar
// contraseña -> leer contenedor -> extraer material -> insertar en cache.
// Un fallo en cualquier etapa no inserta nada y deja el estado previo intacto.
func (m *Manager) loadAndInsert(ctx context.Context, companyID string) (*cacheEntry, error) {
	e, err := m.load(ctx, companyID)
	if err != nil {
		m.loadErrors.Add(1)
		metrics.CertLoadErrors.Inc()
		m.log.Warn().Str("company_id", companyID).Err(err).Msg("carga de certificado fallida")
		return nil, err
	}

	m.mu.Lock()
	m.entries[companyID] = e
	m.evictOverCapacityLocked()
	m.mu.Unlock()

	m.log.Info().
		Str("company_id", companyID).
		Str("subject", e.info.Subject).
		Time("not_after", e.info.NotAfter).
		Msg("certificado cargado y cacheado")
	return e, nil
}

func (m *Manager) load(ctx context.Context, companyID string) (*cacheEntry, error) {
	now := m.now()

	rec, err := m.repo.GetActiveByCompany(ctx, companyID)
	if err != nil {
		return nil, unavailable(companyID, KindRecordNotFound, err)
	}
	if rec == nil || rec.Status != entity.CertStatusActive {
		return nil, unavailable(companyID, KindRecordNotFound, errors.New("sin certificado ACTIVE"))
	}
	if now.Before(rec.ValidFrom) || now.After(rec.ValidTo) {
		return nil, unavailable(companyID, KindExpired, errors.New("registro fuera de su ventana de validez"))
	}

	password, err := m.codec.Decrypt(rec.PasswordEnc)
	if err != nil {
		return nil, unavailable(companyID, KindDecryptionFailed, err)
	}

	data, err := m.store.Fetch(ctx, rec.StoragePath)
	if err != nil {
		return nil, unavailable(companyID, KindContainerParse, err)
	}

	mat, err := m.loader.Load(data, password)
	if err != nil {
		kind := KindContainerParse
		if errors.Is(err, signer.ErrMissingPrivateKey) || errors.Is(err, signer.ErrMissingCertificate) {
			kind = KindMissingKeyOrCert
		}
		return nil, unavailable(companyID, kind, err)
	}
	if now.After(mat.Certificate.NotAfter) {
		return nil, unavailable(companyID, KindExpired, errors.New("certificado X.509 expirado"))
	}

	return &cacheEntry{
		material: mat,
		record:   rec,
		info:     signer.Info(mat),
		loadedAt: now,
		lastUsed: now,
	}, nil
}

// Invalidate remueve la entrada de la empresa de inmediato (registro cambiado,
// desactivado o eliminado). La siguiente carga parte de cero.
func (m *Manager) Invalidate(companyID string) {
	m.mu.Lock()
	if _, ok := m.entries[companyID]; ok {
		delete(m.entries, companyID)
		metrics.CertEvictions.Inc()
	}
	m.mu.Unlock()
}

// EvictExpired barre el cache y remueve las entradas cuya vigencia ya pasó.
// Pensado para invocarse desde un timer; no bloquea leases en curso.
func (m *Manager) EvictExpired() int {
	now := m.now()
	removed := 0

	m.mu.Lock()
	for id, e := range m.entries {
		e.mu.Lock()
		expired := (m.cfg.TTL > 0 && now.Sub(e.loadedAt) > m.cfg.TTL) ||
			!e.record.IsUsable(now) || now.After(e.material.Certificate.NotAfter)
		busy := e.refs > 0
		e.mu.Unlock()

		if expired && !busy {
			delete(m.entries, id)
			removed++
			metrics.CertEvictions.Inc()
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.log.Info().Int("removed", removed).Msg("evicción de certificados expirados")
	}
	return removed
}

// evictOverCapacityLocked remueve ~10% de las entradas menos usadas cuando el
// cache supera su capacidad. Empates por carga más antigua; nunca remueve
// entradas con leases activos. Requiere m.mu tomado en escritura.
func (m *Manager) evictOverCapacityLocked() {
	if m.cfg.MaxSize <= 0 || len(m.entries) <= m.cfg.MaxSize {
		return
	}

	type candidate struct {
		id       string
		lastUsed time.Time
		loadedAt time.Time
	}
	candidates := make([]candidate, 0, len(m.entries))
	for id, e := range m.entries {
		e.mu.Lock()
		if e.refs == 0 {
			candidates = append(candidates, candidate{id: id, lastUsed: e.lastUsed, loadedAt: e.loadedAt})
		}
		e.mu.Unlock()
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].lastUsed.Equal(candidates[j].lastUsed) {
			return candidates[i].lastUsed.Before(candidates[j].lastUsed)
		}
		return candidates[i].loadedAt.Before(candidates[j].loadedAt)
	})

	target := m.cfg.MaxSize / 10
	if target < 1 {
		target = 1
	}
	if excess := len(m.entries) - m.cfg.MaxSize; excess > target {
		target = excess
	}

	removed := 0
	for _, c := range candidates {
		if removed >= target {
			break
		}
		delete(m.entries, c.id)
		removed++
		metrics.CertEvictions.Inc()
	}

	if len(m.entries) > m.cfg.MaxSize {
		// Todas las entradas restantes están en uso: degradado pero no fatal.
		m.overflows.Add(1)
		m.log.Warn().
			Int("size", len(m.entries)).
			Int("capacity", m.cfg.MaxSize).
			Msg("cache de certificados sobre capacidad tras evicción")
	} else if removed > 0 {
		m.log.Debug().Int("removed", removed).Msg("evicción LRU de certificados")
	}
}

func (m *Manager) removeEntry(companyID string, e *cacheEntry) {
	m.mu.Lock()
	// Solo remover si sigue siendo la misma entrada (pudo recargarse en paralelo).
	if cur, ok := m.entries[companyID]; ok && cur == e {
		delete(m.entries, companyID)
		metrics.CertEvictions.Inc()
	}
	m.mu.Unlock()
}

// EntryStats uso de una entrada cacheada.
type EntryStats struct {
	Subject       string    `json:"subject"`
	LoadedAt      time.Time `json:"loaded_at"`
	LastUsed      time.Time `json:"last_used"`
	UsageCount    int64     `json:"usage_count"`
	ExpiresInDays int       `json:"expires_in_days"`
}

// Stats estado del cache para introspección.
type Stats struct {
	Size       int                   `json:"size"`
	Capacity   int                   `json:"capacity"`
	Hits       int64                 `json:"hits"`
	Misses     int64                 `json:"misses"`
	LoadErrors int64                 `json:"load_errors"`
	Overflows  int64                 `json:"overflows"`
	Entries    map[string]EntryStats `json:"entries"`
}

// Stats devuelve una instantánea de solo lectura del cache.
func (m *Manager) Stats() Stats {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make(map[string]EntryStats, len(m.entries))
	for id, e := range m.entries {
		e.mu.Lock()
		entries[id] = EntryStats{
			Subject:       e.info.Subject,
			LoadedAt:      e.loadedAt,
			LastUsed:      e.lastUsed,
			UsageCount:    e.usageCount,
			ExpiresInDays: e.record.DaysUntilExpiration(now),
		}
		e.mu.Unlock()
	}

	return Stats{
		Size:       len(m.entries),
		Capacity:   m.cfg.MaxSize,
		Hits:       m.hits.Load(),
		Misses:     m.misses.Load(),
		LoadErrors: m.loadErrors.Load(),
		Overflows:  m.overflows.Load(),
		Entries:    entries,
	}
}
