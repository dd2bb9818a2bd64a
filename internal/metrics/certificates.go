package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus del cache de certificados y de la firma. Viven en un
// paquete propio para evitar ciclos de import entre application e infraestructura.

var (
	CertCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cert_cache_hits_total",
		Help: "Aciertos del cache de certificados",
	})

	CertCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cert_cache_misses_total",
		Help: "Fallos del cache de certificados (cargas desde el repositorio)",
	})

	CertLoadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cert_load_errors_total",
		Help: "Cargas de certificado fallidas",
	})

	CertEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cert_cache_evictions_total",
		Help: "Entradas removidas del cache (LRU o expiración)",
	})

	Signatures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xades_signatures_total",
		Help: "Firmas XAdES-BES por resultado",
	}, []string{"result"})
)

// RegisterCertificates registra las métricas en el registry dado (o el default si es nil).
func RegisterCertificates(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{CertCacheHits, CertCacheMisses, CertLoadErrors, CertEvictions, Signatures} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
