// Package sri contiene catálogos y algoritmos alineados a la Ficha Técnica de
// Comprobantes Electrónicos del SRI (Ecuador).
package sri

// =============================================================================
// Tipos de comprobante (Tabla 3 de la Ficha Técnica)
// =============================================================================

const (
	DocTypeFactura      = "01" // Factura
	DocTypeNotaCredito  = "04" // Nota de crédito
	DocTypeNotaDebito   = "05" // Nota de débito
	DocTypeGuiaRemision = "06" // Guía de remisión
	DocTypeRetencion    = "07" // Comprobante de retención
)

// ValidDocumentTypeCodes contiene los tipos de comprobante soportados.
var ValidDocumentTypeCodes = map[string]bool{
	DocTypeFactura:      true,
	DocTypeNotaCredito:  true,
	DocTypeNotaDebito:   true,
	DocTypeGuiaRemision: true,
	DocTypeRetencion:    true,
}

// =============================================================================
// Ambientes (Tabla 4)
// =============================================================================

const (
	EnvironmentPruebas    = "1" // Pruebas
	EnvironmentProduccion = "2" // Producción
)

// =============================================================================
// Tipos de emisión (Tabla 2)
// =============================================================================

const (
	EmissionNormal = "1" // Emisión normal
)
