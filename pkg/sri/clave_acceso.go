// Clave de acceso de 49 dígitos de los comprobantes electrónicos SRI y su
// dígito verificador módulo 11.

package sri

import (
	"fmt"
	"time"
)

// AccessKeyParams datos necesarios para generar la clave de acceso.
// Formato: fecha(8) + tipo(2) + RUC(13) + ambiente(1) + serie(6) + secuencial(9) +
// código numérico(8) + tipo emisión(1) + dígito verificador(1) = 49 dígitos.
type AccessKeyParams struct {
	IssueDate     time.Time
	DocumentType  string // Tabla 3, ej. "01"
	RUC           string // 13 dígitos
	Environment   string // "1" pruebas, "2" producción
	Establishment string // 3 dígitos, ej. "001"
	EmissionPoint string // 3 dígitos, ej. "001"
	Sequence      string // hasta 9 dígitos, se rellena con ceros
	NumericCode   string // 8 dígitos elegidos por el emisor
}

// GenerateAccessKey construye la clave de acceso de 49 dígitos con su dígito verificador.
func GenerateAccessKey(p AccessKeyParams) (string, error) {
	if !ValidDocumentTypeCodes[p.DocumentType] {
		return "", fmt.Errorf("sri: tipo de comprobante inválido: %q", p.DocumentType)
	}
	if err := ValidateRUC(p.RUC); err != nil {
		return "", err
	}
	if p.Environment != EnvironmentPruebas && p.Environment != EnvironmentProduccion {
		return "", fmt.Errorf("sri: ambiente inválido: %q", p.Environment)
	}
	if len(p.Establishment) != 3 || len(p.EmissionPoint) != 3 {
		return "", fmt.Errorf("sri: establecimiento y punto de emisión deben tener 3 dígitos")
	}
	if len(p.Sequence) == 0 || len(p.Sequence) > 9 {
		return "", fmt.Errorf("sri: secuencial inválido: %q", p.Sequence)
	}
	if len(p.NumericCode) != 8 {
		return "", fmt.Errorf("sri: el código numérico debe tener 8 dígitos")
	}

	partial := p.IssueDate.Format("02012006") +
		p.DocumentType +
		p.RUC +
		p.Environment +
		p.Establishment +
		p.EmissionPoint +
		fmt.Sprintf("%09s", p.Sequence) +
		p.NumericCode +
		EmissionNormal

	digit, err := CheckDigitMod11(partial)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", partial, digit), nil
}

// CheckDigitMod11 calcula el dígito verificador módulo 11 del SRI:
// pesos 2..7 cíclicos de derecha a izquierda; 11 -> 0 y 10 -> 1.
func CheckDigitMod11(digits string) (int, error) {
	if digits == "" {
		return 0, fmt.Errorf("sri: cadena vacía")
	}
	var total, weight int
	weight = 2
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("sri: la clave solo admite dígitos, encontró %q", c)
		}
		total += int(c-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}
	digit := 11 - (total % 11)
	switch digit {
	case 11:
		digit = 0
	case 10:
		digit = 1
	}
	return digit, nil
}

// ValidateAccessKey verifica longitud y dígito verificador de una clave de acceso.
func ValidateAccessKey(key string) error {
	if len(key) != 49 {
		return fmt.Errorf("sri: la clave de acceso debe tener 49 dígitos, tiene %d", len(key))
	}
	digit, err := CheckDigitMod11(key[:48])
	if err != nil {
		return err
	}
	if byte('0'+digit) != key[48] {
		return fmt.Errorf("sri: dígito verificador inválido: esperado %d, recibido %c", digit, key[48])
	}
	return nil
}
