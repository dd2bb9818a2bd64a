package sri

import (
	"fmt"
)

// coeficientes para el dígito verificador del RUC de persona natural / sociedad
// privada (módulo 10 sobre los 9 primeros dígitos, restando 9 a productos >= 10).
var rucCoefficients = [9]int{2, 1, 2, 1, 2, 1, 2, 1, 2}

// ValidateRUC valida que el RUC tenga 13 dígitos, termine en "001" y que el
// dígito verificador (posición 10) sea correcto según el algoritmo módulo 10 del SRI.
func ValidateRUC(ruc string) error {
	if len(ruc) != 13 {
		return fmt.Errorf("sri: el RUC debe tener 13 dígitos, tiene %d", len(ruc))
	}
	for _, r := range ruc {
		if r < '0' || r > '9' {
			return fmt.Errorf("sri: el RUC solo admite dígitos")
		}
	}
	if ruc[10:] != "001" {
		return fmt.Errorf("sri: el RUC debe terminar en 001")
	}

	var total int
	for i := 0; i < 9; i++ {
		product := int(ruc[i]-'0') * rucCoefficients[i]
		if product >= 10 {
			product -= 9
		}
		total += product
	}
	remainder := total % 10
	expected := byte('0')
	if remainder != 0 {
		expected = byte('0' + (10 - remainder))
	}
	if ruc[9] != expected {
		return fmt.Errorf("sri: dígito verificador del RUC inválido: esperado %c, recibido %c", expected, ruc[9])
	}
	return nil
}
