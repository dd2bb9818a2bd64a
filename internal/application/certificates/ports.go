package certificates

import (
	"github.com/vendosri/firmador-sri/internal/domain/entity"
)

// Decryptor descifra la contraseña del certificado almacenada en el registro.
// Implementación: internal/security/secretbox.
type Decryptor interface {
	Decrypt(cipherText string) (string, error)
}

// ContainerLoader extrae el material de firma desde los bytes de un contenedor
// PKCS#12. Implementación: internal/infrastructure/sri/signer.P12Loader.
type ContainerLoader interface {
	Load(data []byte, password string) (*entity.KeyMaterial, error)
}

// Signer produce el documento firmado XAdES-BES a partir del XML y el material.
// Implementación: internal/infrastructure/sri/signer.XAdESService.
type Signer interface {
	Sign(xmlBytes []byte, mat *entity.KeyMaterial) ([]byte, error)
}
