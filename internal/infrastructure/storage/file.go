// Package storage implementa el almacén de contenedores P12 sobre el
// sistema de archivos local.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vendosri/firmador-sri/internal/domain/repository"
)

// Asegura que FileStore implementa repository.ContainerStore.
var _ repository.ContainerStore = (*FileStore)(nil)

// FileStore lee contenedores P12 bajo un directorio base.
type FileStore struct {
	baseDir string
}

// NewFileStore construye el almacén con su directorio raíz.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Fetch devuelve los bytes del contenedor. Rechaza rutas que escapen del
// directorio base.
func (s *FileStore) Fetch(_ context.Context, path string) ([]byte, error) {
	full := filepath.Join(s.baseDir, filepath.Clean("/"+path))
	rel, err := filepath.Rel(s.baseDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("storage: ruta fuera del directorio base: %q", path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("storage: leer contenedor %s: %w", path, err)
	}
	return data, nil
}
