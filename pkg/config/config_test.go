package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vendosri/firmador-sri/pkg/config"
)

func TestDSN_EscapaCaracteresEspeciales(t *testing.T) {
	db := config.DBConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "firmador",
		Password: "p@ss/w:rd",
		DBName:   "firmador_sri",
		SSLMode:  "disable",
	}
	dsn := db.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "p%40ss%2Fw:rd@", "la contraseña va URL-encoded")
	assert.Contains(t, dsn, "sslmode=disable")
}

// TestConnectionString_PrefiereDatabaseURL si DATABASE_URL está definido se usa
// tal cual, ignorando los campos individuales.
func TestConnectionString_PrefiereDatabaseURL(t *testing.T) {
	db := config.DBConfig{
		DatabaseURL: "postgresql://u:p@db.example.com:5432/prod?sslmode=require",
		Host:        "localhost",
	}
	assert.Equal(t, "postgresql://u:p@db.example.com:5432/prod?sslmode=require", db.ConnectionString())
}

func TestLoad_ExigeLlaveMaestra(t *testing.T) {
	t.Setenv("SECRET_MASTER_KEY", "")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_ValoresPorDefecto(t *testing.T) {
	t.Setenv("SECRET_MASTER_KEY", "llave-de-prueba")
	cfg, err := config.Load()
	if err != nil {
		t.Skipf("config.Load leyó un archivo local inesperado: %v", err)
	}
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Positive(t, cfg.Cache.MaxSize)
	assert.Positive(t, cfg.Cache.TTL)
}
