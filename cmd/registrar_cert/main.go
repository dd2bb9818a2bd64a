// registrar_cert: registra el certificado de firma (.p12) de una empresa.
//
// Valida el contenedor con la contraseña dada, copia el archivo al almacén de
// contenedores, cifra la contraseña con la llave maestra e inserta el registro
// en digital_certificates. Si la empresa ya tiene un certificado ACTIVE, el
// insert falla por el índice parcial único (invalidar el anterior primero con
// firmador invalidate + UPDATE de estado).
//
// La contraseña se lee de la env var CERT_PASSWORD para no dejarla en el
// historial del shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vendosri/firmador-sri/internal/domain/entity"
	"github.com/vendosri/firmador-sri/internal/infrastructure/postgres"
	"github.com/vendosri/firmador-sri/internal/infrastructure/sri/signer"
	"github.com/vendosri/firmador-sri/internal/security/secretbox"
	"github.com/vendosri/firmador-sri/pkg/config"
	"github.com/vendosri/firmador-sri/pkg/logger"
)

func main() {
	company := flag.String("empresa", "", "RUC o ID de la empresa emisora")
	p12Path := flag.String("p12", "", "ruta del contenedor .p12/.pfx")
	env := flag.String("ambiente", entity.CertEnvironmentTest, "PRODUCTION o TEST")
	flag.Parse()

	if *company == "" || *p12Path == "" {
		flag.Usage()
		os.Exit(2)
	}
	password := os.Getenv("CERT_PASSWORD")
	if password == "" {
		fmt.Fprintln(os.Stderr, "Error: defina CERT_PASSWORD con la contraseña del contenedor")
		os.Exit(2)
	}
	if *env != entity.CertEnvironmentProduction && *env != entity.CertEnvironmentTest {
		fmt.Fprintln(os.Stderr, "Error: -ambiente debe ser PRODUCTION o TEST")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error de configuración:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: "info"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	data, err := os.ReadFile(*p12Path)
	if err != nil {
		log.Fatal().Err(err).Msg("leer contenedor P12")
	}

	// Validar el contenedor ANTES de tocar la base: contraseña correcta,
	// llave RSA y certificado hoja presentes.
	mat, err := signer.NewP12Loader().Load(data, password)
	if err != nil {
		log.Fatal().Err(err).Msg("el contenedor no es utilizable para firmar")
	}
	info := signer.Info(mat)

	now := time.Now().UTC()
	if now.After(info.NotAfter) {
		log.Fatal().
			Time("not_after", info.NotAfter).
			Msg("el certificado ya está vencido; no se registra")
	}

	codec, err := secretbox.New(cfg.Secret.MasterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar cifrado de contraseñas")
	}
	passwordEnc, err := codec.Encrypt(password)
	if err != nil {
		log.Fatal().Err(err).Msg("cifrar contraseña del contenedor")
	}

	id := uuid.NewString()
	relPath := filepath.Join(*company, id+".p12")
	destPath := filepath.Join(cfg.Storage.CertDir, relPath)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o700); err != nil {
		log.Fatal().Err(err).Msg("crear directorio de la empresa en el almacén")
	}
	if err := os.WriteFile(destPath, data, 0o600); err != nil {
		log.Fatal().Err(err).Msg("copiar contenedor al almacén")
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conectar a PostgreSQL")
	}
	defer pool.Close()

	cert := &entity.DigitalCertificate{
		ID:           id,
		CompanyID:    *company,
		StoragePath:  relPath,
		PasswordEnc:  passwordEnc,
		SubjectName:  info.Subject,
		IssuerName:   info.Issuer,
		SerialNumber: info.SerialNumber,
		ValidFrom:    info.NotBefore,
		ValidTo:      info.NotAfter,
		Status:       entity.CertStatusActive,
		Fingerprint:  info.Fingerprint,
		Environment:  *env,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := postgres.NewCertificateRepository(pool).Create(ctx, cert); err != nil {
		// El registro en base falló: no dejar el archivo huérfano.
		_ = os.Remove(destPath)
		log.Fatal().Err(err).Msg("insertar registro de certificado")
	}

	log.Info().
		Str("id", cert.ID).
		Str("company_id", cert.CompanyID).
		Str("subject", cert.SubjectName).
		Time("valid_to", cert.ValidTo).
		Int("dias_restantes", cert.DaysUntilExpiration(now)).
		Msg("certificado registrado")
}
