// firmador: CLI de operación del núcleo de firma electrónica SRI.
//
// Subcomandos:
//
//	sign       firma un comprobante XML con el certificado vigente de la empresa
//	info       muestra los datos del certificado vigente de la empresa
//	preload    calienta el cache para todas las empresas con certificado activo
//	invalidate descarta del cache el material de una empresa
//	evict      remueve del cache los certificados vencidos
//	stats      imprime las estadísticas del cache
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vendosri/firmador-sri/internal/application/certificates"
	"github.com/vendosri/firmador-sri/internal/infrastructure/postgres"
	"github.com/vendosri/firmador-sri/internal/infrastructure/sri/signer"
	"github.com/vendosri/firmador-sri/internal/infrastructure/storage"
	"github.com/vendosri/firmador-sri/internal/metrics"
	"github.com/vendosri/firmador-sri/internal/security/secretbox"
	"github.com/vendosri/firmador-sri/pkg/config"
	"github.com/vendosri/firmador-sri/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error de configuración:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: "info"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conectar a PostgreSQL")
	}
	defer pool.Close()

	codec, err := secretbox.New(cfg.Secret.MasterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar cifrado de contraseñas")
	}

	if err := metrics.RegisterCertificates(nil); err != nil {
		log.Warn().Err(err).Msg("registrar métricas")
	}

	cache := certificates.NewManager(
		postgres.NewCertificateRepository(pool),
		storage.NewFileStore(cfg.Storage.CertDir),
		codec,
		signer.NewP12Loader(),
		certificates.Config{TTL: cfg.Cache.TTL, MaxSize: cfg.Cache.MaxSize},
		log,
	)
	svc := certificates.NewService(cache, signer.NewXAdESService(), postgres.NewUsageLogRepository(pool), log)

	switch os.Args[1] {
	case "sign":
		err = runSign(ctx, svc, os.Args[2:])
	case "info":
		err = runInfo(ctx, svc, os.Args[2:])
	case "preload":
		loaded, failed := svc.Preload(ctx, nil)
		fmt.Printf("Precarga: %d cargados, %d fallidos\n", loaded, failed)
	case "invalidate":
		err = runInvalidate(svc, os.Args[2:])
	case "evict":
		fmt.Printf("Removidos del cache: %d\n", svc.EvictExpired())
	case "stats":
		err = printJSON(svc.Stats())
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Str("cmd", os.Args[1]).Msg("comando falló")
		os.Exit(1)
	}
}

func runSign(ctx context.Context, svc *certificates.Service, args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	company := fs.String("empresa", "", "RUC o ID de la empresa emisora")
	in := fs.String("in", "", "ruta del XML a firmar (- para stdin)")
	out := fs.String("out", "", "ruta del XML firmado (- o vacío para stdout)")
	_ = fs.Parse(args)

	if *company == "" || *in == "" {
		fs.Usage()
		return fmt.Errorf("faltan -empresa o -in")
	}

	var xmlBytes []byte
	var err error
	if *in == "-" {
		xmlBytes, err = io.ReadAll(os.Stdin)
	} else {
		xmlBytes, err = os.ReadFile(*in)
	}
	if err != nil {
		return fmt.Errorf("leer XML: %w", err)
	}

	signed, err := svc.Sign(ctx, *company, xmlBytes)
	if err != nil {
		return err
	}

	if *out == "" || *out == "-" {
		_, err = os.Stdout.Write(signed)
		return err
	}
	return os.WriteFile(*out, signed, 0o644)
}

func runInfo(ctx context.Context, svc *certificates.Service, args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	company := fs.String("empresa", "", "RUC o ID de la empresa")
	_ = fs.Parse(args)

	if *company == "" {
		fs.Usage()
		return fmt.Errorf("falta -empresa")
	}
	info, err := svc.GetCertificateInfo(ctx, *company)
	if err != nil {
		return err
	}
	return printJSON(info)
}

func runInvalidate(svc *certificates.Service, args []string) error {
	fs := flag.NewFlagSet("invalidate", flag.ExitOnError)
	company := fs.String("empresa", "", "RUC o ID de la empresa")
	_ = fs.Parse(args)

	if *company == "" {
		fs.Usage()
		return fmt.Errorf("falta -empresa")
	}
	svc.Invalidate(*company)
	fmt.Println("Cache invalidado para", *company)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage() {
	fmt.Fprintln(os.Stderr, `Uso: firmador <sign|info|preload|invalidate|evict|stats> [flags]

  sign       -empresa <id> -in <archivo.xml> [-out <firmado.xml>]
  info       -empresa <id>
  preload
  invalidate -empresa <id>
  evict
  stats`)
}
