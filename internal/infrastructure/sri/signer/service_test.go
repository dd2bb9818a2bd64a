package signer_test

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendosri/firmador-sri/internal/domain/entity"
	"github.com/vendosri/firmador-sri/internal/infrastructure/sri/signer"
)

const testInvoiceXML = `<?xml version="1.0" encoding="UTF-8"?><factura id="comprobante" version="1.1.0"><infoTributaria><razonSocial>EMPRESA DE PRUEBA S.A.</razonSocial><claveAcceso>1508202501179000001000110010020000001231234567812</claveAcceso></infoTributaria><detalle>Cuaderno espiral</detalle></factura>`

func signTestInvoice(t *testing.T) ([]byte, *entity.KeyMaterial) {
	t.Helper()
	key, cert := testKeyAndCert(t)
	mat := &entity.KeyMaterial{PrivateKey: key, Certificate: cert}

	signed, err := signer.NewXAdESService().Sign([]byte(testInvoiceXML), mat)
	require.NoError(t, err)
	return signed, mat
}

// TestSign_EstructuraDelDocumento el ds:Signature queda como último hijo de la
// raíz y el contenido original no se altera.
func TestSign_EstructuraDelDocumento(t *testing.T) {
	signed, _ := signTestInvoice(t)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	root := doc.Root()
	require.NotNil(t, root)
	assert.Equal(t, "factura", root.Tag)

	sigs := doc.FindElements("//ds:Signature")
	require.Len(t, sigs, 1, "exactamente un nodo Signature")

	children := root.ChildElements()
	require.NotEmpty(t, children)
	last := children[len(children)-1]
	assert.Equal(t, "Signature", last.Tag)
	assert.Equal(t, "ds", last.Space)

	detalle := doc.FindElement("//detalle")
	require.NotNil(t, detalle)
	assert.Equal(t, "Cuaderno espiral", detalle.Text(), "el contenido original queda intacto")

	clave := doc.FindElement("//claveAcceso")
	require.NotNil(t, clave)
	assert.Equal(t, "1508202501179000001000110010020000001231234567812", clave.Text())
}

// TestSign_FirmaVerifica extrae el SignedInfo del documento firmado, lo
// re-canonicaliza y verifica SignatureValue con la mitad pública de la llave.
// Es el mismo procedimiento que ejecutará el receptor (SRI).
func TestSign_FirmaVerifica(t *testing.T) {
	signed, mat := signTestInvoice(t)

	start := bytes.Index(signed, []byte("<ds:SignedInfo"))
	end := bytes.Index(signed, []byte("</ds:SignedInfo>"))
	require.True(t, start >= 0 && end > start, "el documento firmado contiene SignedInfo")
	signedInfo := signed[start : end+len("</ds:SignedInfo>")]

	canonical, err := signer.CanonicalizeXML(signedInfo)
	require.NoError(t, err)
	digest := signer.DigestSHA256(canonical)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	sigValue := doc.FindElement("//ds:SignatureValue")
	require.NotNil(t, sigValue)
	sig, err := base64.StdEncoding.DecodeString(sigValue.Text())
	require.NoError(t, err)

	err = rsa.VerifyPKCS1v15(&mat.PrivateKey.PublicKey, crypto.SHA256, digest[:], sig)
	assert.NoError(t, err, "la firma RSASSA-PKCS1-v1_5/SHA-256 debe verificar")
}

// TestSign_DigestDelDocumento el DigestValue de la Reference URI="" es el
// SHA-256 del documento canónico SIN la firma (transformada enveloped).
func TestSign_DigestDelDocumento(t *testing.T) {
	signed, _ := signTestInvoice(t)

	canonical, err := signer.CanonicalizeXML([]byte(testInvoiceXML))
	require.NoError(t, err)
	want := signer.DigestSHA256(canonical)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	dv := doc.FindElement("//ds:Reference/ds:DigestValue")
	require.NotNil(t, dv)
	assert.Equal(t, base64.StdEncoding.EncodeToString(want[:]), dv.Text())
}

// TestSign_DigestSensibleAMutacion cualquier cambio en el documento rompe el
// digest de la Reference.
func TestSign_DigestSensibleAMutacion(t *testing.T) {
	signed, _ := signTestInvoice(t)

	mutated := bytes.Replace([]byte(testInvoiceXML), []byte("Cuaderno espiral"), []byte("Cuaderno rayado"), 1)
	canonical, err := signer.CanonicalizeXML(mutated)
	require.NoError(t, err)
	digest := signer.DigestSHA256(canonical)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	dv := doc.FindElement("//ds:Reference/ds:DigestValue")
	require.NotNil(t, dv)
	assert.NotEqual(t, base64.StdEncoding.EncodeToString(digest[:]), dv.Text())
}

func TestSign_CertificadoEmbebido(t *testing.T) {
	signed, mat := signTestInvoice(t)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	certNode := doc.FindElement("//ds:X509Certificate")
	require.NotNil(t, certNode)

	der, err := base64.StdEncoding.DecodeString(certNode.Text())
	require.NoError(t, err)
	assert.Equal(t, mat.Certificate.Raw, der, "el DER embebido es el certificado de firma")
}

// TestSign_PropiedadesXAdES las propiedades calificadoras llevan hora de firma
// parseable, digest del certificado y emisor/serial.
func TestSign_PropiedadesXAdES(t *testing.T) {
	signed, mat := signTestInvoice(t)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))

	st := doc.FindElement("//etsi:SigningTime")
	require.NotNil(t, st)
	when, err := time.Parse("2006-01-02T15:04:05.000Z", st.Text())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), when, time.Minute)

	serial := doc.FindElement("//etsi:IssuerSerial/ds:X509SerialNumber")
	require.NotNil(t, serial)
	assert.Equal(t, mat.Certificate.SerialNumber.String(), serial.Text())

	certDigest := doc.FindElement("//etsi:CertDigest/ds:DigestValue")
	require.NotNil(t, certDigest)
	wantDigest, _, _ := signer.CertDigestAndIssuerSerial(mat.Certificate)
	assert.Equal(t, wantDigest, certDigest.Text())
}

func TestSign_DeclaracionXMLPreservada(t *testing.T) {
	signed, _ := signTestInvoice(t)
	assert.True(t, bytes.HasPrefix(signed, []byte("<?xml")), "la salida inicia con la declaración XML")
}

// TestSign_IDsUnicosPorLlamada dos firmas del mismo documento llevan IDs distintos.
func TestSign_IDsUnicosPorLlamada(t *testing.T) {
	key, cert := testKeyAndCert(t)
	mat := &entity.KeyMaterial{PrivateKey: key, Certificate: cert}
	svc := signer.NewXAdESService()

	s1, err := svc.Sign([]byte(testInvoiceXML), mat)
	require.NoError(t, err)
	s2, err := svc.Sign([]byte(testInvoiceXML), mat)
	require.NoError(t, err)

	id1 := signatureID(t, s1)
	id2 := signatureID(t, s2)
	assert.NotEqual(t, id1, id2)
}

// TestSign_DocumentoMinimo firma de extremo a extremo con el material del
// contenedor P12 de prueba: un solo Signature, SignatureValue verificable y el
// contenido original byte a byte dentro del documento firmado.
func TestSign_DocumentoMinimo(t *testing.T) {
	mat, err := signer.NewP12Loader().Load(testP12(t), testP12Password)
	require.NoError(t, err)

	signed, err := signer.NewXAdESService().Sign([]byte(`<Doc><Item>1</Item></Doc>`), mat)
	require.NoError(t, err)

	assert.Equal(t, 1, bytes.Count(signed, []byte("<ds:Signature ")), "exactamente un Signature")
	assert.Contains(t, string(signed), "<Item>1</Item>", "el contenido original no se altera")

	start := bytes.Index(signed, []byte("<ds:SignedInfo"))
	end := bytes.Index(signed, []byte("</ds:SignedInfo>"))
	require.True(t, start >= 0 && end > start)
	canonical, err := signer.CanonicalizeXML(signed[start : end+len("</ds:SignedInfo>")])
	require.NoError(t, err)
	digest := signer.DigestSHA256(canonical)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	sigValue := doc.FindElement("//ds:SignatureValue")
	require.NotNil(t, sigValue)
	sig, err := base64.StdEncoding.DecodeString(sigValue.Text())
	require.NoError(t, err)

	pub, ok := mat.Certificate.PublicKey.(*rsa.PublicKey)
	require.True(t, ok)
	assert.NoError(t, rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig),
		"la firma verifica contra el certificado embebido")
}

// ── Errores ───────────────────────────────────────────────────────────────────

func TestSign_XMLVacio(t *testing.T) {
	key, cert := testKeyAndCert(t)
	mat := &entity.KeyMaterial{PrivateKey: key, Certificate: cert}
	_, err := signer.NewXAdESService().Sign(nil, mat)
	assert.Error(t, err)
}

func TestSign_MaterialIncompleto(t *testing.T) {
	svc := signer.NewXAdESService()
	_, err := svc.Sign([]byte(testInvoiceXML), nil)
	assert.Error(t, err)

	_, cert := testKeyAndCert(t)
	_, err = svc.Sign([]byte(testInvoiceXML), &entity.KeyMaterial{Certificate: cert})
	assert.Error(t, err)
}

func TestSign_XMLMalformado(t *testing.T) {
	key, cert := testKeyAndCert(t)
	mat := &entity.KeyMaterial{PrivateKey: key, Certificate: cert}
	_, err := signer.NewXAdESService().Sign([]byte(`<factura><sin-cierre>`), mat)
	assert.Error(t, err, "nunca se devuelve un documento parcialmente firmado")
}

func signatureID(t *testing.T, signed []byte) string {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	sig := doc.FindElement("//ds:Signature")
	require.NotNil(t, sig)
	return sig.SelectAttrValue("Id", "")
}
