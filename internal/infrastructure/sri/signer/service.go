// Servicio de firma digital XAdES-BES para comprobantes electrónicos SRI.
// Añade <ds:Signature> como último hijo del elemento raíz del documento.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/vendosri/firmador-sri/internal/domain/entity"
)

// XAdESService implementa la firma XAdES-BES enveloped.
type XAdESService struct{}

// NewXAdESService crea el servicio.
func NewXAdESService() *XAdESService {
	return &XAdESService{}
}

// signatureContext resultado de las etapas previas al ensamblado. El ensamblado
// solo acepta un contexto completo: si alguna etapa falló, nunca se toca el
// documento de entrada.
type signatureContext struct {
	signatureID       string
	docDigestB64      string
	signedInfoXML     string
	signatureValueB64 string
	certB64           string
	certDigestB64     string
	issuerName        string
	serialNumber      string
}

// Sign firma el XML con el material de la empresa y devuelve el documento con
// el nodo ds:Signature embebido como último hijo de la raíz.
func (s *XAdESService) Sign(xmlBytes []byte, mat *entity.KeyMaterial) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("signer: XML vacío")
	}
	if mat == nil || mat.PrivateKey == nil || mat.Certificate == nil {
		return nil, fmt.Errorf("signer: material de firma incompleto")
	}

	sigCtx, err := s.buildContext(xmlBytes, mat)
	if err != nil {
		return nil, err
	}
	return s.embed(xmlBytes, sigCtx)
}

// buildContext ejecuta las etapas digest -> SignedInfo -> firma -> certificado.
func (s *XAdESService) buildContext(xmlBytes []byte, mat *entity.KeyMaterial) (*signatureContext, error) {
	// 1) Digest C14N del documento completo (aún sin firma, que es exactamente
	// lo que la transformada enveloped dejará al verificar).
	canonicalDoc, err := CanonicalizeXML(xmlBytes)
	if err != nil {
		return nil, err
	}
	docDigest := DigestSHA256(canonicalDoc)
	docDigestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// Identificador único por llamada: nunca se reutiliza entre documentos.
	signatureID := "Signature-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	// 2) SignedInfo (C14N, rsa-sha256, Reference al documento completo)
	signedInfoXML := s.buildSignedInfo(docDigestB64)

	// 3) Lo que la firma cubre es el SignedInfo canonicalizado, no el documento.
	canonicalSignedInfo, err := CanonicalizeXML([]byte(signedInfoXML))
	if err != nil {
		return nil, err
	}
	signHash := DigestSHA256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, mat.PrivateKey, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("signer: firmar SignedInfo: %w", err)
	}

	// 4) Certificado DER en Base64 + digest y emisor/serial para SigningCertificate.
	certB64 := base64.StdEncoding.EncodeToString(mat.Certificate.Raw)
	certDigestB64, issuerName, serial := CertDigestAndIssuerSerial(mat.Certificate)

	return &signatureContext{
		signatureID:       signatureID,
		docDigestB64:      docDigestB64,
		signedInfoXML:     signedInfoXML,
		signatureValueB64: base64.StdEncoding.EncodeToString(signatureValue),
		certB64:           certB64,
		certDigestB64:     certDigestB64,
		issuerName:        issuerName,
		serialNumber:      serial,
	}, nil
}

// buildSignedInfo genera el XML de SignedInfo. Referencia URI="" al documento
// completo con transformada enveloped.
func (s *XAdESService) buildSignedInfo(docDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA256 + `"/>`)
	sb.WriteString(`<ds:Reference URI="">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

// buildSignatureXML arma el bloque ds:Signature completo (XAdES-BES).
// La hora de firma se captura aquí, en el ensamblado, no al inicio de la llamada.
func (s *XAdESService) buildSignatureXML(c *signatureContext) string {
	signingTime := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `" xmlns:etsi="` + NamespaceXAdES + `" Id="` + c.signatureID + `">`)
	sb.WriteString(c.signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + c.signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + c.certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	// XAdES-BES: propiedades calificadoras (hora de firma, digest del certificado, emisor/serial)
	sb.WriteString(`<ds:Object><etsi:QualifyingProperties Target="#` + c.signatureID + `">`)
	sb.WriteString(`<etsi:SignedProperties Id="` + c.signatureID + `-signedprops">`)
	sb.WriteString(`<etsi:SignedSignatureProperties>`)
	sb.WriteString(`<etsi:SigningTime>` + signingTime + `</etsi:SigningTime>`)
	sb.WriteString(`<etsi:SigningCertificate><etsi:Cert>`)
	sb.WriteString(`<etsi:CertDigest><ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + c.certDigestB64 + `</ds:DigestValue></etsi:CertDigest>`)
	sb.WriteString(`<etsi:IssuerSerial><ds:X509IssuerName>` + escapeXML(c.issuerName) + `</ds:X509IssuerName>`)
	sb.WriteString(`<ds:X509SerialNumber>` + c.serialNumber + `</ds:X509SerialNumber></etsi:IssuerSerial>`)
	sb.WriteString(`</etsi:Cert></etsi:SigningCertificate>`)
	sb.WriteString(`</etsi:SignedSignatureProperties></etsi:SignedProperties></etsi:QualifyingProperties></ds:Object>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

// embed parsea el documento, añade el ds:Signature como último hijo de la raíz
// y serializa preservando la declaración XML. Todo-o-nada: si el parseo falla,
// el documento original queda intacto.
func (s *XAdESService) embed(xmlBytes []byte, c *signatureContext) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("signer: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("signer: documento sin raíz")
	}

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(s.buildSignatureXML(c)); err != nil {
		return nil, fmt.Errorf("signer: parsear nodo Signature: %w", err)
	}
	sigRoot := sigDoc.Root()
	if sigRoot == nil {
		return nil, fmt.Errorf("signer: nodo Signature sin raíz")
	}
	root.AddChild(sigRoot)

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("signer: serializar XML firmado: %w", err)
	}
	signed := out.Bytes()
	if !bytes.HasPrefix(bytes.TrimLeft(signed, " \t\r\n"), []byte("<?xml")) {
		signed = append([]byte(`<?xml version="1.0" encoding="UTF-8"?>`+"\n"), signed...)
	}
	return signed, nil
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
