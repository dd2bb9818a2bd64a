// Canonicalización C14N y digest SHA-256. La verificación de la firma depende
// de que el mismo documento lógico produzca siempre los mismos bytes canónicos.

package signer

import (
	"bytes"
	"crypto/sha256"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/ucarion/c14n"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// CanonicalizeXML serializa el documento según REC-xml-c14n (sin comentarios).
// Acepta entradas declaradas en ISO-8859-1 y las transcodifica a UTF-8.
func CanonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	dec.CharsetReader = charsetReader
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, fmt.Errorf("signer: canonicalizar XML: %w", err)
	}
	return out, nil
}

// DigestSHA256 calcula el digest SHA-256 de los bytes dados.
func DigestSHA256(data []byte) [sha256.Size]byte {
	return sha256.Sum256(data)
}

// charsetReader soporta comprobantes declarados en ISO-8859-1 (algunos emisores
// antiguos aún los generan así).
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch {
	case strings.EqualFold(charset, "UTF-8") || charset == "":
		return input, nil
	case strings.EqualFold(charset, "ISO-8859-1") || strings.EqualFold(charset, "ISO8859-1"):
		return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("signer: charset no soportado: %s", charset)
	}
}
