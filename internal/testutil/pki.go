// Package testutil contiene helpers compartidos por los tests de varios paquetes:
// una PKI efímera con SKIs conocidos y un provider OAuth 1.0a falso.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// PKIOptions configura NewPKI. SKIs vacíos => valores fijos por defecto.
type PKIOptions struct {
	CASKI    []byte
	LeafSKI  []byte
	DNSNames []string
	NotAfter time.Time
}

// Default SKIs used by NewPKI.
var (
	DefaultCASKI   = []byte{0xA5, 0xEF, 0x0B, 0x11, 0xCE, 0xC0, 0x41, 0x03, 0xA3, 0x4A}
	DefaultLeafSKI = []byte{0x0D, 0x44, 0x5C, 0x16, 0x53, 0x44, 0xC1, 0x82, 0x7E, 0x1D}
)

// PKI es una CA + un certificado hoja para 127.0.0.1/localhost.
type PKI struct {
	CA      *x509.Certificate
	Leaf    *x509.Certificate
	Pool    *x509.CertPool
	LeafTLS tls.Certificate
}

// NewPKI genera la CA y la hoja firmada por ella.
func NewPKI(t testing.TB, opts PKIOptions) *PKI {
	t.Helper()
	if opts.CASKI == nil {
		opts.CASKI = DefaultCASKI
	}
	if opts.LeafSKI == nil {
		opts.LeafSKI = DefaultLeafSKI
	}
	if opts.DNSNames == nil {
		opts.DNSNames = []string{"localhost"}
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Now().Add(time.Hour)
	}
	notBefore := time.Now().Add(-time.Hour)

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ca key: %v", err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA"},
		NotBefore:             notBefore,
		NotAfter:              opts.NotAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		SubjectKeyId:          opts.CASKI,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("ca cert: %v", err)
	}
	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parse ca: %v", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("leaf key: %v", err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "backchannel"},
		NotBefore:    notBefore,
		NotAfter:     opts.NotAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     opts.DNSNames,
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		SubjectKeyId: opts.LeafSKI,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, ca, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("leaf cert: %v", err)
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(ca)

	return &PKI{
		CA:   ca,
		Leaf: leaf,
		Pool: pool,
		LeafTLS: tls.Certificate{
			Certificate: [][]byte{leafDER, caDER},
			PrivateKey:  leafKey,
			Leaf:        leaf,
		},
	}
}

// Chain returns the presented chain: leaf first, then the CA.
func (p *PKI) Chain() []*x509.Certificate {
	return []*x509.Certificate{p.Leaf, p.CA}
}

// StartTLSServer arranca un httptest.Server que presenta la cadena de la PKI.
// Se cierra solo al terminar el test.
func (p *PKI) StartTLSServer(t testing.TB, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(h)
	srv.TLS = &tls.Config{Certificates: []tls.Certificate{p.LeafTLS}}
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

// CAPEM returns the CA certificate PEM-encoded, as a root_ca_file would hold it.
func (p *PKI) CAPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: p.CA.Raw})
}
