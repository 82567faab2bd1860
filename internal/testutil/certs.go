package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// CA signs short-lived certificates for TLS tests.
type CA struct {
	Cert     *x509.Certificate
	CertFile string
	key      *ecdsa.PrivateKey
	dir      string
}

type CertFiles struct {
	Cert     *x509.Certificate
	CertFile string
	KeyFile  string
}

func NewCA(t *testing.T, commonName string) *CA {
	t.Helper()
	key := newKey(t)
	template := certTemplate(commonName)
	template.IsCA = true
	template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign

	cert, der := sign(t, template, template, key, key)
	dir := t.TempDir()
	return &CA{
		Cert:     cert,
		CertFile: writePEM(t, dir, "ca.pem", "CERTIFICATE", der),
		key:      key,
		dir:      dir,
	}
}

// IssueServer returns a serving certificate valid for host and 127.0.0.1.
func (ca *CA) IssueServer(t *testing.T, host string) CertFiles {
	t.Helper()
	template := certTemplate(host)
	template.DNSNames = []string{host}
	template.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
	template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	return ca.issue(t, template, "server")
}

func (ca *CA) IssueClient(t *testing.T, commonName string) CertFiles {
	t.Helper()
	template := certTemplate(commonName)
	template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	return ca.issue(t, template, "client")
}

func (ca *CA) issue(t *testing.T, template *x509.Certificate, name string) CertFiles {
	t.Helper()
	key := newKey(t)
	template.KeyUsage = x509.KeyUsageDigitalSignature
	cert, der := sign(t, template, ca.Cert, key, ca.key)
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return CertFiles{
		Cert:     cert,
		CertFile: writePEM(t, ca.dir, name+".pem", "CERTIFICATE", der),
		KeyFile:  writePEM(t, ca.dir, name+".key", "EC PRIVATE KEY", keyDER),
	}
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func sign(t *testing.T, template *x509.Certificate, parent *x509.Certificate, key *ecdsa.PrivateKey, signer *ecdsa.PrivateKey) (*x509.Certificate, []byte) {
	t.Helper()
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, signer)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert, der
}

func writePEM(t *testing.T, dir string, name string, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func certTemplate(commonName string) *x509.Certificate {
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		serial = big.NewInt(time.Now().UnixNano())
	}
	return &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		BasicConstraintsValid: true,
	}
}
