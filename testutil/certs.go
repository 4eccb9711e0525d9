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

	"github.com/stretchr/testify/require"
)

// Writes a PEM block to a file in the test's temporary directory and
// returns its path.
func writePEM(tb testing.TB, dir, name, blockType string, der []byte, mode os.FileMode) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(tb, os.WriteFile(path, data, mode))
	return path
}

// Generates a throwaway PKI for testing secure database connections: a
// self-signed root CA and a localhost server certificate signed by it.
// The PEM files land in a per-test temporary directory; the key file gets
// the 0600 permissions the TLS loader insists on.
func CreateTestCerts(tb testing.TB) (serverCert, serverKey, rootCert string) {
	tb.Helper()
	dir := tb.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(tb, err)

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(42),
		Subject:               pkix.Name{CommonName: "sipdb test root CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(tb, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(tb, err)

	srvKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(tb, err)

	srvTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(43),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	srvDER, err := x509.CreateCertificate(rand.Reader, srvTemplate, caCert, &srvKey.PublicKey, caKey)
	require.NoError(tb, err)

	srvKeyDER, err := x509.MarshalECPrivateKey(srvKey)
	require.NoError(tb, err)

	serverCert = writePEM(tb, dir, "server-cert.pem", "CERTIFICATE", srvDER, 0o644)
	serverKey = writePEM(tb, dir, "server-key.pem", "EC PRIVATE KEY", srvKeyDER, 0o600)
	rootCert = writePEM(tb, dir, "root-cert.pem", "CERTIFICATE", caDER, 0o644)
	return serverCert, serverKey, rootCert
}
