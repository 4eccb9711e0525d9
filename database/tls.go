package dbops

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"os/user"
	"path/filepath"

	"github.com/pkg/errors"
)

// Builds the TLS client configuration for a given sslmode. go-pg only
// accepts a raw *tls.Config, so the libpq sslmode semantics have to be
// reproduced here; the mode handling follows lib/pq's ssl.go
// (https://github.com/lib/pq/blob/master/ssl.go) to behave the way
// PostgreSQL users expect. Returns nil for the disable mode.
func newTLSConfig(mode, host, certFile, keyFile, rootCAFile string) (*tls.Config, error) {
	if mode == "" || mode == "disable" {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		// PostgreSQL releases before 9.5 (and Redshift) initiate
		// renegotiations.
		Renegotiation: tls.RenegotiateFreelyAsClient,
	}

	switch mode {
	case "require":
		// Go's built-in verification is all-or-nothing, so it is turned
		// off and the chain check below substitutes for it when a root
		// CA file is around (libpq promotes require to verify-ca then).
		cfg.InsecureSkipVerify = true
		if rootCAFile != "" {
			if _, err := os.Stat(rootCAFile); err == nil {
				cfg.VerifyConnection = chainVerifier(cfg)
			}
		}
	case "verify-ca":
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = chainVerifier(cfg)
	case "verify-full":
		cfg.ServerName = host
	default:
		return nil, errors.Errorf("unsupported sslmode value %s", mode)
	}

	if err := loadClientKeyPair(cfg, certFile, keyFile); err != nil {
		return nil, err
	}
	if err := loadRootCAs(cfg, rootCAFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Returns a connection verifier that checks the peer chain against the
// configured roots without checking the host name. This is the contract
// of verify-ca. The roots are read from cfg at handshake time because
// they are loaded after the verifier is installed.
func chainVerifier(cfg *tls.Config) func(tls.ConnectionState) error {
	return func(state tls.ConnectionState) error {
		opts := x509.VerifyOptions{
			DNSName:       state.ServerName,
			Roots:         cfg.RootCAs,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range state.PeerCertificates[1:] {
			opts.Intermediates.AddCert(cert)
		}
		_, err := state.PeerCertificates[0].Verify(opts)
		return err
	}
}

// Loads the client certificate and key. Blank paths fall back to the
// ~/.postgresql convention of libpq. A missing certificate file is not an
// error; a key file readable by the group or others is.
func loadClientKeyPair(cfg *tls.Config, certFile, keyFile string) error {
	var home string
	if u, err := user.Current(); err == nil {
		home = u.HomeDir
	}

	if certFile == "" && home != "" {
		certFile = filepath.Join(home, ".postgresql", "postgresql.crt")
	}
	if certFile == "" {
		return nil
	}
	if _, err := os.Stat(certFile); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "failed to stat the certificate file %s", certFile)
	}

	if keyFile == "" && home != "" {
		keyFile = filepath.Join(home, ".postgresql", "postgresql.key")
	}
	if keyFile != "" {
		info, err := os.Stat(keyFile)
		if err != nil {
			return errors.Wrapf(err, "failed to stat the key file %s", keyFile)
		}
		if info.Mode().Perm()&0o077 != 0 {
			return errors.Errorf("key file %s has too large permissions", keyFile)
		}
	}

	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return errors.WithStack(err)
	}
	cfg.Certificates = []tls.Certificate{pair}
	return nil
}

// Loads the root CA pool from the given file, if any.
func loadRootCAs(cfg *tls.Config, rootCAFile string) error {
	if rootCAFile == "" {
		return nil
	}

	pemData, err := os.ReadFile(rootCAFile)
	if err != nil {
		return errors.Wrapf(err, "failed to read root CA certificate file %s", rootCAFile)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		return errors.Errorf("unable to parse root CA certificate %s", rootCAFile)
	}
	cfg.RootCAs = pool
	return nil
}
