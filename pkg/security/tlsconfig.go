package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/cuemby/nodeagent/pkg/log"
)

// Material is the TLS material the transport's mTLS dial needs: the
// agent's own certificate/key pair plus the CA pool to verify the server
// against. It is loaded once from a certificate directory at startup.
type Material struct {
	Certificate tls.Certificate
	RootCAs     *x509.CertPool
}

// LoadMaterial loads the agent's node certificate, key, and CA certificate
// from certDir, as produced by SaveCertToFile/SaveCACertToFile (or
// provisioned out of band).
func LoadMaterial(certDir string) (*Material, error) {
	cert, err := LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load node certificate: %w", err)
	}

	caCert, err := LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	return &Material{Certificate: *cert, RootCAs: pool}, nil
}

// ValidateTLSConfig checks whether an agent's TLS settings are internally
// consistent: insecure mode combined with partial certificate material is
// contradictory, but per the agent's established behavior this is a
// warning, not a startup failure — the caller decides what to actually
// dial with.
func ValidateTLSConfig(insecure bool, caPath, certPath, keyPath string) error {
	certPaths := []string{caPath, certPath, keyPath}
	anyProvided := false
	allProvided := true
	for _, p := range certPaths {
		if p == "" {
			allProvided = false
		} else {
			anyProvided = true
		}
	}

	if insecure && anyProvided {
		return fmt.Errorf("insecure mode is set but certificate file paths were also provided; certificate material will be ignored")
	}
	if !insecure && anyProvided && !allProvided {
		return fmt.Errorf("partial certificate material provided (ca=%q cert=%q key=%q); all three paths are required for mTLS", caPath, certPath, keyPath)
	}
	if !insecure && !anyProvided {
		return fmt.Errorf("no certificate material provided and insecure mode is not set; the transport dial will fail")
	}
	return nil
}

// WarnIfConflicting runs ValidateTLSConfig and logs the result as a
// warning rather than returning it, matching the agent's behavior of
// logging a conflicting TLS configuration and proceeding anyway.
func WarnIfConflicting(insecure bool, caPath, certPath, keyPath string) {
	if err := ValidateTLSConfig(insecure, caPath, certPath, keyPath); err != nil {
		log.WithComponent("security").Warn().Err(err).Msg("TLS configuration looks inconsistent")
	}
}
