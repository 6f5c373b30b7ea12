package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func generateTestTLSCert(t *testing.T) *tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-agent"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return &tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}
}

func TestSaveLoadCertToFile(t *testing.T) {
	tmpDir := t.TempDir()
	cert := generateTestTLSCert(t)

	if err := SaveCertToFile(cert, tmpDir); err != nil {
		t.Fatalf("SaveCertToFile() error = %v", err)
	}

	loaded, err := LoadCertFromFile(tmpDir)
	if err != nil {
		t.Fatalf("LoadCertFromFile() error = %v", err)
	}
	if loaded.Leaf.Subject.CommonName != cert.Leaf.Subject.CommonName {
		t.Errorf("loaded cert CN mismatch: expected %s, got %s", cert.Leaf.Subject.CommonName, loaded.Leaf.Subject.CommonName)
	}
}

func TestSaveLoadCACertToFile(t *testing.T) {
	tmpDir := t.TempDir()
	ca := generateTestCert(t, time.Now().Add(10*365*24*time.Hour))

	if err := SaveCACertToFile(ca.Raw, tmpDir); err != nil {
		t.Fatalf("SaveCACertToFile() error = %v", err)
	}

	loaded, err := LoadCACertFromFile(tmpDir)
	if err != nil {
		t.Fatalf("LoadCACertFromFile() error = %v", err)
	}
	if !loaded.Equal(ca) {
		t.Error("loaded CA cert should match original")
	}
}

func generateTestCert(t *testing.T, notAfter time.Time) *x509.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-agent"},
		NotBefore:    time.Now(),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert
}

func TestCertExists(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "nodeagent-cert-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	if CertExists(tmpDir) {
		t.Error("certificate should not exist initially")
	}

	certPath := filepath.Join(tmpDir, "node.crt")
	keyPath := filepath.Join(tmpDir, "node.key")
	caPath := filepath.Join(tmpDir, "ca.crt")

	_ = os.WriteFile(certPath, []byte("cert"), 0600)
	_ = os.WriteFile(keyPath, []byte("key"), 0600)
	_ = os.WriteFile(caPath, []byte("ca"), 0600)

	if !CertExists(tmpDir) {
		t.Error("certificate should exist after creating files")
	}

	os.Remove(keyPath)

	if CertExists(tmpDir) {
		t.Error("certificate should not exist with missing key file")
	}
}

func TestCertNeedsRotation(t *testing.T) {
	tests := []struct {
		name     string
		notAfter time.Time
		needsRot bool
	}{
		{"expiring in 1 day", time.Now().Add(24 * time.Hour), true},
		{"expiring in 29 days", time.Now().Add(29 * 24 * time.Hour), true},
		{"expiring in 31 days", time.Now().Add(31 * 24 * time.Hour), false},
		{"expiring in 60 days", time.Now().Add(60 * 24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := &x509.Certificate{NotAfter: tt.notAfter}
			if got := CertNeedsRotation(cert); got != tt.needsRot {
				t.Errorf("CertNeedsRotation() = %v, want %v", got, tt.needsRot)
			}
		})
	}

	if !CertNeedsRotation(nil) {
		t.Error("nil certificate should need rotation")
	}
}

func TestGetCertExpiry(t *testing.T) {
	expectedExpiry := time.Now().Add(90 * 24 * time.Hour)
	cert := &x509.Certificate{NotAfter: expectedExpiry}

	if expiry := GetCertExpiry(cert); !expiry.Equal(expectedExpiry) {
		t.Errorf("GetCertExpiry() = %v, want %v", expiry, expectedExpiry)
	}
	if !GetCertExpiry(nil).IsZero() {
		t.Error("nil certificate should return zero time")
	}
}

func TestGetCertTimeRemaining(t *testing.T) {
	expectedRemaining := 45 * 24 * time.Hour
	cert := &x509.Certificate{NotAfter: time.Now().Add(expectedRemaining)}

	remaining := GetCertTimeRemaining(cert)
	diff := remaining - expectedRemaining
	if diff < -time.Second || diff > time.Second {
		t.Errorf("GetCertTimeRemaining() ~%v, got %v (diff: %v)", expectedRemaining, remaining, diff)
	}
	if GetCertTimeRemaining(nil) != 0 {
		t.Error("nil certificate should return zero duration")
	}
}

func TestValidateCertChain(t *testing.T) {
	ca := generateTestCert(t, time.Now().Add(10*365*24*time.Hour))

	if err := ValidateCertChain(ca, ca); err != nil {
		t.Errorf("self-signed chain validation failed: %v", err)
	}
	if err := ValidateCertChain(nil, ca); err == nil {
		t.Error("validation should fail with nil certificate")
	}
	if err := ValidateCertChain(ca, nil); err == nil {
		t.Error("validation should fail with nil CA")
	}
}

func TestGetCertInfo(t *testing.T) {
	cert := generateTestCert(t, time.Now().Add(90*24*time.Hour))

	info := GetCertInfo(cert)
	if info["subject"] != "test-agent" {
		t.Errorf("expected subject 'test-agent', got %v", info["subject"])
	}
	if info["is_ca"] != true {
		t.Error("test certificate is marked as a CA")
	}

	nilInfo := GetCertInfo(nil)
	if _, hasError := nilInfo["error"]; !hasError {
		t.Error("info for nil certificate should contain error")
	}
}

func TestGetCertDir(t *testing.T) {
	certDir, err := GetCertDir("agent_A")
	if err != nil {
		t.Fatalf("failed to get cert dir: %v", err)
	}

	expected := "agent-agent_A"
	if filepath.Base(certDir) != expected {
		t.Errorf("expected cert dir to end with %s, got %s", expected, certDir)
	}
}

func TestRemoveCerts(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "nodeagent-cert-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	_ = os.WriteFile(filepath.Join(tmpDir, "node.crt"), []byte("cert"), 0600)
	_ = os.WriteFile(filepath.Join(tmpDir, "node.key"), []byte("key"), 0600)

	if err := RemoveCerts(tmpDir); err != nil {
		t.Fatalf("failed to remove certificates: %v", err)
	}
	if _, err := os.Stat(tmpDir); !os.IsNotExist(err) {
		t.Error("certificate directory should not exist after removal")
	}
}
