/*
Package security loads the TLS material the agent needs to dial its server
over mTLS: a node certificate, its private key, and the CA that signed the
server's own certificate.

This package does not issue certificates. Certificate authority operation
is a control-plane concern outside this agent's scope; security only
consumes certificate material that has already been provisioned into a
certificate directory (by an operator, a provisioning tool, or a sidecar),
the way LoadCertFromFile/LoadCACertFromFile expect it to be laid out:

	<cert-dir>/
	├── node.crt
	├── node.key
	└── ca.crt

# Usage

	certDir, err := security.GetCertDir(agentName)
	if err != nil {
		return err
	}

	material, err := security.LoadMaterial(certDir)
	if err != nil {
		return err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{material.Certificate},
		RootCAs:      material.RootCAs,
	}

# TLS configuration conflicts

Before dialing, the agent validates that its insecure flag and certificate
paths are not contradictory (insecure mode with certificate paths set, or
partial certificate material with insecure unset). This never blocks
startup — ValidateTLSConfig's error is logged as a warning and the agent
proceeds with whatever configuration it was given, matching how the
original source handles this case.

# Certificate rotation

CertNeedsRotation flags a certificate once less than 30 days remain before
expiry; the agent logs this but does not rotate certificates itself — that
remains an operator or provisioning-tool responsibility.
*/
package security
