// Package `x509io` contains functions to load certs from disk.
package x509io

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
)

// `LoadCombinedCert()` loads a combined cert and key.  PEM files can be
// concatenated `cat cert.pem privkey.pem > combined.pem`.
func LoadCombinedCert(path string) (cert tls.Certificate, err error) {
	pem, err := ioutil.ReadFile(path)
	if err != nil {
		return cert, err
	}
	// X509KeyPair() handles combined PEM.  It skips unexpected PEM blocks.
	return tls.X509KeyPair(pem, pem)
}

// `LoadCABundle()` loads PEM certificates as a `CertPool`, which can be used
// as a CA for client certs.
func LoadCABundle(path string) (*x509.CertPool, error) {
	pem, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ca := x509.NewCertPool()
	if !ca.AppendCertsFromPEM(pem) {
		err := fmt.Errorf("failed to parse certs from `%s`", path)
		return nil, err
	}
	return ca, nil
}
