package certificate

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// Party is the certificate and private key a protocol party presents on
// its connections.
type Party struct {
	// DER is the raw certificate other parties pin.
	DER []byte
	TLS tls.Certificate
}

// NewEd25519Party generates a self-signed certificate for one party of one
// session.
func NewEd25519Party(name string, ttl time.Duration) (*Party, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: name},
		DNSNames:     []string{"localhost"},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(ttl),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	return &Party{
		DER: der,
		TLS: tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv},
	}, nil
}

// LoadParty reads cert{index}.der and key{index}.der (PKCS#8) from dir.
func LoadParty(dir string, index int) (*Party, error) {
	der, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("cert%d.der", index)))
	if err != nil {
		return nil, err
	}
	keyDER, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("key%d.der", index)))
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKCS8PrivateKey(keyDER)
	if err != nil {
		return nil, fmt.Errorf("parse key%d.der: %w", index, err)
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		return nil, fmt.Errorf("parse cert%d.der: %w", index, err)
	}

	return &Party{
		DER: der,
		TLS: tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key},
	}, nil
}

// WriteParty stores p as cert{index}.der and key{index}.der in dir.
func WriteParty(dir string, index int, p *Party) error {
	keyDER, err := x509.MarshalPKCS8PrivateKey(p.TLS.PrivateKey)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("cert%d.der", index)), p.DER, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf("key%d.der", index)), keyDER, 0o600)
}
