package certificate

import (
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateWriteLoad(t *testing.T) {
	p, err := NewEd25519Party("party-1", time.Hour)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(p.DER)
	require.NoError(t, err)
	require.Equal(t, "party-1", cert.Subject.CommonName)

	dir := t.TempDir()
	require.NoError(t, WriteParty(dir, 1, p))

	loaded, err := LoadParty(dir, 1)
	require.NoError(t, err)
	require.Equal(t, p.DER, loaded.DER)
	require.NotNil(t, loaded.TLS.PrivateKey)

	_, err = LoadParty(dir, 2)
	require.Error(t, err)
}
