package encryption

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAEADRoundTripBindsAAD(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	plain := []byte("share bytes")

	ct, err := AEADEncrypt(key, plain, []byte("user-1/0"))
	require.NoError(t, err)
	require.NotContains(t, string(ct), string(plain))

	got, err := AEADDecrypt(key, ct, []byte("user-1/0"))
	require.NoError(t, err)
	require.Equal(t, plain, got)

	_, err = AEADDecrypt(key, ct, []byte("user-1/1"))
	require.Error(t, err)

	_, err = AEADDecrypt(key, ct[:4], nil)
	require.Error(t, err)
}
