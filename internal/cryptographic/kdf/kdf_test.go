package kdf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShareKeyIsPerUser(t *testing.T) {
	master := []byte("0123456789abcdef0123456789abcdef")

	a1, err := ShareKey(master, "alice")
	require.NoError(t, err)
	a2, err := ShareKey(master, "alice")
	require.NoError(t, err)
	b, err := ShareKey(master, "bob")
	require.NoError(t, err)

	require.Len(t, a1, 32)
	require.Equal(t, a1, a2)
	require.NotEqual(t, a1, b)
}
