package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShareSetDigest(t *testing.T) {
	a := ShareSetDigest([]byte("ab"), []byte("c"), []byte("d"))
	require.Len(t, a, 64)
	require.Equal(t, a, ShareSetDigest([]byte("ab"), []byte("c"), []byte("d")))
	require.NotEqual(t, a, ShareSetDigest([]byte("a"), []byte("bc"), []byte("d")))
}
