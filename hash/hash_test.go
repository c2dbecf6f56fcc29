package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSum256MatchesSum(t *testing.T) {
	a := []byte("left")
	b := []byte("right")
	require.Equal(t, Sum(append(append([]byte{}, a...), b...)), Sum256(a, b))
	require.Equal(t, Sum(nil), Sum256())
}

func TestSum256Reuse(t *testing.T) {
	first := Sum256([]byte("one"))
	second := Sum256([]byte("one"))
	require.Equal(t, first, second)
}
