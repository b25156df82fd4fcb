package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPasswordDeterministic(t *testing.T) {
	salt, err := RandBytes(SaltLen)
	require.NoError(t, err)

	h1 := HashPassword([]byte("correct horse"), salt)
	h2 := HashPassword([]byte("correct horse"), salt)
	require.Equal(t, h1, h2)
	require.Len(t, h1, int(argonKeyLen))
}

func TestVerifyPassword(t *testing.T) {
	salt, err := RandBytes(SaltLen)
	require.NoError(t, err)
	hash := HashPassword([]byte("secret"), salt)

	require.True(t, VerifyPassword([]byte("secret"), salt, hash))
	require.False(t, VerifyPassword([]byte("Secret"), salt, hash))
	require.False(t, VerifyPassword([]byte(""), salt, hash))
}

func TestSaltChangesHash(t *testing.T) {
	s1, err := RandBytes(SaltLen)
	require.NoError(t, err)
	s2, err := RandBytes(SaltLen)
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)

	require.NotEqual(t, HashPassword([]byte("pw"), s1), HashPassword([]byte("pw"), s2))
}

func TestRandBytesLengthAndVariety(t *testing.T) {
	a, err := RandBytes(32)
	require.NoError(t, err)
	require.Len(t, a, 32)

	b, err := RandBytes(32)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
