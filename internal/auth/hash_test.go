package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherRoundTrip(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	digest, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", digest)

	require.True(t, hasher.Verify("correct horse battery staple", digest))
	require.False(t, hasher.Verify("correct horse battery staples", digest))
}

func TestPasswordHasherDistinctSalts(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	first, err := hasher.Hash("same password")
	require.NoError(t, err)
	second, err := hasher.Hash("same password")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.True(t, hasher.Verify("same password", first))
	require.True(t, hasher.Verify("same password", second))
}

func TestPasswordHasherVerifyMalformedDigest(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	require.False(t, hasher.Verify("anything", ""))
	require.False(t, hasher.Verify("anything", "not-a-bcrypt-digest"))
	require.False(t, hasher.Verify("anything", "$argon2id$v=19$m=65536,t=1,p=4$abc$def"))
}

func TestPasswordHasherClampsCost(t *testing.T) {
	hasher := NewPasswordHasher(99)
	require.Equal(t, DefaultBcryptCost, hasher.cost)

	hasher = NewPasswordHasher(0)
	require.Equal(t, DefaultBcryptCost, hasher.cost)
}
