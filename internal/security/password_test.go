package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	ok, err := VerifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHashesAreSalted(t *testing.T) {
	first, err := HashPassword("same password")
	require.NoError(t, err)
	second, err := HashPassword("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	ok, err := VerifyPassword("anything", []byte("not-an-encoded-hash"))
	assert.Error(t, err)
	assert.False(t, ok)
}

// The encoded form is dollar-separated; every section must survive the
// parse or stored credentials become unverifiable.
func TestVerifyPasswordParsesEncodedSections(t *testing.T) {
	hash, err := HashPassword("segmented")
	require.NoError(t, err)

	sections := strings.Split(string(hash), "$")
	require.Len(t, sections, 6)
	assert.Equal(t, "argon2id", sections[1])
	assert.Equal(t, "v=19", sections[2])

	ok, err := VerifyPassword("segmented", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("segmented", []byte("$argon2i$"+strings.Join(sections[2:], "$")))
	assert.Error(t, err)
	assert.False(t, ok)
}
