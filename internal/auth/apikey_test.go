package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestKeyMatchesPlaintext(t *testing.T) {
	assert.True(t, keyMatches("upstream-key", "upstream-key"))
	assert.False(t, keyMatches("upstream-key", "wrong"))
	assert.False(t, keyMatches("upstream-key", ""))
}

func TestKeyMatchesBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("upstream-key"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, keyMatches(string(hash), "upstream-key"))
	assert.False(t, keyMatches(string(hash), "wrong"))
}
