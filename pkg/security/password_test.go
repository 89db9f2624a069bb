package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocklinehq/stockline-backend/pkg/config"
)

var fastArgon = config.PasswordConfig{
	ArgonMemoryKB:    8 * 1024,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct-horse", fastArgon)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	ok, err := VerifyPassword("correct-horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong-horse", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashesAreSalted(t *testing.T) {
	t.Parallel()

	first, err := HashPassword("correct-horse", fastArgon)
	require.NoError(t, err)
	second, err := HashPassword("correct-horse", fastArgon)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	t.Parallel()

	_, err := HashPassword("", fastArgon)
	require.Error(t, err)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	t.Parallel()

	_, err := VerifyPassword("anything", "not-a-hash")
	require.ErrorIs(t, err, ErrInvalidHash)

	_, err = VerifyPassword("anything", "$bcrypt$whatever$x$y$z")
	require.ErrorIs(t, err, ErrInvalidHash)
}

func TestGenerateTempPassword(t *testing.T) {
	t.Parallel()

	password, err := GenerateTempPassword(16)
	require.NoError(t, err)
	assert.Len(t, password, 16)

	_, err = GenerateTempPassword(0)
	require.Error(t, err)
}
