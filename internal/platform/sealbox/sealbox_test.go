package sealbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := New("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, s.Enabled())

	plain := []byte(`{"text":"The stars align."}`)
	aad := []byte("daily_horoscope:abc:")
	sealed, err := s.Seal(plain, aad)
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, string(sealed), "stars")

	opened, err := s.Open(sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, plain, opened)

	_, err = s.Open(sealed, []byte("moon_phase:abc:full"))
	assert.Error(t, err, "aad must bind the ciphertext to its row")
}

func TestPlaintextPassthrough(t *testing.T) {
	none, err := New("")
	require.NoError(t, err)
	assert.False(t, none.Enabled())

	plain := []byte(`{"a":1}`)
	out, err := none.Seal(plain, nil)
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	keyed, err := New("k")
	require.NoError(t, err)
	out, err = keyed.Open(plain, nil)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestOpenSealedWithoutKey(t *testing.T) {
	keyed, err := New("k")
	require.NoError(t, err)
	sealed, err := keyed.Seal([]byte("x"), nil)
	require.NoError(t, err)

	none, _ := New("")
	_, err = none.Open(sealed, nil)
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = keyed.Open(append([]byte{}, magic...), nil)
	assert.ErrorIs(t, err, ErrMalformed)
}
