package utils

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomString(t *testing.T) {
	a, err := RandomString(30)
	require.NoError(t, err)
	b, err := RandomString(30)
	require.NoError(t, err)

	assert.Len(t, a, 40)
	assert.NotEqual(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 30)
}
