package sipdbutil

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test that the generated password has the requested entropy and is
// valid base64.
func TestBase64Random(t *testing.T) {
	hash, err := Base64Random(24)
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(hash)
	require.NoError(t, err)
	require.Len(t, decoded, 24)
}

// Test that subsequent calls return different values.
func TestBase64RandomUnique(t *testing.T) {
	first, err := Base64Random(24)
	require.NoError(t, err)
	second, err := Base64Random(24)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
