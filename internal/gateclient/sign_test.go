package gateclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONStableUnderKeyReordering(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": map[string]any{"z": 1, "y": 2}}
	b := map[string]any{"a": 2, "c": map[string]any{"y": 2, "z": 1}, "b": 1}

	ja, err := CanonicalJSON(a)
	require.NoError(t, err)
	jb, err := CanonicalJSON(b)
	require.NoError(t, err)
	require.Equal(t, string(ja), string(jb))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	secret := []byte("shared-secret")
	payload := []byte(`{"a":1,"b":2}`)
	sig := Sign(payload, secret)
	require.True(t, Verify(payload, secret, sig))
	require.False(t, Verify(payload, secret, sig+"00"))
}
