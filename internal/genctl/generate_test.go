package genctl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLora(t *testing.T) {
	lw, err := parseLora("detail.safetensors:0.8")
	require.NoError(t, err)
	require.Equal(t, "detail.safetensors", lw.Name)
	require.Equal(t, 0.8, lw.Strength)
	require.True(t, lw.Enabled)
}

func TestParseLoraDefaultsStrength(t *testing.T) {
	lw, err := parseLora("paint")
	require.NoError(t, err)
	require.Equal(t, "paint", lw.Name)
	require.Equal(t, 1.0, lw.Strength)
}

func TestParseLoraRejectsBadInput(t *testing.T) {
	_, err := parseLora(":0.5")
	require.Error(t, err)
	_, err = parseLora("name:abc")
	require.Error(t, err)
}
