package util

import (
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCBORPretty(t *testing.T) {
	inner, err := cbor.Marshal(map[int]any{1: uint64(1), 2: "#app"})
	require.NoError(t, err)
	data, err := cbor.Marshal(cbor.Tag{Number: 107, Content: map[int]any{
		3: inner,
		4: []byte{0xff, 0xfe},
	}})
	require.NoError(t, err)

	got, err := RenderCBORPretty(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"tag": 107,
		"content": {
			"3": {"<<>>": {"1": 1, "2": "#app"}},
			"4": "h'fffe'"
		}
	}`, got)
}

func TestRenderCBORPretty_Unescaped(t *testing.T) {
	inner, err := cbor.Marshal("<&>")
	require.NoError(t, err)
	data, err := cbor.Marshal([]any{inner})
	require.NoError(t, err)

	got, err := RenderCBORPretty(data)
	require.NoError(t, err)
	assert.Contains(t, got, `"<<>>"`)
	assert.Contains(t, got, `"<&>"`)
	assert.NotContains(t, got, `\u003c`)
	assert.False(t, strings.HasSuffix(got, "\n"))
}

func TestRenderCBORPretty_Invalid(t *testing.T) {
	_, err := RenderCBORPretty([]byte{0x82, 0x01})
	assert.Error(t, err)
}
