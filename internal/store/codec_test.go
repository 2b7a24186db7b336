package store

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecCompressesRepetitivePayloads(t *testing.T) {
	in := map[string]string{"annotation_description": strings.Repeat("arrow pointing left ", 200)}

	blob, err := Encode(in)
	require.NoError(t, err)
	assert.Less(t, len(blob), 1000)

	var out map[string]string
	require.NoError(t, Decode(blob, &out))
	assert.Equal(t, in, out)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	var out map[string]string
	assert.Error(t, Decode(nil, &out))
	assert.Error(t, Decode([]byte("plain text, not zstd"), &out))
	assert.Error(t, Decode(bytes.Repeat([]byte{0}, 4), &out))
}
