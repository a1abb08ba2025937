package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePageToken(t *testing.T) {
	token := EncodePageToken(40, "PENDING")
	assert.NotEmpty(t, token, "Token should not be empty")

	decoded, err := DecodePageToken(token)
	require.NoError(t, err)
	assert.Equal(t, PageToken{Offset: 40, Filter: "PENDING"}, decoded)

	// No filter
	decoded, err = DecodePageToken(EncodePageToken(0, ""))
	require.NoError(t, err)
	assert.Equal(t, PageToken{Offset: 0, Filter: ""}, decoded)
}

func TestDecodePageTokenError(t *testing.T) {
	_, err := DecodePageToken("this is not base64!")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "base64 decode")

	_, err = DecodePageToken(EncodeMultiFieldToken("10"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "split")

	_, err = DecodePageToken(EncodeMultiFieldToken("-1", ""))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "offset parse")

	_, err = DecodePageToken(EncodeMultiFieldToken("ten", ""))
	assert.Error(t, err)
}

func TestNextPageToken(t *testing.T) {
	assert.Equal(t, "", NextPageToken(0, 10, 10, ""), "last page has no next token")
	assert.Equal(t, "", NextPageToken(20, 0, 15, ""), "empty page has no next token")

	token := NextPageToken(0, 10, 25, "COMPLETED")
	require.NotEmpty(t, token)
	decoded, err := DecodePageToken(token)
	require.NoError(t, err)
	assert.Equal(t, 10, decoded.Offset)
	assert.Equal(t, "COMPLETED", decoded.Filter)
}

func TestEncodeMultiFieldToken(t *testing.T) {
	fields := []string{"field1", "field2", "field3"}
	decodedFields, err := DecodeMultiFieldToken(EncodeMultiFieldToken(fields...))
	assert.NoError(t, err)
	assert.Equal(t, fields, decodedFields)

	// When splitting an empty string with strings.Split, we get a slice with one empty string
	decodedEmpty, err := DecodeMultiFieldToken(EncodeMultiFieldToken())
	assert.NoError(t, err)
	assert.Equal(t, []string{""}, decodedEmpty)
}
