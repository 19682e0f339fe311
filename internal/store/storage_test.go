package store

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURL(t *testing.T) {
	mimeType, data, err := decodeDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, []byte("hello"), data)
}

func TestDecodeDataURLDefaultsMimeType(t *testing.T) {
	mimeType, _, err := decodeDataURL("data:;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
}

func TestDecodeDataURLRejectsGarbage(t *testing.T) {
	tests := []string{
		"https://example.com/a.png",
		"data:image/png;base64",          // no comma
		"data:image/png,plain-not-b64",   // not base64 encoded
		"data:image/png;base64,!!!not!!", // invalid payload
	}
	for _, in := range tests {
		_, _, err := decodeDataURL(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestPublicURL(t *testing.T) {
	s := New(nil, "https://proj.supabase.co/", logrus.New())
	assert.Equal(t,
		"https://proj.supabase.co/storage/v1/object/public/posters/uploads/a.png",
		s.PublicURL("/uploads/a.png"))
	assert.Equal(t,
		"https://proj.supabase.co/storage/v1/object/public/posters/uploads/a.png",
		s.PublicURL("uploads/a.png"))
}
