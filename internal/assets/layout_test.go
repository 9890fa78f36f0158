package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "b.jpg", SanitizeFileName("../../a/b.jpg"))
	assert.Equal(t, "b.jpg", SanitizeFileName(`C:\photos\b.jpg`))
	assert.Equal(t, "my_photo_1_.png", SanitizeFileName("my photo?1#.png"))
	assert.Equal(t, "file", SanitizeFileName(".."))
	assert.Equal(t, "file", SanitizeFileName(""))
}

func TestTempKeyOwnership(t *testing.T) {
	key := TempKey("temp", 7, "u1", "cat.jpg")
	assert.Equal(t, "temp/7/u1-cat.jpg", key)
	assert.True(t, IsOwnedTempKey(key, "/temp/", 7))
	assert.False(t, IsOwnedTempKey(key, "temp", 70))
	assert.False(t, IsOwnedTempKey("temp/7/", "temp", 7))
	assert.False(t, IsOwnedTempKey("posts/public/7/1/cat.jpg", "temp", 7))
}

func TestPermanentKeyIsDeterministic(t *testing.T) {
	a := PermanentKey("posts", "public", 7, 42, "temp/7/u1-cat.jpg")
	b := PermanentKey("/posts/", "public", 7, 42, "temp/7/u1-cat.jpg")
	assert.Equal(t, "posts/public/7/42/u1-cat.jpg", a)
	assert.Equal(t, a, b)

	key, err := Normalize(a)
	assert.NoError(t, err)
	assert.Equal(t, a, key)
}

func TestPermanentScope(t *testing.T) {
	key := PermanentKey("posts", "private", 7, 1, "temp/7/u1-b.jpg")
	scope, ok := PermanentScope("/posts/", key, 7, 1)
	require.True(t, ok)
	assert.Equal(t, "private", scope)

	for _, other := range []string{
		"temp/7/u1-b.jpg",
		"posts/private/8/1/u1-b.jpg",
		"posts/private/7/2/u1-b.jpg",
		"posts/private/7/1/nested/u1-b.jpg",
		"posts/private/7/1/",
		"elsewhere/private/7/1/u1-b.jpg",
	} {
		_, ok := PermanentScope("posts", other, 7, 1)
		assert.False(t, ok, other)
	}
}
