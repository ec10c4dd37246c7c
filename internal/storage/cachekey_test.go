package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitbridge/internal/models"
)

func TestNormalizeRepoURL(t *testing.T) {
	want := "https://github.com/acme/rocket"
	for _, in := range []string{
		"https://github.com/acme/rocket",
		"https://github.com/ACME/Rocket",
		"https://github.com/acme/rocket/",
		"https://github.com/acme/rocket.git",
		"http://GitHub.com/acme/rocket",
		"github.com/acme/rocket/tree/main",
		"acme/rocket",
	} {
		got, err := NormalizeRepoURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNormalizeRepoURLRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "https://gitlab.com/a/b", "https://github.com/solo"} {
		_, err := NormalizeRepoURL(in)
		assert.Error(t, err, in)
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	vs := models.DefaultVoiceSettings()
	a := CacheKey("https://github.com/acme/rocket", 5, vs)
	b := CacheKey("https://github.com/acme/rocket", 5, vs)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestCacheKeyVaries(t *testing.T) {
	vs := models.DefaultVoiceSettings()
	base := CacheKey("https://github.com/acme/rocket", 5, vs)

	assert.NotEqual(t, base, CacheKey("https://github.com/acme/glider", 5, vs))
	assert.NotEqual(t, base, CacheKey("https://github.com/acme/rocket", 10, vs))

	vs.HostVoiceID = "different"
	assert.NotEqual(t, base, CacheKey("https://github.com/acme/rocket", 5, vs))
}

func TestCacheKeyRoundsVoiceFloats(t *testing.T) {
	vs := models.DefaultVoiceSettings()
	base := CacheKey("https://github.com/acme/rocket", 5, vs)

	// Differences below the 4th decimal collapse to the same key.
	vs.Stability += 0.00001
	assert.Equal(t, base, CacheKey("https://github.com/acme/rocket", 5, vs))

	vs.Stability = 0.8
	assert.NotEqual(t, base, CacheKey("https://github.com/acme/rocket", 5, vs))
}
