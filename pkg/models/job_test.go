package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_ForwardOnly(t *testing.T) {
	assert.True(t, JobStatusPending.CanTransitionTo(JobStatusProcessing))
	assert.True(t, JobStatusProcessing.CanTransitionTo(JobStatusCompleted))
	assert.True(t, JobStatusProcessing.CanTransitionTo(JobStatusFailed))

	// No backward or skipping transitions.
	assert.False(t, JobStatusPending.CanTransitionTo(JobStatusCompleted))
	assert.False(t, JobStatusPending.CanTransitionTo(JobStatusFailed))
	assert.False(t, JobStatusProcessing.CanTransitionTo(JobStatusPending))
	assert.False(t, JobStatusCompleted.CanTransitionTo(JobStatusProcessing))
	assert.False(t, JobStatusCompleted.CanTransitionTo(JobStatusFailed))
	assert.False(t, JobStatusFailed.CanTransitionTo(JobStatusPending))
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestParsePlatform(t *testing.T) {
	for _, name := range []string{"youtube", "facebook", "instagram"} {
		p, err := ParsePlatform(name)
		require.NoError(t, err)
		assert.Equal(t, Platform(name), p)
	}

	_, err := ParsePlatform("tiktok")
	assert.Error(t, err)
	_, err = ParsePlatform("")
	assert.Error(t, err)
}

func TestPlatform_Provider(t *testing.T) {
	assert.Equal(t, ProviderGoogle, PlatformYouTube.Provider())
	assert.Equal(t, ProviderMeta, PlatformFacebook.Provider())
	assert.Equal(t, ProviderMeta, PlatformInstagram.Provider())
}

func TestOrderPlatforms(t *testing.T) {
	got := OrderPlatforms([]Platform{PlatformInstagram, PlatformYouTube, PlatformFacebook})
	assert.Equal(t, []Platform{PlatformYouTube, PlatformFacebook, PlatformInstagram}, got)

	// Duplicates collapse, order still fixed.
	got = OrderPlatforms([]Platform{PlatformFacebook, PlatformFacebook, PlatformYouTube})
	assert.Equal(t, []Platform{PlatformYouTube, PlatformFacebook}, got)
}

func TestResultMap_AnySuccess(t *testing.T) {
	m := ResultMap{
		PlatformYouTube:  {Success: false, Error: "quota exceeded"},
		PlatformFacebook: {Success: true, PostID: "123"},
	}
	assert.True(t, m.AnySuccess())

	m = ResultMap{
		PlatformYouTube: {Success: false, Error: "quota exceeded"},
	}
	assert.False(t, m.AnySuccess())
	assert.False(t, ResultMap{}.AnySuccess())
}
