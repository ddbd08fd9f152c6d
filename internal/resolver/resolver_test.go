package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

var testSources = []Source{
	{ID: 101, Name: "Spotify", SecondaryID: "com.spotify.client"},
	{ID: 202, Name: "Safari", SecondaryID: "com.apple.Safari"},
	{ID: 303, Name: "Music", SecondaryID: "com.apple.Music"},
}

func TestResolveExactPid(t *testing.T) {
	got, err := Resolve([]Identifier{ByPid(202)}, testSources, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Safari", got.Name)
}

func TestResolveExactNameCaseInsensitive(t *testing.T) {
	got, err := Resolve([]Identifier{ByName("spotify")}, testSources, Options{})
	require.NoError(t, err)
	assert.Equal(t, 101, got.ID)
}

func TestResolveExactBundleID(t *testing.T) {
	got, err := Resolve([]Identifier{ByName("com.apple.music")}, testSources, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Music", got.Name)
}

func TestResolveSubstringName(t *testing.T) {
	got, err := Resolve([]Identifier{ByName("spot")}, testSources, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Spotify", got.Name)
}

func TestResolveSubstringBundleID(t *testing.T) {
	// "apple" is not a substring of any name but is of two bundle ids;
	// the first source in list order wins.
	got, err := Resolve([]Identifier{ByName("apple")}, testSources, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Safari", got.Name)
}

func TestResolveExactNameBeatsSubstring(t *testing.T) {
	sources := []Source{
		{ID: 1, Name: "Music Helper Tool"},
		{ID: 2, Name: "Music"},
	}
	got, err := Resolve([]Identifier{ByName("music")}, sources, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, got.ID)
}

func TestResolveIdentifierOrderShortCircuits(t *testing.T) {
	// Both identifiers would match, but the first given wins.
	got, err := Resolve([]Identifier{ByName("Safari"), ByName("Spotify")}, testSources, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Safari", got.Name)
}

func TestResolveSkipsBlankIdentifiers(t *testing.T) {
	got, err := Resolve([]Identifier{ByName(""), ByName("   "), ByName("Spotify")}, testSources, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Spotify", got.Name)
}

func TestResolveFallbackToFirst(t *testing.T) {
	got, err := Resolve(nil, testSources, Options{FallbackToFirst: true})
	require.NoError(t, err)
	assert.Equal(t, "Spotify", got.Name)

	// Blank-only identifier lists behave like no identifiers at all.
	got, err = Resolve([]Identifier{ByName("")}, testSources, Options{FallbackToFirst: true})
	require.NoError(t, err)
	assert.Equal(t, "Spotify", got.Name)
}

func TestResolveMissWithoutFallbackIsNotFound(t *testing.T) {
	_, err := Resolve([]Identifier{ByName("Zzz")}, testSources, Options{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CodeTargetNotFound))
}

func TestResolveNotFoundCarriesDetails(t *testing.T) {
	_, err := Resolve([]Identifier{ByName("Zzz")}, testSources, Options{})
	require.Error(t, err)

	var engineErr *types.Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, []string{"Zzz"}, engineErr.Details.RequestedIdentifiers)
	assert.Equal(t, []string{"Spotify", "Safari", "Music"}, engineErr.Details.AvailableNames)
}

func TestResolveNilOnMiss(t *testing.T) {
	got, err := Resolve([]Identifier{ByName("Zzz")}, testSources, Options{NilOnMiss: true})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveByRef(t *testing.T) {
	app := &types.ApplicationInfo{ProcessID: 303, ApplicationName: "Music"}
	got, err := Resolve([]Identifier{ByRef(app)}, testSources, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Music", got.Name)
}

func TestAudioOnlyFiltersUtilities(t *testing.T) {
	sources := []Source{
		{ID: 1, Name: "Finder", SecondaryID: "com.apple.finder"},
		{ID: 2, Name: "Spotify Helper (Renderer)", SecondaryID: "com.spotify.client.helper"},
		{ID: 3, Name: "SafariServices", SecondaryID: "com.apple.Safari.xpc.service"},
		{ID: 4, Name: "Spotify", SecondaryID: "com.spotify.client"},
	}

	filtered := FilterAudioOnly(sources)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Spotify", filtered[0].Name)
}

func TestAudioOnlyEmptyResultSurfacesHint(t *testing.T) {
	sources := []Source{{ID: 1, Name: "Finder", SecondaryID: "com.apple.finder"}}

	_, err := Resolve([]Identifier{ByName("Finder")}, sources, Options{AudioOnly: true})
	require.Error(t, err)

	var engineErr *types.Error
	require.ErrorAs(t, err, &engineErr)
	assert.NotEmpty(t, engineErr.Details.Hint)
	assert.Equal(t, []string{"Finder"}, engineErr.Details.AvailableNames)
}

func TestResolveScenarioEmptyThenSpotify(t *testing.T) {
	sources := []Source{{ID: 1, Name: "Spotify"}}
	got, err := Resolve([]Identifier{ByName(""), ByName("Spotify")}, sources, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Spotify", got.Name)
}

func TestResolveScenarioFallbackSafari(t *testing.T) {
	sources := []Source{{ID: 1, Name: "Safari"}}
	got, err := Resolve(nil, sources, Options{FallbackToFirst: true})
	require.NoError(t, err)
	assert.Equal(t, "Safari", got.Name)

	// Fallback also catches identifiers that matched nothing.
	got, err = Resolve([]Identifier{ByName("Zzz")}, sources, Options{FallbackToFirst: true})
	require.NoError(t, err)
	assert.Equal(t, "Safari", got.Name)
}
