package music

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeCatalog records the last call made through the dispatcher.
type fakeCatalog struct {
	lastTool      string
	lastUserToken string
	lastQuery     string
	lastLimit     int
	lastSongID    string
	lastStars     int
	lastSongIDs   []string
}

func (f *fakeCatalog) SearchSongs(_ context.Context, query string, limit int) ([]Song, error) {
	f.lastTool, f.lastQuery, f.lastLimit = "search_songs", query, limit
	return []Song{{ID: "s1", Title: "Found"}}, nil
}

func (f *fakeCatalog) SearchLibrary(_ context.Context, userToken, query string, limit int) ([]Song, error) {
	f.lastTool, f.lastUserToken, f.lastQuery, f.lastLimit = "search_library", userToken, query, limit
	return nil, nil
}

func (f *fakeCatalog) RecentlyPlayed(_ context.Context, userToken string, limit int) ([]Song, error) {
	f.lastTool, f.lastUserToken, f.lastLimit = "get_recently_played", userToken, limit
	return nil, nil
}

func (f *fakeCatalog) Stats(_ context.Context, userToken string) (LibraryStats, error) {
	f.lastTool, f.lastUserToken = "get_library_stats", userToken
	return LibraryStats{Songs: 3}, nil
}

func (f *fakeCatalog) RateSong(_ context.Context, userToken, songID string, stars int) error {
	f.lastTool, f.lastUserToken, f.lastSongID, f.lastStars = "rate_song", userToken, songID, stars
	return nil
}

func (f *fakeCatalog) CreatePlaylist(_ context.Context, userToken, name, description string, songIDs []string) (Playlist, error) {
	f.lastTool, f.lastUserToken, f.lastSongIDs = "create_playlist", userToken, songIDs
	return Playlist{ID: "pl-1", Name: name}, nil
}

func (f *fakeCatalog) AddToPlaylist(_ context.Context, userToken, playlistID string, songIDs []string) error {
	f.lastTool, f.lastUserToken, f.lastSongIDs = "add_to_playlist", userToken, songIDs
	return nil
}

func (f *fakeCatalog) AddToLibrary(_ context.Context, userToken string, songIDs []string) error {
	f.lastTool, f.lastUserToken, f.lastSongIDs = "add_to_library", userToken, songIDs
	return nil
}

func TestDispatcherRoutesTools(t *testing.T) {
	fake := &fakeCatalog{}
	d := &Dispatcher{Catalog: fake}
	ctx := context.Background()

	result, err := d.Call(ctx, "ut", "search_songs", map[string]any{
		"query": "radiohead",
		"limit": float64(5),
	})
	require.NoError(t, err)
	require.Equal(t, "search_songs", fake.lastTool)
	require.Equal(t, "radiohead", fake.lastQuery)
	require.Equal(t, 5, fake.lastLimit)
	require.Len(t, result.([]Song), 1)

	_, err = d.Call(ctx, "ut", "get_library_stats", nil)
	require.NoError(t, err)
	require.Equal(t, "ut", fake.lastUserToken)

	result, err = d.Call(ctx, "ut", "rate_song", map[string]any{
		"song_id": "song-7",
		"rating":  float64(5),
	})
	require.NoError(t, err)
	require.Equal(t, "song-7", fake.lastSongID)
	require.Equal(t, 5, fake.lastStars)
	require.Equal(t, map[string]any{"song_id": "song-7", "rating": 5}, result)

	result, err = d.Call(ctx, "ut", "add_to_playlist", map[string]any{
		"playlist_id": "pl-1",
		"song_ids":    []any{"x"},
	})
	require.NoError(t, err)
	require.Equal(t, "add_to_playlist", fake.lastTool)
	require.Equal(t, map[string]any{"playlist_id": "pl-1", "added": 1}, result)

	result, err = d.Call(ctx, "ut", "add_to_library", map[string]any{
		"song_ids": []any{"a", "b", "c"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, fake.lastSongIDs)
	require.Equal(t, map[string]any{"added": 3}, result)
}

func TestDispatcherValidatesArguments(t *testing.T) {
	d := &Dispatcher{Catalog: &fakeCatalog{}}
	ctx := context.Background()

	_, err := d.Call(ctx, "ut", "search_songs", nil)
	require.ErrorIs(t, err, ErrBadArgument)

	_, err = d.Call(ctx, "ut", "rate_song", map[string]any{"song_id": "x"})
	require.ErrorIs(t, err, ErrBadArgument)

	_, err = d.Call(ctx, "ut", "add_to_library", map[string]any{"song_ids": []any{}})
	require.ErrorIs(t, err, ErrBadArgument)

	_, err = d.Call(ctx, "ut", "no_such_tool", nil)
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestToolListIsStable(t *testing.T) {
	d := NewDispatcher(nil)

	tools := d.Tools()
	require.Len(t, tools, 8)
	require.Equal(t, "search_songs", tools[0].Name)
	for _, tool := range tools {
		require.NotEmpty(t, tool.Description)
	}
}
