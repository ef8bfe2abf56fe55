package music

import (
	"context"
	"errors"
	"fmt"

	"github.com/tunegate/tunegate/pkg/authsdk"
)

var (
	ErrUnknownTool = errors.New("music: unknown tool")
	ErrBadArgument = errors.New("music: invalid tool argument")
)

// catalogAPI is the slice of Client the dispatcher depends on; tests swap in
// a fake without running an HTTP server.
type catalogAPI interface {
	SearchSongs(ctx context.Context, query string, limit int) ([]Song, error)
	SearchLibrary(ctx context.Context, userToken, query string, limit int) ([]Song, error)
	RecentlyPlayed(ctx context.Context, userToken string, limit int) ([]Song, error)
	Stats(ctx context.Context, userToken string) (LibraryStats, error)
	RateSong(ctx context.Context, userToken, songID string, stars int) error
	CreatePlaylist(ctx context.Context, userToken, name, description string, songIDs []string) (Playlist, error)
	AddToPlaylist(ctx context.Context, userToken, playlistID string, songIDs []string) error
	AddToLibrary(ctx context.Context, userToken string, songIDs []string) error
}

// Dispatcher routes named tool calls to catalog operations. The user token
// comes from the caller's access token, never from tool arguments.
type Dispatcher struct {
	Catalog catalogAPI
}

// NewDispatcher wires a dispatcher over the given catalog client.
func NewDispatcher(client *Client) *Dispatcher {
	return &Dispatcher{Catalog: client}
}

// Tools lists the callable tools in a stable order.
func (d *Dispatcher) Tools() []authsdk.ToolInfo {
	return []authsdk.ToolInfo{
		{Name: "search_songs", Description: "Search the public catalog for songs by title, artist, or album"},
		{Name: "search_library", Description: "Search the user's own library for songs"},
		{Name: "get_library_stats", Description: "Count the songs, playlists, albums, and artists in the user's library"},
		{Name: "get_recently_played", Description: "List the user's recently played tracks"},
		{Name: "rate_song", Description: "Rate a catalog song from 1 to 5 stars"},
		{Name: "create_playlist", Description: "Create a playlist in the user's library, optionally seeded with songs"},
		{Name: "add_to_playlist", Description: "Append catalog songs to an existing library playlist"},
		{Name: "add_to_library", Description: "Add catalog songs to the user's library"},
	}
}

// Call invokes the named tool with the given arguments on behalf of the user
// identified by userToken.
func (d *Dispatcher) Call(ctx context.Context, userToken, name string, args map[string]any) (any, error) {
	switch name {
	case "search_songs":
		query, err := stringArg(args, "query", true)
		if err != nil {
			return nil, err
		}
		return d.Catalog.SearchSongs(ctx, query, intArg(args, "limit"))

	case "search_library":
		query, err := stringArg(args, "query", true)
		if err != nil {
			return nil, err
		}
		return d.Catalog.SearchLibrary(ctx, userToken, query, intArg(args, "limit"))

	case "get_library_stats":
		return d.Catalog.Stats(ctx, userToken)

	case "get_recently_played":
		return d.Catalog.RecentlyPlayed(ctx, userToken, intArg(args, "limit"))

	case "rate_song":
		songID, err := stringArg(args, "song_id", true)
		if err != nil {
			return nil, err
		}
		stars := intArg(args, "rating")
		if stars == 0 {
			return nil, fmt.Errorf("%w: rating is required", ErrBadArgument)
		}
		if err := d.Catalog.RateSong(ctx, userToken, songID, stars); err != nil {
			return nil, err
		}
		return map[string]any{"song_id": songID, "rating": stars}, nil

	case "create_playlist":
		playlistName, err := stringArg(args, "name", true)
		if err != nil {
			return nil, err
		}
		description, _ := stringArg(args, "description", false)
		return d.Catalog.CreatePlaylist(ctx, userToken, playlistName, description, stringSliceArg(args, "song_ids"))

	case "add_to_playlist":
		playlistID, err := stringArg(args, "playlist_id", true)
		if err != nil {
			return nil, err
		}
		ids := stringSliceArg(args, "song_ids")
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: song_ids is required", ErrBadArgument)
		}
		if err := d.Catalog.AddToPlaylist(ctx, userToken, playlistID, ids); err != nil {
			return nil, err
		}
		return map[string]any{"playlist_id": playlistID, "added": len(ids)}, nil

	case "add_to_library":
		ids := stringSliceArg(args, "song_ids")
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: song_ids is required", ErrBadArgument)
		}
		if err := d.Catalog.AddToLibrary(ctx, userToken, ids); err != nil {
			return nil, err
		}
		return map[string]any{"added": len(ids)}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
}

func stringArg(args map[string]any, key string, required bool) (string, error) {
	v, ok := args[key]
	if !ok {
		if required {
			return "", fmt.Errorf("%w: %s is required", ErrBadArgument, key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok || (required && s == "") {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrBadArgument, key)
	}
	return s, nil
}

// intArg tolerates the float64 that encoding/json produces for numbers.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
