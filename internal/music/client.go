package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the production catalog API root.
const DefaultBaseURL = "https://api.music.apple.com/v1"

// DefaultStorefront scopes catalog searches when no storefront is configured.
const DefaultStorefront = "us"

// ErrRateLimited signals the upstream API rejected the call with 429 after
// the retry budget was spent.
var ErrRateLimited = errors.New("music: upstream rate limit exceeded")

// APIError carries a non-2xx response from the catalog API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("music: api returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the catalog API. Catalog endpoints need only the developer
// token; library endpoints additionally require the per-user token minted by
// the browser flow, passed per call so one client serves all users.
type Client struct {
	BaseURL    string
	Storefront string
	DevTokens  *DeveloperTokenSource
	HTTPClient *http.Client
}

// NewClient builds a catalog client against the production API.
func NewClient(tokens *DeveloperTokenSource, storefront string) *Client {
	if storefront == "" {
		storefront = DefaultStorefront
	}
	return &Client{
		BaseURL:    DefaultBaseURL,
		Storefront: storefront,
		DevTokens:  tokens,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Song is the flattened view of a catalog or library track.
type Song struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	DurationMS  int64  `json:"duration_ms,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

// Playlist is the flattened view of a library playlist.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CanEdit     bool   `json:"can_edit"`
}

// LibraryStats summarizes the size of a user's library.
type LibraryStats struct {
	Songs     int `json:"songs"`
	Playlists int `json:"playlists"`
	Albums    int `json:"albums"`
	Artists   int `json:"artists"`
}

// resource mirrors the wire shape of catalog and library items.
type resource struct {
	ID         string `json:"id"`
	Attributes struct {
		Name             string `json:"name"`
		ArtistName       string `json:"artistName"`
		AlbumName        string `json:"albumName"`
		DurationInMillis int64  `json:"durationInMillis"`
		ReleaseDate      string `json:"releaseDate"`
		Description      struct {
			Standard string `json:"standard"`
		} `json:"description"`
		CanEdit  bool `json:"canEdit"`
		Previews []struct {
			URL string `json:"url"`
		} `json:"previews"`
	} `json:"attributes"`
}

func (r resource) song() Song {
	s := Song{
		ID:          r.ID,
		Title:       r.Attributes.Name,
		Artist:      r.Attributes.ArtistName,
		Album:       r.Attributes.AlbumName,
		DurationMS:  r.Attributes.DurationInMillis,
		ReleaseDate: r.Attributes.ReleaseDate,
	}
	if len(r.Attributes.Previews) > 0 {
		s.PreviewURL = r.Attributes.Previews[0].URL
	}
	return s
}

// SearchSongs queries the public catalog. No user token is needed.
func (c *Client) SearchSongs(ctx context.Context, query string, limit int) ([]Song, error) {
	if limit <= 0 || limit > 25 {
		limit = 10
	}

	params := url.Values{}
	params.Set("term", query)
	params.Set("types", "songs")
	params.Set("limit", strconv.Itoa(limit))

	var out struct {
		Results struct {
			Songs struct {
				Data []resource `json:"data"`
			} `json:"songs"`
		} `json:"results"`
	}
	path := fmt.Sprintf("/catalog/%s/search", c.Storefront)
	if err := c.get(ctx, path, params, "", &out); err != nil {
		return nil, err
	}

	songs := make([]Song, 0, len(out.Results.Songs.Data))
	for _, r := range out.Results.Songs.Data {
		songs = append(songs, r.song())
	}
	return songs, nil
}

// SearchLibrary searches the user's own library for songs.
func (c *Client) SearchLibrary(ctx context.Context, userToken, query string, limit int) ([]Song, error) {
	if limit <= 0 || limit > 25 {
		limit = 10
	}

	params := url.Values{}
	params.Set("term", query)
	params.Set("types", "library-songs")
	params.Set("limit", strconv.Itoa(limit))

	var out struct {
		Results struct {
			LibrarySongs struct {
				Data []resource `json:"data"`
			} `json:"library-songs"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/me/library/search", params, userToken, &out); err != nil {
		return nil, err
	}

	songs := make([]Song, 0, len(out.Results.LibrarySongs.Data))
	for _, r := range out.Results.LibrarySongs.Data {
		songs = append(songs, r.song())
	}
	return songs, nil
}

// RecentlyPlayed returns the user's recently played tracks.
func (c *Client) RecentlyPlayed(ctx context.Context, userToken string, limit int) ([]Song, error) {
	if limit <= 0 || limit > 30 {
		limit = 10
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	var out struct {
		Data []resource `json:"data"`
	}
	if err := c.get(ctx, "/me/recent/played/tracks", params, userToken, &out); err != nil {
		return nil, err
	}

	songs := make([]Song, 0, len(out.Data))
	for _, r := range out.Data {
		songs = append(songs, r.song())
	}
	return songs, nil
}

// Stats counts the user's library songs, playlists, albums, and artists.
// Each count is a single paged request reading the total from meta.
func (c *Client) Stats(ctx context.Context, userToken string) (LibraryStats, error) {
	var stats LibraryStats

	count := func(path string) (int, error) {
		params := url.Values{}
		params.Set("limit", "1")

		var out struct {
			Meta struct {
				Total int `json:"total"`
			} `json:"meta"`
		}
		if err := c.get(ctx, path, params, userToken, &out); err != nil {
			return 0, err
		}
		return out.Meta.Total, nil
	}

	var err error
	if stats.Songs, err = count("/me/library/songs"); err != nil {
		return stats, err
	}
	if stats.Playlists, err = count("/me/library/playlists"); err != nil {
		return stats, err
	}
	if stats.Albums, err = count("/me/library/albums"); err != nil {
		return stats, err
	}
	if stats.Artists, err = count("/me/library/artists"); err != nil {
		return stats, err
	}
	return stats, nil
}

// RateSong stores a star rating (1-5) for a catalog song. The API expects
// values in 0-100, so stars map onto that range linearly.
func (c *Client) RateSong(ctx context.Context, userToken, songID string, stars int) error {
	if stars < 1 || stars > 5 {
		return fmt.Errorf("music: rating must be between 1 and 5, got %d", stars)
	}

	body := map[string]any{
		"type": "rating",
		"attributes": map[string]any{
			"value": (stars - 1) * 25,
		},
	}
	path := fmt.Sprintf("/me/ratings/songs/%s", url.PathEscape(songID))
	return c.do(ctx, http.MethodPut, path, nil, body, userToken, nil)
}

// CreatePlaylist creates a library playlist, optionally seeded with catalog
// song IDs, and returns its flattened view.
func (c *Client) CreatePlaylist(ctx context.Context, userToken, name, description string, songIDs []string) (Playlist, error) {
	if name == "" {
		return Playlist{}, errors.New("music: playlist name is required")
	}

	attrs := map[string]any{"name": name}
	if description != "" {
		attrs["description"] = description
	}
	body := map[string]any{"attributes": attrs}

	if len(songIDs) > 0 {
		tracks := make([]map[string]string, 0, len(songIDs))
		for _, id := range songIDs {
			tracks = append(tracks, map[string]string{"id": id, "type": "songs"})
		}
		body["relationships"] = map[string]any{
			"tracks": map[string]any{"data": tracks},
		}
	}

	var out struct {
		Data []resource `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/me/library/playlists", nil, body, userToken, &out); err != nil {
		return Playlist{}, err
	}
	if len(out.Data) == 0 {
		return Playlist{}, errors.New("music: playlist creation returned no data")
	}

	r := out.Data[0]
	return Playlist{
		ID:          r.ID,
		Name:        r.Attributes.Name,
		Description: r.Attributes.Description.Standard,
		CanEdit:     r.Attributes.CanEdit,
	}, nil
}

// AddToPlaylist appends catalog songs to an existing library playlist.
func (c *Client) AddToPlaylist(ctx context.Context, userToken, playlistID string, songIDs []string) error {
	if playlistID == "" {
		return errors.New("music: playlist id is required")
	}
	if len(songIDs) == 0 {
		return errors.New("music: at least one song id is required")
	}

	tracks := make([]map[string]string, 0, len(songIDs))
	for _, id := range songIDs {
		tracks = append(tracks, map[string]string{"id": id, "type": "songs"})
	}
	body := map[string]any{"data": tracks}

	path := fmt.Sprintf("/me/library/playlists/%s/tracks", url.PathEscape(playlistID))
	return c.do(ctx, http.MethodPost, path, nil, body, userToken, nil)
}

// AddToLibrary adds catalog songs to the user's library.
func (c *Client) AddToLibrary(ctx context.Context, userToken string, songIDs []string) error {
	if len(songIDs) == 0 {
		return errors.New("music: at least one song id is required")
	}

	params := url.Values{}
	for _, id := range songIDs {
		params.Add("ids[songs]", id)
	}
	return c.do(ctx, http.MethodPost, "/me/library", params, nil, userToken, nil)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, userToken string, out any) error {
	return c.do(ctx, http.MethodGet, path, params, nil, userToken, out)
}

// do issues one API call, retrying once on 429 if the server names a short
// Retry-After.
func (c *Client) do(
	ctx context.Context,
	method, path string,
	params url.Values,
	body any,
	userToken string,
	out any,
) error {
	for attempt := 0; ; attempt++ {
		retryAfter, err := c.doOnce(ctx, method, path, params, body, userToken, out)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRateLimited) || attempt >= 1 || retryAfter <= 0 || retryAfter > 5*time.Second {
			return err
		}

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) doOnce(
	ctx context.Context,
	method, path string,
	params url.Values,
	body any,
	userToken string,
	out any,
) (time.Duration, error) {
	endpoint := c.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("music: encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, err
	}

	devToken, err := c.DevTokens.Token()
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+devToken)
	if userToken != "" {
		req.Header.Set("Music-User-Token", userToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Second
		if v, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && v > 0 {
			retryAfter = time.Duration(v) * time.Second
		}
		return retryAfter, ErrRateLimited
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, &APIError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if out == nil {
		return 0, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("music: decode response: %w", err)
	}
	return 0, nil
}
