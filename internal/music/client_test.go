package music

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testTokenSource(t *testing.T) *DeveloperTokenSource {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	src, err := NewDeveloperTokenSource("TEAM123", "KEY456", pemKey)
	require.NoError(t, err)
	return src
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(testTokenSource(t), "us")
	c.BaseURL = srv.URL
	return c
}

func TestDeveloperTokenIsCached(t *testing.T) {
	src := testTokenSource(t)

	first, err := src.Token()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := src.Token()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDeveloperTokenSourceRejectsBadKey(t *testing.T) {
	_, err := NewDeveloperTokenSource("TEAM123", "KEY456", []byte("not a pem"))
	require.Error(t, err)

	_, err = NewDeveloperTokenSource("", "KEY456", nil)
	require.Error(t, err)
}

func TestSearchSongsSendsDeveloperToken(t *testing.T) {
	var gotAuth, gotUserToken, gotTerm string

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/catalog/us/search", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotUserToken = r.Header.Get("Music-User-Token")
		gotTerm = r.URL.Query().Get("term")

		json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{
				"songs": map[string]any{
					"data": []map[string]any{
						{
							"id": "song-1",
							"attributes": map[string]any{
								"name":             "Karma Police",
								"artistName":       "Radiohead",
								"albumName":        "OK Computer",
								"durationInMillis": 261000,
								"releaseDate":      "1997-05-21",
							},
						},
					},
				},
			},
		})
	}))

	songs, err := client.SearchSongs(context.Background(), "karma police", 5)
	require.NoError(t, err)
	require.Len(t, songs, 1)
	require.Equal(t, "song-1", songs[0].ID)
	require.Equal(t, "Karma Police", songs[0].Title)
	require.Equal(t, "Radiohead", songs[0].Artist)
	require.Equal(t, int64(261000), songs[0].DurationMS)

	require.Contains(t, gotAuth, "Bearer ey")
	require.Empty(t, gotUserToken, "catalog search must not send a user token")
	require.Equal(t, "karma police", gotTerm)
}

func TestLibraryCallsCarryUserToken(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "user-token-abc", r.Header.Get("Music-User-Token"))
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))

	_, err := client.RecentlyPlayed(context.Background(), "user-token-abc", 10)
	require.NoError(t, err)
}

func TestRateSongMapsStarsToAPIValue(t *testing.T) {
	var gotValue float64
	var gotMethod string

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		require.Equal(t, "/me/ratings/songs/song-9", r.URL.Path)

		var body struct {
			Attributes struct {
				Value float64 `json:"value"`
			} `json:"attributes"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotValue = body.Attributes.Value
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.RateSong(context.Background(), "ut", "song-9", 4))
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, float64(75), gotValue)

	require.Error(t, client.RateSong(context.Background(), "ut", "song-9", 0))
	require.Error(t, client.RateSong(context.Background(), "ut", "song-9", 6))
}

func TestStatsReadsTotalsFromMeta(t *testing.T) {
	totals := map[string]int{
		"/me/library/songs":     1234,
		"/me/library/playlists": 17,
		"/me/library/albums":    88,
		"/me/library/artists":   42,
	}

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		total, ok := totals[r.URL.Path]
		require.True(t, ok, "unexpected path %s", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"meta": map[string]any{"total": total},
		})
	}))

	stats, err := client.Stats(context.Background(), "ut")
	require.NoError(t, err)
	require.Equal(t, LibraryStats{Songs: 1234, Playlists: 17, Albums: 88, Artists: 42}, stats)
}

func TestCreatePlaylistSeedsTracks(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/me/library/playlists", r.URL.Path)

		var body struct {
			Attributes struct {
				Name string `json:"name"`
			} `json:"attributes"`
			Relationships struct {
				Tracks struct {
					Data []struct {
						ID   string `json:"id"`
						Type string `json:"type"`
					} `json:"data"`
				} `json:"tracks"`
			} `json:"relationships"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Road Trip", body.Attributes.Name)
		require.Len(t, body.Relationships.Tracks.Data, 2)
		require.Equal(t, "songs", body.Relationships.Tracks.Data[0].Type)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"id": "pl-1",
					"attributes": map[string]any{
						"name":    "Road Trip",
						"canEdit": true,
					},
				},
			},
		})
	}))

	pl, err := client.CreatePlaylist(context.Background(), "ut", "Road Trip", "", []string{"s1", "s2"})
	require.NoError(t, err)
	require.Equal(t, "pl-1", pl.ID)
	require.True(t, pl.CanEdit)
}

func TestAddToLibrarySendsIDsAsQuery(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/me/library", r.URL.Path)
		require.Equal(t, []string{"s1", "s2"}, r.URL.Query()["ids[songs]"])
		w.WriteHeader(http.StatusAccepted)
	}))

	require.NoError(t, client.AddToLibrary(context.Background(), "ut", []string{"s1", "s2"}))
	require.Error(t, client.AddToLibrary(context.Background(), "ut", nil))
}

func TestRetriesOnceOnRateLimit(t *testing.T) {
	var calls int

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))

	start := time.Now()
	_, err := client.RecentlyPlayed(context.Background(), "ut", 5)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestAPIErrorSurfacesStatusAndBody(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"title":"Invalid Music-User-Token"}]}`))
	}))

	_, err := client.RecentlyPlayed(context.Background(), "bad", 5)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	require.Contains(t, apiErr.Body, "Invalid Music-User-Token")
}
