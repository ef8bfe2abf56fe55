package http_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	authhttp "github.com/tunegate/tunegate/internal/auth/http"
	"github.com/tunegate/tunegate/internal/auth/service"
	"github.com/tunegate/tunegate/internal/auth/store/drivers/sqlite"
	"github.com/tunegate/tunegate/internal/music"
	"github.com/tunegate/tunegate/pkg/authsdk"
	"github.com/tunegate/tunegate/pkg/cryptox"
	"github.com/tunegate/tunegate/pkg/jwtx"
)

const testIssuer = "https://auth.test"

var authRequestIDPattern = regexp.MustCompile(`const authRequestId = "([^"]+)"`)

type testServer struct {
	srv *httptest.Server
	sdk *authsdk.SDKClient
}

// newTestServer stands up the full HTTP stack over a temp database, with the
// catalog client pointed at a fake upstream.
func newTestServer(t *testing.T, catalog http.Handler) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "tunegate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	sealer, err := cryptox.NewSealer([]byte("integration-test-key-material"))
	require.NoError(t, err)

	signer, err := jwtx.GenerateSignerES256("test-key")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := authhttp.NewRouter(signer, testIssuer, "test", st, logger)
	router.ClientService = &service.ClientService{Store: st}
	router.AuthorizeService = &service.AuthorizeService{
		Store:      st,
		Sealer:     sealer,
		RequestTTL: 10 * time.Minute,
	}
	router.TokenService = &service.TokenService{
		Store:      st,
		Signer:     signer,
		Sealer:     sealer,
		Issuer:     testIssuer,
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
		CodeTTL:    10 * time.Minute,
	}

	if catalog != nil {
		upstream := httptest.NewServer(catalog)
		t.Cleanup(upstream.Close)

		client := music.NewClient(testDevTokens(t), "us")
		client.BaseURL = upstream.URL
		router.Dispatcher = music.NewDispatcher(client)
	}

	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		srv: srv,
		sdk: authsdk.NewSDKClient(srv.URL),
	}
}

func testDevTokens(t *testing.T) *music.DeveloperTokenSource {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	src, err := music.NewDeveloperTokenSource("TEAM123", "KEY456", pemKey)
	require.NoError(t, err)
	return src
}

func (ts *testServer) register(t *testing.T) *authsdk.ClientRegistrationResponse {
	t.Helper()

	reg, err := ts.sdk.Register(context.Background(), authsdk.ClientRegistrationRequest{
		ClientName:   "integration test client",
		RedirectURIs: []string{"https://app.example.com/callback"},
		Scope:        "library:read library:write recently-played:read",
	})
	require.NoError(t, err)
	return reg
}

// beginAuthorization drives GET /oauth/authorize and scrapes the request id
// out of the approval page, the same way the embedded script reads it.
func (ts *testServer) beginAuthorization(t *testing.T, reg *authsdk.ClientRegistrationResponse, verifier string) string {
	t.Helper()

	authorizeURL := ts.sdk.AuthorizeURL(authsdk.AuthorizeParams{
		ClientID:            reg.ClientID,
		RedirectURI:         "https://app.example.com/callback",
		Scopes:              []string{"library:read", "recently-played:read"},
		State:               "xyz-state",
		CodeChallenge:       cryptox.PKCEChallengeS256(verifier),
		CodeChallengeMethod: "S256",
	})

	resp, err := http.Get(authorizeURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	match := authRequestIDPattern.FindSubmatch(body)
	require.NotNil(t, match, "approval page must embed the request id")
	return string(match[1])
}

func TestFullAuthorizationFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	reg := ts.register(t)
	require.NotEmpty(t, reg.ClientID)
	require.NotEmpty(t, reg.ClientSecret)

	verifier := "end-to-end-verifier-string-43chars-padpadpad"
	requestID := ts.beginAuthorization(t, reg, verifier)

	// Browser callback completes the pending request.
	cb, err := ts.sdk.CompleteCallback(ctx, requestID, "musickit-user-token-e2e")
	require.NoError(t, err)
	require.Equal(t, "success", cb.Status)

	redirectURL, err := url.Parse(cb.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "app.example.com", redirectURL.Host)
	require.Equal(t, "xyz-state", redirectURL.Query().Get("state"))

	code := redirectURL.Query().Get("code")
	require.NotEmpty(t, code)

	// Redeem the code.
	tokens, err := ts.sdk.AuthorizationCodeGrant(ctx,
		reg.ClientID, reg.ClientSecret, code, "https://app.example.com/callback", verifier)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.Equal(t, "Bearer", tokens.TokenType)
	require.Equal(t, 3600, tokens.ExpiresIn)

	// The code is single-use.
	_, err = ts.sdk.AuthorizationCodeGrant(ctx,
		reg.ClientID, reg.ClientSecret, code, "https://app.example.com/callback", verifier)
	requireOAuth2Error(t, err, "invalid_grant")

	// A duplicate browser callback is rejected as already completed.
	_, err = ts.sdk.CompleteCallback(ctx, requestID, "musickit-user-token-e2e")
	requireOAuth2Error(t, err, "invalid_request")
}

func TestRefreshRotationOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	reg := ts.register(t)
	verifier := "refresh-rotation-verifier-43chars-padpadpad"
	requestID := ts.beginAuthorization(t, reg, verifier)

	cb, err := ts.sdk.CompleteCallback(ctx, requestID, "user-token")
	require.NoError(t, err)
	redirectURL, _ := url.Parse(cb.RedirectURL)

	first, err := ts.sdk.AuthorizationCodeGrant(ctx,
		reg.ClientID, reg.ClientSecret, redirectURL.Query().Get("code"),
		"https://app.example.com/callback", verifier)
	require.NoError(t, err)

	// Rotate once.
	second, err := ts.sdk.RefreshGrant(ctx, reg.ClientID, reg.ClientSecret, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// Reusing the rotated-away token kills the family.
	_, err = ts.sdk.RefreshGrant(ctx, reg.ClientID, reg.ClientSecret, first.RefreshToken)
	requireOAuth2Error(t, err, "invalid_grant")

	_, err = ts.sdk.RefreshGrant(ctx, reg.ClientID, reg.ClientSecret, second.RefreshToken)
	requireOAuth2Error(t, err, "invalid_grant")
}

func TestRevokeEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	reg := ts.register(t)
	verifier := "revocation-test-verifier-43chars-padpadpad1"
	requestID := ts.beginAuthorization(t, reg, verifier)

	cb, err := ts.sdk.CompleteCallback(ctx, requestID, "user-token")
	require.NoError(t, err)
	redirectURL, _ := url.Parse(cb.RedirectURL)

	tokens, err := ts.sdk.AuthorizationCodeGrant(ctx,
		reg.ClientID, reg.ClientSecret, redirectURL.Query().Get("code"),
		"https://app.example.com/callback", verifier)
	require.NoError(t, err)

	require.NoError(t, ts.sdk.RevokeToken(ctx, reg.ClientID, reg.ClientSecret, tokens.RefreshToken))

	_, err = ts.sdk.RefreshGrant(ctx, reg.ClientID, reg.ClientSecret, tokens.RefreshToken)
	requireOAuth2Error(t, err, "invalid_grant")

	// Revoking an unknown token is still a 200.
	require.NoError(t, ts.sdk.RevokeToken(ctx, reg.ClientID, reg.ClientSecret, "no-such-token"))
}

func TestAuthorizeErrorChannels(t *testing.T) {
	ts := newTestServer(t, nil)

	reg := ts.register(t)

	noRedirect := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// Unknown client: JSON error, no redirect.
	resp, err := http.Get(ts.srv.URL + "/oauth/authorize?response_type=code&client_id=nope&redirect_uri=" +
		url.QueryEscape("https://app.example.com/callback") + "&code_challenge=abc")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unregistered redirect URI: JSON error, never a redirect to the
	// untrusted URI.
	resp, err = http.Get(ts.srv.URL + "/oauth/authorize?response_type=code&client_id=" + reg.ClientID +
		"&redirect_uri=" + url.QueryEscape("https://evil.example.com/cb") + "&code_challenge=abc")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Whitespace-only client_id with an attacker-chosen redirect URI: the
	// redirect never validated, so the error must stay on the JSON channel.
	resp, err = noRedirect.Get(ts.srv.URL + "/oauth/authorize?response_type=code&client_id=%20" +
		"&redirect_uri=" + url.QueryEscape("https://evil.example.com/cb") + "&code_challenge=abc&state=s0")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Location"))

	// Missing PKCE challenge with a registered redirect: error by redirect.
	resp, err = noRedirect.Get(ts.srv.URL + "/oauth/authorize?response_type=code&client_id=" + reg.ClientID +
		"&redirect_uri=" + url.QueryEscape("https://app.example.com/callback") + "&state=s1")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "app.example.com", loc.Host)
	require.Equal(t, "invalid_request", loc.Query().Get("error"))
	require.Equal(t, "s1", loc.Query().Get("state"))

	// Wrong response_type with a valid client and redirect: error by
	// redirect too.
	resp, err = noRedirect.Get(ts.srv.URL + "/oauth/authorize?response_type=token&client_id=" + reg.ClientID +
		"&redirect_uri=" + url.QueryEscape("https://app.example.com/callback") + "&code_challenge=abc")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err = url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "unsupported_response_type", loc.Query().Get("error"))
}

func TestDiscoveryDocuments(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	meta, err := ts.sdk.Metadata(ctx)
	require.NoError(t, err)
	require.Equal(t, testIssuer, meta.Issuer)
	require.Equal(t, testIssuer+"/oauth/token", meta.TokenEndpoint)
	require.Contains(t, meta.ScopesSupported, "library:read")
	require.Contains(t, meta.CodeChallengeMethodsSupported, "S256")
	require.Contains(t, meta.GrantTypesSupported, "refresh_token")

	jwks, err := ts.sdk.JWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "EC", jwks.Keys[0].Kty)
	require.Equal(t, "test-key", jwks.Keys[0].Kid)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.srv.URL + "/livez")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health, err := ts.sdk.Readyz(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", health.Status)
	require.NotNil(t, health.Checks)
	require.Equal(t, "ok", health.Checks.Database)
}

func TestToolDispatchOverHTTP(t *testing.T) {
	var sawUserToken string
	catalog := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUserToken = r.Header.Get("Music-User-Token")
		switch r.URL.Path {
		case "/catalog/us/search":
			json.NewEncoder(w).Encode(map[string]any{
				"results": map[string]any{
					"songs": map[string]any{
						"data": []map[string]any{
							{"id": "s1", "attributes": map[string]any{"name": "Song One"}},
						},
					},
				},
			})
		case "/me/recent/played/tracks":
			json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		default:
			http.NotFound(w, r)
		}
	})

	ts := newTestServer(t, catalog)
	ctx := context.Background()

	reg := ts.register(t)
	verifier := "tool-dispatch-verifier-43chars-padpadpadpad"
	requestID := ts.beginAuthorization(t, reg, verifier)

	cb, err := ts.sdk.CompleteCallback(ctx, requestID, "musickit-token-tools")
	require.NoError(t, err)
	redirectURL, _ := url.Parse(cb.RedirectURL)

	tokens, err := ts.sdk.AuthorizationCodeGrant(ctx,
		reg.ClientID, reg.ClientSecret, redirectURL.Query().Get("code"),
		"https://app.example.com/callback", verifier)
	require.NoError(t, err)

	// No token: 401.
	resp, err := http.Get(ts.srv.URL + "/mcp/tools")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Tool listing with a valid token.
	var toolList authsdk.ToolListResponse
	doAuthed(t, ts, tokens.AccessToken, http.MethodGet, "/mcp/tools", nil, http.StatusOK, &toolList)
	require.NotEmpty(t, toolList.Tools)

	// Catalog search flows through to the fake upstream.
	var callResp authsdk.ToolCallResponse
	doAuthed(t, ts, tokens.AccessToken, http.MethodPost, "/mcp/call-tool",
		&authsdk.ToolCallRequest{
			Name:      "search_songs",
			Arguments: map[string]any{"query": "song one"},
		}, http.StatusOK, &callResp)
	require.NotNil(t, callResp.Result)

	// The sealed credential round-trips to the upstream header.
	doAuthed(t, ts, tokens.AccessToken, http.MethodPost, "/mcp/call-tool",
		&authsdk.ToolCallRequest{Name: "get_recently_played"}, http.StatusOK, &callResp)
	require.Equal(t, "musickit-token-tools", sawUserToken)

	// A tool outside the granted scopes is refused. The client was granted
	// library and recently-played scopes, not playlists:write.
	doAuthed(t, ts, tokens.AccessToken, http.MethodPost, "/mcp/call-tool",
		&authsdk.ToolCallRequest{
			Name:      "create_playlist",
			Arguments: map[string]any{"name": "nope"},
		}, http.StatusForbidden, nil)

	// Unknown tool: 400.
	doAuthed(t, ts, tokens.AccessToken, http.MethodPost, "/mcp/call-tool",
		&authsdk.ToolCallRequest{Name: "no_such_tool"}, http.StatusBadRequest, nil)
}

func doAuthed(
	t *testing.T,
	ts *testServer,
	accessToken, method, path string,
	body any,
	wantStatus int,
	out any,
) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func requireOAuth2Error(t *testing.T, err error, code string) {
	t.Helper()

	var oauthErr *authsdk.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, code, oauthErr.Code)
}
