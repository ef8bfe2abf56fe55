package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tunegate/tunegate/internal/auth/service"
	"github.com/tunegate/tunegate/internal/auth/store"
	"github.com/tunegate/tunegate/internal/music"
	"github.com/tunegate/tunegate/pkg/httpx"
	"github.com/tunegate/tunegate/pkg/jwtx"
	"github.com/tunegate/tunegate/pkg/slogx"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	signer       *jwtx.Signer
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store            store.Store
	ClientService    *service.ClientService
	AuthorizeService *service.AuthorizeService
	TokenService     *service.TokenService
	DevTokens        *music.DeveloperTokenSource
	Dispatcher       *music.Dispatcher
}

func NewRouter(
	signer *jwtx.Signer,
	issuer, buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		signer:       signer,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.MetricsMiddleware(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerDiscovery()
	r.registerTools()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	// POST /oauth/register - moderate rate limit (open registration endpoint)
	registerHandler := &RegisterHandler{ClientService: r.ClientService}
	r.Mux.Handle("POST /oauth/register",
		httpx.Chain(registerHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// GET /oauth/authorize - moderate rate limit (renders the approval page)
	authorizeHandler := &AuthorizeHandler{
		AuthorizeService: r.AuthorizeService,
		DevTokens:        r.DevTokens,
	}
	r.Mux.Handle("GET /oauth/authorize",
		httpx.Chain(authorizeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /oauth/musickit/callback - strict rate limit (completes pending
	// authorizations; the request id in the body is the only credential)
	callbackHandler := &CallbackHandler{
		AuthorizeService: r.AuthorizeService,
		TokenService:     r.TokenService,
	}
	r.Mux.Handle("POST /oauth/musickit/callback",
		httpx.Chain(callbackHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /oauth/token - strict rate limit by IP + client_id (covers both
	// grant types)
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /oauth/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "client_id"),
		),
	)

	// POST /oauth/revoke - moderate rate limit
	revokeHandler := &RevokeHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /oauth/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerDiscovery() {
	r.Mux.Handle("GET /.well-known/oauth-authorization-server",
		httpx.Chain(MetadataHandler(r.issuer),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.signer),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerTools() {
	h := &ToolsHandler{
		TokenService: r.TokenService,
		Dispatcher:   r.Dispatcher,
	}

	r.Mux.Handle("GET /mcp/tools",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /mcp/call-tool",
		httpx.Chain(http.HandlerFunc(h.HandleCall),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - public rate limits (monitoring systems may
	// poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.signer),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	r.Mux.Handle("GET /metrics", promhttp.Handler())
}
