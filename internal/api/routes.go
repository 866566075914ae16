package api

import (
	"net/http"

	"github.com/earthring/chunkstream/internal/auth"
	"github.com/earthring/chunkstream/internal/config"
	"github.com/earthring/chunkstream/internal/performance"
	"github.com/earthring/chunkstream/internal/position"
	"github.com/earthring/chunkstream/internal/world"
)

// Deps are the components the HTTP surface is built on.
type Deps struct {
	World       World
	Interaction *world.InteractionState
	Hub         *Hub
	Positions   *position.Observable
	Tokens      *auth.TokenService
	Profiler    *performance.Profiler
	Origins     []string
}

// NewRouter registers every route and wraps them in the shared middleware.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	origins := deps.Origins
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}
	tokens := deps.Tokens
	if tokens == nil {
		tokens = auth.NewTokenService(cfg.Auth)
	}

	mux := http.NewServeMux()
	SetupChunkRoutes(mux, cfg, NewChunkHandlers(deps.World, deps.Hub, deps.Profiler))
	SetupWebSocketRoutes(mux, cfg, tokens, NewWebSocketHandlers(deps.Hub, deps.Positions, deps.Interaction, cfg.World.ChunkSize, origins))

	return CORSMiddleware(origins)(auth.SecurityHeadersMiddleware(mux))
}

// SetupChunkRoutes registers health, chunk inspection and stats routes.
func SetupChunkRoutes(mux *http.ServeMux, cfg *config.Config, handlers *ChunkHandlers) {
	rateLimited := RateLimitMiddleware(cfg.RateLimit.Limit, cfg.RateLimit.Window)

	mux.HandleFunc("GET /health", handlers.Health)
	mux.Handle("GET /api/chunks", rateLimited(http.HandlerFunc(handlers.ListChunks)))
	mux.Handle("GET /api/chunks/{key}", rateLimited(http.HandlerFunc(handlers.GetChunk)))
	mux.Handle("GET /api/stats", rateLimited(http.HandlerFunc(handlers.Stats)))
}

// SetupWebSocketRoutes registers the observer stream. Connections are
// authenticated when a token secret is configured and rate limited per
// observer.
func SetupWebSocketRoutes(mux *http.ServeMux, cfg *config.Config, tokens *auth.TokenService, handlers *WebSocketHandlers) {
	observerLimit := ObserverRateLimitMiddleware(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	mux.Handle("GET /ws", tokens.Middleware(observerLimit(http.HandlerFunc(handlers.HandleWebSocket))))
}
