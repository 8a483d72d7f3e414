package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-chatrelay/internal/config"
	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/server"
	"github.com/rs/zerolog"
)

type RelayApp struct {
	log            zerolog.Logger
	store          *database.RoomStore
	srv            *http.Server
	cs             *server.ChatServer
	allowedOrigins []string
	allowAll       bool
}

// NewRelayApp registers the relay's routes on mux. Other handlers, such as
// the metrics endpoint, may already be mounted on it.
func NewRelayApp(mux *http.ServeMux, logger zerolog.Logger, cs *server.ChatServer, store *database.RoomStore, cfg *config.Config) *RelayApp {
	origins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	a := &RelayApp{
		log:            logger.With().Str("component", "api").Logger(),
		store:          store,
		cs:             cs,
		allowedOrigins: origins,
		allowAll:       allowAll,
	}

	mux.HandleFunc("GET /api/rooms", a.listRooms)
	mux.HandleFunc("GET /api/rooms/{roomId}", a.getRoom)
	mux.HandleFunc("GET /healthz", a.healthCheck)
	mux.HandleFunc("GET /ws", a.serveWs)

	corsOrigins := origins
	if allowAll {
		corsOrigins = []string{"*"}
	}
	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(corsOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	h = handlers.CustomLoggingHandler(nil, h, a.logRequest)
	h = a.errorHandler(h)

	a.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return a
}

func (a *RelayApp) Handler() http.Handler {
	return a.srv.Handler
}

func (a *RelayApp) Start() error {
	a.log.Info().Str("addr", a.srv.Addr).Msg("starting server")
	return a.srv.ListenAndServe()
}

func (a *RelayApp) Shutdown(ctx context.Context) error {
	a.log.Info().Msg("shutting down HTTP server")
	if err := a.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
