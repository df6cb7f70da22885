package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"teamcollab/internal/api"
	"teamcollab/internal/auth"
	"teamcollab/internal/config"
	"teamcollab/internal/database"
	"teamcollab/internal/relay"
	"teamcollab/internal/websocket"
	dbconfig "teamcollab/pkg/database"
)

// Application owns every component and their lifecycles. Initialization
// follows dependency order: Store, Auth, Registry, Presence, Relay, API,
// Gateway, HTTP. Shutdown runs the same chain in reverse.
type Application struct {
	config         *config.Config
	store          *database.Manager
	registry       *websocket.Registry
	relay          *relay.Relay
	httpServer     *http.Server
	stopBackground context.CancelFunc
	log            zerolog.Logger
}

// NewApplication builds the fully wired service.
func NewApplication(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := database.NewManager(&dbconfig.Config{
		DatabasePath:    cfg.DatabasePath,
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	tokens := auth.NewVerifier(cfg.JWTSecret, cfg.JWTTTL)
	registry := websocket.NewRegistry()
	presence := relay.NewPresence(registry, store, log)
	eventRelay := relay.NewRelay(registry, store, presence, cfg.MessageRateLimit, log)

	apiServer := api.NewServer(store, tokens, registry, log)
	wsHandler := websocket.NewHandler(registry, tokens, eventRelay, websocket.Options{
		PingInterval: cfg.WSPingInterval,
		ReadTimeout:  cfg.WSReadTimeout,
		WriteTimeout: cfg.WSWriteTimeout,
		BufferSize:   cfg.WSBufferSize,
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		registry:   registry,
		relay:      eventRelay,
		httpServer: httpServer,
		log:        log,
	}, nil
}

// Start begins serving. It returns once the listener is confirmed up or the
// context is cancelled.
func (app *Application) Start(ctx context.Context) error {
	app.log.Info().Str("addr", app.httpServer.Addr).Msg("starting server")

	backgroundCtx, cancel := context.WithCancel(context.Background())
	app.stopBackground = cancel
	go app.relay.RunCleanup(backgroundCtx, 5*time.Minute)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		app.log.Info().Msg("server started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: stop accepting requests,
// then close the store.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info().Msg("shutting down")

	if app.stopBackground != nil {
		app.stopBackground()
	}
	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.log.Error().Err(err).Msg("HTTP shutdown error")
	}
	if err := app.store.Close(); err != nil {
		app.log.Error().Err(err).Msg("store shutdown error")
	}

	app.log.Info().Msg("shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
