// Command server runs the stops and GraphQL handlers as a plain HTTP server
// for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bbernstein/busstops/backend-go/graph"
	"github.com/bbernstein/busstops/backend-go/internal/bootstrap"
	"github.com/bbernstein/busstops/backend-go/internal/config"
	"github.com/bbernstein/busstops/backend-go/internal/handler"
	"github.com/bbernstein/busstops/backend-go/internal/metrics"
	"github.com/joho/godotenv"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg := config.LoadFromEnv()
	cfg.InitializeLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.NewSearchService(ctx, cfg, config.GetCacheConfig(), bootstrap.Clients{})
	if err != nil {
		return err
	}
	gql, err := graph.NewHandler(&graph.Resolver{Searcher: svc})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(handler.NewStopsHandler(svc), gql),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.EnrichTimeout + cfg.HTTPTimeout*2,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Environment).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func newRouter(stops, gql http.Handler) *httprouter.Router {
	router := httprouter.New()

	router.Handler(http.MethodGet, "/v1/stops", metrics.Middleware("/v1/stops", stops))
	router.Handler(http.MethodOptions, "/v1/stops", metrics.Middleware("/v1/stops", stops))
	router.Handler(http.MethodGet, "/v1/locations/:location/stops",
		metrics.Middleware("/v1/locations/:location/stops", locationStops(stops)))
	router.Handler(http.MethodPost, "/graphql", metrics.Middleware("/graphql", gql))
	router.Handler(http.MethodOptions, "/graphql", metrics.Middleware("/graphql", gql))
	router.HandlerFunc(http.MethodGet, "/healthz", healthz)
	router.Handler(http.MethodGet, "/metrics", metrics.Handler())

	return router
}

// locationStops moves the :location path parameter into the query string.
func locationStops(stops http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := httprouter.ParamsFromContext(r.Context())
		q := r.URL.Query()
		q.Set("location", params.ByName("location"))

		r2 := r.Clone(r.Context())
		r2.URL.RawQuery = q.Encode()
		stops.ServeHTTP(w, r2)
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
