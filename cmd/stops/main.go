package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/bbernstein/busstops/backend-go/internal/api"
	"github.com/bbernstein/busstops/backend-go/internal/bootstrap"
	"github.com/bbernstein/busstops/backend-go/internal/config"
	"github.com/bbernstein/busstops/backend-go/internal/handler"
	"github.com/rs/zerolog/log"
)

var (
	lambdaStart  = lambda.Start // Allow mocking of lambda.Start in tests
	stopsHandler *handler.StopsHandler
	setupOnce    sync.Once
	initHandler  = defaultInitHandler
)

func defaultInitHandler(ctx context.Context) (*handler.StopsHandler, error) {
	cfg := config.LoadFromEnv()
	cfg.InitializeLogging()

	svc, err := bootstrap.NewSearchService(ctx, cfg, config.GetCacheConfig(), bootstrap.Clients{})
	if err != nil {
		return nil, err
	}
	return handler.NewStopsHandler(svc), nil
}

// InitializeService builds the handler once per container.
func InitializeService() error {
	var initError error
	setupOnce.Do(func() {
		var err error
		stopsHandler, err = initHandler(context.Background())
		if err != nil {
			initError = fmt.Errorf("failed to initialize handler: %w", err)
			log.Error().Err(err).Msg("Failed to initialize stops handler")
		}
	})
	return initError
}

func handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if stopsHandler == nil {
		return api.Error(api.MsgInternal, http.StatusInternalServerError)
	}
	return stopsHandler.HandleRequest(ctx, request)
}

func main() {
	if err := InitializeService(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	lambdaStart(handleRequest)
}
