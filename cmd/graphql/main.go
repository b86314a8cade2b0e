package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/bbernstein/busstops/backend-go/graph"
	"github.com/bbernstein/busstops/backend-go/internal/bootstrap"
	"github.com/bbernstein/busstops/backend-go/internal/config"
	"github.com/rs/zerolog/log"
)

var (
	lambdaStart = lambda.Start
	handler     *graph.Handler
	setupOnce   sync.Once
	initHandler = defaultInitHandler
)

func defaultInitHandler(ctx context.Context) (*graph.Handler, error) {
	cfg := config.LoadFromEnv()
	cfg.InitializeLogging()

	svc, err := bootstrap.NewSearchService(ctx, cfg, config.GetCacheConfig(), bootstrap.Clients{})
	if err != nil {
		return nil, fmt.Errorf("initializing search service: %w", err)
	}

	return graph.NewHandler(&graph.Resolver{Searcher: svc})
}

func handleRequest(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if handler == nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       `{"errors": [{"message": "Handler not initialized"}]}`,
		}, fmt.Errorf("handler not initialized")
	}
	return handler.HandleRequest(ctx, event)
}

func InitializeService() error {
	var initError error
	setupOnce.Do(func() {
		log.Debug().Msg("Initializing GraphQL service...")
		var err error
		handler, err = initHandler(context.Background())
		if err != nil {
			initError = fmt.Errorf("failed to initialize handler: %w", err)
			log.Error().Err(err).Msg("Failed to initialize handler")
			return
		}
		log.Debug().Msg("GraphQL service initialized successfully")
	})
	return initError
}

func main() {
	if err := InitializeService(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	lambdaStart(handleRequest)
}
