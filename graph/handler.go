package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/bbernstein/busstops/backend-go/internal/api"
	"github.com/bbernstein/busstops/backend-go/internal/handler"
	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	schema graphql.Schema
}

// Request is a GraphQL request body
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

func NewHandler(resolver *Resolver) (*Handler, error) {
	schema, err := NewSchema(resolver)
	if err != nil {
		return nil, fmt.Errorf("building schema: %w", err)
	}
	return &Handler{schema: schema}, nil
}

// Execute runs one GraphQL request against the schema.
func (h *Handler) Execute(ctx context.Context, req Request) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
}

func (h *Handler) HandleRequest(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if event.HTTPMethod == "" {
		event.HTTPMethod = http.MethodPost
	}
	if event.HTTPMethod == http.MethodOptions {
		return api.Preflight()
	}
	if event.HTTPMethod != http.MethodPost {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusMethodNotAllowed,
			Body:       "Only POST method is allowed",
		}, nil
	}

	var req Request
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return jsonResponse(http.StatusBadRequest, errorResult("Invalid request body")), nil
	}

	for k, v := range event.Headers {
		if strings.EqualFold(k, handler.SessionHeader) {
			ctx = WithSessionKey(ctx, v)
		}
	}

	return jsonResponse(http.StatusOK, h.Execute(ctx, req)), nil
}

// ServeHTTP serves POST /graphql for the local server.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for k, v := range api.CORSHeaders() {
		w.Header().Set(k, v)
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(errorResult("Only POST method is allowed"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(errorResult("Invalid request body"))
		return
	}

	ctx := r.Context()
	if key := r.Header.Get(handler.SessionHeader); key != "" {
		ctx = WithSessionKey(ctx, key)
	}

	if err := json.NewEncoder(w).Encode(h.Execute(ctx, req)); err != nil {
		log.Error().Err(err).Msg("Failed to write GraphQL response")
	}
}

func errorResult(message string) map[string]interface{} {
	return map[string]interface{}{
		"errors": []map[string]string{{"message": message}},
	}
}

func jsonResponse(status int, body interface{}) events.APIGatewayProxyResponse {
	b, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"errors":[{"message":"Internal Server Error"}]}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    api.CORSHeaders(),
		Body: string(b),
	}
}
