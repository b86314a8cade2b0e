package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/bbernstein/busstops/backend-go/internal/api"
	"github.com/bbernstein/busstops/backend-go/internal/geocode"
	"github.com/bbernstein/busstops/backend-go/internal/models"
	"github.com/bbernstein/busstops/backend-go/internal/search"
	"github.com/rs/zerolog/log"
)

// SessionHeader identifies the client session whose newer searches
// supersede older ones.
const SessionHeader = api.SessionHeader

type Searcher interface {
	Search(ctx context.Context, req search.Request) (*models.SearchResult, error)
}

type StopsHandler struct {
	searcher Searcher
}

func NewStopsHandler(searcher Searcher) *StopsHandler {
	return &StopsHandler{
		searcher: searcher,
	}
}

func (h *StopsHandler) HandleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch request.HTTPMethod {
	case "", http.MethodGet:
	case http.MethodOptions:
		return api.Preflight()
	default:
		return api.Error("Method not allowed", http.StatusMethodNotAllowed)
	}

	req, query, err := ParseRequest(request.QueryStringParameters, sessionKey(request.Headers))
	if err != nil {
		return api.FromError(err)
	}

	result, err := h.searcher.Search(ctx, req)
	if err != nil {
		status, _ := api.ErrorStatus(err)
		switch {
		case geocode.IsNotFound(err):
			log.Warn().Err(err).Str("location", req.Location).Msg("Location not found")
		case status >= http.StatusInternalServerError:
			log.Error().Err(err).Str("location", req.Location).Msg("Stop search failed")
		}
		return api.FromError(err)
	}

	return api.Success(api.NewStopsResponse(search.Filtered(result, query)))
}

// ParseRequest turns query parameters into a search request and the filter
// to apply to its result.
func ParseRequest(params map[string]string, session string) (search.Request, models.Query, error) {
	ref, err := api.ParseCoordinates(params)
	if err != nil {
		return search.Request{}, models.Query{}, err
	}

	query, err := api.ParseQuery(params)
	if err != nil {
		return search.Request{}, models.Query{}, err
	}

	radius, err := api.ParseRadius(params)
	if err != nil {
		return search.Request{}, models.Query{}, err
	}

	return search.Request{
		Location:     params["location"],
		Reference:    ref,
		Query:        query,
		SessionKey:   session,
		RadiusMeters: radius,
	}, query, nil
}

func sessionKey(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, SessionHeader) {
			return v
		}
	}
	return ""
}

// ServeHTTP adapts the Lambda handler for the local server.
func (h *StopsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	headers := make(map[string]string)
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	resp, err := h.HandleRequest(r.Context(), events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		QueryStringParameters: params,
		Headers:               headers,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to build response")
		http.Error(w, api.MsgInternal, http.StatusInternalServerError)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write([]byte(resp.Body))
}
