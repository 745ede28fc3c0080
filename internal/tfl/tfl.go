// Package tfl finds stop points near a coordinate using the TfL Unified API
// StopPoint search.
package tfl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yourusername/stop-finder/internal/domain"
	"github.com/yourusername/stop-finder/internal/request"
)

// DefaultBaseURL is the public TfL Unified API endpoint.
const DefaultBaseURL = "https://api.tfl.gov.uk"

// DefaultRadius is the search radius in metres.
const DefaultRadius = 1000

const stopTypes = "NaptanPublicBusCoachTram"

var errNoStopPoints = errors.New("upstream returned no stop points")

// Getter performs a classified GET. *request.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (string, error)
}

// Options configure a Gateway. Empty credentials are sent as-is.
type Options struct {
	BaseURL string
	AppID   string
	AppKey  string
	Radius  int
}

// Gateway searches stop points against one transit service.
type Gateway struct {
	opts   Options
	client Getter
}

// NewGateway returns a Gateway. A zero Radius means DefaultRadius. It fails
// with domain.ErrMalformedBaseURL when opts.BaseURL is not absolute.
func NewGateway(opts Options, client Getter) (*Gateway, error) {
	if _, err := request.ParseBase(opts.BaseURL); err != nil {
		return nil, err
	}
	if opts.Radius == 0 {
		opts.Radius = DefaultRadius
	}
	return &Gateway{opts: opts, client: client}, nil
}

type stopPoint struct {
	NaptanID   string `json:"naptanId"`
	CommonName string `json:"commonName"`
}

type searchResponse struct {
	StopPoints []stopPoint `json:"stopPoints"`
}

// NearestStops returns up to count stop points near coord, in upstream order.
// Every failure, including an empty result, is a *domain.NoStopsFoundError.
func (g *Gateway) NearestStops(ctx context.Context, coord domain.Coordinate, count int) ([]domain.StopPoint, error) {
	fail := func(err error) ([]domain.StopPoint, error) {
		return nil, &domain.NoStopsFoundError{Coordinate: coord, Count: count, Err: err}
	}
	if count < 1 {
		return fail(fmt.Errorf("count must be positive, got %d", count))
	}

	u, err := request.Build(g.opts.BaseURL, "StopPoint",
		request.String("stopTypes", stopTypes),
		request.Float("lat", coord.Latitude),
		request.Float("lon", coord.Longitude),
		request.Int("radius", g.opts.Radius),
		request.String("app_id", g.opts.AppID),
		request.String("app_key", g.opts.AppKey),
	)
	if err != nil {
		return fail(err)
	}

	body, err := g.client.Get(ctx, u)
	if err != nil {
		return fail(err)
	}

	var parsed searchResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return fail(fmt.Errorf("failed to parse response: %w", err))
	}
	if len(parsed.StopPoints) == 0 {
		return fail(errNoStopPoints)
	}

	n := min(count, len(parsed.StopPoints))
	stops := make([]domain.StopPoint, 0, n)
	for _, sp := range parsed.StopPoints[:n] {
		stops = append(stops, domain.StopPoint{ID: sp.NaptanID, CommonName: sp.CommonName})
	}
	return stops, nil
}
