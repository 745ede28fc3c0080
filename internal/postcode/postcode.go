// Package postcode resolves postcodes to coordinates using a postcodes.io
// compatible service.
// Free, no API key required. Docs: https://postcodes.io
package postcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/yourusername/stop-finder/internal/domain"
	"github.com/yourusername/stop-finder/internal/request"
)

// DefaultBaseURL is the public postcodes.io endpoint.
const DefaultBaseURL = "https://api.postcodes.io"

var errEmptyPostcode = errors.New("postcode is empty")

// Getter performs a classified GET. *request.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (string, error)
}

// Gateway resolves postcodes against one geocoding service.
type Gateway struct {
	baseURL string
	client  Getter
}

// NewGateway returns a Gateway for baseURL. It fails with
// domain.ErrMalformedBaseURL when baseURL is not absolute.
func NewGateway(baseURL string, client Getter) (*Gateway, error) {
	if _, err := request.ParseBase(baseURL); err != nil {
		return nil, err
	}
	return &Gateway{baseURL: baseURL, client: client}, nil
}

type result struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type apiResponse struct {
	Status int     `json:"status"`
	Result *result `json:"result"`
}

// Normalise strips all whitespace from a postcode as typed by a user.
func Normalise(pc string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, pc)
}

// Resolve returns the coordinate of postcode. The postcode is used as given;
// callers normalise user input first. Every failure is a
// *domain.LocationNotFoundError.
func (g *Gateway) Resolve(ctx context.Context, postcode string) (domain.Coordinate, error) {
	if postcode == "" {
		return domain.Coordinate{}, &domain.LocationNotFoundError{Postcode: postcode, Err: errEmptyPostcode}
	}

	u, err := request.Build(g.baseURL, "postcodes/"+url.PathEscape(postcode))
	if err != nil {
		return domain.Coordinate{}, &domain.LocationNotFoundError{Postcode: postcode, Err: err}
	}

	body, err := g.client.Get(ctx, u)
	if err != nil {
		return domain.Coordinate{}, &domain.LocationNotFoundError{Postcode: postcode, Err: err}
	}

	coord, err := parse(body)
	if err != nil {
		return domain.Coordinate{}, &domain.LocationNotFoundError{Postcode: postcode, Err: err}
	}
	return coord, nil
}

func parse(body string) (domain.Coordinate, error) {
	var parsed apiResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return domain.Coordinate{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Result == nil {
		return domain.Coordinate{}, errors.New("response has no result")
	}
	if parsed.Result.Latitude == nil || parsed.Result.Longitude == nil {
		return domain.Coordinate{}, errors.New("result has no coordinates")
	}
	return domain.Coordinate{
		Latitude:  *parsed.Result.Latitude,
		Longitude: *parsed.Result.Longitude,
	}, nil
}
