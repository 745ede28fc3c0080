// Package request builds upstream URLs and performs classified GET requests
// against the geocoding and transit services.
package request

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/yourusername/stop-finder/internal/domain"
)

// Param is a single query parameter.
type Param struct {
	Name  string
	Value string
}

// String returns a string-valued parameter.
func String(name, value string) Param {
	return Param{Name: name, Value: value}
}

// Int returns an integer-valued parameter.
func Int(name string, value int) Param {
	return Param{Name: name, Value: strconv.Itoa(value)}
}

// Float returns a float-valued parameter in shortest round-trip form.
func Float(name string, value float64) Param {
	return Param{Name: name, Value: strconv.FormatFloat(value, 'f', -1, 64)}
}

// MalformedBaseURLError reports a base URL that is not an absolute URL.
type MalformedBaseURLError struct {
	BaseURL string
	Err     error
}

func (e *MalformedBaseURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed base url %q: %v", e.BaseURL, e.Err)
	}
	return fmt.Sprintf("malformed base url %q", e.BaseURL)
}

func (e *MalformedBaseURLError) Unwrap() error { return e.Err }

// Is reports domain.ErrMalformedBaseURL as a match.
func (e *MalformedBaseURLError) Is(target error) bool { return target == domain.ErrMalformedBaseURL }

// ParseBase parses an absolute base URL. Its path is treated as a directory
// so that relative endpoints are resolved beneath it.
func ParseBase(baseURL string) (*url.URL, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &MalformedBaseURLError{BaseURL: baseURL, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &MalformedBaseURLError{BaseURL: baseURL}
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		if u.RawPath != "" {
			u.RawPath += "/"
		}
	}
	return u, nil
}

// Build resolves endpoint, an escaped relative path, against baseURL and
// appends params, in order, as percent-encoded query pairs. Duplicate names
// are kept.
func Build(baseURL, endpoint string, params ...Param) (string, error) {
	base, err := ParseBase(baseURL)
	if err != nil {
		return "", err
	}

	ref, err := url.Parse("./" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	u := base.ResolveReference(ref)

	pairs := make([]string, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, url.QueryEscape(p.Name)+"="+url.QueryEscape(p.Value))
	}
	u.RawQuery = strings.Join(pairs, "&")
	u.Fragment = ""

	return u.String(), nil
}

var secretParams = map[string]bool{"app_key": true}

// Redact masks credential values in a built URL so it can be logged.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}
	pairs := strings.Split(u.RawQuery, "&")
	for i, pair := range pairs {
		name, value, _ := strings.Cut(pair, "=")
		if secretParams[name] && value != "" {
			pairs[i] = name + "=REDACTED"
		}
	}
	u.RawQuery = strings.Join(pairs, "&")
	return u.String()
}
