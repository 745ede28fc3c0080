// Package finder runs the postcode lookup: prompt for a postcode, geocode it,
// find the nearest stops and present them.
package finder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourusername/stop-finder/internal/domain"
	"github.com/yourusername/stop-finder/internal/metrics"
	"github.com/yourusername/stop-finder/internal/observability"
	"github.com/yourusername/stop-finder/internal/postcode"
)

// Prompt is shown before reading the postcode.
const Prompt = "\nEnter your postcode: "

// DefaultCount is the number of stops presented when none is configured.
const DefaultCount = 5

// Geocoder resolves a normalised postcode to a coordinate.
type Geocoder interface {
	Resolve(ctx context.Context, postcode string) (domain.Coordinate, error)
}

// StopSearcher lists stop points near a coordinate.
type StopSearcher interface {
	NearestStops(ctx context.Context, coord domain.Coordinate, count int) ([]domain.StopPoint, error)
}

// Console is the terminal a run talks to. Run closes it when done.
type Console interface {
	PromptLine(ctx context.Context, msg string) (string, error)
	PrintLine(text string) error
	Close() error
}

// State is the position of a run in the lookup.
type State int

const (
	AwaitingInput State = iota
	ResolvingLocation
	ResolvingStops
	Presenting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case ResolvingLocation:
		return "resolving_location"
	case ResolvingStops:
		return "resolving_stops"
	case Presenting:
		return "presenting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is everything one run produced. Each run owns its own Outcome.
type Outcome struct {
	State    State              `json:"-"`
	Input    string             `json:"input"`
	Postcode string             `json:"postcode"`
	Location *domain.Coordinate `json:"location,omitempty"`
	Stops    []domain.StopPoint `json:"stops,omitempty"`
}

func (o *Outcome) transition(to State) {
	slog.Debug("lookup transition", "from", o.State, "to", to, "postcode", o.Postcode)
	o.State = to
}

// Finder wires the geocoder and stop searcher together. It holds no per-run
// state and may serve concurrent runs.
type Finder struct {
	geocoder Geocoder
	stops    StopSearcher
	count    int
}

// New returns a Finder presenting count stops. A non-positive count means DefaultCount.
func New(geocoder Geocoder, stops StopSearcher, count int) *Finder {
	if count <= 0 {
		count = DefaultCount
	}
	return &Finder{geocoder: geocoder, stops: stops, count: count}
}

// Lookup normalises input and resolves it to the nearest stops. On failure
// the returned Outcome is in the Failed state and err is a domain error.
func (f *Finder) Lookup(ctx context.Context, input string) (*Outcome, error) {
	out := &Outcome{
		State:    AwaitingInput,
		Input:    strings.TrimSpace(input),
		Postcode: postcode.Normalise(input),
	}

	ctx, span := observability.StartSpan(ctx, "lookup", attribute.String("postcode", out.Postcode))
	defer span.End()

	out.transition(ResolvingLocation)
	coord, err := f.geocoder.Resolve(ctx, out.Postcode)
	if err != nil {
		return fail(span, out, err)
	}
	out.Location = &coord

	out.transition(ResolvingStops)
	stops, err := f.stops.NearestStops(ctx, coord, f.count)
	if err != nil {
		return fail(span, out, err)
	}
	out.Stops = stops
	span.SetAttributes(attribute.Int("stops", len(stops)))

	return out, nil
}

func fail(span trace.Span, out *Outcome, err error) (*Outcome, error) {
	out.transition(Failed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.CountLookup(outcomeLabel(err))
	slog.Warn("lookup failed", "input", out.Input, "postcode", out.Postcode, "error", err)
	return out, err
}

// Run performs one interactive pass: one prompt, one geocoding call, one
// stop search and one presentation. The console is closed on every path.
// Either the stop names or a single error line is printed, never both.
func (f *Finder) Run(ctx context.Context, console Console) (out *Outcome, err error) {
	defer func() {
		if cerr := console.Close(); cerr != nil {
			slog.Warn("closing console", "error", cerr)
		}
	}()

	line, err := console.PromptLine(ctx, Prompt)
	if err != nil {
		metrics.CountLookup(metrics.LookupInputError)
		return &Outcome{State: Failed}, fmt.Errorf("read postcode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		metrics.CountLookup(metrics.LookupCancelled)
		return &Outcome{State: Failed, Input: strings.TrimSpace(line)}, fmt.Errorf("lookup interrupted: %w", err)
	}

	out, err = f.Lookup(ctx, line)
	if err != nil {
		if perr := console.PrintLine(FailureMessage(out, err)); perr != nil {
			slog.Warn("printing failure", "error", perr)
		}
		return out, err
	}

	out.transition(Presenting)
	for _, stop := range out.Stops {
		if err := console.PrintLine(stop.CommonName); err != nil {
			out.transition(Failed)
			metrics.CountLookup(metrics.LookupOutputError)
			return out, fmt.Errorf("present stops: %w", err)
		}
	}

	out.transition(Done)
	metrics.CountLookup(metrics.LookupDone)
	return out, nil
}

// FailureMessage is the single line shown to a user when a lookup fails.
// It names the kind of failure and the input that caused it.
func FailureMessage(out *Outcome, err error) string {
	input := ""
	if out != nil {
		input = out.Input
	}
	switch {
	case errors.Is(err, domain.ErrLocationNotFound):
		return fmt.Sprintf("ERROR! Location not found for postcode %q", input)
	case errors.Is(err, domain.ErrNoStopsFound):
		var nsf *domain.NoStopsFoundError
		if errors.As(err, &nsf) {
			return fmt.Sprintf("ERROR! No stops found near %s for postcode %q", nsf.Coordinate, input)
		}
		return fmt.Sprintf("ERROR! No stops found for postcode %q", input)
	default:
		return fmt.Sprintf("ERROR! Lookup failed for postcode %q", input)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrLocationNotFound):
		return metrics.LookupLocationNotFound
	case errors.Is(err, domain.ErrNoStopsFound):
		return metrics.LookupNoStopsFound
	}
	return "error"
}
