package finder_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/stop-finder/internal/domain"
	"github.com/yourusername/stop-finder/internal/finder"
	"github.com/yourusername/stop-finder/internal/metrics"
	"github.com/yourusername/stop-finder/internal/request"
)

// --- Fakes ---

type fakeConsole struct {
	input    string
	inputErr error
	printErr error
	prompts  []string
	lines    []string
	closed   int
}

func (c *fakeConsole) PromptLine(ctx context.Context, msg string) (string, error) {
	c.prompts = append(c.prompts, msg)
	return c.input, c.inputErr
}

func (c *fakeConsole) PrintLine(text string) error {
	if c.printErr != nil {
		return c.printErr
	}
	c.lines = append(c.lines, text)
	return nil
}

func (c *fakeConsole) Close() error {
	c.closed++
	return nil
}

// blockingConsole waits at the prompt until ctx ends, like a terminal
// nobody types into.
type blockingConsole struct {
	fakeConsole
}

func (c *blockingConsole) PromptLine(ctx context.Context, msg string) (string, error) {
	c.prompts = append(c.prompts, msg)
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeGeocoder struct {
	resolveFn func(ctx context.Context, postcode string) (domain.Coordinate, error)
	mu        sync.Mutex
	calls     []string
}

func (g *fakeGeocoder) Resolve(ctx context.Context, postcode string) (domain.Coordinate, error) {
	g.mu.Lock()
	g.calls = append(g.calls, postcode)
	g.mu.Unlock()
	return g.resolveFn(ctx, postcode)
}

type stopsCall struct {
	coord domain.Coordinate
	count int
}

type fakeStops struct {
	nearestFn func(ctx context.Context, coord domain.Coordinate, count int) ([]domain.StopPoint, error)
	mu        sync.Mutex
	calls     []stopsCall
}

func (s *fakeStops) NearestStops(ctx context.Context, coord domain.Coordinate, count int) ([]domain.StopPoint, error) {
	s.mu.Lock()
	s.calls = append(s.calls, stopsCall{coord, count})
	s.mu.Unlock()
	return s.nearestFn(ctx, coord, count)
}

var westminster = domain.Coordinate{Latitude: 51.501, Longitude: -0.141}

func westminsterStops() []domain.StopPoint {
	return []domain.StopPoint{
		{ID: "940GZZLUWSM", CommonName: "Westminster Station"},
		{ID: "490010842W", CommonName: "Parliament Square"},
		{ID: "490014272V", CommonName: "Victoria Embankment"},
	}
}

// --- Tests ---

func TestRun_PresentsStopsInOrder(t *testing.T) {
	geo := &fakeGeocoder{resolveFn: func(ctx context.Context, pc string) (domain.Coordinate, error) {
		return westminster, nil
	}}
	stops := &fakeStops{nearestFn: func(ctx context.Context, c domain.Coordinate, n int) ([]domain.StopPoint, error) {
		return westminsterStops(), nil
	}}
	con := &fakeConsole{input: "SW1A 1AA"}

	before := testutil.ToFloat64(metrics.Lookups.WithLabelValues(metrics.LookupDone))

	out, err := finder.New(geo, stops, 5).Run(context.Background(), con)
	require.NoError(t, err)

	assert.Equal(t, []string{finder.Prompt}, con.prompts)
	assert.Equal(t, []string{"Westminster Station", "Parliament Square", "Victoria Embankment"}, con.lines)
	assert.Equal(t, []string{"SW1A1AA"}, geo.calls)
	assert.Equal(t, []stopsCall{{westminster, 5}}, stops.calls)
	assert.Equal(t, finder.Done, out.State)
	assert.Equal(t, "SW1A 1AA", out.Input)
	assert.Equal(t, "SW1A1AA", out.Postcode)
	assert.Equal(t, &westminster, out.Location)
	assert.Equal(t, 1, con.closed)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Lookups.WithLabelValues(metrics.LookupDone)))
}

func TestRun_LocationNotFound(t *testing.T) {
	geo := &fakeGeocoder{resolveFn: func(ctx context.Context, pc string) (domain.Coordinate, error) {
		return domain.Coordinate{}, &domain.LocationNotFoundError{
			Postcode: pc,
			Err:      &request.StatusError{URL: "https://api.postcodes.io/postcodes/" + pc, StatusCode: 404},
		}
	}}
	stops := &fakeStops{nearestFn: func(ctx context.Context, c domain.Coordinate, n int) ([]domain.StopPoint, error) {
		t.Fatal("stop search must not run after a geocoding failure")
		return nil, nil
	}}
	con := &fakeConsole{input: "ZZ99 9ZZ"}

	out, err := finder.New(geo, stops, 5).Run(context.Background(), con)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLocationNotFound)
	assert.Equal(t, finder.Failed, out.State)
	assert.Nil(t, out.Location)

	require.Len(t, con.lines, 1)
	assert.Contains(t, con.lines[0], "Location not found")
	assert.Contains(t, con.lines[0], `"ZZ99 9ZZ"`)
	assert.Equal(t, 1, con.closed)
}

func TestRun_NoStopsFound(t *testing.T) {
	geo := &fakeGeocoder{resolveFn: func(ctx context.Context, pc string) (domain.Coordinate, error) {
		return westminster, nil
	}}
	stops := &fakeStops{nearestFn: func(ctx context.Context, c domain.Coordinate, n int) ([]domain.StopPoint, error) {
		return nil, &domain.NoStopsFoundError{Coordinate: c, Count: n}
	}}
	con := &fakeConsole{input: "SW1A 1AA"}

	out, err := finder.New(geo, stops, 5).Run(context.Background(), con)
	assert.ErrorIs(t, err, domain.ErrNoStopsFound)
	assert.Equal(t, finder.Failed, out.State)

	require.Len(t, con.lines, 1)
	assert.Equal(t, `ERROR! No stops found near (51.501000, -0.141000) for postcode "SW1A 1AA"`, con.lines[0])
	assert.Equal(t, 1, con.closed)
}

func TestRun_InputError(t *testing.T) {
	geo := &fakeGeocoder{resolveFn: func(ctx context.Context, pc string) (domain.Coordinate, error) {
		t.Fatal("geocoder must not run without input")
		return domain.Coordinate{}, nil
	}}
	con := &fakeConsole{inputErr: io.EOF}

	out, err := finder.New(geo, &fakeStops{}, 5).Run(context.Background(), con)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, finder.Failed, out.State)
	assert.Empty(t, con.lines)
	assert.Equal(t, 1, con.closed)
}

func TestRun_CancelledAtPrompt(t *testing.T) {
	geo := &fakeGeocoder{resolveFn: func(ctx context.Context, pc string) (domain.Coordinate, error) {
		t.Fatal("geocoder must not run after cancellation")
		return domain.Coordinate{}, nil
	}}
	con := &blockingConsole{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := finder.New(geo, &fakeStops{}, 5).Run(ctx, con)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, domain.ErrLocationNotFound)
	case <-time.After(2 * time.Second):
		t.Fatal("Run still blocked after cancel")
	}
	assert.Empty(t, con.lines)
	assert.Equal(t, 1, con.closed)
}

func TestRun_CancelledAfterInput(t *testing.T) {
	geo := &fakeGeocoder{resolveFn: func(ctx context.Context, pc string) (domain.Coordinate, error) {
		t.Fatal("geocoder must not run after cancellation")
		return domain.Coordinate{}, nil
	}}
	con := &fakeConsole{input: "SW1A 1AA"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := testutil.ToFloat64(metrics.Lookups.WithLabelValues(metrics.LookupCancelled))
	out, err := finder.New(geo, &fakeStops{}, 5).Run(ctx, con)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, finder.Failed, out.State)
	assert.Empty(t, con.lines)
	assert.Equal(t, 1, con.closed)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Lookups.WithLabelValues(metrics.LookupCancelled)))
}

func TestRun_PresentationError(t *testing.T) {
	geo := &fakeGeocoder{resolveFn: func(ctx context.Context, pc string) (domain.Coordinate, error) {
		return westminster, nil
	}}
	stops := &fakeStops{nearestFn: func(ctx context.Context, c domain.Coordinate, n int) ([]domain.StopPoint, error) {
		return westminsterStops(), nil
	}}
	broken := errors.New("broken pipe")
	con := &fakeConsole{input: "SW1A1AA", printErr: broken}

	out, err := finder.New(geo, stops, 5).Run(context.Background(), con)
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, finder.Failed, out.State)
	assert.Equal(t, 1, con.closed)
}

func TestNew_DefaultCount(t *testing.T) {
	geo := &fakeGeocoder{resolveFn: func(ctx context.Context, pc string) (domain.Coordinate, error) {
		return westminster, nil
	}}
	stops := &fakeStops{nearestFn: func(ctx context.Context, c domain.Coordinate, n int) ([]domain.StopPoint, error) {
		return westminsterStops(), nil
	}}

	_, err := finder.New(geo, stops, 0).Lookup(context.Background(), "SW1A1AA")
	require.NoError(t, err)
	require.Len(t, stops.calls, 1)
	assert.Equal(t, finder.DefaultCount, stops.calls[0].count)
}

func TestLookup_ConcurrentRunsAreIsolated(t *testing.T) {
	geo := &fakeGeocoder{resolveFn: func(ctx context.Context, pc string) (domain.Coordinate, error) {
		var n int
		fmt.Sscanf(pc, "PC%d", &n)
		return domain.Coordinate{Latitude: float64(n), Longitude: -float64(n)}, nil
	}}
	stops := &fakeStops{nearestFn: func(ctx context.Context, c domain.Coordinate, n int) ([]domain.StopPoint, error) {
		return []domain.StopPoint{{ID: fmt.Sprintf("%.0f", c.Latitude), CommonName: fmt.Sprintf("Stop %.0f", c.Latitude)}}, nil
	}}
	f := finder.New(geo, stops, 5)

	const runs = 32
	outs := make([]*finder.Outcome, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.Lookup(context.Background(), fmt.Sprintf("PC %d", i))
			assert.NoError(t, err)
			outs[i] = out
		}(i)
	}
	wg.Wait()

	for i, out := range outs {
		require.NotNil(t, out)
		assert.Equal(t, fmt.Sprintf("PC%d", i), out.Postcode)
		assert.Equal(t, float64(i), out.Location.Latitude)
		assert.Equal(t, []domain.StopPoint{{ID: fmt.Sprint(i), CommonName: fmt.Sprintf("Stop %d", i)}}, out.Stops)
	}
}

func TestFailureMessage(t *testing.T) {
	out := &finder.Outcome{Input: "N1 9GU"}
	assert.Equal(t, `ERROR! Location not found for postcode "N1 9GU"`,
		finder.FailureMessage(out, &domain.LocationNotFoundError{Postcode: "N19GU"}))
	assert.Equal(t, `ERROR! Lookup failed for postcode "N1 9GU"`,
		finder.FailureMessage(out, errors.New("boom")))
	assert.Equal(t, `ERROR! No stops found for postcode "N1 9GU"`,
		finder.FailureMessage(out, fmt.Errorf("wrapped: %w", domain.ErrNoStopsFound)))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting_input", finder.AwaitingInput.String())
	assert.Equal(t, "done", finder.Done.String())
	assert.Equal(t, "failed", finder.Failed.String())
	assert.Equal(t, "state(42)", finder.State(42).String())
}
