// main.go: stop-finder CLI, nearest transit stops for a UK postcode
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yourusername/stop-finder/api"
	"github.com/yourusername/stop-finder/internal/config"
	"github.com/yourusername/stop-finder/internal/console"
	"github.com/yourusername/stop-finder/internal/domain"
	"github.com/yourusername/stop-finder/internal/finder"
	"github.com/yourusername/stop-finder/internal/logging"
	"github.com/yourusername/stop-finder/internal/observability"
	"github.com/yourusername/stop-finder/internal/postcode"
	"github.com/yourusername/stop-finder/internal/request"
	"github.com/yourusername/stop-finder/internal/tfl"
)

const banner = `
╔══════════════════════════════════════════════╗
║          UK Nearest Stop Finder              ║
║    Data: postcodes.io + TfL Unified API      ║
╚══════════════════════════════════════════════╝
`

// errLookupFailed marks a run whose failure was already printed by the pipeline.
var errLookupFailed = errors.New("lookup failed")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errLookupFailed) {
			fmt.Fprintf(stderr, "stop-finder: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "stop-finder",
		Short:         "Find the nearest bus, coach and tram stops to a UK postcode",
		Long:          banner + "Prompts for a postcode and lists the nearest stop points using postcodes.io and the TfL Unified API.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			f, shutdown, err := setup(cmd.Context(), cfg, stderr)
			if err != nil {
				return err
			}
			defer observability.ShutdownWithTimeout(context.Background(), shutdown)

			_, err = f.Run(cmd.Context(), console.Open(stdin, stdout))
			if errors.Is(err, domain.ErrLocationNotFound) || errors.Is(err, domain.ErrNoStopsFound) {
				return fmt.Errorf("%w: %v", errLookupFailed, err)
			}
			return err
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stop lookups over HTTP on server.addr",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			f, shutdown, err := setup(cmd.Context(), cfg, stderr)
			if err != nil {
				return err
			}
			defer observability.ShutdownWithTimeout(context.Background(), shutdown)

			fmt.Fprintf(stdout, "stop-finder API listening on http://%s\n", cfg.Server.Addr)
			fmt.Fprintln(stdout, "  GET  /health")
			fmt.Fprintln(stdout, "  GET  /api/stops/{postcode}")
			fmt.Fprintln(stdout, "  POST /api/stops/bulk")
			fmt.Fprintln(stdout, "  GET  /metrics")
			return api.NewServer(f).ListenAndServe(cmd.Context(), cfg.Server.Addr)
		},
	}

	root.AddCommand(serveCmd)
	return root
}

// setup configures logging and tracing and builds the lookup pipeline.
// A malformed base URL fails here, before any prompt.
func setup(ctx context.Context, cfg *config.Config, logOut io.Writer) (*finder.Finder, func(context.Context) error, error) {
	logging.Setup(cfg.Log.Level, cfg.Log.Format, logOut)

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		Writer:      logOut,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init tracing: %w", err)
	}

	f, err := newFinder(cfg, request.NewHTTPTransport(cfg.HTTP.Timeout))
	if err != nil {
		return nil, nil, err
	}
	return f, shutdown, nil
}

func newFinder(cfg *config.Config, transport request.Transport) (*finder.Finder, error) {
	geocoder, err := postcode.NewGateway(cfg.GeocodingBaseURL, request.NewClient("postcodes", transport))
	if err != nil {
		return nil, fmt.Errorf("geocoding gateway: %w", err)
	}
	stops, err := tfl.NewGateway(tfl.Options{
		BaseURL: cfg.TransitBaseURL,
		AppID:   cfg.AppID,
		AppKey:  cfg.AppKey,
		Radius:  cfg.SearchRadius,
	}, request.NewClient("tfl", transport))
	if err != nil {
		return nil, fmt.Errorf("transit gateway: %w", err)
	}
	return finder.New(geocoder, stops, cfg.ResultCount), nil
}
