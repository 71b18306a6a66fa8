package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/loom-ui/loom/internal/config"
	"github.com/loom-ui/loom/internal/metrics"
	"github.com/loom-ui/loom/pkg/app"
	"github.com/loom-ui/loom/pkg/state"
	"github.com/loom-ui/loom/pkg/state/sink"
	"github.com/loom-ui/loom/pkg/vdom"
)

// stateWriter is what the demo component needs from either store variant.
type stateWriter interface {
	Get(path string, def any) any
	Set(path string, value any)
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo counter application",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.FileName, "Configuration file")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var opts []state.Option
	if cfg.Store.Match == "exact" {
		opts = append(opts, state.WithExactMatch())
	}
	if cfg.Store.SweepInterval > 0 {
		opts = append(opts, state.WithSweepInterval(time.Duration(cfg.Store.SweepInterval)))
	}

	base, writer, err := buildStore(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer base.Close()

	rt := app.NewRuntime(
		counterApp(writer),
		app.WithLogger(logger),
		app.WithMetrics(metrics.New(nil)),
		app.WithFallback(app.RenderFunc(func() *vdom.VNode {
			return vdom.P(nil, vdom.Text("something went wrong, reload to retry"))
		})),
	)
	rt.Bind(base, "counter")
	if err := rt.Mount(ctx); err != nil {
		return err
	}
	go rt.Run(ctx)

	shell := app.NewShell(rt,
		app.WithTitle("loom counter"),
		app.WithShellLogger(logger),
	)

	logger.Info("serving", "addr", cfg.Server.Addr())
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      shell,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return server.ListenAndServe()
}

// buildStore assembles the store with the configured persistence sink.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts []state.Option) (*state.Store, stateWriter, error) {
	var snk state.Sink

	switch cfg.Persistence.Driver {
	case "":
		s := state.New(opts...)
		return s, s, nil
	case "file":
		snk = sink.NewFile(cfg.Persistence.Path)
	case "bolt":
		db, err := bolt.Open(cfg.Persistence.Path, 0o600, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt db: %w", err)
		}
		snk = sink.NewBolt(db, "state")
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Persistence.Addr})
		snk = sink.NewRedis(client, cfg.Persistence.Key)
	case "s3":
		client := s3.New(s3.Options{Region: os.Getenv("AWS_REGION")})
		snk = sink.NewS3(client, cfg.Persistence.Bucket, cfg.Persistence.Key)
	}

	p, err := state.NewPersistent(ctx, snk, logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	return p.Store, p, nil
}

// counterApp is the demo: a counter read from the store, incremented and
// decremented through handler props.
func counterApp(st stateWriter) app.Component {
	return app.RenderFunc(func() *vdom.VNode {
		count := asInt(st.Get("counter", 0))
		return vdom.Div(vdom.Props{"class": "counter"},
			vdom.H1(nil, vdom.Text("Counter")),
			vdom.P(vdom.Props{"class": "value"}, vdom.Text(fmt.Sprintf("%d", count))),
			vdom.Button(vdom.Props{
				"onclick": func() { st.Set("counter", count+1) },
			}, vdom.Text("+")),
			vdom.Button(vdom.Props{
				"onclick": func() { st.Set("counter", count-1) },
			}, vdom.Text("-")),
		)
	})
}

// asInt tolerates the float64 that values become after a JSON round trip
// through a persistence sink.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
