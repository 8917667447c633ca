package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AltairaLabs/convostream/pkg/config"
	pkgerrors "github.com/AltairaLabs/convostream/pkg/errors"
	"github.com/AltairaLabs/convostream/pkg/httputil"
	"github.com/AltairaLabs/convostream/runtime/api"
	"github.com/AltairaLabs/convostream/runtime/auth"
	"github.com/AltairaLabs/convostream/runtime/auth/credstore"
	"github.com/AltairaLabs/convostream/runtime/conversation"
	"github.com/AltairaLabs/convostream/runtime/events"
	"github.com/AltairaLabs/convostream/runtime/logger"
	metrics "github.com/AltairaLabs/convostream/runtime/metrics/prometheus"
	"github.com/AltairaLabs/convostream/runtime/stream"
	"github.com/AltairaLabs/convostream/runtime/telemetry"
	"github.com/AltairaLabs/convostream/runtime/version"
)

// shutdownTimeout bounds flushing traces on exit.
const shutdownTimeout = 5 * time.Second

// app is the wiring shared by every command.
type app struct {
	cfg     *config.Config
	bus     *events.EventBus
	auth    *auth.Manager
	api     *api.Client
	pending *stream.PendingPrompts
	out     io.Writer
	in      io.Reader

	redis        *redis.Client
	tracer       *sdktrace.TracerProvider
	stopExporter context.CancelFunc
}

// newApp builds the engine from cfg and restores any persisted credential.
func newApp(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) (*app, error) {
	if err := logger.Configure(&logger.LoggingConfigSpec{
		DefaultLevel: cfg.Logging.DefaultLevel,
		Format:       cfg.Logging.Format,
		CommonFields: cfg.Logging.CommonFields,
	}); err != nil {
		return nil, err
	}
	version.LogStartup(ctx)

	a := &app{
		cfg:     cfg,
		bus:     events.NewEventBus(),
		pending: stream.NewPendingPrompts(),
		in:      in,
		out:     out,
	}

	store, err := a.newStore()
	if err != nil {
		return nil, err
	}

	a.auth = auth.NewManager(
		auth.NewHTTPRefresher(cfg.APIURL, httputil.NewHTTPClient(cfg.HTTPTimeout)),
		auth.WithStore(store),
		auth.WithEventBus(a.bus),
	)
	if err := a.auth.Restore(ctx); err != nil {
		logger.WarnContext(ctx, "could not restore credential", "error", err)
	}
	a.api = api.New(cfg.APIURL, a.auth.TokenSource(ctx), api.WithTimeout(cfg.HTTPTimeout))

	if cfg.Metrics.Addr != "" {
		exporter := metrics.NewExporter(cfg.Metrics.Addr)
		a.bus.SubscribeAll(metrics.NewMetricsListener().Listener())
		exporterCtx, cancel := context.WithCancel(ctx)
		a.stopExporter = cancel
		exporter.Serve(exporterCtx, func(err error) {
			logger.WarnContext(ctx, "metrics exporter stopped", "addr", cfg.Metrics.Addr, "error", err)
		})
	}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("tracing: %w", err)
		}
		a.tracer = tp
		otel.SetTracerProvider(tp)
		telemetry.SetupPropagation()
		a.bus.SubscribeAll(telemetry.NewOTelEventListener(telemetry.Tracer(tp)).OnEvent)
	}
	return a, nil
}

func (a *app) newStore() (auth.Store, error) {
	cs := a.cfg.CredentialStore
	switch cs.Backend {
	case config.BackendMemory:
		return credstore.NewMemoryStore(), nil
	case config.BackendRedis:
		a.redis = redis.NewClient(&redis.Options{Addr: cs.RedisAddr})
		return credstore.NewRedisStore(a.redis,
			credstore.WithPrefix(cs.RedisPrefix),
			credstore.WithProfile(cs.Profile),
			credstore.WithTTL(cs.TTL),
		), nil
	default:
		path, err := a.cfg.CredentialPath()
		if err != nil {
			return nil, err
		}
		return credstore.NewFileStore(path), nil
	}
}

// factory returns a stream.Factory that seeds each client with history and
// hands it to onCreate before it is opened.
func (a *app) factory(history []conversation.Turn, onCreate func(*stream.Client)) stream.Factory {
	return func(_ context.Context, conversationID string) (*stream.Client, error) {
		c := stream.New(conversationID, stream.ConfigFrom(a.cfg),
			stream.WithEventBus(a.bus),
			stream.WithHistory(history),
			stream.WithPendingPrompts(a.pending),
		)
		if onCreate != nil {
			onCreate(c)
		}
		return c, nil
	}
}

// Close delivers outstanding events and releases the app's resources.
func (a *app) Close() {
	a.bus.Close()
	if a.stopExporter != nil {
		a.stopExporter()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.tracer.Shutdown(ctx)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// run wraps a command body with configuration loading and app lifetime.
func run(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadFromFlags(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()
		return explain(fn(ctx, a, args))
	}
}

var (
	errNotSignedIn    = errors.New("not signed in: run `convostream login <callback-url>`")
	errSessionExpired = errors.New("session could not be refreshed: run `convostream login <callback-url>` again")
)

// explain replaces credential failures with an actionable message.
func explain(err error) error {
	switch pkgerrors.KindOf(err) {
	case pkgerrors.KindUnauthorized:
		return fmt.Errorf("%w (%v)", errNotSignedIn, err)
	case pkgerrors.KindRefreshFailed:
		return fmt.Errorf("%w (%v)", errSessionExpired, err)
	default:
		return err
	}
}
