package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"intsync/internal/backend"
	"intsync/internal/config"
	"intsync/internal/httpapi"
	"intsync/internal/logging"
	"intsync/internal/notify"
	"intsync/internal/realtime"
	"intsync/internal/steps"
	"intsync/internal/store/postgres"
	"intsync/internal/telemetry"
	"intsync/internal/whatsapp"
)

const serviceName = "intsync"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	cfg := config.Load()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if cfg.BackendURL == "" {
		return errors.New("ENDPOINT_URL is not set")
	}
	policy, err := config.LoadRoutePolicy(cfg.RoutePolicyFile)
	if err != nil {
		return err
	}

	shutdownTelemetry := telemetry.Setup(ctx, telemetry.OptionsFromEnv(serviceName, version), logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	proxies, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := postgres.NewStore(pool)
	client := backend.New(backend.Options{BaseURL: cfg.BackendURL, Timeout: cfg.BackendTimeout})
	defer client.Close()

	bus := notify.NewBus(logging.Component(logger, "events"))
	sequencer := steps.NewSequencer(client, bus, logging.Component(logger, "steps"))
	poller := whatsapp.NewPoller(client, bus, logging.Component(logger, "whatsapp"), whatsapp.Options{
		Interval:        cfg.WhatsAppPollInterval,
		RestartInterval: cfg.WhatsAppRestartPoll,
		MaxRetries:      cfg.WhatsAppMaxRetries,
	})
	watcher := whatsapp.NewWatcher(ctx, poller, logging.Component(logger, "whatsapp"))
	defer watcher.Close()

	hub := realtime.NewHub(logging.Component(logger, "realtime"))
	hub.Attach(bus)
	hub.OnTopic(realtime.TopicWhatsApp, realtime.TopicHooks{
		Join: func(c *realtime.Client) {
			watcher.Acquire()
			hub.SendTo(c, realtime.TopicWhatsApp, "state", poller.Snapshot())
		},
		Leave: func(c *realtime.Client) {
			watcher.Release()
		},
	})
	realtimeHandler := realtime.NewHandler(hub, st, logging.Component(logger, "realtime"), realtime.HandlerOptions{
		Prefix:    "/realtime",
		Authorize: topicAuthorizer(policy),
	})

	handler := httpapi.NewHandler(httpapi.Options{
		Backend:      client,
		Store:        st,
		Sequencer:    sequencer,
		WhatsApp:     watcher,
		Events:       bus,
		Realtime:     realtimeHandler,
		Logger:       logging.Component(logger, "http"),
		SessionTTL:   cfg.SessionTTL,
		CookieSecure: cfg.CookieSecure,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:   cfg.RateLimitPerMinute,
		IPBurst:       cfg.RateLimitBurst,
		UserPerMinute: cfg.UserRateLimitPerMinute,
		UserBurst:     cfg.UserRateLimitBurst,
	})

	routes := httpapi.AuthMiddleware(st, policy, limiter.Middleware(handler.Routes()))
	logged := httpapi.LoggingMiddleware(logging.Component(logger, "http"), routes)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(httpapi.ClientIPMiddleware(proxies, logged), serviceName),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: sockjs streaming transports hold responses open.
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("backend", cfg.BackendURL).Msg("intsync listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	return nil
}

// topicAuthorizer applies the page route policy to realtime topics: the
// whatsapp feed follows /whatsapp, ticket feeds follow /tickets.
func topicAuthorizer(policy config.RoutePolicy) func(role, topic string) bool {
	return func(role, topic string) bool {
		path := "/tickets"
		if topic == realtime.TopicWhatsApp {
			path = "/whatsapp"
		}
		return policy.Allowed(http.MethodGet, path, role)
	}
}
