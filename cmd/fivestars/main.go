// fivestars runs the FiveStars pizza order-taking agent: it joins rooms,
// takes orders by voice and hands them to the kitchen.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/teslashibe/go-fivestars/internal/config"
	"github.com/teslashibe/go-fivestars/internal/httpc"
	"github.com/teslashibe/go-fivestars/internal/log"
	"github.com/teslashibe/go-fivestars/pkg/catalog"
	"github.com/teslashibe/go-fivestars/pkg/conversation"
	"github.com/teslashibe/go-fivestars/pkg/hub"
	"github.com/teslashibe/go-fivestars/pkg/order"
	"github.com/teslashibe/go-fivestars/pkg/room"
	"github.com/teslashibe/go-fivestars/pkg/session"
	"github.com/teslashibe/go-fivestars/pkg/web"
	"github.com/teslashibe/go-fivestars/pkg/worker"
)

func main() {
	envFile := flag.String("env", config.DefaultEnvFile, "Env file loaded before the environment")
	debug := flag.Bool("debug", false, "Enable debug logging")
	port := flag.Int("port", 0, "HTTP port (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *port > 0 {
		cfg.Port = *port
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cat := catalog.FiveStars()

	model, err := conversation.NewOpenAI(
		conversation.WithAPIKey(cfg.OpenAIKey),
		conversation.WithModel(cfg.OpenAIModel),
		conversation.WithBaseURL(cfg.OpenAIURL),
		conversation.WithVoice(cfg.OpenAIVoice),
		conversation.WithTools(order.SubmitTool()),
		conversation.WithLogger(log.Component("conversation")),
	)
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}

	rcfg := room.DefaultConfig()
	rcfg.SignalURL = cfg.RoomSignalURL
	rcfg.Token = cfg.RoomToken
	rcfg.Logger = log.Component("room")
	transport, err := room.NewWebRTC(rcfg)
	if err != nil {
		return fmt.Errorf("room: %w", err)
	}

	dispatcher, closeDispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDispatcher()

	modalities := make([]conversation.Modality, len(cfg.Modalities))
	for i, m := range cfg.Modalities {
		modalities[i] = conversation.Modality(m)
	}

	events := hub.New("events", logger)
	go events.Run(ctx)

	pool := worker.New(
		func(roomID string, obs session.Observer) (*session.Orchestrator, error) {
			return session.New(transport, model, cat, dispatcher,
				session.WithRoom(roomID),
				session.WithParticipantTimeout(cfg.ParticipantTimeout),
				session.WithModalities(modalities...),
				session.WithLocale(catalog.ParseLocale(cfg.Locale)),
				session.WithObserver(obs),
				session.WithLogger(logger),
			)
		},
		worker.WithLogger(logger),
		worker.WithOnUpdate(func(u session.Update) {
			if err := events.BroadcastJSON(u.Room, u); err != nil {
				logger.Warn("broadcast update", "error", err)
			}
		}),
	)

	for _, r := range cfg.Rooms {
		if _, err := pool.Start(r); err != nil {
			logger.Error("start session", "room", r, "error", err)
		}
	}

	srv := web.NewServer(pool, events, cat, logger)
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Listen(":" + strconv.Itoa(cfg.Port))
	}()

	logger.Info("fivestars agent running",
		"port", cfg.Port,
		"dispatch", cfg.Dispatch,
		"rooms", len(cfg.Rooms),
		"locale", cfg.Locale,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("sessions did not stop in time", "error", err)
	}
	return srv.Shutdown()
}

// newDispatcher builds the fulfillment sink named by DISPATCH.
func newDispatcher(cfg *config.Config, logger *slog.Logger) (order.Dispatcher, func(), error) {
	noop := func() {}
	switch cfg.Dispatch {
	case config.DispatchWebhook:
		return order.WebhookSink{URL: cfg.WebhookURL, Client: httpc.NewClient(10 * time.Second)}, noop, nil

	case config.DispatchTemporal:
		c, err := order.DialTemporal(cfg.TemporalHost, cfg.TemporalNamespace)
		if err != nil {
			return nil, noop, err
		}
		return order.TemporalSink{Client: c, TaskQueue: cfg.OrderTaskQueue}, c.Close, nil

	case config.DispatchGDocs:
		g, err := order.NewGoogleDocs(context.Background(), order.GoogleDocsConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			TokenPath:    cfg.GoogleTokenPath,
		})
		if err != nil {
			return nil, noop, err
		}
		logger.Info("dispatching to google doc", "url", order.DocURL(cfg.GoogleDocID))
		return order.GoogleDocsSink{Docs: g, DocID: cfg.GoogleDocID}, noop, nil

	default:
		return order.LogSink{Logger: logger.With("component", "dispatch")}, noop, nil
	}
}
