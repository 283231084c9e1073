package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/codibridge/codi/internal/agent"
	"github.com/codibridge/codi/internal/agent/openaiagent"
	"github.com/codibridge/codi/internal/bridge"
	"github.com/codibridge/codi/internal/channel"
	slackadapter "github.com/codibridge/codi/internal/channel/adapters/slack"
	"github.com/codibridge/codi/internal/config"
	"github.com/codibridge/codi/internal/conversation"
	"github.com/codibridge/codi/internal/handlers"
	channelchecker "github.com/codibridge/codi/internal/healthcheck/checkers/channel"
	storagechecker "github.com/codibridge/codi/internal/healthcheck/checkers/storage"
	"github.com/codibridge/codi/internal/logger"
	"github.com/codibridge/codi/internal/metrics"
	"github.com/codibridge/codi/internal/server"
	"github.com/codibridge/codi/internal/staging"
	"github.com/codibridge/codi/internal/webfetch"
)

const botLookupTimeout = 15 * time.Second

func runServe(configPath string) error {
	app := fx.New(
		fx.Provide(
			func() (config.Config, error) { return provideConfig(configPath) },
			provideLogger,
			metrics.New,
			provideSlackAdapter,
			provideBotIdentity,
			provideFetcher,
			provideAugmenter,
			provideNormalizer,
			provideStager,
			provideReconstructor,
			provideAgentService,
			provideDriver,
			provideBridgeHandler,
			provideJanitor,
			newConnectionHolder,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewMetricsHandler),
			provideServerHandler(provideHealthHandler),
			provideServer,
		),
		fx.Invoke(
			startJanitor,
			startSocketMode,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig(path string) (config.Config, error) {
	if strings.TrimSpace(path) == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideSlackAdapter(log *slog.Logger, cfg config.Config) (*slackadapter.Adapter, error) {
	return slackadapter.NewAdapter(log, slackadapter.Config{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
		Debug:    cfg.Slack.Debug,
	})
}

// botIdentity is the Slack user id of the bot token.
type botIdentity string

func provideBotIdentity(log *slog.Logger, adapter *slackadapter.Adapter) (botIdentity, error) {
	ctx, cancel := context.WithTimeout(context.Background(), botLookupTimeout)
	defer cancel()
	id, err := adapter.BotUserID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve bot user: %w", err)
	}
	log.Info("slack bot resolved", slog.String("bot_user_id", id))
	return botIdentity(id), nil
}

func provideFetcher(log *slog.Logger, cfg config.Config) webfetch.Fetcher {
	return webfetch.NewReadabilityFetcher(log, webfetch.Options{
		Timeout:       cfg.FetchTimeout(),
		UserAgent:     cfg.Fetch.UserAgent,
		MaxBytes:      cfg.Fetch.MaxBytes,
		RatePerSecond: cfg.Fetch.RatePerSecond,
	})
}

func provideAugmenter(log *slog.Logger, fetcher webfetch.Fetcher, m *metrics.Metrics) *webfetch.Augmenter {
	return webfetch.NewAugmenter(log, fetcher, m)
}

func provideNormalizer(log *slog.Logger, augmenter *webfetch.Augmenter) *conversation.Normalizer {
	return conversation.NewNormalizer(log, augmenter)
}

func provideStager(log *slog.Logger, adapter *slackadapter.Adapter, m *metrics.Metrics) *staging.Stager {
	return staging.NewStager(log, adapter, m, staging.MaxFileBytes)
}

func provideReconstructor(log *slog.Logger, cfg config.Config, normalizer *conversation.Normalizer, stager *staging.Stager) *conversation.Reconstructor {
	return conversation.NewReconstructor(log, normalizer, stager, conversation.ScanOrder(cfg.Conversation.ScanOrder))
}

func provideAgentService(log *slog.Logger, cfg config.Config) (agent.Service, error) {
	return openaiagent.NewService(log, openaiagent.Options{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		Model:        cfg.OpenAI.Model,
		Instructions: cfg.Agent.Instructions,
	})
}

func provideDriver(log *slog.Logger, service agent.Service, m *metrics.Metrics) *agent.Driver {
	return agent.NewDriver(log, service, m)
}

func provideBridgeHandler(log *slog.Logger, cfg config.Config, bot botIdentity, adapter *slackadapter.Adapter, reconstructor *conversation.Reconstructor, driver *agent.Driver, m *metrics.Metrics) *bridge.Handler {
	return bridge.NewHandler(log, bridge.Deps{
		Threads:       adapter,
		Responder:     adapter,
		Reconstructor: reconstructor,
		Runner:        driver,
		Metrics:       m,
	}, bridge.Options{
		BotUserID:     string(bot),
		DataRoot:      cfg.Staging.DataRoot,
		WaitMessage:   cfg.Bridge.WaitMessage,
		Timeout:       cfg.AgentTimeout(),
		MaxConcurrent: cfg.Bridge.MaxConcurrent,
	})
}

func provideJanitor(log *slog.Logger, cfg config.Config) (*staging.Janitor, error) {
	return staging.NewJanitor(log, cfg.Staging.DataRoot, cfg.StagingMaxAge(), cfg.Staging.JanitorSpec)
}

// connectionHolder publishes the socket connection once it is up.
type connectionHolder struct {
	mu   sync.RWMutex
	conn channel.Connection
}

func newConnectionHolder() *connectionHolder { return &connectionHolder{} }

func (h *connectionHolder) set(conn channel.Connection) {
	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()
}

func (h *connectionHolder) Connection() channel.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn
}

func provideHealthHandler(log *slog.Logger, cfg config.Config, holder *connectionHolder) *handlers.HealthHandler {
	return handlers.NewHealthHandler(log,
		channelchecker.NewChecker(log, "slack", holder),
		storagechecker.NewChecker(cfg.Staging.DataRoot),
	)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startJanitor(lc fx.Lifecycle, janitor *staging.Janitor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return janitor.Start() },
		OnStop:  func(ctx context.Context) error { return janitor.Stop(ctx) },
	})
}

func startSocketMode(lc fx.Lifecycle, logger *slog.Logger, adapter *slackadapter.Adapter, handler *bridge.Handler, holder *connectionHolder) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			conn, err := adapter.Connect(ctx, handler.HandleMention)
			if err != nil {
				cancel()
				return fmt.Errorf("slack connect: %w", err)
			}
			holder.set(conn)
			logger.Info("listening for mentions")
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			defer cancel()
			conn := holder.Connection()
			if conn == nil {
				return nil
			}
			return conn.Stop(stopCtx)
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, cfg config.Config, srv *server.Server, shutdowner fx.Shutdowner) {
	if !cfg.Server.Enabled {
		return
	}
	fmt.Printf("Starting %s\n", versionString())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
