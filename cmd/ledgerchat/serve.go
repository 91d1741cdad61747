package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/ledgerchat/ledgerchat/internal/analytics"
	"github.com/ledgerchat/ledgerchat/internal/blob"
	"github.com/ledgerchat/ledgerchat/internal/blob/providers/localfs"
	"github.com/ledgerchat/ledgerchat/internal/config"
	"github.com/ledgerchat/ledgerchat/internal/db"
	"github.com/ledgerchat/ledgerchat/internal/handlers"
	"github.com/ledgerchat/ledgerchat/internal/identity"
	"github.com/ledgerchat/ledgerchat/internal/logger"
	"github.com/ledgerchat/ledgerchat/internal/messages"
	"github.com/ledgerchat/ledgerchat/internal/platform/slackbot"
	"github.com/ledgerchat/ledgerchat/internal/platform/whatsapp"
	"github.com/ledgerchat/ledgerchat/internal/query"
	openaiq "github.com/ledgerchat/ledgerchat/internal/query/openai"
	"github.com/ledgerchat/ledgerchat/internal/query/pgexec"
	"github.com/ledgerchat/ledgerchat/internal/respond"
	"github.com/ledgerchat/ledgerchat/internal/router"
	"github.com/ledgerchat/ledgerchat/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideQuerier,
			provideRedis,
			provideClassifierClient,
			provideClassifier,
			provideSummarizer,
			provideExecutor,
			provideMessageService,
			provideDedupFilter,
			provideIdentityStore,
			provideLinkTokenIssuer,
			provideContextCache,
			provideWhatsAppNormalizer,
			provideWhatsAppSender,
			provideSlackNormalizer,
			provideSlackSender,
			provideBlobService,
			provideAnalyticsRecorder,
			respond.NewGenerator,
			provideIdentityResolver,
			provideRouter,
			handlers.NewPingHandler,
			handlers.NewWhatsAppHandler,
			provideSlackHandler,
			provideLinkHandler,
			provideServer,
		),
		fx.Invoke(
			startLinkTokenPruner,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideQuerier(conn *pgxpool.Pool) db.Querier { return conn }

// provideRedis returns nil when no address is configured; the dedup filter
// treats a nil client as "fast path disabled".
func provideRedis(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return rdb.Close() }})
	return rdb
}

func provideClassifierClient(log *slog.Logger, cfg config.Config) (*openaiq.Client, error) {
	return openaiq.New(log, cfg.Classifier)
}

func provideClassifier(client *openaiq.Client) query.Classifier { return client }
func provideSummarizer(client *openaiq.Client) query.Summarizer { return client }

func provideExecutor(log *slog.Logger, querier db.Querier) query.Executor {
	return pgexec.NewExecutor(log, querier)
}

func provideMessageService(log *slog.Logger, querier db.Querier, classifier query.Classifier) *messages.DBService {
	return messages.NewService(log, querier, classifier)
}

func provideDedupFilter(log *slog.Logger, rdb *redis.Client) *messages.DedupFilter {
	return messages.NewDedupFilter(log, rdb)
}

func provideIdentityStore(log *slog.Logger, querier db.Querier) *identity.DBStore {
	return identity.NewStore(log, querier)
}

func provideLinkTokenIssuer(cfg config.Config) *identity.LinkTokenIssuer {
	return identity.NewLinkTokenIssuer(cfg.Linking.JWTSecret, cfg.Linking.BaseURL, cfg.Linking.TokenTTLDuration())
}

func provideContextCache() *identity.ContextCache {
	return identity.NewContextCache(config.DefaultContextTTL)
}

func provideWhatsAppNormalizer(log *slog.Logger) *whatsapp.Normalizer {
	return whatsapp.NewNormalizer(log)
}

func provideWhatsAppSender(log *slog.Logger, cfg config.Config) *whatsapp.Sender {
	return whatsapp.NewSender(log, cfg.Twilio)
}

func provideSlackNormalizer(log *slog.Logger) *slackbot.Normalizer {
	return slackbot.NewNormalizer(log)
}

func provideSlackSender(log *slog.Logger, cfg config.Config) *slackbot.Sender {
	return slackbot.NewSender(log, cfg.Slack)
}

func provideBlobService(log *slog.Logger, cfg config.Config, querier db.Querier) (blob.Store, error) {
	provider, err := localfs.New(cfg.Blob.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("init blob provider: %w", err)
	}
	return blob.NewService(log, querier, provider), nil
}

func provideAnalyticsRecorder(log *slog.Logger, querier db.Querier) *analytics.Recorder {
	return analytics.NewRecorder(log, querier)
}

func provideIdentityResolver(log *slog.Logger, store *identity.DBStore, slackSender *slackbot.Sender, tokens *identity.LinkTokenIssuer, cache *identity.ContextCache) *identity.Resolver {
	return identity.NewResolver(log, store, slackSender, tokens, cache)
}

func provideRouter(log *slog.Logger, dedup *messages.DedupFilter, msgService *messages.DBService, resolver *identity.Resolver, classifier query.Classifier, executor query.Executor, summarizer query.Summarizer, generator *respond.Generator, blobs blob.Store, recorder *analytics.Recorder, waSender *whatsapp.Sender, slSender *slackbot.Sender) *router.Router {
	return router.New(log, router.Deps{
		Dedup:      dedup,
		Store:      msgService,
		Resolver:   resolver,
		Classifier: classifier,
		Executor:   executor,
		Summarizer: summarizer,
		Generator:  generator,
		Blobs:      blobs,
		Analytics:  recorder,
		WhatsApp:   waSender,
		Slack:      slSender,
	})
}

func provideSlackHandler(log *slog.Logger, normalizer *slackbot.Normalizer, r *router.Router, cfg config.Config) *handlers.SlackHandler {
	return handlers.NewSlackHandler(log, normalizer, r, cfg.Slack.SigningSecret)
}

func provideLinkHandler(log *slog.Logger, store *identity.DBStore, tokens *identity.LinkTokenIssuer) *handlers.LinkHandler {
	return handlers.NewLinkHandler(log, store, tokens)
}

func provideServer(log *slog.Logger, cfg config.Config, pingHandler *handlers.PingHandler, whatsappHandler *handlers.WhatsAppHandler, slackHandler *handlers.SlackHandler, linkHandler *handlers.LinkHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, pingHandler, whatsappHandler, slackHandler, linkHandler)
}

// startLinkTokenPruner deletes expired link token records hourly.
func startLinkTokenPruner(lc fx.Lifecycle, log *slog.Logger, store *identity.DBStore) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc("@hourly", func() {
		pruned, err := store.PruneExpiredLinkTokens(context.Background())
		if err != nil {
			log.Warn("link token prune failed", slog.Any("error", err))
			return
		}
		if pruned > 0 {
			log.Info("pruned expired link tokens", slog.Int64("count", pruned))
		}
	})
	if err != nil {
		log.Error("link token pruner setup failed", slog.Any("error", err))
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { scheduler.Start(); return nil },
		OnStop: func(ctx context.Context) error {
			<-scheduler.Stop().Done()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
