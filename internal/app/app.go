// Package app wires configuration, storage, cache and the assistant services into one container
// shared by the API server and the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/machineparts/parts-assistant/internal/assistant"
	"github.com/machineparts/parts-assistant/internal/cache"
	"github.com/machineparts/parts-assistant/internal/config"
	"github.com/machineparts/parts-assistant/internal/monitoring"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// Backend is a cache that can also fan out notifications.
type Backend interface {
	cache.Client
	cache.Publisher
}

// App holds the assembled services.
type App struct {
	Config *config.Config
	Logger *observability.Logger
	DB     *sql.DB
	Repos  *storage.Repositories
	Cache  Backend

	Recorder      *monitoring.Recorder
	Taxonomy      *assistant.TaxonomyLoader
	Interpreter   *assistant.Interpreter
	Symptoms      *assistant.SymptomMapper
	Validator     *assistant.Validator
	Recommender   *assistant.Recommender
	Recomputer    *assistant.Recomputer
	Conversations *assistant.ConversationService
	Intents       *assistant.IntentDetector
	Knowledge     *assistant.KnowledgeBase
	Chat          *assistant.ChatService
	Support       *assistant.SupportDesk
	Janitor       *monitoring.Janitor
}

// Option customizes assembly.
type Option func(*options)

type options struct {
	now     func() time.Time
	migrate bool
}

// WithClock overrides the time source of the conversation services.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMigrations applies pending migrations while opening the database.
func WithMigrations() Option {
	return func(o *options) { o.migrate = true }
}

// Open connects to the configured database and cache and assembles the services.
func Open(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts ...Option) (*App, error) {
	o := applyOptions(opts)

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if o.migrate {
		status, err := storage.NewMigrationManager(db, cfg.Database.Driver).Migrate(ctx)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info().Int("applied", len(status.Pending)).Msg("Migrations applied")
	}

	backend, err := NewCache(cfg.Cache)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Msg("Storage connected")

	return New(cfg, logger, db, backend, opts...), nil
}

// New assembles the services over an open database and cache.
func New(cfg *config.Config, logger *observability.Logger, db *sql.DB, backend Backend, opts ...Option) *App {
	o := applyOptions(opts)

	repos := storage.NewRepositories(db)
	recorder := monitoring.NewRecorder(logger, repos.Analytics, backend)
	taxonomy := assistant.NewTaxonomyLoader(repos.Taxonomy, backend, cfg.Assistant.TaxonomyCacheTTL, logger)

	convOpts := []assistant.ConversationOption{
		assistant.WithRecorder(recorder),
		assistant.WithContextCache(backend),
	}
	if o.now != nil {
		convOpts = append(convOpts, assistant.WithClock(o.now))
	}
	conversations := assistant.NewConversationService(repos, db, cfg.Assistant, logger, convOpts...)

	a := &App{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Repos:         repos,
		Cache:         backend,
		Recorder:      recorder,
		Taxonomy:      taxonomy,
		Interpreter:   assistant.NewInterpreter(taxonomy, logger),
		Symptoms:      assistant.NewSymptomMapper(taxonomy),
		Validator:     assistant.NewValidator(repos.Compatibility, logger),
		Recommender:   assistant.NewRecommender(repos.FBT, repos.Purchases, logger),
		Recomputer:    assistant.NewRecomputer(repos.Purchases, repos.FBT, cfg.Assistant.RecomputeConcurrency, logger),
		Conversations: conversations,
		Intents:       assistant.NewIntentDetector(repos.Knowledge, logger),
		Knowledge:     assistant.NewKnowledgeBase(repos.Knowledge),
	}

	a.Chat = assistant.NewChatService(assistant.ChatDeps{
		Conversations: a.Conversations,
		Interpreter:   a.Interpreter,
		Intents:       a.Intents,
		Recommender:   a.Recommender,
		Knowledge:     a.Knowledge,
		Taxonomy:      a.Taxonomy,
		Recorder:      a.Recorder,
	}, cfg.Assistant, cfg.Support, logger)

	support, err := assistant.NewSupportDesk(cfg.Support, conversations, cfg.Assistant.WaitMinutesPerPosition)
	if err != nil {
		// Validate() rejects unknown zones, so this only happens for hand-built configs.
		logger.Warn().Err(err).Msg("Support desk falls back to UTC")
		fallback := cfg.Support
		fallback.Timezone = "UTC"
		support, _ = assistant.NewSupportDesk(fallback, conversations, cfg.Assistant.WaitMinutesPerPosition)
	}
	a.Support = support

	a.Janitor = monitoring.NewJanitor(logger, conversations, conversations, recorder, monitoring.JanitorConfig{
		Interval:   cfg.Assistant.JanitorInterval,
		StaleAfter: cfg.Assistant.StaleEscalationAfter,
	})
	if o.now != nil {
		a.Janitor.WithClock(o.now)
	}

	return a
}

// NewCache builds the configured cache backend.
func NewCache(cfg config.CacheConfig) (Backend, error) {
	switch cfg.Driver {
	case "redis":
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return client, nil
	case "", "memory":
		return cache.NewMemoryClient(cfg.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// Ready checks that the database and cache answer.
func (a *App) Ready(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping database: %w", storage.ErrUnavailable, err)
	}
	if err := a.Cache.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping cache: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// Close releases the cache and the database.
func (a *App) Close() error {
	cacheErr := a.Cache.Close()
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	if cacheErr != nil {
		return fmt.Errorf("close cache: %w", cacheErr)
	}
	return nil
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
