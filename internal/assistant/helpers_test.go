package assistant

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/cache"
	"github.com/machineparts/parts-assistant/internal/config"
	"github.com/machineparts/parts-assistant/internal/monitoring"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
	"github.com/machineparts/parts-assistant/internal/storage/storagetest"
)

var testEpoch = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: testEpoch} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db       *sql.DB
	repos    *storage.Repositories
	cache    *cache.MemoryClient
	clock    *testClock
	cfg      *config.Config
	taxonomy *TaxonomyLoader
	recorder *monitoring.Recorder
	convs    *ConversationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, repos := storagetest.NewSeeded(t)
	require.NoError(t, storage.SeedDemoLedger(context.Background(), repos, testEpoch))

	mem := cache.NewMemoryClient(100)
	t.Cleanup(func() { _ = mem.Close() })

	cfg := config.DefaultConfig()
	logger := observability.NopLogger()
	clock := newTestClock()
	recorder := monitoring.NewRecorder(logger, repos.Analytics, mem)

	return &testEnv{
		db:       db,
		repos:    repos,
		cache:    mem,
		clock:    clock,
		cfg:      cfg,
		taxonomy: NewTaxonomyLoader(repos.Taxonomy, mem, time.Minute, logger),
		recorder: recorder,
		convs: NewConversationService(repos, db, cfg.Assistant, logger,
			WithRecorder(recorder), WithContextCache(mem), WithClock(clock.Now)),
	}
}

func (e *testEnv) chat() *ChatService {
	logger := observability.NopLogger()
	return NewChatService(ChatDeps{
		Conversations: e.convs,
		Interpreter:   NewInterpreter(e.taxonomy, logger),
		Intents:       NewIntentDetector(e.repos.Knowledge, logger),
		Recommender:   NewRecommender(e.repos.FBT, e.repos.Purchases, logger),
		Knowledge:     NewKnowledgeBase(e.repos.Knowledge),
		Taxonomy:      e.taxonomy,
		Recorder:      e.recorder,
	}, e.cfg.Assistant, e.cfg.Support, logger)
}

func strPtr(s string) *string { return &s }
