package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/storage"
	"github.com/machineparts/parts-assistant/internal/storage/storagetest"
)

func TestMigrationManager_Migrate_Idempotent(t *testing.T) {
	db := storagetest.NewSQLite(t)
	mm := storage.NewMigrationManager(db, "sqlite")

	status, err := mm.CheckMigrations(context.Background())
	require.NoError(t, err)
	assert.True(t, status.UpToDate)
	assert.Equal(t, []string{"0001_init_sqlite.sql"}, status.Applied)

	status, err = mm.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, status.Pending)
}

func TestSeed_Idempotent(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()

	var seen []string
	err := storage.Seed(ctx, repos, nil, func(table string, done, total int) {
		if done == total {
			seen = append(seen, table)
		}
	})
	require.NoError(t, err)
	assert.Len(t, seen, 8)

	types, err := repos.Taxonomy.ListMachineTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, 7)
	assert.Equal(t, "excavator", types[0].ID)
}

func TestTaxonomyRepository_GetModel(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()

	m, err := repos.Taxonomy.GetModel(ctx, "cat-320d")
	require.NoError(t, err)
	assert.Equal(t, "CAT 320D", m.Name)
	assert.Equal(t, "cat", m.ManufacturerID)
	require.NotNil(t, m.YearFrom)
	assert.Equal(t, 2005, *m.YearFrom)
	assert.Equal(t, "C6.4 ACERT", m.Specs["engine"])

	_, err = repos.Taxonomy.GetModel(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTaxonomyRepository_ListManufacturers_DecodesAliases(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)

	mfrs, err := repos.Taxonomy.ListManufacturers(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, mfrs)

	var cat *storage.Manufacturer
	for _, m := range mfrs {
		if m.ID == "cat" {
			cat = m
		}
	}
	require.NotNil(t, cat)
	assert.Equal(t, []string{"CAT", "Caterpillar"}, cat.Aliases)
}

func TestTaxonomyRepository_UpsertCategory_TwoLevelTree(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()

	parent := "pumps"
	err := repos.Taxonomy.UpsertCategory(ctx, &storage.PartCategory{ID: "gear-pumps", Name: "Gear pumps", ParentID: &parent})
	assert.ErrorIs(t, err, storage.ErrConflict, "a child cannot parent another child")

	self := "loop"
	err = repos.Taxonomy.UpsertCategory(ctx, &storage.PartCategory{ID: "loop", Name: "Loop", ParentID: &self})
	assert.ErrorIs(t, err, storage.ErrConflict)

	missing := "nowhere"
	err = repos.Taxonomy.UpsertCategory(ctx, &storage.PartCategory{ID: "orphan", Name: "Orphan", ParentID: &missing})
	assert.ErrorIs(t, err, storage.ErrConflict)

	root := "hydraulics"
	err = repos.Taxonomy.UpsertCategory(ctx, &storage.PartCategory{ID: "valves", Name: "Valves", ParentID: &root})
	require.NoError(t, err)

	engine := "engine"
	err = repos.Taxonomy.UpsertCategory(ctx, &storage.PartCategory{ID: "hydraulics", Name: "Hydraulics", ParentID: &engine})
	assert.ErrorIs(t, err, storage.ErrConflict, "a root with children cannot become a child")
}

func TestTaxonomyRepository_UpsertModel_RejectsInvertedYears(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	from, to := 2020, 2010

	err := repos.Taxonomy.UpsertModel(context.Background(), &storage.MachineModel{
		ID: "bad", Name: "Bad", ManufacturerID: "cat", YearFrom: &from, YearTo: &to,
	})
	assert.Error(t, err)
}

func TestCompatibilityRepository_UpsertAndGet(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()

	_, err := repos.Compatibility.Get(ctx, "cat-320d", "prod_123")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rec := &storage.CompatibilityRecord{
		MachineModelID: "cat-320d", ProductID: "prod_123",
		CompatibilityLevel: storage.CompatibilityCompatible, ConfidenceScore: 90,
	}
	require.NoError(t, repos.Compatibility.Upsert(ctx, rec))

	rec2 := &storage.CompatibilityRecord{
		MachineModelID: "cat-320d", ProductID: "prod_123",
		CompatibilityLevel: storage.CompatibilityPerfect, ConfidenceScore: 99, IsOriginal: true,
	}
	require.NoError(t, repos.Compatibility.Upsert(ctx, rec2))

	got, err := repos.Compatibility.Get(ctx, "cat-320d", "prod_123")
	require.NoError(t, err)
	assert.Equal(t, storage.CompatibilityPerfect, got.CompatibilityLevel)
	assert.Equal(t, 99.0, got.ConfidenceScore)
	assert.True(t, got.IsOriginal)
	assert.Equal(t, rec.ID, got.ID, "one record per pair")

	err = repos.Compatibility.Upsert(ctx, &storage.CompatibilityRecord{
		MachineModelID: "cat-320d", ProductID: "x", CompatibilityLevel: "maybe",
	})
	assert.Error(t, err)
}

func TestPurchaseRepository_TopProductsByModel(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()
	require.NoError(t, storage.SeedDemoLedger(ctx, repos, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))

	top, err := repos.Purchases.TopProductsByModel(ctx, "cat-320d", 5)
	require.NoError(t, err)
	require.Len(t, top, 4)
	assert.Equal(t, storage.ProductCount{ProductID: "prod_hyd_filter", Count: 3}, top[0])
	assert.Equal(t, storage.ProductCount{ProductID: "prod_hyd_pump_320d", Count: 3}, top[1])
	assert.Equal(t, storage.ProductCount{ProductID: "prod_hose_set", Count: 2}, top[2])

	ids, err := repos.Purchases.ListModelIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat-320d"}, ids)
}

func TestFrequentlyBoughtTogetherRepository_ReplaceForModel(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()

	require.NoError(t, repos.FBT.ReplaceForModel(ctx, "cat-320d", []*storage.FrequentlyBoughtTogether{
		{ProductID: "a", RelatedProductID: "b", FrequencyScore: 40},
		{ProductID: "a", RelatedProductID: "c", FrequencyScore: 80},
	}))
	require.NoError(t, repos.FBT.ReplaceForModel(ctx, "cat-320d", []*storage.FrequentlyBoughtTogether{
		{ProductID: "a", RelatedProductID: "c", FrequencyScore: 60},
		{ProductID: "a", RelatedProductID: "d", FrequencyScore: 70},
	}))

	rows, err := repos.FBT.ListByProduct(ctx, "a", "cat-320d", 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "d", rows[0].RelatedProductID)
	assert.Equal(t, "c", rows[1].RelatedProductID)

	err = repos.FBT.Upsert(ctx, &storage.FrequentlyBoughtTogether{ProductID: "a", RelatedProductID: "a"})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestFrequentlyBoughtTogetherRepository_ListByProduct_PrefersModelRow(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()

	require.NoError(t, repos.FBT.Upsert(ctx, &storage.FrequentlyBoughtTogether{ProductID: "pa", RelatedProductID: "pb", FrequencyScore: 50}))
	require.NoError(t, repos.FBT.Upsert(ctx, &storage.FrequentlyBoughtTogether{ProductID: "pa", RelatedProductID: "pc", FrequencyScore: 20}))
	require.NoError(t, repos.FBT.ReplaceForModel(ctx, "cat-320d", []*storage.FrequentlyBoughtTogether{
		{ProductID: "pa", RelatedProductID: "pb", FrequencyScore: 40},
	}))

	rows, err := repos.FBT.ListByProduct(ctx, "pa", "cat-320d", 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "pb", rows[0].RelatedProductID)
	assert.Equal(t, 40.0, rows[0].FrequencyScore)
	require.NotNil(t, rows[0].MachineModelID)
	assert.Equal(t, "pc", rows[1].RelatedProductID)

	rows, err = repos.FBT.ListByProduct(ctx, "pa", "jcb-3cx", 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 50.0, rows[0].FrequencyScore)
	assert.Nil(t, rows[0].MachineModelID)
}

func TestConversationRepository_AppendMessage_SequenceAndTouch(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	conv := &storage.Conversation{SessionID: "s1", Language: "en", StartedAt: t0, LastMessageAt: t0}
	require.NoError(t, repos.Conversations.Create(ctx, conv))

	for i, at := range []time.Time{t0.Add(2 * time.Minute), t0.Add(time.Minute), t0.Add(2 * time.Minute)} {
		m := &storage.ConversationMessage{ConversationID: conv.ID, Role: storage.RoleUser, Content: "m", CreatedAt: at}
		require.NoError(t, repos.Conversations.AppendMessage(ctx, m))
		assert.Equal(t, int64(i+1), m.Seq)
	}

	got, err := repos.Conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, got.LastMessageAt.Equal(t0.Add(2*time.Minute)), "last_message_at never moves backwards")

	msgs, err := repos.Conversations.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{2, 1, 3}, []int64{msgs[0].Seq, msgs[1].Seq, msgs[2].Seq})

	last, err := repos.Conversations.ListMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, []int64{last[0].Seq, last[1].Seq})
}

func TestConversationRepository_UpsertCustomerMachine_KeepsPrimary(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	first, err := repos.Conversations.UpsertCustomerMachine(ctx, &storage.CustomerMachine{
		CustomerID: "c1", MachineModelID: "cat-320d", IsPrimary: true, LastMentionedAt: t0,
	})
	require.NoError(t, err)
	assert.True(t, first.IsPrimary)

	again, err := repos.Conversations.UpsertCustomerMachine(ctx, &storage.CustomerMachine{
		CustomerID: "c1", MachineModelID: "cat-320d", IsPrimary: false, LastMentionedAt: t0.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.IsPrimary)
	assert.True(t, again.LastMentionedAt.Equal(t0.Add(time.Hour)))

	n, err := repos.Conversations.CountCustomerMachines(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConversationRepository_Transition_RequiresExpectedStatus(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	conv := &storage.Conversation{SessionID: "s1", Language: "en", StartedAt: t0, LastMessageAt: t0}
	require.NoError(t, repos.Conversations.Create(ctx, conv))

	closedAt := t0.Add(time.Minute)
	closing := *conv
	closing.Status = storage.ConversationClosed
	closing.ClosedAt = &closedAt
	require.NoError(t, repos.Conversations.Transition(ctx, &closing, storage.ConversationActive))

	escalatedAt := t0.Add(2 * time.Minute)
	conv.Status = storage.ConversationEscalated
	conv.EscalatedAt = &escalatedAt
	err := repos.Conversations.Transition(ctx, conv, storage.ConversationActive)
	assert.ErrorIs(t, err, storage.ErrConflict)

	got, err := repos.Conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ConversationClosed, got.Status)
	assert.Nil(t, got.EscalatedAt)
}

func TestEscalationRepository_Transition_Conflict(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	conv := &storage.Conversation{SessionID: "s1", Language: "en", StartedAt: t0, LastMessageAt: t0}
	require.NoError(t, repos.Conversations.Create(ctx, conv))

	entry := &storage.EscalationEntry{ConversationID: conv.ID, Priority: storage.PriorityHigh, CreatedAt: t0}
	require.NoError(t, repos.Escalations.Create(ctx, entry))
	assert.Equal(t, storage.EscalationPending, entry.Status)

	agent := "agent-1"
	entry.Status = storage.EscalationAssigned
	entry.AssignedTo = &agent
	entry.AssignedAt = &t0
	require.NoError(t, repos.Escalations.Transition(ctx, entry, storage.EscalationPending))

	err := repos.Escalations.Transition(ctx, entry, storage.EscalationPending)
	assert.ErrorIs(t, err, storage.ErrConflict)

	pending, err := repos.Escalations.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestConversationRepository_Create_DuplicateIDConflicts(t *testing.T) {
	_, repos := storagetest.NewSeeded(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	first := &storage.Conversation{ID: "conv-dup", SessionID: "s1", Language: "en", StartedAt: t0, LastMessageAt: t0}
	require.NoError(t, repos.Conversations.Create(ctx, first))

	second := &storage.Conversation{ID: "conv-dup", SessionID: "s2", Language: "en", StartedAt: t0, LastMessageAt: t0}
	err := repos.Conversations.Create(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.False(t, errors.Is(err, storage.ErrUnavailable))
}

func TestRepositories_ClosedDatabase_ReportsUnavailable(t *testing.T) {
	db, repos := storagetest.NewSeeded(t)
	require.NoError(t, db.Close())
	ctx := context.Background()

	_, err := repos.Taxonomy.ListModels(ctx)
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = repos.Compatibility.Get(ctx, "cat-320d", "prod_123")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.False(t, errors.Is(err, storage.ErrNotFound))

	_, err = repos.Conversations.GetByID(ctx, "anything")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
