package assistant

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

func TestRecommender_Recommend_FromPurchaseHistory(t *testing.T) {
	env := newTestEnv(t)
	r := NewRecommender(env.repos.FBT, env.repos.Purchases, observability.NopLogger())

	got, err := r.Recommend(context.Background(), "cat-320d", "")
	require.NoError(t, err)

	want := []Recommendation{
		{ProductID: "prod_hyd_filter", Reason: "30% of customers also buy this", Frequency: 3, Source: SourcePurchaseHistory},
		{ProductID: "prod_hyd_pump_320d", Reason: "30% of customers also buy this", Frequency: 3, Source: SourcePurchaseHistory},
		{ProductID: "prod_hose_set", Reason: "20% of customers also buy this", Frequency: 2, Source: SourcePurchaseHistory},
		{ProductID: "prod_seal_kit_universal", Reason: "10% of customers also buy this", Frequency: 1, Source: SourcePurchaseHistory},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Recommend mismatch (-want +got):\n%s", diff)
	}
}

func TestRecommender_Recommend_FromFrequentlyBoughtTogether(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	recomputer := NewRecomputer(env.repos.Purchases, env.repos.FBT, 2, observability.NopLogger())
	_, err := recomputer.RecomputeModel(ctx, "cat-320d")
	require.NoError(t, err)

	r := NewRecommender(env.repos.FBT, env.repos.Purchases, observability.NopLogger())
	got, err := r.Recommend(ctx, "cat-320d", "prod_hyd_pump_320d")
	require.NoError(t, err)

	want := []Recommendation{
		{ProductID: "prod_hyd_filter", Reason: "67% of customers also buy this", Frequency: 67, Source: SourceFrequentlyBoughtTogether},
		{ProductID: "prod_hose_set", Reason: "33% of customers also buy this", Frequency: 33, Source: SourceFrequentlyBoughtTogether},
		{ProductID: "prod_seal_kit_universal", Reason: "33% of customers also buy this", Frequency: 33, Source: SourceFrequentlyBoughtTogether},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Recommend mismatch (-want +got):\n%s", diff)
	}
}

func TestRecommender_Recommend_CapsAtFiveAndExcludesCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, env.repos.FBT.Upsert(ctx, &storage.FrequentlyBoughtTogether{
			ProductID:        "prod_bucket",
			RelatedProductID: fmt.Sprintf("prod_tooth_%d", i),
			FrequencyScore:   float64(10 + i),
			UpdatedAt:        time.Now(),
		}))
	}

	r := NewRecommender(env.repos.FBT, env.repos.Purchases, observability.NopLogger())
	got, err := r.Recommend(ctx, "cat-320d", "prod_bucket")
	require.NoError(t, err)

	require.Len(t, got, MaxRecommendations)
	assert.Equal(t, "prod_tooth_7", got[0].ProductID)
	for _, rec := range got {
		assert.NotEqual(t, "prod_bucket", rec.ProductID)
	}
}

func TestRecommender_Recommend_ListsEachProductOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.repos.FBT.Upsert(ctx, &storage.FrequentlyBoughtTogether{
		ProductID: "pa", RelatedProductID: "pb", FrequencyScore: 50, UpdatedAt: time.Now(),
	}))
	require.NoError(t, env.repos.FBT.ReplaceForModel(ctx, "cat-320d", []*storage.FrequentlyBoughtTogether{
		{ProductID: "pa", RelatedProductID: "pb", FrequencyScore: 40},
	}))

	r := NewRecommender(env.repos.FBT, env.repos.Purchases, observability.NopLogger())
	got, err := r.Recommend(ctx, "cat-320d", "pa")
	require.NoError(t, err)

	want := []Recommendation{
		{ProductID: "pb", Reason: "40% of customers also buy this", Frequency: 40, Source: SourceFrequentlyBoughtTogether},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Recommend mismatch (-want +got):\n%s", diff)
	}
}

func TestRecommender_Recommend_NoData(t *testing.T) {
	env := newTestEnv(t)
	r := NewRecommender(env.repos.FBT, env.repos.Purchases, observability.NopLogger())

	got, err := r.Recommend(context.Background(), "jcb-3cx", "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestPercentReason_Caps(t *testing.T) {
	assert.Equal(t, "100% of customers also buy this", percentReason(250))
	assert.Equal(t, "67% of customers also buy this", percentReason(66.7))
}

func TestComputeFrequentlyBoughtTogether(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a, b := "cust-a", "cust-b"
	purchases := []*storage.PurchaseRecord{
		{CustomerID: &a, ProductID: "p1", PurchasedAt: day},
		{CustomerID: &a, ProductID: "p2", PurchasedAt: day.Add(3 * time.Hour)},
		{CustomerID: &a, ProductID: "p3", PurchasedAt: day.Add(24 * time.Hour)},
		{CustomerID: &b, ProductID: "p1", PurchasedAt: day},
		{CustomerID: nil, ProductID: "p2", PurchasedAt: day},
	}

	got := ComputeFrequentlyBoughtTogether(purchases, day)

	type pair struct {
		From, To string
		Score    float64
	}
	var pairs []pair
	for _, f := range got {
		pairs = append(pairs, pair{f.ProductID, f.RelatedProductID, f.FrequencyScore})
	}

	want := []pair{
		{"p1", "p2", 50},
		{"p2", "p1", 100},
	}
	if diff := cmp.Diff(want, pairs); diff != "" {
		t.Errorf("ComputeFrequentlyBoughtTogether mismatch (-want +got):\n%s", diff)
	}
}

func TestRecomputer_RecomputeAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var seen []string
	recomputer := NewRecomputer(env.repos.Purchases, env.repos.FBT, 4, observability.NopLogger())
	report, err := recomputer.RecomputeAll(ctx, func(modelID string, done, total int) {
		seen = append(seen, modelID)
		assert.Equal(t, 1, total)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Models)
	assert.Equal(t, []string{"cat-320d"}, seen)

	rows, err := env.repos.FBT.ListByModel(ctx, "cat-320d")
	require.NoError(t, err)
	assert.Len(t, rows, report.Rows)

	// Recomputing replaces rather than accumulates.
	_, err = recomputer.RecomputeAll(ctx, nil)
	require.NoError(t, err)
	again, err := env.repos.FBT.ListByModel(ctx, "cat-320d")
	require.NoError(t, err)
	assert.Len(t, again, len(rows))
}
