package assistant

import (
	"context"
	"math"
	"strconv"

	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// MaxRecommendations caps every recommendation list.
const MaxRecommendations = 5

// Recommendation sources.
const (
	SourceFrequentlyBoughtTogether = "frequently_bought_together"
	SourcePurchaseHistory          = "purchase_history"
)

// Recommendation is one ranked related product.
//
// Percentage in Reason is a display heuristic: the co-purchase score when one exists,
// otherwise the purchase count scaled by ten. It is not a measured share of customers.
type Recommendation struct {
	ProductID string  `json:"productId"`
	Reason    string  `json:"reason"`
	Frequency float64 `json:"frequency"`
	Source    string  `json:"source"`
}

// Recommender ranks related products from the co-purchase ledger.
type Recommender struct {
	fbt       *storage.FrequentlyBoughtTogetherRepository
	purchases *storage.PurchaseRepository
	logger    *observability.Logger
}

// NewRecommender creates a new recommendation engine.
func NewRecommender(fbt *storage.FrequentlyBoughtTogetherRepository, purchases *storage.PurchaseRepository, logger *observability.Logger) *Recommender {
	return &Recommender{fbt: fbt, purchases: purchases, logger: logger}
}

// Recommend returns at most five related products. With a current product the ranking comes from
// frequently-bought-together rows and never includes that product; without one it comes from the
// model's purchase counts.
func (r *Recommender) Recommend(ctx context.Context, machineModelID, currentProductID string) ([]Recommendation, error) {
	out := []Recommendation{}

	if currentProductID != "" {
		rows, err := r.fbt.ListByProduct(ctx, currentProductID, machineModelID, MaxRecommendations+1)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(rows))
		for _, row := range rows {
			if row.RelatedProductID == currentProductID || seen[row.RelatedProductID] {
				continue
			}
			seen[row.RelatedProductID] = true
			out = append(out, Recommendation{
				ProductID: row.RelatedProductID,
				Reason:    percentReason(row.FrequencyScore),
				Frequency: row.FrequencyScore,
				Source:    SourceFrequentlyBoughtTogether,
			})
			if len(out) == MaxRecommendations {
				break
			}
		}
		return out, nil
	}

	if machineModelID == "" {
		return out, nil
	}

	counts, err := r.purchases.TopProductsByModel(ctx, machineModelID, MaxRecommendations)
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		out = append(out, Recommendation{
			ProductID: c.ProductID,
			Reason:    percentReason(float64(c.Count) * 10),
			Frequency: float64(c.Count),
			Source:    SourcePurchaseHistory,
		})
	}

	r.logger.Debug().
		Str("machine_model_id", machineModelID).
		Int("results", len(out)).
		Msg("Recommended from purchase history")

	return out, nil
}

func percentReason(score float64) string {
	pct := math.Round(score)
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return strconv.Itoa(int(pct)) + "% of customers also buy this"
}
