package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// Intent names known to the response generator.
const (
	IntentSearchGuide        = "SEARCH_GUIDE"
	IntentTechnicalIssue     = "TECHNICAL_ISSUE"
	IntentCompatibilityCheck = "COMPATIBILITY_CHECK"
	IntentProductInquiry     = "PRODUCT_INQUIRY"
	IntentPriceInquiry       = "PRICE_INQUIRY"
	IntentReorder            = "REORDER"
	IntentRecommendation     = "RECOMMENDATION"
	IntentMaintenanceAdvice  = "MAINTENANCE_ADVICE"
	IntentShippingInquiry    = "SHIPPING_INQUIRY"
	IntentGeneralHelp        = "GENERAL_HELP"
	IntentEscalate           = "ESCALATE"
)

// Scoring weights for intent detection.
const (
	patternScore      = 30
	keywordScore      = 10
	matchBonus        = 5
	defaultIntentConf = 50
)

// DetectedIntent is the best-scoring intent for a message.
type DetectedIntent struct {
	Name       string          `json:"name"`
	Confidence float64         `json:"confidence"`
	Action     string          `json:"action"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// IntentDetector classifies chat messages against the authored intent mappings.
type IntentDetector struct {
	repo   *storage.KnowledgeRepository
	logger *observability.Logger
}

// NewIntentDetector creates a new intent detector.
func NewIntentDetector(repo *storage.KnowledgeRepository, logger *observability.Logger) *IntentDetector {
	return &IntentDetector{repo: repo, logger: logger}
}

// Detect returns the best intent for message, falling back to GENERAL_HELP.
func (d *IntentDetector) Detect(ctx context.Context, message string) (*DetectedIntent, error) {
	mappings, err := d.repo.ListIntents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load intent mappings: %w", err)
	}

	intent := DetectWith(mappings, message)

	d.logger.Debug().
		Str("intent", intent.Name).
		Float64("confidence", intent.Confidence).
		Msg("Detected intent")

	return intent, nil
}

// DetectWith scores message against mappings. Each contained pattern adds 30, each contained
// keyword adds 10 and every match adds a further 5, capped at 100. A mapping wins only when it
// beats the current best and reaches its own threshold.
func DetectWith(mappings []*storage.IntentMapping, message string) *DetectedIntent {
	best := &DetectedIntent{
		Name:       IntentGeneralHelp,
		Confidence: defaultIntentConf,
		Action:     "provide_guidance",
	}

	msg := normalize(message)
	if msg == "" {
		return best
	}

	ordered := append([]*storage.IntentMapping(nil), mappings...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ConfidenceThreshold != ordered[j].ConfidenceThreshold {
			return ordered[i].ConfidenceThreshold > ordered[j].ConfidenceThreshold
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, m := range ordered {
		score, matches := 0, 0
		for _, p := range m.Patterns {
			if containsTerm(msg, p) {
				score += patternScore
				matches++
			}
		}
		for _, k := range m.Keywords {
			if containsTerm(msg, k) {
				score += keywordScore
				matches++
			}
		}

		confidence := float64(min(100, score+matches*matchBonus))
		if confidence > best.Confidence && confidence >= m.ConfidenceThreshold {
			best = &DetectedIntent{
				Name:       m.IntentName,
				Confidence: confidence,
				Action:     m.Action,
				Metadata:   m.Metadata,
			}
		}
	}
	return best
}
