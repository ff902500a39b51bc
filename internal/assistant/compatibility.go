package assistant

import (
	"context"
	"errors"
	"strconv"

	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// ReasonNoCompatibilityData is returned for pairs absent from the ledger.
const ReasonNoCompatibilityData = "No compatibility data available"

// CompatibilityResult is the verdict for one (machine model, product) pair.
type CompatibilityResult struct {
	MachineModelID string                     `json:"machineModelId"`
	ProductID      string                     `json:"productId"`
	Compatible     bool                       `json:"compatible"`
	Confidence     float64                    `json:"confidence"`
	Level          storage.CompatibilityLevel `json:"level"`
	IsOriginal     bool                       `json:"isOriginal"`
	Known          bool                       `json:"known"`
	Reason         string                     `json:"reason"`
	Notes          string                     `json:"notes,omitempty"`
}

// Validator answers compatibility questions from the ledger.
type Validator struct {
	repo   *storage.CompatibilityRepository
	logger *observability.Logger
}

// NewValidator creates a new compatibility validator.
func NewValidator(repo *storage.CompatibilityRepository, logger *observability.Logger) *Validator {
	return &Validator{repo: repo, logger: logger}
}

// Validate looks up the single record for the pair. A missing record is an "unknown" verdict,
// not an error; storage failures propagate.
func (v *Validator) Validate(ctx context.Context, machineModelID, productID string) (*CompatibilityResult, error) {
	result := &CompatibilityResult{
		MachineModelID: machineModelID,
		ProductID:      productID,
		Level:          storage.CompatibilityNotCompatible,
		Reason:         ReasonNoCompatibilityData,
	}
	if machineModelID == "" || productID == "" {
		return result, nil
	}

	rec, err := v.repo.Get(ctx, machineModelID, productID)
	if errors.Is(err, storage.ErrNotFound) {
		v.logger.Debug().
			Str("machine_model_id", machineModelID).
			Str("product_id", productID).
			Msg("No compatibility record")
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	return VerdictFor(rec), nil
}

// VerdictFor converts an authored record into a result.
func VerdictFor(rec *storage.CompatibilityRecord) *CompatibilityResult {
	compatible := rec.CompatibilityLevel == storage.CompatibilityPerfect ||
		rec.CompatibilityLevel == storage.CompatibilityCompatible
	return &CompatibilityResult{
		MachineModelID: rec.MachineModelID,
		ProductID:      rec.ProductID,
		Compatible:     compatible,
		Confidence:     rec.ConfidenceScore,
		Level:          rec.CompatibilityLevel,
		IsOriginal:     rec.IsOriginal,
		Known:          true,
		Reason:         compatibilityReason(rec.CompatibilityLevel, rec.ConfidenceScore, rec.IsOriginal),
		Notes:          rec.Notes,
	}
}

func compatibilityReason(level storage.CompatibilityLevel, confidence float64, original bool) string {
	pct := strconv.FormatFloat(confidence, 'f', -1, 64) + "%"
	if original {
		switch level {
		case storage.CompatibilityPerfect, storage.CompatibilityCompatible:
			return "Original part - " + pct + " perfect match"
		default:
			return "Original part - " + levelReason(level, pct)
		}
	}
	return levelReason(level, pct)
}

func levelReason(level storage.CompatibilityLevel, pct string) string {
	switch level {
	case storage.CompatibilityPerfect:
		return "Perfect match - " + pct + " compatible"
	case storage.CompatibilityCompatible:
		return "Compatible - " + pct + " match (may require minor adjustments)"
	case storage.CompatibilityCheckSpecs:
		return "Possibly compatible - " + pct + " match (verify specifications)"
	case storage.CompatibilityNotCompatible:
		return "Not compatible - " + pct + " certain this part does not fit your machine"
	default:
		return "Unknown compatibility"
	}
}
