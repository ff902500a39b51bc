package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

func TestValidator_Validate(t *testing.T) {
	env := newTestEnv(t)
	v := NewValidator(env.repos.Compatibility, observability.NopLogger())

	tests := []struct {
		name       string
		product    string
		compatible bool
		known      bool
		confidence float64
		level      storage.CompatibilityLevel
		reason     string
	}{
		{
			name:       "unknown pair",
			product:    "prod_123",
			level:      storage.CompatibilityNotCompatible,
			reason:     "No compatibility data available",
			compatible: false,
		},
		{
			name:       "original part leads with original phrasing",
			product:    "prod_hyd_pump_320d",
			compatible: true,
			known:      true,
			confidence: 100,
			level:      storage.CompatibilityPerfect,
			reason:     "Original part - 100% perfect match",
		},
		{
			name:       "compatible",
			product:    "prod_hyd_pump_alt",
			compatible: true,
			known:      true,
			confidence: 92,
			level:      storage.CompatibilityCompatible,
			reason:     "Compatible - 92% match (may require minor adjustments)",
		},
		{
			name:       "check specs is not compatible",
			product:    "prod_seal_kit_universal",
			known:      true,
			confidence: 70,
			level:      storage.CompatibilityCheckSpecs,
			reason:     "Possibly compatible - 70% match (verify specifications)",
		},
		{
			name:       "authored not compatible differs from unknown",
			product:    "prod_pc200_filter",
			known:      true,
			confidence: 95,
			level:      storage.CompatibilityNotCompatible,
			reason:     "Not compatible - 95% certain this part does not fit your machine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(context.Background(), "cat-320d", tt.product)
			require.NoError(t, err)

			assert.Equal(t, tt.compatible, got.Compatible)
			assert.Equal(t, tt.known, got.Known)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Equal(t, tt.level, got.Level)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestVerdictFor_OriginalAlwaysLeads(t *testing.T) {
	levels := []storage.CompatibilityLevel{
		storage.CompatibilityPerfect,
		storage.CompatibilityCompatible,
		storage.CompatibilityCheckSpecs,
		storage.CompatibilityNotCompatible,
	}
	for _, level := range levels {
		got := VerdictFor(&storage.CompatibilityRecord{CompatibilityLevel: level, ConfidenceScore: 87.5, IsOriginal: true})
		assert.Regexp(t, `^Original part - `, got.Reason, level)
		assert.Contains(t, got.Reason, "87.5%", level)
		assert.Equal(t, level == storage.CompatibilityPerfect || level == storage.CompatibilityCompatible, got.Compatible, level)
	}
}

func TestValidator_Validate_StorageUnavailable(t *testing.T) {
	env := newTestEnv(t)
	v := NewValidator(env.repos.Compatibility, observability.NopLogger())
	require.NoError(t, env.db.Close())

	_, err := v.Validate(context.Background(), "cat-320d", "prod_hyd_pump_320d")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}
