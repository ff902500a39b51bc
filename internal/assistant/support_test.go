package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/config"
	"github.com/machineparts/parts-assistant/internal/storage"
)

func TestSupportDesk_IsOpen(t *testing.T) {
	desk, err := NewSupportDesk(config.DefaultConfig().Support, nil, 3)
	require.NoError(t, err)

	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	tests := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"monday morning", time.Date(2026, 10, 19, 10, 0, 0, 0, warsaw), true},
		{"weekday opening hour", time.Date(2026, 10, 20, 8, 0, 0, 0, warsaw), true},
		{"weekday closing hour", time.Date(2026, 10, 20, 18, 0, 0, 0, warsaw), false},
		{"weekday before opening", time.Date(2026, 10, 21, 7, 59, 0, 0, warsaw), false},
		{"saturday morning", time.Date(2026, 10, 24, 9, 30, 0, 0, warsaw), true},
		{"saturday afternoon", time.Date(2026, 10, 24, 15, 0, 0, 0, warsaw), false},
		{"sunday", time.Date(2026, 10, 25, 12, 0, 0, 0, warsaw), false},
		{"utc input is localized", time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.open, desk.IsOpen(tt.at))
		})
	}
}

func TestSupportDesk_Availability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	desk, err := NewSupportDesk(env.cfg.Support, env.convs, env.cfg.Assistant.WaitMinutesPerPosition)
	require.NoError(t, err)

	status, err := desk.Availability(ctx, testEpoch, LanguageEnglish)
	require.NoError(t, err)
	assert.True(t, status.Available)
	assert.Equal(t, "+48 123 456 789", status.Phone)
	assert.Equal(t, "Mon-Fri 8:00-18:00, Sat 9:00-14:00", status.Hours)
	assert.Equal(t, "Europe/Warsaw", status.Timezone)
	assert.Equal(t, 0, status.QueueLength)
	assert.Equal(t, 3, status.EstimatedWaitMinutes)

	conv, err := env.convs.Start(ctx, StartRequest{SessionID: "sess-1"})
	require.NoError(t, err)
	_, err = env.convs.Escalate(ctx, conv.ID, storage.PriorityHigh, "")
	require.NoError(t, err)

	status, err = desk.Availability(ctx, testEpoch.Add(-24*time.Hour), LanguagePolish)
	require.NoError(t, err)
	assert.False(t, status.Available, "sunday")
	assert.Equal(t, "Pon-Pt 8:00-18:00, Sob 9:00-14:00", status.Hours)
	assert.Equal(t, 1, status.QueueLength)
	assert.Equal(t, 6, status.EstimatedWaitMinutes)
}

func TestNewSupportDesk_UnknownTimezone(t *testing.T) {
	cfg := config.DefaultConfig().Support
	cfg.Timezone = "Mars/Olympus_Mons"

	_, err := NewSupportDesk(cfg, nil, 3)
	assert.Error(t, err)
}
