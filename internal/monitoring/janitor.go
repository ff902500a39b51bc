package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// EventEscalationStale is recorded once per pending entry that waited longer than the threshold.
const EventEscalationStale = "escalation_stale"

// ContextPurger deletes expired conversation context.
type ContextPurger interface {
	PurgeExpiredContext(ctx context.Context) (int64, error)
}

// EscalationLister lists queue entries by status.
type EscalationLister interface {
	ListEscalations(ctx context.Context, status storage.EscalationStatus) ([]*storage.EscalationEntry, error)
}

// JanitorConfig holds janitor scheduling settings.
type JanitorConfig struct {
	Interval   time.Duration // e.g., 5 minutes
	StaleAfter time.Duration // e.g., 15 minutes
}

// Janitor purges expired context and flags escalations nobody picked up.
type Janitor struct {
	logger   *observability.Logger
	purger   ContextPurger
	queue    EscalationLister
	recorder *Recorder
	config   JanitorConfig
	now      func() time.Time

	mu      sync.Mutex
	flagged map[string]bool
}

// SweepResult contains the results of one sweep.
type SweepResult struct {
	SweptAt    time.Time
	Purged     int64
	Pending    int
	NewlyStale []*storage.EscalationEntry
	OldestWait time.Duration
}

// NewJanitor creates a new janitor. recorder may be nil.
func NewJanitor(logger *observability.Logger, purger ContextPurger, queue EscalationLister, recorder *Recorder, cfg JanitorConfig) *Janitor {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 15 * time.Minute
	}

	return &Janitor{
		logger:   logger,
		purger:   purger,
		queue:    queue,
		recorder: recorder,
		config:   cfg,
		now:      time.Now,
		flagged:  make(map[string]bool),
	}
}

// WithClock overrides the time source.
func (j *Janitor) WithClock(now func() time.Time) *Janitor {
	j.now = now
	return j
}

// Sweep runs one purge and one stale-queue check. A failing step is logged and
// the other still runs; the first error is returned.
func (j *Janitor) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{SweptAt: j.now()}
	var firstErr error

	purged, err := j.purger.PurgeExpiredContext(ctx)
	if err != nil {
		j.logger.Warn().Err(err).Msg("Failed to purge expired context")
		firstErr = err
	} else {
		result.Purged = purged
	}

	pending, err := j.queue.ListEscalations(ctx, storage.EscalationPending)
	if err != nil {
		j.logger.Warn().Err(err).Msg("Failed to list pending escalations")
		if firstErr == nil {
			firstErr = err
		}
		return result, firstErr
	}
	result.Pending = len(pending)

	j.mu.Lock()
	live := make(map[string]bool, len(pending))
	for _, entry := range pending {
		live[entry.ID] = true

		wait := result.SweptAt.Sub(entry.CreatedAt)
		if wait > result.OldestWait {
			result.OldestWait = wait
		}
		if wait < j.config.StaleAfter || j.flagged[entry.ID] {
			continue
		}
		j.flagged[entry.ID] = true
		result.NewlyStale = append(result.NewlyStale, entry)
	}
	// Entries that left the pending state may be flagged again if they ever come back.
	for id := range j.flagged {
		if !live[id] {
			delete(j.flagged, id)
		}
	}
	j.mu.Unlock()

	for _, entry := range result.NewlyStale {
		j.logger.Warn().
			Str("escalation_id", entry.ID).
			Str("conversation_id", entry.ConversationID).
			Str("priority", string(entry.Priority)).
			Dur("waiting", result.SweptAt.Sub(entry.CreatedAt)).
			Msg("Escalation waiting too long")

		if j.recorder != nil {
			if err := j.recorder.LogEscalation(ctx, EventEscalationStale, entry); err != nil {
				j.logger.Warn().Err(err).Str("escalation_id", entry.ID).Msg("Failed to record stale escalation")
			}
		}
	}

	j.logger.Debug().
		Int64("purged", result.Purged).
		Int("pending", result.Pending).
		Int("newly_stale", len(result.NewlyStale)).
		Dur("oldest_wait", result.OldestWait).
		Msg("Janitor sweep completed")

	return result, firstErr
}

// Run sweeps every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.logger.Info().
		Dur("interval", j.config.Interval).
		Dur("stale_after", j.config.StaleAfter).
		Msg("Janitor started")

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("Stopping janitor")
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error().Err(err).Msg("Janitor sweep failed")
			}
		}
	}
}
