package assistant

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/machineparts/parts-assistant/internal/config"
)

// SupportStatus describes whether human support is reachable right now.
type SupportStatus struct {
	Available            bool   `json:"available"`
	Phone                string `json:"phone"`
	Email                string `json:"email"`
	Hours                string `json:"hours"`
	Timezone             string `json:"timezone"`
	QueueLength          int    `json:"queueLength"`
	EstimatedWaitMinutes int    `json:"estimatedWaitMinutes"`
}

// SupportDesk reports support desk hours and queue load.
type SupportDesk struct {
	cfg           config.SupportConfig
	loc           *time.Location
	conversations *ConversationService
	waitPerEntry  int
}

// NewSupportDesk creates a support desk for the configured time zone.
func NewSupportDesk(cfg config.SupportConfig, conversations *ConversationService, waitMinutesPerPosition int) (*SupportDesk, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "Europe/Warsaw"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load support timezone %q: %w", tz, err)
	}
	return &SupportDesk{
		cfg:           cfg,
		loc:           loc,
		conversations: conversations,
		waitPerEntry:  waitMinutesPerPosition,
	}, nil
}

// Availability reports the desk state at now, localized to language.
func (d *SupportDesk) Availability(ctx context.Context, now time.Time, language string) (*SupportStatus, error) {
	pending, err := d.conversations.PendingCount(ctx)
	if err != nil {
		return nil, err
	}

	return &SupportStatus{
		Available:            d.IsOpen(now),
		Phone:                d.cfg.Phone,
		Email:                d.cfg.Email,
		Hours:                d.hours(language),
		Timezone:             d.loc.String(),
		QueueLength:          pending,
		EstimatedWaitMinutes: (pending + 1) * d.waitPerEntry,
	}, nil
}

// IsOpen reports whether now falls within weekday or Saturday hours. Sunday is closed.
func (d *SupportDesk) IsOpen(now time.Time) bool {
	local := now.In(d.loc)
	hour := local.Hour()

	switch local.Weekday() {
	case time.Sunday:
		return false
	case time.Saturday:
		return hour >= d.cfg.SaturdayOpen && hour < d.cfg.SaturdayClose
	default:
		return hour >= d.cfg.WeekdayOpen && hour < d.cfg.WeekdayClose
	}
}

func (d *SupportDesk) hours(language string) string {
	if language == LanguagePolish {
		return fmt.Sprintf("Pon-Pt %d:00-%d:00, Sob %d:00-%d:00",
			d.cfg.WeekdayOpen, d.cfg.WeekdayClose, d.cfg.SaturdayOpen, d.cfg.SaturdayClose)
	}
	return fmt.Sprintf("Mon-Fri %d:00-%d:00, Sat %d:00-%d:00",
		d.cfg.WeekdayOpen, d.cfg.WeekdayClose, d.cfg.SaturdayOpen, d.cfg.SaturdayClose)
}
