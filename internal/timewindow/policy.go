// Package timewindow computes the derived time values of the booking
// lifecycle: expiry deadlines, night-time detection and the next business
// moment used for delayed push delivery. It holds no mutable state.
package timewindow

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tolkly/bookingd/internal/domain"
)

// DefaultBusinessSpec fires at 09:00 on weekdays.
const DefaultBusinessSpec = "0 9 * * 1-5"

const (
	nightStartHour = 22
	nightEndHour   = 7
)

type Config struct {
	// Timezone is the IANA zone night-time and business hours are
	// evaluated in. Defaults to UTC.
	Timezone string

	// BusinessSpec is a cron expression for the start of a business day.
	BusinessSpec string
}

type Policy struct {
	loc      *time.Location
	business cron.Schedule
	clock    func() time.Time
}

// New builds a Policy. The zero Config uses UTC and DefaultBusinessSpec.
func New(cfg Config) (*Policy, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", tz, err)
	}

	spec := cfg.BusinessSpec
	if spec == "" {
		spec = DefaultBusinessSpec
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse business spec: %w", err)
	}

	return &Policy{loc: loc, business: sched, clock: time.Now}, nil
}

// WithClock replaces the time source, for tests.
func (p *Policy) WithClock(clock func() time.Time) *Policy {
	p.clock = clock
	return p
}

// ComputeExpiry derives will_expire_at from the gap between due and
// createdAt. The thresholds come straight from the booking rule table;
// the narrow windows are checked first so each documented case holds:
//
//	gap <= 24h  -> createdAt + 90min
//	gap <= 72h  -> createdAt + 16h
//	gap <= 90h  -> due
//	otherwise   -> due - 48h
func (p *Policy) ComputeExpiry(due, createdAt time.Time) time.Time {
	gap := due.Sub(createdAt)
	switch {
	case gap <= 24*time.Hour:
		return createdAt.Add(90 * time.Minute)
	case gap <= 72*time.Hour:
		return createdAt.Add(16 * time.Hour)
	case gap <= 90*time.Hour:
		return due
	default:
		return due.Add(-48 * time.Hour)
	}
}

// IsNightTime reports whether the current local time falls in the
// do-not-disturb window.
func (p *Policy) IsNightTime() bool {
	h := p.clock().In(p.loc).Hour()
	return h >= nightStartHour || h < nightEndHour
}

// NextBusinessMoment returns the next business-day start after now.
// Delayed pushes carry this timestamp; the transport schedules delivery.
func (p *Policy) NextBusinessMoment() time.Time {
	return p.business.Next(p.clock().In(p.loc))
}

// ShouldDelayPush is true when it is night and the translator asked not
// to be pushed at night.
func (p *Policy) ShouldDelayPush(t *domain.TranslatorProfile) bool {
	return p.IsNightTime() && t.NoNightPush
}

// ShouldSendPush is false only when the translator disabled push entirely.
func (p *Policy) ShouldSendPush(t *domain.TranslatorProfile) bool {
	return !t.NoPush
}
