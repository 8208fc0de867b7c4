// Package sun derives the daily sunrise/sunset window used by the
// schedule-driven exposure policy.
package sun

import (
	"log/slog"
	"time"

	"github.com/nathan-osman/go-sunrise"

	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/types"
)

// Scheduler computes sun windows for a fixed geographic position. It is
// refreshed on an interval by the sensing loop, never per iteration.
type Scheduler struct {
	latitude  float64
	longitude float64
	refresh   time.Duration

	window types.SunWindow
}

// NewScheduler creates a scheduler for the configured location.
func NewScheduler(cfg config.SunConfig) *Scheduler {
	return &Scheduler{
		latitude:  cfg.Latitude,
		longitude: cfg.Longitude,
		refresh:   time.Duration(cfg.RefreshIntervalS) * time.Second,
	}
}

// Refresh recomputes the window for the current date. Computation failure
// (polar day/night yields zero times) keeps the previous window: the policy
// is fail-open, a stale window beats no window.
func (s *Scheduler) Refresh(now time.Time) types.SunWindow {
	rise, set := sunrise.SunriseSunset(
		s.latitude, s.longitude,
		now.Year(), now.Month(), now.Day(),
	)

	if rise.IsZero() || set.IsZero() {
		slog.Warn("sun window computation failed, keeping previous window",
			"latitude", s.latitude,
			"longitude", s.longitude,
			"date", now.Format("2006-01-02"),
		)
		// Push the retry out a full interval so a polar edge case cannot
		// turn the refresh into a per-iteration cost
		if !s.window.IsZero() {
			s.window.ValidUntil = now.Add(s.refresh)
		}
		return s.window
	}

	s.window = types.SunWindow{
		Sunrise:    rise,
		Sunset:     set,
		ComputedAt: now,
		ValidUntil: now.Add(s.refresh),
	}

	slog.Debug("sun window refreshed",
		"sunrise", rise.Format(time.RFC3339),
		"sunset", set.Format(time.RFC3339),
		"valid_until", s.window.ValidUntil.Format(time.RFC3339),
	)
	return s.window
}

// Window returns the last computed window without recomputing.
func (s *Scheduler) Window() types.SunWindow {
	return s.window
}

// IsDaytime reports whether now falls inside the window, boundaries
// inclusive. Pure function of its inputs.
func IsDaytime(w types.SunWindow, now time.Time) bool {
	return w.Contains(now)
}
