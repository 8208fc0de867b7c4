package sun

import (
	"testing"
	"time"

	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/types"
)

// Vienna, mid latitude: sunrise and sunset exist year round.
func viennaScheduler() *Scheduler {
	return NewScheduler(config.SunConfig{
		Latitude:         48.2082,
		Longitude:        16.3738,
		RefreshIntervalS: 1800,
	})
}

func TestSchedulerRefresh(t *testing.T) {
	s := viennaScheduler()
	now := time.Date(2026, 6, 21, 10, 0, 0, 0, time.UTC)

	w := s.Refresh(now)
	if w.IsZero() {
		t.Fatal("Refresh() returned a zero window for a mid-latitude location")
	}
	if !w.Sunrise.Before(w.Sunset) {
		t.Errorf("sunrise %v not before sunset %v", w.Sunrise, w.Sunset)
	}
	if got := w.ValidUntil.Sub(now); got != 30*time.Minute {
		t.Errorf("ValidUntil offset = %v, want 30m", got)
	}
	if s.Window() != w {
		t.Error("Window() does not return the refreshed window")
	}
}

func TestIsDaytime(t *testing.T) {
	s := viennaScheduler()
	w := s.Refresh(time.Date(2026, 6, 21, 10, 0, 0, 0, time.UTC))

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"just after sunrise", w.Sunrise.Add(time.Minute), true},
		{"just after sunset", w.Sunset.Add(time.Minute), false},
		{"just before sunrise", w.Sunrise.Add(-time.Minute), false},
		{"midday", w.Sunrise.Add(w.Sunset.Sub(w.Sunrise) / 2), true},
		{"sunrise boundary", w.Sunrise, true},
		{"sunset boundary", w.Sunset, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDaytime(w, tt.at); got != tt.want {
				t.Errorf("IsDaytime(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestRefreshFailOpen(t *testing.T) {
	s := viennaScheduler()

	// Establish a valid window first
	summer := time.Date(2026, 6, 21, 10, 0, 0, 0, time.UTC)
	w := s.Refresh(summer)
	if w.IsZero() {
		t.Fatal("summer refresh failed unexpectedly")
	}

	// Move the scheduler into polar night where computation yields nothing;
	// the previous window must survive with its validity pushed out
	s.latitude = 82.5
	winter := time.Date(2026, 12, 21, 10, 0, 0, 0, time.UTC)
	kept := s.Refresh(winter)

	if kept.Sunrise != w.Sunrise || kept.Sunset != w.Sunset {
		t.Error("failed refresh replaced the previous window")
	}
	if got := kept.ValidUntil.Sub(winter); got != 30*time.Minute {
		t.Errorf("failed refresh ValidUntil offset = %v, want 30m", got)
	}
}

func TestWindowStale(t *testing.T) {
	now := time.Date(2026, 6, 21, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		window types.SunWindow
		at     time.Time
		want   bool
	}{
		{"zero window", types.SunWindow{}, now, true},
		{
			"fresh window",
			types.SunWindow{Sunrise: now, Sunset: now.Add(12 * time.Hour), ValidUntil: now.Add(time.Hour)},
			now.Add(30 * time.Minute),
			false,
		},
		{
			"expired window",
			types.SunWindow{Sunrise: now, Sunset: now.Add(12 * time.Hour), ValidUntil: now.Add(time.Hour)},
			now.Add(2 * time.Hour),
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Stale(tt.at); got != tt.want {
				t.Errorf("Stale() = %v, want %v", got, tt.want)
			}
		})
	}
}
