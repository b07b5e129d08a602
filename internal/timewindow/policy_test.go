package timewindow

import (
	"testing"
	"time"

	"github.com/tolkly/bookingd/internal/domain"
)

func mustPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestComputeExpiry(t *testing.T) {
	p := mustPolicy(t)
	created := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		due  time.Time
		want time.Time
	}{
		{
			name: "one hour gap expires 90 minutes after creation",
			due:  created.Add(1 * time.Hour),
			want: created.Add(90 * time.Minute),
		},
		{
			name: "thirty hour gap expires 16 hours after creation",
			due:  created.Add(30 * time.Hour),
			want: created.Add(16 * time.Hour),
		},
		{
			name: "eighty hour gap expires at due",
			due:  created.Add(80 * time.Hour),
			want: created.Add(80 * time.Hour),
		},
		{
			name: "hundred hour gap expires 48 hours before due",
			due:  created.Add(100 * time.Hour),
			want: created.Add(52 * time.Hour),
		},
		{
			name: "boundary 24h gap uses 90 minute rule",
			due:  created.Add(24 * time.Hour),
			want: created.Add(90 * time.Minute),
		},
		{
			name: "boundary 72h gap uses 16 hour rule",
			due:  created.Add(72 * time.Hour),
			want: created.Add(16 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.ComputeExpiry(tt.due, created)
			if !got.Equal(tt.want) {
				t.Errorf("ComputeExpiry(%s) = %s, want %s", tt.due, got, tt.want)
			}
		})
	}
}

func TestIsNightTime(t *testing.T) {
	tests := []struct {
		hour int
		want bool
	}{
		{hour: 23, want: true},
		{hour: 22, want: true},
		{hour: 3, want: true},
		{hour: 6, want: true},
		{hour: 7, want: false},
		{hour: 12, want: false},
		{hour: 21, want: false},
	}

	for _, tt := range tests {
		p := mustPolicy(t).WithClock(func() time.Time {
			return time.Date(2024, 3, 5, tt.hour, 30, 0, 0, time.UTC)
		})
		if got := p.IsNightTime(); got != tt.want {
			t.Errorf("IsNightTime at %02d:30 = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestNextBusinessMoment(t *testing.T) {
	// Friday 23:00 -> Monday 09:00.
	p := mustPolicy(t).WithClock(func() time.Time {
		return time.Date(2024, 3, 8, 23, 0, 0, 0, time.UTC)
	})
	got := p.NextBusinessMoment()
	want := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextBusinessMoment = %s, want %s", got, want)
	}
}

func TestPushPreferences(t *testing.T) {
	night := mustPolicy(t).WithClock(func() time.Time {
		return time.Date(2024, 3, 5, 23, 0, 0, 0, time.UTC)
	})
	day := mustPolicy(t).WithClock(func() time.Time {
		return time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	})

	quiet := &domain.TranslatorProfile{NoNightPush: true}
	loud := &domain.TranslatorProfile{}
	muted := &domain.TranslatorProfile{NoPush: true}

	if !night.ShouldDelayPush(quiet) {
		t.Error("night push to a no-night translator should be delayed")
	}
	if night.ShouldDelayPush(loud) {
		t.Error("night push without the preference should not be delayed")
	}
	if day.ShouldDelayPush(quiet) {
		t.Error("daytime push should never be delayed")
	}
	if day.ShouldSendPush(muted) {
		t.Error("push-disabled translator should never receive push")
	}
	if !day.ShouldSendPush(loud) {
		t.Error("translator without preferences should receive push")
	}
}
