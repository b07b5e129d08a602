package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tolkly/bookingd/internal/domain"
)

func TestConvertToHoursMins(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{10, "10min"},
		{59, "59min"},
		{60, "1h"},
		{61, "01h 01min"},
		{90, "01h 30min"},
		{150, "02h 30min"},
	}
	for _, tt := range tests {
		if got := convertToHoursMins(tt.minutes); got != tt.want {
			t.Errorf("convertToHoursMins(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func snapshotForMessages(immediate, phone, physical bool) domain.Snapshot {
	job := domain.Job{
		ID:                      uuid.New(),
		Due:                     time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
		Immediate:               immediate,
		Duration:                90,
		Town:                    "Stockholm",
		CustomerPhoneAllowed:    phone,
		CustomerPhysicalAllowed: physical,
	}
	return job.ToSnapshot()
}

func TestNewJobPushMessage(t *testing.T) {
	scheduled := snapshotForMessages(false, true, false)
	got := newJobPushMessage("engelska", scheduled)
	want := "Ny bokning för engelskatolk 90min 2026-03-10 14:30:00"
	if got != want {
		t.Errorf("scheduled message = %q, want %q", got, want)
	}

	urgent := snapshotForMessages(true, true, false)
	got = newJobPushMessage("engelska", urgent)
	want = "Ny akutbokning för engelskatolk 90min"
	if got != want {
		t.Errorf("immediate message = %q, want %q", got, want)
	}
}

func TestSMSMessagePicksTemplate(t *testing.T) {
	physical := snapshotForMessages(false, false, true)
	msg := smsMessage(physical)
	if !strings.Contains(msg, "platstolkningen") || !strings.Contains(msg, "Stockholm") {
		t.Errorf("physical-only booking should use the on-site wording, got %q", msg)
	}

	phone := snapshotForMessages(false, true, false)
	msg = smsMessage(phone)
	if !strings.Contains(msg, "telefontolkningen") {
		t.Errorf("phone booking should use the phone wording, got %q", msg)
	}

	// When both are allowed the phone wording wins.
	both := snapshotForMessages(false, true, true)
	msg = smsMessage(both)
	if !strings.Contains(msg, "telefontolkningen") {
		t.Errorf("both-allowed booking should use the phone wording, got %q", msg)
	}

	if !strings.Contains(msg, "01h 30min") {
		t.Errorf("duration should be rendered in hours and minutes, got %q", msg)
	}
}

func TestSessionStartRemindMessage(t *testing.T) {
	physical := snapshotForMessages(false, false, true)
	msg := sessionStartRemindMessage("franska", physical)
	if !strings.Contains(msg, "på plats i Stockholm") {
		t.Errorf("on-site reminder should mention the town, got %q", msg)
	}

	phone := snapshotForMessages(false, true, false)
	msg = sessionStartRemindMessage("franska", phone)
	if !strings.Contains(msg, "(telefon)") {
		t.Errorf("phone reminder should mention telefon, got %q", msg)
	}
	if !strings.Contains(msg, "kl 14:30:00 på 2026-03-10") {
		t.Errorf("reminder should carry due time and date, got %q", msg)
	}
}
