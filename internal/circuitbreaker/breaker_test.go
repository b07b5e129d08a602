package circuitbreaker

import (
	"testing"
	"time"
)

func TestAllow_UnknownEndpoint_Allowed(t *testing.T) {
	cb := New(3, 5*time.Second)
	if err := cb.Allow("https://push.example.com/api"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_BelowThreshold_Allowed(t *testing.T) {
	cb := New(3, 5*time.Second)
	endpoint := "https://push.example.com/api"
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_AtThreshold_Open(t *testing.T) {
	cb := New(3, 5*time.Second)
	endpoint := "https://push.example.com/api"
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	if err := cb.Allow(endpoint); err == nil {
		t.Fatal("expected ErrCircuitOpen, got nil")
	}
}

func TestAllow_OpenAfterCooldown_HalfOpen(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	endpoint := "https://push.example.com/api"
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	time.Sleep(15 * time.Millisecond)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected nil (probe allowed), got %v", err)
	}
	if err := cb.Allow(endpoint); err == nil {
		t.Fatal("expected ErrCircuitOpen while half-open probe in flight")
	}
}

func TestRecordSuccess_ResetsToClose(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	endpoint := "https://push.example.com/api"
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	time.Sleep(15 * time.Millisecond)
	cb.Allow(endpoint)
	cb.RecordSuccess(endpoint)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected nil after reset, got %v", err)
	}
}

func TestRecordFailure_HalfOpenReOpens(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	endpoint := "https://push.example.com/api"
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	time.Sleep(15 * time.Millisecond)
	cb.Allow(endpoint)
	cb.RecordFailure(endpoint)
	if err := cb.Allow(endpoint); err == nil {
		t.Fatal("expected ErrCircuitOpen after probe failure re-open")
	}
}

func TestRecordSuccess_ClosedState_NoOp(t *testing.T) {
	cb := New(3, 5*time.Second)
	endpoint := "https://push.example.com/api"
	cb.RecordSuccess(endpoint)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIndependentEndpoints(t *testing.T) {
	cb := New(2, 5*time.Second)
	push := "https://push.example.com/api"
	sms := "https://sms.example.com/api"
	cb.RecordFailure(push)
	cb.RecordFailure(push)
	if err := cb.Allow(push); err == nil {
		t.Fatal("expected push endpoint open")
	}
	if err := cb.Allow(sms); err != nil {
		t.Fatalf("expected sms endpoint allowed, got %v", err)
	}
}
