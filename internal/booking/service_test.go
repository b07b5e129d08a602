package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tolkly/bookingd/internal/domain"
	"github.com/tolkly/bookingd/internal/lifecycle"
)

type mockStore struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]domain.Job
	customers   map[uuid.UUID]domain.Customer
	translators map[uuid.UUID]domain.TranslatorProfile
}

func newMockStore() *mockStore {
	return &mockStore{
		jobs:        make(map[uuid.UUID]domain.Job),
		customers:   make(map[uuid.UUID]domain.Customer),
		translators: make(map[uuid.UUID]domain.TranslatorProfile),
	}
}

func (m *mockStore) GetJobByID(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return job, nil
}

func (m *mockStore) CreateJob(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *mockStore) SaveJob(ctx context.Context, job *domain.Job) error {
	return m.CreateJob(ctx, job)
}

func (m *mockStore) GetCustomerByID(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrNotFound
	}
	return c, nil
}

func (m *mockStore) GetTranslatorByID(ctx context.Context, id uuid.UUID) (domain.TranslatorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.translators[id]
	if !ok {
		return domain.TranslatorProfile{}, domain.ErrNotFound
	}
	return t, nil
}

type mockMatcher struct {
	translators []domain.TranslatorProfile
	jobs        []domain.Job
}

func (m *mockMatcher) PotentialTranslators(ctx context.Context, job *domain.Job) ([]domain.TranslatorProfile, error) {
	return m.translators, nil
}

func (m *mockMatcher) PotentialJobs(ctx context.Context, t *domain.TranslatorProfile) ([]domain.Job, error) {
	return m.jobs, nil
}

type mockBus struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
}

func (m *mockBus) Emit(ctx context.Context, ev domain.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

type mockLifecycle struct{}

func (m *mockLifecycle) UpdateJob(ctx context.Context, jobID uuid.UUID, patch lifecycle.JobPatch, actor lifecycle.Actor) (domain.Job, error) {
	return domain.Job{ID: jobID}, nil
}

func (m *mockLifecycle) ChangeStatus(ctx context.Context, jobID uuid.UUID, target domain.Status, actor lifecycle.Actor) (domain.Job, error) {
	return domain.Job{ID: jobID, Status: target}, nil
}

type gapExpiry struct{}

func (gapExpiry) ComputeExpiry(due, createdAt time.Time) time.Time {
	return createdAt.Add(90 * time.Minute)
}

var testNow = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

func newService(store *mockStore, bus *mockBus) *Service {
	return New(store, &mockMatcher{}, &mockLifecycle{}, gapExpiry{}, bus, nil).
		WithClock(func() time.Time { return testNow })
}

func seedCustomer(store *mockStore, consumer domain.ConsumerType) domain.Customer {
	c := domain.Customer{ID: uuid.New(), Name: "Kund", Email: "kund@example.com", Town: "Stockholm", ConsumerType: consumer}
	store.customers[c.ID] = c
	return c
}

func validRequest(customerID uuid.UUID) CreateRequest {
	return CreateRequest{
		CustomerID:     customerID,
		FromLanguageID: uuid.New(),
		Due:            testNow.Add(48 * time.Hour),
		Duration:       60,
		PhoneAllowed:   true,
	}
}

func TestCreateScheduledBooking(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	s := newService(store, bus)
	cust := seedCustomer(store, domain.ConsumerDefault)

	job, err := s.Create(context.Background(), validRequest(cust.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.JobType != domain.JobTypePaid {
		t.Errorf("job type = %s, want paid", job.JobType)
	}
	if !job.WillExpireAt.Equal(testNow.Add(90 * time.Minute)) {
		t.Errorf("will_expire_at = %v", job.WillExpireAt)
	}
	if job.Town != "Stockholm" {
		t.Errorf("town should default to the customer's town, got %q", job.Town)
	}

	if len(bus.events) != 1 || bus.events[0].Kind != domain.EventJobCreated {
		t.Fatalf("expected one job_created event, got %+v", bus.events)
	}
}

func TestCreateConsumerTypeMapping(t *testing.T) {
	tests := []struct {
		consumer domain.ConsumerType
		want     domain.JobType
	}{
		{domain.ConsumerRWS, domain.JobTypeRWS},
		{domain.ConsumerNGO, domain.JobTypeUnpaid},
		{domain.ConsumerDefault, domain.JobTypePaid},
		{domain.ConsumerType("anything"), domain.JobTypePaid},
	}
	for _, tt := range tests {
		store := newMockStore()
		bus := &mockBus{}
		s := newService(store, bus)
		cust := seedCustomer(store, tt.consumer)

		job, err := s.Create(context.Background(), validRequest(cust.ID))
		if err != nil {
			t.Fatalf("create (%s): %v", tt.consumer, err)
		}
		if job.JobType != tt.want {
			t.Errorf("consumer %s: job type = %s, want %s", tt.consumer, job.JobType, tt.want)
		}
	}
}

func TestCreateRejectsPastDue(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	s := newService(store, bus)
	cust := seedCustomer(store, domain.ConsumerDefault)

	req := validRequest(cust.ID)
	req.Due = testNow.Add(-time.Hour)
	if _, err := s.Create(context.Background(), req); !errors.Is(err, domain.ErrPastDue) {
		t.Fatalf("expected ErrPastDue, got %v", err)
	}
	if len(store.jobs) != 0 {
		t.Errorf("rejected creation must not persist a job")
	}
	if len(bus.events) != 0 {
		t.Errorf("rejected creation must emit nothing")
	}
}

func TestCreateValidation(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	s := newService(store, bus)
	cust := seedCustomer(store, domain.ConsumerDefault)

	var verr *domain.ValidationError

	req := validRequest(cust.ID)
	req.FromLanguageID = uuid.Nil
	if _, err := s.Create(context.Background(), req); !errors.As(err, &verr) {
		t.Errorf("missing language: expected ValidationError, got %v", err)
	}

	req = validRequest(cust.ID)
	req.Duration = 0
	if _, err := s.Create(context.Background(), req); !errors.As(err, &verr) {
		t.Errorf("zero duration: expected ValidationError, got %v", err)
	}

	req = validRequest(cust.ID)
	req.PhoneAllowed = false
	req.PhysicalAllowed = false
	if _, err := s.Create(context.Background(), req); !errors.As(err, &verr) {
		t.Errorf("no contact method: expected ValidationError, got %v", err)
	}
}

func TestCreateImmediateBooking(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	s := newService(store, bus)
	cust := seedCustomer(store, domain.ConsumerDefault)

	req := CreateRequest{
		CustomerID:     cust.ID,
		FromLanguageID: uuid.New(),
		Immediate:      true,
		Duration:       30,
		// No due, no phone flag: both are derived for urgent bookings.
	}
	job, err := s.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !job.Due.Equal(testNow.Add(5 * time.Minute)) {
		t.Errorf("due = %v, want now+5min", job.Due)
	}
	if !job.CustomerPhoneAllowed {
		t.Errorf("immediate bookings must allow phone contact")
	}
	if !job.Immediate {
		t.Errorf("immediate flag lost")
	}
}

func TestSetContactDetailsEmitsConfirmation(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	s := newService(store, bus)
	cust := seedCustomer(store, domain.ConsumerDefault)

	job, err := s.Create(context.Background(), validRequest(cust.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.SetContactDetails(context.Background(), job.ID, ContactDetails{
		OverrideEmail: "avdelning@example.com",
		Reference:     "ärende 42",
	})
	if err != nil {
		t.Fatalf("set contact details: %v", err)
	}
	if updated.OverrideEmail != "avdelning@example.com" || updated.Reference != "ärende 42" {
		t.Errorf("details not applied: %+v", updated)
	}

	last := bus.events[len(bus.events)-1]
	if last.Kind != domain.EventBookingConfirmed {
		t.Errorf("last event = %s, want booking_confirmed", last.Kind)
	}
	if last.Job.OverrideEmail != "avdelning@example.com" {
		t.Errorf("event snapshot should carry the override email")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	s := newService(store, bus)
	cust := seedCustomer(store, domain.ConsumerDefault)

	req := validRequest(cust.ID)
	req.Due = time.Date(2026, 3, 11, 9, 15, 0, 0, time.UTC)
	req.Gender = domain.GenderFemale
	req.Certified = domain.CertificationBoth
	job, err := s.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	snap, err := s.Snapshot(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.DueDate != "2026-03-11" || snap.DueTime != "09:15:00" {
		t.Errorf("due split = %q / %q", snap.DueDate, snap.DueTime)
	}
	want := []string{"Kvinna", "normal", "certified"}
	if len(snap.JobFor) != len(want) {
		t.Fatalf("job_for = %v, want %v", snap.JobFor, want)
	}
	for i := range want {
		if snap.JobFor[i] != want[i] {
			t.Errorf("job_for[%d] = %q, want %q", i, snap.JobFor[i], want[i])
		}
	}
}
