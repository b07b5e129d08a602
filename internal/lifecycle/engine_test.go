package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tolkly/bookingd/internal/domain"
)

type mockStore struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]domain.Job
	assignments map[uuid.UUID][]domain.Assignment // by job id
	saveErr     error
	completed   []uuid.UUID
}

func newMockStore() *mockStore {
	return &mockStore{
		jobs:        make(map[uuid.UUID]domain.Job),
		assignments: make(map[uuid.UUID][]domain.Assignment),
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

func (m *mockStore) SaveJob(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *mockStore) ActiveAssignment(ctx context.Context, jobID uuid.UUID) (domain.Assignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments[jobID] {
		if a.Active() {
			return a, true, nil
		}
	}
	return domain.Assignment{}, false, nil
}

func (m *mockStore) LatestAssignment(ctx context.Context, jobID uuid.UUID) (domain.Assignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.assignments[jobID]
	if len(rows) == 0 {
		return domain.Assignment{}, false, nil
	}
	return rows[len(rows)-1], true, nil
}

func (m *mockStore) CompleteAssignment(ctx context.Context, id uuid.UUID, at time.Time, by uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, id)
	for jobID, rows := range m.assignments {
		for i := range rows {
			if rows[i].ID == id {
				done := at
				rows[i].CompletedAt = &done
				completedBy := by
				rows[i].CompletedBy = &completedBy
				m.assignments[jobID] = rows
			}
		}
	}
	return nil
}

type mockReassigner struct {
	result ReassignResult
	err    error
	calls  int
}

func (m *mockReassigner) Reassign(ctx context.Context, job *domain.Job, id uuid.UUID, email string) (ReassignResult, error) {
	m.calls++
	return m.result, m.err
}

type mockBus struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
	err    error
}

func (m *mockBus) Emit(ctx context.Context, ev domain.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockBus) kinds() []domain.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventKind, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Kind
	}
	return out
}

type fixedExpiry struct{ at time.Time }

func (f fixedExpiry) ComputeExpiry(due, createdAt time.Time) time.Time { return f.at }

var testNow = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

func newEngine(store *mockStore, reassigner *mockReassigner, bus *mockBus) *Engine {
	return New(store, reassigner, fixedExpiry{at: testNow.Add(90 * time.Minute)}, bus, nil).
		WithClock(func() time.Time { return testNow })
}

func seedJob(store *mockStore, status domain.Status) domain.Job {
	job := domain.Job{
		ID:                   uuid.New(),
		CustomerID:           uuid.New(),
		Status:               status,
		Due:                  testNow.Add(48 * time.Hour),
		FromLanguageID:       uuid.New(),
		Duration:             60,
		CustomerPhoneAllowed: true,
		CreatedAt:            testNow.Add(-time.Hour),
	}
	store.jobs[job.ID] = job
	return job
}

func statusOf(target domain.Status) *domain.Status { return &target }

func strPtr(s string) *string { return &s }

func TestAssignWithoutTranslatorRejected(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	e := newEngine(store, &mockReassigner{}, bus)
	job := seedJob(store, domain.StatusPending)

	_, err := e.ChangeStatus(context.Background(), job.ID, domain.StatusAssigned, Actor{Name: "admin"})
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if got := store.jobs[job.ID].Status; got != domain.StatusPending {
		t.Errorf("status = %s, want pending", got)
	}
	if len(bus.kinds()) != 0 {
		t.Errorf("rejected transition must emit nothing, got %v", bus.kinds())
	}
}

func TestAssignViaReassignment(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	translatorID := uuid.New()
	reassigner := &mockReassigner{result: ReassignResult{NewTranslatorID: translatorID, Changed: true}}
	e := newEngine(store, reassigner, bus)
	job := seedJob(store, domain.StatusPending)

	patch := JobPatch{
		Status:       statusOf(domain.StatusAssigned),
		TranslatorID: &translatorID,
	}
	updated, err := e.UpdateJob(context.Background(), job.ID, patch, Actor{Name: "admin"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusAssigned {
		t.Errorf("status = %s, want assigned", updated.Status)
	}

	kinds := bus.kinds()
	want := []domain.EventKind{
		domain.EventJobAccepted,
		domain.EventSessionStartRemind,
		domain.EventSessionStartRemind,
		domain.EventTranslatorChanged,
	}
	if len(kinds) != len(want) {
		t.Fatalf("emitted %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}

	// One reminder targets the customer, the other the translator.
	first, second := bus.events[1], bus.events[2]
	if first.Recipients[0] != job.CustomerID || second.Recipients[0] != translatorID {
		t.Errorf("reminder recipients = %v / %v", first.Recipients, second.Recipients)
	}
}

func TestCompleteWithoutSessionTimeRejected(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	e := newEngine(store, &mockReassigner{}, bus)
	job := seedJob(store, domain.StatusStarted)

	patch := JobPatch{
		Status:        statusOf(domain.StatusCompleted),
		AdminComments: strPtr("klart"),
	}
	_, err := e.UpdateJob(context.Background(), job.ID, patch, Actor{Name: "admin"})
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if got := store.jobs[job.ID].Status; got != domain.StatusStarted {
		t.Errorf("status = %s, want started", got)
	}
}

func TestCompleteClosesAssignmentAndMailsSummary(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	e := newEngine(store, &mockReassigner{}, bus)
	job := seedJob(store, domain.StatusStarted)

	translatorID := uuid.New()
	assignment := domain.Assignment{ID: uuid.New(), JobID: job.ID, TranslatorID: translatorID, AssignedAt: testNow.Add(-time.Hour)}
	store.assignments[job.ID] = []domain.Assignment{assignment}

	actor := Actor{ID: uuid.New(), Name: "admin"}
	patch := JobPatch{
		Status:        statusOf(domain.StatusCompleted),
		AdminComments: strPtr("genomförd"),
		SessionTime:   strPtr("1:30:00"),
	}
	updated, err := e.UpdateJob(context.Background(), job.ID, patch, actor)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want completed", updated.Status)
	}
	if updated.EndAt == nil || !updated.EndAt.Equal(testNow) {
		t.Errorf("end_at = %v, want %v", updated.EndAt, testNow)
	}
	if updated.SessionTime != "1:30:00" {
		t.Errorf("session_time = %q", updated.SessionTime)
	}
	if len(store.completed) != 1 || store.completed[0] != assignment.ID {
		t.Errorf("active assignment should be closed, completed=%v", store.completed)
	}

	kinds := bus.kinds()
	if len(kinds) != 1 || kinds[0] != domain.EventSessionEnded {
		t.Fatalf("emitted %v, want [session_ended]", kinds)
	}
	ev := bus.events[0]
	if ev.SessionTime != "1 tim 30 min" {
		t.Errorf("event session time = %q, want %q", ev.SessionTime, "1 tim 30 min")
	}
	if len(ev.Recipients) != 1 || ev.Recipients[0] != translatorID {
		t.Errorf("event recipients = %v", ev.Recipients)
	}
}

func TestPastDueChangeNoticesSuppressed(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	e := newEngine(store, &mockReassigner{}, bus)
	job := seedJob(store, domain.StatusPending)

	past := testNow.Add(-2 * time.Hour)
	newLang := uuid.New()
	patch := JobPatch{Due: &past, FromLanguageID: &newLang}
	updated, err := e.UpdateJob(context.Background(), job.ID, patch, Actor{Name: "admin"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Due.Equal(past) || updated.FromLanguageID != newLang {
		t.Errorf("changes must persist, got %+v", updated)
	}
	if len(bus.kinds()) != 0 {
		t.Errorf("past-due field changes must not be announced, got %v", bus.kinds())
	}
}

func TestCompleteAfterDueStillMailsSummary(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	e := newEngine(store, &mockReassigner{}, bus)
	job := seedJob(store, domain.StatusStarted)

	stale := store.jobs[job.ID]
	stale.Due = testNow.Add(-90 * time.Minute)
	store.jobs[job.ID] = stale

	translatorID := uuid.New()
	assignment := domain.Assignment{ID: uuid.New(), JobID: job.ID, TranslatorID: translatorID, AssignedAt: testNow.Add(-2 * time.Hour)}
	store.assignments[job.ID] = []domain.Assignment{assignment}

	patch := JobPatch{
		Status:        statusOf(domain.StatusCompleted),
		AdminComments: strPtr("genomförd"),
		SessionTime:   strPtr("1:30:00"),
	}
	updated, err := e.UpdateJob(context.Background(), job.ID, patch, Actor{ID: uuid.New(), Name: "admin"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want completed", updated.Status)
	}
	if len(store.completed) != 1 || store.completed[0] != assignment.ID {
		t.Errorf("active assignment should be closed, completed=%v", store.completed)
	}

	// The session ran past its due time before being closed out; the
	// summary is still owed to both parties.
	kinds := bus.kinds()
	if len(kinds) != 1 || kinds[0] != domain.EventSessionEnded {
		t.Fatalf("emitted %v, want [session_ended]", kinds)
	}
	if got := bus.events[0].Recipients; len(got) != 1 || got[0] != translatorID {
		t.Errorf("event recipients = %v", got)
	}
}

func TestWithdrawFromAssigned(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	e := newEngine(store, &mockReassigner{}, bus)
	job := seedJob(store, domain.StatusAssigned)

	translatorID := uuid.New()
	store.assignments[job.ID] = []domain.Assignment{{ID: uuid.New(), JobID: job.ID, TranslatorID: translatorID, AssignedAt: testNow.Add(-time.Hour)}}

	// The literal comment "timedout" is not an acceptable reason.
	patch := JobPatch{
		Status:        statusOf(domain.StatusWithdrawBefore24),
		AdminComments: strPtr("timedout"),
	}
	if _, err := e.UpdateJob(context.Background(), job.ID, patch, Actor{Name: "admin"}); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition for placeholder comment, got %v", err)
	}

	patch.AdminComments = strPtr("kund bad om avbokning")
	updated, err := e.UpdateJob(context.Background(), job.ID, patch, Actor{Name: "admin"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusWithdrawBefore24 {
		t.Errorf("status = %s", updated.Status)
	}
	if updated.WithdrawAt == nil || !updated.WithdrawAt.Equal(testNow) {
		t.Errorf("withdraw_at = %v, want %v", updated.WithdrawAt, testNow)
	}

	kinds := bus.kinds()
	want := []domain.EventKind{domain.EventStatusChangedCustomer, domain.EventJobCancelled}
	if len(kinds) != 2 || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Fatalf("emitted %v, want %v", kinds, want)
	}
	if got := bus.events[1].Recipients; len(got) != 1 || got[0] != translatorID {
		t.Errorf("cancellation should target the translator, got %v", got)
	}
}

func TestReopenTimedoutInPlace(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	e := newEngine(store, &mockReassigner{}, bus)
	job := seedJob(store, domain.StatusTimedout)
	stale := store.jobs[job.ID]
	stale.Cust16HourEmailSent = true
	stale.Cust48HourEmailSent = true
	store.jobs[job.ID] = stale

	updated, err := e.ChangeStatus(context.Background(), job.ID, domain.StatusPending, Actor{Name: "admin"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", updated.Status)
	}
	if !updated.CreatedAt.Equal(testNow) {
		t.Errorf("created_at = %v, want fresh %v", updated.CreatedAt, testNow)
	}
	if !updated.WillExpireAt.After(testNow) {
		t.Errorf("will_expire_at = %v, want after now", updated.WillExpireAt)
	}
	if updated.Cust16HourEmailSent || updated.Cust48HourEmailSent {
		t.Errorf("reminder flags must be reset")
	}

	kinds := bus.kinds()
	if len(kinds) != 1 || kinds[0] != domain.EventJobReopened {
		t.Errorf("emitted %v, want [job_reopened]", kinds)
	}
}

func TestSameStatusIsNoOp(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	e := newEngine(store, &mockReassigner{}, bus)
	job := seedJob(store, domain.StatusCompleted)

	updated, err := e.ChangeStatus(context.Background(), job.ID, domain.StatusCompleted, Actor{Name: "admin"})
	if err != nil {
		t.Fatalf("same-status change must be a no-op, got %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Errorf("status = %s", updated.Status)
	}
	if len(bus.kinds()) != 0 {
		t.Errorf("no-op must emit nothing, got %v", bus.kinds())
	}
}

func TestTerminalStatusesPermitNothing(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	e := newEngine(store, &mockReassigner{}, bus)

	for _, from := range []domain.Status{domain.StatusWithdrawBefore24, domain.StatusNotCarriedOutByCust} {
		job := seedJob(store, from)
		_, err := e.ChangeStatus(context.Background(), job.ID, domain.StatusPending, Actor{Name: "admin"})
		if !errors.Is(err, domain.ErrIllegalTransition) {
			t.Errorf("from %s: expected ErrIllegalTransition, got %v", from, err)
		}
	}
}

func TestCompletedToTimedoutNeedsComment(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	e := newEngine(store, &mockReassigner{}, bus)
	job := seedJob(store, domain.StatusCompleted)

	if _, err := e.ChangeStatus(context.Background(), job.ID, domain.StatusTimedout, Actor{Name: "admin"}); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition without comment, got %v", err)
	}

	patch := JobPatch{
		Status:        statusOf(domain.StatusTimedout),
		AdminComments: strPtr("felaktigt markerad som klar"),
	}
	updated, err := e.UpdateJob(context.Background(), job.ID, patch, Actor{Name: "admin"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusTimedout {
		t.Errorf("status = %s, want timedout", updated.Status)
	}
	if updated.AdminComments != "felaktigt markerad som klar" {
		t.Errorf("admin_comments = %q", updated.AdminComments)
	}
}

func TestDueAndLanguageChangeEvents(t *testing.T) {
	store := newMockStore()
	bus := &mockBus{}
	e := newEngine(store, &mockReassigner{}, bus)
	job := seedJob(store, domain.StatusAssigned)

	translatorID := uuid.New()
	store.assignments[job.ID] = []domain.Assignment{{ID: uuid.New(), JobID: job.ID, TranslatorID: translatorID, AssignedAt: testNow.Add(-time.Hour)}}

	newDue := job.Due.Add(24 * time.Hour)
	newLang := uuid.New()
	patch := JobPatch{Due: &newDue, FromLanguageID: &newLang}
	updated, err := e.UpdateJob(context.Background(), job.ID, patch, Actor{Name: "admin"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Due.Equal(newDue) || updated.FromLanguageID != newLang {
		t.Errorf("changes not applied: %+v", updated)
	}

	kinds := bus.kinds()
	want := []domain.EventKind{domain.EventDateChanged, domain.EventLanguageChanged}
	if len(kinds) != 2 || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Fatalf("emitted %v, want %v", kinds, want)
	}
	if !bus.events[0].OldDue.Equal(job.Due) {
		t.Errorf("old due = %v, want %v", bus.events[0].OldDue, job.Due)
	}
	if bus.events[1].OldLanguageID != job.FromLanguageID {
		t.Errorf("old language = %v, want %v", bus.events[1].OldLanguageID, job.FromLanguageID)
	}
}

func TestFormatSessionTime(t *testing.T) {
	tests := []struct {
		interval string
		want     string
	}{
		{"1:30:00", "1 tim 30 min"},
		{"0:45:12", "0 tim 45 min"},
		{"02:05:00", "2 tim 5 min"},
		{"90", "90"},
	}
	for _, tt := range tests {
		if got := FormatSessionTime(tt.interval); got != tt.want {
			t.Errorf("FormatSessionTime(%q) = %q, want %q", tt.interval, got, tt.want)
		}
	}
}
