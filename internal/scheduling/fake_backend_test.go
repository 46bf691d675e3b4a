package scheduling

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
)

// fakeBackend records calls and answers from canned values.
type fakeBackend struct {
	catalog *domain.Catalog

	mu    sync.Mutex
	calls []string

	fetchedDates []string
	availability *domain.Availability
	fetchErr     error

	validateErrs  []error
	scheduleErrs  []error
	cancelPrevErr error
	cancelErr     error
	confirmErr    error

	// scheduleGate blocks ScheduleAppointment until closed.
	scheduleGate chan struct{}
	// cancelGate blocks CancelExpiredLockedAppointment until closed.
	cancelGate chan struct{}

	lockSeq int
	lockTTL time.Duration

	appointments map[string]*domain.Appointment
	staff        map[string]*domain.Staff
	counts       map[string]int

	requests []domain.Request
}

func newFakeBackend(catalog *domain.Catalog) *fakeBackend {
	return &fakeBackend{
		catalog:      catalog,
		lockTTL:      5 * time.Minute,
		appointments: map[string]*domain.Appointment{},
		staff:        map[string]*domain.Staff{},
		counts:       map[string]int{},
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) Count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeBackend) FetchedDates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetchedDates...)
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeBackend) GetAvailableTimeSlots(_ context.Context, staffID, date, _ string) (*domain.Availability, error) {
	f.record("slots")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchedDates = append(f.fetchedDates, date)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.availability != nil {
		av := *f.availability
		return &av, nil
	}

	av := &domain.Availability{}
	for _, label := range f.catalog.Labels() {
		av.AvailableSlots = append(av.AvailableSlots, domain.TimeSlot{TimeSlot: label, IsAvailable: true})
	}
	return av, nil
}

func (f *fakeBackend) GetAvailableSlotCount(_ context.Context, staffID, date, _ string) (int, error) {
	f.record("count:" + date)

	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.counts[date]; ok {
		return n, nil
	}
	return f.catalog.Len(), nil
}

func (f *fakeBackend) ValidateAppointmentRequest(_ context.Context, req domain.Request, _ string) error {
	f.record("validate")

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.validateErrs) > 0 {
		err := f.validateErrs[0]
		f.validateErrs = f.validateErrs[1:]
		return err
	}
	return nil
}

func (f *fakeBackend) ScheduleAppointment(_ context.Context, req domain.Request, _ string) (*domain.Lock, error) {
	f.record("schedule")

	f.mu.Lock()
	gate := f.scheduleGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.scheduleErrs) > 0 {
		err := f.scheduleErrs[0]
		f.scheduleErrs = f.scheduleErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.lockSeq++
	return &domain.Lock{
		ID:          fmt.Sprintf("appt-%d", f.lockSeq),
		LockedUntil: time.Now().Add(f.lockTTL),
		Status:      "Locked",
	}, nil
}

func (f *fakeBackend) CancelPreviousLockedAppointment(_ context.Context, sessionID, _ string) error {
	f.record("cancel_previous")

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelPrevErr
}

func (f *fakeBackend) CancelExpiredLockedAppointment(_ context.Context, appointmentID, _ string) error {
	f.record("cancel:" + appointmentID)

	f.mu.Lock()
	gate := f.cancelGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelErr
}

func (f *fakeBackend) ConfirmAppointment(_ context.Context, appointmentID, _, _ string) error {
	f.record("confirm:" + appointmentID)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmErr
}

func (f *fakeBackend) GetAppointment(_ context.Context, id, _ string) (*domain.Appointment, error) {
	f.record("appointment:" + id)

	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.appointments[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("appointment %s not found", id)
}

func (f *fakeBackend) GetHealthcareStaffByID(_ context.Context, id, _ string) (*domain.Staff, error) {
	f.record("staff:" + id)

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.staff[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("staff %s not found", id)
}
