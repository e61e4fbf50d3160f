package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"uvfleet/internal/modules/outcome/domain"
	"uvfleet/internal/modules/outcome/dto"
	sessiondto "uvfleet/internal/modules/session/dto"
	"uvfleet/internal/platform/clock"
	apperrors "uvfleet/internal/platform/errors"
	"uvfleet/internal/platform/events"

	"github.com/rs/zerolog"
)

type busSource struct {
	bus *events.Bus[sessiondto.OutcomeEvent]
}

func (b busSource) SubscribeOutcomes() *events.Subscription[sessiondto.OutcomeEvent] {
	return b.bus.Subscribe()
}

type memLogs struct {
	mu   sync.Mutex
	logs []domain.SessionLog
	fail error
}

func (m *memLogs) Append(_ context.Context, log domain.SessionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.logs = append(m.logs, log)
	return nil
}

func (m *memLogs) List(context.Context) ([]domain.SessionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SessionLog(nil), m.logs...), nil
}

func (m *memLogs) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = nil
	return nil
}

func (m *memLogs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

type memSchedules struct {
	mu       sync.Mutex
	statuses map[string]string
}

func (m *memSchedules) SetStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = map[string]string{}
	}
	m.statuses[id] = status
	return nil
}

func (m *memSchedules) get(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[id]
}

type failureCounter struct {
	mu  sync.Mutex
	ops []string
}

func (f *failureCounter) PersistenceFailure(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *failureCounter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("log-%d", s.n)
}

type fixture struct {
	rec       *Recorder
	bus       *events.Bus[sessiondto.OutcomeEvent]
	logs      *memLogs
	schedules *memSchedules
	metrics   *failureCounter
	clk       *clock.Manual
	cancel    context.CancelFunc
	done      chan struct{}
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	bus := events.NewBus[sessiondto.OutcomeEvent]()
	f := fixture{
		bus:       bus,
		logs:      &memLogs{},
		schedules: &memSchedules{},
		metrics:   &failureCounter{},
		clk:       clock.NewManual(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)),
		done:      make(chan struct{}),
	}
	f.rec = NewRecorder(busSource{bus: bus}, f.logs, f.schedules, f.clk, &seqIDs{}, zerolog.Nop(), f.metrics)
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() {
		_ = f.rec.Run(ctx)
		close(f.done)
	}()
	t.Cleanup(func() {
		f.stop()
		bus.Close()
	})
	return f
}

func (f fixture) stop() {
	f.cancel()
	<-f.done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestRecorderLogsOutcomes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.bus.Publish(sessiondto.OutcomeEvent{DeviceID: "d1", DeviceName: "One", Intensity: "low", Planned: 30, Elapsed: 30, Outcome: "success"})
	f.bus.Publish(sessiondto.OutcomeEvent{DeviceID: "d2", DeviceName: "Two", Intensity: "max", Planned: 60, Elapsed: 61, Outcome: "stopped"})
	waitFor(t, func() bool { return f.logs.count() == 2 })

	got, err := f.rec.ListLogs(context.Background())
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if got[0].DeviceID != "d2" || got[1].DeviceID != "d1" {
		t.Fatalf("logs not newest first: %+v", got)
	}
	if got[0].Duration != 60 {
		t.Fatalf("elapsed not clamped to planned: %d", got[0].Duration)
	}
	if got[1].ID != "log-1" || !got[1].Timestamp.Equal(f.clk.Now()) {
		t.Fatalf("unexpected log %+v", got[1])
	}

	if err := f.rec.ClearLogs(context.Background()); err != nil {
		t.Fatalf("ClearLogs() error = %v", err)
	}
	got, _ = f.rec.ListLogs(context.Background())
	if len(got) != 0 {
		t.Fatalf("logs survived clear: %+v", got)
	}
}

func TestRecorderCountsPersistenceFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.logs.mu.Lock()
	f.logs.fail = fmt.Errorf("%w: disk full", apperrors.ErrPersistence)
	f.logs.mu.Unlock()

	f.bus.Publish(sessiondto.OutcomeEvent{DeviceID: "d1", Outcome: "error", Planned: 10, Elapsed: 3})
	waitFor(t, func() bool { return f.metrics.count() == 1 })

	// the recorder keeps running after a failed write
	f.logs.mu.Lock()
	f.logs.fail = nil
	f.logs.mu.Unlock()
	f.bus.Publish(sessiondto.OutcomeEvent{DeviceID: "d1", Outcome: "success", Planned: 10, Elapsed: 10})
	waitFor(t, func() bool { return f.logs.count() == 1 })
}

func TestResolveSchedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.rec.ResolveSchedule(ctx, dto.ScheduleResolution{ScheduleID: "s1", Status: "pending"}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("non-terminal status error = %v", err)
	}
	if err := f.rec.ResolveSchedule(ctx, dto.ScheduleResolution{ScheduleID: "s1", Status: "completed"}); err != nil {
		t.Fatalf("ResolveSchedule() error = %v", err)
	}
	waitFor(t, func() bool { return f.schedules.get("s1") == "completed" })
}

func TestRecorderDrainsOnShutdown(t *testing.T) {
	t.Parallel()
	bus := events.NewBus[sessiondto.OutcomeEvent]()
	defer bus.Close()
	schedules := &memSchedules{}
	rec := NewRecorder(busSource{bus: bus}, &memLogs{}, schedules, clock.NewManual(time.Now()), &seqIDs{}, zerolog.Nop(), nil)

	// queued before the worker ever runs
	for i := 0; i < 3; i++ {
		if err := rec.ResolveSchedule(context.Background(), dto.ScheduleResolution{ScheduleID: fmt.Sprintf("s%d", i), Status: "failed"}); err != nil {
			t.Fatalf("ResolveSchedule() error = %v", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if got := schedules.get(fmt.Sprintf("s%d", i)); got != "failed" {
			t.Fatalf("s%d status = %q after drain", i, got)
		}
	}
}

func TestRecorderLogsPendingOutcomesOnShutdown(t *testing.T) {
	t.Parallel()
	bus := events.NewBus[sessiondto.OutcomeEvent]()
	defer bus.Close()
	logs := &memLogs{}
	rec := NewRecorder(busSource{bus: bus}, logs, &memSchedules{}, clock.NewManual(time.Now()), &seqIDs{}, zerolog.Nop(), nil)

	// published while the worker was not reading
	for i := 0; i < 4; i++ {
		bus.Publish(sessiondto.OutcomeEvent{DeviceID: fmt.Sprintf("d%d", i), Outcome: "stopped", Planned: 30, Elapsed: 10})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got, err := logs.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("logged %d outcomes, want 4", len(got))
	}
	for i, l := range got {
		if l.DeviceID != fmt.Sprintf("d%d", i) {
			t.Fatalf("log %d is %s, want publish order", i, l.DeviceID)
		}
	}
}
