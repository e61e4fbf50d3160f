package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"uvfleet/internal/modules/schedule/domain"
	"uvfleet/internal/modules/schedule/dto"
	sessiondto "uvfleet/internal/modules/session/dto"
	"uvfleet/internal/platform/clock"
	apperrors "uvfleet/internal/platform/errors"
	"uvfleet/internal/platform/events"

	"github.com/rs/zerolog"
)

type memRepo struct {
	mu    sync.Mutex
	items map[string]domain.Schedule
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[string]domain.Schedule{}}
}

func (r *memRepo) Save(_ context.Context, s domain.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.ID] = s
	return nil
}

func (r *memRepo) List(context.Context) ([]domain.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Schedule, 0, len(r.items))
	for _, s := range r.items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Datetime.Before(out[j].Datetime) })
	return out, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, id)
	}
	delete(r.items, id)
	return nil
}

func (r *memRepo) MarkPromoted(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, id)
	}
	s.PromotedAt = &at
	r.items[id] = s
	return nil
}

func (r *memRepo) get(id string) domain.Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id]
}

type fakeDevices map[string]string

func (f fakeDevices) DeviceName(_ context.Context, deviceID string) (string, error) {
	name, ok := f[deviceID]
	if !ok {
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}
	return name, nil
}

type fakeSessions struct {
	bus *events.Bus[sessiondto.OutcomeEvent]

	mu      sync.Mutex
	started []sessiondto.StartInput
	fail    map[string]error
	hang    bool
	delay   time.Duration
	release chan struct{}
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		bus:     events.NewBus[sessiondto.OutcomeEvent](),
		fail:    map[string]error{},
		release: make(chan struct{}),
	}
}

func (f *fakeSessions) Start(ctx context.Context, input sessiondto.StartInput) error {
	f.mu.Lock()
	f.started = append(f.started, input)
	err := f.fail[input.DeviceID]
	hang := f.hang
	delay := f.delay
	f.mu.Unlock()
	if hang {
		<-f.release
	}
	if delay > 0 {
		time.Sleep(delay)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func (f *fakeSessions) SubscribeOutcomes() *events.Subscription[sessiondto.OutcomeEvent] {
	return f.bus.Subscribe()
}

func (f *fakeSessions) starts() []sessiondto.StartInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sessiondto.StartInput(nil), f.started...)
}

type fakeResolver struct {
	repo *memRepo
	mu   sync.Mutex
	log  map[string]domain.Status
}

func (f *fakeResolver) Resolve(_ context.Context, id string, status domain.Status) error {
	f.mu.Lock()
	if f.log == nil {
		f.log = map[string]domain.Status{}
	}
	f.log[id] = status
	f.mu.Unlock()
	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	s := f.repo.items[id]
	s.Status = status
	f.repo.items[id] = s
	return nil
}

func (f *fakeResolver) status(id string) domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.log[id]
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("sch-%d", s.n)
}

type rig struct {
	engine   *Engine
	repo     *memRepo
	sessions *fakeSessions
	resolver *fakeResolver
	clk      *clock.Manual
	now      time.Time
}

func newRig(t *testing.T, timeout time.Duration) rig {
	t.Helper()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	sessions := newFakeSessions()
	resolver := &fakeResolver{repo: repo}
	clk := clock.NewManual(now)
	engine := NewEngine(repo, fakeDevices{"dev-1": "Disinfector #001", "dev-2": "Disinfector #002"}, sessions, resolver, clk, &seqIDs{}, zerolog.Nop(), nil, Options{SweepInterval: 10 * time.Second, PromotionTimeout: timeout})
	t.Cleanup(func() {
		close(sessions.release)
		sessions.bus.Close()
	})
	return rig{engine: engine, repo: repo, sessions: sessions, resolver: resolver, clk: clk, now: now}
}

func (r rig) create(t *testing.T, deviceID string, in time.Duration) dto.ScheduleView {
	t.Helper()
	view, err := r.engine.Create(context.Background(), dto.CreateInput{DeviceID: deviceID, Datetime: r.clk.Now().Add(in), Intensity: "medium", Duration: 60})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return view
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

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	r := newRig(t, time.Second)
	ctx := context.Background()

	tests := []struct {
		name  string
		input dto.CreateInput
		want  error
	}{
		{name: "now", input: dto.CreateInput{DeviceID: "dev-1", Datetime: r.now, Intensity: "low", Duration: 30}, want: apperrors.ErrPastDatetime},
		{name: "past", input: dto.CreateInput{DeviceID: "dev-1", Datetime: r.now.Add(-time.Hour), Intensity: "low", Duration: 30}, want: apperrors.ErrPastDatetime},
		{name: "duration", input: dto.CreateInput{DeviceID: "dev-1", Datetime: r.now.Add(time.Hour), Intensity: "low", Duration: 3}, want: apperrors.ErrInvalidDuration},
		{name: "intensity", input: dto.CreateInput{DeviceID: "dev-1", Datetime: r.now.Add(time.Hour), Intensity: "ultra", Duration: 30}, want: apperrors.ErrInvalidInput},
		{name: "device", input: dto.CreateInput{DeviceID: "ghost", Datetime: r.now.Add(time.Hour), Intensity: "low", Duration: 30}, want: apperrors.ErrUnknownDevice},
	}
	for _, tt := range tests {
		if _, err := r.engine.Create(ctx, tt.input); !errors.Is(err, tt.want) {
			t.Fatalf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
	}

	view := r.create(t, "dev-1", time.Hour)
	if view.Status != "pending" || view.DeviceName != "Disinfector #001" || view.ID != "sch-1" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestListOrdersAndDerivesOverdue(t *testing.T) {
	t.Parallel()
	r := newRig(t, time.Second)
	late := r.create(t, "dev-1", 2*time.Hour)
	early := r.create(t, "dev-2", time.Minute)

	r.clk.Set(r.now.Add(30 * time.Minute))
	got, err := r.engine.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != early.ID || got[1].ID != late.ID {
		t.Fatalf("unexpected order %+v", got)
	}
	if got[0].Status != "overdue" || got[1].Status != "pending" {
		t.Fatalf("unexpected statuses %s, %s", got[0].Status, got[1].Status)
	}
	if stored := r.repo.get(early.ID); stored.Status != domain.StatusPending {
		t.Fatalf("overdue leaked into storage: %s", stored.Status)
	}
}

func TestDeleteUnknown(t *testing.T) {
	t.Parallel()
	r := newRig(t, time.Second)
	if err := r.engine.Delete(context.Background(), "nope"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("Delete() error = %v", err)
	}
	view := r.create(t, "dev-1", time.Minute)
	if err := r.engine.Delete(context.Background(), view.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestSweepPromotesOnce(t *testing.T) {
	t.Parallel()
	r := newRig(t, time.Second)
	view := r.create(t, "dev-1", time.Minute)
	future := r.create(t, "dev-2", time.Hour)
	r.clk.Set(r.now.Add(2 * time.Minute))

	first, err := r.engine.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	second, err := r.engine.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	r.engine.wg.Wait()

	if len(first.Claimed) != 1 || first.Claimed[0] != view.ID || len(second.Claimed) != 0 {
		t.Fatalf("claims = %v then %v", first.Claimed, second.Claimed)
	}
	starts := r.sessions.starts()
	if len(starts) != 1 {
		t.Fatalf("sessions started = %d, want 1", len(starts))
	}
	if starts[0].Tag != "schedule:"+view.ID || starts[0].Duration != 60 || starts[0].Intensity != "medium" {
		t.Fatalf("unexpected start %+v", starts[0])
	}
	if r.repo.get(view.ID).PromotedAt == nil {
		t.Fatalf("claim not persisted")
	}
	if r.repo.get(future.ID).PromotedAt != nil {
		t.Fatalf("future schedule claimed")
	}
}

func TestSweepSkipsWhileRunning(t *testing.T) {
	t.Parallel()
	r := newRig(t, time.Second)
	r.create(t, "dev-1", time.Minute)
	r.clk.Set(r.now.Add(2 * time.Minute))

	r.engine.sweeping.Store(true)
	res, err := r.engine.Sweep(context.Background())
	if err != nil || !res.Skipped {
		t.Fatalf("overlapping sweep = %+v, %v", res, err)
	}
	if len(r.sessions.starts()) != 0 {
		t.Fatalf("overlapping sweep promoted")
	}
}

func TestOfflineDeviceFailsSchedule(t *testing.T) {
	t.Parallel()
	r := newRig(t, time.Second)
	view := r.create(t, "dev-1", time.Minute)
	r.sessions.mu.Lock()
	r.sessions.fail["dev-1"] = fmt.Errorf("%w: dev-1", apperrors.ErrDeviceOffline)
	r.sessions.mu.Unlock()
	r.clk.Set(r.now.Add(time.Minute))

	if _, err := r.engine.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	r.engine.wg.Wait()
	if got := r.resolver.status(view.ID); got != domain.StatusFailed {
		t.Fatalf("status = %q, want failed", got)
	}

	// never retried
	if _, err := r.engine.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	r.engine.wg.Wait()
	if len(r.sessions.starts()) != 1 {
		t.Fatalf("failed schedule retried")
	}
}

func TestPromotionTimeoutFailsSchedule(t *testing.T) {
	t.Parallel()
	r := newRig(t, 30*time.Millisecond)
	view := r.create(t, "dev-1", time.Minute)
	r.sessions.mu.Lock()
	r.sessions.hang = true
	r.sessions.mu.Unlock()
	r.clk.Set(r.now.Add(time.Minute))

	began := time.Now()
	if _, err := r.engine.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if time.Since(began) > 500*time.Millisecond {
		t.Fatalf("sweep blocked on a slow promotion")
	}
	r.engine.wg.Wait()
	if got := r.resolver.status(view.ID); got != domain.StatusFailed {
		t.Fatalf("status = %q, want failed", got)
	}
}

func TestSweepOutlivesCallerContext(t *testing.T) {
	t.Parallel()
	r := newRig(t, time.Second)
	view := r.create(t, "dev-1", time.Minute)
	r.sessions.mu.Lock()
	r.sessions.delay = 30 * time.Millisecond
	r.sessions.mu.Unlock()
	r.clk.Set(r.now.Add(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	res, err := r.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	// the caller is gone before the device acknowledges
	cancel()
	r.engine.wg.Wait()

	if len(res.Claimed) != 1 || len(r.sessions.starts()) != 1 {
		t.Fatalf("claimed %v, started %d", res.Claimed, len(r.sessions.starts()))
	}
	if got := r.resolver.status(view.ID); got != "" {
		t.Fatalf("status = %q, want unresolved until the outcome", got)
	}

	r.engine.handleOutcome(context.Background(), sessiondto.OutcomeEvent{DeviceID: "dev-1", Outcome: "success", Tag: "schedule:" + view.ID})
	if got := r.resolver.status(view.ID); got != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed", got)
	}
}

func TestManualSweepDuringRunResolves(t *testing.T) {
	t.Parallel()
	r := newRig(t, time.Second)
	r.sessions.mu.Lock()
	r.sessions.delay = 30 * time.Millisecond
	r.sessions.mu.Unlock()
	runEngine(t, r)
	// the ticker exists once Run's first sweep is done
	waitFor(t, func() bool { return r.clk.Tickers() == 1 })

	view := r.create(t, "dev-1", time.Minute)
	r.clk.Set(r.now.Add(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	res, err := r.engine.Sweep(ctx)
	cancel()
	if err != nil || len(res.Claimed) != 1 {
		t.Fatalf("Sweep() = %+v, %v", res, err)
	}

	waitFor(t, func() bool { return len(r.sessions.starts()) == 1 })
	waitFor(t, func() bool {
		r.engine.mu.Lock()
		defer r.engine.mu.Unlock()
		_, ok := r.engine.awaiting[view.ID]
		return ok
	})
	r.sessions.bus.Publish(sessiondto.OutcomeEvent{DeviceID: "dev-1", Outcome: "success", Tag: "schedule:" + view.ID})
	waitFor(t, func() bool { return r.resolver.status(view.ID) == domain.StatusCompleted })
}

func runEngine(t *testing.T, r rig) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.engine.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestOutcomeResolvesSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		outcome string
		want    domain.Status
	}{
		{outcome: "success", want: domain.StatusCompleted},
		{outcome: "stopped", want: domain.StatusFailed},
		{outcome: "error", want: domain.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			t.Parallel()
			r := newRig(t, time.Second)
			view := r.create(t, "dev-1", time.Minute)
			r.clk.Set(r.now.Add(time.Minute))
			runEngine(t, r)

			waitFor(t, func() bool { return len(r.sessions.starts()) == 1 })
			// an unrelated manual session on the same device is ignored
			r.sessions.bus.Publish(sessiondto.OutcomeEvent{DeviceID: "dev-1", Outcome: "success", Tag: "manual"})
			r.sessions.bus.Publish(sessiondto.OutcomeEvent{DeviceID: "dev-1", Outcome: tt.outcome, Tag: "schedule:" + view.ID})

			waitFor(t, func() bool { return r.resolver.status(view.ID) == tt.want })
		})
	}
}

func TestRunFailsInterruptedPromotions(t *testing.T) {
	t.Parallel()
	r := newRig(t, time.Second)
	view := r.create(t, "dev-1", time.Minute)
	claimedAt := r.now.Add(time.Minute)
	if err := r.repo.MarkPromoted(context.Background(), view.ID, claimedAt); err != nil {
		t.Fatalf("MarkPromoted() error = %v", err)
	}
	r.clk.Set(r.now.Add(2 * time.Minute))

	runEngine(t, r)
	waitFor(t, func() bool { return r.resolver.status(view.ID) == domain.StatusFailed })
	if len(r.sessions.starts()) != 0 {
		t.Fatalf("interrupted schedule was promoted again")
	}
}
