package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"uvfleet/internal/modules/session/domain"
	"uvfleet/internal/modules/session/dto"
	sessionout "uvfleet/internal/modules/session/port/out"
	"uvfleet/internal/platform/clock"
	apperrors "uvfleet/internal/platform/errors"

	"github.com/rs/zerolog"
)

type fakeDirectory struct {
	mu       sync.Mutex
	devices  map[string]sessionout.DeviceRef
	statuses map[string][]string
	watchers []func(string)
}

func newFakeDirectory(ids ...string) *fakeDirectory {
	d := &fakeDirectory{devices: map[string]sessionout.DeviceRef{}, statuses: map[string][]string{}}
	for _, deviceID := range ids {
		d.devices[deviceID] = sessionout.DeviceRef{ID: deviceID, Name: "Disinfector " + deviceID, Connected: true}
	}
	return d
}

func (d *fakeDirectory) Lookup(_ context.Context, deviceID string) (sessionout.DeviceRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, ok := d.devices[deviceID]
	if !ok {
		return sessionout.DeviceRef{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}
	return ref, nil
}

func (d *fakeDirectory) SetStatus(_ context.Context, deviceID, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status != "idle" && !d.devices[deviceID].Connected {
		return fmt.Errorf("%w: %s", apperrors.ErrDeviceOffline, deviceID)
	}
	d.statuses[deviceID] = append(d.statuses[deviceID], status)
	return nil
}

func (d *fakeDirectory) WatchDisconnects(fn func(string)) func() {
	d.mu.Lock()
	d.watchers = append(d.watchers, fn)
	d.mu.Unlock()
	return func() {}
}

func (d *fakeDirectory) drop(deviceID string) {
	d.mu.Lock()
	ref := d.devices[deviceID]
	ref.Connected = false
	d.devices[deviceID] = ref
	watchers := append([]func(string){}, d.watchers...)
	d.mu.Unlock()
	for _, fn := range watchers {
		fn(deviceID)
	}
}

func (d *fakeDirectory) lastStatus(deviceID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	history := d.statuses[deviceID]
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1]
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []domain.Command
	fail    map[domain.CommandKind]error
	hang    map[domain.CommandKind]bool
	release chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		fail:    map[domain.CommandKind]error{},
		hang:    map[domain.CommandKind]bool{},
		release: make(chan struct{}),
	}
}

func (s *fakeSender) Send(_ context.Context, _ string, command domain.Command) error {
	s.mu.Lock()
	s.sent = append(s.sent, command)
	err := s.fail[command.Kind]
	hang := s.hang[command.Kind]
	s.mu.Unlock()
	if hang {
		// ignores its context on purpose
		<-s.release
	}
	return err
}

func (s *fakeSender) setFail(kind domain.CommandKind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[kind] = err
}

func (s *fakeSender) setHang(kind domain.CommandKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hang[kind] = true
}

func (s *fakeSender) commands() []domain.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Command(nil), s.sent...)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("session-%d", s.n)
}

type harness struct {
	ctl    *Controller
	dir    *fakeDirectory
	sender *fakeSender
	clk    *clock.Manual
}

func newHarness(t *testing.T, timeout time.Duration) harness {
	t.Helper()
	dir := newFakeDirectory("dev-1", "dev-2")
	sender := newFakeSender()
	clk := clock.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ctl := NewController(dir, sender, clk, &seqIDs{}, zerolog.Nop(), nil, Options{TickInterval: time.Second, CommandTimeout: timeout})
	t.Cleanup(func() {
		close(sender.release)
		ctl.Close()
	})
	return harness{ctl: ctl, dir: dir, sender: sender, clk: clk}
}

func nextOutcome(t *testing.T, events <-chan dto.OutcomeEvent) dto.OutcomeEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no outcome published")
		return dto.OutcomeEvent{}
	}
}

func noOutcome(t *testing.T, events <-chan dto.OutcomeEvent) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected outcome %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h harness) advance(t *testing.T, seconds int) {
	t.Helper()
	for i := 0; i < seconds; i++ {
		h.clk.Advance(time.Second)
	}
	// a snapshot goes through the actor after the last tick
	if _, err := h.ctl.Get(context.Background(), "dev-1"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func start(t *testing.T, h harness, deviceID string, duration int) dto.SessionView {
	t.Helper()
	view, err := h.ctl.Start(context.Background(), dto.StartInput{DeviceID: deviceID, Intensity: "high", Duration: duration, Tag: "manual"})
	if err != nil {
		t.Fatalf("Start(%s) error = %v", deviceID, err)
	}
	return view
}

func TestSessionRunsToCompletion(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	sub := h.ctl.SubscribeOutcomes()
	defer sub.Close()

	view := start(t, h, "dev-1", 10)
	if view.State != "running" || view.Remaining != 10 || view.SessionID != "session-1" {
		t.Fatalf("unexpected running view %+v", view)
	}
	if got := h.dir.lastStatus("dev-1"); got != "running" {
		t.Fatalf("device status = %q, want running", got)
	}

	h.advance(t, 10)

	ev := nextOutcome(t, sub.Events())
	if ev.Outcome != "success" || ev.Elapsed != 10 || ev.Planned != 10 || ev.Tag != "manual" {
		t.Fatalf("unexpected outcome %+v", ev)
	}
	if ev.DeviceName != "Disinfector dev-1" || ev.Intensity != "high" {
		t.Fatalf("outcome lost device data: %+v", ev)
	}
	noOutcome(t, sub.Events())

	after, err := h.ctl.Get(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if after.State != "idle" {
		t.Fatalf("state after completion = %q", after.State)
	}
	if got := h.dir.lastStatus("dev-1"); got != "idle" {
		t.Fatalf("device status = %q, want idle", got)
	}
	if h.clk.Tickers() != 0 {
		t.Fatalf("ticker still live after completion")
	}
}

func TestPauseResumeKeepsPlannedDuration(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	sub := h.ctl.SubscribeOutcomes()
	defer sub.Close()
	ctx := context.Background()

	start(t, h, "dev-1", 300)
	h.advance(t, 5)

	paused, err := h.ctl.Pause(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if paused.State != "paused" || paused.Remaining != 295 {
		t.Fatalf("unexpected paused view %+v", paused)
	}
	if h.clk.Tickers() != 0 {
		t.Fatalf("paused session still ticking")
	}

	if _, err := h.ctl.Start(ctx, dto.StartInput{DeviceID: "dev-1", Intensity: "low", Duration: 290}); !errors.Is(err, apperrors.ErrInvalidDuration) {
		t.Fatalf("resume with wrong duration error = %v", err)
	}

	resumed, err := h.ctl.Start(ctx, dto.StartInput{DeviceID: "dev-1", Intensity: "low", Duration: 295})
	if err != nil {
		t.Fatalf("resume error = %v", err)
	}
	if resumed.State != "running" || resumed.Intensity != "high" || resumed.Planned != 300 {
		t.Fatalf("unexpected resumed view %+v", resumed)
	}

	h.advance(t, 295)
	ev := nextOutcome(t, sub.Events())
	if ev.Outcome != "success" || ev.Elapsed != 300 {
		t.Fatalf("unexpected outcome %+v", ev)
	}

	cmds := h.sender.commands()
	last := cmds[len(cmds)-1]
	if last.Kind != domain.CommandStart || last.Duration != 295 || last.Intensity != domain.IntensityHigh {
		t.Fatalf("resume sent %+v", last)
	}
}

func TestResumeOperation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	ctx := context.Background()

	if _, err := h.ctl.Resume(ctx, "dev-1"); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("resume of idle device error = %v", err)
	}
	start(t, h, "dev-1", 60)
	h.advance(t, 3)
	if _, err := h.ctl.Pause(ctx, "dev-1"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	view, err := h.ctl.Resume(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if view.State != "running" || view.Remaining != 57 {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestResumeWithFewSecondsLeft(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	sub := h.ctl.SubscribeOutcomes()
	defer sub.Close()
	ctx := context.Background()

	start(t, h, "dev-1", 10)
	h.advance(t, 7)
	paused, err := h.ctl.Pause(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if paused.Remaining != 3 {
		t.Fatalf("remaining = %d, want 3", paused.Remaining)
	}

	if _, err := h.ctl.Start(ctx, dto.StartInput{DeviceID: "dev-1", Intensity: "high", Duration: 5}); !errors.Is(err, apperrors.ErrInvalidDuration) {
		t.Fatalf("resume with clamped duration error = %v", err)
	}
	view, err := h.ctl.Resume(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if view.State != "running" || view.Remaining != 3 {
		t.Fatalf("unexpected view %+v", view)
	}

	h.advance(t, 3)
	if ev := nextOutcome(t, sub.Events()); ev.Outcome != "success" || ev.Elapsed != 10 {
		t.Fatalf("unexpected outcome %+v", ev)
	}
}

func TestStartWithRemainingOfPausedSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	ctx := context.Background()

	start(t, h, "dev-1", 6)
	h.advance(t, 4)
	if _, err := h.ctl.Pause(ctx, "dev-1"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	view, err := h.ctl.Start(ctx, dto.StartInput{DeviceID: "dev-1", Intensity: "low", Duration: 2})
	if err != nil {
		t.Fatalf("Start(remaining) error = %v", err)
	}
	if view.State != "running" || view.Remaining != 2 || view.Intensity != "high" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestStopRecordsElapsed(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	sub := h.ctl.SubscribeOutcomes()
	defer sub.Close()

	start(t, h, "dev-1", 120)
	h.advance(t, 42)

	view, err := h.ctl.Stop(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if view.State != "stopped" || view.Elapsed != 42 {
		t.Fatalf("unexpected stop view %+v", view)
	}
	ev := nextOutcome(t, sub.Events())
	if ev.Outcome != "stopped" || ev.Elapsed != 42 {
		t.Fatalf("unexpected outcome %+v", ev)
	}

	// no tick may arrive after stop
	h.clk.Advance(5 * time.Second)
	noOutcome(t, sub.Events())
	if h.clk.Tickers() != 0 {
		t.Fatalf("ticker still live after stop")
	}
}

func TestStopPausedSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	sub := h.ctl.SubscribeOutcomes()
	defer sub.Close()

	start(t, h, "dev-1", 30)
	h.advance(t, 7)
	if _, err := h.ctl.Pause(context.Background(), "dev-1"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if _, err := h.ctl.Stop(context.Background(), "dev-1"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if ev := nextOutcome(t, sub.Events()); ev.Outcome != "stopped" || ev.Elapsed != 7 {
		t.Fatalf("unexpected outcome %+v", ev)
	}
}

func TestConcurrentStartsAllowOnlyOne(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ctl.Start(context.Background(), dto.StartInput{DeviceID: "dev-1", Intensity: "max", Duration: 60})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok, active := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperrors.ErrSessionActive):
			active++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || active != 1 {
		t.Fatalf("ok=%d active=%d, want 1 and 1", ok, active)
	}
}

func TestDevicesAreIndependent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)

	start(t, h, "dev-1", 60)
	start(t, h, "dev-2", 90)

	views, err := h.ctl.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(views) != 2 || views[0].DeviceID != "dev-1" || views[1].DeviceID != "dev-2" {
		t.Fatalf("unexpected list %+v", views)
	}
	for _, v := range views {
		if v.State != "running" {
			t.Fatalf("device %s state = %s", v.DeviceID, v.State)
		}
	}
}

func TestDisconnectEndsSessionWithError(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	sub := h.ctl.SubscribeOutcomes()
	defer sub.Close()

	start(t, h, "dev-1", 60)
	h.advance(t, 12)
	h.dir.drop("dev-1")

	ev := nextOutcome(t, sub.Events())
	if ev.Outcome != "error" || ev.Detail != "device disconnected" || ev.Elapsed != 12 {
		t.Fatalf("unexpected outcome %+v", ev)
	}
	view, err := h.ctl.Get(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.State != "idle" {
		t.Fatalf("state after disconnect = %q", view.State)
	}
	if _, err := h.ctl.Start(context.Background(), dto.StartInput{DeviceID: "dev-1", Intensity: "low", Duration: 30}); !errors.Is(err, apperrors.ErrDeviceOffline) {
		t.Fatalf("start on offline device error = %v", err)
	}
}

func TestStartFailureLeavesDeviceIdle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	sub := h.ctl.SubscribeOutcomes()
	defer sub.Close()
	h.sender.setFail(domain.CommandStart, errors.New("lamp fault"))

	view, err := h.ctl.Start(context.Background(), dto.StartInput{DeviceID: "dev-1", Intensity: "medium", Duration: 60})
	if !errors.Is(err, apperrors.ErrCommandFailed) {
		t.Fatalf("Start() error = %v, want ErrCommandFailed", err)
	}
	if view.State != "idle" {
		t.Fatalf("state after failed start = %q", view.State)
	}
	if got := h.dir.lastStatus("dev-1"); got != "" {
		t.Fatalf("device status changed to %q", got)
	}
	noOutcome(t, sub.Events())
}

func TestPauseFailureKeepsRunning(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	start(t, h, "dev-1", 60)
	h.sender.setFail(domain.CommandPause, fmt.Errorf("%w: busy", apperrors.ErrCommandFailed))

	view, err := h.ctl.Pause(context.Background(), "dev-1")
	if !errors.Is(err, apperrors.ErrCommandFailed) {
		t.Fatalf("Pause() error = %v", err)
	}
	if view.State != "running" {
		t.Fatalf("state after failed pause = %q", view.State)
	}
	h.advance(t, 2)
	after, _ := h.ctl.Get(context.Background(), "dev-1")
	if after.Remaining != 58 {
		t.Fatalf("remaining = %d, want 58", after.Remaining)
	}
}

func TestStopFailureStillStops(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	sub := h.ctl.SubscribeOutcomes()
	defer sub.Close()
	start(t, h, "dev-1", 60)
	h.sender.setFail(domain.CommandStop, errors.New("no ack"))

	view, err := h.ctl.Stop(context.Background(), "dev-1")
	if !errors.Is(err, apperrors.ErrCommandFailed) {
		t.Fatalf("Stop() error = %v", err)
	}
	if view.State != "stopped" || view.Detail == "" {
		t.Fatalf("unexpected view %+v", view)
	}
	if ev := nextOutcome(t, sub.Events()); ev.Outcome != "stopped" || ev.Detail == "" {
		t.Fatalf("unexpected outcome %+v", ev)
	}
}

func TestWatchdogOnStopStillStops(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 30*time.Millisecond)
	sub := h.ctl.SubscribeOutcomes()
	defer sub.Close()
	start(t, h, "dev-1", 60)
	h.advance(t, 12)
	h.sender.setHang(domain.CommandStop)

	view, err := h.ctl.Stop(context.Background(), "dev-1")
	if !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("Stop() error = %v, want ErrTimeout", err)
	}
	if view.State != "stopped" || view.Detail != "watchdog" {
		t.Fatalf("unexpected view %+v", view)
	}
	ev := nextOutcome(t, sub.Events())
	if ev.Outcome != "stopped" || ev.Detail != "watchdog" || ev.Elapsed != 12 {
		t.Fatalf("unexpected outcome %+v", ev)
	}
	if got := h.dir.lastStatus("dev-1"); got != "idle" {
		t.Fatalf("device status = %q, want idle", got)
	}
}

func TestWatchdogErrorsHungPause(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 30*time.Millisecond)
	sub := h.ctl.SubscribeOutcomes()
	defer sub.Close()
	start(t, h, "dev-1", 60)
	h.sender.setHang(domain.CommandPause)

	began := time.Now()
	_, err := h.ctl.Pause(context.Background(), "dev-1")
	if !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("Pause() error = %v, want ErrTimeout", err)
	}
	if time.Since(began) > time.Second {
		t.Fatalf("watchdog took %s", time.Since(began))
	}
	ev := nextOutcome(t, sub.Events())
	if ev.Outcome != "error" || ev.Detail != "watchdog" {
		t.Fatalf("unexpected outcome %+v", ev)
	}
	if h.clk.Tickers() != 0 {
		t.Fatalf("ticker survived the watchdog")
	}
}

func TestWatchdogOnStartLeavesIdle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 30*time.Millisecond)
	sub := h.ctl.SubscribeOutcomes()
	defer sub.Close()
	h.sender.setHang(domain.CommandStart)

	view, err := h.ctl.Start(context.Background(), dto.StartInput{DeviceID: "dev-1", Intensity: "low", Duration: 30})
	if !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("Start() error = %v, want ErrTimeout", err)
	}
	if view.State != "idle" {
		t.Fatalf("state = %q", view.State)
	}
	noOutcome(t, sub.Events())
}

func TestStartValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	ctx := context.Background()

	tests := []struct {
		name  string
		input dto.StartInput
		want  error
	}{
		{name: "too short", input: dto.StartInput{DeviceID: "dev-1", Intensity: "low", Duration: 4}, want: apperrors.ErrInvalidDuration},
		{name: "too long", input: dto.StartInput{DeviceID: "dev-1", Intensity: "low", Duration: 7201}, want: apperrors.ErrInvalidDuration},
		{name: "bad intensity", input: dto.StartInput{DeviceID: "dev-1", Intensity: "extreme", Duration: 30}, want: apperrors.ErrInvalidInput},
		{name: "unknown device", input: dto.StartInput{DeviceID: "ghost", Intensity: "low", Duration: 30}, want: apperrors.ErrUnknownDevice},
	}
	for _, tt := range tests {
		if _, err := h.ctl.Start(ctx, tt.input); !errors.Is(err, tt.want) {
			t.Fatalf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
	}
	if len(h.sender.commands()) != 0 {
		t.Fatalf("invalid starts reached the transport")
	}
}

func TestInvalidTransitions(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	ctx := context.Background()

	if _, err := h.ctl.Pause(ctx, "dev-1"); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("pause idle error = %v", err)
	}
	if _, err := h.ctl.Stop(ctx, "dev-1"); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("stop idle error = %v", err)
	}
	start(t, h, "dev-1", 30)
	if _, err := h.ctl.Pause(ctx, "dev-1"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if _, err := h.ctl.Pause(ctx, "dev-1"); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("pause paused error = %v", err)
	}
}

func TestGetUnknownDevice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	if _, err := h.ctl.Get(context.Background(), "ghost"); !errors.Is(err, apperrors.ErrUnknownDevice) {
		t.Fatalf("Get() error = %v", err)
	}
}
