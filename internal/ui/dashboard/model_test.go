package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	devicedto "uvfleet/internal/modules/device/dto"
	outcomedto "uvfleet/internal/modules/outcome/dto"
	scheduledto "uvfleet/internal/modules/schedule/dto"
	sessiondto "uvfleet/internal/modules/session/dto"
	"uvfleet/internal/ui/components"
)

type fakeFleet struct {
	calls   []string
	listErr error
}

func (f *fakeFleet) DeviceList(context.Context) ([]devicedto.DeviceInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	battery := 80
	return []devicedto.DeviceInfo{
		{ID: "sim-device-001", Name: "Disinfector #001", Connected: true, Battery: &battery},
		{ID: "sim-device-004", Name: "Disinfector #004"},
	}, nil
}
func (f *fakeFleet) DeviceScan(context.Context) (devicedto.ScanResult, error) {
	f.calls = append(f.calls, "scan")
	return devicedto.ScanResult{Discovered: []string{"sim-device-005"}}, nil
}
func (f *fakeFleet) DeviceConnect(_ context.Context, id string) (devicedto.DeviceInfo, error) {
	f.calls = append(f.calls, "connect "+id)
	return devicedto.DeviceInfo{ID: id, Connected: true}, nil
}
func (f *fakeFleet) DeviceDisconnect(_ context.Context, id string) error {
	f.calls = append(f.calls, "disconnect "+id)
	return nil
}
func (f *fakeFleet) SessionStart(_ context.Context, id, intensity string, seconds int) (sessiondto.SessionView, error) {
	f.calls = append(f.calls, "start "+id+" "+intensity)
	return sessiondto.SessionView{DeviceID: id, State: "running", Intensity: intensity, Planned: seconds}, nil
}
func (f *fakeFleet) SessionPause(_ context.Context, id string) (sessiondto.SessionView, error) {
	f.calls = append(f.calls, "pause "+id)
	return sessiondto.SessionView{DeviceID: id, State: "paused"}, nil
}
func (f *fakeFleet) SessionResume(_ context.Context, id string) (sessiondto.SessionView, error) {
	f.calls = append(f.calls, "resume "+id)
	return sessiondto.SessionView{DeviceID: id, State: "running"}, nil
}
func (f *fakeFleet) SessionStop(_ context.Context, id string) (sessiondto.SessionView, error) {
	f.calls = append(f.calls, "stop "+id)
	return sessiondto.SessionView{DeviceID: id, State: "stopped"}, nil
}
func (f *fakeFleet) SessionList(context.Context) ([]sessiondto.SessionView, error) {
	return []sessiondto.SessionView{{DeviceID: "sim-device-001", State: "running", Intensity: "high", Remaining: 125}}, nil
}
func (f *fakeFleet) ScheduleCreate(_ context.Context, id, at, intensity string, seconds int) (scheduledto.ScheduleView, error) {
	f.calls = append(f.calls, "schedule "+id+" "+at)
	return scheduledto.ScheduleView{ID: "sch-1"}, nil
}
func (f *fakeFleet) ScheduleList(context.Context) ([]scheduledto.ScheduleView, error) {
	return []scheduledto.ScheduleView{{ID: "sch-1", DeviceID: "sim-device-002", Datetime: time.Now(), Intensity: "low", Duration: 60, Status: "pending"}}, nil
}
func (f *fakeFleet) ScheduleDelete(_ context.Context, id string) error {
	f.calls = append(f.calls, "unschedule "+id)
	return nil
}
func (f *fakeFleet) ScheduleSweep(context.Context) (scheduledto.SweepResult, error) {
	f.calls = append(f.calls, "sweep")
	return scheduledto.SweepResult{Claimed: []string{}}, nil
}
func (f *fakeFleet) LogList(context.Context, int) ([]outcomedto.LogEntry, error) {
	return []outcomedto.LogEntry{{DeviceID: "sim-device-003", Duration: 300, Outcome: "success", Timestamp: time.Now()}}, nil
}
func (f *fakeFleet) LogClear(context.Context) error {
	f.calls = append(f.calls, "clear-logs")
	return nil
}

// step applies msg and runs the returned command once, feeding its message
// back into the model. Follow-up refreshes are not run.
func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	model := next.(Model)
	if cmd == nil {
		return model
	}
	out := cmd()
	switch out.(type) {
	case nil, refreshMsg, tea.QuitMsg:
		return model
	}
	next, _ = model.Update(out)
	return next.(Model)
}

func loaded(t *testing.T, fleet *fakeFleet) Model {
	t.Helper()
	m := NewModel(fleet, Options{DefaultIntensity: "high", DefaultSeconds: 120})
	next, _ := m.Update(m.load()())
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewRendersFleet(t *testing.T) {
	t.Parallel()
	m := loaded(t, &fakeFleet{})
	view := m.View()
	for _, want := range []string{"Disinfector #001", "running", "2:05", "sim-device-002", "success", "80%"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestKeysDriveSelectedDevice(t *testing.T) {
	t.Parallel()
	fleet := &fakeFleet{}
	m := loaded(t, fleet)

	m = step(t, m, key("s"))
	m = step(t, m, key("p"))
	m = step(t, m, key("j"))
	m = step(t, m, key("c"))

	want := []string{"start sim-device-001 high", "pause sim-device-001", "connect sim-device-004"}
	if strings.Join(fleet.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", fleet.calls, want)
	}
	if !strings.Contains(m.status, "connected sim-device-004") {
		t.Fatalf("status = %q", m.status)
	}
}

func TestPaletteCommand(t *testing.T) {
	t.Parallel()
	fleet := &fakeFleet{}
	m := loaded(t, fleet)

	m = step(t, m, key(":"))
	if !m.palette.Visible() {
		t.Fatalf("palette should be open")
	}
	m = step(t, m, key("stop sim-device-001"))
	if m.palette.Value() != "stop sim-device-001" {
		t.Fatalf("palette value = %q", m.palette.Value())
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	submit, ok := cmd().(components.PaletteSubmitMsg)
	if !ok || submit.Input != "stop sim-device-001" {
		t.Fatalf("submit = %#v", submit)
	}
	m = step(t, m, submit)
	if len(fleet.calls) != 1 || fleet.calls[0] != "stop sim-device-001" {
		t.Fatalf("calls = %v", fleet.calls)
	}
	if m.status != "sim-device-001: stopped" {
		t.Fatalf("status = %q", m.status)
	}
}

func TestBadPaletteInputReportsUsage(t *testing.T) {
	t.Parallel()
	m := loaded(t, &fakeFleet{})
	m = step(t, m, components.PaletteSubmitMsg{Input: "start sim-device-001 high"})
	if !m.failed || !strings.Contains(m.status, "usage: start") {
		t.Fatalf("status = %q failed=%v", m.status, m.failed)
	}
}

func TestDaemonErrorShownInStatus(t *testing.T) {
	t.Parallel()
	m := loaded(t, &fakeFleet{listErr: errors.New("daemon is not running")})
	if !m.failed || !strings.Contains(m.View(), "daemon is not running") {
		t.Fatalf("status = %q", m.status)
	}
}

func TestScheduleListSelection(t *testing.T) {
	t.Parallel()
	fleet := &fakeFleet{}
	m := loaded(t, fleet)

	m = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = step(t, m, key("d"))
	if len(fleet.calls) != 1 || fleet.calls[0] != "unschedule sch-1" {
		t.Fatalf("calls = %v", fleet.calls)
	}
}

func TestLoadingShowsSpinnerStatus(t *testing.T) {
	t.Parallel()
	m := NewModel(&fakeFleet{}, Options{})
	if !strings.Contains(m.View(), "connecting to daemon") {
		t.Fatalf("view = %s", m.View())
	}
	if cmd := m.Init(); cmd == nil {
		t.Fatalf("Init() returned no command")
	}
}
