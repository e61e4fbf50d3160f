package dashboard

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	devicedto "uvfleet/internal/modules/device/dto"
	outcomedto "uvfleet/internal/modules/outcome/dto"
	scheduledto "uvfleet/internal/modules/schedule/dto"
	sessiondto "uvfleet/internal/modules/session/dto"
	"uvfleet/internal/ui/components"
	"uvfleet/internal/ui/theme"
)

const (
	callTimeout = 20 * time.Second
	logRows     = 8

	defaultWidth = 100
	deviceHeight = 14
	lowerHeight  = 10
	minPaneWidth = 30
	paneChrome   = 4
)

// Fleet is the slice of the daemon the dashboard drives.
type Fleet interface {
	DeviceList(ctx context.Context) ([]devicedto.DeviceInfo, error)
	DeviceScan(ctx context.Context) (devicedto.ScanResult, error)
	DeviceConnect(ctx context.Context, deviceID string) (devicedto.DeviceInfo, error)
	DeviceDisconnect(ctx context.Context, deviceID string) error
	SessionStart(ctx context.Context, deviceID, intensity string, seconds int) (sessiondto.SessionView, error)
	SessionPause(ctx context.Context, deviceID string) (sessiondto.SessionView, error)
	SessionResume(ctx context.Context, deviceID string) (sessiondto.SessionView, error)
	SessionStop(ctx context.Context, deviceID string) (sessiondto.SessionView, error)
	SessionList(ctx context.Context) ([]sessiondto.SessionView, error)
	ScheduleCreate(ctx context.Context, deviceID, at, intensity string, seconds int) (scheduledto.ScheduleView, error)
	ScheduleList(ctx context.Context) ([]scheduledto.ScheduleView, error)
	ScheduleDelete(ctx context.Context, scheduleID string) error
	ScheduleSweep(ctx context.Context) (scheduledto.SweepResult, error)
	LogList(ctx context.Context, limit int) ([]outcomedto.LogEntry, error)
	LogClear(ctx context.Context) error
}

type Options struct {
	Refresh          time.Duration
	DefaultIntensity string
	DefaultSeconds   int
}

type pane int

const (
	paneDevices pane = iota
	paneSchedules
	paneLogs
	paneCount
)

type refreshMsg struct{}

type snapshotMsg struct {
	devices   []devicedto.DeviceInfo
	sessions  map[string]sessiondto.SessionView
	schedules []scheduledto.ScheduleView
	logs      []outcomedto.LogEntry
	err       error
}

type actionMsg struct {
	status string
	err    error
}

// row is one rendered line in a list pane.
type row struct {
	id        string
	line      string
	connected bool
}

func (r row) FilterValue() string { return r.id }

// rowDelegate draws single-line rows and marks the selection when its pane
// has focus.
type rowDelegate struct {
	active bool
}

func (d rowDelegate) Height() int                             { return 1 }
func (d rowDelegate) Spacing() int                            { return 0 }
func (d rowDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d rowDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	r, ok := item.(row)
	if !ok {
		return
	}
	if d.active && index == m.Index() {
		fmt.Fprint(w, theme.Selected.Render("> "+r.line))
		return
	}
	fmt.Fprint(w, "  "+r.line)
}

func newPaneList(title, singular, plural string, width, height int) list.Model {
	l := list.New(nil, rowDelegate{}, width, height)
	l.Title = title
	l.Styles.Title = theme.Title
	l.SetStatusBarItemName(singular, plural)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return l
}

// Model is the fleet dashboard. It polls the daemon and sends one command
// per key press.
type Model struct {
	fleet Fleet
	opts  Options

	sessions  map[string]sessiondto.SessionView
	devices   list.Model
	schedules list.Model
	logs      viewport.Model
	spinner   spinner.Model

	focus    pane
	palette  components.Palette
	showHelp bool
	status   string
	failed   bool
	loaded   bool
	width    int
}

func NewModel(fleet Fleet, opts Options) Model {
	if opts.Refresh <= 0 {
		opts.Refresh = time.Second
	}
	if opts.DefaultIntensity == "" {
		opts.DefaultIntensity = "medium"
	}
	if opts.DefaultSeconds <= 0 {
		opts.DefaultSeconds = 60
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Lavender)

	m := Model{
		fleet:     fleet,
		opts:      opts,
		sessions:  map[string]sessiondto.SessionView{},
		devices:   newPaneList("Devices", "device", "devices", defaultWidth, deviceHeight),
		schedules: newPaneList("Schedules", "schedule", "schedules", defaultWidth/2, lowerHeight),
		logs:      viewport.New(defaultWidth/2, lowerHeight),
		spinner:   sp,
		palette:   components.NewPalette(),
		status:    "connecting to daemon",
		width:     defaultWidth,
	}
	m.logs.SetContent(theme.Muted.Render("  none"))
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.spinner.Tick)
}

func (m Model) load() tea.Cmd {
	fleet := m.fleet
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		snap := snapshotMsg{sessions: map[string]sessiondto.SessionView{}}
		var err error
		if snap.devices, err = fleet.DeviceList(ctx); err != nil {
			return snapshotMsg{err: err}
		}
		sessions, err := fleet.SessionList(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		for _, s := range sessions {
			snap.sessions[s.DeviceID] = s
		}
		if snap.schedules, err = fleet.ScheduleList(ctx); err != nil {
			return snapshotMsg{err: err}
		}
		if snap.logs, err = fleet.LogList(ctx, logRows); err != nil {
			return snapshotMsg{err: err}
		}
		return snap
	}
}

func (m Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m Model) act(fn func(ctx context.Context, fleet Fleet) (string, error)) tea.Cmd {
	fleet := m.fleet
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		status, err := fn(ctx, fleet)
		return actionMsg{status: status, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.palette.SetWidth(msg.Width)
		m.resize()
		return m, nil
	case refreshMsg:
		return m, m.load()
	case snapshotMsg:
		if msg.err != nil {
			m.status, m.failed = "daemon: "+msg.err.Error(), true
			return m, m.scheduleRefresh()
		}
		if !m.loaded {
			m.status, m.failed = "ready", false
		}
		m.loaded = true
		m.sessions = msg.sessions
		cmds := []tea.Cmd{
			m.devices.SetItems(m.deviceRows(msg.devices)),
			m.schedules.SetItems(scheduleRows(msg.schedules)),
			m.scheduleRefresh(),
		}
		m.logs.SetContent(logLines(msg.logs))
		return m, tea.Batch(cmds...)
	case actionMsg:
		if msg.err != nil {
			m.status, m.failed = msg.err.Error(), true
		} else {
			m.status, m.failed = msg.status, false
		}
		return m, m.load()
	case components.PaletteSubmitMsg:
		return m, m.execute(msg.Input)
	case components.PaletteCancelMsg:
		return m, nil
	case spinner.TickMsg:
		if m.loaded {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if m.palette.Visible() {
			var cmd tea.Cmd
			m.palette, cmd = m.palette.Update(msg)
			return m, cmd
		}
		return m.handleKey(msg)
	}
	if m.palette.Visible() {
		// cursor blink
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) resize() {
	half := m.width/2 - paneChrome
	if half < minPaneWidth {
		half = minPaneWidth
	}
	m.devices.SetSize(m.width-paneChrome, deviceHeight)
	m.schedules.SetSize(half, lowerHeight)
	m.logs.Width = half
	m.logs.Height = lowerHeight
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "?":
		m.showHelp = !m.showHelp
		return m, nil
	case ":":
		return m, m.palette.Open()
	case "tab":
		m.focus = (m.focus + 1) % paneCount
		return m, nil
	case "up", "k":
		switch m.focus {
		case paneDevices:
			m.devices.CursorUp()
		case paneSchedules:
			m.schedules.CursorUp()
		default:
			m.logs.LineUp(1)
		}
		return m, nil
	case "down", "j":
		switch m.focus {
		case paneDevices:
			m.devices.CursorDown()
		case paneSchedules:
			m.schedules.CursorDown()
		default:
			m.logs.LineDown(1)
		}
		return m, nil
	case "n":
		return m, m.execute("scan")
	case "w":
		return m, m.execute("sweep")
	}

	switch m.focus {
	case paneDevices:
		selected, ok := m.devices.SelectedItem().(row)
		if !ok {
			return m, nil
		}
		deviceID := selected.id
		switch msg.String() {
		case "s":
			return m, m.execute(fmt.Sprintf("start %s %s %d", deviceID, m.opts.DefaultIntensity, m.opts.DefaultSeconds))
		case "p":
			return m, m.execute("pause " + deviceID)
		case "r":
			return m, m.execute("resume " + deviceID)
		case "x":
			return m, m.execute("stop " + deviceID)
		case "c":
			if selected.connected {
				return m, m.execute("disconnect " + deviceID)
			}
			return m, m.execute("connect " + deviceID)
		}
	case paneSchedules:
		if selected, ok := m.schedules.SelectedItem().(row); ok && msg.String() == "d" {
			return m, m.execute("unschedule " + selected.id)
		}
	}
	return m, nil
}

// execute parses one palette line into a daemon call.
func (m Model) execute(input string) tea.Cmd {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil
	}
	bad := func(usage string) tea.Cmd {
		return func() tea.Msg { return actionMsg{err: fmt.Errorf("usage: %s", usage)} }
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "start":
		if len(args) != 3 {
			return bad("start <device> <intensity> <seconds>")
		}
		seconds, err := strconv.Atoi(args[2])
		if err != nil {
			return bad("start <device> <intensity> <seconds>")
		}
		return m.act(func(ctx context.Context, f Fleet) (string, error) {
			view, err := f.SessionStart(ctx, args[0], args[1], seconds)
			return fmt.Sprintf("started %s on %s for %ds", view.Intensity, view.DeviceID, view.Planned), err
		})
	case "pause", "resume", "stop":
		if len(args) != 1 {
			return bad(name + " <device>")
		}
		return m.act(func(ctx context.Context, f Fleet) (string, error) {
			var view sessiondto.SessionView
			var err error
			switch name {
			case "pause":
				view, err = f.SessionPause(ctx, args[0])
			case "resume":
				view, err = f.SessionResume(ctx, args[0])
			default:
				view, err = f.SessionStop(ctx, args[0])
			}
			return fmt.Sprintf("%s: %s", args[0], view.State), err
		})
	case "connect":
		if len(args) != 1 {
			return bad("connect <device>")
		}
		return m.act(func(ctx context.Context, f Fleet) (string, error) {
			_, err := f.DeviceConnect(ctx, args[0])
			return "connected " + args[0], err
		})
	case "disconnect":
		if len(args) != 1 {
			return bad("disconnect <device>")
		}
		return m.act(func(ctx context.Context, f Fleet) (string, error) {
			return "disconnected " + args[0], f.DeviceDisconnect(ctx, args[0])
		})
	case "scan":
		return m.act(func(ctx context.Context, f Fleet) (string, error) {
			result, err := f.DeviceScan(ctx)
			return fmt.Sprintf("scan found %d new", len(result.Discovered)), err
		})
	case "schedule":
		if len(args) != 4 {
			return bad("schedule <device> <YYYY-MM-DDTHH:MM> <intensity> <seconds>")
		}
		seconds, err := strconv.Atoi(args[3])
		if err != nil {
			return bad("schedule <device> <YYYY-MM-DDTHH:MM> <intensity> <seconds>")
		}
		return m.act(func(ctx context.Context, f Fleet) (string, error) {
			view, err := f.ScheduleCreate(ctx, args[0], args[1], args[2], seconds)
			return "scheduled " + view.ID, err
		})
	case "unschedule":
		if len(args) != 1 {
			return bad("unschedule <id>")
		}
		return m.act(func(ctx context.Context, f Fleet) (string, error) {
			return "deleted schedule " + args[0], f.ScheduleDelete(ctx, args[0])
		})
	case "sweep":
		return m.act(func(ctx context.Context, f Fleet) (string, error) {
			result, err := f.ScheduleSweep(ctx)
			if result.Skipped {
				return "sweep already running", err
			}
			return fmt.Sprintf("sweep claimed %d", len(result.Claimed)), err
		})
	case "clear-logs":
		return m.act(func(ctx context.Context, f Fleet) (string, error) {
			return "logs cleared", f.LogClear(ctx)
		})
	default:
		return func() tea.Msg { return actionMsg{err: fmt.Errorf("unknown command %q", name)} }
	}
}

func (m Model) View() string {
	devices, schedules := m.devices, m.schedules
	devices.SetDelegate(rowDelegate{active: m.focus == paneDevices})
	schedules.SetDelegate(rowDelegate{active: m.focus == paneSchedules})

	var sb strings.Builder
	sb.WriteString(theme.Title.Render("uvfleet") + "  " + m.statusLine() + "\n\n")
	sb.WriteString(m.paneStyle(paneDevices).Render(devices.View()) + "\n")
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.paneStyle(paneSchedules).Render(schedules.View()),
		m.paneStyle(paneLogs).Render(theme.Title.Render("Recent sessions")+"\n"+m.logs.View()),
	) + "\n")
	if m.palette.Visible() {
		sb.WriteString(m.palette.View() + "\n")
	}
	if m.showHelp {
		sb.WriteString(theme.Muted.Render("tab pane  j/k move  s start  p pause  r resume  x stop  c connect  n scan  w sweep  d delete schedule  : command  q quit") + "\n")
	} else {
		sb.WriteString(theme.Muted.Render("? help  : command  q quit") + "\n")
	}
	return sb.String()
}

func (m Model) statusLine() string {
	if m.failed {
		return theme.Failure.Render(m.status)
	}
	if !m.loaded {
		return m.spinner.View() + " " + theme.Muted.Render(m.status)
	}
	return theme.Muted.Render(m.status)
}

func (m Model) paneStyle(p pane) lipgloss.Style {
	if m.focus == p {
		return theme.PaneActive
	}
	return theme.Pane
}

func (m Model) deviceRows(devices []devicedto.DeviceInfo) []list.Item {
	items := make([]list.Item, 0, len(devices))
	for _, d := range devices {
		link := "offline"
		if d.Connected {
			link = "online"
		}
		battery := "  -"
		if d.Battery != nil {
			battery = fmt.Sprintf("%3d%%", *d.Battery)
		}
		session := ""
		if s, ok := m.sessions[d.ID]; ok && s.State != "idle" {
			session = fmt.Sprintf("%s %s %s", theme.State(s.State).Render(s.State), s.Intensity, formatSeconds(s.Remaining))
		}
		line := fmt.Sprintf("%-16s %-20s %s %s  %s", d.ID, d.Name, theme.State(link).Render(fmt.Sprintf("%-7s", link)), battery, session)
		items = append(items, row{id: d.ID, line: line, connected: d.Connected})
	}
	return items
}

func scheduleRows(schedules []scheduledto.ScheduleView) []list.Item {
	items := make([]list.Item, 0, len(schedules))
	for _, s := range schedules {
		line := fmt.Sprintf("%s %-14s %-6s %5s %s", s.Datetime.Local().Format("01-02 15:04"), s.DeviceID, s.Intensity, formatSeconds(s.Duration), theme.State(s.Status).Render(s.Status))
		items = append(items, row{id: s.ID, line: line})
	}
	return items
}

func logLines(logs []outcomedto.LogEntry) string {
	if len(logs) == 0 {
		return theme.Muted.Render("  none")
	}
	lines := make([]string, 0, len(logs))
	for _, l := range logs {
		lines = append(lines, fmt.Sprintf("  %s %-14s %5s %s", l.Timestamp.Local().Format("01-02 15:04"), l.DeviceID, formatSeconds(l.Duration), theme.State(l.Outcome).Render(l.Outcome)))
	}
	return strings.Join(lines, "\n")
}

func formatSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Run blocks until the user quits.
func Run(fleet Fleet, opts Options) error {
	program := tea.NewProgram(NewModel(fleet, opts), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
