package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"uvfleet/internal/modules/session/domain"
	"uvfleet/internal/modules/session/dto"
	sessionout "uvfleet/internal/modules/session/port/out"
	"uvfleet/internal/platform/clock"
	apperrors "uvfleet/internal/platform/errors"
	"uvfleet/internal/platform/events"
	"uvfleet/internal/platform/id"

	"github.com/rs/zerolog"
)

const (
	defaultTickInterval   = time.Second
	defaultCommandTimeout = 5 * time.Second
	queueDepth            = 16

	detailWatchdog     = "watchdog"
	detailDisconnected = "device disconnected"
)

type Options struct {
	TickInterval   time.Duration
	CommandTimeout time.Duration
}

// Controller runs one actor goroutine per device. Every transition, tick and
// link loss for a device goes through its actor, so they never interleave.
type Controller struct {
	directory sessionout.DeviceDirectory
	sender    sessionout.CommandSender
	clock     clock.Clock
	ids       id.Generator
	logger    zerolog.Logger
	metrics   sessionout.Metrics
	opts      Options

	states   *events.Bus[dto.StateEvent]
	outcomes *events.Bus[dto.OutcomeEvent]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	active  atomic.Int64
	unwatch func()
}

func NewController(directory sessionout.DeviceDirectory, sender sessionout.CommandSender, clk clock.Clock, ids id.Generator, logger zerolog.Logger, metrics sessionout.Metrics, opts Options) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		directory: directory,
		sender:    sender,
		clock:     clk,
		ids:       ids,
		logger:    logger.With().Str("component", "session").Logger(),
		metrics:   metrics,
		opts:      opts,
		states:    events.NewBus[dto.StateEvent](),
		outcomes:  events.NewBus[dto.OutcomeEvent](),
		ctx:       ctx,
		cancel:    cancel,
		workers:   map[string]*worker{},
	}
	c.unwatch = directory.WatchDisconnects(c.onDisconnected)
	return c
}

type opKind int

const (
	opStart opKind = iota
	opResume
	opPause
	opStop
	opDisconnected
	opSnapshot
)

type request struct {
	op    opKind
	input dto.StartInput
	reply chan result
}

type result struct {
	view dto.SessionView
	err  error
}

type worker struct {
	reqs    chan request
	session domain.Session
	ticker  clock.Ticker
}

func (c *Controller) Start(ctx context.Context, input dto.StartInput) (dto.SessionView, error) {
	return c.submit(ctx, input.DeviceID, request{op: opStart, input: input})
}

func (c *Controller) Resume(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return c.submit(ctx, deviceID, request{op: opResume})
}

func (c *Controller) Pause(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return c.submit(ctx, deviceID, request{op: opPause})
}

// Stop always ends the session. A failed stop command is returned alongside
// the terminal view.
func (c *Controller) Stop(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return c.submit(ctx, deviceID, request{op: opStop})
}

func (c *Controller) Get(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return c.submit(ctx, deviceID, request{op: opSnapshot})
}

func (c *Controller) List(ctx context.Context) ([]dto.SessionView, error) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.workers))
	for deviceID := range c.workers {
		ids = append(ids, deviceID)
	}
	c.mu.Unlock()
	sort.Strings(ids)

	out := make([]dto.SessionView, 0, len(ids))
	for _, deviceID := range ids {
		view, err := c.Get(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

func (c *Controller) SubscribeStates() *events.Subscription[dto.StateEvent] {
	return c.states.Subscribe()
}

func (c *Controller) SubscribeOutcomes() *events.Subscription[dto.OutcomeEvent] {
	return c.outcomes.Subscribe()
}

// Close stops every actor. Live sessions are abandoned without an outcome.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	if c.unwatch != nil {
		c.unwatch()
	}
	c.cancel()
	c.wg.Wait()
	c.states.Close()
	c.outcomes.Close()
}

func (c *Controller) submit(ctx context.Context, deviceID string, req request) (dto.SessionView, error) {
	w, err := c.worker(ctx, deviceID)
	if err != nil {
		return dto.SessionView{}, err
	}
	req.reply = make(chan result, 1)
	select {
	case w.reqs <- req:
	case <-ctx.Done():
		return dto.SessionView{}, ctx.Err()
	case <-c.ctx.Done():
		return dto.SessionView{}, fmt.Errorf("session controller closed")
	}
	// the actor bounds every transport call, so waiting here is bounded too
	select {
	case res := <-req.reply:
		return res.view, res.err
	case <-c.ctx.Done():
		return dto.SessionView{}, fmt.Errorf("session controller closed")
	}
}

func (c *Controller) worker(ctx context.Context, deviceID string) (*worker, error) {
	c.mu.Lock()
	if w, ok := c.workers[deviceID]; ok {
		c.mu.Unlock()
		return w, nil
	}
	c.mu.Unlock()

	if _, err := c.directory.Lookup(ctx, deviceID); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("session controller closed")
	}
	if w, ok := c.workers[deviceID]; ok {
		return w, nil
	}
	w := &worker{reqs: make(chan request, queueDepth), session: domain.Idle(deviceID)}
	c.workers[deviceID] = w
	c.wg.Add(1)
	go c.run(w)
	return w, nil
}

func (c *Controller) onDisconnected(deviceID string) {
	c.mu.Lock()
	w, ok := c.workers[deviceID]
	closed := c.closed
	c.mu.Unlock()
	if !ok || closed {
		return
	}
	// the notifier may be any goroutine, including one blocked on this actor
	go func() {
		select {
		case w.reqs <- request{op: opDisconnected, reply: make(chan result, 1)}:
		case <-c.ctx.Done():
		}
	}()
}

func (c *Controller) run(w *worker) {
	defer c.wg.Done()
	defer w.stopTicker()
	for {
		var tick <-chan time.Time
		if w.ticker != nil {
			tick = w.ticker.C()
		}
		select {
		case <-c.ctx.Done():
			return
		case req := <-w.reqs:
			req.reply <- c.handle(w, req)
		case <-tick:
			c.tick(w)
		}
	}
}

func (c *Controller) handle(w *worker, req request) result {
	switch req.op {
	case opStart:
		return c.start(w, req.input)
	case opResume:
		if w.session.State != domain.StatePaused {
			return c.fail(w, fmt.Errorf("%w: resume from %s", apperrors.ErrInvalidTransition, w.session.State))
		}
		return c.start(w, dto.StartInput{
			DeviceID:  w.session.DeviceID,
			Intensity: string(w.session.Intensity),
			Duration:  w.session.Remaining,
		})
	case opPause:
		return c.pause(w)
	case opStop:
		return c.stop(w)
	case opDisconnected:
		return c.disconnected(w)
	default:
		return result{view: c.view(w.session)}
	}
}

// start begins a fresh session, or resumes a paused one when the duration
// matches what is left. Only fresh sessions are held to the duration range.
func (c *Controller) start(w *worker, input dto.StartInput) result {
	session := w.session
	resuming := false
	switch session.State {
	case domain.StateRunning:
		return c.fail(w, fmt.Errorf("%w: %s", apperrors.ErrSessionActive, session.DeviceID))
	case domain.StatePaused:
		if session.Remaining < 1 || input.Duration != session.Remaining {
			return c.fail(w, fmt.Errorf("%w: resume needs the remaining %ds, got %d", apperrors.ErrInvalidDuration, session.Remaining, input.Duration))
		}
		resuming = true
	default:
		if err := domain.ValidateDuration(input.Duration); err != nil {
			return c.fail(w, err)
		}
		intensity := domain.Intensity(input.Intensity)
		if err := intensity.Validate(); err != nil {
			return c.fail(w, err)
		}
		session.Intensity = intensity
	}

	device, err := c.directory.Lookup(c.ctx, session.DeviceID)
	if err != nil {
		return c.fail(w, err)
	}
	if !device.Connected {
		return c.fail(w, fmt.Errorf("%w: %s", apperrors.ErrDeviceOffline, session.DeviceID))
	}

	duration := input.Duration
	err = c.send(session.DeviceID, domain.Command{Kind: domain.CommandStart, Intensity: session.Intensity, Duration: duration})
	if err != nil {
		if errors.Is(err, apperrors.ErrTimeout) {
			if resuming {
				return c.errored(w, detailWatchdog, err)
			}
			c.logger.Warn().Str("device", session.DeviceID).Msg("start timed out, device left idle")
			return c.fail(w, err)
		}
		return c.fail(w, commandFailed(err))
	}

	if !resuming {
		session = domain.Session{
			ID:         c.ids.New(),
			DeviceID:   session.DeviceID,
			DeviceName: device.Name,
			Intensity:  session.Intensity,
			Planned:    duration,
			Remaining:  duration,
			State:      domain.StateIdle,
			Tag:        input.Tag,
			StartedAt:  c.clock.Now(),
		}
		c.active.Add(1)
		c.publishActive()
	}
	if err := session.Transition(domain.StateRunning); err != nil {
		return c.fail(w, err)
	}
	w.session = session
	w.ticker = c.clock.NewTicker(c.opts.TickInterval)
	c.transitioned(w.session)

	if err := c.directory.SetStatus(c.ctx, session.DeviceID, "running"); err != nil {
		// the link dropped between the guard and the command
		return c.errored(w, err.Error(), err)
	}
	c.logger.Info().
		Str("device", session.DeviceID).
		Str("session", session.ID).
		Str("intensity", string(session.Intensity)).
		Int("remaining", session.Remaining).
		Bool("resumed", resuming).
		Msg("session running")
	return result{view: c.view(w.session)}
}

func (c *Controller) pause(w *worker) result {
	if w.session.State != domain.StateRunning {
		return c.fail(w, fmt.Errorf("%w: pause from %s", apperrors.ErrInvalidTransition, w.session.State))
	}
	if err := c.send(w.session.DeviceID, domain.Command{Kind: domain.CommandPause}); err != nil {
		if errors.Is(err, apperrors.ErrTimeout) {
			return c.errored(w, detailWatchdog, err)
		}
		return c.fail(w, commandFailed(err))
	}
	w.stopTicker()
	_ = w.session.Transition(domain.StatePaused)
	c.transitioned(w.session)
	if err := c.directory.SetStatus(c.ctx, w.session.DeviceID, "paused"); err != nil {
		return c.errored(w, err.Error(), err)
	}
	c.logger.Info().Str("device", w.session.DeviceID).Int("remaining", w.session.Remaining).Msg("session paused")
	return result{view: c.view(w.session)}
}

func (c *Controller) stop(w *worker) result {
	if !w.session.Active() {
		return c.fail(w, fmt.Errorf("%w: stop from %s", apperrors.ErrInvalidTransition, w.session.State))
	}
	// no tick may land after this point
	w.stopTicker()
	err := c.send(w.session.DeviceID, domain.Command{Kind: domain.CommandStop})
	detail := ""
	switch {
	case errors.Is(err, apperrors.ErrTimeout):
		detail = detailWatchdog
		c.logger.Warn().Err(err).Str("device", w.session.DeviceID).Msg("stop timed out, stopping locally")
	case err != nil:
		err = commandFailed(err)
		detail = err.Error()
		c.logger.Warn().Err(err).Str("device", w.session.DeviceID).Msg("stop command failed, stopping locally")
	}
	if statusErr := c.directory.SetStatus(c.ctx, w.session.DeviceID, "idle"); statusErr != nil {
		c.logger.Warn().Err(statusErr).Str("device", w.session.DeviceID).Msg("could not reset device status")
	}
	view := c.terminate(w, domain.StateStopped, domain.OutcomeStopped, detail)
	return result{view: view, err: err}
}

func (c *Controller) disconnected(w *worker) result {
	if !w.session.Active() {
		return result{view: c.view(w.session)}
	}
	w.stopTicker()
	c.logger.Warn().Str("device", w.session.DeviceID).Str("session", w.session.ID).Msg("device disconnected mid-session")
	return result{view: c.terminate(w, domain.StateErrored, domain.OutcomeError, detailDisconnected)}
}

func (c *Controller) tick(w *worker) {
	if w.session.State != domain.StateRunning {
		w.stopTicker()
		return
	}
	done := w.session.Tick()
	if !done {
		c.publishState(w.session)
		return
	}
	w.stopTicker()
	if err := c.directory.SetStatus(c.ctx, w.session.DeviceID, "idle"); err != nil {
		c.logger.Warn().Err(err).Str("device", w.session.DeviceID).Msg("could not reset device status")
	}
	c.logger.Info().Str("device", w.session.DeviceID).Str("session", w.session.ID).Msg("session completed")
	c.terminate(w, domain.StateCompleted, domain.OutcomeSuccess, "")
}

// errored force-ends a live session after a watchdog or link failure.
func (c *Controller) errored(w *worker, detail string, cause error) result {
	w.stopTicker()
	if w.session.State == domain.StateIdle {
		return c.fail(w, cause)
	}
	c.logger.Error().Err(cause).Str("device", w.session.DeviceID).Str("session", w.session.ID).Msg("session errored")
	if err := c.directory.SetStatus(c.ctx, w.session.DeviceID, "idle"); err != nil {
		c.logger.Debug().Err(err).Str("device", w.session.DeviceID).Msg("status reset after error failed")
	}
	view := c.terminate(w, domain.StateErrored, domain.OutcomeError, detail)
	return result{view: view, err: cause}
}

// terminate publishes the terminal state and outcome, then returns the
// device to idle. The returned view is the terminal snapshot.
func (c *Controller) terminate(w *worker, state domain.State, outcome domain.Outcome, detail string) dto.SessionView {
	session := w.session
	if err := session.Transition(state); err != nil {
		c.logger.Error().Err(err).Str("device", session.DeviceID).Msg("illegal terminal transition")
		session.State = state
	}
	c.transitioned(session)

	view := c.view(session)
	view.Detail = detail
	c.outcomes.Publish(dto.OutcomeEvent{
		SessionID:  session.ID,
		DeviceID:   session.DeviceID,
		DeviceName: session.DeviceName,
		Intensity:  string(session.Intensity),
		Planned:    session.Planned,
		Elapsed:    session.Elapsed(),
		Outcome:    string(outcome),
		Detail:     detail,
		Tag:        session.Tag,
		EndedAt:    c.clock.Now(),
	})
	if c.metrics != nil {
		c.metrics.SessionOutcome(string(outcome))
	}
	c.active.Add(-1)
	c.publishActive()

	_ = session.Transition(domain.StateIdle)
	w.session = domain.Idle(session.DeviceID)
	c.transitioned(w.session)
	return view
}

// send runs one transport call under the watchdog. The sender may ignore
// its context; the watchdog still returns on time.
func (c *Controller) send(deviceID string, command domain.Command) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.CommandTimeout)
	defer cancel()
	started := time.Now()
	done := make(chan error, 1)
	go func() { done <- c.sender.Send(ctx, deviceID, command) }()

	var err error
	select {
	case err = <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s %s after %s", apperrors.ErrTimeout, command.Kind, deviceID, c.opts.CommandTimeout)
		}
	case <-ctx.Done():
		err = fmt.Errorf("%w: %s %s after %s", apperrors.ErrTimeout, command.Kind, deviceID, c.opts.CommandTimeout)
	}
	if c.metrics != nil {
		c.metrics.ObserveCommand(string(command.Kind), err, time.Since(started))
	}
	return err
}

func (c *Controller) fail(w *worker, err error) result {
	return result{view: c.view(w.session), err: err}
}

func (c *Controller) transitioned(session domain.Session) {
	if c.metrics != nil {
		c.metrics.SessionTransition(string(session.State))
	}
	c.publishState(session)
}

func (c *Controller) publishState(session domain.Session) {
	c.states.Publish(dto.StateEvent{
		SessionID: session.ID,
		DeviceID:  session.DeviceID,
		State:     string(session.State),
		Intensity: string(session.Intensity),
		Planned:   session.Planned,
		Remaining: session.Remaining,
		At:        c.clock.Now(),
	})
}

func (c *Controller) publishActive() {
	if c.metrics != nil {
		c.metrics.SetActiveSessions(int(c.active.Load()))
	}
}

func (c *Controller) view(session domain.Session) dto.SessionView {
	return dto.SessionView{
		SessionID:  session.ID,
		DeviceID:   session.DeviceID,
		DeviceName: session.DeviceName,
		State:      string(session.State),
		Intensity:  string(session.Intensity),
		Planned:    session.Planned,
		Remaining:  session.Remaining,
		Elapsed:    session.Elapsed(),
		Tag:        session.Tag,
		StartedAt:  session.StartedAt,
	}
}

func (w *worker) stopTicker() {
	if w.ticker != nil {
		w.ticker.Stop()
		w.ticker = nil
	}
}

func commandFailed(err error) error {
	if errors.Is(err, apperrors.ErrCommandFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", apperrors.ErrCommandFailed, err)
}
