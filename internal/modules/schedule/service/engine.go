package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"uvfleet/internal/modules/schedule/domain"
	"uvfleet/internal/modules/schedule/dto"
	scheduleout "uvfleet/internal/modules/schedule/port/out"
	sessiondto "uvfleet/internal/modules/session/dto"
	"uvfleet/internal/platform/clock"
	apperrors "uvfleet/internal/platform/errors"
	"uvfleet/internal/platform/id"

	"github.com/rs/zerolog"
)

const (
	defaultSweepInterval    = 10 * time.Second
	defaultPromotionTimeout = 5 * time.Second
)

type Options struct {
	SweepInterval    time.Duration
	PromotionTimeout time.Duration
}

// Engine promotes due schedules into sessions. A schedule is claimed at most
// once; the claim is held in memory and persisted as PromotedAt.
type Engine struct {
	repo     scheduleout.Repository
	devices  scheduleout.DeviceLookup
	sessions scheduleout.SessionStarter
	resolver scheduleout.Resolver
	clock    clock.Clock
	ids      id.Generator
	logger   zerolog.Logger
	metrics  scheduleout.Metrics
	opts     Options

	sweeping atomic.Bool
	wg       sync.WaitGroup

	mu sync.Mutex
	// lifetime is the context Run received; promotions outlive their caller.
	lifetime context.Context
	// claimed holds every schedule this process picked up.
	claimed map[string]struct{}
	// awaiting maps a started schedule to its device until the outcome lands.
	awaiting map[string]string
}

func NewEngine(repo scheduleout.Repository, devices scheduleout.DeviceLookup, sessions scheduleout.SessionStarter, resolver scheduleout.Resolver, clk clock.Clock, ids id.Generator, logger zerolog.Logger, metrics scheduleout.Metrics, opts Options) *Engine {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.PromotionTimeout <= 0 {
		opts.PromotionTimeout = defaultPromotionTimeout
	}
	return &Engine{
		repo:     repo,
		devices:  devices,
		sessions: sessions,
		resolver: resolver,
		clock:    clk,
		ids:      ids,
		logger:   logger.With().Str("component", "schedule").Logger(),
		metrics:  metrics,
		opts:     opts,
		claimed:  map[string]struct{}{},
		awaiting: map[string]string{},
	}
}

func (e *Engine) Create(ctx context.Context, input dto.CreateInput) (dto.ScheduleView, error) {
	deviceID := strings.TrimSpace(input.DeviceID)
	intensity := strings.ToLower(strings.TrimSpace(input.Intensity))
	if deviceID == "" {
		return dto.ScheduleView{}, fmt.Errorf("%w: device id is required", apperrors.ErrInvalidInput)
	}
	if err := domain.ValidateDuration(input.Duration); err != nil {
		return dto.ScheduleView{}, err
	}
	if err := domain.ValidateIntensity(intensity); err != nil {
		return dto.ScheduleView{}, err
	}
	now := e.clock.Now()
	if !input.Datetime.After(now) {
		return dto.ScheduleView{}, fmt.Errorf("%w: %s is not after %s", apperrors.ErrPastDatetime, input.Datetime.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	name, err := e.devices.DeviceName(ctx, deviceID)
	if err != nil {
		return dto.ScheduleView{}, err
	}

	s := domain.Schedule{
		ID:         e.ids.New(),
		DeviceID:   deviceID,
		DeviceName: name,
		Datetime:   input.Datetime.UTC(),
		Intensity:  intensity,
		Duration:   input.Duration,
		Status:     domain.StatusPending,
	}
	if err := e.repo.Save(ctx, s); err != nil {
		return dto.ScheduleView{}, err
	}
	e.logger.Info().Str("schedule", s.ID).Str("device", deviceID).Time("at", s.Datetime).Msg("schedule created")
	return toView(s, now), nil
}

func (e *Engine) Delete(ctx context.Context, scheduleID string) error {
	if err := e.repo.Delete(ctx, scheduleID); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.awaiting, scheduleID)
	delete(e.claimed, scheduleID)
	e.mu.Unlock()
	return nil
}

func (e *Engine) List(ctx context.Context) ([]dto.ScheduleView, error) {
	schedules, err := e.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	out := make([]dto.ScheduleView, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, toView(s, now))
	}
	return out, nil
}

// Run recovers interrupted promotions, then sweeps on the configured
// interval and resolves schedules from session outcomes until ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	sub := e.sessions.SubscribeOutcomes()
	defer sub.Close()
	defer e.wg.Wait()
	e.setLifetime(ctx)
	defer e.setLifetime(nil)

	if err := e.recoverClaims(ctx); err != nil {
		e.logger.Error().Err(err).Msg("schedule recovery failed")
	}
	if _, err := e.Sweep(ctx); err != nil {
		e.logger.Error().Err(err).Msg("sweep failed")
	}

	ticker := e.clock.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()
	outcomes := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-outcomes:
			if !ok {
				outcomes = nil
				continue
			}
			e.handleOutcome(ctx, ev)
		case <-ticker.C():
			if _, err := e.Sweep(ctx); err != nil {
				e.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep claims every due schedule and promotes each on its own goroutine.
// A sweep that finds another one in progress does nothing. Promotions run
// on the engine's lifetime, not on ctx, so a sweep triggered by a short
// request still sees its sessions through.
func (e *Engine) Sweep(ctx context.Context) (dto.SweepResult, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		return dto.SweepResult{Skipped: true}, nil
	}
	defer e.sweeping.Store(false)

	schedules, err := e.repo.List(ctx)
	if err != nil {
		return dto.SweepResult{}, err
	}
	now := e.clock.Now()
	promoteCtx := e.promotionContext(ctx)
	result := dto.SweepResult{Claimed: []string{}}
	pending := map[string]struct{}{}
	for _, s := range schedules {
		if s.Status == domain.StatusPending {
			pending[s.ID] = struct{}{}
		}
		if !s.Due(now) || !e.claim(s.ID) {
			continue
		}
		if err := e.repo.MarkPromoted(ctx, s.ID, now); err != nil {
			e.logger.Warn().Err(err).Str("schedule", s.ID).Msg("could not persist promotion claim")
		}
		result.Claimed = append(result.Claimed, s.ID)
		e.wg.Add(1)
		go e.promote(promoteCtx, s)
	}
	e.pruneClaims(pending)
	return result, nil
}

func (e *Engine) setLifetime(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lifetime = ctx
}

// promotionContext is the Run context when the engine is running. Outside
// Run it is the caller's context detached from its cancellation.
func (e *Engine) promotionContext(ctx context.Context) context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifetime != nil {
		return e.lifetime
	}
	return context.WithoutCancel(ctx)
}

func (e *Engine) claim(scheduleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.claimed[scheduleID]; ok {
		return false
	}
	e.claimed[scheduleID] = struct{}{}
	return true
}

// pruneClaims forgets claims for schedules that left pending in storage.
func (e *Engine) pruneClaims(pending map[string]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for scheduleID := range e.claimed {
		if _, ok := pending[scheduleID]; ok {
			continue
		}
		if _, ok := e.awaiting[scheduleID]; ok {
			continue
		}
		delete(e.claimed, scheduleID)
	}
}

func (e *Engine) promote(ctx context.Context, s domain.Schedule) {
	defer e.wg.Done()
	e.mu.Lock()
	e.awaiting[s.ID] = s.DeviceID
	e.mu.Unlock()

	err := e.startSession(ctx, s)
	if err != nil {
		e.mu.Lock()
		delete(e.awaiting, s.ID)
		e.mu.Unlock()
		e.logger.Warn().Err(err).Str("schedule", s.ID).Str("device", s.DeviceID).Msg("promotion failed")
		e.resolve(ctx, s.ID, domain.StatusFailed)
		e.observe("failed")
		return
	}
	e.logger.Info().Str("schedule", s.ID).Str("device", s.DeviceID).Msg("schedule promoted")
	e.observe("started")
}

func (e *Engine) startSession(ctx context.Context, s domain.Schedule) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.PromotionTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- e.sessions.Start(ctx, sessiondto.StartInput{
			DeviceID:  s.DeviceID,
			Intensity: s.Intensity,
			Duration:  s.Duration,
			Tag:       s.Tag(),
		})
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: promotion of %s exceeded %s", apperrors.ErrTimeout, s.ID, e.opts.PromotionTimeout)
	}
}

func (e *Engine) handleOutcome(ctx context.Context, ev sessiondto.OutcomeEvent) {
	scheduleID, ok := domain.ScheduleIDFromTag(ev.Tag)
	if !ok {
		return
	}
	e.mu.Lock()
	deviceID, waiting := e.awaiting[scheduleID]
	if waiting && deviceID == ev.DeviceID {
		delete(e.awaiting, scheduleID)
	}
	e.mu.Unlock()
	if !waiting || deviceID != ev.DeviceID {
		return
	}
	status := domain.StatusFailed
	if ev.Outcome == "success" {
		status = domain.StatusCompleted
	}
	e.logger.Info().Str("schedule", scheduleID).Str("outcome", ev.Outcome).Str("status", string(status)).Msg("schedule resolved")
	e.resolve(ctx, scheduleID, status)
	e.observe(string(status))
}

// recoverClaims fails schedules a previous process claimed but never
// resolved. Their sessions did not survive the restart.
func (e *Engine) recoverClaims(ctx context.Context) error {
	schedules, err := e.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range schedules {
		if s.Status != domain.StatusPending || s.PromotedAt == nil {
			continue
		}
		e.mu.Lock()
		_, waiting := e.awaiting[s.ID]
		e.mu.Unlock()
		if waiting || !e.claim(s.ID) {
			continue
		}
		e.logger.Warn().Str("schedule", s.ID).Time("promoted_at", *s.PromotedAt).Msg("interrupted schedule marked failed")
		e.resolve(ctx, s.ID, domain.StatusFailed)
		e.observe("recovered")
	}
	return nil
}

func (e *Engine) resolve(ctx context.Context, scheduleID string, status domain.Status) {
	if err := e.resolver.Resolve(ctx, scheduleID, status); err != nil {
		e.logger.Error().Err(err).Str("schedule", scheduleID).Str("status", string(status)).Msg("could not queue schedule resolution")
	}
}

func (e *Engine) observe(result string) {
	if e.metrics != nil {
		e.metrics.PromotionResult(result)
	}
}

func toView(s domain.Schedule, now time.Time) dto.ScheduleView {
	return dto.ScheduleView{
		ID:         s.ID,
		DeviceID:   s.DeviceID,
		DeviceName: s.DeviceName,
		Datetime:   s.Datetime,
		Intensity:  s.Intensity,
		Duration:   s.Duration,
		Status:     string(domain.DerivedStatus(s, now)),
		PromotedAt: s.PromotedAt,
	}
}
