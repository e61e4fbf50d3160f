package service

import (
	"context"
	"fmt"
	"time"

	"uvfleet/internal/modules/outcome/domain"
	"uvfleet/internal/modules/outcome/dto"
	outcomeout "uvfleet/internal/modules/outcome/port/out"
	sessiondto "uvfleet/internal/modules/session/dto"
	"uvfleet/internal/platform/clock"
	apperrors "uvfleet/internal/platform/errors"
	"uvfleet/internal/platform/events"
	"uvfleet/internal/platform/id"

	"github.com/rs/zerolog"
)

const (
	queueSize    = 256
	drainTimeout = 5 * time.Second
)

type job struct {
	op  string
	run func(ctx context.Context) error
}

// Recorder turns session outcomes into logs and persists schedule
// resolutions. Writes happen on its own goroutine; a failed write is logged
// and counted, never returned to the state machine.
type Recorder struct {
	logs      outcomeout.LogStore
	schedules outcomeout.ScheduleStatusStore
	clock     clock.Clock
	ids       id.Generator
	logger    zerolog.Logger
	metrics   outcomeout.Metrics

	sub   *events.Subscription[sessiondto.OutcomeEvent]
	queue chan job
}

func NewRecorder(source outcomeout.OutcomeSource, logs outcomeout.LogStore, schedules outcomeout.ScheduleStatusStore, clk clock.Clock, ids id.Generator, logger zerolog.Logger, metrics outcomeout.Metrics) *Recorder {
	return &Recorder{
		logs:      logs,
		schedules: schedules,
		clock:     clk,
		ids:       ids,
		logger:    logger.With().Str("component", "recorder").Logger(),
		metrics:   metrics,
		sub:       source.SubscribeOutcomes(),
		queue:     make(chan job, queueSize),
	}
}

// Run consumes outcomes and queued writes until ctx ends, then drains what
// is already queued, including outcomes published but not yet received.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.sub.Close()
	outcomes := r.sub.Events()
	for {
		select {
		case <-ctx.Done():
			r.drain(r.sub.Drain())
			return nil
		case ev, ok := <-outcomes:
			if !ok {
				outcomes = nil
				continue
			}
			r.execute(ctx, r.logJob(ev))
		case j := <-r.queue:
			r.execute(ctx, j)
		}
	}
}

func (r *Recorder) drain(pending []sessiondto.OutcomeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for _, ev := range pending {
		r.execute(ctx, r.logJob(ev))
	}
	for {
		select {
		case j := <-r.queue:
			r.execute(ctx, j)
		default:
			return
		}
	}
}

func (r *Recorder) execute(ctx context.Context, j job) {
	if err := j.run(ctx); err != nil {
		r.logger.Error().Err(err).Str("op", j.op).Msg("persistence failed")
		if r.metrics != nil {
			r.metrics.PersistenceFailure(j.op)
		}
	}
}

// BuildLog maps a terminal session event to its log record.
func (r *Recorder) BuildLog(ev sessiondto.OutcomeEvent) domain.SessionLog {
	return domain.SessionLog{
		ID:         r.ids.New(),
		DeviceID:   ev.DeviceID,
		DeviceName: ev.DeviceName,
		Intensity:  ev.Intensity,
		Duration:   domain.ClampElapsed(ev.Elapsed, ev.Planned),
		Outcome:    domain.Outcome(ev.Outcome),
		Detail:     ev.Detail,
		Timestamp:  r.clock.Now(),
	}
}

func (r *Recorder) logJob(ev sessiondto.OutcomeEvent) job {
	return job{op: "log", run: func(ctx context.Context) error {
		log := r.BuildLog(ev)
		if err := log.Validate(); err != nil {
			return err
		}
		if err := r.logs.Append(ctx, log); err != nil {
			return err
		}
		r.logger.Debug().Str("device", log.DeviceID).Str("outcome", string(log.Outcome)).Int("duration", log.Duration).Msg("session logged")
		return nil
	}}
}

func (r *Recorder) ResolveSchedule(ctx context.Context, input dto.ScheduleResolution) error {
	switch input.Status {
	case "completed", "failed":
	default:
		return fmt.Errorf("%w: schedule status %q is not terminal", apperrors.ErrInvalidInput, input.Status)
	}
	if input.ScheduleID == "" {
		return fmt.Errorf("%w: schedule id is required", apperrors.ErrInvalidInput)
	}
	j := job{op: "schedule", run: func(ctx context.Context) error {
		return r.schedules.SetStatus(ctx, input.ScheduleID, input.Status)
	}}
	select {
	case r.queue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) ListLogs(ctx context.Context) ([]dto.LogEntry, error) {
	logs, err := r.logs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.LogEntry, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		l := logs[i]
		out = append(out, dto.LogEntry{
			ID:         l.ID,
			DeviceID:   l.DeviceID,
			DeviceName: l.DeviceName,
			Intensity:  l.Intensity,
			Duration:   l.Duration,
			Outcome:    string(l.Outcome),
			Detail:     l.Detail,
			Timestamp:  l.Timestamp,
		})
	}
	return out, nil
}

func (r *Recorder) ClearLogs(ctx context.Context) error {
	if err := r.logs.Clear(ctx); err != nil {
		return err
	}
	r.logger.Info().Msg("session logs cleared")
	return nil
}
