package out

import (
	"context"

	devicein "uvfleet/internal/modules/device/port/in"
	outcomedto "uvfleet/internal/modules/outcome/dto"
	outcomein "uvfleet/internal/modules/outcome/port/in"
	"uvfleet/internal/modules/schedule/domain"
	scheduleout "uvfleet/internal/modules/schedule/port/out"
	sessiondto "uvfleet/internal/modules/session/dto"
	sessionin "uvfleet/internal/modules/session/port/in"
	"uvfleet/internal/platform/events"
)

type DeviceLookup struct {
	devices devicein.Usecase
}

var _ scheduleout.DeviceLookup = DeviceLookup{}

func NewDeviceLookup(devices devicein.Usecase) DeviceLookup {
	return DeviceLookup{devices: devices}
}

func (d DeviceLookup) DeviceName(ctx context.Context, deviceID string) (string, error) {
	info, err := d.devices.Get(ctx, deviceID)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

type SessionStarter struct {
	sessions sessionin.Usecase
}

var _ scheduleout.SessionStarter = SessionStarter{}

func NewSessionStarter(sessions sessionin.Usecase) SessionStarter {
	return SessionStarter{sessions: sessions}
}

func (s SessionStarter) Start(ctx context.Context, input sessiondto.StartInput) error {
	_, err := s.sessions.Start(ctx, input)
	return err
}

func (s SessionStarter) SubscribeOutcomes() *events.Subscription[sessiondto.OutcomeEvent] {
	return s.sessions.SubscribeOutcomes()
}

// RecorderResolver hands terminal schedule states to the outcome recorder.
type RecorderResolver struct {
	recorder outcomein.Usecase
}

var _ scheduleout.Resolver = RecorderResolver{}

func NewRecorderResolver(recorder outcomein.Usecase) RecorderResolver {
	return RecorderResolver{recorder: recorder}
}

func (r RecorderResolver) Resolve(ctx context.Context, scheduleID string, status domain.Status) error {
	return r.recorder.ResolveSchedule(ctx, outcomedto.ScheduleResolution{ScheduleID: scheduleID, Status: string(status)})
}
