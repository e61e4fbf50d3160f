package httpapi

import (
	"fmt"
	"net/http"
	"time"

	scheduledto "uvfleet/internal/modules/schedule/dto"
	sessiondto "uvfleet/internal/modules/session/dto"
	apperrors "uvfleet/internal/platform/errors"

	"github.com/gin-gonic/gin"
)

type startBody struct {
	Intensity string `json:"intensity"`
	Duration  int    `json:"duration"`
}

type scheduleBody struct {
	DeviceID  string `json:"deviceId"`
	Datetime  string `json:"datetime"`
	Intensity string `json:"intensity"`
	Duration  int    `json:"duration"`
}

func (a api) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		a.deps.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func (a api) listDevices(c *gin.Context) {
	devices, err := a.deps.Devices.List(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (a api) scanDevices(c *gin.Context) {
	result, err := a.deps.Devices.Scan(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a api) connectDevice(c *gin.Context) {
	device, err := a.deps.Devices.Connect(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (a api) disconnectDevice(c *gin.Context) {
	if err := a.deps.Devices.Disconnect(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a api) listSessions(c *gin.Context) {
	sessions, err := a.deps.Sessions.List(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (a api) getSession(c *gin.Context) {
	view, err := a.deps.Sessions.Get(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a api) startSession(c *gin.Context) {
	body := startBody{}
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		return
	}
	view, err := a.deps.Sessions.Start(c.Request.Context(), sessiondto.StartInput{
		DeviceID:  c.Param("deviceId"),
		Intensity: body.Intensity,
		Duration:  body.Duration,
		Tag:       "api",
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a api) pauseSession(c *gin.Context) {
	view, err := a.deps.Sessions.Pause(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a api) resumeSession(c *gin.Context) {
	view, err := a.deps.Sessions.Resume(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// stopSession reports the stopped session even when the device did not
// acknowledge the stop command.
func (a api) stopSession(c *gin.Context) {
	view, err := a.deps.Sessions.Stop(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		if view.State == "stopped" {
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "session": view})
			return
		}
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a api) listSchedules(c *gin.Context) {
	schedules, err := a.deps.Schedules.List(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, schedules)
}

func (a api) createSchedule(c *gin.Context) {
	body := scheduleBody{}
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		return
	}
	when, err := time.Parse(time.RFC3339, body.Datetime)
	if err != nil {
		a.fail(c, fmt.Errorf("%w: datetime must be RFC3339", apperrors.ErrInvalidInput))
		return
	}
	view, err := a.deps.Schedules.Create(c.Request.Context(), scheduledto.CreateInput{
		DeviceID:  body.DeviceID,
		Datetime:  when,
		Intensity: body.Intensity,
		Duration:  body.Duration,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (a api) deleteSchedule(c *gin.Context) {
	if err := a.deps.Schedules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a api) sweepSchedules(c *gin.Context) {
	result, err := a.deps.Schedules.Sweep(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a api) listLogs(c *gin.Context) {
	logs, err := a.deps.Logs.ListLogs(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (a api) clearLogs(c *gin.Context) {
	if err := a.deps.Logs.ClearLogs(c.Request.Context()); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a api) debugLogs(c *gin.Context) {
	lines := []string{}
	if a.deps.DebugLines != nil {
		lines = a.deps.DebugLines()
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}
