package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	devicein "uvfleet/internal/modules/device/port/in"
	outcomein "uvfleet/internal/modules/outcome/port/in"
	schedulein "uvfleet/internal/modules/schedule/port/in"
	sessionin "uvfleet/internal/modules/session/port/in"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Deps struct {
	Devices   devicein.Usecase
	Sessions  sessionin.Usecase
	Schedules schedulein.Usecase
	Logs      outcomein.Usecase
	// DebugLines returns the operator ring buffer, oldest first.
	DebugLines     func() []string
	Metrics        http.Handler
	Hub            *Hub
	Logger         zerolog.Logger
	AllowedOrigins []string
}

type api struct {
	deps Deps
}

func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Logger))
	if len(deps.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: deps.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	a := api{deps: deps}
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v := router.Group("/api")
	v.GET("/devices", a.listDevices)
	v.POST("/devices/scan", a.scanDevices)
	v.POST("/devices/:id/connect", a.connectDevice)
	v.POST("/devices/:id/disconnect", a.disconnectDevice)

	v.GET("/sessions", a.listSessions)
	v.GET("/sessions/:deviceId", a.getSession)
	v.POST("/sessions/:deviceId/start", a.startSession)
	v.POST("/sessions/:deviceId/pause", a.pauseSession)
	v.POST("/sessions/:deviceId/resume", a.resumeSession)
	v.POST("/sessions/:deviceId/stop", a.stopSession)

	v.GET("/schedules", a.listSchedules)
	v.POST("/schedules", a.createSchedule)
	v.DELETE("/schedules/:id", a.deleteSchedule)
	v.POST("/schedules/sweep", a.sweepSchedules)

	v.GET("/logs", a.listLogs)
	v.DELETE("/logs", a.clearLogs)
	v.GET("/debug/logs", a.debugLogs)

	if deps.Hub != nil {
		v.GET("/events", deps.Hub.Handle)
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	return router
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(started)).
			Msg("http request")
	}
}

// Serve runs the router on addr until ctx ends.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
