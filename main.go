package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/config"
	"Gin_postgres_redis_lending/jobs"
	"Gin_postgres_redis_lending/routes"
	"Gin_postgres_redis_lending/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func main() {
	config.LoadEnv()
	application := app.MustNew()
	defer application.Close()

	r := application.Router

	// Health
	r.GET("/healthz", func(c *app.Ctx) { c.JSON(200, app.H{"ok": true}) })
	r.GET("/readyz", func(c *app.Ctx) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if sqlDB, err := application.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "db": "down"})
			return
		}
		if err := application.RDB.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "redis": "down"})
			return
		}
		c.JSON(http.StatusOK, app.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.RegisterRoutes(r, application)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweep := &jobs.SweepJob{
		Sweeper:  application.Engine,
		Lease:    session.NewLease(application.RDB, "lending-sweeper"),
		Interval: application.Config.SweepInterval,
		Log:      log.WithField("component", "sweeper"),
	}
	sweepDone := sweep.Start(ctx)

	srv := &http.Server{Addr: ":" + application.Config.Port, Handler: r}
	go func() {
		log.WithField("port", application.Config.Port).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	<-sweepDone
}
