// Package server exposes the agent over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"backstage/agents/backstage"
	"backstage/shared/monitoring"
	"backstage/shared/settings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Agent          *backstage.Agent
	Settings       *settings.Store
	Monitor        *monitoring.Monitor
	Gatherer       prometheus.Gatherer
	Log            *logrus.Logger
	RequestTimeout time.Duration
}

// RegisterRoutes mounts the control API, the chat websocket and the
// monitoring endpoints. The request timeout only applies to the API group.
func RegisterRoutes(r *gin.Engine, d Deps) {
	h := &handlers{agent: d.Agent, settings: d.Settings}
	ws := NewWSHandler(d.Agent, d.Log)

	api := r.Group("/api", Timeout(d.RequestTimeout))
	api.POST("/message", h.message)
	api.GET("/settings", h.getSettings)
	api.PUT("/settings", h.putSettings)
	api.GET("/models", h.listModels)

	r.GET("/ws/chat", ws.Chat)

	monitoring.RegisterRoutes(r, d.Monitor, d.Gatherer)
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(d.Log))
	RegisterRoutes(r, d)
	return r
}

// Run serves handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}
