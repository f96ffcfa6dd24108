// cmd/worker/startup.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"food-ordering-backend/pkg/container"
	"food-ordering-backend/pkg/logger"
)

// HealthChecker performs startup health checks
type HealthChecker struct {
	c *container.Container
}

// startServices performs health checks and starts the health endpoint
func startServices(c *container.Container) error {
	logger.Info("Food Ordering Worker starting", map[string]interface{}{
		"environment": c.Config.App.Environment,
		"broker":      c.Config.Broker.Kind,
	})

	checker := &HealthChecker{c: c}
	if err := checker.checkAll(); err != nil {
		return err
	}

	go startHealthCheckServer(checker, c.Config.Worker.HealthPort)

	return nil
}

// checkAll runs all health checks
func (h *HealthChecker) checkAll() error {
	checks := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"Redis Connection", h.c.Cache.HealthCheck},
		{"Postgres Connection", h.c.DB.HealthCheck},
	}

	for _, check := range checks {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := check.fn(ctx)
		cancel()
		if err != nil {
			logger.Error(fmt.Sprintf("%s check failed", check.name), err)
			return fmt.Errorf("%s failed: %w", check.name, err)
		}
		logger.Info(fmt.Sprintf("%s: OK", check.name), nil)
	}

	return nil
}

// startHealthCheckServer serves /health and /ready for the orchestrator
func startHealthCheckServer(checker *HealthChecker, port string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"UP","service":"food-ordering-worker"}`))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := checker.checkAll(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"NOT_READY"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"READY"}`))
	})

	logger.Info("[Health] Starting health check server", map[string]interface{}{"port": port})
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("[Health] Failed to start", err)
	}
}
