package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lecternlabs/lectern/pkg/buildinfo"
	"github.com/lecternlabs/lectern/pkg/db"
	"github.com/lecternlabs/lectern/pkg/logging"
	"github.com/lecternlabs/lectern/pkg/pipeline"
	"github.com/lecternlabs/lectern/pkg/store"
)

const (
	dbReadyTimeout = 30 * time.Second
	dbReadyPoll    = 2 * time.Second
)

// storeHealth is implemented by database-backed stores.
type storeHealth interface {
	Health(ctx context.Context) *db.Status
	WaitReady(ctx context.Context, pollInterval time.Duration) error
}

// NewWorkerCommand creates the 'worker' command.
func NewWorkerCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers that process queued lectures",
		Long: `Run a pool of background workers that pull ingest jobs from the
Redis queue and process them through the pipeline. The pool runs until
interrupted and drains in-flight jobs on shutdown.

Requires redis.addr in the configuration. Jobs are queued with
'lectern ingest --async' or the watch command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.setup(); err != nil {
				return err
			}

			app, cleanup, err := deps.NewApp(cmd.Context(), deps.Config, deps.Logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if app.Queue == nil {
				return fmt.Errorf("worker needs redis.addr configured")
			}

			logger := deps.Logger.With(logging.F("component", "worker"))

			var metricsSrv *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				mux.Handle("/version", buildinfo.Handler())
				mux.Handle("/health", healthHandler(app.Store))
				metricsSrv = &http.Server{
					Addr:              metricsAddr,
					Handler:           mux,
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					logger.Info("metrics endpoint listening", logging.F("addr", metricsAddr))
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics endpoint failed", logging.Err(err))
					}
				}()
			}

			// Do not take jobs until the store answers. The database can
			// still be starting when the worker boots alongside it.
			if hc, ok := app.Store.(storeHealth); ok {
				waitCtx, cancel := context.WithTimeout(cmd.Context(), dbReadyTimeout)
				err := hc.WaitReady(waitCtx, dbReadyPoll)
				cancel()
				if err != nil {
					return fmt.Errorf("database not ready: %w", err)
				}
			}

			pool := pipeline.NewPool(app.Queue, app.Pipeline, deps.Config.Worker, app.Metrics, deps.Logger)
			pool.Start(cmd.Context())
			fmt.Fprintf(deps.Out, "Workers started (count=%d), press Ctrl+C to stop\n", deps.Config.Worker.Count)

			<-cmd.Context().Done()

			fmt.Fprintln(deps.Out, "Shutting down, draining in-flight jobs...")
			pool.Stop()
			if metricsSrv != nil {
				metricsSrv.Close()
			}
			fmt.Fprintln(deps.Out, "Workers stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

// healthHandler reports worker readiness. Database-backed stores expose
// connection health and pool utilization; the memory store is always ready.
func healthHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		hc, ok := st.(storeHealth)
		if !ok {
			json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
			return
		}

		status := hc.Health(r.Context())
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"status": "unavailable",
				"error":  status.Error.Error(),
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"latency_ms":     status.Latency.Milliseconds(),
			"total_conns":    status.TotalConns,
			"idle_conns":     status.IdleConns,
			"acquired_conns": status.AcquiredConns,
			"max_conns":      status.MaxConns,
		})
	}
}
