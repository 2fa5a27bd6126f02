package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/triangulate/internal/connector"
	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/pipeline"
)

var (
	servePort    int
	serveOffline bool
)

// runner is the part of the pipeline the HTTP handlers need.
type runner interface {
	Run(ctx context.Context, rows []model.Organisation) (*pipeline.Report, error)
	Chain() connector.Chain
}

type healthResponse struct {
	Status     string   `json:"status"`
	Connectors []string `json:"connectors"`
}

type runRequest struct {
	Rows []model.Organisation `json:"rows"`
}

type runResponse struct {
	Summary string           `json:"summary"`
	Error   string           `json:"error,omitempty"`
	Report  *pipeline.Report `json:"report"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("serve: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// newRouter builds the HTTP API around a pipeline.
func newRouter(p runner, maxRows int, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Connectors: p.Chain().Names()})
	})

	r.Post("/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Rows) == 0 {
			writeError(w, http.StatusBadRequest, "rows are required")
			return
		}
		if maxRows > 0 && len(req.Rows) > maxRows {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d rows per run", maxRows))
			return
		}
		seen := make(map[string]bool, len(req.Rows))
		for i, row := range req.Rows {
			if row.ID == "" {
				req.Rows[i].ID = fmt.Sprintf("ROW-%d", i+1)
			}
			if seen[req.Rows[i].ID] {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("duplicate row id %q", req.Rows[i].ID))
				return
			}
			seen[req.Rows[i].ID] = true
		}

		report, err := p.Run(r.Context(), req.Rows)
		if report == nil {
			zap.L().Error("serve: run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "run failed")
			return
		}

		resp := runResponse{Summary: report.Summary(), Report: report}
		status := http.StatusOK
		if err != nil {
			// Sink exhaustion still yields a full report with retryable rows.
			resp.Error = err.Error()
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, resp)
	})

	return r
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the enrichment pipeline over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRunEnv(ctx, cfg, serveOffline)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Pipeline, cfg.Server.MaxRows, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "skip connectors that call remote services")
	rootCmd.AddCommand(serveCmd)
}
