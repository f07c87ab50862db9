package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-cli/internal/attribution"
	"github.com/sells-group/attribution-cli/internal/engine"
	"github.com/sells-group/attribution-cli/internal/model"
	"github.com/sells-group/attribution-cli/internal/monitoring"
	"github.com/sells-group/attribution-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attribution reporting API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		api := &apiServer{
			engine:  eng,
			store:   st,
			alerter: monitoring.NewAlerter(cfg.Monitoring),
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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

// apiServer carries the handler dependencies.
type apiServer struct {
	engine  *engine.Engine
	store   store.Store
	alerter *monitoring.Alerter
}

func (s *apiServer) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/journeys/{id}/attribution", s.handleJourneyAttribution)
	r.Post("/attribution/run", s.handleRunBatch)
	r.Get("/reports/channels", s.handleChannelReport)
	r.Get("/reports/comparison", s.handleComparisonReport)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleJourneyAttribution(w http.ResponseWriter, r *http.Request) {
	journeyID := chi.URLParam(r, "id")
	kind := model.ModelKind(r.URL.Query().Get("model"))
	if kind == "" {
		kind = model.ModelLinear
	}

	results, err := s.engine.CalculateAttribution(r.Context(), journeyID, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *apiServer) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model         string  `json:"model"`
		ChunkSize     int     `json:"chunk_size"`
		ConvertedOnly bool    `json:"converted_only"`
		MinConfidence float64 `json:"min_confidence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Model == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model is required"})
		return
	}

	runnerCfg := engine.RunnerConfig{
		ChunkSize:     req.ChunkSize,
		Enabled:       cfg.Batch.Enabled,
		EmergencyStop: cfg.Batch.EmergencyStop,
		Filter: store.JourneyFilter{
			ConvertedOnly: req.ConvertedOnly,
			MinConfidence: req.MinConfidence,
		},
	}
	if runnerCfg.ChunkSize <= 0 {
		runnerCfg.ChunkSize = cfg.Batch.ChunkSize
	}

	runner := engine.NewBatchRunner(s.store, s.engine, runnerCfg, s.alerter)
	run, err := runner.Run(r.Context(), model.ModelKind(req.Model))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *apiServer) handleChannelReport(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ListJourneyIDs(r.Context(), store.JourneyFilter{
		ConvertedOnly: r.URL.Query().Get("converted_only") == "true",
	})
	if err != nil {
		writeError(w, err)
		return
	}
	tps, err := s.store.GetTouchpointsByJourneyIDs(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attribution.GetChannelStatistics(tps))
}

func (s *apiServer) handleComparisonReport(w http.ResponseWriter, r *http.Request) {
	kinds := model.HeuristicKinds()
	if raw := r.URL.Query().Get("models"); raw != "" {
		kinds = kinds[:0]
		for _, m := range strings.Split(raw, ",") {
			kinds = append(kinds, model.ModelKind(strings.TrimSpace(m)))
		}
	}

	results, err := s.store.GetAttributionResultsByModels(r.Context(), kinds)
	if err != nil {
		writeError(w, err)
		return
	}

	weights := attribution.AverageChannelWeights(results)
	writeJSON(w, http.StatusOK, comparisonReport{
		Models:      kinds,
		Weights:     weights,
		Spreads:     attribution.CompareChannels(weights, kinds),
		Correlation: attribution.Correlate(weights, kinds),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine sentinels onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case eris.Is(err, engine.ErrInvalidArgument):
		status = http.StatusBadRequest
	case eris.Is(err, engine.ErrJourneyNotFound):
		status = http.StatusNotFound
	case eris.Is(err, engine.ErrRunnerDisabled), eris.Is(err, engine.ErrEmergencyStop):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
