package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/enrich"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/monitoring"
	"github.com/sells-group/enrich-cli/internal/store"
)

// maxBatchRecords bounds one POST /v1/batches request.
const maxBatchRecords = 10000

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the enrichment HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		useLive, _ := cmd.Flags().GetBool("live")
		env, err := initPipeline(ctx, envOptions{mode: "serve", live: useLive})
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := newAPIServer(ctx, env)
		if err != nil {
			return err
		}
		go s.checker.Run(ctx)

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           s.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		// Batches still running see the cancelled context, finish degraded
		// and complete their runs.
		s.wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "server port (default from config)")
	serveCmd.Flags().Bool("live", false, "use HTTP-backed sources where API keys are configured")
	rootCmd.AddCommand(serveCmd)
}

// apiServer serves enrichment requests over one pipeline environment.
type apiServer struct {
	env     *pipelineEnv
	engine  *enrich.Engine
	checker *monitoring.Checker
	// baseCtx scopes asynchronous batches to the server's lifetime.
	baseCtx context.Context
	wg      sync.WaitGroup
}

func newAPIServer(ctx context.Context, env *pipelineEnv) (*apiServer, error) {
	if env.Store == nil {
		return nil, eris.New("serve: a store is required")
	}
	engine, err := env.newEngine(nil)
	if err != nil {
		return nil, err
	}
	checker := monitoring.NewChecker(
		monitoring.NewCollector(env.Store),
		monitoring.NewAlerter(cfg.Monitoring),
		cfg.Monitoring,
	)
	return &apiServer{env: env, engine: engine, checker: checker, baseCtx: ctx}, nil
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/enrich", s.handleEnrich)
		r.Post("/batches", s.handleBatch)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

// wait blocks until every asynchronous batch has completed.
func (s *apiServer) wait() { s.wg.Wait() }

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.env.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var rec model.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rec.Franchisee == "" {
		writeError(w, http.StatusBadRequest, "franchisee is required")
		return
	}

	writeJSON(w, http.StatusOK, s.engine.Process(r.Context(), rec))
}

type batchRequest struct {
	Input   string         `json:"input"`
	Records []model.Record `json:"records"`
}

func (s *apiServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case len(req.Records) == 0:
		writeError(w, http.StatusBadRequest, "records are required")
		return
	case len(req.Records) > maxBatchRecords:
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d records per batch", maxBatchRecords))
		return
	}
	if req.Input == "" {
		req.Input = "api:" + middleware.GetReqID(r.Context())
	}

	runID, recorder, err := beginRun(r.Context(), s.env, req.Input)
	if err != nil {
		zap.L().Error("serve: begin run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create run")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := executeRun(s.baseCtx, s.env, runID, recorder, req.Records)
		if err != nil {
			zap.L().Error("serve: batch failed", zap.String("run_id", runID), zap.Error(err))
			return
		}
		zap.L().Info("serve: batch complete",
			zap.String("run_id", runID),
			zap.Int("records", res.Summary.Total),
			zap.Float64("avg_confidence", res.Summary.AvgConfidence),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":  runID,
		"status":  model.RunStatusRunning,
		"records": len(req.Records),
	})
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RunFilter{Status: model.RunStatus(q.Get("status"))}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	runs, err := s.env.Store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("serve: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	detail, err := loadRunDetail(r.Context(), s.env.Store, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	case err != nil:
		zap.L().Error("serve: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
	default:
		writeJSON(w, http.StatusOK, detail)
	}
}

func (s *apiServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.checker.Last()
	if snap == nil {
		var err error
		if snap, err = monitoring.NewCollector(s.env.Store).Collect(r.Context(), cfg.Monitoring.LookbackWindowHours); err != nil {
			zap.L().Error("serve: collect metrics", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not collect metrics")
			return
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
