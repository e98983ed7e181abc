package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/koral-tools/eltunt-cli/internal/collector"
	"github.com/koral-tools/eltunt-cli/internal/model"
	"github.com/koral-tools/eltunt-cli/internal/reconcile"
	"github.com/koral-tools/eltunt-cli/internal/store"
	"github.com/koral-tools/eltunt-cli/internal/xlsxio"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for run history and on-demand reconciliation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st),
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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newRouter builds the API routes over the run-history store.
func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/runs/collect", func(w http.ResponseWriter, req *http.Request) {
			runs, err := st.ListCollectRuns(req.Context(), queryLimit(req))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/runs/merge", func(w http.ResponseWriter, req *http.Request) {
			runs, err := st.ListMergeRuns(req.Context(), queryLimit(req))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/runs/merge/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := st.GetMergeRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
					status = http.StatusNotFound
				}
				writeError(w, status, err)
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Post("/collect", makeCollectHandler(st))
		r.Post("/diff", handleDiff)
		r.Post("/merge", makeMergeHandler(st))
	})

	return r
}

// makeCollectHandler runs a scrape with the given filter and writes the
// snapshot workbook server-side.
func makeCollectHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Filter  collector.Filter `json:"filter"`
			OutPath string           `json:"out_path"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode request"))
			return
		}

		c := collector.New(collector.Options{
			BaseURL:           cfg.Collector.BaseURL,
			UserAgent:         cfg.Collector.UserAgent,
			Timeout:           time.Duration(cfg.Collector.TimeoutSecs) * time.Second,
			MaxRetries:        cfg.Collector.MaxRetries,
			RequestsPerSecond: cfg.Collector.RequestsPerSecond,
			Burst:             cfg.Collector.Burst,
			DetailConcurrency: cfg.Collector.DetailConcurrency,
		})

		snap, err := c.Collect(req.Context(), body.Filter)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}

		out := body.OutPath
		if out == "" {
			out = fmt.Sprintf("eltunt-szemelyek_%s.xlsx", time.Now().Format("2006-01-02"))
		}
		path, err := xlsxio.SaveWithFallback(out, func(p string) error {
			return xlsxio.WriteSnapshot(p, snap)
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		run, err := st.RecordCollectRun(req.Context(), store.CollectRun{
			Filter:     body.Filter,
			Persons:    snap.Len(),
			OutputPath: path,
		})
		if err != nil {
			zap.L().Warn("record collect run failed", zap.Error(err))
		}

		resp := map[string]any{
			"persons":     snap.Len(),
			"output_path": path,
		}
		if run != nil {
			resp["run_id"] = run.ID
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// handleDiff compares two workbooks on disk and returns the change
// counts plus the written change table path.
func handleDiff(w http.ResponseWriter, req *http.Request) {
	var body struct {
		OldPath string `json:"old_path"`
		NewPath string `json:"new_path"`
		OutPath string `json:"out_path"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode request"))
		return
	}
	if body.OldPath == "" || body.NewPath == "" {
		writeError(w, http.StatusBadRequest, eris.New("old_path and new_path are required"))
		return
	}

	oldSnap, err := xlsxio.ReadSnapshot(body.OldPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	newSnap, err := xlsxio.ReadSnapshot(body.NewPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cs, err := reconcile.Diff(oldSnap, newSnap, keyColumns(), reconcile.Options{SortByName: cfg.Diff.SortByName})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	added, removed, modified := cs.Counts()
	resp := map[string]any{
		"added":    added,
		"removed":  removed,
		"modified": modified,
	}
	if !cs.Empty() && body.OutPath != "" {
		table := cs.Table()
		path, err := xlsxio.SaveWithFallback(body.OutPath, func(p string) error {
			return xlsxio.WriteSnapshot(p, table)
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp["output_path"] = path
	}
	writeJSON(w, http.StatusOK, resp)
}

func makeMergeHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			LedgerPath   string `json:"ledger_path"`
			IncomingPath string `json:"incoming_path"`
			OutPath      string `json:"out_path"`
			CycleDate    string `json:"cycle_date"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode request"))
			return
		}
		if body.LedgerPath == "" || body.IncomingPath == "" {
			writeError(w, http.StatusBadRequest, eris.New("ledger_path and incoming_path are required"))
			return
		}
		cycleDate := body.CycleDate
		if cycleDate == "" {
			cycleDate = time.Now().Format("2006-01-02")
		}

		ledger, err := xlsxio.ReadLedger(body.LedgerPath)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		incoming, err := xlsxio.ReadSnapshot(body.IncomingPath)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		merged, stats, err := reconcile.Merge(ledger, incoming, reconcile.MergeOptions{
			KeyFields: keyColumns(),
			CycleDate: cycleDate,
		})
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}

		out := body.OutPath
		if out == "" {
			out = body.LedgerPath
		}
		summary := &xlsxio.MergeSummary{
			CycleDate:         cycleDate,
			ObservationColumn: model.ObservationColumn(cycleDate),
			LedgerFile:        body.LedgerPath,
			IncomingFile:      body.IncomingPath,
			Stats:             stats,
		}
		path, err := xlsxio.SaveWithFallback(out, func(p string) error {
			return xlsxio.WriteLedger(p, merged, summary)
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		run, err := st.RecordMergeRun(req.Context(), store.MergeRun{
			LedgerPath:   body.LedgerPath,
			IncomingPath: body.IncomingPath,
			OutputPath:   path,
			CycleDate:    cycleDate,
			Stats:        stats,
		})
		if err != nil {
			zap.L().Warn("record merge run failed", zap.Error(err))
		}

		resp := map[string]any{
			"output_path": path,
			"stats":       stats,
		}
		if run != nil {
			resp["run_id"] = run.ID
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func queryLimit(req *http.Request) int {
	n, err := strconv.Atoi(req.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
