package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clubmetrics/districtsync/internal/jobstore"
	"github.com/clubmetrics/districtsync/internal/model"
	"github.com/clubmetrics/districtsync/internal/snapshot"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only snapshot and reconciliation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *env) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", env.listSnapshots)
			r.Get("/latest", env.latestSnapshot)
			r.Get("/{id}", env.getSnapshot)
			r.Get("/{id}/compatibility", env.snapshotCompatibility)
		})
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", env.listJobs)
			r.Get("/{id}", env.getJob)
			r.Get("/{id}/timeline", env.jobTimeline)
		})
		r.Get("/reconciliation/config", env.reconciliationConfig)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (e *env) listSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	infos, err := e.Snapshots.ListSnapshots(r.Context(), snapshot.ListFilter{
		Status: model.SnapshotStatus(q.Get("status")),
		From:   q.Get("from"),
		To:     q.Get("to"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (e *env) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := e.Snapshots.GetLatestSuccessful(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no successful snapshot exists")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *env) getSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := e.Snapshots.ReadSnapshot(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no snapshot at version "+id)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *env) snapshotCompatibility(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := e.Snapshots.CheckVersionCompatibility(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "no snapshot at version "+id)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *env) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobs, err := e.Jobs.ListJobs(r.Context(), jobstore.JobFilter{
		Status:       model.JobPhase(q.Get("status")),
		DistrictID:   q.Get("district"),
		TargetPeriod: q.Get("period"),
		ActiveOnly:   q.Get("active") == "true",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (e *env) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := e.Jobs.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "no job "+id)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (e *env) jobTimeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := e.Jobs.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "no job "+id)
		return
	}
	entries, err := e.Jobs.ListTimeline(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (e *env) reconciliationConfig(w http.ResponseWriter, r *http.Request) {
	rcfg, err := e.Reconcile.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rcfg)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
