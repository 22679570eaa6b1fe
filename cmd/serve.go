package main

import (
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

	"github.com/sells-group/panel-cli/internal/ingest"
	"github.com/sells-group/panel-cli/internal/linker"
	"github.com/sells-group/panel-cli/internal/panel"
	"github.com/sells-group/panel-cli/internal/pipeline"
	"github.com/sells-group/panel-cli/internal/store"
)

var (
	servePort  int
	serveLinks string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the panel diagnostics HTTP API",
	Long:  "Exposes dataset validation, link resolution over a preloaded crosswalk, and run history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var links *linker.Table
		if serveLinks != "" {
			links, err = ingest.LoadLinksFile(serveLinks, linker.Options{
				Priority:     cfg.Link.Priority,
				EndExclusive: cfg.Link.EndExclusive,
			})
			if err != nil {
				return err
			}
			zap.L().Info("link table loaded", zap.Int("links", links.Len()))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st, links),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(st store.Store, links *linker.Table) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/validate", func(w http.ResponseWriter, req *http.Request) {
		var spec pipeline.DatasetSpec
		if err := json.NewDecoder(req.Body).Decode(&spec); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if spec.Name == "" || spec.Source.Path == "" {
			writeError(w, http.StatusBadRequest, "name and source.path are required")
			return
		}

		ds, err := pipeline.LoadSide(spec)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		diag := panel.Validate(ds, panel.Options{
			ByBucket:    req.URL.Query().Get("by_bucket") == "true",
			SampleLimit: cfg.Validation.SampleLimit,
		})
		writeJSON(w, http.StatusOK, diag)
	})

	r.Get("/api/links/resolve", func(w http.ResponseWriter, req *http.Request) {
		if links == nil {
			writeError(w, http.StatusServiceUnavailable, "no link table loaded (start with --links)")
			return
		}

		id := req.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		asOf := time.Now().UTC()
		if raw := req.URL.Query().Get("as_of"); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD")
				return
			}
			asOf = parsed
		}

		target, err := links.Resolve(id, asOf)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"source_id": id,
			"target_id": target,
			"as_of":     asOf.Format("2006-01-02"),
		})
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := st.ListRuns(req.Context(), store.RunFilter{
			Status:  store.RunStatus(req.URL.Query().Get("status")),
			Dataset: req.URL.Query().Get("dataset"),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveLinks, "links", "", "crosswalk CSV to serve link resolution from")
	rootCmd.AddCommand(serveCmd)
}
