// Package httpapi exposes the synchronizer's control surface: a signed
// POST /sync trigger, a GET /status snapshot, and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AOSC-Dev/aosc-mirror/internal/config"
	"github.com/AOSC-Dev/aosc-mirror/internal/keyring"
	"github.com/AOSC-Dev/aosc-mirror/internal/metrics"
	"github.com/AOSC-Dev/aosc-mirror/internal/release"
	"github.com/AOSC-Dev/aosc-mirror/internal/state"
	syncpkg "github.com/AOSC-Dev/aosc-mirror/internal/sync"
)

// Server wires the HTTP control endpoints to the synchronizer's shared
// state, exactly the collaborator set a vjache-cie-style job server
// threads through its handlers.
type Server struct {
	Config      *config.Config
	State       *state.State
	RequestKey  *keyring.Keyring
	MetadataKey *keyring.Keyring
	Metrics     *metrics.Metrics
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Handler builds the ServeMux for this server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

type syncRequest struct {
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// syncResponse is the JSON body returned by POST /sync in every case,
// success or failure: {"status": "success"|"failed", "message": "..."}.
type syncResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeSyncResponse(w http.ResponseWriter, code int, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(syncResponse{Status: status, Message: message})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSyncResponse(w, http.StatusBadRequest, "failed", "Malformed request body")
		return
	}

	if !s.Config.SkipVerification {
		if s.RequestKey == nil {
			writeSyncResponse(w, http.StatusBadRequest, "failed", "Request keyring not configured")
			return
		}
		if err := s.RequestKey.VerifyRequest(req.Timestamp, req.Signature); err != nil {
			s.Logger.Warn("rejected sync request with invalid signature", "error", err)
			writeSyncResponse(w, http.StatusBadRequest, "failed", "Invalid signature")
			return
		}
	}

	jobID := uuid.NewString()
	if !s.State.Start(jobID, req.Timestamp) {
		writeSyncResponse(w, http.StatusBadRequest, "failed", "Sync job is already started")
		return
	}

	job := &syncpkg.Job{
		ID:        jobID,
		Timestamp: req.Timestamp,
		Config:    s.Config,
		Metrics:   s.Metrics,
		Logger:    s.Logger.With("job_id", jobID),
		Fetcher: &release.Fetcher{
			HTTPClient:   s.HTTPClient,
			Mirror:       s.Config.HTTPMirror,
			MaxRetries:   s.Config.MaxRetries,
			MetadataKey:  s.MetadataKey,
			ParallelJobs: s.Config.ParallelJobs,
		},
		SkipVerification: s.Config.SkipVerification,
	}

	go func() {
		// The HTTP request that triggered this sync has already been
		// answered by the time the job finishes; detaching the
		// context keeps a slow client from cancelling a sync that
		// otherwise would have succeeded.
		err := job.Run(context.Background())
		s.State.Finish(err)
	}()

	writeSyncResponse(w, http.StatusOK, "success", "Sync job started")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.State.Snapshot())
}

// Serve starts an HTTP server on addr and blocks until ctx is cancelled, at
// which point it shuts down gracefully with a 10 second grace period -
// matching the graceful-shutdown idiom vjache-cie's serve command uses.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
