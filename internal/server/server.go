// Package server exposes the batch orchestrator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/roach88/clipforge/internal/batch"
	"github.com/roach88/clipforge/internal/manifest"
	"github.com/roach88/clipforge/internal/media"
)

const (
	maxManifestBytes = 8 << 20
	maxBlobBytes     = 256 << 20
)

var errAlreadyRunning = &batch.Error{Code: batch.ErrCodeAlreadyRunning, Message: "a batch is already running"}

// Server serves batch control endpoints. Batches run in the background
// under the context given to NewServer; cancelling it interrupts the
// running batch, which checkpoints before returning.
type Server struct {
	orch    *batch.Orchestrator
	store   batch.CheckpointStore
	log     *slog.Logger
	metrics *batch.Metrics
	http    *httpMetrics
	blobs   *media.Preparer

	ctx  context.Context
	wg   sync.WaitGroup
	mu   sync.Mutex
	busy bool
}

// Option configures a Server.
type Option func(*Server)

// WithBlobs enables POST /blobs. Uploaded bytes are registered on p, the
// same Preparer the orchestrator uses, so manifests can reference them.
func WithBlobs(p *media.Preparer) Option {
	return func(s *Server) { s.blobs = p }
}

// pinger is implemented by stores that can report their own health.
type pinger interface {
	Ping(ctx context.Context) error
}

// New returns a Server. metrics may be nil to disable /metrics and request
// counting.
func New(ctx context.Context, orch *batch.Orchestrator, store batch.CheckpointStore, log *slog.Logger, m *batch.Metrics, opts ...Option) *Server {
	s := &Server{orch: orch, store: store, log: log, metrics: m, ctx: ctx}
	if m != nil {
		s.http = newHTTPMetrics(m.Registry())
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.log))
	r.Use(s.http.middleware)
	r.Get("/healthz", s.Health)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}
	if s.blobs != nil {
		r.Post("/blobs", s.UploadBlob)
	}
	r.Route("/batch", func(r chi.Router) {
		r.Post("/", s.StartBatch)
		r.Get("/", s.GetBatch)
		r.Post("/cancel", s.CancelBatch)
		r.Post("/resume", s.ResumeBatch)
		r.Post("/decline", s.DeclineBatch)
	})
	return r
}

// Wait blocks until background batch loops have returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// StartBatch handles POST /batch. The body is a manifest; its format comes
// from the Content-Type header, or ?format=cue|json|yaml.
func (s *Server) StartBatch(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxManifestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	m, err := manifest.Parse("manifest."+manifestFormat(r), data)
	if err != nil {
		s.log.Debug("invalid manifest", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "INVALID_MANIFEST", err.Error())
		return
	}
	spec, err := m.Spec()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MANIFEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		s.writeBatchError(w, errAlreadyRunning)
		return
	}
	st, err := s.orch.Start(r.Context(), spec)
	if err != nil {
		s.writeBatchError(w, err)
		return
	}
	s.runInBackground(s.orch.Run)

	s.log.Info("batch accepted", slog.String("batch", st.ID), slog.Int("jobs", st.TotalJobs))
	writeJSON(w, http.StatusAccepted, st)
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.log.Error("store ping failed", slog.String("error", err.Error()))
			writeError(w, http.StatusServiceUnavailable, "STORE", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UploadBlob handles POST /blobs. The raw body is held in memory under a
// fresh blob: locator, which is returned for use in a manifest posted to
// /batch on this server.
func (s *Server) UploadBlob(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBlobBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if len(data) > maxBlobBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "blob exceeds 256 MiB")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "empty blob")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	locator := "blob:" + uuid.Must(uuid.NewV7()).String()
	s.blobs.RegisterBlob(locator, data, contentType)

	s.log.Debug("blob registered", slog.String("locator", locator), slog.Int("bytes", len(data)))
	writeJSON(w, http.StatusCreated, map[string]string{"locator": locator})
}

// GetBatch handles GET /batch. It returns the live state, else the
// persisted checkpoint, else 404.
func (s *Server) GetBatch(w http.ResponseWriter, r *http.Request) {
	if st := s.orch.Snapshot(); st != nil {
		writeJSON(w, http.StatusOK, st)
		return
	}

	data, found, err := s.store.GetCheckpoint(r.Context(), s.orch.Key())
	if err != nil {
		s.log.Error("read checkpoint failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "STORE", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "IDLE", "no batch")
		return
	}
	st, err := batch.DecodeState(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "CHECKPOINT", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CancelBatch handles POST /batch/cancel.
func (s *Server) CancelBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.RequestCancel(r.Context()); err != nil {
		s.log.Error("cancel failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "STORE", err.Error())
		return
	}
	s.log.Info("batch cancel requested")
	w.WriteHeader(http.StatusAccepted)
}

// ResumeBatch handles POST /batch/resume.
func (s *Server) ResumeBatch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		s.writeBatchError(w, errAlreadyRunning)
		return
	}
	st, err := s.orch.Recover(r.Context())
	if err != nil {
		s.writeBatchError(w, err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, string(batch.ErrCodeNotResumable), "no interrupted batch to resume")
		return
	}

	s.runInBackground(s.orch.Resume)
	writeJSON(w, http.StatusAccepted, st)
}

// DeclineBatch handles POST /batch/decline.
func (s *Server) DeclineBatch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		s.writeBatchError(w, errAlreadyRunning)
		return
	}
	if err := s.orch.Decline(r.Context()); err != nil {
		s.writeBatchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runInBackground must be called with s.mu held.
func (s *Server) runInBackground(run func(context.Context) (*batch.BatchState, error)) {
	s.busy = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		}()
		st, err := run(s.ctx)
		if err != nil {
			s.log.Warn("batch loop stopped", slog.String("error", err.Error()))
			return
		}
		s.log.Info("batch loop finished", slog.String("batch", st.ID), slog.String("status", string(st.Status)))
	}()
}

func (s *Server) writeBatchError(w http.ResponseWriter, err error) {
	var be *batch.Error
	if !errors.As(err, &be) {
		s.log.Error("batch request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	status := http.StatusUnprocessableEntity
	switch be.Code {
	case batch.ErrCodeAlreadyRunning:
		status = http.StatusConflict
	case batch.ErrCodeNotResumable:
		status = http.StatusNotFound
	}
	writeError(w, status, string(be.Code), be.Error())
}

func manifestFormat(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return f
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/yaml", "application/x-yaml", "text/yaml":
		return "yaml"
	case "application/cue", "text/x-cue":
		return "cue"
	default:
		return "json"
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
