package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"flashdeck/internal/logger"
	"flashdeck/internal/models"
	"flashdeck/internal/services"
	"flashdeck/internal/study"
)

const (
	maxMultipartMemory = 8 << 20 // 8 MB
	multipartOverhead  = 1 << 20
	jobRetention       = time.Hour

	uploadFailedMessage = "We couldn't create flashcards from that file. Please try again."
)

type Options struct {
	MaxUploadBytes   int64
	AutoAdvanceDelay time.Duration
}

type Server struct {
	mux       *http.ServeMux
	log       *logger.Logger
	ingestion *services.Ingestion
	history   *services.HistoryService
	sessions  *SessionStore
	jobs      *JobManager
	maxUpload int64

	// gate admits one pipeline at a time.
	gate *semaphore.Weighted
}

func NewServer(ingestion *services.Ingestion, history *services.HistoryService, opts Options, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		mux:       http.NewServeMux(),
		log:       log,
		ingestion: ingestion,
		history:   history,
		sessions:  NewSessionStore(opts.AutoAdvanceDelay, history, log),
		jobs:      NewJobManager(jobRetention),
		maxUpload: opts.MaxUploadBytes,
		gate:      semaphore.NewWeighted(1),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return withAccessLog(s.log, s.mux)
}

// Drain waits for the pipeline in flight, closes the gate for good and
// cancels pending auto-advances.
func (s *Server) Drain(ctx context.Context) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for running upload: %w", err)
	}
	s.sessions.Close()
	return nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/documents", s.handleUploadDocument)
	s.mux.HandleFunc("/api/documents/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/documents/jobs/", s.handleJobStatus)
	s.mux.HandleFunc("/api/sessions/", s.handleSessionActions)
	s.mux.HandleFunc("/api/history", s.handleHistory)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"generator": s.ingestion.GeneratorMode(),
	})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.gate.TryAcquire(1) {
		writeError(w, http.StatusConflict, "a document is already being processed")
		return
	}
	defer s.gate.Release(1)

	upload, err := s.readUpload(w, r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	view, err := s.createSession(context.WithoutCancel(r.Context()), upload, nil)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/documents/jobs" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	s.handleCreateUploadJob(w, r)
}

func (s *Server) handleCreateUploadJob(w http.ResponseWriter, r *http.Request) {
	if !s.gate.TryAcquire(1) {
		writeError(w, http.StatusConflict, "a document is already being processed")
		return
	}

	upload, err := s.readUpload(w, r)
	if err != nil {
		s.gate.Release(1)
		writeRequestError(w, err)
		return
	}

	jobID, snapshot := s.jobs.CreateJob(upload.Name)
	go s.runUploadJob(context.Background(), jobID, upload)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/documents/jobs/")
	jobID = strings.Trim(jobID, "/")
	if jobID == "" {
		http.NotFound(w, r)
		return
	}

	job, ok := s.jobs.GetJob(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) runUploadJob(ctx context.Context, jobID string, upload services.Upload) {
	defer s.gate.Release(1)

	s.jobs.MarkProcessing(jobID)
	progress := func(step, message string, current, total int) {
		s.jobs.UpdateProgress(jobID, step, message, current, total)
	}

	view, err := s.createSession(ctx, upload, progress)
	if err != nil {
		s.jobs.MarkFailed(jobID, services.ErrorKind(err), uploadFailedMessage)
		return
	}
	s.jobs.MarkCompleted(jobID, UploadResult{
		SessionID: view.ID,
		Name:      view.DocumentName,
		Format:    view.format,
		CardCount: len(view.Cards),
		Generator: view.Generator,
	})
}

type createdSession struct {
	SessionView
	format string
}

// createSession runs the pipeline and loads its cards into a new session.
func (s *Server) createSession(ctx context.Context, upload services.Upload, progress services.ProgressCallback) (createdSession, error) {
	upload.SessionID = uuid.NewString()
	res, err := s.ingestion.ProcessWithProgress(ctx, upload, progress)
	if err != nil {
		s.log.Warn("upload failed", "name", upload.Name, "kind", services.ErrorKind(err), "error", err)
		return createdSession{}, err
	}
	view, err := s.sessions.Create(res.SessionID, res.Name, res.Generator, res.Cards)
	if err != nil {
		return createdSession{}, fmt.Errorf("load session: %w", err)
	}
	s.log.Info("session created", "session", view.ID, "name", view.DocumentName, "cards", len(view.Cards))
	return createdSession{SessionView: view, format: string(res.Format)}, nil
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string {
	return e.message
}

// readUpload reads the single multipart "file" into memory.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (services.Upload, error) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return services.Upload{}, &requestError{http.StatusRequestEntityTooLarge, "file is too large"}
		}
		return services.Upload{}, &requestError{http.StatusBadRequest, "invalid multipart form"}
	}
	form := r.MultipartForm
	defer form.RemoveAll()

	files := form.File["file"]
	if len(files) != 1 {
		return services.Upload{}, &requestError{http.StatusBadRequest, `upload exactly one file in the "file" field`}
	}
	file := files[0]
	if s.maxUpload > 0 && file.Size > s.maxUpload {
		return services.Upload{}, &requestError{http.StatusRequestEntityTooLarge, "file is too large"}
	}

	src, err := file.Open()
	if err != nil {
		return services.Upload{}, &requestError{http.StatusBadRequest, "could not read uploaded file"}
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return services.Upload{}, &requestError{http.StatusBadRequest, "could not read uploaded file"}
	}

	return services.Upload{
		Name:        file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) handleSessionActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}

	id := parts[0]
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			view, err := s.sessions.Get(id)
			writeSessionResult(w, view, err)
		case http.MethodDelete:
			if err := s.sessions.Delete(id); err != nil {
				writeSessionResult(w, SessionView{}, err)
				return
			}
			writeJSON(w, http.StatusNoContent, nil)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodDelete)
		}
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	switch parts[1] {
	case "answer":
		view, err := s.sessions.ToggleAnswer(id)
		writeSessionResult(w, view, err)
	case "next":
		view, err := s.sessions.Next(id)
		writeSessionResult(w, view, err)
	case "previous":
		view, err := s.sessions.Previous(id)
		writeSessionResult(w, view, err)
	case "rate":
		var payload rateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		difficulty := models.Difficulty(strings.ToLower(strings.TrimSpace(payload.Difficulty)))
		view, err := s.sessions.Rate(r.Context(), id, difficulty)
		writeSessionResult(w, view, err)
	case "mode":
		var payload modeRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		mode := models.StudyMode(strings.ToLower(strings.TrimSpace(payload.Mode)))
		view, err := s.sessions.SetMode(id, mode)
		writeSessionResult(w, view, err)
	default:
		http.NotFound(w, r)
	}
}

type rateRequest struct {
	Difficulty string `json:"difficulty"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false, "uploads": []any{}})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	uploads, err := s.history.RecentUploads(r.Context(), limit)
	if err != nil {
		s.log.Error("list upload history", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}

	out := make([]map[string]any, 0, len(uploads))
	for _, rec := range uploads {
		out = append(out, map[string]any{
			"sessionId":   rec.SessionID,
			"name":        rec.Name,
			"contentType": rec.ContentType,
			"format":      rec.Format,
			"textChars":   rec.TextChars,
			"cardCount":   rec.CardCount,
			"generator":   rec.Generator,
			"status":      rec.Status,
			"errorKind":   rec.ErrorKind,
			"uploadedAt":  rec.UploadedAt.UTC().Format(timeLayout),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "uploads": out})
}

const timeLayout = time.RFC3339

// pipelineStatus maps a pipeline failure onto a status code. The body always
// carries the same user message.
func pipelineStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, services.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writePipelineError(w http.ResponseWriter, err error) {
	writeJSON(w, pipelineStatus(err), map[string]string{
		"error": uploadFailedMessage,
		"kind":  services.ErrorKind(err),
	})
}

func writeRequestError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeError(w, reqErr.status, reqErr.message)
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeSessionResult(w http.ResponseWriter, view SessionView, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, view)
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, study.ErrInvalidDifficulty):
		writeError(w, http.StatusBadRequest, "difficulty must be 'easy', 'medium' or 'hard'")
	case errors.Is(err, study.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, "mode must be 'all', 'difficult' or 'review'")
	case errors.Is(err, study.ErrNoCurrentCard):
		writeError(w, http.StatusConflict, "no card to rate in this mode")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
