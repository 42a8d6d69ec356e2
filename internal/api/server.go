package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/questionbank/internal/config"
	"github.com/knowledge-engine/questionbank/internal/engine"
	"github.com/knowledge-engine/questionbank/internal/knowledge"
	"github.com/knowledge-engine/questionbank/internal/search"
)

// request bodies above this size are rejected
const maxBodyBytes = 64 << 20

type Server struct {
	Engine *engine.Engine
	Logger *logrus.Entry
	Router chi.Router
	config config.ServerConfig
}

func NewServer(eng *engine.Engine, cfg config.ServerConfig, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.WithField("component", "api")
	}
	s := &Server{
		Engine: eng,
		Logger: logger,
		Router: chi.NewRouter(),
		config: cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			s.Logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"dur":        time.Since(start),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("request")
		})
	})

	s.Router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Post("/index", s.handleIndex)
		r.Post("/similar", s.handleSimilar)
		r.Post("/classify", s.handleClassify)
		r.Get("/status", s.handleStatus)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Infof("Starting API Server on %s", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.Logger.Info("Shutting down API Server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Requests and responses

type ErrorResponse struct {
	Error string `json:"error"`
}

type IndexRequest struct {
	Questions []search.Question `json:"questions"`
}

type IndexResponse struct {
	Indexed    int    `json:"indexed"`
	Skipped    int    `json:"skipped"`
	Dimensions int    `json:"dimensions"`
	Generation string `json:"generation"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// SimilarRequest queries either by a question body or by the id of an
// indexed question.
type SimilarRequest struct {
	Question  *search.Question `json:"question,omitempty"`
	ID        string           `json:"id,omitempty"`
	TopK      *int             `json:"top_k,omitempty"`
	Threshold *float64         `json:"threshold,omitempty"`
	ExcludeID string           `json:"exclude_id,omitempty"`
}

type SimilarResponse struct {
	Generation string          `json:"generation,omitempty"`
	Count      int             `json:"count"`
	Results    []search.Result `json:"results"`
}

type ClassifyRequest struct {
	Text string `json:"text"`
	TopK *int   `json:"top_k,omitempty"`
}

type ClassifyResponse struct {
	Regime   knowledge.Regime        `json:"regime"`
	Strategy knowledge.Strategy      `json:"strategy,omitempty"`
	Matches  []knowledge.MatchResult `json:"matches"`
}

// Handlers

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.Engine.BuildIndex(r.Context(), req.Questions)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, IndexResponse{
		Indexed:    res.Indexed,
		Skipped:    res.Skipped,
		Dimensions: res.Dimensions,
		Generation: res.Generation,
		ElapsedMS:  res.Elapsed.Milliseconds(),
	})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var req SimilarRequest
	if !s.decode(w, r, &req) {
		return
	}

	opts := s.Engine.DefaultSimilarOptions()
	if req.TopK != nil {
		opts.TopK = *req.TopK
	}
	if req.Threshold != nil {
		opts.Threshold = *req.Threshold
	}
	opts.ExcludeID = req.ExcludeID

	var (
		hits engine.SimilarHits
		err  error
	)
	switch {
	case req.ID != "":
		hits, err = s.Engine.FindSimilarByIDDetailed(r.Context(), req.ID, opts)
	case req.Question != nil:
		hits, err = s.Engine.FindSimilarDetailed(r.Context(), *req.Question, opts)
	default:
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "question or id is required"})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, SimilarResponse{
		Generation: hits.Generation,
		Count:      len(hits.Results),
		Results:    hits.Results,
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if !s.decode(w, r, &req) {
		return
	}

	topK := s.Engine.Config.Classifier.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	res, err := s.Engine.ClassifyDetailed(r.Context(), req.Text, topK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, ClassifyResponse{
		Regime:   res.Assessment.Regime,
		Strategy: res.Strategy,
		Matches:  res.Matches,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.Engine.Stats())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidArgument), errors.Is(err, search.ErrCorpusEmpty):
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		jsonResponse(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		s.Logger.WithError(err).Error("Request failed")
		jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
