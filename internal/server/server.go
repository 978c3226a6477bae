// Package server is the HTTP host around the assessment pipeline: it
// collects the raw clinical inputs, validates their ranges, invokes the
// pipeline, and serializes the results. The pipeline itself never sees an
// out-of-range value.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shockwatch-ai/shockwatch/internal/audit"
	"github.com/shockwatch-ai/shockwatch/internal/config"
	"github.com/shockwatch-ai/shockwatch/internal/explain"
	"github.com/shockwatch-ai/shockwatch/internal/feature"
	"github.com/shockwatch-ai/shockwatch/internal/pipeline"
	"github.com/shockwatch-ai/shockwatch/internal/predict"
)

// Server wraps the HTTP components around one loaded model.
type Server struct {
	mux          *http.ServeMux
	cfg          *config.Config
	pipe         *pipeline.Pipeline
	modelVersion string
	emitter      *audit.Emitter
	store        *audit.Store // nil when no sqlite history is configured
	apiKeys      map[string]bool
}

// New wires the handlers. emitter and store may be nil.
func New(cfg *config.Config, pipe *pipeline.Pipeline, modelVersion string, emitter *audit.Emitter, store *audit.Store) *Server {
	keys := make(map[string]bool, len(cfg.Server.APIKeys))
	for _, k := range cfg.Server.APIKeys {
		keys[k] = true
	}

	s := &Server{
		mux:          http.NewServeMux(),
		cfg:          cfg,
		pipe:         pipe,
		modelVersion: modelVersion,
		emitter:      emitter,
		store:        store,
		apiKeys:      keys,
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/v1/model", s.withAuth(s.handleModel))
	s.mux.HandleFunc("/v1/assess", s.withAuth(s.handleAssess))
	s.mux.HandleFunc("/v1/assessments/recent", s.withAuth(s.handleRecent))

	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}
	log.Printf("shockwatch listening on %s (model %s)", addr, s.modelVersion)
	return srv.ListenAndServe()
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

type modelResponse struct {
	Version       string   `json:"version"`
	FeatureOrder  []string `json:"feature_order"`
	PositiveClass string   `json:"positive_class"`
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "request")
		return
	}

	writeJSON(w, modelResponse{
		Version:       s.modelVersion,
		FeatureOrder:  s.pipe.Order(),
		PositiveClass: "septic shock within 12 hours",
	})
}

type explanationResponse struct {
	Baseline      float64                      `json:"baseline"`
	Contributions []explain.RankedContribution `json:"contributions"`
}

type assessResponse struct {
	RequestID      string               `json:"request_id"`
	ModelVersion   string               `json:"model_version"`
	Probability    float64              `json:"probability"`
	Tier           predict.Tier         `json:"tier"`
	Recommendation string               `json:"recommendation"`
	Explanation    *explanationResponse `json:"explanation,omitempty"`
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "request")
		return
	}

	var body assessRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "request")
		return
	}

	inputs, err := body.validate()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "validation")
		return
	}

	withExplanation := true
	if v := r.URL.Query().Get("explain"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "explain must be a boolean", "request")
			return
		}
		withExplanation = parsed
	}

	ctx := r.Context()
	if withExplanation && s.cfg.Server.ExplainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.ExplainTimeout)
		defer cancel()
	}

	start := time.Now()
	assessment, err := s.pipe.Assess(ctx, inputs, withExplanation)
	if err != nil {
		s.writeAssessError(w, err)
		return
	}

	ev := s.emitAudit(r.Context(), assessment, inputs, time.Since(start))

	resp := assessResponse{
		ModelVersion:   s.modelVersion,
		Probability:    assessment.Probability,
		Tier:           assessment.Tier,
		Recommendation: assessment.Recommendation,
	}
	if ev != nil {
		resp.RequestID = ev.RequestID
	}
	if assessment.Explained() {
		resp.Explanation = &explanationResponse{
			Baseline:      assessment.Baseline,
			Contributions: assessment.Attributions,
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "request")
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, "assessment history is not configured", "history")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be in 1..500", "request")
			return
		}
		limit = parsed
	}

	events, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("recent assessments query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read assessment history", "history")
		return
	}
	writeJSON(w, events)
}

// writeAssessError maps pipeline failures to responses that name the failed
// stage. None of these are retryable: they signal a contract break between
// the deployed model and this service.
func (s *Server) writeAssessError(w http.ResponseWriter, err error) {
	var inf *predict.InferenceError
	var expl *explain.ExplanationError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "explanation timed out", "explain")
	case errors.As(err, &inf):
		log.Printf("inference failed: %v", err)
		writeError(w, http.StatusInternalServerError, "classifier rejected the record", "score")
	case errors.As(err, &expl):
		log.Printf("explanation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "attribution could not be computed", "explain")
	default:
		log.Printf("assessment failed: %v", err)
		writeError(w, http.StatusInternalServerError, "assessment failed", "pipeline")
	}
}

func (s *Server) emitAudit(ctx context.Context, a *pipeline.Assessment, in feature.RawInputs, total time.Duration) *audit.Event {
	order := s.pipe.Order()
	ev := audit.BuildEvent(audit.BuildParams{
		Assessment:   a,
		Features:     order,
		Values:       orderedValues(order, in),
		ModelVersion: s.modelVersion,
		TotalLatency: total,
	})
	if s.emitter != nil {
		s.emitter.Emit(ctx, ev)
	}
	return ev
}

// --- Auth ---

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.apiKeys) == 0 {
			next(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		key := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if key == "" || !s.apiKeys[key] {
			writeError(w, http.StatusUnauthorized, "missing or invalid API key", "auth")
			return
		}
		next(w, r)
	}
}

// --- JSON helpers ---

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Stage   string `json:"stage"`
}

func writeError(w http.ResponseWriter, status int, message, stage string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Message: message,
			Stage:   stage,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}
