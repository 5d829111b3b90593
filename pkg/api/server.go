package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/helix/core/pkg/arbiter"
	"github.com/Mindburn-Labs/helix/core/pkg/archive"
	"github.com/Mindburn-Labs/helix/core/pkg/limiter"
	"github.com/Mindburn-Labs/helix/core/pkg/observability"
	"github.com/Mindburn-Labs/helix/core/pkg/pipeline"
	"github.com/Mindburn-Labs/helix/core/pkg/policy"
	"github.com/Mindburn-Labs/helix/core/pkg/promotion"
	"github.com/Mindburn-Labs/helix/core/pkg/store"
	"github.com/Mindburn-Labs/helix/core/pkg/store/queue"
)

// Server exposes the decision pipeline over HTTP.
type Server struct {
	engine     *pipeline.Engine
	receipts   *store.DecisionStore
	bundles    *archive.Archive
	escalation *limiter.SlidingWindow
	attestor   *promotion.Attestor
	highStakes *policy.HighStakesEvaluator
	deepWork   queue.Queue
	timeline   *observability.DecisionTimeline
	slo        *observability.SLOTracker
	logger     *slog.Logger
}

// ServerConfig wires the server's collaborators. Engine and Receipts are
// required; the rest degrade gracefully when absent.
type ServerConfig struct {
	Engine     *pipeline.Engine
	Receipts   *store.DecisionStore
	Bundles    *archive.Archive
	Escalation *limiter.SlidingWindow
	Attestor   *promotion.Attestor
	HighStakes *policy.HighStakesEvaluator
	DeepWork   queue.Queue
	Timeline   *observability.DecisionTimeline
	SLO        *observability.SLOTracker
	Logger     *slog.Logger
}

// NewServer builds a Server from its collaborators.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("api: engine is required")
	}
	if cfg.Receipts == nil {
		return nil, errors.New("api: receipt store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:     cfg.Engine,
		receipts:   cfg.Receipts,
		bundles:    cfg.Bundles,
		escalation: cfg.Escalation,
		attestor:   cfg.Attestor,
		highStakes: cfg.HighStakes,
		deepWork:   cfg.DeepWork,
		timeline:   cfg.Timeline,
		slo:        cfg.SLO,
		logger:     logger.With("component", "api"),
	}, nil
}

// Routes returns the full handler, with per-IP rate limiting applied when
// a limiter is given.
func (s *Server) Routes(rl *GlobalRateLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/decide", s.handleDecide)
	mux.HandleFunc("/v1/decisions/", s.handleDecisions)
	mux.HandleFunc("/v1/promote", s.handlePromote)
	mux.HandleFunc("/v1/timeline", s.handleTimeline)

	if rl == nil {
		return mux
	}
	return rl.Middleware(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// DecideResponse is the /v1/decide payload.
type DecideResponse struct {
	Decision     *pipeline.Decision    `json:"decision"`
	Bundle       *archive.SealedBundle `json:"bundle,omitempty"`
	Limit        *limiter.Result       `json:"limit,omitempty"`
	QueuedWorkID string                `json:"queued_work_id,omitempty"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	actor := r.Header.Get("X-Actor")
	if actor == "" {
		actor = "anonymous"
	}

	var limitResult *limiter.Result
	if s.escalation != nil {
		res, err := s.escalation.Allow(r.Context(), limiter.Key(actor, "decide"))
		if err != nil {
			WriteInternal(w, err)
			return
		}
		limitResult = &res
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.OK {
			s.recordTimeline(observability.TimelineEntry{
				EntryType: observability.EntryTypeThrottle,
				Actor:     actor,
				Summary:   "decide throttled",
			})
			WriteTooManyRequests(w, int(res.ResetMs/1000)+1)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	if s.highStakes != nil && !req.HasHighStakesConstraints {
		hit, err := s.highStakes.Evaluate(policy.RequestFacts{
			Question:        req.Context.Question,
			Domains:         req.ExpectedDomains,
			ConfidenceRatio: req.Retrieval.ConfidenceRatio,
			UserExpectsRepo: req.UserExpectsRepo,
			StrictCertainty: req.StrictCertainty,
		})
		if err != nil {
			s.logger.Warn("high-stakes rule error, failing closed", "error", err)
		}
		req.HasHighStakesConstraints = hit
	}

	start := time.Now()
	dec, err := s.engine.Evaluate(r.Context(), req)
	s.recordSLO("decide", time.Since(start), err == nil)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	if err := s.receipts.Save(r.Context(), dec); err != nil {
		WriteInternal(w, err)
		return
	}

	resp := DecideResponse{Decision: dec, Limit: limitResult}

	// A budget deferral is only meaningful if the work actually lands
	// somewhere durable.
	if s.deepWork != nil && dec.Trace.FinalReason == arbiter.ReasonBudgetQueueDeepWork {
		item := queue.Item{
			ID:         uuid.NewString(),
			DecisionID: dec.DecisionID,
			Question:   dec.Trace.Question,
			Reason:     dec.Trace.FinalReason,
		}
		if err := s.deepWork.Enqueue(r.Context(), item); err != nil {
			WriteInternal(w, err)
			return
		}
		resp.QueuedWorkID = item.ID
	}

	if s.bundles != nil {
		bundle, err := s.bundles.Seal(r.Context(), dec)
		if err != nil {
			WriteInternal(w, err)
			return
		}
		resp.Bundle = bundle
		s.recordTimeline(observability.TimelineEntry{
			EntryType:  observability.EntryTypeSeal,
			DecisionID: dec.DecisionID,
			Actor:      actor,
			Summary:    "decision sealed",
			Details:    map[string]any{"digest": bundle.Digest},
		})
	}

	s.recordTimeline(observability.TimelineEntry{
		EntryType:  observability.EntryTypeDecision,
		DecisionID: dec.DecisionID,
		Actor:      actor,
		Summary:    fmt.Sprintf("%s via %s", dec.Trace.FinalMode, dec.Trace.FinalReason),
		Details: map[string]any{
			"mode":            string(dec.Trace.FinalMode),
			"reason":          dec.Trace.FinalReason,
			"trace_hash":      dec.TraceHash,
			"certify_allowed": dec.Trace.CertifyAllowed,
		},
	})

	s.logger.InfoContext(r.Context(), "decision evaluated",
		"decision_id", dec.DecisionID,
		"mode", dec.Trace.FinalMode,
		"reason", dec.Trace.FinalReason,
		"actor", actor,
	)

	writeJSON(w, http.StatusOK, resp)
}

// VerifyResponse is the /v1/decisions/{id}/verify payload.
type VerifyResponse struct {
	DecisionID string `json:"decision_id"`
	Verified   bool   `json:"verified"`
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/decisions/")
	id, op, _ := strings.Cut(rest, "/")
	if id == "" {
		WriteNotFound(w, "Decision ID is required")
		return
	}

	switch op {
	case "":
		dec, err := s.receipts.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "No such decision")
			return
		}
		if err != nil {
			WriteInternal(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dec)

	case "verify":
		start := time.Now()
		ok, err := s.receipts.Verify(r.Context(), id)
		s.recordSLO("replay", time.Since(start), err == nil)
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "No such decision")
			return
		}
		if err != nil {
			WriteInternal(w, err)
			return
		}
		s.recordTimeline(observability.TimelineEntry{
			EntryType:  observability.EntryTypeReplay,
			DecisionID: id,
			Summary:    "stored trace re-verified",
			Details:    map[string]any{"verified": ok},
		})
		writeJSON(w, http.StatusOK, VerifyResponse{DecisionID: id, Verified: ok})

	default:
		WriteNotFound(w, "Unknown decision operation")
	}
}

// PromoteResponse is the /v1/promote payload.
type PromoteResponse struct {
	Decision    promotion.Decision `json:"decision"`
	Attestation string             `json:"attestation,omitempty"`
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req promotion.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ClaimID) == "" {
		WriteBadRequest(w, "Missing required field: claim_id")
		return
	}

	start := time.Now()
	dec := promotion.Evaluate(req)
	resp := PromoteResponse{Decision: dec}

	if dec.OK && s.attestor != nil {
		token, err := s.attestor.Mint(req, dec)
		if err != nil {
			s.recordSLO("promote", time.Since(start), false)
			WriteInternal(w, err)
			return
		}
		resp.Attestation = token
	}
	s.recordSLO("promote", time.Since(start), true)

	s.recordTimeline(observability.TimelineEntry{
		EntryType: observability.EntryTypePromotion,
		Actor:     r.Header.Get("X-Actor"),
		Summary:   fmt.Sprintf("claim %s promotion: ok=%v", req.ClaimID, dec.OK),
		Details: map[string]any{
			"claim_id": req.ClaimID,
			"ok":       dec.OK,
			"code":     dec.Code,
		},
	})

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	if s.timeline == nil {
		WriteNotFound(w, "Timeline is not enabled")
		return
	}

	q := observability.TimelineQuery{
		DecisionID: r.URL.Query().Get("decision_id"),
		Actor:      r.URL.Query().Get("actor"),
	}
	if v := r.URL.Query().Get("type"); v != "" {
		et := observability.TimelineEntryType(v)
		q.EntryType = &et
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteBadRequest(w, "Invalid limit")
			return
		}
		q.Limit = n
	}

	entries := s.timeline.Query(q)
	if entries == nil {
		entries = []observability.TimelineEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) recordTimeline(entry observability.TimelineEntry) {
	if s.timeline == nil {
		return
	}
	if err := s.timeline.Record(entry); err != nil {
		s.logger.Warn("timeline record failed", "error", err)
	}
}

func (s *Server) recordSLO(operation string, latency time.Duration, success bool) {
	if s.slo == nil {
		return
	}
	s.slo.Record(observability.SLOObservation{
		Operation: operation,
		Latency:   latency,
		Success:   success,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
