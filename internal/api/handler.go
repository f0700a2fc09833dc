// Package api exposes the autonomy engines over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/altered"
	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/desire"
	"github.com/nidhogg/nuka-drive/internal/gateway"
	"github.com/nidhogg/nuka-drive/internal/history"
	"github.com/nidhogg/nuka-drive/internal/learning"
	"github.com/nidhogg/nuka-drive/internal/store"
	"github.com/nidhogg/nuka-drive/internal/traits"
	"github.com/nidhogg/nuka-drive/internal/world"
	"go.uber.org/zap"
)

// Deps are the handler's collaborators. Only Agents is required.
type Deps struct {
	Agents      *autonomy.Registry
	Store       store.StateStore
	Growth      *world.GrowthTracker
	Clock       *world.WorldClock
	Heartbeat   *world.Heartbeat
	Gateway     *gateway.Gateway
	Broadcaster *gateway.Broadcaster
	REST        *gateway.RESTAdapter
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Deps
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{Deps: deps, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/agents", h.listAgents)

		r.Route("/agents/{id}", func(r chi.Router) {
			r.Get("/", h.getAgent)
			r.Get("/traits", h.getTraits)
			r.Put("/traits/{field}", h.setTrait)
			r.Put("/stage", h.setStage)
			r.Post("/urges", h.updateUrges)
			r.Get("/desires", h.getDesires)
			r.Post("/decide", h.decide)
			r.Post("/feedback", h.feedback)
			r.Get("/choices", h.getChoices)
			r.Get("/decisions", h.getDecisions)
			r.Get("/insights", h.getInsights)
			r.Get("/altered", h.getAltered)
			r.Post("/altered", h.activateAltered)
			r.Get("/relationship", h.getRelationship)
		})

		r.Get("/world/status", h.worldStatus)
		r.Post("/heartbeat", h.triggerHeartbeat)

		r.Post("/broadcast", h.sendBroadcast)
		r.Get("/gateway/status", h.gatewayStatus)
		if h.REST != nil {
			r.Mount("/gateway/rest", h.REST.Routes())
		}
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "agents": len(h.Agents.IDs())})
}

type agentInfo struct {
	ID      string         `json:"id"`
	Stage   traits.Stage   `json:"relationship_stage"`
	Altered *altered.Kind  `json:"altered_state,omitempty"`
	Recent  int            `json:"recent_decisions"`
	Top     *desire.Result `json:"top_desire,omitempty"`
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	out := make([]agentInfo, 0)
	for _, e := range h.Agents.List() {
		s := e.Summary()
		info := agentInfo{ID: s.AgentID, Stage: s.Traits.Stage, Recent: s.Decisions}
		if s.Altered != nil {
			k := s.Altered.Kind
			info.Altered = &k
		}
		var best *desire.Result
		for _, k := range activity.All {
			res := desire.Result{Kind: k, Score: s.Desires[k]}
			if best == nil || res.Score > best.Score {
				best = &res
			}
		}
		info.Top = best
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// engine looks up the {id} agent, writing 404 when it does not exist.
func (h *Handler) engine(w http.ResponseWriter, r *http.Request) (*autonomy.Engine, bool) {
	id := chi.URLParam(r, "id")
	e, ok := h.Agents.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
	}
	return e, ok
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	if e, ok := h.engine(w, r); ok {
		writeJSON(w, http.StatusOK, e.Summary())
	}
}

func (h *Handler) getTraits(w http.ResponseWriter, r *http.Request) {
	if e, ok := h.engine(w, r); ok {
		writeJSON(w, http.StatusOK, e.Snapshot())
	}
}

type setTraitRequest struct {
	Value  *float64 `json:"value"`
	Reason string   `json:"reason"`
}

func (h *Handler) setTrait(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req setTraitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "api"
	}
	field := traits.Field(chi.URLParam(r, "field"))
	stored, err := e.SetTrait(field, *req.Value, req.Reason)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.persist(r, e)
	writeJSON(w, http.StatusOK, map[string]any{"field": field, "value": stored})
}

func (h *Handler) setStage(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req struct {
		Stage traits.Stage `json:"stage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := e.SetStage(req.Stage); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.persist(r, e)
	writeJSON(w, http.StatusOK, map[string]any{"stage": req.Stage})
}

func (h *Handler) updateUrges(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req struct {
		RecentSentiment *float64 `json:"recent_sentiment"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	in := autonomy.UrgeInputs{RecentSentiment: autonomy.RecentSentiment(e.Recent(history.Capacity))}
	if req.RecentSentiment != nil {
		in.RecentSentiment = *req.RecentSentiment
	}
	e.UpdateUrges(in)
	h.persist(r, e)
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (h *Handler) getDesires(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	in := desire.DefaultInputs()
	if v := r.URL.Query().Get("hours_since_contact"); v != "" {
		hours, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid hours_since_contact")
			return
		}
		in.HoursSinceContact = hours
	}
	t := e.Snapshot()
	out := make([]desire.Result, 0, len(activity.All))
	for _, k := range activity.All {
		out = append(out, desire.Evaluate(k, t, in))
	}
	writeJSON(w, http.StatusOK, out)
}

type decideRequest struct {
	Kind              string  `json:"kind"`
	HoursSinceContact float64 `json:"hours_since_contact"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := activity.Parse(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d := e.DecideDetailed(kind, autonomy.DecisionContext{HoursSinceContact: req.HoursSinceContact, Source: "api"})
	if h.Store != nil {
		if rec, ok := e.Record(d.RecordID); ok {
			if err := h.Store.AppendDecision(r.Context(), e.ID(), rec); err != nil {
				h.logger.Warn("decision log write failed", zap.String("agent", e.ID()), zap.Error(err))
			}
		}
	}
	h.persist(r, e)
	writeJSON(w, http.StatusOK, d)
}

type feedbackRequest struct {
	Kind    string `json:"kind"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

func (h *Handler) feedback(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := activity.Parse(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := learning.ParseOutcome(req.Outcome, req.Reason)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ann := e.ApplyFeedback(kind, outcome)
	resp := map[string]any{"annotation": ann}
	if h.Growth != nil {
		if _, notChosen := outcome.(learning.NotChosen); !notChosen {
			if stage, evolved := h.Growth.RecordInteraction(e.ID(), e.Snapshot().Stage, e, e.Clock().Now()); evolved {
				resp["relationship_stage"] = stage
			}
		}
	}
	h.persist(r, e)
	writeJSON(w, http.StatusOK, resp)
}

func queryLimit(r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (h *Handler) getChoices(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	n, ok := queryLimit(r, history.Capacity)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	writeJSON(w, http.StatusOK, e.Recent(n))
}

func (h *Handler) getDecisions(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	if h.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	n, ok := queryLimit(r, 100)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	recs, err := h.Store.RecentDecisions(r.Context(), e.ID(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) getInsights(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	ins := e.Insights()
	if ins == nil {
		ins = []autonomy.Insight{}
	}
	writeJSON(w, http.StatusOK, ins)
}

type alteredStatus struct {
	Active        *altered.Modifier `json:"active,omitempty"`
	CooldownUntil *time.Time        `json:"cooldown_until,omitempty"`
	Kinds         []altered.Kind    `json:"kinds"`
}

func (h *Handler) getAltered(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	s := e.Summary()
	writeJSON(w, http.StatusOK, alteredStatus{Active: s.Altered, CooldownUntil: s.CooldownUntil, Kinds: e.AlteredKinds()})
}

func (h *Handler) activateAltered(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req struct {
		Kind altered.Kind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mod, err := e.ActivateAlteredState(req.Kind)
	switch {
	case errors.Is(err, altered.ErrUnknownState):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, altered.ErrAlreadyActive), errors.Is(err, altered.ErrCooldownActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.persist(r, e)
	writeJSON(w, http.StatusCreated, mod)
}

func (h *Handler) getRelationship(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	if h.Growth == nil {
		writeError(w, http.StatusServiceUnavailable, "growth tracking not configured")
		return
	}
	rel, found := h.Growth.Get(e.ID())
	if !found {
		rel = world.Relationship{AgentID: e.ID(), Stage: e.Snapshot().Stage}
	}
	writeJSON(w, http.StatusOK, rel)
}

func (h *Handler) worldStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"world":  "nuka-drive",
		"agents": h.Agents.IDs(),
	}
	if h.Clock != nil {
		status["world_time"] = h.Clock.Now()
		status["speed"] = h.Clock.Speed()
		status["running"] = h.Clock.Running()
	}
	if h.Heartbeat != nil {
		status["heartbeat_interval"] = h.Heartbeat.Interval().String()
		status["heartbeats"] = h.Heartbeat.Beats()
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) triggerHeartbeat(w http.ResponseWriter, r *http.Request) {
	if h.Heartbeat == nil {
		writeError(w, http.StatusServiceUnavailable, "heartbeat not initialized")
		return
	}
	fired := h.Heartbeat.FireNow()
	resp := map[string]any{
		"status":       "heartbeat triggered",
		"agents_fired": fired,
	}
	if h.Clock != nil {
		resp["world_time"] = h.Clock.Now().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) sendBroadcast(w http.ResponseWriter, r *http.Request) {
	if h.Broadcaster == nil {
		writeError(w, http.StatusServiceUnavailable, "gateway not initialized")
		return
	}
	var msg gateway.BroadcastMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	if err := h.Broadcaster.Send(r.Context(), &msg); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "broadcast sent"})
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	if h.Gateway == nil {
		writeError(w, http.StatusServiceUnavailable, "gateway not initialized")
		return
	}
	writeJSON(w, http.StatusOK, h.Gateway.StatusAll())
}

// persist saves e's state when a store is configured. Failures are logged;
// the in-memory engine stays authoritative.
func (h *Handler) persist(r *http.Request, e *autonomy.Engine) {
	if h.Store == nil {
		return
	}
	if err := h.Store.Save(r.Context(), e.State()); err != nil {
		h.logger.Warn("state not saved", zap.String("agent", e.ID()), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
