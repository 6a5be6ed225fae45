package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jwebster45206/campaign-engine/internal/logger"
	"github.com/jwebster45206/campaign-engine/internal/middleware"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/combat"
	"github.com/jwebster45206/campaign-engine/pkg/engine"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type AdvanceTimeRequest struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

type RestRequest struct {
	RestType string `json:"rest_type"`
}

type TravelRequest struct {
	EdgeID int64 `json:"edge_id"`
}

type LocationRequest struct {
	LocationID int64 `json:"location_id"`
}

type EncounterRollRequest struct {
	Hours float64 `json:"hours"`
}

type EvaluateRuleRequest struct {
	CharacterID *int64 `json:"character_id,omitempty"`
}

type TriggerRequest struct {
	TriggerType campaign.TriggerType `json:"trigger_type"`
	Context     map[string]any       `json:"context"`
}

type ThresholdRequest struct {
	CharacterID int64   `json:"character_id"`
	Attribute   string  `json:"attribute"`
	Before      float64 `json:"before"`
	After       float64 `json:"after"`
}

// CampaignHandler serves the campaign-scoped host operations.
type CampaignHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewCampaignHandler(eng *engine.Engine, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{engine: eng, logger: logger}
}

// Register mounts every campaign route on mux.
func (h *CampaignHandler) Register(mux *http.ServeMux) {
	const base = "/v1/campaigns/{id}"
	mux.HandleFunc("GET "+base+"/environment", h.handleEnvironment)
	mux.HandleFunc("POST "+base+"/time/advance", h.handleAdvanceTime)
	mux.HandleFunc("POST "+base+"/rest", h.handleRest)
	mux.HandleFunc("POST "+base+"/travel", h.handleTravel)
	mux.HandleFunc("POST "+base+"/location", h.handleLocation)

	mux.HandleFunc("POST "+base+"/encounters/roll", h.handleRollEncounter)
	mux.HandleFunc("POST "+base+"/encounters/{eid}/start", h.handleStartEncounter)
	mux.HandleFunc("POST "+base+"/encounters/{eid}/end", h.handleEndEncounter)

	mux.HandleFunc("POST "+base+"/combat", h.handleStartCombat)
	mux.HandleFunc("POST "+base+"/combat/next-turn", h.handleNextTurn)
	mux.HandleFunc("PATCH "+base+"/combat", h.handlePatchCombat)
	mux.HandleFunc("DELETE "+base+"/combat", h.handleEndCombat)

	mux.HandleFunc("GET "+base+"/characters/{cid}/attributes", h.handleAttributes)

	mux.HandleFunc("POST "+base+"/rules/{rid}/evaluate", h.handleEvaluateRule)
	mux.HandleFunc("POST "+base+"/rules/{rid}/run", h.handleRunRule)
	mux.HandleFunc("POST "+base+"/triggers", h.handleTrigger)
	mux.HandleFunc("POST "+base+"/thresholds/check", h.handleThreshold)
	mux.HandleFunc("POST "+base+"/batches/{batch}/undo", h.handleUndo)

	mux.HandleFunc("GET "+base+"/notifications", h.handleListNotifications)
	mux.HandleFunc("POST "+base+"/notifications/{nid}/apply", h.handleApplySuggestion)
	mux.HandleFunc("POST "+base+"/notifications/{nid}/dismiss", h.handleDismiss)
	mux.HandleFunc("POST "+base+"/notifications/{nid}/read", h.handleMarkRead)

	mux.HandleFunc("GET "+base+"/log", h.handleSessionLog)
}

func (h *CampaignHandler) requestLogger(r *http.Request, campaignID int64) *slog.Logger {
	l := logger.WithCampaign(h.logger, campaignID)
	if id := middleware.RequestID(r.Context()); id != "" {
		l = logger.WithRequestID(l, id)
	}
	return l
}

func (h *CampaignHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *CampaignHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoActiveCombat), errors.Is(err, engine.ErrCombatActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respond writes payload, or the mapped error when err is set.
func (h *CampaignHandler) respond(w http.ResponseWriter, r *http.Request, campaignID int64, payload any, err error) {
	if err != nil {
		status := statusFor(err)
		l := h.requestLogger(r, campaignID)
		if status == http.StatusInternalServerError {
			logger.WithError(l, err).Error("Campaign operation failed", "method", r.Method, "path", r.URL.Path)
			h.writeError(w, status, "internal server error")
			return
		}
		l.Warn("Campaign operation rejected", "status", status, "error", err)
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, payload)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// campaignID parses {id}, writing a 400 on failure.
func (h *CampaignHandler) campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid campaign ID")
		return 0, false
	}
	return id, true
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (h *CampaignHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("Invalid JSON in request body", "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

func (h *CampaignHandler) handleEnvironment(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	snap, err := h.engine.Environment(r.Context(), cid)
	h.respond(w, r, cid, snap, err)
}

func (h *CampaignHandler) handleAdvanceTime(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req AdvanceTimeRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.engine.AdvanceTime(r.Context(), cid, req.Hours, req.Minutes)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleRest(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req RestRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.engine.TakeRest(r.Context(), cid, req.RestType)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleTravel(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req TravelRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.engine.Travel(r.Context(), cid, req.EdgeID)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleLocation(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req LocationRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.engine.SetLocation(r.Context(), cid, req.LocationID)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleRollEncounter(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req EncounterRollRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.engine.RollEncounter(r.Context(), cid, req.Hours)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleStartEncounter(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	eid, err := pathID(r, "eid")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid encounter ID")
		return
	}
	out, err := h.engine.StartEncounter(r.Context(), cid, eid)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleEndEncounter(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	eid, err := pathID(r, "eid")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid encounter ID")
		return
	}
	out, err := h.engine.EndEncounter(r.Context(), cid, eid)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleStartCombat(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req combat.StartRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.engine.StartCombat(r.Context(), cid, req)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleNextTurn(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	out, err := h.engine.NextTurn(r.Context(), cid)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handlePatchCombat(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req combat.PatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.engine.PatchCombat(r.Context(), cid, req)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleEndCombat(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	out, err := h.engine.EndCombat(r.Context(), cid)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleAttributes(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	charID, err := pathID(r, "cid")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid character ID")
		return
	}
	out, err := h.engine.Attributes(r.Context(), cid, charID)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleEvaluateRule(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	rid, err := pathID(r, "rid")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid rule ID")
		return
	}
	var req EvaluateRuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.engine.EvaluateRule(r.Context(), cid, rid, req.CharacterID)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleRunRule(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	rid, err := pathID(r, "rid")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid rule ID")
		return
	}
	out, err := h.engine.RunRule(r.Context(), cid, rid)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req TriggerRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.engine.FireTrigger(r.Context(), cid, req.TriggerType, req.Context)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleThreshold(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req ThresholdRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.engine.CheckThreshold(r.Context(), cid, req.CharacterID, req.Attribute, req.Before, req.After)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleUndo(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	out, err := h.engine.UndoBatch(r.Context(), cid, r.PathValue("batch"))
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := engine.NotificationFilter{
		UnreadOnly:       q.Get("unread") == "true",
		IncludeDismissed: q.Get("include_dismissed") == "true",
	}
	out, err := h.engine.ListNotifications(r.Context(), cid, filter)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) notificationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	nid, err := pathID(r, "nid")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid notification ID")
		return 0, false
	}
	return nid, true
}

func (h *CampaignHandler) handleApplySuggestion(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	nid, ok := h.notificationID(w, r)
	if !ok {
		return
	}
	out, err := h.engine.ApplySuggestion(r.Context(), cid, nid)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	nid, ok := h.notificationID(w, r)
	if !ok {
		return
	}
	out, err := h.engine.Dismiss(r.Context(), cid, nid)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	nid, ok := h.notificationID(w, r)
	if !ok {
		return
	}
	out, err := h.engine.MarkRead(r.Context(), cid, nid)
	h.respond(w, r, cid, out, err)
}

func (h *CampaignHandler) handleSessionLog(w http.ResponseWriter, r *http.Request) {
	cid, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	out, err := h.engine.SessionLog(r.Context(), cid, limit)
	h.respond(w, r, cid, out, err)
}
