package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/engine"
	"github.com/jwebster45206/campaign-engine/pkg/random"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

type testServer struct {
	mux   *http.ServeMux
	store *storage.Store
}

func setupCampaignServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	store := storage.NewMemoryStorage(logger)

	cfg := campaign.DefaultConfig()
	cfg.Weather = campaign.WeatherConfig{Options: []string{"Clear"}}
	require.NoError(t, store.SaveCampaign(ctx, &campaign.Campaign{ID: 1, Name: "Greyhawk", Config: cfg}))
	for _, c := range []*campaign.Character{
		{ID: 1, CampaignID: 1, Name: "Ilse", Type: campaign.CharacterPC, Attributes: map[string]any{"hp": 10}},
		{ID: 2, CampaignID: 1, Name: "Snik", Type: campaign.CharacterNPC, Attributes: map[string]any{"hp": 4}},
	} {
		require.NoError(t, store.SaveCharacter(ctx, c))
	}
	require.NoError(t, store.SaveRule(ctx, &campaign.Rule{
		ID:          1,
		CampaignID:  1,
		Name:        "Curse",
		Enabled:     true,
		TriggerType: campaign.TriggerRest,
		TargetMode:  campaign.TargetAllPCs,
		ActionMode:  campaign.ModeAuto,
		Actions:     campaign.ActionList{campaign.ModifyAttribute{Attribute: "hp", Delta: -3}},
	}))

	eng := engine.New(store, storage.NewMemorySessionLog(), random.NewFixed(0.5), nil, logger)
	mux := http.NewServeMux()
	NewCampaignHandler(eng, logger).Register(mux)
	return &testServer{mux: mux, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, httptest.NewRequest(method, path, &buf))

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestCampaignHandler_AdvanceTime(t *testing.T) {
	s := setupCampaignServer(t)

	w, body := s.do(t, http.MethodPost, "/v1/campaigns/1/time/advance", AdvanceTimeRequest{Hours: 2, Minutes: 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	env := body["environment"].(map[string]any)
	assert.Equal(t, 10.0, env["hour"])
	assert.Equal(t, 30.0, env["minute"])
	assert.Equal(t, "Clear", env["weather"])

	w, body = s.do(t, http.MethodGet, "/v1/campaigns/1/environment", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10.0, body["hour"])
}

func TestCampaignHandler_ErrorMapping(t *testing.T) {
	s := setupCampaignServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"bad campaign id", http.MethodGet, "/v1/campaigns/abc/environment", nil, http.StatusBadRequest},
		{"unknown campaign", http.MethodGet, "/v1/campaigns/99/environment", nil, http.StatusNotFound},
		{"zero advance", http.MethodPost, "/v1/campaigns/1/time/advance", AdvanceTimeRequest{}, http.StatusBadRequest},
		{"bad rest type", http.MethodPost, "/v1/campaigns/1/rest", RestRequest{RestType: "nap"}, http.StatusBadRequest},
		{"next turn without combat", http.MethodPost, "/v1/campaigns/1/combat/next-turn", nil, http.StatusConflict},
		{"end without combat", http.MethodDelete, "/v1/campaigns/1/combat", nil, http.StatusConflict},
		{"unknown rule", http.MethodPost, "/v1/campaigns/1/rules/42/run", nil, http.StatusNotFound},
		{"unknown character", http.MethodGet, "/v1/campaigns/1/characters/9/attributes", nil, http.StatusNotFound},
		{"bad encounter id", http.MethodPost, "/v1/campaigns/1/encounters/x/start", nil, http.StatusBadRequest},
		{"bad log limit", http.MethodGet, "/v1/campaigns/1/log?limit=-2", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCampaignHandler_InvalidJSON(t *testing.T) {
	s := setupCampaignServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/1/rest", bytes.NewBufferString("{not json"))
	s.mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Invalid JSON in request body", resp.Error)
}

func TestCampaignHandler_CombatFlow(t *testing.T) {
	s := setupCampaignServer(t)

	w, body := s.do(t, http.MethodPost, "/v1/campaigns/1/combat", map[string]any{
		"combatants": []map[string]any{
			{"character_id": 1, "initiative": 15},
			{"character_id": 2, "initiative": 12},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, body["combat"])

	w, _ = s.do(t, http.MethodPost, "/v1/campaigns/1/combat", map[string]any{
		"combatants": []map[string]any{{"character_id": 1, "initiative": 15}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = s.do(t, http.MethodPost, "/v1/campaigns/1/combat/next-turn", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, body["combat"])
	assert.Nil(t, body["round_advanced"], "still round one")

	w, _ = s.do(t, http.MethodDelete, "/v1/campaigns/1/combat", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestCampaignHandler_RunRuleUndoAndLog(t *testing.T) {
	s := setupCampaignServer(t)
	ctx := context.Background()

	w, body := s.do(t, http.MethodPost, "/v1/campaigns/1/rules/1/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	batches := body["batch_ids"].([]any)
	require.Len(t, batches, 1)

	hero, err := s.store.GetCharacter(ctx, 1, 1)
	require.NoError(t, err)
	hp, _ := hero.NumericAttribute("hp")
	assert.Equal(t, 7.0, hp)

	w, body = s.do(t, http.MethodPost, "/v1/campaigns/1/batches/"+batches[0].(string)+"/undo", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1.0, body["undone"])

	hero, err = s.store.GetCharacter(ctx, 1, 1)
	require.NoError(t, err)
	hp, _ = hero.NumericAttribute("hp")
	assert.Equal(t, 10.0, hp)

	w = httptest.NewRecorder()
	s.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/campaigns/1/log?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var entries []campaign.LogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.NotEmpty(t, entries)
}

func TestCampaignHandler_EvaluateRuleDryRun(t *testing.T) {
	s := setupCampaignServer(t)

	w, body := s.do(t, http.MethodPost, "/v1/campaigns/1/rules/1/evaluate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Curse", body["rule_name"])

	hero, err := s.store.GetCharacter(context.Background(), 1, 1)
	require.NoError(t, err)
	hp, _ := hero.NumericAttribute("hp")
	assert.Equal(t, 10.0, hp)
}

func TestCampaignHandler_Notifications(t *testing.T) {
	s := setupCampaignServer(t)

	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/campaigns/1/notifications", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))

	w, _ = s.do(t, http.MethodPost, "/v1/campaigns/1/notifications/77/dismiss", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
