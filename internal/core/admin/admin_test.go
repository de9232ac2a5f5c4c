package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/medaudit/internal/core/compliance"
	"github.com/solatis/medaudit/internal/core/db"
	"github.com/solatis/medaudit/internal/logger"
	"github.com/solatis/medaudit/internal/types"
)

func newTestAPI(t *testing.T, limiter *RateLimiter) *API {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.MigrateUp(ctx, conn, logger.Nop()))

	q, err := db.LoadQueries(conn)
	require.NoError(t, err)

	svc, _, err := compliance.New(ctx, q, compliance.Options{}, logger.Nop())
	require.NoError(t, err)

	return NewAPI(svc.Rules, svc.Scorer, svc.Tracker, limiter, logger.Nop())
}

func do(t *testing.T, api *API, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	api.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var missingName = map[string]any{
	"name":          "Nombre del paciente requerido",
	"severityLevel": "CRITICAL",
	"points":        25,
	"conditions": []map[string]any{
		{"fieldPath": "paciente.nombre", "operator": "is_empty"},
	},
	"affectedFields": []string{"paciente.nombre"},
}

func createRule(t *testing.T, api *API) compliance.MutationResult {
	t.Helper()
	rec := do(t, api, http.MethodPost, "/api/v1/rules", missingName,
		"X-Changed-By", "auditor@example.com", "X-Change-Reason", "new policy")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[compliance.MutationResult](t, rec)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := do(t, api, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["ruleVersion"])
}

func TestRuleLifecycle(t *testing.T) {
	api := newTestAPI(t, nil)

	created := createRule(t, api)
	require.NotNil(t, created.Rule)
	assert.True(t, created.Rule.Active, "active defaults to true")
	assert.True(t, created.NewVersion)
	assert.Equal(t, 2, created.Version.VersionNumber)
	id := string(created.Rule.ID)

	rec := do(t, api, http.MethodGet, "/api/v1/rules/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Nombre del paciente requerido", decode[types.Rule](t, rec).Name)

	rec = do(t, api, http.MethodPatch, "/api/v1/rules/"+id, map[string]any{"points": 30})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[compliance.MutationResult](t, rec)
	assert.Equal(t, 30, updated.Rule.Points)
	assert.Equal(t, 3, updated.Version.VersionNumber)

	rec = do(t, api, http.MethodPost, "/api/v1/rules/"+id+"/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[compliance.MutationResult](t, rec).Rule.Active)

	rec = do(t, api, http.MethodGet, "/api/v1/rules?provider=gnp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Data  []types.Rule `json:"data"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Equal(t, 1, listed.Count, "inactive rules stay listed")
	assert.False(t, listed.Data[0].Active)

	rec = do(t, api, http.MethodDelete, "/api/v1/rules/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, api, http.MethodGet, "/api/v1/rules/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ERR_NOT_FOUND", decode[ErrorResponse](t, rec).Code)
}

func TestCreateRuleRejections(t *testing.T) {
	api := newTestAPI(t, nil)

	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"malformed json", "not an object", "ERR_INVALID_JSON"},
		{"negative points", map[string]any{
			"name": "x", "severityLevel": "CRITICAL", "points": -1,
			"conditions": []map[string]any{{"fieldPath": "a", "operator": "is_empty"}},
		}, "ERR_INVALID_INPUT"},
		{"unknown operator", map[string]any{
			"name": "x", "severityLevel": "CRITICAL", "points": 5,
			"conditions": []map[string]any{{"fieldPath": "a", "operator": "sounds_like"}},
		}, "ERR_INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, api, http.MethodPost, "/api/v1/rules", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestVersionEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := do(t, api, http.MethodGet, "/api/v1/rule-versions/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v1 := decode[types.RuleVersion](t, rec)
	assert.Equal(t, 1, v1.VersionNumber)

	createRule(t, api)

	rec = do(t, api, http.MethodGet, "/api/v1/rule-versions/"+string(v1.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, v1.ContentHash, decode[types.RuleVersion](t, rec).ContentHash)

	rec = do(t, api, http.MethodGet, "/api/v1/rule-versions/"+string(v1.ID)+"/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	check := decode[types.VersionCheck](t, rec)
	assert.True(t, check.Changed)
	assert.Equal(t, 1, check.ChangeCount)
	assert.Equal(t, 2, check.CurrentVersion.VersionNumber)

	rec = do(t, api, http.MethodGet, "/api/v1/rule-versions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, api, http.MethodGet, "/api/v1/rule-versions/"+string(types.NewVersionID()), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangeLogCarriesAttribution(t *testing.T) {
	api := newTestAPI(t, nil)
	createRule(t, api)

	for _, path := range []string{"/api/v1/rule-changes?from=1&to=2", "/api/v1/rule-changes?from=1", "/api/v1/rule-changes?limit=10"} {
		rec := do(t, api, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var body struct {
			Data  []types.RuleChangeLogEntry `json:"data"`
			Count int                        `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, 1, body.Count, path)
		assert.Equal(t, types.ChangeCreated, body.Data[0].ChangeType)
		assert.Equal(t, "auditor@example.com", body.Data[0].ChangedBy)
		assert.Equal(t, "new policy", body.Data[0].ChangeReason)
	}

	rec := do(t, api, http.MethodGet, "/api/v1/rule-changes?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, api, http.MethodGet, "/api/v1/rule-changes?from=3&to=1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScoreEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	doc := map[string]any{"paciente": map[string]any{"nombre": ""}}

	rec := do(t, api, http.MethodPost, "/api/v1/score", map[string]any{"provider": "GNP", "document": doc})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "ERR_NO_RULES", decode[ErrorResponse](t, rec).Code)

	createRule(t, api)

	rec = do(t, api, http.MethodPost, "/api/v1/score", map[string]any{"provider": "GNP", "document": doc})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[types.ScoringResult](t, rec)
	assert.Equal(t, 75, result.FinalScore)
	assert.Equal(t, 2, result.RuleVersionNumber)

	rec = do(t, api, http.MethodPost, "/api/v1/score/recalculate", map[string]any{
		"provider": "GNP", "document": doc, "previousScore": 90,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result = decode[types.ScoringResult](t, rec)
	assert.Equal(t, 90, result.PreviousScore)
	assert.Equal(t, -15, result.Delta)

	rec = do(t, api, http.MethodPost, "/api/v1/score/recalculate", map[string]any{"document": doc})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, prev := range []int{-5, 101} {
		rec = do(t, api, http.MethodPost, "/api/v1/score/recalculate", map[string]any{
			"provider": "GNP", "document": doc, "previousScore": prev,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "previousScore %d", prev)
		assert.Equal(t, "ERR_INVALID_INPUT", decode[ErrorResponse](t, rec).Code)
	}

	rec = do(t, api, http.MethodPost, "/api/v1/score", map[string]any{"provider": "GNP"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, NewRateLimiter(1, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, api, http.MethodGet, "/api/v1/rule-versions/current", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rec := do(t, api, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not rate limited")
}
