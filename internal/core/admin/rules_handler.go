package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/solatis/medaudit/internal/types"
)

const defaultChangedBy = "admin-api"

// changeContext reads audit attribution from the request headers.
func changeContext(r *http.Request) types.ChangeContext {
	cc := types.ChangeContext{
		ChangedBy:    strings.TrimSpace(r.Header.Get("X-Changed-By")),
		ChangeReason: strings.TrimSpace(r.Header.Get("X-Change-Reason")),
	}
	if cc.ChangedBy == "" {
		cc.ChangedBy = defaultChangedBy
	}
	return cc
}

// createRuleRequest is a rule whose active flag defaults to true when
// omitted.
type createRuleRequest struct {
	types.Rule
	Active *bool `json:"active"`
}

func ruleID(r *http.Request) types.RuleID {
	return types.RuleID(chi.URLParam(r, "id"))
}

// handleListRules processes GET /api/v1/rules?provider=.
func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	ruleSet, err := a.rules.List(r.Context(), r.URL.Query().Get("provider"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]any{"data": ruleSet, "count": len(ruleSet)})
}

// handleGetRule processes GET /api/v1/rules/{id}.
func (a *API) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := a.rules.Get(r.Context(), ruleID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, rule)
}

// handleCreateRule processes POST /api/v1/rules. The response carries the
// stored rule and the resulting rule-set version.
func (a *API) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}
	rule := req.Rule
	rule.Active = req.Active == nil || *req.Active

	res, err := a.rules.Create(r.Context(), rule, changeContext(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, res)
}

// handleUpdateRule processes PATCH /api/v1/rules/{id}.
func (a *API) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var patch types.RulePatch
	if err := render.DecodeJSON(r.Body, &patch); err != nil {
		badRequest(w, r, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}

	res, err := a.rules.Update(r.Context(), ruleID(r), patch, changeContext(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, res)
}

// handleSetActive processes POST /api/v1/rules/{id}/activate and /deactivate.
func (a *API) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := a.rules.SetActive(r.Context(), ruleID(r), active, changeContext(r))
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, res)
	}
}

// handleDeleteRule processes DELETE /api/v1/rules/{id}.
func (a *API) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	res, err := a.rules.Delete(r.Context(), ruleID(r), changeContext(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, res)
}
