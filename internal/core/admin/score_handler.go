package admin

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"github.com/solatis/medaudit/internal/types"
)

// scoreRequest is the body of both scoring endpoints. Provider overrides
// the document's own "provider" key.
type scoreRequest struct {
	Provider      string         `json:"provider"`
	Document      map[string]any `json:"document"`
	PreviousScore *int           `json:"previousScore,omitempty"`
}

func decodeScoreRequest(w http.ResponseWriter, r *http.Request) (scoreRequest, bool) {
	var req scoreRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return req, false
	}
	if req.Document == nil {
		badRequest(w, r, "ERR_INVALID_INPUT", "document is required")
		return req, false
	}
	return req, true
}

// handleScore processes POST /api/v1/score.
func (a *API) handleScore(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeScoreRequest(w, r)
	if !ok {
		return
	}

	result, err := a.scorer.Score(r.Context(), types.NewDocument(req.Document, req.Provider))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

// handleRecalculate processes POST /api/v1/score/recalculate.
func (a *API) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeScoreRequest(w, r)
	if !ok {
		return
	}
	if req.PreviousScore == nil {
		badRequest(w, r, "ERR_INVALID_INPUT", "previousScore is required")
		return
	}
	if *req.PreviousScore < 0 || *req.PreviousScore > types.BaseScore {
		badRequest(w, r, "ERR_INVALID_INPUT", fmt.Sprintf("previousScore must be between 0 and %d", types.BaseScore))
		return
	}

	doc := types.NewDocument(req.Document, req.Provider)
	result, err := a.scorer.Recalculate(r.Context(), doc, *req.PreviousScore)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}
