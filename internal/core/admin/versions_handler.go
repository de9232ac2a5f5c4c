package admin

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/solatis/medaudit/internal/types"
)

// maxChangeLimit caps ?limit on the change log.
const maxChangeLimit = 500

// handleCurrentVersion processes GET /api/v1/rule-versions/current.
func (a *API) handleCurrentVersion(w http.ResponseWriter, r *http.Request) {
	v, err := a.versions.Current(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, v)
}

// handleGetVersion processes GET /api/v1/rule-versions/{id}.
func (a *API) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := versionID(w, r)
	if !ok {
		return
	}
	v, err := a.versions.GetByID(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, v)
}

// handleCheckVersion processes GET /api/v1/rule-versions/{id}/check: has
// the rule set changed since a score was computed under version {id}.
func (a *API) handleCheckVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := versionID(w, r)
	if !ok {
		return
	}
	check, err := a.scorer.Staleness(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, check)
}

// handleListChanges processes GET /api/v1/rule-changes. With from/to it
// returns entries in (from, to]; otherwise the newest ?limit entries.
func (a *API) handleListChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		entries []types.RuleChangeLogEntry
		err     error
	)
	if q.Has("from") || q.Has("to") {
		from, perr := parseOptionalInt(r, "from", 0)
		if perr != nil {
			badRequest(w, r, "ERR_INVALID_QUERY_PARAM", perr.Error())
			return
		}
		to, perr := parseOptionalInt(r, "to", 0)
		if perr != nil {
			badRequest(w, r, "ERR_INVALID_QUERY_PARAM", perr.Error())
			return
		}
		if !q.Has("to") {
			cur, cerr := a.versions.Current(r.Context())
			if cerr != nil {
				a.writeError(w, r, cerr)
				return
			}
			to = cur.VersionNumber
		}
		entries, err = a.versions.ListChangesBetween(r.Context(), from, to)
	} else {
		limit, perr := parseOptionalInt(r, "limit", 50)
		if perr != nil {
			badRequest(w, r, "ERR_INVALID_QUERY_PARAM", perr.Error())
			return
		}
		entries, err = a.versions.RecentChangeLog(r.Context(), min(max(limit, 1), maxChangeLimit))
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]any{"data": entries, "count": len(entries)})
}

func versionID(w http.ResponseWriter, r *http.Request) (types.VersionID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := types.ParseVersionID(raw)
	if err != nil {
		badRequest(w, r, "ERR_INVALID_INPUT", fmt.Sprintf("invalid version id %q", raw))
		return "", false
	}
	return id, true
}

// parseOptionalInt extracts an integer from the query string.
// Missing returns defaultValue; malformed returns an error.
func parseOptionalInt(r *http.Request, key string, defaultValue int) (int, error) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return val, nil
}
