package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"squad_recommender/internal/app"
	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/domain/squad"
	"squad_recommender/internal/infra/catalog"
	idb "squad_recommender/internal/infra/database"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

type settingsBody struct {
	ActiveDays    []string `json:"active_days"`
	Difficulty    string   `json:"difficulty"`
	CustomMinTier int      `json:"custom_min_tier,omitempty"`
	CustomMaxTier int      `json:"custom_max_tier,omitempty"`
	IncludeTags   []string `json:"include_tags"`
	ProblemCount  int      `json:"problem_count"`
}

type problemBody struct {
	Position   int    `json:"position"`
	ExternalID int    `json:"external_id"`
	Title      string `json:"title"`
	Tier       int    `json:"tier"`
}

type deliveryBody struct {
	ID       int64      `json:"id"`
	MemberID int64      `json:"member_id"`
	Status   string     `json:"status"`
	SentAt   *time.Time `json:"sent_at,omitempty"`
}

type batchBody struct {
	ID         int64          `json:"id"`
	ScopeKey   string         `json:"scope_key"`
	Trigger    string         `json:"trigger"`
	CycleStart time.Time      `json:"cycle_start"`
	CreatedAt  time.Time      `json:"created_at"`
	Problems   []problemBody  `json:"problems"`
	Deliveries []deliveryBody `json:"deliveries"`
}

type solvedRequest struct {
	SolvedAt *time.Time `json:"solved_at"`
}

type recordBody struct {
	ID        int64      `json:"id"`
	MemberID  int64      `json:"member_id"`
	BatchID   int64      `json:"batch_id"`
	ProblemID int64      `json:"problem_id"`
	SolvedAt  *time.Time `json:"solved_at,omitempty"`
}

func newSettingsBody(s squad.Settings) settingsBody {
	days := s.ActiveDays.Days()
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()[:3]
	}
	tags := s.Tags()
	return settingsBody{
		ActiveDays:    names,
		Difficulty:    string(s.Difficulty),
		CustomMinTier: s.CustomMinTier,
		CustomMaxTier: s.CustomMaxTier,
		IncludeTags:   tags,
		ProblemCount:  s.Count(),
	}
}

func (b settingsBody) toSettings() (squad.Settings, error) {
	days, err := squad.ParseWeekdays(b.ActiveDays)
	if err != nil {
		return squad.Settings{}, err
	}
	return squad.Settings{
		ActiveDays:    days,
		Difficulty:    squad.Difficulty(b.Difficulty),
		CustomMinTier: b.CustomMinTier,
		CustomMaxTier: b.CustomMaxTier,
		IncludeTags:   b.IncludeTags,
		ProblemCount:  b.ProblemCount,
	}, nil
}

func newDeliveryBodies(deliveries []*mission.MemberDelivery) []deliveryBody {
	out := make([]deliveryBody, 0, len(deliveries))
	for _, d := range deliveries {
		db := deliveryBody{ID: d.ID, MemberID: d.MemberID, Status: string(d.Status)}
		if d.SentAt.Valid {
			t := d.SentAt.Time
			db.SentAt = &t
		}
		out = append(out, db)
	}
	return out
}

func newBatchBody(b *mission.Batch) batchBody {
	problems := make([]problemBody, 0, len(b.Problems))
	for _, p := range b.Problems {
		problems = append(problems, problemBody{Position: p.Position, ExternalID: p.ExternalID, Title: p.Title, Tier: p.Tier})
	}
	return batchBody{
		ID:         b.ID,
		ScopeKey:   b.ScopeKey,
		Trigger:    string(b.Trigger),
		CycleStart: b.CycleStart,
		CreatedAt:  b.CreatedAt,
		Problems:   problems,
		Deliveries: newDeliveryBodies(b.Deliveries),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return v, nil
}

func scopeIDs(r *http.Request) (int64, sql.NullInt64, error) {
	teamID, err := pathInt(r, "teamID")
	if err != nil {
		return 0, sql.NullInt64{}, err
	}
	if chi.URLParam(r, "squadID") == "" {
		return teamID, sql.NullInt64{}, nil
	}
	squadID, err := pathInt(r, "squadID")
	if err != nil {
		return 0, sql.NullInt64{}, err
	}
	return teamID, sql.NullInt64{Int64: squadID, Valid: true}, nil
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, idb.ErrScopeNotFound),
		errors.Is(err, idb.ErrBatchNotFound),
		errors.Is(err, idb.ErrProblemRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrRecommendationBlockedTime),
		errors.Is(err, app.ErrAlreadyExistsToday):
		return http.StatusConflict
	case errors.Is(err, app.ErrNoVerifiedHandle),
		errors.Is(err, squad.ErrInvalidTierRange),
		errors.Is(err, squad.ErrUnknownDifficulty):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, app.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := h.logger.WithError(err).WithField("path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed")
	} else {
		log.Info("Request rejected")
	}
	writeError(w, status, err.Error())
}

func (h *Handler) loadScope(w http.ResponseWriter, r *http.Request) (*squad.Scope, bool) {
	teamID, squadID, err := scopeIDs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	scope, err := h.scopes.GetScope(r.Context(), teamID, squadID)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return scope, true
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.loadScope(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSettingsBody(scope.Settings))
}

func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.loadScope(w, r)
	if !ok {
		return
	}

	var body settingsBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	settings, err := body.toSettings()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := settings.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	scope.Settings = settings
	if err := h.scopes.SaveSettings(r.Context(), scope); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsBody(scope.Settings))
}

func (h *Handler) handleCreateRecommendation(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.loadScope(w, r)
	if !ok {
		return
	}
	batch, err := h.manual.CreateManual(r.Context(), scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBatchBody(batch))
}

func (h *Handler) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	batchID, err := pathInt(r, "batchID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deliveries, err := h.deliveries.StatusForBatch(r.Context(), batchID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDeliveryBodies(deliveries))
}

func (h *Handler) handleMarkSolved(w http.ResponseWriter, r *http.Request) {
	recordID, err := pathInt(r, "recordID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req solvedRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var solvedAt time.Time
	if req.SolvedAt != nil {
		solvedAt = *req.SolvedAt
	}

	rec, err := h.solves.MarkSolved(r.Context(), recordID, solvedAt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body := recordBody{ID: rec.ID, MemberID: rec.MemberID, BatchID: rec.BatchID, ProblemID: rec.ProblemID}
	if rec.SolvedAt.Valid {
		t := rec.SolvedAt.Time
		body.SolvedAt = &t
	}
	writeJSON(w, http.StatusOK, body)
}
