package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"squad_recommender/internal/app"
	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/domain/squad"
	"squad_recommender/internal/infra/catalog"
	idb "squad_recommender/internal/infra/database"
	"squad_recommender/internal/infra/ratelimit"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScopes struct {
	scopes map[string]*squad.Scope
	saved  *squad.Scope
}

func (s *stubScopes) GetScope(_ context.Context, teamID int64, squadID sql.NullInt64) (*squad.Scope, error) {
	key := (&squad.Scope{TeamID: teamID, SquadID: squadID}).Key()
	scope, ok := s.scopes[key]
	if !ok {
		return nil, idb.ErrScopeNotFound
	}
	cp := *scope
	return &cp, nil
}

func (s *stubScopes) SaveSettings(_ context.Context, scope *squad.Scope) error {
	s.saved = scope
	return nil
}

type stubManual struct {
	err   error
	actor string
	scope *squad.Scope
}

func (m *stubManual) CreateManual(ctx context.Context, scope *squad.Scope) (*mission.Batch, error) {
	m.actor = ratelimit.ActorFrom(ctx)
	m.scope = scope
	if m.err != nil {
		return nil, m.err
	}
	return &mission.Batch{
		ID:       11,
		ScopeKey: scope.Key(),
		Trigger:  mission.TriggerManual,
		Problems: []mission.BatchProblem{{Position: 1, ExternalID: 1000, Title: "A+B", Tier: 1}},
		Deliveries: []*mission.MemberDelivery{
			{ID: 1, MemberID: 5, Status: mission.DeliverySent, SentAt: sql.NullTime{Time: time.Unix(1715760000, 0), Valid: true}},
		},
	}, nil
}

type stubDeliveries struct{}

func (stubDeliveries) StatusForBatch(_ context.Context, batchID int64) ([]*mission.MemberDelivery, error) {
	if batchID != 11 {
		return nil, idb.ErrBatchNotFound
	}
	return []*mission.MemberDelivery{
		{ID: 1, MemberID: 5, BatchID: 11, Status: mission.DeliverySent},
		{ID: 2, MemberID: 6, BatchID: 11, Status: mission.DeliveryFailed},
	}, nil
}

type stubSolves struct{ got time.Time }

func (s *stubSolves) MarkSolved(_ context.Context, recordID int64, solvedAt time.Time) (*mission.ProblemRecord, error) {
	if recordID != 3 {
		return nil, idb.ErrProblemRecordNotFound
	}
	s.got = solvedAt
	if solvedAt.IsZero() {
		solvedAt = time.Unix(1715760000, 0)
	}
	return &mission.ProblemRecord{ID: 3, MemberID: 5, BatchID: 11, ProblemID: 1000, SolvedAt: sql.NullTime{Time: solvedAt, Valid: true}}, nil
}

type fixture struct {
	scopes *stubScopes
	manual *stubManual
	solves *stubSolves
	server *httptest.Server
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	return newFixtureBehindProxy(t, token, false)
}

func newFixtureBehindProxy(t *testing.T, token string, trustProxy bool) *fixture {
	t.Helper()
	f := &fixture{
		scopes: &stubScopes{scopes: map[string]*squad.Scope{
			"team:1": {TeamID: 1, Name: "Team", Settings: squad.Settings{
				ActiveDays: squad.NewWeekdays(time.Monday, time.Wednesday), Difficulty: squad.DifficultyNormal, ProblemCount: 3,
			}},
			"team:1/squad:2": {TeamID: 1, SquadID: sql.NullInt64{Int64: 2, Valid: true}, Name: "Squad"},
		}},
		manual: &stubManual{},
		solves: &stubSolves{},
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	h := NewHandler(f.scopes, f.manual, stubDeliveries{}, f.solves, token, trustProxy, logrus.NewEntry(l))
	f.server = httptest.NewServer(h.Router())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, header map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded any
	require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	if m, ok := decoded.(map[string]any); ok {
		return resp, m
	}
	return resp, map[string]any{"items": decoded}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "secret")
	resp, body := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAdminTokenRequired(t *testing.T) {
	f := newFixture(t, "secret")
	resp, _ := f.do(t, http.MethodPost, "/teams/1/recommendations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/teams/1/recommendations", "", map[string]string{AdminTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/teams/1/recommendations", "", map[string]string{AdminTokenHeader: "secret"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCreateRecommendation(t *testing.T) {
	f := newFixture(t, "")
	resp, body := f.do(t, http.MethodPost, "/teams/1/squads/2/recommendations", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, "team:1/squad:2", body["scope_key"])
	assert.Equal(t, "MANUAL", body["trigger"])
	problems := body["problems"].([]any)
	require.Len(t, problems, 1)
	assert.Equal(t, float64(1000), problems[0].(map[string]any)["external_id"])
	deliveries := body["deliveries"].([]any)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "SENT", deliveries[0].(map[string]any)["status"])
	assert.True(t, strings.HasPrefix(f.manual.actor, "http:"), f.manual.actor)
}

func TestCreateRecommendationErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{app.ErrRecommendationBlockedTime, http.StatusConflict},
		{app.ErrAlreadyExistsToday, http.StatusConflict},
		{app.ErrNoVerifiedHandle, http.StatusUnprocessableEntity},
		{fmt.Errorf("scope settings: %w", squad.ErrInvalidTierRange), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: %w", app.ErrCatalogUnavailable, catalog.ErrRateLimited), http.StatusTooManyRequests},
		{fmt.Errorf("%w: timeout", app.ErrCatalogUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		f := newFixture(t, "")
		f.manual.err = tc.err
		resp, body := f.do(t, http.MethodPost, "/teams/1/recommendations", "", nil)
		assert.Equal(t, tc.code, resp.StatusCode, tc.err.Error())
		assert.NotEmpty(t, body["error"])
	}
}

func TestUnknownScopeAndBadIDs(t *testing.T) {
	f := newFixture(t, "")
	resp, _ := f.do(t, http.MethodPost, "/teams/9/recommendations", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/teams/abc/recommendations", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/batches/x/deliveries", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newFixture(t, "")
	resp, body := f.do(t, http.MethodGet, "/teams/1/settings", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"Mon", "Wed"}, body["active_days"])
	assert.Equal(t, "NORMAL", body["difficulty"])

	put := `{"active_days":["Wed"],"difficulty":"CUSTOM","custom_min_tier":5,"custom_max_tier":12,"include_tags":["DP"],"problem_count":20}`
	resp, body = f.do(t, http.MethodPut, "/teams/1/squads/2/settings", put, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, f.scopes.saved)
	assert.Equal(t, squad.Weekdays(0b0001000), f.scopes.saved.Settings.ActiveDays)
	assert.Equal(t, float64(10), body["problem_count"])
	assert.Equal(t, []any{"dp"}, body["include_tags"])
}

func TestSettingsRejectsInvalidRange(t *testing.T) {
	f := newFixture(t, "")
	put := `{"active_days":["Wed"],"difficulty":"CUSTOM","custom_min_tier":15,"custom_max_tier":5,"problem_count":3}`
	resp, _ := f.do(t, http.MethodPut, "/teams/1/settings", put, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Nil(t, f.scopes.saved)

	resp, _ = f.do(t, http.MethodPut, "/teams/1/settings", `{"active_days":["Someday"],"difficulty":"EASY"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/teams/1/settings", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListDeliveries(t *testing.T) {
	f := newFixture(t, "")
	resp, body := f.do(t, http.MethodGet, "/batches/11/deliveries", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "FAILED", items[1].(map[string]any)["status"])

	resp, _ = f.do(t, http.MethodGet, "/batches/12/deliveries", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMarkSolved(t *testing.T) {
	f := newFixture(t, "")
	resp, body := f.do(t, http.MethodPost, "/problem-records/3/solved", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, f.solves.got.IsZero())
	assert.NotEmpty(t, body["solved_at"])

	resp, _ = f.do(t, http.MethodPost, "/problem-records/3/solved", `{"solved_at":"2024-05-15T10:00:00+09:00"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2024, f.solves.got.Year())

	resp, _ = f.do(t, http.MethodPost, "/problem-records/4/solved", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestActor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "http:10.1.2.3", RequestActor(r))
	r.RemoteAddr = "weird"
	assert.Equal(t, "http:weird", RequestActor(r))
}

func TestForwardedHeadersDoNotChooseActor(t *testing.T) {
	spoofed := map[string]string{"X-Forwarded-For": "203.0.113.9", "X-Real-IP": "203.0.113.9"}

	f := newFixture(t, "")
	resp, _ := f.do(t, http.MethodPost, "/teams/1/recommendations", "", spoofed)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "http:127.0.0.1", f.manual.actor)

	proxied := newFixtureBehindProxy(t, "", true)
	resp, _ = proxied.do(t, http.MethodPost, "/teams/1/recommendations", "", spoofed)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "http:203.0.113.9", proxied.manual.actor)
}
