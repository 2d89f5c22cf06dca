package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/clanadmin/internal/api"
	"github.com/mcoot/clanadmin/internal/api/apierr"
	"github.com/mcoot/clanadmin/internal/api/response"
	"github.com/mcoot/clanadmin/internal/config"
	"github.com/mcoot/clanadmin/internal/factory"
	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/services/auth"
	"github.com/mcoot/clanadmin/internal/testutil"
	"github.com/mcoot/clanadmin/internal/wom/womtest"
)

// testServer wires the router over a test app
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	token := auth.GenerateToken()
	hash, err := auth.HashToken(token)
	require.NoError(t, err)

	app, err := factory.NewTestApp(testutil.NopLogger(), func(c *config.Config) {
		c.Auth.StaffTokens = []auth.StaffToken{{Name: "Staff", RSN: "Alice", Hash: hash}}
	})
	require.NoError(t, err)
	t.Cleanup(app.Close)

	ctx := context.Background()
	for _, name := range []string{"Sapphire", "Emerald", "Ruby"} {
		require.NoError(t, app.Storage.CreateRank(ctx, &model.Rank{Name: name, Type: model.RankTypeStandard}))
	}
	app.WOMServer.SetMembers(
		womtest.Member{ID: 1, Name: "Alice", Role: "ruby", Exp: womtest.Int64(5_000_000)},
		womtest.Member{ID: 2, Name: "Bob", Role: "sapphire", Exp: womtest.Int64(1_000)},
	)

	router := api.NewRouter(api.RouterConfig{
		Logger:        testutil.NopLogger(),
		AuthService:   app.AuthService,
		Runner:        app.Runner,
		RosterService: app.RosterService,
	})

	return &testServer{handler: router, app: app, token: token}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// liveSync joins the roster so member routes have data
func (ts *testServer) liveSync(t *testing.T) {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/sync", map[string]bool{"dry_run": false}, ts.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, rr.Body.String())
	resp := decode[apierr.ErrorResponse](t, rr)
	assert.Equal(t, code, resp.Error.Code)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	resp := decode[response.Health](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Running)
}

func TestSyncRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/sync", nil, "")
	assertError(t, rr, http.StatusUnauthorized, apierr.CodeUnauthorized)

	rr = ts.request(http.MethodPost, "/api/v1/sync", nil, "wrong-token")
	assertError(t, rr, http.StatusUnauthorized, apierr.CodeUnauthorized)

	assert.Zero(t, ts.app.WOMServer.TotalRequests())
}

func TestSyncDefaultsToDryRun(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/sync", nil, ts.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[response.SyncResult](t, rr)
	assert.True(t, resp.DryRun)
	assert.Equal(t, "completed", resp.Outcome)
	assert.Equal(t, 2, resp.Counts.New)
	assert.Contains(t, resp.Report, "DRY RUN")

	members, err := ts.app.Storage.ListMembers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestSyncForceDryRunRejected(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/sync", map[string]bool{"dry_run": true, "force": true}, ts.token)
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
	assert.Zero(t, ts.app.WOMServer.TotalRequests())
}

func TestSyncInvalidBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+ts.token)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
}

func TestSyncRosterUnavailableReportsCritical(t *testing.T) {
	ts := newTestServer(t)
	ts.app.WOMServer.FailRoster(true)

	rr := ts.request(http.MethodPost, "/api/v1/sync", nil, ts.token)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[response.SyncResult](t, rr)
	assert.Equal(t, "failed", resp.Outcome)
	assert.Contains(t, resp.Report, "CRITICAL ERROR")
}

func TestMemberInfo(t *testing.T) {
	ts := newTestServer(t)
	ts.liveSync(t)

	rr := ts.request(http.MethodGet, "/api/v1/members/a_l-i.ce", nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[response.Member](t, rr)
	assert.Equal(t, "Alice", resp.RSN)
	assert.Equal(t, "Ruby", resp.Rank)
	assert.Equal(t, "Active", resp.Status)
	assert.Equal(t, []string{}, resp.PastRSNs)
}

func TestMemberNotFound(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/members/Nobody", nil, "")
	assertError(t, rr, http.StatusNotFound, apierr.CodeMemberNotFound)
}

func TestSetRankAttributesStaff(t *testing.T) {
	ts := newTestServer(t)
	ts.liveSync(t)

	rr := ts.request(http.MethodPost, "/api/v1/members/Bob/rank", map[string]string{"rank": "emerald"}, ts.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	change := decode[response.RankChange](t, rr)
	assert.Equal(t, "Sapphire", change.OldRank)
	assert.Equal(t, "Emerald", change.NewRank)

	rr = ts.request(http.MethodGet, "/api/v1/members/bob/rank-history?limit=1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	history := decode[response.RankHistory](t, rr)
	require.Len(t, history.Entries, 1)
	assert.Equal(t, "Alice", history.Entries[0].EnactedBy)
	assert.Equal(t, "Sapphire", history.Entries[0].PreviousRank)
}

func TestSetRankErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.liveSync(t)

	rr := ts.request(http.MethodPost, "/api/v1/members/Bob/rank", map[string]string{"rank": "Dragon"}, ts.token)
	assertError(t, rr, http.StatusNotFound, apierr.CodeRankNotFound)

	rr = ts.request(http.MethodPost, "/api/v1/members/Bob/rank", map[string]string{}, ts.token)
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = ts.request(http.MethodGet, "/api/v1/members/bob/rank-history?limit=-2", nil, "")
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
}

func TestBulkRank(t *testing.T) {
	ts := newTestServer(t)
	ts.liveSync(t)

	rr := ts.request(http.MethodPost, "/api/v1/ranks/bulk", map[string]any{
		"rank": "Ruby",
		"rsns": []string{"Alice", "Bob", "Ghost"},
	}, ts.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[response.BulkResults](t, rr)
	require.Len(t, resp.Results, 3)
	assert.EqualValues(t, "unchanged", resp.Results[0].Status)
	assert.EqualValues(t, "updated", resp.Results[1].Status)
	assert.EqualValues(t, "not_found", resp.Results[2].Status)
}

func TestPoints(t *testing.T) {
	ts := newTestServer(t)
	ts.liveSync(t)

	rr := ts.request(http.MethodPost, "/api/v1/members/Bob/points", map[string]any{"points": 10, "reason": "boss mass"}, ts.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 10, decode[response.Points](t, rr).Balance)

	rr = ts.request(http.MethodPost, "/api/v1/members/Bob/points", map[string]any{"points": 0}, ts.token)
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = ts.request(http.MethodPost, "/api/v1/points/bulk", map[string]any{
		"rsns":   []string{"Alice", "Bob"},
		"points": -3,
		"reason": "correction",
	}, ts.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.request(http.MethodGet, "/api/v1/members/Bob", nil, "")
	assert.Equal(t, 7, decode[response.Member](t, rr).Points)
}

func TestInactivityRoute(t *testing.T) {
	ts := newTestServer(t)
	ts.liveSync(t)

	rr := ts.request(http.MethodPost, "/api/v1/inactivity", nil, ts.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[response.InactivityResult](t, rr)
	assert.Equal(t, 2, resp.Checked)
	assert.Contains(t, resp.Report, "Inactive Members Report")
}

func TestPanicReturnsInternalError(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{Logger: testutil.NopLogger()})

	// A nil runner panics inside the handler
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	body := rr.Body.String()

	assertError(t, rr, http.StatusInternalServerError, apierr.CodeInternalError)
	requestID := rr.Header().Get("X-Request-ID")
	require.NotEmpty(t, requestID)
	assert.Contains(t, body, requestID)
}

func TestExemption(t *testing.T) {
	ts := newTestServer(t)
	ts.liveSync(t)

	rr := ts.request(http.MethodPost, "/api/v1/members/Bob/exemption", map[string]string{"reason": "holiday"}, "")
	assertError(t, rr, http.StatusUnauthorized, apierr.CodeUnauthorized)

	rr = ts.request(http.MethodPost, "/api/v1/members/Bob/exemption", map[string]string{"reason": "holiday"}, ts.token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	exemption := decode[response.Exemption](t, rr)
	assert.Equal(t, "Bob", exemption.RSN)
	assert.Equal(t, "holiday", exemption.Reason)

	rr = ts.request(http.MethodPost, "/api/v1/members/Bob/exemption", nil, ts.token)
	assertError(t, rr, http.StatusConflict, apierr.CodeAlreadyExempt)

	rr = ts.request(http.MethodPost, "/api/v1/members/Ghost/exemption", nil, ts.token)
	assertError(t, rr, http.StatusNotFound, apierr.CodeMemberNotFound)
}

func TestPointsLeaderboard(t *testing.T) {
	ts := newTestServer(t)
	ts.liveSync(t)

	rr := ts.request(http.MethodPost, "/api/v1/points/bulk", map[string]any{"rsns": []string{"Alice", "Bob"}, "points": 5}, ts.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = ts.request(http.MethodPost, "/api/v1/members/Bob/points", map[string]any{"points": 3}, ts.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.request(http.MethodGet, "/api/v1/points/leaderboard", nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	board := decode[response.Leaderboard](t, rr)
	assert.Equal(t, 1, board.TotalPages)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "Bob", board.Entries[0].RSN)
	assert.Equal(t, 8, board.Entries[0].Points)
	assert.Equal(t, 2, board.Entries[1].Position)

	rr = ts.request(http.MethodGet, "/api/v1/points/leaderboard?page=0", nil, "")
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
}
