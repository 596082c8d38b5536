package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/wordgroups/internal/api"
	"github.com/mcoot/wordgroups/internal/api/apierr"
	"github.com/mcoot/wordgroups/internal/api/events"
	"github.com/mcoot/wordgroups/internal/api/response"
	"github.com/mcoot/wordgroups/internal/dependencies/mocks"
	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/services/accounts"
	"github.com/mcoot/wordgroups/internal/services/match"
	"github.com/mcoot/wordgroups/internal/services/scoring"
	"github.com/mcoot/wordgroups/internal/testutil"
)

type testServer struct {
	handler  http.Handler
	clock    *mocks.MockClock
	accounts *accounts.Service
	registry *match.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	logger := testutil.NopLogger()
	acc := accounts.New(clk, scoring.New(scoring.DefaultConfig()), logger, accounts.Config{BcryptCost: bcrypt.MinCost})
	reg := match.NewRegistry(clk, mocks.NewMockRandom(), acc, logger, match.DefaultConfig())

	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		Clock:       clk,
		Accounts:    acc,
		Registry:    reg,
		Connections: func() int { return 3 },
	})

	return &testServer{handler: router, clock: clk, accounts: acc, registry: reg}
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.get("/api/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	body := decode[response.HealthResponse](t, rr)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 3, body.Connections)
	assert.Nil(t, body.CurrentGameID)

	ts.registry.Install(testutil.SampleRound(5), time.Minute)
	body = decode[response.HealthResponse](t, ts.get("/api/health"))
	require.NotNil(t, body.CurrentGameID)
	assert.Equal(t, model.RoundID(5), *body.CurrentGameID)
}

func TestLeaderboard(t *testing.T) {
	ts := newTestServer(t)
	ts.accounts.Restore([]model.UserAccount{
		testutil.SampleAccount("alice"),
		testutil.SampleAccount("bob"),
		withScore(testutil.SampleAccount("carol"), 100),
	})

	body := decode[response.LeaderboardResponse](t, ts.get("/api/leaderboard"))
	require.Len(t, body.Rows, 3)
	assert.Equal(t, response.LeaderboardRow{Position: 1, Username: "carol", Score: 100}, body.Rows[0])
	assert.Equal(t, 2, body.Rows[1].Position)
	assert.Equal(t, "alice", body.Rows[1].Username)
	assert.Equal(t, 2, body.Rows[2].Position)

	body = decode[response.LeaderboardResponse](t, ts.get("/api/leaderboard?top=1"))
	assert.Len(t, body.Rows, 1)
}

func TestLeaderboardRejectsBadTop(t *testing.T) {
	ts := newTestServer(t)

	for _, q := range []string{"0", "-2", "many"} {
		rr := ts.get("/api/leaderboard?top=" + q)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		body := decode[apierr.ErrorResponse](t, rr)
		assert.Equal(t, apierr.CodeBadRequest, body.Error.Code)
	}
}

func TestCurrentGame(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.get("/api/games/current")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeNoActiveRound, decode[apierr.ErrorResponse](t, rr).Error.Code)

	m := ts.registry.Install(testutil.SampleRound(1), time.Minute)
	m.Join("alice")
	ts.clock.Advance(15 * time.Second)

	rr = ts.get("/api/games/current")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[response.GameResponse](t, rr)
	assert.Equal(t, model.RoundID(1), body.GameID)
	assert.Equal(t, string(model.MatchStateRunning), body.State)
	assert.Equal(t, int64(45000), body.TimeLeftMs)
	assert.Len(t, body.Grid, 16)
	assert.Empty(t, body.Solution, "solution must stay hidden while the round runs")
	assert.Equal(t, 1, body.Stats.Participants)
}

func TestArchivedGame(t *testing.T) {
	ts := newTestServer(t)

	first := ts.registry.Install(testutil.SampleRound(1), time.Minute)
	first.Join("alice")
	ts.registry.Install(testutil.SampleRound(2), time.Minute)

	rr := ts.get("/api/games/1")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[response.GameResponse](t, rr)
	assert.Equal(t, string(model.MatchStateFinished), body.State)
	assert.Equal(t, testutil.SampleRound(1).Groups, body.Solution)
	assert.Equal(t, 1, body.Stats.TimedOut)

	rr = ts.get("/api/games/2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[response.GameResponse](t, rr).Solution)
}

func TestGameErrors(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.get("/api/games/99")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeRoundNotFound, decode[apierr.ErrorResponse](t, rr).Error.Code)

	rr = ts.get("/api/games/abc")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.get("/api/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeNotFound, decode[apierr.ErrorResponse](t, rr).Error.Code)
}

func TestPanicIsRecovered(t *testing.T) {
	// a nil registry makes the health handler panic
	router := api.NewRouter(api.RouterConfig{Logger: testutil.NopLogger()})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, apierr.CodeInternalError, body.Error.Code)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	ts := newTestServer(t)
	cfg := api.DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	srv := api.NewServer(ts.handler, cfg, testutil.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestEventsRouteRequiresHub(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, ts.get("/api/events").Code)
}

func TestEventStreamThroughMiddleware(t *testing.T) {
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	logger := testutil.NopLogger()
	acc := accounts.New(clk, scoring.New(scoring.DefaultConfig()), logger, accounts.Config{BcryptCost: bcrypt.MinCost})
	hub := events.NewHub(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Logger:   logger,
		Clock:    clk,
		Accounts: acc,
		Registry: match.NewRegistry(clk, mocks.NewMockRandom(), acc, logger, match.DefaultConfig()),
		Events:   hub,
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	hub.Notify(context.Background(), model.Event{Type: model.EventRoundStarted, RoundID: 2, Duration: time.Minute})
	for line != "event: roundStarted\n" {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
	}
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"durationMs":60000`)
}

func withScore(a model.UserAccount, score int) model.UserAccount {
	a.Stats.RankScore = score
	return a
}
