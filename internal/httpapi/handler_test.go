package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradeleague/pkg/config"
	"tradeleague/pkg/ratelimit"
	"tradeleague/services/competition"
	"tradeleague/services/distribution"
	"tradeleague/services/leaderboard"
	"tradeleague/services/testutil"
)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testAPI struct {
	engine *gin.Engine
	comps  *competition.Service
	boards *leaderboard.Service
	comp   *competition.Competition
}

// memLedger avoids a second database connection in handler tests.
type memLedger struct{ credits map[string]int64 }

func (m *memLedger) Credit(_ context.Context, userID string, points int64, _ string) error {
	m.credits[userID] += points
	return nil
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db := testutil.NewTestDB(t,
		&competition.Competition{}, &competition.PrizeTier{},
		&leaderboard.Participant{}, &leaderboard.TradeAttribution{},
		&distribution.Audit{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{}
	cfg.Engine.LeaderboardTTL = time.Second
	cfg.Engine.RateLimitWindow = time.Minute
	cfg.Engine.RateLimitMax = 1000
	cfg.Engine.DistributionLock = 30 * time.Second

	comps := competition.NewService(competition.ServiceParams{DB: db, Node: node})
	boards := leaderboard.NewService(leaderboard.ServiceParams{
		DB:     db,
		Node:   node,
		Config: cfg,
		Tokens: leaderboard.NewStaticTokenMetadata(),
	})
	dist := distribution.NewService(distribution.ServiceParams{
		DB:     db,
		Node:   node,
		Ledger: &memLedger{credits: make(map[string]int64)},
		Lock:   ratelimit.NewLock(client),
		Config: cfg,
	})

	handler := NewHandler(HandlerParams{
		Competitions: comps,
		Leaderboards: boards,
		Distribution: dist,
		Tasks:        asynq.NewClientFromRedisClient(client),
	})

	engine := gin.New()
	RegisterRoutes(RegisterRoutesParams{
		Engine:  engine,
		Handler: handler,
		Health:  fakeHealth{},
		Limiter: ratelimit.NewLimiter(client, "ratelimit"),
		Config:  cfg,
	})

	comp, err := comps.CreateCompetition(context.Background(), competition.CreateCompetitionInput{
		Name:      "API Cup",
		StartDate: time.Now().Add(-time.Hour),
		EndDate:   time.Now().Add(time.Hour),
		Tiers: []competition.PrizeTier{
			{RankFrom: 1, RankTo: 1, PrizePoints: 100},
			{RankFrom: 2, RankTo: 3, PrizePoints: 50},
		},
	})
	require.NoError(t, err)

	return &testAPI{engine: engine, comps: comps, boards: boards, comp: comp}
}

type fakeHealth struct{}

func (fakeHealth) Liveness(c *gin.Context)  { c.Status(http.StatusOK) }
func (fakeHealth) Readiness(c *gin.Context) { c.Status(http.StatusOK) }

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testAPI) seed(t *testing.T, volumes map[string]float64) {
	t.Helper()
	i := 0
	for user, v := range volumes {
		i++
		_, err := a.boards.Apply(context.Background(), a.comp.ID, competition.Trade{
			UserID: user, TxHash: fmt.Sprintf("tx-%d", i),
			TokenA: "SOL", TokenB: "USDC", USDVolume: v,
			Exchange: "orca", Timestamp: time.Now(),
		})
		require.NoError(t, err)
	}
}

func TestGetLeaderboardEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t, map[string]float64{"alice": 500, "bob": 300})

	w := a.do(t, http.MethodGet, "/v1/competitions/"+a.comp.ID+"/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var board leaderboard.Board
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
	require.Equal(t, 2, board.Total)
	require.Equal(t, "alice", board.Entries[0].UserID)
	require.Equal(t, 1, board.Entries[0].Rank)
}

func TestErrorsMapToHTTPStatus(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/v1/competitions/missing/leaderboard", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/v1/competitions/"+a.comp.ID+"/participants/nobody", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	// distribute before the competition ends
	w = a.do(t, http.MethodPost, "/v1/competitions/"+a.comp.ID+"/distribute",
		map[string]string{"operatorId": "op-1"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// missing operator id
	w = a.do(t, http.MethodPost, "/v1/competitions/"+a.comp.ID+"/distribute", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateCompetitionEndpoint(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/competitions", competition.CreateCompetitionInput{
		Name:      "New Cup",
		StartDate: time.Now(),
		EndDate:   time.Now().Add(time.Hour),
		Tiers:     []competition.PrizeTier{{RankFrom: 1, RankTo: 1, PrizePoints: 10}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodPost, "/v1/competitions", competition.CreateCompetitionInput{
		Name:      "Bad Tiers",
		StartDate: time.Now(),
		EndDate:   time.Now().Add(time.Hour),
		Tiers:     []competition.PrizeTier{{RankFrom: 2, RankTo: 3, PrizePoints: 10}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDistributeEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t, map[string]float64{"alice": 500, "bob": 300})
	require.NoError(t, a.comps.TransitionStatus(context.Background(),
		a.comp.ID, competition.StatusActive, competition.StatusEnded))

	w := a.do(t, http.MethodPost, "/v1/competitions/"+a.comp.ID+"/distribute",
		map[string]string{"operatorId": "op-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var result distribution.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, 2, result.Granted)

	// a second call conflicts
	w = a.do(t, http.MethodPost, "/v1/competitions/"+a.comp.ID+"/distribute",
		map[string]string{"operatorId": "op-1"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodGet, "/v1/competitions/"+a.comp.ID+"/audits", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAnalyticsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t, map[string]float64{"alice": 100, "bob": 300})

	w := a.do(t, http.MethodGet, "/v1/competitions/"+a.comp.ID+"/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var analytics leaderboard.Analytics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analytics))
	require.Equal(t, int64(2), analytics.ParticipantCount)
	require.Equal(t, 400.0, analytics.TotalVolume)
}
