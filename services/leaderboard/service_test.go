package leaderboard

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tradeleague/pkg/config"
	"tradeleague/pkg/errutil"
	"tradeleague/services/competition"
	"tradeleague/services/testutil"
)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	os.Exit(m.Run())
}

type testEnv struct {
	db          *gorm.DB
	svc         *Service
	comps       *competition.Service
	competition *competition.Competition
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t,
		&competition.Competition{}, &competition.PrizeTier{},
		&Participant{}, &TradeAttribution{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Engine.LeaderboardTTL = 30 * time.Second

	comps := competition.NewService(competition.ServiceParams{DB: db, Node: node})
	svc := NewService(ServiceParams{
		DB:     db,
		Node:   node,
		Config: cfg,
		Tokens: NewStaticTokenMetadata(),
	})

	c, err := comps.CreateCompetition(context.Background(), competition.CreateCompetitionInput{
		Name:      "Volume Cup",
		StartDate: time.Now().Add(-time.Hour),
		EndDate:   time.Now().Add(time.Hour),
		Tiers: []competition.PrizeTier{
			{RankFrom: 1, RankTo: 1, PrizePoints: 100},
			{RankFrom: 2, RankTo: 3, PrizePoints: 50},
		},
	})
	require.NoError(t, err)

	return &testEnv{db: db, svc: svc, comps: comps, competition: c}
}

func trade(user, tx string, volume float64) competition.Trade {
	return competition.Trade{
		UserID:    user,
		TxHash:    tx,
		TokenA:    "SOL",
		TokenB:    "USDC",
		USDVolume: volume,
		Exchange:  "orca",
		Timestamp: time.Now(),
	}
}

func TestApplyAggregatesPerUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	outcome, err := env.svc.Apply(ctx, env.competition.ID, trade("alice", "tx-1", 100))
	require.NoError(t, err)
	require.Equal(t, OutcomeAttributed, outcome)

	outcome, err = env.svc.Apply(ctx, env.competition.ID, trade("alice", "tx-2", 150))
	require.NoError(t, err)
	require.Equal(t, OutcomeAttributed, outcome)

	stats, err := env.svc.GetUserStats(ctx, env.competition.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 250.0, stats.TotalVolume)
	require.Equal(t, int64(2), stats.TradeCount)
	require.Equal(t, 1, stats.Rank)
	require.NotNil(t, stats.LastTradeAt)
}

func TestApplyReplayIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	outcome, err := env.svc.Apply(ctx, env.competition.ID, trade("alice", "tx-1", 100))
	require.NoError(t, err)
	require.Equal(t, OutcomeAttributed, outcome)

	// redelivery of the same event
	outcome, err = env.svc.Apply(ctx, env.competition.ID, trade("alice", "tx-1", 100))
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyAttributed, outcome)

	stats, err := env.svc.GetUserStats(ctx, env.competition.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 100.0, stats.TotalVolume)
	require.Equal(t, int64(1), stats.TradeCount)

	var attributions int64
	require.NoError(t, env.db.Model(&TradeAttribution{}).
		Where("competition_id = ?", env.competition.ID).
		Count(&attributions).Error)
	require.Equal(t, int64(1), attributions)
}

func TestApplySameTradeAcrossCompetitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other, err := env.comps.CreateCompetition(ctx, competition.CreateCompetitionInput{
		Name:      "Parallel Cup",
		StartDate: time.Now().Add(-time.Hour),
		EndDate:   time.Now().Add(time.Hour),
		Tiers:     []competition.PrizeTier{{RankFrom: 1, RankTo: 1, PrizePoints: 10}},
	})
	require.NoError(t, err)

	for _, id := range []string{env.competition.ID, other.ID} {
		outcome, err := env.svc.Apply(ctx, id, trade("alice", "tx-1", 100))
		require.NoError(t, err)
		require.Equal(t, OutcomeAttributed, outcome)
	}

	for _, id := range []string{env.competition.ID, other.ID} {
		stats, err := env.svc.GetUserStats(ctx, id, "alice")
		require.NoError(t, err)
		require.Equal(t, 100.0, stats.TotalVolume)
	}
}

func TestRankEntriesTiesShareRankWithGaps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	volumes := map[string]float64{"alice": 500, "bob": 500, "carol": 300, "dave": 100}
	i := 0
	for user, v := range volumes {
		i++
		_, err := env.svc.Apply(ctx, env.competition.ID, trade(user, fmt.Sprintf("tx-%d", i), v))
		require.NoError(t, err)
	}

	entries, err := RankEntries(env.db, env.competition.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	ranks := make(map[string]int, len(entries))
	for _, e := range entries {
		ranks[e.UserID] = e.Rank
	}
	require.Equal(t, map[string]int{"alice": 1, "bob": 1, "carol": 3, "dave": 4}, ranks)
}

func TestRankEntriesExcludesZeroVolume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Apply(ctx, env.competition.ID, trade("alice", "tx-1", 100))
	require.NoError(t, err)
	_, err = env.svc.Apply(ctx, env.competition.ID, trade("ghost", "tx-2", 0))
	require.NoError(t, err)

	entries, err := RankEntries(env.db, env.competition.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "alice", entries[0].UserID)

	// the zero-volume trade is still attributed
	var count int64
	require.NoError(t, env.db.Model(&TradeAttribution{}).
		Where("competition_id = ? AND user_id = ?", env.competition.ID, "ghost").
		Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestGetLeaderboardPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := env.svc.Apply(ctx, env.competition.ID,
			trade(fmt.Sprintf("user-%d", i), fmt.Sprintf("tx-%d", i), float64(i*100)))
		require.NoError(t, err)
	}

	board, err := env.svc.GetLeaderboard(ctx, env.competition.ID, 2, 0)
	require.NoError(t, err)
	require.Equal(t, 5, board.Total)
	require.Len(t, board.Entries, 2)
	require.Equal(t, "user-5", board.Entries[0].UserID)
	require.Equal(t, 1, board.Entries[0].Rank)

	board, err = env.svc.GetLeaderboard(ctx, env.competition.ID, 2, 4)
	require.NoError(t, err)
	require.Len(t, board.Entries, 1)
	require.Equal(t, "user-1", board.Entries[0].UserID)

	board, err = env.svc.GetLeaderboard(ctx, env.competition.ID, 2, 50)
	require.NoError(t, err)
	require.Empty(t, board.Entries)
}

func TestGetLeaderboardReflectsNewTrades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Apply(ctx, env.competition.ID, trade("alice", "tx-1", 100))
	require.NoError(t, err)

	board, err := env.svc.GetLeaderboard(ctx, env.competition.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, board.Entries, 1)

	// a new attribution invalidates the cached board
	_, err = env.svc.Apply(ctx, env.competition.ID, trade("bob", "tx-2", 200))
	require.NoError(t, err)

	board, err = env.svc.GetLeaderboard(ctx, env.competition.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, board.Entries, 2)
	require.Equal(t, "bob", board.Entries[0].UserID)
}

func TestGetUserStatsUnknownParticipant(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.GetUserStats(context.Background(), env.competition.ID, "nobody")
	require.Error(t, err)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestGetAnalytics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Apply(ctx, env.competition.ID, trade("alice", "tx-1", 100))
	require.NoError(t, err)
	_, err = env.svc.Apply(ctx, env.competition.ID, trade("alice", "tx-2", 100))
	require.NoError(t, err)
	_, err = env.svc.Apply(ctx, env.competition.ID, trade("bob", "tx-3", 300))
	require.NoError(t, err)

	a, err := env.svc.GetAnalytics(ctx, env.competition.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), a.ParticipantCount)
	require.Equal(t, 500.0, a.TotalVolume)
	require.Equal(t, int64(3), a.TotalTrades)
	require.Equal(t, 250.0, a.AverageVolume)
}

func TestRecalculatePersistsRanks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Apply(ctx, env.competition.ID, trade("alice", "tx-1", 500))
	require.NoError(t, err)
	_, err = env.svc.Apply(ctx, env.competition.ID, trade("bob", "tx-2", 300))
	require.NoError(t, err)

	require.NoError(t, env.svc.Recalculate(ctx, env.competition.ID))

	var p Participant
	require.NoError(t, env.db.
		Where("competition_id = ? AND user_id = ?", env.competition.ID, "bob").
		First(&p).Error)
	require.Equal(t, 2, p.Rank)
}

func TestUnknownCompetition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.GetLeaderboard(ctx, "missing", 10, 0)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))

	_, err = env.svc.GetAnalytics(ctx, "missing")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))

	err = env.svc.Recalculate(ctx, "missing")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}
