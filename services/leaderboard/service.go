package leaderboard

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeleague/pkg/config"
	"tradeleague/pkg/errutil"
	"tradeleague/services/competition"
)

// ApplyOutcome tells the caller whether a trade changed the board.
type ApplyOutcome string

const (
	OutcomeAttributed        ApplyOutcome = "ATTRIBUTED"
	OutcomeAlreadyAttributed ApplyOutcome = "ALREADY_ATTRIBUTED"
)

var errAlreadyAttributed = errors.New("trade already attributed")

// ========================================================
// Service Definition
// ========================================================

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	cache  *Cache
	tokens TokenMetadata
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Tokens TokenMetadata
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		cache:  NewCache(p.Config.Engine.LeaderboardTTL),
		tokens: p.Tokens,
	}
}

// ========================================================
// Trade Attribution
// ========================================================

// Apply counts a trade toward one competition. The attribution insert and the
// participant aggregate update commit atomically; a replayed trade leaves
// both untouched. The (competition_id, trade_id) unique index is the
// authority on duplicates, so two racing deliveries cannot both count.
func (s *Service) Apply(ctx context.Context, competitionID string, t competition.Trade) (ApplyOutcome, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing TradeAttribution
		err := tx.Where("competition_id = ? AND trade_id = ?", competitionID, t.TxHash).
			First(&existing).Error
		if err == nil {
			return errAlreadyAttributed
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		attribution := TradeAttribution{
			ID:            s.node.Generate().String(),
			CompetitionID: competitionID,
			TradeID:       t.TxHash,
			UserID:        t.UserID,
			USDVolume:     t.USDVolume,
			TokenA:        t.TokenA,
			TokenB:        t.TokenB,
			Exchange:      t.Exchange,
			TradedAt:      t.Timestamp,
		}
		if err := tx.Create(&attribution).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyAttributed
			}
			return err
		}

		now := time.Now()
		p := Participant{
			ID:            s.node.Generate().String(),
			CompetitionID: competitionID,
			UserID:        t.UserID,
			TotalVolume:   t.USDVolume,
			TradeCount:    1,
			JoinedAt:      now,
			LastTradeAt:   &t.Timestamp,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "competition_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_volume":  gorm.Expr("total_volume + ?", t.USDVolume),
				"trade_count":   gorm.Expr("trade_count + 1"),
				"last_trade_at": t.Timestamp,
				"updated_at":    now,
			}),
		}).Create(&p).Error
	})

	if errors.Is(err, errAlreadyAttributed) {
		zap.L().Debug("trade already attributed",
			zap.String("competition_id", competitionID),
			zap.String("trade_id", t.TxHash),
		)
		return OutcomeAlreadyAttributed, nil
	}
	if err != nil {
		return "", errutil.Internal("failed to attribute trade", err)
	}

	s.cache.Invalidate(competitionID)

	zap.L().Info("trade attributed",
		zap.String("competition_id", competitionID),
		zap.String("trade_id", t.TxHash),
		zap.String("user_id", t.UserID),
		zap.Float64("usd_volume", t.USDVolume),
		zap.String("trace_id", trace.SpanFromContext(ctx).SpanContext().TraceID().String()),
	)

	return OutcomeAttributed, nil
}

// ========================================================
// Read Side
// ========================================================

type Board struct {
	CompetitionID string     `json:"competitionId"`
	Status        string     `json:"status"`
	Token         *TokenInfo `json:"token,omitempty"`
	Entries       []Entry    `json:"entries"`
	Total         int        `json:"total"`
	Limit         int        `json:"limit"`
	Offset        int        `json:"offset"`
}

func (s *Service) GetLeaderboard(ctx context.Context, competitionID string, limit, offset int) (*Board, error) {
	comp, err := s.loadCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.cache.GetOrCompute(competitionID, func() ([]Entry, error) {
		return RankEntries(s.db.WithContext(ctx), competitionID)
	})
	if err != nil {
		return nil, errutil.Internal("failed to compute leaderboard", err)
	}

	total := len(entries)
	if offset > total {
		offset = total
	}
	hi := offset + limit
	if hi > total {
		hi = total
	}

	board := &Board{
		CompetitionID: competitionID,
		Status:        string(comp.Status),
		Entries:       entries[offset:hi],
		Total:         total,
		Limit:         limit,
		Offset:        offset,
	}

	if comp.EligibleToken != competition.WildcardAll {
		info, err := s.tokens.Lookup(ctx, comp.EligibleToken)
		if err != nil {
			// Display metadata is best-effort; the board itself still serves.
			zap.L().Warn("token metadata lookup failed",
				zap.String("token", comp.EligibleToken),
				zap.Error(err),
			)
		} else {
			board.Token = info
		}
	}

	return board, nil
}

type UserStats struct {
	CompetitionID string     `json:"competitionId"`
	UserID        string     `json:"userId"`
	Rank          int        `json:"rank"`
	TotalVolume   float64    `json:"totalVolume"`
	TradeCount    int64      `json:"tradeCount"`
	JoinedAt      time.Time  `json:"joinedAt"`
	LastTradeAt   *time.Time `json:"lastTradeAt,omitempty"`
}

func (s *Service) GetUserStats(ctx context.Context, competitionID, userID string) (*UserStats, error) {
	if _, err := s.loadCompetition(ctx, competitionID); err != nil {
		return nil, err
	}

	var p Participant
	err := s.db.WithContext(ctx).
		Where("competition_id = ? AND user_id = ?", competitionID, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("participant not found", err)
		}
		return nil, errutil.Internal("failed to load participant", err)
	}

	stats := &UserStats{
		CompetitionID: competitionID,
		UserID:        userID,
		TotalVolume:   p.TotalVolume,
		TradeCount:    p.TradeCount,
		JoinedAt:      p.JoinedAt,
		LastTradeAt:   p.LastTradeAt,
	}

	entries, err := s.cache.GetOrCompute(competitionID, func() ([]Entry, error) {
		return RankEntries(s.db.WithContext(ctx), competitionID)
	})
	if err != nil {
		return nil, errutil.Internal("failed to compute leaderboard", err)
	}
	for _, e := range entries {
		if e.UserID == userID {
			stats.Rank = e.Rank
			break
		}
	}

	return stats, nil
}

type Analytics struct {
	CompetitionID    string  `json:"competitionId"`
	ParticipantCount int64   `json:"participantCount"`
	TotalVolume      float64 `json:"totalVolume"`
	TotalTrades      int64   `json:"totalTrades"`
	AverageVolume    float64 `json:"averageVolume"`
}

func (s *Service) GetAnalytics(ctx context.Context, competitionID string) (*Analytics, error) {
	if _, err := s.loadCompetition(ctx, competitionID); err != nil {
		return nil, err
	}

	var row struct {
		ParticipantCount int64
		TotalVolume      float64
		TotalTrades      int64
	}
	err := s.db.WithContext(ctx).
		Model(&Participant{}).
		Select("COUNT(*) AS participant_count, COALESCE(SUM(total_volume), 0) AS total_volume, COALESCE(SUM(trade_count), 0) AS total_trades").
		Where("competition_id = ?", competitionID).
		Scan(&row).Error
	if err != nil {
		return nil, errutil.Internal("failed to aggregate analytics", err)
	}

	a := &Analytics{
		CompetitionID:    competitionID,
		ParticipantCount: row.ParticipantCount,
		TotalVolume:      row.TotalVolume,
		TotalTrades:      row.TotalTrades,
	}
	if a.ParticipantCount > 0 {
		a.AverageVolume = a.TotalVolume / float64(a.ParticipantCount)
	}

	return a, nil
}

// Recalculate recomputes ranks from the aggregates and persists them on the
// participant rows, then drops the cached board.
func (s *Service) Recalculate(ctx context.Context, competitionID string) error {
	if _, err := s.loadCompetition(ctx, competitionID); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entries, err := RankEntries(tx, competitionID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			err := tx.Model(&Participant{}).
				Where("competition_id = ? AND user_id = ?", competitionID, e.UserID).
				Update("rank", e.Rank).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errutil.Internal("failed to recalculate leaderboard", err)
	}

	s.cache.Invalidate(competitionID)

	zap.L().Info("leaderboard recalculated", zap.String("competition_id", competitionID))
	return nil
}

func (s *Service) loadCompetition(ctx context.Context, id string) (*competition.Competition, error) {
	var c competition.Competition
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("competition not found", err)
		}
		return nil, errutil.Internal("failed to load competition", err)
	}
	return &c, nil
}
