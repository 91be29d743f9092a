package distribution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tradeleague/pkg/config"
	"tradeleague/pkg/errutil"
	"tradeleague/pkg/ratelimit"
	"tradeleague/pkg/rediskey"
	"tradeleague/services/competition"
	"tradeleague/services/leaderboard"
)

// ========================================================
// Service Definition
// ========================================================

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	ledger  PointLedger
	lock    *ratelimit.Lock
	lockTTL time.Duration
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Ledger PointLedger
	Lock   *ratelimit.Lock
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	ttl := p.Config.Engine.DistributionLock
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		db:      p.DB,
		node:    p.Node,
		ledger:  p.Ledger,
		lock:    p.Lock,
		lockTTL: ttl,
	}
}

// ========================================================
// Distribution
// ========================================================

type ParticipantResult struct {
	UserID      string      `json:"userId"`
	Rank        int         `json:"rank"`
	PrizePoints int64       `json:"prizePoints"`
	TokenAmount float64     `json:"tokenAmount,omitempty"`
	Status      AuditStatus `json:"status"`
	Reason      string      `json:"reason,omitempty"`
}

type Result struct {
	CompetitionID string              `json:"competitionId"`
	Total         int                 `json:"total"`
	Granted       int                 `json:"granted"`
	Skipped       int                 `json:"skipped"`
	Failed        int                 `json:"failed"`
	Participants  []ParticipantResult `json:"participants"`
}

// Distribute pays out the prize tiers of an ENDED competition exactly once.
// The pass takes a redis lock so concurrent operators cannot overlap, walks
// the final ranking, and claims each participant's prize with a guarded
// update before crediting the ledger. One participant failing is recorded
// and does not stop the rest; a completed pass moves the competition to
// PRIZES_DISTRIBUTED even when some participants failed, leaving the audit
// trail as the operator's remediation worklist. A crash mid-pass rolls the
// whole transaction back and a rerun skips anyone whose claim survived.
// Calling Distribute after a completed pass is a conflict with no side
// effects.
func (s *Service) Distribute(ctx context.Context, competitionID, operatorID string) (*Result, error) {
	lockKey := rediskey.BuildDistributionLockKey(competitionID)
	ok, err := s.lock.Acquire(ctx, lockKey, s.lockTTL)
	if err != nil {
		return nil, errutil.Internal("failed to acquire distribution lock", err)
	}
	if !ok {
		return nil, errutil.Conflict("distribution already in progress", nil)
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), lockKey); err != nil {
			zap.L().Warn("failed to release distribution lock",
				zap.String("competition_id", competitionID),
				zap.Error(err),
			)
		}
	}()

	var comp competition.Competition
	err = s.db.WithContext(ctx).
		Preload("Tiers").
		Where("id = ?", competitionID).
		First(&comp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("competition not found", err)
		}
		return nil, errutil.Internal("failed to load competition", err)
	}

	switch comp.Status {
	case competition.StatusEnded:
		// distributable
	case competition.StatusPrizesDistributed:
		return nil, errutil.Conflict("prizes already distributed", nil)
	default:
		return nil, errutil.UnprocessableEntity("competition has not ended", nil)
	}

	result := &Result{CompetitionID: competitionID}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entries, err := leaderboard.RankEntries(tx, competitionID)
		if err != nil {
			return err
		}
		result.Total = len(entries)

		// persist the authoritative final ranks
		for _, e := range entries {
			err := tx.Model(&leaderboard.Participant{}).
				Where("competition_id = ? AND user_id = ?", competitionID, e.UserID).
				Update("rank", e.Rank).Error
			if err != nil {
				return err
			}
		}

		for _, e := range entries {
			pr := s.distributeOne(ctx, tx, &comp, e, operatorID)
			result.Participants = append(result.Participants, pr)
			switch pr.Status {
			case AuditGranted:
				result.Granted++
			case AuditFailed:
				result.Failed++
			case AuditSkipped:
				result.Skipped++
			}
		}

		res := tx.Model(&competition.Competition{}).
			Where("id = ? AND status = ?", competitionID, competition.StatusEnded).
			Update("status", competition.StatusPrizesDistributed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("competition status changed during distribution", nil)
		}
		return nil
	})
	if err != nil {
		if errutil.StatusOf(err) != errutil.StatusUnknown {
			return nil, err
		}
		return nil, errutil.Internal("distribution failed", err)
	}

	zap.L().Info("prizes distributed",
		zap.String("competition_id", competitionID),
		zap.String("operator_id", operatorID),
		zap.Int("total", result.Total),
		zap.Int("granted", result.Granted),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

func (s *Service) distributeOne(ctx context.Context, tx *gorm.DB, comp *competition.Competition, e leaderboard.Entry, operatorID string) ParticipantResult {
	pr := ParticipantResult{UserID: e.UserID, Rank: e.Rank}

	prize := ResolvePrize(e.Rank, comp.Tiers)
	if prize == nil {
		pr.Status = AuditNoPrize
		s.writeAudit(tx, comp.ID, e, pr, operatorID)
		return pr
	}
	pr.PrizePoints = prize.Points
	pr.TokenAmount = prize.TokenAmount

	// claim before paying; a claimed row means a previous pass already paid
	res := tx.Model(&leaderboard.Participant{}).
		Where("competition_id = ? AND user_id = ? AND prize_claimed = ?", comp.ID, e.UserID, false).
		Updates(map[string]interface{}{
			"prize_claimed": true,
			"claimed_at":    time.Now(),
		})
	if res.Error != nil {
		pr.Status = AuditFailed
		pr.Reason = res.Error.Error()
		s.writeAudit(tx, comp.ID, e, pr, operatorID)
		return pr
	}
	if res.RowsAffected == 0 {
		pr.Status = AuditSkipped
		pr.Reason = "prize already claimed"
		s.writeAudit(tx, comp.ID, e, pr, operatorID)
		return pr
	}

	reference := fmt.Sprintf("competition:%s:user:%s", comp.ID, e.UserID)
	if err := s.ledger.Credit(ctx, e.UserID, prize.Points, reference); err != nil {
		// release the claim so a later pass can retry this participant
		tx.Model(&leaderboard.Participant{}).
			Where("competition_id = ? AND user_id = ?", comp.ID, e.UserID).
			Updates(map[string]interface{}{"prize_claimed": false, "claimed_at": nil})

		zap.L().Error("prize credit failed",
			zap.String("competition_id", comp.ID),
			zap.String("user_id", e.UserID),
			zap.Error(err),
		)
		pr.Status = AuditFailed
		pr.Reason = err.Error()
		s.writeAudit(tx, comp.ID, e, pr, operatorID)
		return pr
	}

	pr.Status = AuditGranted
	s.writeAudit(tx, comp.ID, e, pr, operatorID)
	return pr
}

func (s *Service) writeAudit(tx *gorm.DB, competitionID string, e leaderboard.Entry, pr ParticipantResult, operatorID string) {
	detail, _ := json.Marshal(map[string]interface{}{
		"totalVolume": e.TotalVolume,
		"tradeCount":  e.TradeCount,
	})

	audit := Audit{
		ID:            s.node.Generate().String(),
		CompetitionID: competitionID,
		UserID:        e.UserID,
		Rank:          e.Rank,
		PrizePoints:   pr.PrizePoints,
		TokenAmount:   pr.TokenAmount,
		Status:        pr.Status,
		Reason:        pr.Reason,
		OperatorID:    operatorID,
		Detail:        datatypes.JSON(detail),
	}
	if err := tx.Create(&audit).Error; err != nil {
		zap.L().Error("failed to write distribution audit",
			zap.String("competition_id", competitionID),
			zap.String("user_id", e.UserID),
			zap.Error(err),
		)
	}
}

// ListAudits returns the audit trail of a competition's distribution passes.
func (s *Service) ListAudits(ctx context.Context, competitionID string) ([]Audit, error) {
	var audits []Audit
	err := s.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Order("created_at ASC, rank ASC").
		Find(&audits).Error
	if err != nil {
		return nil, errutil.Internal("failed to list distribution audits", err)
	}
	return audits, nil
}
