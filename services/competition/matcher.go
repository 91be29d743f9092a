package competition

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Matcher resolves which competitions a completed trade counts toward.
type Matcher struct {
	db *gorm.DB
}

type MatcherParams struct {
	fx.In

	DB *gorm.DB
}

func NewMatcher(p MatcherParams) *Matcher {
	return &Matcher{db: p.DB}
}

// MatchTrade returns every ACTIVE competition whose time window contains the
// trade timestamp (bounds inclusive) and whose eligibility fields accept the
// trade. A competition with the wildcard token or exchange matches anything;
// a wildcard-named token in the trade itself is treated as a plain value.
func (m *Matcher) MatchTrade(ctx context.Context, t Trade) ([]Competition, error) {
	var matches []Competition
	err := m.db.WithContext(ctx).
		Preload("Tiers").
		Where("status = ?", StatusActive).
		Where("start_date <= ? AND end_date >= ?", t.Timestamp, t.Timestamp).
		Where("eligible_token = ? OR eligible_token IN ?", WildcardAll, []string{t.TokenA, t.TokenB}).
		Where("eligible_exchange = ? OR eligible_exchange = ?", WildcardAll, t.Exchange).
		Order("start_date ASC").
		Find(&matches).Error
	if err != nil {
		zap.L().Error("failed to match trade against competitions",
			zap.String("tx_hash", t.TxHash),
			zap.Error(err),
		)
		return nil, err
	}

	return matches, nil
}
