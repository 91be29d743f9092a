package leaderboard

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Participant is the per-user aggregate within one competition. A row is
// created lazily on the user's first counted trade.
type Participant struct {
	ID            string     `gorm:"column:id;primaryKey" json:"id"`
	CompetitionID string     `gorm:"column:competition_id;not null;uniqueIndex:idx_participant_competition_user" json:"competitionId"`
	UserID        string     `gorm:"column:user_id;not null;uniqueIndex:idx_participant_competition_user" json:"userId"`
	TotalVolume   float64    `gorm:"column:total_volume;not null;default:0;index" json:"totalVolume"`
	TradeCount    int64      `gorm:"column:trade_count;not null;default:0" json:"tradeCount"`
	Rank          int        `gorm:"column:rank" json:"rank,omitempty"`
	PrizeClaimed  bool       `gorm:"column:prize_claimed;not null;default:false" json:"prizeClaimed"`
	ClaimedAt     *time.Time `gorm:"column:claimed_at" json:"claimedAt,omitempty"`
	JoinedAt      time.Time  `gorm:"column:joined_at;not null" json:"joinedAt"`
	LastTradeAt   *time.Time `gorm:"column:last_trade_at" json:"lastTradeAt,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Participant) TableName() string { return "participants" }

// TradeAttribution records one trade counted toward one competition. The
// unique index on (competition_id, trade_id) is what makes event replay a
// no-op.
type TradeAttribution struct {
	ID            string         `gorm:"column:id;primaryKey" json:"id"`
	CompetitionID string         `gorm:"column:competition_id;not null;uniqueIndex:idx_attribution_competition_trade" json:"competitionId"`
	TradeID       string         `gorm:"column:trade_id;not null;uniqueIndex:idx_attribution_competition_trade" json:"tradeId"`
	UserID        string         `gorm:"column:user_id;not null;index" json:"userId"`
	USDVolume     float64        `gorm:"column:usd_volume;not null" json:"usdVolume"`
	TokenA        string         `gorm:"column:token_a" json:"tokenA"`
	TokenB        string         `gorm:"column:token_b" json:"tokenB"`
	Exchange      string         `gorm:"column:exchange" json:"exchange"`
	TradedAt      time.Time      `gorm:"column:traded_at;not null" json:"tradedAt"`
	Metadata      datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	DeletedAt     gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (TradeAttribution) TableName() string { return "trade_attributions" }
