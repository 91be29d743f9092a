package competition

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tradeleague/pkg/errutil"
)

type Status string

const (
	StatusActive            Status = "ACTIVE"
	StatusEnded             Status = "ENDED"
	StatusPrizesDistributed Status = "PRIZES_DISTRIBUTED"
)

// WildcardAll marks an eligibility field that matches any token or exchange.
const WildcardAll = "ALL"

// Competition represents a time-boxed trading competition definition.
type Competition struct {
	ID               string         `gorm:"column:id;primaryKey" json:"id"`
	Name             string         `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description      string         `gorm:"column:description;type:text" json:"description"`
	Status           Status         `gorm:"column:status;type:varchar(50);not null;default:'ACTIVE';index" json:"status"`
	StartDate        time.Time      `gorm:"column:start_date;not null;index" json:"startDate"`
	EndDate          time.Time      `gorm:"column:end_date;not null;index" json:"endDate"`
	EligibleToken    string         `gorm:"column:eligible_token;type:varchar(100);not null;default:'ALL'" json:"eligibleToken"`
	EligibleExchange string         `gorm:"column:eligible_exchange;type:varchar(100);not null;default:'ALL'" json:"eligibleExchange"`
	TotalPrizePoints int64          `gorm:"column:total_prize_points" json:"totalPrizePoints"`
	IconURL          string         `gorm:"column:icon_url" json:"iconUrl,omitempty"`
	BannerURL        string         `gorm:"column:banner_url" json:"bannerUrl,omitempty"`
	Hash             string         `gorm:"column:hash;type:char(64);index" json:"hash"`
	Tiers            []PrizeTier    `gorm:"foreignKey:CompetitionID;references:ID" json:"tiers,omitempty"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	DeletedAt        gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Competition) TableName() string { return "competitions" }

// GenerateHash derives a stable identifier from the immutable competition fields.
// It stays constant across edits to display-only fields.
func (c *Competition) GenerateHash() string {
	raw := fmt.Sprintf("%s|%s|%d|%d", c.ID, c.Name, c.StartDate.Unix(), c.EndDate.Unix())
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IsRunning checks whether the competition accepts trades at the given instant.
func (c *Competition) IsRunning(now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	return !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// PrizeTier maps an inclusive rank range to a prize.
type PrizeTier struct {
	ID               string    `gorm:"column:id;primaryKey" json:"id"`
	CompetitionID    string    `gorm:"column:competition_id;index;not null" json:"competitionId"`
	RankFrom         int       `gorm:"column:rank_from;not null" json:"rankFrom"`
	RankTo           int       `gorm:"column:rank_to;not null" json:"rankTo"`
	PrizePoints      int64     `gorm:"column:prize_points;not null" json:"prizePoints"`
	PrizeTokenAmount float64   `gorm:"column:prize_token_amount" json:"prizeTokenAmount,omitempty"`
	PrizeTokenUnit   string    `gorm:"column:prize_token_unit" json:"prizeTokenUnit,omitempty"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (PrizeTier) TableName() string { return "prize_tiers" }

// Covers reports whether the tier's inclusive range contains rank.
func (t *PrizeTier) Covers(rank int) bool {
	return rank >= t.RankFrom && rank <= t.RankTo
}

// ValidateTiers checks that tiers form a contiguous, non-overlapping ladder
// starting at rank 1.
func ValidateTiers(tiers []PrizeTier) error {
	if len(tiers) == 0 {
		return errutil.ValidationFailed("at least one prize tier is required", nil)
	}

	sorted := make([]PrizeTier, len(tiers))
	copy(sorted, tiers)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].RankFrom < sorted[i].RankFrom {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	next := 1
	for _, t := range sorted {
		if t.RankFrom > t.RankTo {
			return errutil.ValidationFailed(fmt.Sprintf("tier range [%d,%d] is inverted", t.RankFrom, t.RankTo), nil)
		}
		if t.PrizePoints < 0 || t.PrizeTokenAmount < 0 {
			return errutil.ValidationFailed(fmt.Sprintf("tier [%d,%d] has a negative prize", t.RankFrom, t.RankTo), nil)
		}
		if t.RankFrom != next {
			if t.RankFrom < next {
				return errutil.ValidationFailed(fmt.Sprintf("tier [%d,%d] overlaps the previous tier", t.RankFrom, t.RankTo), nil)
			}
			return errutil.ValidationFailed(fmt.Sprintf("tier ladder has a gap before rank %d", t.RankFrom), nil)
		}
		next = t.RankTo + 1
	}

	return nil
}
