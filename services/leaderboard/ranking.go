package leaderboard

import (
	"time"

	"gorm.io/gorm"
)

// Entry is one leaderboard row after ranking.
type Entry struct {
	UserID      string     `json:"userId"`
	Rank        int        `json:"rank"`
	TotalVolume float64    `json:"totalVolume"`
	TradeCount  int64      `json:"tradeCount"`
	LastTradeAt *time.Time `json:"lastTradeAt,omitempty"`
	JoinedAt    time.Time  `json:"joinedAt"`
}

// RankEntries orders participants by volume and assigns standard competition
// ranks: ties share a rank and the positions a tie absorbs are skipped, so
// volumes [500, 500, 300] rank as [1, 1, 3]. Participants with zero volume
// are excluded. The deterministic user_id tie-break only fixes iteration
// order; it never splits a shared rank.
func RankEntries(tx *gorm.DB, competitionID string) ([]Entry, error) {
	var rows []Participant
	err := tx.
		Where("competition_id = ? AND total_volume > 0", competitionID).
		Order("total_volume DESC, user_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(rows))
	rank := 0
	prev := -1.0
	for i, p := range rows {
		if i == 0 || p.TotalVolume != prev {
			rank = i + 1
			prev = p.TotalVolume
		}
		entries = append(entries, Entry{
			UserID:      p.UserID,
			Rank:        rank,
			TotalVolume: p.TotalVolume,
			TradeCount:  p.TradeCount,
			LastTradeAt: p.LastTradeAt,
			JoinedAt:    p.JoinedAt,
		})
	}

	return entries, nil
}
